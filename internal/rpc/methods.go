package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nexus-core/agentcore/internal/review"
	"github.com/nexus-core/agentcore/internal/threadmgr"
	"github.com/nexus-core/agentcore/internal/turn"
	"github.com/nexus-core/agentcore/pkg/types"
)

// callContext carries one JSON-RPC call's request context and the bearer
// token it presented, if any, through to a method handler.
type callContext struct {
	ctx    context.Context
	server *Server
	bearer string
}

// NewServer wires a thread manager and review manager into a JSON-RPC 2.0
// handler exposing thread/start, thread/resume, turn/start, turn/interrupt
// and review/start, with notifications fanned out through hub.
func NewServer(threads *threadmgr.Manager, reviews *review.Manager, tokens *TokenService, hub *Hub, log zerolog.Logger) *Server {
	s := &Server{log: log, notify: hub, tokens: tokens}
	s.methods = map[string]methodFunc{
		"thread/start":    threadStartMethod(threads),
		"thread/resume":   threadResumeMethod(threads, tokens),
		"turn/start":      turnStartMethod(threads, hub),
		"turn/interrupt":  turnInterruptMethod(threads),
		"review/start":    reviewStartMethod(reviews, hub),
	}
	return s
}

// threadStartParams is thread/start's JSON-RPC params shape.
type threadStartParams struct {
	Cwd    string `json:"cwd"`
	Source string `json:"source,omitempty"`
}

// threadStartResult is thread/start's result: the new thread's id and a
// signed resume token a client can present later to thread/resume without
// this process needing to remember who is allowed to resume what.
type threadStartResult struct {
	ThreadID    string `json:"thread_id"`
	ResumeToken string `json:"resume_token,omitempty"`
}

func threadStartMethod(threads *threadmgr.Manager) methodFunc {
	return func(cc *callContext, raw json.RawMessage) (any, error) {
		var p threadStartParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		source := types.ThreadSource(p.Source)
		if source == "" {
			source = types.ThreadSourceInteractive
		}
		th, err := threads.StartThread(cc.ctx, threadmgr.StartThreadInput{
			Defaults: types.TurnContext{Cwd: p.Cwd},
			Source:   source,
		})
		if err != nil {
			return nil, err
		}

		result := threadStartResult{ThreadID: string(th.ID)}
		if cc.server.tokens != nil {
			token, err := cc.server.tokens.Issue(string(th.ID))
			if err != nil {
				return nil, fmt.Errorf("rpc: issue resume token: %w", err)
			}
			result.ResumeToken = token
		}
		return result, nil
	}
}

// threadResumeParams is thread/resume's JSON-RPC params shape. ResumeToken
// is required whenever the server was built with a TokenService; ThreadID
// is only trusted once the token has been verified to name it.
type threadResumeParams struct {
	ResumeToken string `json:"resume_token"`
}

type threadResumeResult struct {
	ThreadID string `json:"thread_id"`
}

func threadResumeMethod(threads *threadmgr.Manager, tokens *TokenService) methodFunc {
	return func(cc *callContext, raw json.RawMessage) (any, error) {
		var p threadResumeParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		token := p.ResumeToken
		if token == "" {
			token = cc.bearer
		}
		if tokens == nil || token == "" {
			return nil, &review.ValidationError{Message: "resume_token must not be empty"}
		}
		threadID, err := tokens.Verify(token)
		if err != nil {
			return nil, err
		}

		th, err := threads.ResumeThread(cc.ctx, types.ThreadID(threadID), turn.Overrides{})
		if err != nil {
			return nil, err
		}
		return threadResumeResult{ThreadID: string(th.ID)}, nil
	}
}

// turnStartParams is turn/start's JSON-RPC params shape: the thread to run
// on, the user's input text, and the subscription id a client later passes
// to Hub.Subscribe to receive this turn's notifications over the websocket
// fan-out.
type turnStartParams struct {
	ThreadID string `json:"thread_id"`
	Text     string `json:"text"`
	Model    string `json:"model,omitempty"`
	Provider string `json:"provider,omitempty"`
}

type turnStartResult struct {
	TurnID string `json:"turn_id"`
}

func turnStartMethod(threads *threadmgr.Manager, hub *Hub) methodFunc {
	return func(cc *callContext, raw json.RawMessage) (any, error) {
		var p turnStartParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		if p.ThreadID == "" {
			return nil, &review.ValidationError{Message: "thread_id must not be empty"}
		}
		threadID := types.ThreadID(p.ThreadID)
		turnID := uuid.NewString()

		op := threadmgr.Op{
			Kind:   threadmgr.OpUserTurn,
			TurnID: turnID,
			Input: []types.ResponseItem{
				types.NewMessageItem("user", types.ContentBlock{Text: p.Text}),
			},
			Overrides: turn.Overrides{Model: p.Model, Provider: p.Provider},
		}

		th, events, err := threads.RunTurn(cc.ctx, threadID, op)
		if err != nil {
			return nil, err
		}
		if hub != nil {
			hub.Pump(threadID, th, events)
		} else {
			go drainAndRefresh(th, events)
		}
		return turnStartResult{TurnID: turnID}, nil
	}
}

// turnInterruptParams is turn/interrupt's JSON-RPC params shape.
type turnInterruptParams struct {
	ThreadID string `json:"thread_id"`
}

func turnInterruptMethod(threads *threadmgr.Manager) methodFunc {
	return func(cc *callContext, raw json.RawMessage) (any, error) {
		var p turnInterruptParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		if p.ThreadID == "" {
			return nil, &review.ValidationError{Message: "thread_id must not be empty"}
		}
		if err := threads.SubmitWithID(cc.ctx, types.ThreadID(p.ThreadID), threadmgr.Op{Kind: threadmgr.OpInterrupt}); err != nil {
			return nil, err
		}
		return struct{}{}, nil
	}
}

// reviewStartParams mirrors review.Target's tagged union over the wire:
// exactly one of Commit/BaseBranch/Instructions is set, matching
// review.Target.Validate's own field-exclusivity expectations.
type reviewStartParams struct {
	ThreadID     string `json:"thread_id"`
	Delivery     string `json:"delivery,omitempty"`
	Commit       string `json:"commit,omitempty"`
	CommitTitle  string `json:"commit_title,omitempty"`
	BaseBranch   string `json:"base_branch,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

type reviewStartResult struct {
	TurnID         string `json:"turn_id"`
	ReviewThreadID string `json:"review_thread_id"`
}

func reviewStartMethod(reviews *review.Manager, hub *Hub) methodFunc {
	return func(cc *callContext, raw json.RawMessage) (any, error) {
		var p reviewStartParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		if p.ThreadID == "" {
			return nil, &review.ValidationError{Message: "thread_id must not be empty"}
		}

		target, err := targetFrom(p)
		if err != nil {
			return nil, err
		}

		in := review.StartInput{
			ThreadID: types.ThreadID(p.ThreadID),
			Delivery: review.Delivery(p.Delivery),
			Target:   target,
		}
		result, err := reviews.Start(cc.ctx, in)
		if err != nil {
			return nil, err
		}
		return reviewStartResult{TurnID: result.TurnID, ReviewThreadID: string(result.ReviewThreadID)}, nil
	}
}

func targetFrom(p reviewStartParams) (review.Target, error) {
	switch {
	case p.Commit != "":
		return review.CommitTarget(p.Commit, p.CommitTitle), nil
	case p.BaseBranch != "":
		return review.BaseBranchTarget(p.BaseBranch), nil
	case p.Instructions != "":
		return review.CustomTarget(p.Instructions), nil
	default:
		return review.Target{}, &review.ValidationError{Message: "one of commit, base_branch or instructions is required"}
	}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &review.ValidationError{Message: "invalid params: " + err.Error()}
	}
	return nil
}

// drainAndRefresh discards a turn's events when no Hub is configured to fan
// them out, so RunTurn's channel always gets emptied and the thread's
// rollout gets refreshed (internal/threadmgr.Manager.pump does the refresh
// when SubmitWithID drives a turn; RunTurn callers own that responsibility
// themselves, per Manager.RunTurn's own doc comment).
func drainAndRefresh(th *threadmgr.Thread, events <-chan turn.Event) {
	for range events {
	}
	_ = th.RefreshPersisted()
}
