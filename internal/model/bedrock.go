package model

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go/document"

	"github.com/nexus-core/agentcore/internal/config"
	"github.com/nexus-core/agentcore/internal/turn"
	"github.com/nexus-core/agentcore/pkg/types"
)

// bedrockBackend streams against AWS Bedrock's ConverseStream API and
// translates its event stream into the chat.completion.chunk SSE shape
// internal/codec decodes, so Runtime never needs a second decoder for a
// second wire format.
type bedrockBackend struct {
	client *bedrockruntime.Client
	model  string
}

func newBedrockBackend(p config.ModelProviderConfig) (*bedrockBackend, error) {
	if p.Region == "" {
		return nil, fmt.Errorf("bedrock provider requires region")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(p.Region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}
	return &bedrockBackend{
		client: bedrockruntime.NewFromConfig(awsCfg),
		model:  p.Model,
	}, nil
}

func (b *bedrockBackend) stream(ctx context.Context, tc types.TurnContext, p turn.Prompt) (io.ReadCloser, error) {
	messages, err := buildConverseMessages(p)
	if err != nil {
		return nil, err
	}

	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  awssdk.String(modelNameOr(tc.ModelInfo.Model, b.model)),
		Messages: messages,
		System:   []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: p.Instructions + "\n\n" + p.EnvironmentTag}},
	}
	if toolConfig := buildToolConfig(p.Tools); toolConfig != nil {
		input.ToolConfig = toolConfig
	}

	out, err := b.client.ConverseStream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock: converse_stream: %w", err)
	}

	pr, pw := io.Pipe()
	go pumpConverseStream(out, pw)
	return pr, nil
}

// pumpConverseStream drains a ConverseStream and writes its events to w as
// chat.completion.chunk SSE frames, closing w (with an error, if any) once
// the stream ends.
func pumpConverseStream(out *bedrockruntime.ConverseStreamOutput, w *io.PipeWriter) {
	stream := out.GetStream()
	defer stream.Close()

	toolIndex := make(map[string]int)
	var finishReason string
	var usage *wireUsageJSON

	writeChunk := func(delta chunkDelta, finish string, u *wireUsageJSON) error {
		payload := sseChunk{Choices: []sseChoice{{Delta: delta}}}
		if finish != "" {
			payload.Choices[0].FinishReason = &finish
		}
		payload.Usage = u
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "data: %s\n\n", raw)
		return err
	}

	for event := range stream.Events() {
		switch v := event.(type) {
		case *brtypes.ConverseStreamOutputMemberContentBlockStart:
			if tu, ok := v.Value.Start.(*brtypes.ContentBlockStartMemberToolUse); ok {
				idx := len(toolIndex)
				toolIndex[awssdk.ToString(tu.Value.ToolUseId)] = idx
				if err := writeChunk(chunkDelta{ToolCalls: []chunkToolCall{{
					ID:       awssdk.ToString(tu.Value.ToolUseId),
					Function: chunkToolCallFunc{Name: awssdk.String(awssdk.ToString(tu.Value.Name))},
				}}}, "", nil); err != nil {
					_ = w.CloseWithError(err)
					return
				}
			}

		case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
			switch d := v.Value.Delta.(type) {
			case *brtypes.ContentBlockDeltaMemberText:
				if err := writeChunk(chunkDelta{Content: d.Value}, "", nil); err != nil {
					_ = w.CloseWithError(err)
					return
				}
			case *brtypes.ContentBlockDeltaMemberToolUse:
				if err := writeChunk(chunkDelta{ToolCalls: []chunkToolCall{{
					Function: chunkToolCallFunc{Arguments: awssdk.ToString(d.Value.Input)},
				}}}, "", nil); err != nil {
					_ = w.CloseWithError(err)
					return
				}
			}

		case *brtypes.ConverseStreamOutputMemberMessageStop:
			switch v.Value.StopReason {
			case brtypes.StopReasonToolUse:
				finishReason = "tool_calls"
			default:
				finishReason = "stop"
			}

		case *brtypes.ConverseStreamOutputMemberMetadata:
			if v.Value.Usage != nil {
				usage = &wireUsageJSON{
					PromptTokens:     int(awssdk.ToInt32(v.Value.Usage.InputTokens)),
					CompletionTokens: int(awssdk.ToInt32(v.Value.Usage.OutputTokens)),
					TotalTokens:      int(awssdk.ToInt32(v.Value.Usage.TotalTokens)),
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		_ = w.CloseWithError(fmt.Errorf("bedrock: stream: %w", err))
		return
	}
	if finishReason == "" {
		finishReason = "stop"
	}
	if err := writeChunk(chunkDelta{}, finishReason, usage); err != nil {
		_ = w.CloseWithError(err)
		return
	}
	w.Close()
}

// sseChunk/sseChoice/chunkDelta/chunkToolCall mirror codec's unexported
// wireChunk family closely enough to decode identically; they are
// redeclared here rather than imported since codec intentionally keeps its
// wire types package-private.
type sseChunk struct {
	Choices []sseChoice    `json:"choices"`
	Usage   *wireUsageJSON `json:"usage,omitempty"`
}

type sseChoice struct {
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type chunkDelta struct {
	Content   string          `json:"content,omitempty"`
	ToolCalls []chunkToolCall `json:"tool_calls,omitempty"`
}

type chunkToolCall struct {
	ID       string            `json:"id,omitempty"`
	Function chunkToolCallFunc `json:"function"`
}

type chunkToolCallFunc struct {
	Name      *string `json:"name,omitempty"`
	Arguments string  `json:"arguments,omitempty"`
}

type wireUsageJSON struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func buildToolConfig(specs []turn.ToolSpec) *brtypes.ToolConfiguration {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]brtypes.Tool, 0, len(specs))
	for _, s := range specs {
		var schema map[string]any
		if len(s.Schema) > 0 {
			_ = json.Unmarshal(s.Schema, &schema)
		}
		tools = append(tools, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpec{
			Name:        awssdk.String(s.Name),
			Description: awssdk.String(s.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
		}})
	}
	return &brtypes.ToolConfiguration{Tools: tools}
}

// buildConverseMessages renders a Prompt's history and input into Bedrock
// Converse messages. Function calls become assistant ToolUse blocks and
// their outputs become user ToolResult blocks, matching Converse's
// requirement that every tool_use be answered by a tool_result in the very
// next user turn.
func buildConverseMessages(p turn.Prompt) ([]brtypes.Message, error) {
	var messages []brtypes.Message
	for _, item := range append(append([]types.ResponseItem{}, p.History...), p.Input...) {
		msg, ok, err := converseMessageFor(item)
		if err != nil {
			return nil, err
		}
		if ok {
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

func converseMessageFor(item types.ResponseItem) (brtypes.Message, bool, error) {
	switch item.Kind {
	case types.ResponseItemMessage:
		if item.Message == nil {
			return brtypes.Message{}, false, nil
		}
		var text string
		for _, block := range item.Message.Content {
			text += block.Text
		}
		role := brtypes.ConversationRoleUser
		if item.Message.Role == "assistant" {
			role = brtypes.ConversationRoleAssistant
		}
		return brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: text}},
		}, true, nil

	case types.ResponseItemFunctionCall:
		if item.Call == nil {
			return brtypes.Message{}, false, nil
		}
		var input map[string]any
		_ = json.Unmarshal([]byte(item.Call.Arguments), &input)
		return brtypes.Message{
			Role: brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
				ToolUseId: awssdk.String(string(item.Call.CallID)),
				Name:      awssdk.String(item.Call.Name),
				Input:     document.NewLazyDocument(input),
			}}},
		}, true, nil

	case types.ResponseItemFunctionCallOutput:
		if item.CallOutput == nil {
			return brtypes.Message{}, false, nil
		}
		status := brtypes.ToolResultStatusSuccess
		if !item.CallOutput.Payload.Success {
			status = brtypes.ToolResultStatusError
		}
		return brtypes.Message{
			Role: brtypes.ConversationRoleUser,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
				ToolUseId: awssdk.String(string(item.CallOutput.CallID)),
				Status:    status,
				Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: item.CallOutput.Payload.Content}},
			}}},
		}, true, nil

	default:
		return brtypes.Message{}, false, nil
	}
}

