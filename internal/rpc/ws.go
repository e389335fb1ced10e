package rpc

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nexus-core/agentcore/internal/threadmgr"
	"github.com/nexus-core/agentcore/internal/turn"
	"github.com/nexus-core/agentcore/pkg/types"
)

const (
	hubWriteWait  = 10 * time.Second
	hubPongWait   = 45 * time.Second
	hubPingPeriod = (hubPongWait * 9) / 10
)

// wsFrame is the notification frame a subscribed client receives, one per
// turn.Event. Grounded on the teacher's wsFrame (internal/gateway/ws_control_plane.go),
// trimmed to the event/payload fields a fan-out-only connection needs; it
// carries no request id or method since a client never issues RPCs over
// this socket, only subscribes.
type wsFrame struct {
	ThreadID string         `json:"thread_id"`
	Event    string         `json:"event"`
	TurnID   string         `json:"turn_id"`
	Payload  map[string]any `json:"payload,omitempty"`
}

func frameFor(threadID types.ThreadID, e turn.Event) wsFrame {
	payload := map[string]any{}
	switch e.Kind {
	case turn.EventOutputTextDelta:
		payload["text_delta"] = e.TextDelta
	case turn.EventReasoningDelta:
		payload["reasoning_delta"] = e.ReasoningDelta
		payload["content_index"] = e.ContentIndex
	case turn.EventToolCallBegin, turn.EventToolCallEnd:
		payload["call_id"] = string(e.CallID)
		payload["tool_name"] = e.ToolName
	case turn.EventOutputItemAdded, turn.EventItemCompleted:
		payload["item"] = e.Item
	case turn.EventTurnComplete:
		payload["last_agent_message"] = e.LastAgentMessage
	case turn.EventTurnAborted:
		payload["reason"] = string(e.AbortReason)
		if e.Err != nil {
			payload["error"] = e.Err.Error()
		}
	}
	return wsFrame{ThreadID: string(threadID), Event: string(e.Kind), TurnID: e.TurnID, Payload: payload}
}

// Hub fans a thread's turn.Event stream out to every websocket connection
// subscribed to that thread id. One Hub serves every thread in the
// process; a subscriber's outbound frames never cross thread boundaries.
//
// Grounded on the teacher's wsSession/wsControlPlane pair: a per-connection
// buffered send channel drained by one writer goroutine, with a ticker
// driving periodic pings, generalized from per-session chat frames to
// per-thread turn events.
type Hub struct {
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu   sync.RWMutex
	subs map[types.ThreadID]map[*subscriber]struct{}
}

type subscriber struct {
	conn *websocket.Conn
	send chan wsFrame
	done chan struct{}
}

// NewHub builds a notification fan-out hub. CheckOrigin is left permissive
// to match the teacher's own control-plane upgrader; a reverse proxy in
// front of this process is expected to enforce origin policy.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		subs: make(map[types.ThreadID]map[*subscriber]struct{}),
	}
}

// ServeHTTP upgrades the connection and subscribes it to the thread named
// by the "thread_id" query parameter until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	threadID := types.ThreadID(r.URL.Query().Get("thread_id"))
	if threadID == "" {
		http.Error(w, "thread_id query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("rpc: websocket upgrade failed")
		return
	}

	sub := &subscriber{conn: conn, send: make(chan wsFrame, 256), done: make(chan struct{})}
	h.addSub(threadID, sub)
	go h.readLoop(threadID, sub)
	h.writeLoop(sub)
}

func (h *Hub) addSub(threadID types.ThreadID, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[threadID] == nil {
		h.subs[threadID] = make(map[*subscriber]struct{})
	}
	h.subs[threadID][sub] = struct{}{}
}

func (h *Hub) removeSub(threadID types.ThreadID, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[threadID], sub)
	if len(h.subs[threadID]) == 0 {
		delete(h.subs, threadID)
	}
}

// readLoop discards inbound frames (this socket is notify-only) and exists
// solely to detect the peer closing the connection, matching gorilla's
// requirement that something always reads a connection to observe control
// frames (pings/closes).
func (h *Hub) readLoop(threadID types.ThreadID, sub *subscriber) {
	defer func() {
		h.removeSub(threadID, sub)
		close(sub.done)
		sub.conn.Close()
	}()
	sub.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	sub.conn.SetPongHandler(func(string) error {
		sub.conn.SetReadDeadline(time.Now().Add(hubPongWait))
		return nil
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(sub *subscriber) {
	ticker := time.NewTicker(hubPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case frame, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			raw, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sub.done:
			return
		}
	}
}

// Pump drains th's turn event channel, fans each event out to threadID's
// subscribers, and refreshes the thread's persisted response items once
// the channel closes. Runs in its own goroutine; callers (turn/start's
// method handler) do not block on it.
func (h *Hub) Pump(threadID types.ThreadID, th *threadmgr.Thread, events <-chan turn.Event) {
	go func() {
		for e := range events {
			h.broadcast(threadID, frameFor(threadID, e))
		}
		_ = th.RefreshPersisted()
	}()
}

func (h *Hub) broadcast(threadID types.ThreadID, frame wsFrame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[threadID] {
		select {
		case sub.send <- frame:
		default:
			h.log.Warn().Str("thread_id", string(threadID)).Msg("rpc: subscriber send buffer full, dropping frame")
		}
	}
}
