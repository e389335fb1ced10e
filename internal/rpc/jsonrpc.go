// Package rpc implements the transport layer internal/review's doc comments
// call out as not yet wired: a JSON-RPC 2.0 server over HTTP exposing
// thread/start, turn/start and review/start, plus a gorilla/websocket
// notification fan-out streaming a thread's turn.Event values to whichever
// client started it. ServerConfig.GRPCPort names the listener's port for
// historical reasons (an earlier draft of this service was a protobuf/gRPC
// service); the wire format carried on it is JSON-RPC, matching
// internal/review.ValidationError's own "-32600" doc comments.
//
// Grounded on the teacher's internal/gateway/ws_control_plane.go: a single
// HTTP server multiplexing a request/response control method dispatch
// (wsFrame's method/params/id triad, generalized here to the JSON-RPC 2.0
// envelope) alongside a streamed event channel per connection.
package rpc

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

const jsonRPCVersion = "2.0"

// Standard JSON-RPC 2.0 reserved error codes, plus the
// internal/review.CodeInvalidRequest value it already documents itself
// under.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// request is one JSON-RPC 2.0 call.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// response is one JSON-RPC 2.0 reply; exactly one of Result/Error is set.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// coder is implemented by errors that carry their own JSON-RPC error code,
// such as *review.ValidationError.
type coder interface {
	Code() int
}

func errorResponse(id json.RawMessage, code int, message string) response {
	return response{JSONRPC: jsonRPCVersion, ID: id, Error: &rpcError{Code: code, Message: message}}
}

func codeFor(err error) int {
	if c, ok := err.(coder); ok {
		return c.Code()
	}
	return CodeInternalError
}

// methodFunc handles one JSON-RPC method's decoded params and returns the
// value to place in a successful response's result field.
type methodFunc func(ctx *callContext, params json.RawMessage) (any, error)

// Server is the JSON-RPC 2.0 HTTP handler dispatching thread/start,
// turn/start and review/start (registered by NewServer in methods.go) to
// threadmgr.Manager and review.Manager.
type Server struct {
	log     zerolog.Logger
	methods map[string]methodFunc
	notify  *Hub
	tokens  *TokenService
}

// ServeHTTP implements http.Handler: one HTTP POST carries one JSON-RPC
// request and receives one JSON-RPC response, matching how the teacher's
// control plane frames a single request/response exchange as one JSON
// object rather than batching.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req request
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, errorResponse(nil, CodeParseError, "parse error: "+err.Error()))
		return
	}
	if req.Method == "" {
		writeJSON(w, errorResponse(req.ID, CodeInvalidRequest, "method is required"))
		return
	}

	fn, ok := s.methods[req.Method]
	if !ok {
		writeJSON(w, errorResponse(req.ID, CodeMethodNotFound, "unknown method: "+req.Method))
		return
	}

	cc := &callContext{ctx: r.Context(), server: s, bearer: bearerToken(r)}
	result, err := fn(cc, req.Params)
	if err != nil {
		s.log.Warn().Err(err).Str("method", req.Method).Msg("rpc: call failed")
		writeJSON(w, errorResponse(req.ID, codeFor(err), err.Error()))
		return
	}
	writeJSON(w, response{JSONRPC: jsonRPCVersion, ID: req.ID, Result: result})
}

func writeJSON(w http.ResponseWriter, resp response) {
	w.Header().Set("Content-Type", "application/json")
	if resp.Error != nil {
		w.WriteHeader(http.StatusOK) // JSON-RPC reports failure in-body, not via HTTP status
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}
