package review

// CodeInvalidRequest is the JSON-RPC error code a review/start validation
// failure is reported under once it reaches the wire layer (INVALID_REQUEST,
// -32600 in the JSON-RPC 2.0 reserved range).
const CodeInvalidRequest = -32600

// ValidationError is returned by Target.Validate and Start when a review
// request's target carries a whitespace-only field. Its Code is the
// JSON-RPC error code the transport layer (internal/rpc, not yet wired)
// reports it under.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Code reports the JSON-RPC error code this validation failure maps to.
func (e *ValidationError) Code() int { return CodeInvalidRequest }

// ErrChildNotFound is returned by SendInput/Wait/Close for an agent_id the
// collaboration registry has no record of, matching the NotFound status
// variant a Wait response can also report per child.
type ErrChildNotFound string

func (e ErrChildNotFound) Error() string { return "review: child agent not found: " + string(e) }
