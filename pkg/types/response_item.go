package types

import "encoding/json"

// ResponseItemKind discriminates the ResponseItem variant.
type ResponseItemKind string

const (
	ResponseItemMessage            ResponseItemKind = "message"
	ResponseItemReasoning          ResponseItemKind = "reasoning"
	ResponseItemFunctionCall       ResponseItemKind = "function_call"
	ResponseItemMcpToolCallOutput  ResponseItemKind = "mcp_tool_call_output"
	ResponseItemFunctionCallOutput ResponseItemKind = "function_call_output"
	ResponseItemCustomToolCallOutput ResponseItemKind = "custom_tool_call_output"
)

// ContentBlock is one piece of a Message's content array. Text is the only
// block type exercised by the core; richer block types (images, file
// references) pass through opaquely via Raw.
type ContentBlock struct {
	Text string          `json:"text,omitempty"`
	Raw  json.RawMessage `json:"raw,omitempty"`
}

// MessageItem is the `Message{role, content[]}` ResponseItem variant.
type MessageItem struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ReasoningItem is the `Reasoning{summary, content, encrypted}` variant.
type ReasoningItem struct {
	Summary   []string `json:"summary,omitempty"`
	Content   []string `json:"content,omitempty"`
	Encrypted bool     `json:"encrypted"`
}

// FunctionCallItem is the `FunctionCall{call_id, name, arguments}` variant.
// Every FunctionCallItem persisted in a rollout must eventually be followed
// by exactly one FunctionCallOutputItem or McpToolCallOutputItem carrying a
// matching CallID before the turn completes.
type FunctionCallItem struct {
	CallID    CallID `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// FunctionCallOutputPayload carries a tool's result back to the model.
type FunctionCallOutputPayload struct {
	Content string `json:"content"`
	Success bool   `json:"success"`
}

// FunctionCallOutputItem is the `FunctionCallOutput{call_id, payload}`
// variant.
type FunctionCallOutputItem struct {
	CallID  CallID                    `json:"call_id"`
	Payload FunctionCallOutputPayload `json:"payload"`
}

// McpToolCallOutputItem is the `McpToolCallOutput{call_id, result}` variant.
type McpToolCallOutputItem struct {
	CallID CallID          `json:"call_id"`
	Result json.RawMessage `json:"result"`
}

// CustomToolCallOutputItem is the `CustomToolCallOutput{call_id, output}`
// variant, produced by dispatch for tool invocations carrying a Custom
// payload (a model-defined freeform tool rather than a typed Function
// schema or an MCP tool).
type CustomToolCallOutputItem struct {
	CallID CallID `json:"call_id"`
	Output string `json:"output"`
}

// ResponseItem is a closed tagged union over the five ResponseItem variants.
// Exactly one of the typed fields is populated, selected by Kind. Model it
// as an exhaustively-matched sealed variant rather than an interface
// hierarchy: callers switch on Kind and the compiler (via the accessor
// methods below) keeps the pairing honest.
type ResponseItem struct {
	Kind ResponseItemKind `json:"kind"`

	Message    *MessageItem               `json:"message,omitempty"`
	Reasoning  *ReasoningItem             `json:"reasoning,omitempty"`
	Call       *FunctionCallItem          `json:"function_call,omitempty"`
	CallOutput *FunctionCallOutputItem    `json:"function_call_output,omitempty"`
	McpOutput  *McpToolCallOutputItem     `json:"mcp_tool_call_output,omitempty"`
	CustomOutput *CustomToolCallOutputItem `json:"custom_tool_call_output,omitempty"`
}

// NewMessageItem constructs a Message ResponseItem.
func NewMessageItem(role string, content ...ContentBlock) ResponseItem {
	return ResponseItem{Kind: ResponseItemMessage, Message: &MessageItem{Role: role, Content: content}}
}

// NewReasoningItem constructs a Reasoning ResponseItem.
func NewReasoningItem(summary, content []string, encrypted bool) ResponseItem {
	return ResponseItem{Kind: ResponseItemReasoning, Reasoning: &ReasoningItem{Summary: summary, Content: content, Encrypted: encrypted}}
}

// NewFunctionCallItem constructs a FunctionCall ResponseItem.
func NewFunctionCallItem(callID CallID, name, arguments string) ResponseItem {
	return ResponseItem{Kind: ResponseItemFunctionCall, Call: &FunctionCallItem{CallID: callID, Name: name, Arguments: arguments}}
}

// NewFunctionCallOutputItem constructs a FunctionCallOutput ResponseItem.
func NewFunctionCallOutputItem(callID CallID, content string, success bool) ResponseItem {
	return ResponseItem{
		Kind: ResponseItemFunctionCallOutput,
		CallOutput: &FunctionCallOutputItem{
			CallID:  callID,
			Payload: FunctionCallOutputPayload{Content: content, Success: success},
		},
	}
}

// NewMcpToolCallOutputItem constructs a McpToolCallOutput ResponseItem.
func NewMcpToolCallOutputItem(callID CallID, result json.RawMessage) ResponseItem {
	return ResponseItem{Kind: ResponseItemMcpToolCallOutput, McpOutput: &McpToolCallOutputItem{CallID: callID, Result: result}}
}

// NewCustomToolCallOutputItem constructs a CustomToolCallOutput ResponseItem.
func NewCustomToolCallOutputItem(callID CallID, output string) ResponseItem {
	return ResponseItem{Kind: ResponseItemCustomToolCallOutput, CustomOutput: &CustomToolCallOutputItem{CallID: callID, Output: output}}
}

// OutputCallID returns the CallID carried by a FunctionCallOutput or
// McpToolCallOutput item, and false for every other kind.
func (r ResponseItem) OutputCallID() (CallID, bool) {
	switch r.Kind {
	case ResponseItemFunctionCallOutput:
		if r.CallOutput != nil {
			return r.CallOutput.CallID, true
		}
	case ResponseItemMcpToolCallOutput:
		if r.McpOutput != nil {
			return r.McpOutput.CallID, true
		}
	case ResponseItemCustomToolCallOutput:
		if r.CustomOutput != nil {
			return r.CustomOutput.CallID, true
		}
	}
	return "", false
}
