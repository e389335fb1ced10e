package codec

import "encoding/json"

// wireChunk mirrors an OpenAI-compatible chat.completion.chunk payload. Only
// the fields the decoder actually consumes are modeled; everything else is
// ignored rather than erroring, so upstream additions never break decoding.
type wireChunk struct {
	ID      string       `json:"id"`
	Choices []wireChoice `json:"choices"`
	Usage   *wireUsage   `json:"usage"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type wireChoice struct {
	Delta        wireDelta `json:"delta"`
	FinishReason *string   `json:"finish_reason"`
}

type wireDelta struct {
	Content   json.RawMessage  `json:"content"`
	Reasoning json.RawMessage  `json:"reasoning"`
	ToolCalls []wireToolCall   `json:"tool_calls"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Function wireToolCallFunc `json:"function"`
}

type wireToolCallFunc struct {
	Name      *string `json:"name"`
	Arguments string  `json:"arguments"`
}

// wireContentPart covers the `{text}` array form of delta.content.
type wireContentPart struct {
	Text string `json:"text"`
}

// wireReasoning covers the `.text`/`.content` object forms of
// delta.reasoning; String carries the plain-string form, detected
// separately by the caller.
type wireReasoning struct {
	Text    string `json:"text"`
	Content string `json:"content"`
}

// extractContentText normalizes delta.content into plain text, accepting
// either a bare JSON string or an array of {text} parts.
func extractContentText(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var parts []wireContentPart
	if err := json.Unmarshal(raw, &parts); err == nil {
		var out string
		for _, p := range parts {
			out += p.Text
		}
		return out, out != ""
	}
	return "", false
}

// extractReasoningText normalizes delta.reasoning into plain text, accepting
// a bare string or an object with `.text`/`.content`.
func extractReasoningText(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var obj wireReasoning
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Text != "" {
			return obj.Text, true
		}
		if obj.Content != "" {
			return obj.Content, true
		}
	}
	return "", false
}
