package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/nexus-core/agentcore/internal/config"
	"github.com/nexus-core/agentcore/internal/turn"
	"github.com/nexus-core/agentcore/pkg/types"
)

// openaiBackend streams against an OpenAI-compatible chat.completions
// endpoint. Its SSE response is already in the
// chat.completion.chunk shape internal/codec decodes, so the HTTP
// response body is returned to the caller unmodified.
type openaiBackend struct {
	httpClient *http.Client
	baseURL    string
	apiKeyEnv  string
	model      string
}

func newOpenAIBackend(p config.ModelProviderConfig) (*openaiBackend, error) {
	if p.BaseURL == "" {
		return nil, fmt.Errorf("openai provider requires base_url")
	}
	timeout := p.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &openaiBackend{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    p.BaseURL,
		apiKeyEnv:  p.APIKeyEnv,
		model:      p.Model,
	}, nil
}

type chatMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall  `json:"tool_calls,omitempty"`
}

type chatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function chatToolCallFunc `json:"function"`
}

type chatToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatToolSpec `json:"function"`
}

type chatToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []chatMessage `json:"messages"`
	Tools    []chatTool    `json:"tools,omitempty"`
}

func (b *openaiBackend) stream(ctx context.Context, tc types.TurnContext, p turn.Prompt) (io.ReadCloser, error) {
	req := chatCompletionRequest{
		Model:    modelNameOr(tc.ModelInfo.Model, b.model),
		Stream:   true,
		Messages: buildChatMessages(p),
		Tools:    buildChatTools(p.Tools),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("model: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if b.apiKeyEnv != "" {
		if key := os.Getenv(b.apiKeyEnv); key != "" {
			httpReq.Header.Set("Authorization", "Bearer "+key)
		}
	}

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("model: request: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("model: upstream returned %s: %s", resp.Status, string(respBody))
	}
	return resp.Body, nil
}

func modelNameOr(preferred, fallback string) string {
	if preferred != "" {
		return preferred
	}
	return fallback
}

func buildChatTools(specs []turn.ToolSpec) []chatTool {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]chatTool, 0, len(specs))
	for _, s := range specs {
		tools = append(tools, chatTool{
			Type: "function",
			Function: chatToolSpec{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Schema,
			},
		})
	}
	return tools
}

// buildChatMessages flattens a Prompt into the OpenAI chat-completions
// message array: a synthesized system message carrying the instructions
// and environment tag, followed by history and input response items
// converted 1:1 into their chat-role equivalents.
func buildChatMessages(p turn.Prompt) []chatMessage {
	messages := make([]chatMessage, 0, len(p.History)+len(p.Input)+1)
	messages = append(messages, chatMessage{
		Role:    "system",
		Content: p.Instructions + "\n\n" + p.EnvironmentTag,
	})
	for _, item := range p.History {
		messages = append(messages, responseItemToChatMessages(item)...)
	}
	for _, item := range p.Input {
		messages = append(messages, responseItemToChatMessages(item)...)
	}
	return messages
}

func responseItemToChatMessages(item types.ResponseItem) []chatMessage {
	switch item.Kind {
	case types.ResponseItemMessage:
		if item.Message == nil {
			return nil
		}
		var text string
		for _, block := range item.Message.Content {
			text += block.Text
		}
		return []chatMessage{{Role: item.Message.Role, Content: text}}

	case types.ResponseItemFunctionCall:
		if item.Call == nil {
			return nil
		}
		return []chatMessage{{
			Role: "assistant",
			ToolCalls: []chatToolCall{{
				ID:   string(item.Call.CallID),
				Type: "function",
				Function: chatToolCallFunc{
					Name:      item.Call.Name,
					Arguments: item.Call.Arguments,
				},
			}},
		}}

	case types.ResponseItemFunctionCallOutput:
		if item.CallOutput == nil {
			return nil
		}
		return []chatMessage{{
			Role:       "tool",
			ToolCallID: string(item.CallOutput.CallID),
			Content:    item.CallOutput.Payload.Content,
		}}

	case types.ResponseItemMcpToolCallOutput:
		if item.McpOutput == nil {
			return nil
		}
		return []chatMessage{{
			Role:       "tool",
			ToolCallID: string(item.McpOutput.CallID),
			Content:    string(item.McpOutput.Result),
		}}

	case types.ResponseItemCustomToolCallOutput:
		if item.CustomOutput == nil {
			return nil
		}
		return []chatMessage{{
			Role:       "tool",
			ToolCallID: string(item.CustomOutput.CallID),
			Content:    item.CustomOutput.Output,
		}}

	default:
		return nil
	}
}
