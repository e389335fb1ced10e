// Package model implements the ModelClient backends a turn's Runtime
// streams against: an OpenAI-compatible SSE endpoint and AWS Bedrock's
// ConverseStream API, selected per call by TurnContext.ModelInfo.Provider.
package model

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/nexus-core/agentcore/internal/config"
	"github.com/nexus-core/agentcore/internal/turn"
	"github.com/nexus-core/agentcore/pkg/types"
)

// backend opens one provider's stream for a single turn. Both
// openaiBackend and bedrockBackend implement it; Client picks between them
// per call.
type backend interface {
	stream(ctx context.Context, tc types.TurnContext, p turn.Prompt) (io.ReadCloser, error)
}

// Client dispatches turn.Runtime's Stream calls to the configured provider
// backend, resolved by TurnContext.ModelInfo.Provider falling back to
// config.ModelConfig.DefaultProvider.
//
// Grounded on the teacher's provider-keyed client registry pattern
// (multiple named backends behind one interface, selected per call rather
// than at construction); generalized here from chat providers to model
// providers.
type Client struct {
	defaultProvider string

	mu       sync.RWMutex
	backends map[string]backend
}

// NewClient builds backends for every entry in cfg.Providers, erroring on
// the first provider whose kind or required fields are unusable.
func NewClient(cfg config.ModelConfig) (*Client, error) {
	c := &Client{
		defaultProvider: cfg.DefaultProvider,
		backends:        make(map[string]backend, len(cfg.Providers)),
	}
	for name, p := range cfg.Providers {
		b, err := newBackend(p)
		if err != nil {
			return nil, fmt.Errorf("model: provider %q: %w", name, err)
		}
		c.backends[name] = b
	}
	return c, nil
}

func newBackend(p config.ModelProviderConfig) (backend, error) {
	switch p.Kind {
	case "openai":
		return newOpenAIBackend(p)
	case "bedrock":
		return newBedrockBackend(p)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", p.Kind)
	}
}

// Stream implements turn.ModelClient, resolving tc.ModelInfo.Provider (or
// the configured default, if the turn context names none) to a backend and
// delegating to it.
func (c *Client) Stream(ctx context.Context, tc types.TurnContext, p turn.Prompt) (io.ReadCloser, error) {
	name := tc.ModelInfo.Provider
	if name == "" {
		name = c.defaultProvider
	}

	c.mu.RLock()
	b, ok := c.backends[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("model: no provider configured for %q", name)
	}
	return b.stream(ctx, tc, p)
}
