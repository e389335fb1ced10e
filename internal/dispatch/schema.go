package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaRegistry compiles and caches the JSON Schema each MCP tool
// advertises as its inputSchema, so a call's payload can be rejected
// before it ever reaches a Handler. Function and custom tools carry no
// schema here; the model API itself enforces their argument shape.
//
// Grounded on turn.ToolSpec.Schema, the same json.RawMessage an MCP
// server hands the prompt builder to advertise a tool's parameters —
// this registry validates a call's Payload against the matching
// ToolSpec.Schema an MCP transport registered at startup.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

// NewSchemaRegistry returns an empty registry; tools with no registered
// schema are dispatched without validation.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: make(map[string]*jsonschema.Schema)}
}

// Register compiles schemaJSON (a JSON Schema document) and associates it
// with toolName. Replaces any schema previously registered for the name.
func (r *SchemaRegistry) Register(toolName string, schemaJSON json.RawMessage) error {
	compiler := jsonschema.NewCompiler()
	resourceURL := "mem://" + toolName
	if err := compiler.AddResource(resourceURL, strings.NewReader(string(schemaJSON))); err != nil {
		return fmt.Errorf("dispatch: add schema resource for %q: %w", toolName, err)
	}
	schema, err := compiler.Compile(resourceURL)
	if err != nil {
		return fmt.Errorf("dispatch: compile schema for %q: %w", toolName, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[toolName] = schema
	return nil
}

// Validate checks payload against toolName's registered schema. A tool
// with no registered schema always validates.
func (r *SchemaRegistry) Validate(toolName string, payload json.RawMessage) error {
	r.mu.RLock()
	schema, ok := r.schemas[toolName]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return fmt.Errorf("dispatch: tool %q payload is not valid JSON: %w", toolName, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("dispatch: tool %q payload failed schema validation: %w", toolName, err)
	}
	return nil
}
