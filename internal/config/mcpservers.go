package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MCPServerEntry describes one MCP server internal/dispatch (C4) can route
// tool calls to: either a stdio-launched subprocess or an HTTP(S) endpoint.
type MCPServerEntry struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	URL     string            `yaml:"url,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`

	// OAuth, when true, routes this server's HTTP transport through
	// MCPConfig.OAuth's client-credentials flow for bearer-token refresh.
	OAuth bool `yaml:"oauth,omitempty"`
}

// mcpServersFile is the top-level shape of mcp_servers.yaml.
type mcpServersFile struct {
	Servers []MCPServerEntry `yaml:"servers"`
}

// LoadMCPServers decodes the MCP server manifest named by MCPConfig.ServersFile.
// Kept as YAML rather than folded into config.toml, per SPEC_FULL's domain
// stack table pairing gopkg.in/yaml.v3 with exactly this file.
func LoadMCPServers(path string) ([]MCPServerEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mcp servers file: %w", err)
	}
	var file mcpServersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse mcp servers file %s: %w", path, err)
	}
	for i, entry := range file.Servers {
		if entry.Name == "" {
			return nil, fmt.Errorf("mcp servers file %s: entry %d is missing name", path, i)
		}
		if entry.Command == "" && entry.URL == "" {
			return nil, fmt.Errorf("mcp servers file %s: server %q needs command or url", path, entry.Name)
		}
	}
	return file.Servers, nil
}
