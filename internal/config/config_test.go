package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadAppliesDefaultsAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.toml", `
[model]
default_provider = "openai"

[model.providers.openai]
kind = "openai"
base_url = "https://api.openai.com/v1"
api_key_env = "OPENAI_API_KEY"
model = "gpt-5"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.GRPCPort != 7831 {
		t.Fatalf("expected default grpc port 7831, got %d", cfg.Server.GRPCPort)
	}
	if cfg.Sandbox.DefaultPolicy != "on-failure" {
		t.Fatalf("expected default sandbox policy on-failure, got %q", cfg.Sandbox.DefaultPolicy)
	}
	if cfg.NetPolicy.DefaultAction != "deny" {
		t.Fatalf("expected default net policy deny, got %q", cfg.NetPolicy.DefaultAction)
	}
	if cfg.Version != CurrentVersion {
		t.Fatalf("expected version defaulted to %d, got %d", CurrentVersion, cfg.Version)
	}
	if cfg.Model.Providers["openai"].Model != "gpt-5" {
		t.Fatalf("expected provider model gpt-5, got %q", cfg.Model.Providers["openai"].Model)
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sandbox.toml", `
[sandbox]
default_policy = "never"
writable_roots = ["/workspace"]
`)
	path := writeFile(t, dir, "config.toml", `
"$include" = "sandbox.toml"

[server]
host = "0.0.0.0"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sandbox.DefaultPolicy != "never" {
		t.Fatalf("expected included sandbox policy never, got %q", cfg.Sandbox.DefaultPolicy)
	}
	if len(cfg.Sandbox.WritableRoots) != 1 || cfg.Sandbox.WritableRoots[0] != "/workspace" {
		t.Fatalf("expected included writable roots, got %v", cfg.Sandbox.WritableRoots)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Fatalf("expected the including file's own host to win, got %q", cfg.Server.Host)
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.toml", `"$include" = "b.toml"`)
	path := writeFile(t, dir, "b.toml", `"$include" = "a.toml"`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected an include-cycle error")
	}
}

func TestLoadRejectsInvalidSandboxPolicy(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.toml", `
[sandbox]
default_policy = "yolo"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected a validation error")
	}
	var ve *ConfigValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ConfigValidationError, got %T", err)
	}
	if len(ve.Issues) != 1 {
		t.Fatalf("expected exactly one issue, got %v", ve.Issues)
	}
}

func TestLoadRejectsMissingDefaultProvider(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.toml", `
[model]
default_provider = "anthropic"
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a default_provider with no matching entry")
	}
}

func TestApplyEnvOverridesWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.toml", `
[server]
host = "file-host"
`)
	t.Setenv("NEXUS_CORE_HOST", "env-host")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Host != "env-host" {
		t.Fatalf("expected env override to win, got %q", cfg.Server.Host)
	}
}

func TestLoadMCPServersValidatesEntries(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "mcp_servers.yaml", `
servers:
  - name: filesystem
    command: mcp-server-filesystem
    args: ["--root", "/workspace"]
  - name: search
    url: https://mcp.example.com/search
    oauth: true
`)

	servers, err := LoadMCPServers(path)
	if err != nil {
		t.Fatalf("LoadMCPServers: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}
	if servers[0].Command != "mcp-server-filesystem" {
		t.Fatalf("unexpected command: %q", servers[0].Command)
	}
	if !servers[1].OAuth {
		t.Fatal("expected the second server's oauth flag to be true")
	}
}

func TestLoadMCPServersRejectsMissingCommandAndURL(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "mcp_servers.yaml", `
servers:
  - name: broken
`)

	if _, err := LoadMCPServers(path); err == nil {
		t.Fatal("expected an error for a server with neither command nor url")
	}
}
