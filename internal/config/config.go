package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration for a nexus-core process, decoded from
// config.toml. Every section has a typed applyXDefaults/validateX pair
// mirroring the teacher's internal/config layout, generalized from a
// chat-gateway's sections (server/session/channels) to the turn engine's
// (server/model/sandbox/netpolicy/session/auth/mcp/logging/telemetry/retention).
type Config struct {
	Version   int              `toml:"version"`
	Server    ServerConfig     `toml:"server"`
	Model     ModelConfig      `toml:"model"`
	Sandbox   SandboxConfig    `toml:"sandbox"`
	NetPolicy NetPolicyConfig  `toml:"net_policy"`
	Session   SessionConfig    `toml:"session"`
	Auth      AuthConfig       `toml:"auth"`
	MCP       MCPConfig        `toml:"mcp"`
	Logging   LoggingConfig    `toml:"logging"`
	Telemetry TelemetryConfig  `toml:"telemetry"`
	Retention RetentionConfig  `toml:"retention"`
}

// ServerConfig configures internal/rpc's gRPC service and websocket
// notification fan-out (thread/start, turn/start, review/start).
type ServerConfig struct {
	Host        string `toml:"host"`
	GRPCPort    int    `toml:"grpc_port"`
	WSPort      int    `toml:"ws_port"`
	MetricsPort int    `toml:"metrics_port"`
}

// ModelConfig names the default provider and every configured backend a
// turn's ModelClient can be built from (internal/model).
type ModelConfig struct {
	DefaultProvider string                         `toml:"default_provider"`
	Providers       map[string]ModelProviderConfig `toml:"providers"`
}

// ModelProviderConfig configures one model backend: an OpenAI-compatible
// SSE endpoint, or an AWS Bedrock runtime region/model pair.
type ModelProviderConfig struct {
	// Kind selects the internal/model backend: "openai" or "bedrock".
	Kind string `toml:"kind"`

	// openai
	BaseURL string `toml:"base_url"`

	// APIKeyEnv names the environment variable internal/model reads the
	// actual credential from at client-construction time. The key itself
	// never lives on this struct, so a logged or serialized Config never
	// carries a secret.
	APIKeyEnv string `toml:"api_key_env"`

	// bedrock
	Region string `toml:"region"`

	Model               string        `toml:"model"`
	RequestTimeout      time.Duration `toml:"request_timeout"`
	SupportsParallel    bool          `toml:"supports_parallel_calls"`
	ContextWindowTokens int           `toml:"context_window_tokens"`
}

// SandboxConfig sets the process-wide default sandbox policy (C3) applied
// to a thread's exec/unifiedexec calls unless a turn overrides it.
type SandboxConfig struct {
	// DefaultPolicy is one of "untrusted", "on-failure", "on-request", "never",
	// matching the approval-mode vocabulary spec.md's C3 uses.
	DefaultPolicy string   `toml:"default_policy"`
	WritableRoots []string `toml:"writable_roots"`
	ReadOnlyRoots []string `toml:"read_only_roots"`
}

// NetPolicyConfig seeds the default network policy gate (C2) a sandboxed
// process runs under.
type NetPolicyConfig struct {
	DefaultAction string   `toml:"default_action"` // "allow" | "deny"
	AllowedHosts  []string `toml:"allowed_hosts"`
	AllowedCIDRs  []string `toml:"allowed_cidrs"`
}

// SessionConfig points the thread manager (C7) and rollout/statedb (C5) at
// their on-disk state.
type SessionConfig struct {
	SessionsDir    string `toml:"sessions_dir"`
	StateDBPath    string `toml:"statedb_path"`
	EventQueueSize int    `toml:"event_queue_size"`
}

// AuthConfig configures the signed resume tokens internal/rpc hands to
// untrusted clients for resume_thread, per SPEC_FULL's JWT row.
type AuthConfig struct {
	JWTSecret       string        `toml:"jwt_secret"`
	JWTSecretEnv    string        `toml:"jwt_secret_env"`
	ResumeTokenTTL  time.Duration `toml:"resume_token_ttl"`
}

// MCPConfig locates the MCP server manifest (decoded separately as YAML,
// per SPEC_FULL's "mcp_servers.yaml alongside TOML") and the OAuth2
// settings internal/mcptransport uses to refresh bearer tokens for remote
// MCP servers.
type MCPConfig struct {
	ServersFile string          `toml:"servers_file"`
	OAuth       MCPOAuthConfig  `toml:"oauth"`
}

// MCPOAuthConfig configures golang.org/x/oauth2's client-credentials flow
// for MCP HTTP transports that require bearer-token auth.
type MCPOAuthConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	TokenURL     string `toml:"token_url"`
}

// LoggingConfig configures the process-wide zerolog logger constructed in
// cmd/.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" | "console"
}

// TelemetryConfig configures the OTLP gRPC exporter backing C4/C6's
// dispatch-duration and turn spans.
type TelemetryConfig struct {
	Enabled        bool   `toml:"enabled"`
	OTLPEndpoint   string `toml:"otlp_endpoint"`
	ServiceName    string `toml:"service_name"`
}

// RetentionConfig drives the robfig/cron sweeps that prune expired
// approval requests and archived threads.
type RetentionConfig struct {
	PruneSchedule      string        `toml:"prune_schedule"` // six-field (seconds-enabled) cron expression
	ApprovalRequestTTL time.Duration `toml:"approval_request_ttl"` // reserved: no approval-request persistence layer exists yet
	ArchivedThreadTTL  time.Duration `toml:"archived_thread_ttl"`
}

// Load reads, $include-resolves, decodes, overlays environment overrides
// and defaults onto, and validates a TOML config file.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	if _, present := raw["version"]; present {
		if err := ValidateVersion(cfg.Version); err != nil {
			return nil, err
		}
	} else {
		cfg.Version = CurrentVersion
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigValidationError collects every validation issue found in one pass,
// matching the teacher's accumulate-then-report style rather than
// fail-fast on the first problem.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validScope(values map[string]bool, value string) bool {
	if value == "" {
		return true
	}
	return values[value]
}

var validSandboxPolicies = map[string]bool{
	"untrusted": true, "on-failure": true, "on-request": true, "never": true,
}

var validNetActions = map[string]bool{"allow": true, "deny": true}

var validLogFormats = map[string]bool{"json": true, "console": true}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	var issues []string

	if !validScope(validSandboxPolicies, cfg.Sandbox.DefaultPolicy) {
		issues = append(issues, `sandbox.default_policy must be "untrusted", "on-failure", "on-request", or "never"`)
	}
	if !validScope(validNetActions, cfg.NetPolicy.DefaultAction) {
		issues = append(issues, `net_policy.default_action must be "allow" or "deny"`)
	}
	if !validScope(validLogFormats, cfg.Logging.Format) {
		issues = append(issues, `logging.format must be "json" or "console"`)
	}
	if cfg.Session.EventQueueSize < 0 {
		issues = append(issues, "session.event_queue_size must be >= 0")
	}

	defaultProvider := strings.TrimSpace(cfg.Model.DefaultProvider)
	if defaultProvider != "" {
		if _, ok := cfg.Model.Providers[defaultProvider]; !ok {
			issues = append(issues, fmt.Sprintf("model.providers missing entry for default_provider %q", defaultProvider))
		}
	}
	for name, p := range cfg.Model.Providers {
		if p.Kind != "openai" && p.Kind != "bedrock" {
			issues = append(issues, fmt.Sprintf(`model.providers[%s].kind must be "openai" or "bedrock"`, name))
		}
		if p.Kind == "bedrock" && strings.TrimSpace(p.Region) == "" {
			issues = append(issues, fmt.Sprintf("model.providers[%s].region is required for a bedrock provider", name))
		}
	}

	if secret := strings.TrimSpace(cfg.Auth.JWTSecret); secret != "" && len(secret) < 32 {
		issues = append(issues, "auth.jwt_secret must be at least 32 characters for security")
	}

	if len(issues) == 0 {
		return nil
	}
	return &ConfigValidationError{Issues: issues}
}
