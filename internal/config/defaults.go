package config

import "time"

// applyDefaults fills every zero-valued field with its production default,
// mirroring the teacher's per-section applyXDefaults split in config.go.
func applyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	applyServerDefaults(&cfg.Server)
	applySandboxDefaults(&cfg.Sandbox)
	applyNetPolicyDefaults(&cfg.NetPolicy)
	applySessionDefaults(&cfg.Session)
	applyAuthDefaults(&cfg.Auth)
	applyMCPDefaults(&cfg.MCP)
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyRetentionDefaults(&cfg.Retention)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.GRPCPort == 0 {
		cfg.GRPCPort = 7831
	}
	if cfg.WSPort == 0 {
		cfg.WSPort = 7832
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = 9090
	}
}

func applySandboxDefaults(cfg *SandboxConfig) {
	if cfg.DefaultPolicy == "" {
		cfg.DefaultPolicy = "on-failure"
	}
}

func applyNetPolicyDefaults(cfg *NetPolicyConfig) {
	if cfg.DefaultAction == "" {
		cfg.DefaultAction = "deny"
	}
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.SessionsDir == "" {
		cfg.SessionsDir = ".nexus-core/sessions"
	}
	if cfg.StateDBPath == "" {
		cfg.StateDBPath = ".nexus-core/state.db"
	}
	if cfg.EventQueueSize == 0 {
		cfg.EventQueueSize = 256
	}
}

func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.ResumeTokenTTL == 0 {
		cfg.ResumeTokenTTL = 24 * time.Hour
	}
}

func applyMCPDefaults(cfg *MCPConfig) {
	if cfg.ServersFile == "" {
		cfg.ServersFile = "mcp_servers.yaml"
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "nexus-core"
	}
}

func applyRetentionDefaults(cfg *RetentionConfig) {
	if cfg.PruneSchedule == "" {
		cfg.PruneSchedule = "@hourly"
	}
	if cfg.ApprovalRequestTTL == 0 {
		cfg.ApprovalRequestTTL = 15 * time.Minute
	}
	if cfg.ArchivedThreadTTL == 0 {
		cfg.ArchivedThreadTTL = 30 * 24 * time.Hour
	}
}
