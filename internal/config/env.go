package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides lets deployment-time environment variables win over
// whatever config.toml says, following the teacher's NEXUS_*/DATABASE_URL
// convention in internal/config/config.go's applyEnvOverrides.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if v := strings.TrimSpace(os.Getenv("NEXUS_CORE_HOST")); v != "" {
		cfg.Server.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("NEXUS_CORE_GRPC_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.GRPCPort = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("NEXUS_CORE_WS_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.WSPort = parsed
		}
	}

	if v := strings.TrimSpace(os.Getenv("NEXUS_CORE_SESSIONS_DIR")); v != "" {
		cfg.Session.SessionsDir = v
	}
	if v := strings.TrimSpace(os.Getenv("NEXUS_CORE_STATEDB_PATH")); v != "" {
		cfg.Session.StateDBPath = v
	}

	if v := strings.TrimSpace(os.Getenv("NEXUS_CORE_JWT_SECRET")); v != "" {
		cfg.Auth.JWTSecret = v
	} else if cfg.Auth.JWTSecretEnv != "" {
		if v := strings.TrimSpace(os.Getenv(cfg.Auth.JWTSecretEnv)); v != "" {
			cfg.Auth.JWTSecret = v
		}
	}
	if v := strings.TrimSpace(os.Getenv("NEXUS_CORE_RESUME_TOKEN_TTL")); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Auth.ResumeTokenTTL = parsed
		}
	}

	if v := strings.TrimSpace(os.Getenv("NEXUS_CORE_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("NEXUS_CORE_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
		cfg.Telemetry.Enabled = true
	}
}
