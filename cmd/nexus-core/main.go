// Package main provides the CLI entry point for nexus-core, the turn
// engine: codec, sandboxed tool dispatch, thread/session state, and
// review/sub-agent orchestration behind a JSON-RPC front door.
//
// # Basic Usage
//
// Start the server:
//
//	nexus-core serve --config nexus-core.toml
//
// # Environment Variables
//
//   - NEXUS_CORE_CONFIG: path to the TOML config file (default: nexus-core.toml)
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/nexus-core/agentcore/internal/config"
	"github.com/nexus-core/agentcore/internal/dispatch"
	"github.com/nexus-core/agentcore/internal/mcptransport"
	"github.com/nexus-core/agentcore/internal/model"
	"github.com/nexus-core/agentcore/internal/netpolicy"
	"github.com/nexus-core/agentcore/internal/observability"
	"github.com/nexus-core/agentcore/internal/retention"
	"github.com/nexus-core/agentcore/internal/review"
	"github.com/nexus-core/agentcore/internal/rpc"
	"github.com/nexus-core/agentcore/internal/statedb"
	"github.com/nexus-core/agentcore/internal/threadmgr"
	"github.com/nexus-core/agentcore/internal/turn"
	"github.com/nexus-core/agentcore/internal/unifiedexec"
	"github.com/nexus-core/agentcore/pkg/types"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "nexus-core",
		Short:        "nexus-core turn engine",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd())
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON-RPC server and websocket notification fan-out",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = os.Getenv("NEXUS_CORE_CONFIG")
			}
			if configPath == "" {
				configPath = "nexus-core.toml"
			}
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file (or set NEXUS_CORE_CONFIG)")
	return cmd
}

// sandboxAvailable reports whether this host actually has the sandbox
// helper a given SandboxType needs on PATH, matching the binaries
// internal/sandbox.Transform shells out to.
func sandboxAvailable(t types.SandboxType) bool {
	switch t {
	case types.SandboxMacosSeatbelt:
		_, err := exec.LookPath("sandbox-exec")
		return err == nil
	case types.SandboxLinuxSeccomp:
		_, err := exec.LookPath("codex-linux-sandbox")
		return err == nil
	case types.SandboxWindowsRestricted:
		return true
	default:
		return false
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("nexus-core: load config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	logger.Info(ctx, "nexus-core starting", "version", version, "config", configPath)

	_, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
	})
	defer shutdownTracer(context.Background())

	if cfg.MCP.ServersFile != "" {
		servers, err := config.LoadMCPServers(cfg.MCP.ServersFile)
		if err != nil {
			return fmt.Errorf("nexus-core: load mcp servers: %w", err)
		}
		for _, entry := range servers {
			if entry.OAuth {
				// Built eagerly so a misconfigured oauth block (missing
				// token_url) surfaces at startup rather than on first call;
				// the client itself is handed to each MCP tool handler once
				// internal/dispatch registers one for entry.Name.
				_ = mcptransport.NewHTTPClient(ctx, cfg.MCP.OAuth)
			}
		}
		logger.Info(ctx, "nexus-core: mcp servers loaded", "count", len(servers))
	}

	store, err := statedb.Open(ctx, cfg.Session.StateDBPath)
	if err != nil {
		return fmt.Errorf("nexus-core: open statedb: %w", err)
	}
	defer store.Close()

	modelClient, err := model.NewClient(cfg.Model)
	if err != nil {
		return fmt.Errorf("nexus-core: build model client: %w", err)
	}

	netMode := netpolicy.ModeLimited
	if cfg.NetPolicy.DefaultAction == "allow" {
		netMode = netpolicy.ModeFull
	}
	netPolicy := netpolicy.NewPolicy(netpolicy.Config{
		Enabled:    true,
		Mode:       netMode,
		AllowHosts: cfg.NetPolicy.AllowedHosts,
	})

	metrics := observability.NewMetrics()

	registry := dispatch.NewRegistry()
	registry.Register("local_shell", dispatch.NewLocalShellHandler(unifiedexec.NewManager(), netPolicy, metrics))

	// MCP tool input schemas are registered here as each MCP server's
	// tool list is discovered; none is wired in yet since this process
	// does not itself speak the MCP handshake, so the registry starts
	// empty and validation is a no-op until a transport populates it.
	schemas := dispatch.NewSchemaRegistry()

	dispatcher := dispatch.NewDispatcher(registry,
		dispatch.WithMeter(otel.Meter("nexus-core/dispatch")),
		dispatch.WithLogger(log),
		dispatch.WithSchemas(schemas),
	)

	runtime := turn.NewRuntime(modelClient, store, dispatcher, turn.WithSandboxAvailability(sandboxAvailable))

	threads := threadmgr.NewManager(runtime, store, cfg.Session.SessionsDir, threadmgr.WithQueueSize(cfg.Session.EventQueueSize))
	reviews := review.NewManager(threads)

	tokens, err := rpc.NewTokenService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("nexus-core: build token service: %w", err)
	}
	hub := rpc.NewHub(log)
	rpcServer := rpc.NewServer(threads, reviews, tokens, hub, log)

	var scheduler *retention.Scheduler
	if cfg.Retention.PruneSchedule != "" {
		scheduler, err = retention.NewScheduler(cfg.Retention, store, log)
		if err != nil {
			return fmt.Errorf("nexus-core: build retention scheduler: %w", err)
		}
		scheduler.Start()
	}

	rpcAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort)
	rpcSrv := &http.Server{Addr: rpcAddr, Handler: rpcServer}

	wsAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.WSPort)
	wsSrv := &http.Server{Addr: wsAddr, Handler: hub}

	go func() {
		logger.Info(ctx, "nexus-core: json-rpc listening", "addr", rpcAddr)
		if err := rpcSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "nexus-core: rpc serve failed", "error", err)
		}
	}()
	go func() {
		logger.Info(ctx, "nexus-core: websocket listening", "addr", wsAddr)
		if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "nexus-core: ws serve failed", "error", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	logger.Info(ctx, "nexus-core: shutdown signal received")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	if err := threads.RemoveAndCloseAllThreads(shutdownCtx); err != nil {
		logger.Error(ctx, "nexus-core: close threads failed", "error", err)
	}
	if err := rpcSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("nexus-core: rpc shutdown: %w", err)
	}
	if err := wsSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("nexus-core: ws shutdown: %w", err)
	}
	logger.Info(ctx, "nexus-core stopped gracefully")
	return nil
}
