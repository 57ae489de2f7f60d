package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/kessler-labs/switchboard/internal/channel/discordchannel"
	"github.com/kessler-labs/switchboard/internal/channel/wsadapter"
	"github.com/kessler-labs/switchboard/internal/config"
	"github.com/kessler-labs/switchboard/internal/events"
	"github.com/kessler-labs/switchboard/internal/heartbeat"
	"github.com/kessler-labs/switchboard/internal/idempotency"
	"github.com/kessler-labs/switchboard/internal/policy"
	"github.com/kessler-labs/switchboard/internal/runtime"
	"github.com/kessler-labs/switchboard/internal/sessions"
)

// NewGatewayCommand returns the gateway subcommand.
func NewGatewayCommand() *cli.Command {
	return &cli.Command{
		Name:   "gateway",
		Usage:  "Start the switchboard runtime and its channel adapters",
		Action: runGateway,
	}
}

func runGateway(ctx context.Context, cmd *cli.Command) error {
	cfg := loadConfigOrDefaults(cmd)
	configureLogging(cfg, cmd.Bool("debug"))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	orch, _, cleanup, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	hbWriter := heartbeat.NewWriter(filepath.Join(config.HomePath(), "heartbeat.json"), func() heartbeat.Stats {
		return heartbeat.Stats{
			ActiveSessions:   orch.ActiveSessionCount(),
			ConnectedAdapter: orch.ConnectedAdapterCount(),
		}
	})
	hbWriter.Start()
	defer hbWriter.Stop()

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start runtime: %w", err)
	}

	slog.Info("switchboard gateway started")

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return orch.Dispose(shutdownCtx)
}

func loadConfigOrDefaults(cmd *cli.Command) *config.Config {
	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Warn("config not found, using defaults", "path", configPath, "error", err)
		cfg = &config.Config{}
	}
	return cfg
}

func configureLogging(cfg *config.Config, debugFlag bool) {
	logLevel := resolveLogLevel(cfg.Events.LogLevel)
	if debugFlag {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// buildOrchestrator wires an events.Bus, idempotency guard, session manager,
// policy resolver, and every enabled channel adapter into a runtime.
// Orchestrator ready to Start. The returned cleanup stops the guard's
// cleanup ticker, closes the idempotency store (a sqlite file handle when
// that backend is configured) and closes the bus; it does not close a
// sqlite session store and does not stop the orchestrator.
func buildOrchestrator(cfg *config.Config) (*runtime.Orchestrator, *events.Bus, func(), error) {
	bus := events.NewBus(cfg.Events.BufferSize)

	guard, closeGuard, err := buildGuard(cfg.Idempotency)
	if err != nil {
		bus.Close()
		return nil, nil, nil, fmt.Errorf("build idempotency guard: %w", err)
	}
	guard.StartCleanup()

	manager, err := buildSessionManager(cfg.SessionStore)
	if err != nil {
		guard.StopCleanup()
		closeGuard()
		bus.Close()
		return nil, nil, nil, fmt.Errorf("build session manager: %w", err)
	}

	orch := runtime.New(runtime.Config{
		Bus:            bus,
		SessionManager: manager,
		Guard:          guard,
		PolicyFor:      newPolicyResolver(cfg.Policy),
		Processor: runtime.ProcessorConfig{
			Mode: runtime.ModeCustom,
			// No ResponseGenerator or ToolProvider wired by default; an
			// embedder passes its own runtime.ProcessorConfig by calling
			// runtime.New directly instead of this CLI's wiring.
		},
		SessionCleanupInterval: cfg.SessionStore.CleanupInterval.Duration(),
		SessionCleanupCron:     cfg.SessionStore.CleanupCron,
	})

	cleanup := func() {
		guard.StopCleanup()
		closeGuard()
		bus.Close()
	}

	if cfg.Channels.WS != nil && cfg.Channels.WS.Enabled {
		path := cfg.Channels.WS.Path
		if path == "" {
			path = "/ws"
		}
		adapter := wsadapter.New(wsadapter.Config{
			Addr: fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
			Path: path,
		})
		if err := orch.RegisterChannel(adapter); err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("register ws channel: %w", err)
		}
	}

	if cfg.Channels.Discord != nil && cfg.Channels.Discord.Enabled {
		adapter, err := discordchannel.New(discordchannel.Config{Token: cfg.Channels.Discord.Token})
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("build discord channel: %w", err)
		}
		if err := orch.RegisterChannel(adapter); err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("register discord channel: %w", err)
		}
	}

	return orch, bus, cleanup, nil
}

func buildGuard(cfg config.IdempotencyConfig) (*idempotency.Guard, func(), error) {
	var store idempotency.Store
	closeFn := func() {}

	switch cfg.Backend {
	case "sqlite":
		s, err := idempotency.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		store = s
		closeFn = func() { _ = s.Close() }
	default:
		store = idempotency.NewMemStore()
	}

	guard := idempotency.NewGuard(store, idempotency.Config{
		LockTimeout:     cfg.LockTimeout.Duration(),
		RecordTTL:       cfg.RecordTTL.Duration(),
		RetryFailed:     cfg.RetryFailed,
		CleanupInterval: cfg.CleanupInterval.Duration(),
	})
	return guard, closeFn, nil
}

func buildSessionManager(cfg config.SessionStoreConfig) (*sessions.Manager, error) {
	var store sessions.Store
	if cfg.Backend == "sqlite" {
		s, err := sessions.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		store = s
	} else {
		store = sessions.NewMemStore()
	}

	return sessions.NewManager(store, sessions.Config{
		DefaultTimeout:  cfg.DefaultTimeout.Duration(),
		MaxHistorySize:  cfg.MaxHistorySize,
		CleanupInterval: cfg.CleanupInterval.Duration(),
	}), nil
}

// newPolicyResolver builds a policy.Executor per platform lazily, using the
// platform's preset if configured or the default preset otherwise, with the
// global room overrides applied to every one of them.
func newPolicyResolver(cfg config.PolicyConfig) func(roomKey string) *policy.Executor {
	overrides := policy.OverridesFromConfig(cfg.Overrides)

	var mu sync.Mutex
	byPlatform := make(map[string]*policy.Executor)

	return func(roomKey string) *policy.Executor {
		platform, _, _ := strings.Cut(roomKey, "/")

		mu.Lock()
		defer mu.Unlock()
		if e, ok := byPlatform[platform]; ok {
			return e
		}

		preset, ok := cfg.Presets[platform]
		if !ok {
			preset = cfg.Default
		}
		e := policy.NewExecutor(policy.FromPreset(preset), overrides...)
		byPlatform[platform] = e
		return e
	}
}

func resolveLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
