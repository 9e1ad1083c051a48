package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/forgeworks/teamhub"
	"github.com/forgeworks/teamhub/chat"
	"github.com/forgeworks/teamhub/container"
	"github.com/forgeworks/teamhub/serve"
	"github.com/forgeworks/teamhub/store"
)

func serveCmd(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":8080", "listen address for the REST/WS API")
	dbPath := fs.String("db", "", "path to a SQLite database file (default: JSON snapshot teamhub.snapshot.json)")
	memoryPath := fs.String("memory-store", "", "path to a JSON snapshot file instead of SQLite")
	chatHost := fs.String("chat-host", "127.0.0.1", "IRC host agents connect their chat clients through")
	baseDir := fs.String("containers-base", "/run/teamhub", "base directory for per-agent workspace bind mounts")
	image := fs.String("image", container.DefaultImage, "default container image for agents")
	token := fs.String("token", "", "static bearer token accepted for all requests (dev convenience)")
	retention := fs.Duration("retention", store.DefaultDeletedTeamRetention, "how long deleted teams remain queryable before the sweep purges them")
	sweepSchedule := fs.String("sweep-schedule", store.DefaultSweepSchedule, "cron expression for the retention sweep")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: teamhubd serve [options]

Starts the orchestrator: REST + WebSocket API, heartbeat ingestion,
liveness tracking, and the retention sweep.

Options:`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(exitUsage)
	}

	logger := slog.Default()

	teamStore, templateStore, closeStore, err := openStore(*dbPath, *memoryPath)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(exitDependency)
	}
	defer closeStore()

	if err := seedBuiltinTemplates(templateStore); err != nil {
		logger.Error("failed to seed builtin templates", "error", err)
		os.Exit(exitInternal)
	}

	driver := container.NewDriver(*baseDir, container.WithDefaultImage(*image))
	if !driver.Available() {
		logger.Warn("container runtime unavailable; teams will fail to materialize until one is reachable")
	}

	sidecar := container.NewSidecar(driver)
	broadcaster := teamhub.NewBroadcaster()
	router := teamhub.NewRouter(broadcaster, 500)
	consoleHub := teamhub.NewConsoleHub(driver)

	lifecycle := teamhub.NewLifecycleManager(router, broadcaster,
		teamhub.WithContainerDriver(driver),
		teamhub.WithChatClientFactory(chat.Factory(*chatHost)),
		teamhub.WithTeamStore(teamStore),
		teamhub.WithTemplateStore(templateStore),
		teamhub.WithEscalator(sidecar),
		teamhub.WithLogger(logger),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := lifecycle.Rehydrate(ctx); err != nil {
		logger.Error("failed to rehydrate teams from store", "error", err)
		os.Exit(exitInternal)
	}
	lifecycle.Liveness().Start(ctx)
	defer lifecycle.Liveness().Stop()

	sweeper := store.NewRetentionScheduler(teamStore, *retention)
	if err := sweeper.Start(*sweepSchedule); err != nil {
		logger.Error("failed to start retention sweeper", "error", err)
		os.Exit(exitInternal)
	}
	defer sweeper.Stop()

	auth := buildAuthenticator(*token)

	srv := serve.NewServer(serve.Config{Addr: *addr}, lifecycle, broadcaster, router, consoleHub, sidecar, auth)

	logger.Info("teamhubd listening", "addr", *addr)
	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited with error", "error", err)
		os.Exit(exitInternal)
	}
}

// buildAuthenticator wires a StaticBearerAuthenticator for the
// operator-supplied dev token, chained with a fresh ExchangeTokenStore
// so short-lived console/WS handshake tokens work even when no static
// token is configured.
func buildAuthenticator(token string) serve.TokenAuthenticator {
	exchange := serve.NewExchangeTokenStore(serve.DefaultExchangeTokenTTL)
	if token == "" {
		return exchange
	}
	tokens := map[string]teamhub.Principal{
		token: {ID: "static-token", TenantID: "dev"},
	}
	return serve.ChainAuthenticators(serve.NewStaticBearerAuthenticator(tokens), exchange)
}

func openStore(dbPath, memoryPath string) (teamhub.TeamStore, teamhub.TemplateStore, func(), error) {
	switch {
	case dbPath != "":
		s, err := store.NewSQLiteStore(dbPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		if err := s.Init(); err != nil {
			return nil, nil, nil, fmt.Errorf("init sqlite store: %w", err)
		}
		return s, s, func() { _ = s.Close() }, nil
	case memoryPath != "":
		s := store.NewMemory(memoryPath)
		if err := s.Init(); err != nil {
			return nil, nil, nil, fmt.Errorf("init memory store: %w", err)
		}
		return s, s, func() {}, nil
	default:
		s := store.NewMemory("teamhub.snapshot.json")
		if err := s.Init(); err != nil {
			return nil, nil, nil, fmt.Errorf("init memory store: %w", err)
		}
		return s, s, func() {}, nil
	}
}

func seedBuiltinTemplates(templateStore teamhub.TemplateStore) error {
	builtins, err := teamhub.LoadBuiltinTemplates()
	if err != nil {
		return err
	}
	for _, tmpl := range builtins {
		if err := templateStore.SaveTemplate(tmpl); err != nil {
			return fmt.Errorf("seed %s: %w", tmpl.Name, err)
		}
	}
	return nil
}
