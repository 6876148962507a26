package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"autoportal/internal/config"
	"autoportal/internal/creds"
	"autoportal/internal/daemon"
	"autoportal/internal/logging"
	"autoportal/internal/netwatch"
	"autoportal/internal/notify"
	"autoportal/internal/portal"
	"autoportal/internal/server"
	"autoportal/internal/state"
	"autoportal/internal/storage"
)

// portalStack bundles the constructed protocol components; they share one
// HTTP client and are built once per process.
type portalStack struct {
	parser    *portal.Parser
	prober    *portal.Prober
	submitter *portal.Submitter
	session   *portal.Session
}

func buildStack(cfg config.Config) *portalStack {
	client := portal.NewHTTPClient(time.Duration(cfg.HTTPTimeoutSeconds) * time.Second)
	parser := portal.NewParser()
	prober := portal.NewProber(client, parser, cfg.CheckURL)
	submitter := portal.NewSubmitter(client, cfg.PortalHost, cfg.LoginURL, cfg.LogoutURL)

	session := portal.NewSession(prober, parser, submitter)
	session.MaxAttempts = cfg.LoginAttempts
	session.RetryInitialDelay = time.Duration(cfg.RetryInitialSeconds) * time.Second
	session.VerifySettle = time.Duration(cfg.VerifySettleSeconds) * time.Second

	return &portalStack{parser: parser, prober: prober, submitter: submitter, session: session}
}

func runDaemon(isService bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logging.Setup(cfg.DataDirectory, isService); err != nil {
		return fmt.Errorf("initialise logging: %w", err)
	}

	credStore := creds.NewStore()
	if _, err := credStore.Get(); err != nil {
		return fmt.Errorf("cannot read credentials (run 'autoportal setup' first): %w", err)
	}

	statusStore, err := state.NewStore(filepath.Join(cfg.DataDirectory, "state.json"))
	if err != nil {
		return fmt.Errorf("initialise state store: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	history, err := storage.New(ctx, filepath.Join(cfg.DataDirectory, "history.db"))
	if err != nil {
		return fmt.Errorf("initialise history store: %w", err)
	}
	defer history.Close()

	watcher := netwatch.New(time.Duration(cfg.WatcherPollSeconds) * time.Second)
	watcher.Start()
	defer watcher.Stop()

	stack := buildStack(cfg)
	hub := server.NewHub()

	d := daemon.New(daemon.Options{
		Session:       stack.session,
		Credentials:   credStore,
		Status:        statusStore,
		History:       history,
		Notifier:      notify.New(cfg.Notifications),
		Publisher:     hub,
		Events:        watcher.Events(),
		MinInterval:   time.Duration(cfg.MinIntervalSeconds) * time.Second,
		MaxInterval:   time.Duration(cfg.MaxIntervalSeconds) * time.Second,
		TriggerSettle: time.Duration(cfg.TriggerSettleSeconds) * time.Second,
		HistoryLimit:  cfg.HistoryLimit,
	})

	var srv *server.Server
	if cfg.ServerEnabled {
		srv = server.New(cfg.ServerAddr, statusStore, history, d, hub)
		srv.Start()
		log.Printf("status server listening on %s", cfg.ServerAddr)
	}

	err = d.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			log.Printf("status server shutdown: %v", serr)
		}
	}

	log.Printf("daemon shutdown complete")
	return err
}
