package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/unitd/internal/api"
	"github.com/mattjoyce/unitd/internal/dispatch"
	"github.com/mattjoyce/unitd/internal/events"
	"github.com/mattjoyce/unitd/internal/lock"
	"github.com/mattjoyce/unitd/internal/log"
	"github.com/mattjoyce/unitd/internal/metrics"
	"github.com/mattjoyce/unitd/internal/tty"
)

// rootExitGrace lets API clients observe session.finished before the
// listener goes away.
const rootExitGrace = 500 * time.Millisecond

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	stayUp := fs.Bool("stay", false, "Keep serving after the root unit exits")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	cfg, err := loadConfig(*configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.SetupTo(os.Stdout, cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("unitd starting", "version", version, "config", cfg.SourcePath)

	pidLockPath := lock.PathFor(cfg.State.Path)
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			if pid, herr := lock.Holder(pidLockPath); herr == nil {
				logger.Error("another unitd is serving this state", "path", pidLockPath, "pid", pid)
				return 1
			}
		}
		logger.Error("failed to acquire PID lock", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()

	h, err := newHost(cfg)
	if err != nil {
		logger.Error("failed to create host", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := events.NewHub(1024)
	var m *metrics.Metrics
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metricsHandler = m.Handler()
	}

	screen := tty.NewBroadcast(tty.DefaultScrollback)
	exitCh := make(chan int, 1)
	sess := dispatch.New(sessionConfig(cfg, func(code int) { exitCh <- code }), h, screen, hub, m)
	logger = logger.With("session_id", sess.ID())

	store, stopJournal, err := startJournal(ctx, cfg.State.Path, hub, sess.ID(), cfg.Session.Prefix)
	if err != nil {
		logger.Error("failed to start journal", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer stopJournal()
	logger.Info("journal opened", "path", cfg.State.Path)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 2)

	go func() {
		if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("session: %w", err)
		}
	}()

	if cfg.API.Enabled {
		apiServer := api.New(api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.Auth.APIKey,
			Tokens: apiTokens(cfg),
		}, api.Deps{
			Session:  sess,
			Input:    sess,
			Terminal: screen,
			History:  store,
			Events:   hub,
			Metrics:  metricsHandler,
		}, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	sess.Resize(cfg.Session.Cols, cfg.Session.Rows)
	logger.Info("unitd running (press Ctrl+C to stop)", "root", cfg.Session.RootArgs)

	code := 0
	for {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
			return code
		case err := <-errCh:
			logger.Error("component failed", "error", err)
			cancel()
			return 1
		case status := <-exitCh:
			code = exitCode(status)
			logger.Info("root unit finished", "status", status)
			if *stayUp {
				continue
			}
			time.Sleep(rootExitGrace)
			cancel()
			logger.Info("unitd stopped")
			return code
		}
	}
}
