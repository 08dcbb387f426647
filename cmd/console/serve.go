package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/medirunner/console/internal/api"
	"github.com/medirunner/console/internal/config"
	"github.com/medirunner/console/internal/controller"
	"github.com/medirunner/console/internal/fleet"
	"github.com/medirunner/console/internal/journal"
	"github.com/medirunner/console/internal/logging"
	"github.com/medirunner/console/internal/metrics"
	"github.com/medirunner/console/internal/netutil"
	"github.com/medirunner/console/internal/panorama"
	"github.com/medirunner/console/internal/session"
)

const journalBufferSize = 1000

func serveCmd() *cobra.Command {
	var connectTo string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the console HTTP API",
		Long: `Start the console API. The robot session starts disconnected unless
--connect names a robot to dial at startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(connectTo)
		},
	}
	cmd.Flags().StringVar(&connectTo, "connect", "", "Robot id to connect to at startup")
	return cmd
}

func runServe(connectTo string) error {
	cfg, err := config.LoadConsole()
	if err != nil {
		return fmt.Errorf("load console config: %w", err)
	}
	logFile, err := logging.Setup(cfg.LogLevel, cfg.LogFile, os.Stdout)
	if err != nil {
		return fmt.Errorf("logger setup failed: %w", err)
	}
	defer logFile.Close()

	slog.Info("console config loaded",
		"ws_url", cfg.WSURL,
		"bind_addr", cfg.BindAddr,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
		"log_capacity", cfg.LogCapacity,
		"ping_timeout", cfg.PingTimeout,
		"journal_dir", cfg.JournalDir,
		"panorama_dir", cfg.PanoramaDir,
		"fleet_db", cfg.FleetDBPath,
	)

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		return fmt.Errorf("select bind address %s: %w", cfg.BindAddr, err)
	}

	robots, err := fleet.Open(cfg.FleetDBPath)
	if err != nil {
		ln.Close()
		return err
	}
	defer func() {
		if err := robots.Close(); err != nil {
			slog.Debug("fleet close failed", "error", err)
		}
	}()

	panos, err := panorama.NewStore(cfg.PanoramaDir)
	if err != nil {
		ln.Close()
		return fmt.Errorf("create panorama store %s: %w", cfg.PanoramaDir, err)
	}

	opts := session.Options{
		Dialer:      session.GatewayDialer{BaseURL: cfg.WSURL},
		Registry:    robots,
		Logger:      slog.Default(),
		LogCapacity: cfg.LogCapacity,
		PingTimeout: cfg.PingTimeout,
		DialTimeout: cfg.DialTimeout,
	}

	var metricsHandler http.Handler
	var rec *metrics.Recorder
	if cfg.EnableMetrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec = metrics.New(reg)
		opts.Metrics = rec
		metricsHandler = metrics.Handler(reg)
	}

	sess := session.New(opts)
	if rec != nil {
		rec.ObserveSession(sess)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jw := journal.NewWriter(cfg.JournalDir, "session", journalBufferSize, cfg.JournalMaxMB)
	journalEvents, detachJournal := sess.Watch()
	go journal.Follow(ctx, jw, journalEvents)

	archiveEvents, detachArchive := sess.Watch()
	go panorama.NewArchiver(panos).Run(ctx, archiveEvents)

	svc := controller.NewService(sess, robots, panos)
	h := api.NewServer(svc, api.Options{Events: sess, Metrics: metricsHandler})
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		addr := ln.Addr().String()
		slog.Info("console listening", "addr", addr, "docs", "http://"+addr+"/docs")
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if connectTo != "" {
		if err := sess.Connect(ctx, connectTo); err != nil {
			slog.Warn("startup connect failed", "robot_id", connectTo, "error", err)
		}
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		slog.Error("console server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("console shutdown failed", "error", err)
	}
	sess.Disconnect()
	detachArchive()
	detachJournal()
	if err := jw.Close(); err != nil {
		slog.Debug("journal close failed", "error", err)
	}
	return serveErr
}
