package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medirunner/console/internal/config"
	"github.com/medirunner/console/internal/logging"
	"github.com/medirunner/console/internal/mockrobot"
)

func main() {
	cfg, err := config.LoadMockRobot()
	if err != nil {
		slog.Error("failed to load mockrobot config", "error", err)
		os.Exit(1)
	}

	logFile, err := logging.Setup(cfg.LogLevel, cfg.LogFile, os.Stdout)
	if err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}
	defer logFile.Close()

	slog.Info("mockrobot config loaded",
		"bind_addr", cfg.BindAddr,
		"telemetry_interval", cfg.TelemetryInterval,
		"frame_interval", cfg.FrameInterval,
		"initial_battery", cfg.InitialBattery,
		"frame_size", [2]int{cfg.FrameWidth, cfg.FrameHeight},
	)

	robot := mockrobot.NewServer(mockrobot.Options{
		TelemetryInterval: cfg.TelemetryInterval,
		FrameInterval:     cfg.FrameInterval,
		InitialBattery:    cfg.InitialBattery,
		FrameWidth:        cfg.FrameWidth,
		FrameHeight:       cfg.FrameHeight,
		JPEGQuality:       cfg.JPEGQuality,
	})
	srv := &http.Server{Addr: cfg.BindAddr, Handler: robot.Handler(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		slog.Info("mockrobot listening", "addr", cfg.BindAddr, "ws", "ws://"+cfg.BindAddr+"/ws?robotId=robot-01")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mockrobot server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	robot.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("mockrobot shutdown failed", "error", err)
	}
}
