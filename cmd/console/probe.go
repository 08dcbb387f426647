package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/medirunner/console/internal/config"
	"github.com/medirunner/console/internal/logbuf"
	"github.com/medirunner/console/internal/logging"
	"github.com/medirunner/console/internal/relay"
	"github.com/medirunner/console/internal/session"
)

func probeCmd() *cobra.Command {
	var (
		robotID  string
		count    int
		interval time.Duration
		wsURL    string
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Connect to a robot, ping it and print the session log",
		Long: `Open a session to one robot, send --count pings --interval apart and wait for
each to be answered or time out. Every session log entry is printed as it
happens. Exits non-zero if any ping went unanswered.

Examples:
  console probe --robot robot-01
  console probe --robot robot-01 --count 10 --interval 500ms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConsole()
			if err != nil {
				return fmt.Errorf("load console config: %w", err)
			}
			if wsURL != "" {
				cfg.WSURL = wsURL
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			// Probe output is the session log; keep slog off the terminal.
			logFile, err := logging.Setup(cfg.LogLevel, cfg.LogFile, io.Discard)
			if err != nil {
				return fmt.Errorf("logger setup failed: %w", err)
			}
			defer logFile.Close()
			sess := session.New(session.Options{
				Dialer:      session.GatewayDialer{BaseURL: cfg.WSURL},
				LogCapacity: cfg.LogCapacity,
				PingTimeout: cfg.PingTimeout,
				DialTimeout: cfg.DialTimeout,
			})
			return runProbe(cmd.Context(), sess, os.Stdout, robotID, count, interval)
		},
	}

	cmd.Flags().StringVarP(&robotID, "robot", "r", "", "Robot id to probe (required)")
	cmd.Flags().IntVarP(&count, "count", "n", 3, "Number of pings")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Delay between pings")
	cmd.Flags().StringVar(&wsURL, "url", "", "Gateway WebSocket URL (default from CONSOLE_WS_URL)")
	_ = cmd.MarkFlagRequired("robot")

	return cmd
}

func runProbe(ctx context.Context, sess *session.Session, out io.Writer, robotID string, count int, interval time.Duration) error {
	if count < 1 {
		count = 1
	}

	var answered atomic.Int64
	events, detach := sess.Watch()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for evt := range events {
			if evt.Feed != relay.FeedLog {
				continue
			}
			e, ok := evt.Data.(logbuf.Entry)
			if !ok {
				continue
			}
			if e.Level == logbuf.LevelSuccess && strings.HasPrefix(e.Message, "Ping: ") {
				answered.Add(1)
			}
			fmt.Fprintf(out, "%s [%s] %s\n", e.Timestamp.Format("15:04:05.000"), e.Level, e.Message)
		}
	}()

	err := probe(ctx, sess, robotID, count, interval)
	sess.Disconnect()
	detach()
	<-printed

	if err != nil {
		return err
	}
	if n := answered.Load(); n < int64(count) {
		return fmt.Errorf("%d of %d pings unanswered", int64(count)-n, count)
	}
	return nil
}

func probe(ctx context.Context, sess *session.Session, robotID string, count int, interval time.Duration) error {
	if err := sess.Connect(ctx, robotID); err != nil {
		return err
	}

	for i := 0; i < count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
		if _, err := sess.Ping(); err != nil {
			return err
		}
	}

	// Every ping is either answered or expired by the timeout.
	deadline := time.After(sess.PingTimeout() + time.Second)
	for sess.PendingPings() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("%d pings still pending", sess.PendingPings())
		case <-time.After(20 * time.Millisecond):
		}
	}
	return nil
}
