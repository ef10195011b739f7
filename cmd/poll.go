package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	datahub "github.com/transitdata/datahub"
	"github.com/transitdata/datahub/config"
	"github.com/transitdata/datahub/metrics"
	"github.com/transitdata/datahub/notify"
)

var pollCmd = &cobra.Command{
	Use:   "poll [provider]",
	Short: "Polls realtime feeds, all providers by default",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPoll,
}

var pollInterval time.Duration

func init() {
	pollCmd.Flags().DurationVarP(&pollInterval, "interval", "i", 0, "Poll repeatedly at this interval (one-shot when 0)")
	rootCmd.AddCommand(pollCmd)
}

func runPoll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	providers, err := loadProviders(cfg)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		provider, err := findProvider(providers, args[0])
		if err != nil {
			return err
		}
		providers = []config.Provider{provider}
	}

	s, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	poller := datahub.NewPoller(s)
	poller.Timeout = cfg.RealtimeTimeout
	poller.Logger = slog.Default()

	if cfg.NATSURL != "" {
		notifier, err := notify.NewNATSNotifier(cfg.NATSURL, notify.DefaultSubject, slog.Default())
		if err != nil {
			return err
		}
		defer notifier.Close()
		poller.Notifier = notifier
	}

	if pollInterval == 0 {
		results := poller.PollAll(context.Background(), providers)
		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d polls failed", failed, len(results))
		}
		return nil
	}

	m := metrics.New()
	poller.Metrics = m
	go func() {
		if err := m.Serve(cfg.MetricsAddr); err != nil {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	poller.PollAll(ctx, providers)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			poller.PollAll(ctx, providers)
		}
	}
}
