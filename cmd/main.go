package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	datahub "github.com/transitdata/datahub"
	"github.com/transitdata/datahub/config"
	"github.com/transitdata/datahub/storage"
)

var rootCmd = &cobra.Command{
	Use:          "datahub",
	Short:        "Transit data hub",
	Long:         "Imports GTFS schedules, polls GTFS-Realtime feeds and answers arrival queries",
	SilenceUsage: true,
}

var providersPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&providersPath, "providers", "p", "", "Path to providers YAML (overrides DATAHUB_PROVIDERS)")
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if providersPath != "" {
		cfg.ProvidersPath = providersPath
	}
	return cfg, nil
}

func openStorage(cfg *config.Config) (storage.Storage, error) {
	if cfg.DatabaseURL != "" {
		return storage.NewPSQLStorage(cfg.DatabaseURL, false)
	}
	return storage.NewSQLiteStorage(storage.SQLiteConfig{
		OnDisk:    true,
		Directory: cfg.SQLitePath,
	})
}

func loadProviders(cfg *config.Config) ([]config.Provider, error) {
	providers, err := config.LoadProviders(cfg.ProvidersPath)
	if err != nil {
		return nil, err
	}
	active := config.Active(providers)
	if len(active) == 0 {
		return nil, fmt.Errorf("no active providers in %s", cfg.ProvidersPath)
	}
	return active, nil
}

func findProvider(providers []config.Provider, code string) (config.Provider, error) {
	for _, p := range providers {
		if p.Code == code {
			return p, nil
		}
	}
	return config.Provider{}, fmt.Errorf("unknown provider '%s'", code)
}

func reportResults(results []*datahub.ImportResult) error {
	failed := 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			fmt.Printf("%s: failed: %v\n", r.Provider, r.Err)
		case r.NoChange:
			fmt.Printf("%s: unchanged (%s)\n", r.Provider, r.FeedID)
		default:
			fmt.Printf("%s: imported %s\n", r.Provider, r.FeedID)
			for _, ts := range r.Tables {
				if ts.Err != nil {
					fmt.Printf("  %s: failed: %v\n", ts.Table, ts.Err)
				} else {
					fmt.Printf("  %s: %d rows\n", ts.Table, ts.Rows)
				}
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d imports failed", failed, len(results))
	}
	return nil
}
