package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	datahub "github.com/transitdata/datahub"
	"github.com/transitdata/datahub/config"
)

var importCmd = &cobra.Command{
	Use:   "import [provider]",
	Short: "Imports provider schedules, all providers by default",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runImport,
}

var promoteCmd = &cobra.Command{
	Use:   "promote <provider> <feed_id>",
	Short: "Marks a feed as the provider's current schedule",
	Args:  cobra.ExactArgs(2),
	RunE:  runPromote,
}

var autoPromote bool

func init() {
	importCmd.Flags().BoolVarP(&autoPromote, "promote", "P", false, "Promote each newly imported feed")
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(promoteCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
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

	importer := datahub.NewImporter(s)
	importer.Timeout = cfg.StaticTimeout
	importer.Logger = slog.Default()

	results := importer.ImportAll(context.Background(), providers)

	if autoPromote {
		for _, r := range results {
			if r.Err != nil || r.NoChange {
				continue
			}
			if err := importer.Promote(r.Provider, r.FeedID); err != nil {
				return err
			}
		}
	}

	return reportResults(results)
}

func runPromote(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	importer := datahub.NewImporter(s)
	return importer.Promote(args[0], args[1])
}
