package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/transitdata/datahub/storage"
)

var feedsCmd = &cobra.Command{
	Use:   "feeds [provider]",
	Short: "Lists imported schedule feeds",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFeeds,
}

func init() {
	rootCmd.AddCommand(feedsCmd)
}

func runFeeds(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	filter := storage.ListFeedsFilter{}
	if len(args) == 1 {
		filter.Provider = args[0]
	}

	feeds, err := s.ListFeeds(filter)
	if err != nil {
		return err
	}

	for _, feed := range feeds {
		marker := " "
		if feed.IsCurrent {
			marker = "*"
		}
		fmt.Printf("%s %s retrieved=%s etag=%q\n",
			marker, feed.ID, feed.RetrievedAt.Format("2006-01-02 15:04:05"), feed.ETag)
	}

	return nil
}
