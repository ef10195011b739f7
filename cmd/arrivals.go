package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	datahub "github.com/transitdata/datahub"
)

var arrivalsCmd = &cobra.Command{
	Use:   "arrivals <provider> <stop_id>",
	Short: "Lists upcoming arrivals at a stop",
	Args:  cobra.ExactArgs(2),
	RunE:  runArrivals,
}

var nextStopsCmd = &cobra.Command{
	Use:   "nextstops <provider> <trip_id> <start_date> <start_time>",
	Short: "Lists the remaining predicted stops of an in-progress trip",
	Args:  cobra.ExactArgs(4),
	RunE:  runNextStops,
}

var atFlag string

func init() {
	arrivalsCmd.Flags().StringVarP(&atFlag, "at", "t", "", "Query time, RFC 3339 (defaults to now)")
	rootCmd.AddCommand(arrivalsCmd)
	rootCmd.AddCommand(nextStopsCmd)
}

func runArrivals(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	at := time.Now()
	if atFlag != "" {
		at, err = time.Parse(time.RFC3339, atFlag)
		if err != nil {
			return err
		}
	}

	resolver := datahub.NewResolver(s, args[0])
	result, err := resolver.NextArrivals(args[1], at)
	if err != nil {
		return err
	}

	return printJSON(result)
}

func runNextStops(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	resolver := datahub.NewResolver(s, args[0])
	result, err := resolver.NextStops(args[1], args[2], args[3])
	if err != nil {
		return err
	}

	return printJSON(result)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
