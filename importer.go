package datahub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/transitdata/datahub/config"
	"github.com/transitdata/datahub/downloader"
	"github.com/transitdata/datahub/metrics"
	"github.com/transitdata/datahub/model"
	"github.com/transitdata/datahub/parse"
	"github.com/transitdata/datahub/storage"
)

const (
	DefaultStaticTimeout   = 60 * time.Second
	DefaultStaticMaxSize   = 800 << 20 // 800 MB
	DefaultRealtimeTimeout = 10 * time.Second
	DefaultRealtimeMaxSize = 1 << 20 // 1 MB
)

// Importer fetches provider schedule archives and loads them into
// storage as immutable feed snapshots.
//
// Change detection runs on the upstream ETag: when it matches the
// provider's current feed, the import is a no-op beyond one HEAD
// round-trip. A new feed is never promoted by the importer itself;
// promotion is a separate, explicit step, so readers never see a
// half-imported feed.
type Importer struct {
	Storage    storage.Storage
	Downloader downloader.Downloader
	Timeout    time.Duration
	MaxSize    int
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

func NewImporter(s storage.Storage) *Importer {
	return &Importer{
		Storage:    s,
		Downloader: downloader.NewMemoryDownloader(),
		Timeout:    DefaultStaticTimeout,
		MaxSize:    DefaultStaticMaxSize,
		Logger:     slog.Default(),
	}
}

// ImportResult reports the outcome of one schedule import.
type ImportResult struct {
	Provider string
	FeedID   string

	// NoChange is set when the upstream ETag matched the current
	// feed and nothing was written.
	NoChange bool

	// Tables holds the per-table outcome. A failed table does not
	// fail the import; the remaining tables are still loaded.
	Tables []parse.TableStatus

	// Err is set when the import failed as a whole (fetch error,
	// unreadable archive). Used by ImportAll, which never lets
	// one provider's failure abort the batch.
	Err error
}

// Import runs one schedule import for a provider.
func (im *Importer) Import(ctx context.Context, provider config.Provider) (*ImportResult, error) {
	result := &ImportResult{Provider: provider.Code}

	head, err := im.Downloader.Head(ctx, provider.ScheduleURL, provider.Headers, im.Timeout)
	if err != nil {
		return nil, fmt.Errorf("fetching schedule metadata: %w", err)
	}

	current, err := im.Storage.CurrentFeed(provider.Code)
	if err != nil && err != storage.ErrNotFound {
		return nil, fmt.Errorf("resolving current feed: %w", err)
	}
	if current != nil && head.ETag != "" && current.ETag == head.ETag {
		result.FeedID = current.ID
		result.NoChange = true
		if im.Metrics != nil {
			im.Metrics.ImportsTotal.WithLabelValues(provider.Code, "no_change").Inc()
		}
		return result, nil
	}

	buf, err := im.Downloader.Get(ctx, provider.ScheduleURL, provider.Headers, downloader.GetOptions{
		Timeout: im.Timeout,
		MaxSize: im.MaxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching schedule archive: %w", err)
	}

	now := time.Now().UTC()

	// Deriving the feed ID from the upstream snapshot timestamp
	// makes the create step idempotent under retry: two imports
	// of the same upstream snapshot produce the same ID, and the
	// second insert is absorbed by key conflict.
	lastModified := head.LastModified
	if lastModified.IsZero() {
		lastModified = now
	}
	feedID := provider.Code + "-" + lastModified.UTC().Format("20060102T150405Z")
	result.FeedID = feedID

	err = im.Storage.WriteFeed(&model.Feed{
		ID:           feedID,
		Provider:     provider.Code,
		ETag:         head.ETag,
		LastModified: head.LastModified,
		IsCurrent:    false,
		RetrievedAt:  now,
	})
	if err != nil {
		return nil, fmt.Errorf("writing feed: %w", err)
	}

	writer, err := im.Storage.ScheduleWriter(feedID)
	if err != nil {
		return nil, fmt.Errorf("opening schedule writer: %w", err)
	}
	defer writer.Close()

	parsed, err := parse.ParseSchedule(writer, buf)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule: %w", err)
	}
	result.Tables = parsed.Tables

	for _, ts := range parsed.Tables {
		if ts.Err != nil {
			im.Logger.Error("schedule table failed",
				"provider", provider.Code,
				"feed", feedID,
				"table", ts.Table,
				"error", ts.Err)
		}
	}

	if im.Metrics != nil {
		im.Metrics.ImportsTotal.WithLabelValues(provider.Code, "imported").Inc()
	}

	im.Logger.Info("schedule imported",
		"provider", provider.Code,
		"feed", feedID,
		"tables", len(parsed.Tables),
		"failed_tables", len(parsed.Failed()))

	return result, nil
}

// ImportAll imports every provider's schedule. One provider's failure
// never aborts the others; failures are logged and recorded in that
// provider's result.
func (im *Importer) ImportAll(ctx context.Context, providers []config.Provider) []*ImportResult {
	results := []*ImportResult{}
	for _, provider := range providers {
		if provider.ScheduleURL == "" {
			continue
		}

		result, err := im.Import(ctx, provider)
		if err != nil {
			im.Logger.Error("schedule import failed",
				"provider", provider.Code,
				"error", err)
			if im.Metrics != nil {
				im.Metrics.ImportsTotal.WithLabelValues(provider.Code, "error").Inc()
			}
			result = &ImportResult{Provider: provider.Code, Err: err}
		}
		results = append(results, result)
	}
	return results
}

// Promote marks the given feed current for its provider, atomically
// demoting any previously current feed.
func (im *Importer) Promote(provider string, feedID string) error {
	err := im.Storage.PromoteFeed(provider, feedID)
	if err == storage.ErrNotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("promoting feed: %w", err)
	}

	im.Logger.Info("feed promoted", "provider", provider, "feed", feedID)
	return nil
}
