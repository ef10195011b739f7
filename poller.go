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

// Notifier publishes a status summary after each completed poll cycle.
type Notifier interface {
	Publish(summary StatusSummary) error
	Close() error
}

// StatusSummary is the message published after a vehicle poll cycle.
type StatusSummary struct {
	LastUpdate      time.Time `json:"last_update"`
	NumberProviders int       `json:"number_providers"`
}

// Poller fetches realtime feeds and appends the decoded snapshots to
// storage. Snapshots are append-only and keyed deterministically, so
// polling the same upstream payload twice writes nothing new.
type Poller struct {
	Storage    storage.Storage
	Downloader downloader.Downloader
	Timeout    time.Duration
	MaxSize    int
	Logger     *slog.Logger
	Metrics    *metrics.Metrics

	// Notifier is optional. Publish failures are logged, never
	// propagated; notification is strictly fire-and-forget.
	Notifier Notifier

	// Now is the clock used to repair absent timestamps. Replaced
	// in tests for determinism.
	Now func() time.Time
}

func NewPoller(s storage.Storage) *Poller {
	return &Poller{
		Storage:    s,
		Downloader: downloader.NewMemoryDownloader(),
		Timeout:    DefaultRealtimeTimeout,
		MaxSize:    DefaultRealtimeMaxSize,
		Logger:     slog.Default(),
		Now:        time.Now,
	}
}

// PollResult reports the outcome of one realtime poll.
type PollResult struct {
	Provider      string
	EntityType    string
	FeedMessageID string
	Entities      int
	Err           error
}

// Poll fetches and stores one realtime feed for a provider.
func (p *Poller) Poll(ctx context.Context, provider config.Provider, entityType string) (*PollResult, error) {
	result := &PollResult{Provider: provider.Code, EntityType: entityType}

	var url string
	switch entityType {
	case model.EntityTripUpdate:
		url = provider.TripUpdatesURL
	case model.EntityVehicle:
		url = provider.VehiclePositionsURL
	default:
		return nil, fmt.Errorf("unsupported entity type: %s", entityType)
	}
	if url == "" {
		return nil, fmt.Errorf("provider %s has no %s URL", provider.Code, entityType)
	}

	start := p.Now()

	data, err := p.Downloader.Get(ctx, url, provider.Headers, downloader.GetOptions{
		Timeout: p.Timeout,
		MaxSize: p.MaxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching realtime feed: %w", err)
	}

	parsed, err := parse.ParseRealtime(provider.Code, entityType, data, p.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("decoding realtime feed: %w", err)
	}

	switch entityType {
	case model.EntityTripUpdate:
		err = p.Storage.WriteTripUpdates(parsed.Header, parsed.TripUpdates, parsed.StopTimeUpdates)
		result.Entities = len(parsed.TripUpdates)
	case model.EntityVehicle:
		err = p.Storage.WriteVehiclePositions(parsed.Header, parsed.VehiclePositions)
		result.Entities = len(parsed.VehiclePositions)
	}
	if err != nil {
		return nil, fmt.Errorf("writing realtime snapshot: %w", err)
	}
	result.FeedMessageID = parsed.Header.ID

	if p.Metrics != nil {
		p.Metrics.PollsTotal.WithLabelValues(provider.Code, entityType, "ok").Inc()
		p.Metrics.PollDuration.Observe(time.Since(start).Seconds())
		p.Metrics.LastPoll.SetToCurrentTime()
	}

	p.Logger.Info("realtime feed polled",
		"provider", provider.Code,
		"entity_type", entityType,
		"feed_message", parsed.Header.ID,
		"entities", result.Entities)

	return result, nil
}

// PollAll polls every configured realtime feed for every provider.
// One provider's failure never aborts the others. After the cycle, a
// status summary is published when a notifier is configured.
func (p *Poller) PollAll(ctx context.Context, providers []config.Provider) []*PollResult {
	results := []*PollResult{}
	polled := 0
	for _, provider := range providers {
		ok := false
		for _, entityType := range []string{model.EntityTripUpdate, model.EntityVehicle} {
			switch entityType {
			case model.EntityTripUpdate:
				if provider.TripUpdatesURL == "" {
					continue
				}
			case model.EntityVehicle:
				if provider.VehiclePositionsURL == "" {
					continue
				}
			}

			result, err := p.Poll(ctx, provider, entityType)
			if err != nil {
				p.Logger.Error("realtime poll failed",
					"provider", provider.Code,
					"entity_type", entityType,
					"error", err)
				if p.Metrics != nil {
					p.Metrics.PollsTotal.WithLabelValues(provider.Code, entityType, "error").Inc()
				}
				result = &PollResult{Provider: provider.Code, EntityType: entityType, Err: err}
			} else {
				ok = true
			}
			results = append(results, result)
		}
		if ok {
			polled++
		}
	}

	if p.Notifier != nil {
		summary := StatusSummary{
			LastUpdate:      p.Now().UTC(),
			NumberProviders: polled,
		}
		if err := p.Notifier.Publish(summary); err != nil {
			p.Logger.Error("status publish failed", "error", err)
		}
	}

	return results
}
