package datahub_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	proto "google.golang.org/protobuf/proto"

	datahub "github.com/transitdata/datahub"
	"github.com/transitdata/datahub/config"
	"github.com/transitdata/datahub/model"
	"github.com/transitdata/datahub/storage"
)

var pollNow = time.Date(2020, 1, 15, 23, 0, 0, 0, time.UTC)

func realtimeHeader(timestamp time.Time) *gtfsproto.FeedHeader {
	incrementality := gtfsproto.FeedHeader_FULL_DATASET
	return &gtfsproto.FeedHeader{
		GtfsRealtimeVersion: proto.String("2.0"),
		Incrementality:      &incrementality,
		Timestamp:           proto.Uint64(uint64(timestamp.Unix())),
	}
}

func tripUpdateFeed(t *testing.T, tripID string) []byte {
	feed := &gtfsproto.FeedMessage{
		Header: realtimeHeader(pollNow),
		Entity: []*gtfsproto.FeedEntity{
			{
				Id: proto.String("e1"),
				TripUpdate: &gtfsproto.TripUpdate{
					Trip: &gtfsproto.TripDescriptor{
						TripId:    proto.String(tripID),
						StartDate: proto.String("20200115"),
						StartTime: proto.String("22:45:00"),
					},
					StopTimeUpdate: []*gtfsproto.TripUpdate_StopTimeUpdate{
						{
							StopSequence: proto.Uint32(1),
							StopId:       proto.String("A"),
							Arrival: &gtfsproto.TripUpdate_StopTimeEvent{
								Time: proto.Int64(pollNow.Add(5 * time.Minute).Unix()),
							},
						},
					},
				},
			},
		},
	}

	data, err := proto.Marshal(feed)
	require.NoError(t, err)
	return data
}

func vehicleFeed(t *testing.T, tripID string, lat, lon float32) []byte {
	feed := &gtfsproto.FeedMessage{
		Header: realtimeHeader(pollNow),
		Entity: []*gtfsproto.FeedEntity{
			{
				Id: proto.String("e1"),
				Vehicle: &gtfsproto.VehiclePosition{
					Trip: &gtfsproto.TripDescriptor{
						TripId:    proto.String(tripID),
						StartDate: proto.String("20200115"),
						StartTime: proto.String("22:45:00"),
					},
					Position: &gtfsproto.Position{
						Latitude:  proto.Float32(lat),
						Longitude: proto.Float32(lon),
					},
				},
			},
		},
	}

	data, err := proto.Marshal(feed)
	require.NoError(t, err)
	return data
}

func serveBytes(data []byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
}

type fakeNotifier struct {
	summaries []datahub.StatusSummary
}

func (f *fakeNotifier) Publish(summary datahub.StatusSummary) error {
	f.summaries = append(f.summaries, summary)
	return nil
}

func (f *fakeNotifier) Close() error { return nil }

func newPoller(t *testing.T) (*datahub.Poller, storage.Storage) {
	s, err := storage.NewSQLiteStorage()
	require.NoError(t, err)

	poller := datahub.NewPoller(s)
	poller.Logger = slog.Default()
	poller.Now = func() time.Time { return pollNow }

	return poller, s
}

func TestPollerTripUpdates(t *testing.T) {
	server := serveBytes(tripUpdateFeed(t, "t1"))
	defer server.Close()

	poller, s := newPoller(t)
	defer s.Close()

	provider := config.Provider{Code: "mta", TripUpdatesURL: server.URL, Active: true}

	result, err := poller.Poll(context.Background(), provider, model.EntityTripUpdate)
	require.NoError(t, err)
	assert.Equal(t, "mta-trip_update-1579129200", result.FeedMessageID)
	assert.Equal(t, 1, result.Entities)

	// Polling the same payload again appends nothing.
	_, err = poller.Poll(context.Background(), provider, model.EntityTripUpdate)
	require.NoError(t, err)

	fm, err := s.LatestFeedMessage("mta", model.EntityTripUpdate)
	require.NoError(t, err)
	assert.Equal(t, result.FeedMessageID, fm.ID)

	tus, err := s.TripUpdates(storage.TripUpdateFilter{FeedMessageID: fm.ID})
	require.NoError(t, err)
	require.Len(t, tus, 1)
	assert.Equal(t, "t1", tus[0].TripID)

	stus, err := s.StopTimeUpdates(storage.StopTimeUpdateFilter{FeedMessageID: fm.ID})
	require.NoError(t, err)
	require.Len(t, stus, 1)
	assert.Equal(t, tus[0].ID, stus[0].TripUpdateID)
}

func TestPollerVehiclePositions(t *testing.T) {
	server := serveBytes(vehicleFeed(t, "t1", 40.7, -74.0))
	defer server.Close()

	poller, s := newPoller(t)
	defer s.Close()

	provider := config.Provider{Code: "mta", VehiclePositionsURL: server.URL, Active: true}

	result, err := poller.Poll(context.Background(), provider, model.EntityVehicle)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Entities)

	vps, err := s.VehiclePositions(storage.VehiclePositionFilter{FeedMessageID: result.FeedMessageID})
	require.NoError(t, err)
	require.Len(t, vps, 1)
	assert.InDelta(t, 40.7, vps[0].Lat, 1e-4)
	assert.InDelta(t, -74.0, vps[0].Point.Lon, 1e-4)
}

func TestPollerRejectsMisconfiguredEntity(t *testing.T) {
	poller, s := newPoller(t)
	defer s.Close()

	_, err := poller.Poll(context.Background(), config.Provider{Code: "mta"}, model.EntityTripUpdate)
	assert.ErrorContains(t, err, "no trip_update URL")

	_, err = poller.Poll(context.Background(), config.Provider{Code: "mta"}, "bogus")
	assert.ErrorContains(t, err, "unsupported entity type")
}

func TestPollAllIsolatesFailuresAndNotifies(t *testing.T) {
	tripServer := serveBytes(tripUpdateFeed(t, "t1"))
	defer tripServer.Close()
	vehicleServer := serveBytes(vehicleFeed(t, "t1", 40.7, -74.0))
	defer vehicleServer.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	poller, s := newPoller(t)
	defer s.Close()

	notifier := &fakeNotifier{}
	poller.Notifier = notifier

	results := poller.PollAll(context.Background(), []config.Provider{
		{Code: "mta", TripUpdatesURL: tripServer.URL, VehiclePositionsURL: vehicleServer.URL, Active: true},
		{Code: "broken", TripUpdatesURL: broken.URL, Active: true},
	})

	require.Len(t, results, 3)

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			assert.Equal(t, "broken", r.Provider)
		}
	}
	assert.Equal(t, 1, failed)

	// The healthy provider's rows landed despite the failure.
	_, err := s.LatestFeedMessage("mta", model.EntityTripUpdate)
	assert.NoError(t, err)
	_, err = s.LatestFeedMessage("mta", model.EntityVehicle)
	assert.NoError(t, err)

	// One summary per cycle, counting providers with a successful
	// poll.
	require.Len(t, notifier.summaries, 1)
	assert.Equal(t, 1, notifier.summaries[0].NumberProviders)
	assert.Equal(t, pollNow, notifier.summaries[0].LastUpdate)
}
