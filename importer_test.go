package datahub_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	datahub "github.com/transitdata/datahub"
	"github.com/transitdata/datahub/config"
	"github.com/transitdata/datahub/storage"
	"github.com/transitdata/datahub/testutil"
)

func scheduleFixture() map[string][]string {
	return testutil.WithDefaults(map[string][]string{
		"agency.txt": {
			"agency_timezone,agency_name,agency_url",
			"UTC,Fake Agency,http://agency",
		},
		"routes.txt": {
			"route_id,route_short_name,route_type",
			"r1,R1,3",
		},
		"calendar.txt": {
			"service_id,monday,tuesday,wednesday,thursday,friday,start_date,end_date",
			"S1,1,1,1,1,1,20200101,20201231",
		},
		"trips.txt": {
			"route_id,service_id,trip_id",
			"r1,S1,t1",
		},
		"stops.txt": {
			"stop_id,stop_name,stop_lat,stop_lon",
			"A,Stop A,1,0",
		},
		"stop_times.txt": {
			"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
			"t1,08:00:00,08:01:00,A,1",
		},
	})
}

func scheduleServer(t *testing.T, files map[string][]string, etag string) *httptest.Server {
	buf := testutil.BuildZip(t, files)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", etag)
		w.Header().Set("Last-Modified", "Wed, 15 Jan 2020 10:00:00 GMT")
		w.Write(buf)
	}))
}

func newImporter(t *testing.T) (*datahub.Importer, storage.Storage) {
	s := testutil.BuildStorage(t, "sqlite")
	importer := datahub.NewImporter(s)
	importer.Logger = slog.Default()
	return importer, s
}

func TestImporterImport(t *testing.T) {
	server := scheduleServer(t, scheduleFixture(), `"v1"`)
	defer server.Close()

	importer, s := newImporter(t)
	defer s.Close()

	provider := config.Provider{Code: "mta", ScheduleURL: server.URL, Active: true}

	result, err := importer.Import(context.Background(), provider)
	require.NoError(t, err)
	assert.Equal(t, "mta-20200115T100000Z", result.FeedID)
	assert.False(t, result.NoChange)
	for _, ts := range result.Tables {
		assert.NoError(t, ts.Err, "table %s", ts.Table)
	}

	// Imported but not promoted.
	_, err = s.CurrentFeed("mta")
	assert.Equal(t, storage.ErrNotFound, err)

	reader, err := s.ScheduleReader(result.FeedID)
	require.NoError(t, err)
	trips, err := reader.Trips()
	require.NoError(t, err)
	assert.Len(t, trips, 1)

	require.NoError(t, importer.Promote("mta", result.FeedID))
	current, err := s.CurrentFeed("mta")
	require.NoError(t, err)
	assert.Equal(t, result.FeedID, current.ID)
	assert.Equal(t, `"v1"`, current.ETag)
}

func TestImporterNoChange(t *testing.T) {
	server := scheduleServer(t, scheduleFixture(), `"v1"`)
	defer server.Close()

	importer, s := newImporter(t)
	defer s.Close()

	provider := config.Provider{Code: "mta", ScheduleURL: server.URL, Active: true}

	first, err := importer.Import(context.Background(), provider)
	require.NoError(t, err)
	require.NoError(t, importer.Promote("mta", first.FeedID))

	second, err := importer.Import(context.Background(), provider)
	require.NoError(t, err)
	assert.True(t, second.NoChange)
	assert.Equal(t, first.FeedID, second.FeedID)

	feeds, err := s.ListFeeds(storage.ListFeedsFilter{Provider: "mta"})
	require.NoError(t, err)
	assert.Len(t, feeds, 1)
}

func TestImporterIdempotentBeforePromotion(t *testing.T) {
	server := scheduleServer(t, scheduleFixture(), `"v1"`)
	defer server.Close()

	importer, s := newImporter(t)
	defer s.Close()

	provider := config.Provider{Code: "mta", ScheduleURL: server.URL, Active: true}

	// Without a promoted feed the ETag check cannot short-circuit,
	// but the deterministic feed ID keeps the create idempotent.
	for i := 0; i < 2; i++ {
		_, err := importer.Import(context.Background(), provider)
		require.NoError(t, err)
	}

	feeds, err := s.ListFeeds(storage.ListFeedsFilter{Provider: "mta"})
	require.NoError(t, err)
	assert.Len(t, feeds, 1)
}

func TestImporterPartialTableFailure(t *testing.T) {
	files := scheduleFixture()
	files["routes.txt"] = []string{
		"route_id,route_short_name,route_type",
		"r1,R1,99",
	}

	server := scheduleServer(t, files, `"v1"`)
	defer server.Close()

	importer, s := newImporter(t)
	defer s.Close()

	result, err := importer.Import(context.Background(), config.Provider{
		Code: "mta", ScheduleURL: server.URL, Active: true,
	})
	require.NoError(t, err)

	failed := map[string]bool{}
	for _, ts := range result.Tables {
		if ts.Err != nil {
			failed[ts.Table] = true
		}
	}
	assert.Equal(t, map[string]bool{"routes": true}, failed)

	// The healthy tables made it in.
	reader, err := s.ScheduleReader(result.FeedID)
	require.NoError(t, err)
	trips, err := reader.Trips()
	require.NoError(t, err)
	assert.Len(t, trips, 1)
}

func TestImportAllIsolatesFailures(t *testing.T) {
	good := scheduleServer(t, scheduleFixture(), `"v1"`)
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	importer, s := newImporter(t)
	defer s.Close()

	results := importer.ImportAll(context.Background(), []config.Provider{
		{Code: "broken", ScheduleURL: bad.URL, Active: true},
		{Code: "mta", ScheduleURL: good.URL, Active: true},
		{Code: "nourl", Active: true},
	})

	// The provider without a schedule URL is skipped entirely.
	require.Len(t, results, 2)
	assert.Equal(t, "broken", results[0].Provider)
	assert.Error(t, results[0].Err)
	assert.Equal(t, "mta", results[1].Provider)
	assert.NoError(t, results[1].Err)

	feeds, err := s.ListFeeds(storage.ListFeedsFilter{})
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	assert.Equal(t, "mta", feeds[0].Provider)
}
