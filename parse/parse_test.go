package parse

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitdata/datahub/model"
	"github.com/transitdata/datahub/storage"
)

func buildZip(t *testing.T, files map[string][]string) []byte {
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for filename, content := range files {
		f, err := w.Create(filename)
		require.NoError(t, err)
		_, err = f.Write([]byte(strings.Join(content, "\n")))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return buf.Bytes()
}

// A simple GTFS feed with all required data
func fixtureSimple() map[string][]string {
	return map[string][]string{
		"agency.txt": []string{
			"agency_timezone,agency_name,agency_url",
			"America/Los_Angeles,Fake Agency,http://agency/index.html",
		},
		"routes.txt": []string{
			"route_id,route_short_name,route_type",
			"r,R,3",
		},
		"calendar.txt": []string{
			"service_id,monday,start_date,end_date",
			"mondays,1,20190101,20190301",
		},
		"calendar_dates.txt": []string{
			"service_id,date,exception_type",
			"mondays,20190302,1",
		},
		"trips.txt": []string{
			"route_id,service_id,trip_id",
			"r,mondays,t",
		},
		"stops.txt": []string{
			"stop_id,stop_name,stop_lat,stop_lon",
			"s,S,12,34",
		},
		"stop_times.txt": []string{
			"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
			"t,12:00:00,12:00:00,s,1",
		},
	}
}

func loadFixture(t *testing.T, files map[string][]string) (*ScheduleResult, storage.ScheduleReader) {
	s, err := storage.NewSQLiteStorage()
	require.NoError(t, err)
	writer, err := s.ScheduleWriter("test")
	require.NoError(t, err)

	result, err := ParseSchedule(writer, buildZip(t, files))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	reader, err := s.ScheduleReader("test")
	require.NoError(t, err)

	return result, reader
}

func TestParseScheduleValid(t *testing.T) {
	result, reader := loadFixture(t, fixtureSimple())

	assert.Empty(t, result.Failed())
	assert.Equal(t, "America/Los_Angeles", result.Timezone)
	assert.Equal(t, "20190101", result.CalendarStart)
	assert.Equal(t, "20190302", result.CalendarEnd)

	agencies, err := reader.Agencies()
	assert.NoError(t, err)
	require.Len(t, agencies, 1)
	assert.Equal(t, "Fake Agency", agencies[0].Name)

	routes, err := reader.Routes()
	assert.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "r", routes[0].ID)
	assert.Equal(t, model.RouteTypeBus, routes[0].Type)
	assert.Equal(t, "FFFFFF", routes[0].Color)
	assert.Equal(t, "000000", routes[0].TextColor)

	stops, err := reader.Stops()
	assert.NoError(t, err)
	require.Len(t, stops, 1)
	assert.Equal(t, 12.0, stops[0].Lat)
	assert.Equal(t, 34.0, stops[0].Lon)
	assert.Equal(t, 34.0, stops[0].Point.Lon)
	assert.Equal(t, 12.0, stops[0].Point.Lat)

	trips, err := reader.Trips()
	assert.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, "t", trips[0].ID)
}

func TestParseScheduleMissingRequiredFile(t *testing.T) {
	s, err := storage.NewSQLiteStorage()
	require.NoError(t, err)
	writer, err := s.ScheduleWriter("test")
	require.NoError(t, err)

	files := fixtureSimple()
	delete(files, "stops.txt")

	_, err = ParseSchedule(writer, buildZip(t, files))
	assert.ErrorContains(t, err, "missing stops.txt")

	files = fixtureSimple()
	delete(files, "calendar.txt")
	delete(files, "calendar_dates.txt")
	_, err = ParseSchedule(writer, buildZip(t, files))
	assert.ErrorContains(t, err, "missing calendar.txt and calendar_dates.txt")
}

func TestParseScheduleTableIsolation(t *testing.T) {
	files := fixtureSimple()

	// route_type 99 is invalid, so the routes table fails. Every
	// other table should still import; trips skip route validation
	// when the route set is unavailable.
	files["routes.txt"] = []string{
		"route_id,route_short_name,route_type",
		"r,R,99",
	}

	result, reader := loadFixture(t, files)

	failed := result.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "routes", failed[0].Table)

	trips, err := reader.Trips()
	assert.NoError(t, err)
	require.Len(t, trips, 1)

	events, err := reader.StopTimeEvents(storage.StopTimeEventFilter{
		StopID:      "s",
		DirectionID: -1,
	})
	assert.NoError(t, err)
	assert.Len(t, events, 0, "stop time events need the routes join")
}

func TestParseScheduleSubdirectory(t *testing.T) {
	files := map[string][]string{}
	for name, content := range fixtureSimple() {
		files["nested/"+name] = content
	}

	result, _ := loadFixture(t, files)
	assert.Empty(t, result.Failed())
}

func TestParseScheduleGeoShapes(t *testing.T) {
	files := fixtureSimple()

	// Points given out of order; the linestring must follow
	// shape_pt_sequence.
	files["shapes.txt"] = []string{
		"shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence",
		"sh,3,3,30",
		"sh,1,1,10",
		"sh,2,2,20",
	}
	files["trips.txt"] = []string{
		"route_id,service_id,trip_id,shape_id",
		"r,mondays,t,sh",
	}

	result, reader := loadFixture(t, files)
	assert.Empty(t, result.Failed())

	gs, err := reader.GeoShape("sh")
	require.NoError(t, err)
	require.Len(t, gs.Line, 3)
	assert.Equal(t, 1.0, gs.Line[0].Lat)
	assert.Equal(t, 2.0, gs.Line[1].Lat)
	assert.Equal(t, 3.0, gs.Line[2].Lat)

	points, err := reader.ShapePoints("sh")
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, uint32(10), points[0].Sequence)
	assert.Equal(t, uint32(30), points[2].Sequence)
}

func TestParseScheduleDerivedTables(t *testing.T) {
	files := fixtureSimple()
	files["stop_times.txt"] = []string{
		"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
		"t,12:00:00,12:00:00,s,1",
		"t,12:30:00,12:30:00,s2,2",
	}
	files["stops.txt"] = []string{
		"stop_id,stop_name,stop_lat,stop_lon",
		"s,S,12,34",
		"s2,S2,12.1,34.1",
	}

	result, reader := loadFixture(t, files)
	assert.Empty(t, result.Failed())

	routeStops, err := reader.RouteStops("r")
	assert.NoError(t, err)
	assert.Len(t, routeStops, 2)

	td, err := reader.TripDuration("t")
	require.NoError(t, err)
	assert.Equal(t, "120000", td.FirstArrival)
	assert.Equal(t, "123000", td.LastArrival)
}

func TestParseScheduleFeedInfo(t *testing.T) {
	files := fixtureSimple()
	files["feed_info.txt"] = []string{
		"feed_publisher_name,feed_publisher_url,feed_lang,feed_version",
		"Publisher,http://publisher,en,v42",
	}

	result, reader := loadFixture(t, files)
	assert.Empty(t, result.Failed())

	fi, err := reader.FeedInfo()
	require.NoError(t, err)
	assert.Equal(t, "Publisher", fi.PublisherName)
	assert.Equal(t, "v42", fi.Version)
}
