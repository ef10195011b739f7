package parse

import (
	"testing"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	proto "google.golang.org/protobuf/proto"

	"github.com/transitdata/datahub/model"
)

var testNow = time.Date(2020, 1, 15, 23, 0, 0, 0, time.UTC)

func marshalFeed(t *testing.T, f *gtfsproto.FeedMessage) []byte {
	data, err := proto.Marshal(f)
	require.NoError(t, err)
	return data
}

func feedHeader(timestamp uint64) *gtfsproto.FeedHeader {
	incrementality := gtfsproto.FeedHeader_FULL_DATASET
	return &gtfsproto.FeedHeader{
		GtfsRealtimeVersion: proto.String("2.0"),
		Incrementality:      &incrementality,
		Timestamp:           proto.Uint64(timestamp),
	}
}

func TestParseRealtimeTripUpdates(t *testing.T) {
	feed := &gtfsproto.FeedMessage{
		Header: feedHeader(uint64(testNow.Unix())),
		Entity: []*gtfsproto.FeedEntity{
			{
				Id: proto.String("e1"),
				TripUpdate: &gtfsproto.TripUpdate{
					Trip: &gtfsproto.TripDescriptor{
						TripId:      proto.String("t1"),
						RouteId:     proto.String("r1"),
						DirectionId: proto.Uint32(1),
						StartDate:   proto.String("20200115"),
						StartTime:   proto.String("22:45:00"),
					},
					Vehicle: &gtfsproto.VehicleDescriptor{
						Id:    proto.String("v1"),
						Label: proto.String("Bus 1"),
					},
					Timestamp: proto.Uint64(uint64(testNow.Add(-time.Minute).Unix())),
					StopTimeUpdate: []*gtfsproto.TripUpdate_StopTimeUpdate{
						{
							StopSequence: proto.Uint32(3),
							StopId:       proto.String("s1"),
							Arrival: &gtfsproto.TripUpdate_StopTimeEvent{
								Time:        proto.Int64(testNow.Add(5 * time.Minute).Unix()),
								Delay:       proto.Int32(120),
								Uncertainty: proto.Int32(30),
							},
							Departure: &gtfsproto.TripUpdate_StopTimeEvent{
								Time: proto.Int64(testNow.Add(6 * time.Minute).Unix()),
							},
						},
						{
							StopSequence: proto.Uint32(4),
							StopId:       proto.String("s2"),
						},
					},
				},
			},
		},
	}

	result, err := ParseRealtime("mta", model.EntityTripUpdate, marshalFeed(t, feed), testNow)
	require.NoError(t, err)

	fm := result.Header
	assert.Equal(t, "mta-trip_update-1579129200", fm.ID)
	assert.Equal(t, "mta", fm.Provider)
	assert.Equal(t, model.EntityTripUpdate, fm.EntityType)
	assert.Equal(t, "FULL_DATASET", fm.Incrementality)
	assert.Equal(t, testNow, fm.Timestamp)

	require.Len(t, result.TripUpdates, 1)
	tu := result.TripUpdates[0]
	assert.Equal(t, fm.ID+"-e1", tu.ID)
	assert.Equal(t, fm.ID, tu.FeedMessageID)
	assert.Equal(t, "t1", tu.TripID)
	assert.Equal(t, "r1", tu.RouteID)
	assert.Equal(t, int8(1), tu.DirectionID)
	assert.Equal(t, "20200115", tu.StartDate)
	assert.Equal(t, "22:45:00", tu.StartTime)
	assert.Equal(t, "v1", tu.VehicleID)
	assert.Equal(t, "Bus 1", tu.VehicleLabel)
	assert.Equal(t, testNow.Add(-time.Minute), tu.Timestamp)

	require.Len(t, result.StopTimeUpdates, 2)
	stu := result.StopTimeUpdates[0]
	assert.Equal(t, tu.ID+"-0", stu.ID)
	assert.Equal(t, tu.ID, stu.TripUpdateID)
	assert.Equal(t, fm.ID, stu.FeedMessageID)
	assert.Equal(t, int32(3), stu.StopSequence)
	assert.Equal(t, "s1", stu.StopID)
	assert.Equal(t, testNow.Add(5*time.Minute), stu.ArrivalTime)
	assert.Equal(t, int32(120), stu.ArrivalDelay)
	assert.Equal(t, int32(30), stu.ArrivalUncertainty)
	assert.Equal(t, testNow.Add(6*time.Minute), stu.DepartureTime)
	assert.Equal(t, int32(0), stu.DepartureDelay)

	// The second update has no arrival or departure events. Their
	// times repair to now, delays and uncertainties to zero.
	stu = result.StopTimeUpdates[1]
	assert.Equal(t, tu.ID+"-1", stu.ID)
	assert.Equal(t, testNow, stu.ArrivalTime)
	assert.Equal(t, testNow, stu.DepartureTime)
	assert.Equal(t, int32(0), stu.ArrivalDelay)
	assert.Equal(t, int32(0), stu.ArrivalUncertainty)
}

func TestParseRealtimeRepairsAbsentFields(t *testing.T) {
	feed := &gtfsproto.FeedMessage{
		Header: feedHeader(0),
		Entity: []*gtfsproto.FeedEntity{
			{
				Id: proto.String("e1"),
				TripUpdate: &gtfsproto.TripUpdate{
					Trip: &gtfsproto.TripDescriptor{
						TripId: proto.String("t1"),
					},
				},
			},
		},
	}

	result, err := ParseRealtime("mta", model.EntityTripUpdate, marshalFeed(t, feed), testNow)
	require.NoError(t, err)

	// Header timestamp absent: defaults to now.
	assert.Equal(t, testNow, result.Header.Timestamp)

	require.Len(t, result.TripUpdates, 1)
	tu := result.TripUpdates[0]
	assert.Equal(t, int8(-1), tu.DirectionID)
	assert.Equal(t, "20200115", tu.StartDate)
	assert.Equal(t, "00:00:00", tu.StartTime)
	assert.Equal(t, testNow, tu.Timestamp)
	assert.Equal(t, int32(0), tu.Delay)
}

func TestParseRealtimeVehiclePositions(t *testing.T) {
	currentStatus := gtfsproto.VehiclePosition_IN_TRANSIT_TO
	occupancy := gtfsproto.VehiclePosition_FEW_SEATS_AVAILABLE

	feed := &gtfsproto.FeedMessage{
		Header: feedHeader(uint64(testNow.Unix())),
		Entity: []*gtfsproto.FeedEntity{
			{
				Id: proto.String("e1"),
				Vehicle: &gtfsproto.VehiclePosition{
					Trip: &gtfsproto.TripDescriptor{
						TripId:    proto.String("t1"),
						StartDate: proto.String("20200115"),
						StartTime: proto.String("22:45:00"),
					},
					Vehicle: &gtfsproto.VehicleDescriptor{
						Id: proto.String("v1"),
					},
					Position: &gtfsproto.Position{
						Latitude:  proto.Float32(40.7),
						Longitude: proto.Float32(-74.0),
						Bearing:   proto.Float32(90),
						Speed:     proto.Float32(8.5),
					},
					CurrentStopSequence: proto.Uint32(7),
					StopId:              proto.String("s1"),
					CurrentStatus:       &currentStatus,
					OccupancyStatus:     &occupancy,
					Timestamp:           proto.Uint64(uint64(testNow.Unix())),
				},
			},
			{
				Id: proto.String("e2"),
				Vehicle: &gtfsproto.VehiclePosition{
					Trip: &gtfsproto.TripDescriptor{
						TripId: proto.String("t2"),
					},
					Position: &gtfsproto.Position{
						Latitude:  proto.Float32(40.8),
						Longitude: proto.Float32(-74.1),
					},
				},
			},
		},
	}

	result, err := ParseRealtime("mta", model.EntityVehicle, marshalFeed(t, feed), testNow)
	require.NoError(t, err)

	assert.Equal(t, "mta-vehicle-1579129200", result.Header.ID)

	require.Len(t, result.VehiclePositions, 2)
	vp := result.VehiclePositions[0]
	assert.Equal(t, result.Header.ID+"-e1", vp.ID)
	assert.Equal(t, "t1", vp.TripID)
	assert.Equal(t, "v1", vp.VehicleID)
	assert.InDelta(t, 40.7, vp.Lat, 1e-4)
	assert.InDelta(t, -74.0, vp.Lon, 1e-4)
	assert.InDelta(t, vp.Lon, vp.Point.Lon, 1e-9)
	assert.InDelta(t, vp.Lat, vp.Point.Lat, 1e-9)
	assert.Equal(t, int32(7), vp.CurrentStopSequence)
	assert.Equal(t, "IN_TRANSIT_TO", vp.CurrentStatus)
	assert.Equal(t, "FEW_SEATS_AVAILABLE", vp.OccupancyStatus)

	// Absent current stop sequence repairs to the -1 sentinel, and
	// absent timestamp to now.
	vp = result.VehiclePositions[1]
	assert.Equal(t, int32(-1), vp.CurrentStopSequence)
	assert.Equal(t, testNow, vp.Timestamp)
	assert.Equal(t, "20200115", vp.StartDate)
	assert.Equal(t, "00:00:00", vp.StartTime)
}

func TestParseRealtimeRejectsUnsupportedFeeds(t *testing.T) {
	// Unsupported version.
	feed := &gtfsproto.FeedMessage{Header: feedHeader(0)}
	feed.Header.GtfsRealtimeVersion = proto.String("3.0")
	_, err := ParseRealtime("mta", model.EntityTripUpdate, marshalFeed(t, feed), testNow)
	assert.ErrorContains(t, err, "version 3.0 not supported")

	// Differential feeds are not supported.
	feed = &gtfsproto.FeedMessage{Header: feedHeader(0)}
	differential := gtfsproto.FeedHeader_DIFFERENTIAL
	feed.Header.Incrementality = &differential
	_, err = ParseRealtime("mta", model.EntityTripUpdate, marshalFeed(t, feed), testNow)
	assert.ErrorContains(t, err, "not supported")

	// Garbage payload.
	_, err = ParseRealtime("mta", model.EntityTripUpdate, []byte("not a protobuf"), testNow)
	assert.Error(t, err)

	// Unknown entity type.
	feed = &gtfsproto.FeedMessage{Header: feedHeader(0), Entity: []*gtfsproto.FeedEntity{
		{Id: proto.String("e1"), TripUpdate: &gtfsproto.TripUpdate{Trip: &gtfsproto.TripDescriptor{}}},
	}}
	_, err = ParseRealtime("mta", "alerts", marshalFeed(t, feed), testNow)
	assert.ErrorContains(t, err, "entity type")
}

func TestParseRealtimeDeterministicIDs(t *testing.T) {
	feed := &gtfsproto.FeedMessage{
		Header: feedHeader(uint64(testNow.Unix())),
		Entity: []*gtfsproto.FeedEntity{
			{
				Id:         proto.String("e1"),
				TripUpdate: &gtfsproto.TripUpdate{Trip: &gtfsproto.TripDescriptor{TripId: proto.String("t1")}},
			},
		},
	}
	data := marshalFeed(t, feed)

	first, err := ParseRealtime("mta", model.EntityTripUpdate, data, testNow)
	require.NoError(t, err)
	second, err := ParseRealtime("mta", model.EntityTripUpdate, data, testNow.Add(time.Hour))
	require.NoError(t, err)

	// The header carries its own timestamp, so decoding at a later
	// wall clock yields the same IDs.
	assert.Equal(t, first.Header.ID, second.Header.ID)
	assert.Equal(t, first.TripUpdates[0].ID, second.TripUpdates[0].ID)
	assert.Equal(t, first.StopTimeUpdates, second.StopTimeUpdates)
}
