package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitdata/datahub/geo"
	"github.com/transitdata/datahub/model"
)

// The persisted point column is recomputed from lat/lon on every
// write, so the stored geometry never depends on the caller having
// derived it.
func TestWriteVehiclePositionsDerivesPoint(t *testing.T) {
	s, err := NewSQLiteStorage()
	require.NoError(t, err)
	defer s.Close()

	now := time.Date(2020, 1, 15, 23, 0, 0, 0, time.UTC)
	fm := &model.FeedMessage{
		ID:         "mta-vehicle-1579129200",
		Provider:   "mta",
		Timestamp:  now,
		EntityType: model.EntityVehicle,
	}
	vp := &model.VehiclePosition{
		ID:            fm.ID + "-e1",
		FeedMessageID: fm.ID,
		EntityID:      "e1",
		TripID:        "t1",
		StartDate:     "20200115",
		StartTime:     "22:45:00",
		DirectionID:   -1,
		Lat:           40.7,
		Lon:           -74.0,
		Timestamp:     now,
	}

	// No DerivePoint call before the write: vp.Point is still the
	// zero value here.
	require.NoError(t, s.WriteVehiclePositions(fm, []*model.VehiclePosition{vp}))

	var wkt string
	err = s.db.QueryRow(`SELECT point FROM vehicle_positions WHERE id = ?`, vp.ID).Scan(&wkt)
	require.NoError(t, err)

	assert.Equal(t, geo.Point{Lon: vp.Lon, Lat: vp.Lat}.WKT(), wkt)
}
