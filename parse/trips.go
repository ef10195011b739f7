package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"github.com/transitdata/datahub/model"
	"github.com/transitdata/datahub/storage"
)

type TripCSV struct {
	ID                   string `csv:"trip_id"`
	RouteID              string `csv:"route_id"`
	ServiceID            string `csv:"service_id"`
	Headsign             string `csv:"trip_headsign"`
	ShortName            string `csv:"trip_short_name"`
	DirectionID          string `csv:"direction_id"`
	BlockID              string `csv:"block_id"`
	ShapeID              string `csv:"shape_id"`
	WheelchairAccessible string `csv:"wheelchair_accessible"`
	BikesAllowed         string `csv:"bikes_allowed"`
}

// ParseTrips writes trips.txt. The route, service and shape sets may
// be nil when their tables failed to import, in which case the
// corresponding references go unchecked.
func ParseTrips(
	writer storage.ScheduleWriter,
	data io.Reader,
	routes map[string]bool,
	services map[string]bool,
	shapes map[string]bool,
) (map[string]bool, int, error) {
	tripCsv := []*TripCSV{}
	if err := gocsv.Unmarshal(data, &tripCsv); err != nil {
		return nil, 0, fmt.Errorf("unmarshaling trips csv: %w", err)
	}

	trips := map[string]bool{}
	for _, t := range tripCsv {
		if t.ID == "" {
			return nil, 0, fmt.Errorf("empty trip_id")
		}
		if trips[t.ID] {
			return nil, 0, fmt.Errorf("repeated trip_id '%s'", t.ID)
		}
		trips[t.ID] = true

		if t.RouteID == "" {
			return nil, 0, fmt.Errorf("empty route_id")
		}

		if routes != nil && !routes[t.RouteID] {
			return nil, 0, fmt.Errorf("unknown route_id '%s'", t.RouteID)
		}
		if services != nil && !services[t.ServiceID] {
			return nil, 0, fmt.Errorf("unknown service_id '%s'", t.ServiceID)
		}
		if shapes != nil && t.ShapeID != "" && !shapes[t.ShapeID] {
			return nil, 0, fmt.Errorf("unknown shape_id '%s'", t.ShapeID)
		}

		directionID, err := parseOptionalInt8(t.DirectionID, 0, "direction_id")
		if err != nil {
			return nil, 0, errors.Wrapf(err, "trip_id '%s'", t.ID)
		}
		if directionID != 0 && directionID != 1 {
			return nil, 0, fmt.Errorf("invalid direction_id '%d'", directionID)
		}

		wheelchair, err := parseOptionalInt8(t.WheelchairAccessible, 0, "wheelchair_accessible")
		if err != nil {
			return nil, 0, errors.Wrapf(err, "trip_id '%s'", t.ID)
		}
		bikes, err := parseOptionalInt8(t.BikesAllowed, 0, "bikes_allowed")
		if err != nil {
			return nil, 0, errors.Wrapf(err, "trip_id '%s'", t.ID)
		}

		err = writer.WriteTrip(&model.Trip{
			ID:                   t.ID,
			RouteID:              t.RouteID,
			ServiceID:            t.ServiceID,
			Headsign:             t.Headsign,
			ShortName:            t.ShortName,
			DirectionID:          directionID,
			BlockID:              t.BlockID,
			ShapeID:              t.ShapeID,
			WheelchairAccessible: wheelchair,
			BikesAllowed:         bikes,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("writing trip: %w", err)
		}
	}

	return trips, len(tripCsv), nil
}
