package datahub

import (
	"fmt"
	"sort"
	"time"

	"github.com/transitdata/datahub/model"
	"github.com/transitdata/datahub/storage"
)

// Resolver answers arrival queries for one provider by joining the
// promoted schedule feed with the latest realtime snapshots. It is
// stateless between calls; every query re-resolves the current feed
// and the latest feed messages.
type Resolver struct {
	Storage  storage.Storage
	Provider string

	// Now is the reference clock when the caller gives no
	// timestamp. Replaced in tests.
	Now func() time.Time
}

func NewResolver(s storage.Storage, provider string) *Resolver {
	return &Resolver{
		Storage:  s,
		Provider: provider,
		Now:      time.Now,
	}
}

// Arrival is one upcoming arrival at a stop. Scheduled arrivals come
// from the static timetable; in-progress arrivals come from the latest
// realtime snapshot and may carry live vehicle progression.
type Arrival struct {
	TripID               string       `json:"trip_id"`
	RouteID              string       `json:"route_id"`
	RouteShortName       string       `json:"route_short_name"`
	RouteLongName        string       `json:"route_long_name"`
	TripHeadsign         string       `json:"trip_headsign"`
	WheelchairAccessible int8         `json:"wheelchair_accessible"`
	ArrivalTime          time.Time    `json:"arrival_time"`
	DepartureTime        time.Time    `json:"departure_time"`
	InProgress           bool         `json:"in_progress"`
	Progression          *Progression `json:"progression,omitempty"`
}

// Progression describes a live vehicle's advance along its trip.
// Present only when the trip's vehicle position was matched by trip
// descriptor and the trip has a shape.
type Progression struct {
	// PositionInShape is the vehicle's fractional progress along
	// the trip's shape, in [0, 1]. Nil when the trip has no shape,
	// so an absent shape never reads as a vehicle at the start.
	PositionInShape     *float64 `json:"position_in_shape,omitempty"`
	CurrentStopSequence int32    `json:"current_stop_sequence"`
	CurrentStatus       string   `json:"current_status"`
	OccupancyStatus     string   `json:"occupancy_status"`
}

type NextArrivalsResult struct {
	StopID    string     `json:"stop_id"`
	Timestamp time.Time  `json:"timestamp"`
	Arrivals  []*Arrival `json:"next_arrivals"`
}

// NextStop is one upcoming stop of an in-progress trip, joined to the
// static stop for display.
type NextStop struct {
	StopSequence int32     `json:"stop_sequence"`
	StopID       string    `json:"stop_id"`
	StopName     string    `json:"stop_name"`
	StopLat      float64   `json:"stop_lat"`
	StopLon      float64   `json:"stop_lon"`
	Arrival      time.Time `json:"arrival"`
	Departure    time.Time `json:"departure"`
}

type NextStopsResult struct {
	TripID    string      `json:"trip_id"`
	StartDate string      `json:"start_date"`
	StartTime string      `json:"start_time"`
	NextStops []*NextStop `json:"next_stop_sequence"`
}

// NextArrivals returns the upcoming arrivals at a stop, at the given
// time. Scheduled arrivals and realtime arrivals are merged; when the
// realtime snapshot covers a trip, its prediction replaces the
// scheduled row for that trip.
//
// An unknown stop is ErrNotFound. A date with no active service is an
// empty result, not an error.
func (r *Resolver) NextArrivals(stopID string, at time.Time) (*NextArrivalsResult, error) {
	if stopID == "" {
		return nil, ErrInvalidRequest
	}
	if at.IsZero() {
		at = r.Now()
	}

	feed, err := r.Storage.CurrentFeed(r.Provider)
	if err == storage.ErrNotFound {
		return nil, ErrNoCurrentFeed
	}
	if err != nil {
		return nil, fmt.Errorf("resolving current feed: %w", err)
	}

	reader, err := r.Storage.ScheduleReader(feed.ID)
	if err != nil {
		return nil, fmt.Errorf("opening schedule reader: %w", err)
	}

	if _, err := reader.StopByID(stopID); err == storage.ErrNotFound {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("resolving stop: %w", err)
	}

	result := &NextArrivalsResult{
		StopID:    stopID,
		Timestamp: at,
		Arrivals:  []*Arrival{},
	}

	serviceID, err := reader.ActiveService(at.Format("20060102"))
	if err != nil {
		return nil, fmt.Errorf("resolving active service: %w", err)
	}
	if serviceID == "" {
		return result, nil
	}

	scheduled, err := r.scheduledArrivals(reader, stopID, serviceID, at)
	if err != nil {
		return nil, err
	}

	live, liveTrips, err := r.realtimeArrivals(reader, stopID)
	if err != nil {
		return nil, err
	}

	for _, a := range scheduled {
		if liveTrips[a.TripID] {
			continue
		}
		result.Arrivals = append(result.Arrivals, a)
	}
	result.Arrivals = append(result.Arrivals, live...)

	sort.SliceStable(result.Arrivals, func(i, j int) bool {
		return result.Arrivals[i].ArrivalTime.Before(result.Arrivals[j].ArrivalTime)
	})

	return result, nil
}

func (r *Resolver) scheduledArrivals(reader storage.ScheduleReader, stopID string, serviceID string, at time.Time) ([]*Arrival, error) {
	events, err := reader.StopTimeEvents(storage.StopTimeEventFilter{
		StopID:       stopID,
		ServiceIDs:   []string{serviceID},
		DirectionID:  -1,
		ArrivalStart: at.Format("150405"),
	})
	if err != nil {
		return nil, fmt.Errorf("resolving scheduled arrivals: %w", err)
	}

	// Schedule times are offsets from service-day midnight and may
	// exceed 24h.
	midnight := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())

	arrivals := make([]*Arrival, 0, len(events))
	for _, ev := range events {
		arrivals = append(arrivals, &Arrival{
			TripID:               ev.Trip.ID,
			RouteID:              ev.Route.ID,
			RouteShortName:       ev.Route.ShortName,
			RouteLongName:        ev.Route.LongName,
			TripHeadsign:         ev.Trip.Headsign,
			WheelchairAccessible: ev.Trip.WheelchairAccessible,
			ArrivalTime:          midnight.Add(ev.StopTime.ArrivalTime()),
			DepartureTime:        midnight.Add(ev.StopTime.DepartureTime()),
			InProgress:           false,
		})
	}

	return arrivals, nil
}

func (r *Resolver) realtimeArrivals(reader storage.ScheduleReader, stopID string) ([]*Arrival, map[string]bool, error) {
	liveTrips := map[string]bool{}

	fm, err := r.Storage.LatestFeedMessage(r.Provider, model.EntityTripUpdate)
	if err == storage.ErrNotFound {
		return nil, liveTrips, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("resolving latest trip updates: %w", err)
	}

	stus, err := r.Storage.StopTimeUpdates(storage.StopTimeUpdateFilter{
		FeedMessageID: fm.ID,
		StopID:        stopID,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("resolving stop time updates: %w", err)
	}

	var arrivals []*Arrival
	for _, stu := range stus {
		tus, err := r.Storage.TripUpdates(storage.TripUpdateFilter{ID: stu.TripUpdateID})
		if err != nil {
			return nil, nil, fmt.Errorf("resolving trip update: %w", err)
		}
		if len(tus) == 0 {
			continue
		}
		tu := tus[0]

		arrival := &Arrival{
			TripID:        tu.TripID,
			RouteID:       tu.RouteID,
			ArrivalTime:   stu.ArrivalTime,
			DepartureTime: stu.DepartureTime,
			InProgress:    true,
		}

		// Static enrichment is best-effort. The realtime feed may
		// reference a trip the promoted schedule doesn't carry yet.
		var shapeID string
		if trip, err := reader.TripByID(tu.TripID); err == nil {
			arrival.TripHeadsign = trip.Headsign
			arrival.WheelchairAccessible = trip.WheelchairAccessible
			shapeID = trip.ShapeID
			if arrival.RouteID == "" {
				arrival.RouteID = trip.RouteID
			}
		} else if err != storage.ErrNotFound {
			return nil, nil, fmt.Errorf("resolving trip: %w", err)
		}
		if arrival.RouteID != "" {
			if route, err := reader.RouteByID(arrival.RouteID); err == nil {
				arrival.RouteShortName = route.ShortName
				arrival.RouteLongName = route.LongName
			} else if err != storage.ErrNotFound {
				return nil, nil, fmt.Errorf("resolving route: %w", err)
			}
		}

		progression, err := r.progression(reader, tu, shapeID)
		if err != nil {
			return nil, nil, err
		}
		arrival.Progression = progression

		liveTrips[tu.TripID] = true
		arrivals = append(arrivals, arrival)
	}

	return arrivals, liveTrips, nil
}

// progression matches the trip update's vehicle position from the
// latest vehicle snapshot by composite trip descriptor. The two
// entities arrive on independent polls, so the join is by descriptor
// value, never by key.
func (r *Resolver) progression(reader storage.ScheduleReader, tu *model.TripUpdate, shapeID string) (*Progression, error) {
	fm, err := r.Storage.LatestFeedMessage(r.Provider, model.EntityVehicle)
	if err == storage.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving latest vehicle positions: %w", err)
	}

	vps, err := r.Storage.VehiclePositions(storage.VehiclePositionFilter{
		FeedMessageID: fm.ID,
		TripID:        tu.TripID,
		StartDate:     tu.StartDate,
		StartTime:     tu.StartTime,
	})
	if err != nil {
		return nil, fmt.Errorf("resolving vehicle position: %w", err)
	}
	if len(vps) == 0 {
		return nil, nil
	}
	vp := vps[0]

	progression := &Progression{
		CurrentStopSequence: vp.CurrentStopSequence,
		CurrentStatus:       vp.CurrentStatus,
		OccupancyStatus:     vp.OccupancyStatus,
	}

	if shapeID != "" {
		shape, err := reader.GeoShape(shapeID)
		if err == nil {
			position := shape.Line.PositionInShape(vp.Point)
			progression.PositionInShape = &position
		} else if err != storage.ErrNotFound {
			return nil, fmt.Errorf("resolving shape: %w", err)
		}
	}

	return progression, nil
}

// NextStops returns the remaining predicted stops of an in-progress
// trip, identified by its exact composite trip descriptor. ErrNotFound
// when the latest snapshot carries no matching trip update.
func (r *Resolver) NextStops(tripID string, startDate string, startTime string) (*NextStopsResult, error) {
	if tripID == "" || startDate == "" || startTime == "" {
		return nil, ErrInvalidRequest
	}

	fm, err := r.Storage.LatestFeedMessage(r.Provider, model.EntityTripUpdate)
	if err == storage.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolving latest trip updates: %w", err)
	}

	tus, err := r.Storage.TripUpdates(storage.TripUpdateFilter{
		FeedMessageID: fm.ID,
		TripID:        tripID,
		StartDate:     startDate,
		StartTime:     startTime,
	})
	if err != nil {
		return nil, fmt.Errorf("resolving trip update: %w", err)
	}
	if len(tus) == 0 {
		return nil, ErrNotFound
	}
	tu := tus[0]

	stus, err := r.Storage.StopTimeUpdates(storage.StopTimeUpdateFilter{
		TripUpdateID: tu.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("resolving stop time updates: %w", err)
	}
	sort.Slice(stus, func(i, j int) bool {
		return stus[i].StopSequence < stus[j].StopSequence
	})

	var reader storage.ScheduleReader
	if feed, err := r.Storage.CurrentFeed(r.Provider); err == nil {
		reader, err = r.Storage.ScheduleReader(feed.ID)
		if err != nil {
			return nil, fmt.Errorf("opening schedule reader: %w", err)
		}
	} else if err != storage.ErrNotFound {
		return nil, fmt.Errorf("resolving current feed: %w", err)
	}

	result := &NextStopsResult{
		TripID:    tripID,
		StartDate: startDate,
		StartTime: startTime,
		NextStops: []*NextStop{},
	}

	for _, stu := range stus {
		ns := &NextStop{
			StopSequence: stu.StopSequence,
			StopID:       stu.StopID,
			Arrival:      stu.ArrivalTime,
			Departure:    stu.DepartureTime,
		}
		if reader != nil && stu.StopID != "" {
			if stop, err := reader.StopByID(stu.StopID); err == nil {
				ns.StopName = stop.Name
				ns.StopLat = stop.Lat
				ns.StopLon = stop.Lon
			} else if err != storage.ErrNotFound {
				return nil, fmt.Errorf("resolving stop: %w", err)
			}
		}
		result.NextStops = append(result.NextStops, ns)
	}

	return result, nil
}
