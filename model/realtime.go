package model

import (
	"time"

	"github.com/transitdata/datahub/geo"
)

// Realtime entities. These reference static entities by natural key
// (trip_id, route_id, stop_id), never by structural link: realtime
// payloads may reference trips from a feed version not yet imported,
// and must still be stored.

const (
	EntityTripUpdate = "trip_update"
	EntityVehicle    = "vehicle"
	EntityAlert      = "alert"
)

// FeedMessage is the envelope of one realtime poll: one row per poll
// per provider per entity kind. Immutable once written. The current
// snapshot for an entity kind is the FeedMessage with the latest
// timestamp, resolved at query time.
type FeedMessage struct {
	ID             string // {provider}-{entity_type}-{header timestamp}
	Provider       string
	Timestamp      time.Time
	EntityType     string
	Incrementality string
	Version        string
}

// TripUpdate is one trip referenced by a trip_update FeedMessage,
// carrying the trip and vehicle descriptors.
type TripUpdate struct {
	ID            string
	FeedMessageID string
	EntityID      string

	// Trip descriptor. (TripID, StartDate, StartTime) is the
	// composite key correlating a TripUpdate with the
	// VehiclePosition from an independent poll.
	TripID               string
	RouteID              string
	DirectionID          int8 // -1 when the feed omits it
	StartTime            string
	StartDate            string
	ScheduleRelationship string

	// Vehicle descriptor
	VehicleID           string
	VehicleLabel        string
	VehicleLicensePlate string

	Timestamp time.Time
	Delay     int32
}

// DescriptorKey returns the composite trip descriptor used to join
// TripUpdate and VehiclePosition rows across independent polls.
func (tu *TripUpdate) DescriptorKey() string {
	return tu.TripID + "|" + tu.StartDate + "|" + tu.StartTime
}

// StopTimeUpdate is one predicted stop event within a TripUpdate. A
// point-in-time prediction, superseded entirely by the next poll's
// replacement set for the trip.
type StopTimeUpdate struct {
	ID            string
	TripUpdateID  string
	FeedMessageID string

	StopSequence int32
	StopID       string

	ArrivalDelay       int32
	ArrivalTime        time.Time
	ArrivalUncertainty int32

	DepartureDelay       int32
	DepartureTime        time.Time
	DepartureUncertainty int32

	DepartureOccupancyStatus string
	ScheduleRelationship     string
}

// VehiclePosition is one vehicle referenced by a vehicle FeedMessage.
type VehiclePosition struct {
	ID            string
	FeedMessageID string
	EntityID      string

	// Trip descriptor
	TripID               string
	RouteID              string
	DirectionID          int8
	StartTime            string
	StartDate            string
	ScheduleRelationship string

	// Vehicle descriptor
	VehicleID           string
	VehicleLabel        string
	VehicleLicensePlate string

	Lat      float64
	Lon      float64
	Point    geo.Point
	Bearing  float64
	Odometer float64
	Speed    float64

	CurrentStopSequence int32 // -1 when the feed omits it
	StopID              string
	CurrentStatus       string
	Timestamp           time.Time
	CongestionLevel     string
	OccupancyStatus     string
	OccupancyPercentage int32
}

func (vp *VehiclePosition) DescriptorKey() string {
	return vp.TripID + "|" + vp.StartDate + "|" + vp.StartTime
}

// DerivePoint recomputes the vehicle's point geometry from its
// lat/lon. Same invariant as Stop: recomputed on every write, never
// trusted as input.
func (vp *VehiclePosition) DerivePoint() {
	vp.Point = geo.Point{Lon: vp.Lon, Lat: vp.Lat}
}
