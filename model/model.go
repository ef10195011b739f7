package model

import (
	"strconv"
	"time"

	"github.com/transitdata/datahub/geo"
)

// Static schedule entities. Each is scoped to exactly one Feed in
// storage; uniqueness is (feed, natural id).

type LocationType int8

const (
	LocationTypeStop LocationType = iota
	LocationTypeStation
	LocationTypeEntranceExit
	LocationTypeGenericNode
	LocationTypeBoardingArea
)

type RouteType int8

const (
	RouteTypeTram      RouteType = 0
	RouteTypeSubway    RouteType = 1
	RouteTypeRail      RouteType = 2
	RouteTypeBus       RouteType = 3
	RouteTypeFerry     RouteType = 4
	RouteTypeCable     RouteType = 5
	RouteTypeAerial    RouteType = 6
	RouteTypeFunicular RouteType = 7
)

const (
	ExceptionTypeAdd    int8 = 1
	ExceptionTypeRemove int8 = 2
)

// Feed is one immutable imported snapshot of a provider's static
// schedule. Created once per detected upstream change, never
// mutated. At most one Feed per provider is current; promotion is a
// separate step from import.
type Feed struct {
	ID           string
	Provider     string
	ETag         string
	LastModified time.Time
	IsCurrent    bool
	RetrievedAt  time.Time
}

type Agency struct {
	ID       string
	Name     string
	URL      string
	Timezone string
	Lang     string
	Phone    string
	FareURL  string
	Email    string
}

type Stop struct {
	ID                 string
	Code               string
	Name               string
	Desc               string
	Lat                float64
	Lon                float64
	Point              geo.Point
	ZoneID             string
	URL                string
	LocationType       LocationType
	ParentStation      string
	WheelchairBoarding int8
	PlatformCode       string
}

// DerivePoint recomputes the stop's point geometry from its lat/lon
// columns. The point is never an independent fact; it must be rebuilt
// on every write.
func (s *Stop) DerivePoint() {
	s.Point = geo.Point{Lon: s.Lon, Lat: s.Lat}
}

type Route struct {
	ID        string
	AgencyID  string
	ShortName string
	LongName  string
	Desc      string
	Type      RouteType
	URL       string
	Color     string
	TextColor string
	SortOrder int
}

// Calendar holds a weekly service pattern. Weekday is a bitmask
// indexed by time.Weekday.
type Calendar struct {
	ServiceID string
	StartDate string // YYYYMMDD
	EndDate   string // YYYYMMDD
	Weekday   int8
}

type CalendarDate struct {
	ServiceID     string
	Date          string // YYYYMMDD
	ExceptionType int8
}

type ShapePoint struct {
	ShapeID      string
	Lat          float64
	Lon          float64
	Sequence     uint32
	DistTraveled float64
}

// GeoShape is a route's path as a single linestring, built by
// collapsing the ordered shape points sharing a shape_id.
type GeoShape struct {
	ShapeID string
	Line    geo.LineString
}

type Trip struct {
	ID                   string
	RouteID              string
	ServiceID            string
	Headsign             string
	ShortName            string
	DirectionID          int8
	BlockID              string
	ShapeID              string
	WheelchairAccessible int8
	BikesAllowed         int8
}

type StopTime struct {
	TripID       string
	StopID       string
	Headsign     string
	StopSequence uint32
	Arrival      string // HHMMSS
	Departure    string // HHMMSS
	PickupType   int8
	DropOffType  int8
	Timepoint    int8
}

// ArrivalTime returns the scheduled arrival as an offset from
// midnight. GTFS times can exceed 24h.
func (st *StopTime) ArrivalTime() time.Duration {
	return hhmmssDuration(st.Arrival)
}

func (st *StopTime) DepartureTime() time.Duration {
	return hhmmssDuration(st.Departure)
}

func hhmmssDuration(s string) time.Duration {
	if len(s) < 6 {
		return 0
	}
	h, _ := strconv.Atoi(s[0:2])
	m, _ := strconv.Atoi(s[2:4])
	sec, _ := strconv.Atoi(s[4:6])
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second
}

type FareAttribute struct {
	FareID           string
	Price            float64
	CurrencyType     string
	PaymentMethod    int8
	Transfers        int8
	TransferDuration int
}

type FareRule struct {
	FareID        string
	RouteID       string
	OriginID      string
	DestinationID string
	ContainsID    string
}

type FeedInfo struct {
	PublisherName string
	PublisherURL  string
	Lang          string
	StartDate     string
	EndDate       string
	Version       string
}

// RouteStop is a derived helper row: a distinct (route, direction,
// stop) triple, built from trips and stop_times at import time.
type RouteStop struct {
	RouteID     string
	DirectionID int8
	StopID      string
}

// TripDuration is a derived helper row: first and last scheduled
// arrival of a trip and the distance between them.
type TripDuration struct {
	TripID       string
	FirstArrival string // HHMMSS
	LastArrival  string // HHMMSS
	Duration     time.Duration
}
