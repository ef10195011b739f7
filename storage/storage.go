package storage

import (
	"errors"

	"github.com/transitdata/datahub/model"
)

// ErrNotFound is returned by point lookups when no row matches.
var ErrNotFound = errors.New("not found")

// Storage holds both the schedule store and the realtime store.
//
// The schedule side is written once per Feed by the importer and is
// read-only afterwards. The realtime side is append-only: every poll
// writes a new FeedMessage plus its rows, and the current snapshot is
// resolved at read time by timestamp.
type Storage interface {
	// Feeds
	WriteFeed(feed *model.Feed) error
	ListFeeds(filter ListFeedsFilter) ([]*model.Feed, error)
	CurrentFeed(provider string) (*model.Feed, error)

	// PromoteFeed marks the given feed current and clears the flag
	// on every other feed of the same provider, atomically.
	PromoteFeed(provider string, feedID string) error

	// Per-feed schedule access. The writer tags every row with the
	// feed; the reader only sees rows of its feed.
	ScheduleWriter(feedID string) (ScheduleWriter, error)
	ScheduleReader(feedID string) (ScheduleReader, error)

	// Realtime writes. Each call commits the envelope and all its
	// rows as a single transaction. Re-delivery of an identical
	// payload is absorbed by primary key conflict, never by update.
	WriteTripUpdates(fm *model.FeedMessage, tus []*model.TripUpdate, stus []*model.StopTimeUpdate) error
	WriteVehiclePositions(fm *model.FeedMessage, vps []*model.VehiclePosition) error

	// Realtime reads.
	LatestFeedMessage(provider string, entityType string) (*model.FeedMessage, error)
	TripUpdates(filter TripUpdateFilter) ([]*model.TripUpdate, error)
	StopTimeUpdates(filter StopTimeUpdateFilter) ([]*model.StopTimeUpdate, error)
	VehiclePositions(filter VehiclePositionFilter) ([]*model.VehiclePosition, error)

	Close() error
}

type ListFeedsFilter struct {
	// If set, only include feeds for the given provider.
	Provider string

	// If set, only include the feed with this ID.
	ID string

	// If true, only include promoted feeds.
	CurrentOnly bool
}

type TripUpdateFilter struct {
	ID            string
	FeedMessageID string

	// Exact composite trip descriptor match.
	TripID    string
	StartDate string
	StartTime string
}

type StopTimeUpdateFilter struct {
	FeedMessageID string
	TripUpdateID  string
	StopID        string
}

type VehiclePositionFilter struct {
	FeedMessageID string

	// Exact composite trip descriptor match.
	TripID    string
	StartDate string
	StartTime string
}

// ScheduleWriter writes the static tables of a single feed, in
// dependency order. As stop_times.txt tends to be very large,
// BeginStopTimes and EndStopTimes bracket those writes so the backend
// can batch them in one transaction.
type ScheduleWriter interface {
	WriteAgency(a *model.Agency) error
	WriteStop(s *model.Stop) error
	WriteRoute(r *model.Route) error
	WriteCalendar(c *model.Calendar) error
	WriteCalendarDate(cd *model.CalendarDate) error
	WriteShapePoint(sp *model.ShapePoint) error
	WriteGeoShape(gs *model.GeoShape) error
	WriteTrip(t *model.Trip) error
	BeginStopTimes() error
	WriteStopTime(st *model.StopTime) error
	EndStopTimes() error
	WriteFareAttribute(fa *model.FareAttribute) error
	WriteFareRule(fr *model.FareRule) error
	WriteFeedInfo(fi *model.FeedInfo) error

	// BuildDerived populates the helper tables (route_stops,
	// trip_durations) from the rows written so far.
	BuildDerived() error

	Close() error
}

// ScheduleReader reads the static tables of a single feed.
type ScheduleReader interface {
	Agencies() ([]*model.Agency, error)
	Stops() ([]*model.Stop, error)
	StopByID(stopID string) (*model.Stop, error)
	Routes() ([]*model.Route, error)
	RouteByID(routeID string) (*model.Route, error)
	Trips() ([]*model.Trip, error)
	TripByID(tripID string) (*model.Trip, error)
	Calendars() ([]*model.Calendar, error)
	CalendarDates() ([]*model.CalendarDate, error)
	ShapePoints(shapeID string) ([]*model.ShapePoint, error)
	GeoShape(shapeID string) (*model.GeoShape, error)
	FeedInfo() (*model.FeedInfo, error)
	RouteStops(routeID string) ([]*model.RouteStop, error)
	TripDuration(tripID string) (*model.TripDuration, error)

	// ActiveService resolves the service operating on the given
	// date (YYYYMMDD). An add exception takes precedence over the
	// weekly pattern; a remove exception suppresses an otherwise
	// matching weekly service. Returns "" when no service runs.
	ActiveService(date string) (string, error)

	// StopTimeEvents lists stop_times matching the filter, joined
	// with their trip, route and stop.
	StopTimeEvents(filter StopTimeEventFilter) ([]*StopTimeEvent, error)
}

type StopTimeEventFilter struct {
	// Limit results to events for the given stop.
	StopID string

	// Limit results to a set of services, a route, or a set of
	// trips.
	ServiceIDs []string
	RouteID    string
	TripIDs    []string

	// Limit results to a direction. Pass -1 to include all.
	DirectionID int

	// Limit results to stop_times with arrival within a range
	// (inclusive). Times given as HHMMSS.
	ArrivalStart string
	ArrivalEnd   string
}

// StopTimeEvent is a stop_time row joined with its trip, route and
// stop.
type StopTimeEvent struct {
	StopTime *model.StopTime
	Trip     *model.Trip
	Route    *model.Route
	Stop     *model.Stop
}
