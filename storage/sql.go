package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/transitdata/datahub/model"
)

// SQLStorage implements Storage on top of database/sql. The same
// schema and queries serve both SQLite and PostgreSQL; the only
// difference is the placeholder style, handled by rebind.
type SQLStorage struct {
	db       *sql.DB
	numbered bool
}

var schema = `
CREATE TABLE IF NOT EXISTS feed (
    feed_id TEXT PRIMARY KEY,
    provider TEXT NOT NULL,
    http_etag TEXT NOT NULL,
    http_last_modified TIMESTAMP,
    is_current BOOLEAN NOT NULL,
    retrieved_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS feed_provider ON feed (provider);

CREATE TABLE IF NOT EXISTS agency (
    feed_id TEXT NOT NULL,
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    url TEXT NOT NULL,
    timezone TEXT NOT NULL,
    lang TEXT NOT NULL,
    phone TEXT NOT NULL,
    fare_url TEXT NOT NULL,
    email TEXT NOT NULL,
    PRIMARY KEY (feed_id, id)
);

CREATE TABLE IF NOT EXISTS stops (
    feed_id TEXT NOT NULL,
    id TEXT NOT NULL,
    code TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL,
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL,
    point TEXT NOT NULL,
    zone_id TEXT NOT NULL,
    url TEXT NOT NULL,
    location_type INTEGER NOT NULL,
    parent_station TEXT NOT NULL,
    wheelchair_boarding INTEGER NOT NULL,
    platform_code TEXT NOT NULL,
    PRIMARY KEY (feed_id, id)
);
CREATE INDEX IF NOT EXISTS stops_parent_station ON stops (feed_id, parent_station);

CREATE TABLE IF NOT EXISTS routes (
    feed_id TEXT NOT NULL,
    id TEXT NOT NULL,
    agency_id TEXT NOT NULL,
    short_name TEXT NOT NULL,
    long_name TEXT NOT NULL,
    description TEXT NOT NULL,
    type INTEGER NOT NULL,
    url TEXT NOT NULL,
    color TEXT NOT NULL,
    text_color TEXT NOT NULL,
    sort_order INTEGER NOT NULL,
    PRIMARY KEY (feed_id, id)
);

CREATE TABLE IF NOT EXISTS calendar (
    feed_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    monday INTEGER NOT NULL,
    tuesday INTEGER NOT NULL,
    wednesday INTEGER NOT NULL,
    thursday INTEGER NOT NULL,
    friday INTEGER NOT NULL,
    saturday INTEGER NOT NULL,
    sunday INTEGER NOT NULL,
    PRIMARY KEY (feed_id, service_id)
);

CREATE TABLE IF NOT EXISTS calendar_dates (
    feed_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    date TEXT NOT NULL,
    exception_type INTEGER NOT NULL,
    PRIMARY KEY (feed_id, service_id, date)
);
CREATE INDEX IF NOT EXISTS calendar_dates_date ON calendar_dates (feed_id, date);

CREATE TABLE IF NOT EXISTS shapes (
    feed_id TEXT NOT NULL,
    shape_id TEXT NOT NULL,
    pt_sequence INTEGER NOT NULL,
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL,
    dist_traveled DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (feed_id, shape_id, pt_sequence)
);

CREATE TABLE IF NOT EXISTS geoshapes (
    feed_id TEXT NOT NULL,
    shape_id TEXT NOT NULL,
    geoshape TEXT NOT NULL,
    PRIMARY KEY (feed_id, shape_id)
);

CREATE TABLE IF NOT EXISTS trips (
    feed_id TEXT NOT NULL,
    id TEXT NOT NULL,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    headsign TEXT NOT NULL,
    short_name TEXT NOT NULL,
    direction_id INTEGER NOT NULL,
    block_id TEXT NOT NULL,
    shape_id TEXT NOT NULL,
    wheelchair_accessible INTEGER NOT NULL,
    bikes_allowed INTEGER NOT NULL,
    PRIMARY KEY (feed_id, id)
);
CREATE INDEX IF NOT EXISTS trips_route_id ON trips (feed_id, route_id);
CREATE INDEX IF NOT EXISTS trips_service_id ON trips (feed_id, service_id);

CREATE TABLE IF NOT EXISTS stop_times (
    feed_id TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    stop_sequence INTEGER NOT NULL,
    arrival_time TEXT NOT NULL,
    departure_time TEXT NOT NULL,
    headsign TEXT NOT NULL,
    pickup_type INTEGER NOT NULL,
    drop_off_type INTEGER NOT NULL,
    timepoint INTEGER NOT NULL,
    PRIMARY KEY (feed_id, trip_id, stop_sequence)
);
CREATE INDEX IF NOT EXISTS stop_times_stop_id ON stop_times (feed_id, stop_id);
CREATE INDEX IF NOT EXISTS stop_times_arrival_time ON stop_times (feed_id, arrival_time);

CREATE TABLE IF NOT EXISTS fare_attributes (
    feed_id TEXT NOT NULL,
    id TEXT NOT NULL,
    price DOUBLE PRECISION NOT NULL,
    currency_type TEXT NOT NULL,
    payment_method INTEGER NOT NULL,
    transfers INTEGER NOT NULL,
    transfer_duration INTEGER NOT NULL,
    PRIMARY KEY (feed_id, id)
);

CREATE TABLE IF NOT EXISTS fare_rules (
    feed_id TEXT NOT NULL,
    fare_id TEXT NOT NULL,
    route_id TEXT NOT NULL,
    origin_id TEXT NOT NULL,
    destination_id TEXT NOT NULL,
    contains_id TEXT NOT NULL,
    PRIMARY KEY (feed_id, fare_id, route_id, origin_id, destination_id, contains_id)
);

CREATE TABLE IF NOT EXISTS feed_info (
    feed_id TEXT NOT NULL,
    publisher_name TEXT NOT NULL,
    publisher_url TEXT NOT NULL,
    lang TEXT NOT NULL,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    version TEXT NOT NULL,
    PRIMARY KEY (feed_id)
);

CREATE TABLE IF NOT EXISTS route_stops (
    feed_id TEXT NOT NULL,
    route_id TEXT NOT NULL,
    direction_id INTEGER NOT NULL,
    stop_id TEXT NOT NULL,
    PRIMARY KEY (feed_id, route_id, direction_id, stop_id)
);

CREATE TABLE IF NOT EXISTS trip_durations (
    feed_id TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    first_arrival TEXT NOT NULL,
    last_arrival TEXT NOT NULL,
    duration_secs BIGINT NOT NULL,
    PRIMARY KEY (feed_id, trip_id)
);

CREATE TABLE IF NOT EXISTS feed_messages (
    id TEXT PRIMARY KEY,
    provider TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    incrementality TEXT NOT NULL,
    version TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS feed_messages_latest ON feed_messages (provider, entity_type, timestamp);

CREATE TABLE IF NOT EXISTS trip_updates (
    id TEXT PRIMARY KEY,
    feed_message_id TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    route_id TEXT NOT NULL,
    direction_id INTEGER NOT NULL,
    start_time TEXT NOT NULL,
    start_date TEXT NOT NULL,
    schedule_relationship TEXT NOT NULL,
    vehicle_id TEXT NOT NULL,
    vehicle_label TEXT NOT NULL,
    vehicle_license_plate TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    delay INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS trip_updates_feed_message ON trip_updates (feed_message_id);
CREATE INDEX IF NOT EXISTS trip_updates_descriptor ON trip_updates (trip_id, start_date, start_time);

CREATE TABLE IF NOT EXISTS stop_time_updates (
    id TEXT PRIMARY KEY,
    trip_update_id TEXT NOT NULL,
    feed_message_id TEXT NOT NULL,
    stop_sequence INTEGER NOT NULL,
    stop_id TEXT NOT NULL,
    arrival_delay INTEGER NOT NULL,
    arrival_time TIMESTAMP,
    arrival_uncertainty INTEGER NOT NULL,
    departure_delay INTEGER NOT NULL,
    departure_time TIMESTAMP,
    departure_uncertainty INTEGER NOT NULL,
    departure_occupancy_status TEXT NOT NULL,
    schedule_relationship TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS stop_time_updates_trip_update ON stop_time_updates (trip_update_id);
CREATE INDEX IF NOT EXISTS stop_time_updates_stop ON stop_time_updates (feed_message_id, stop_id);

CREATE TABLE IF NOT EXISTS vehicle_positions (
    id TEXT PRIMARY KEY,
    feed_message_id TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    route_id TEXT NOT NULL,
    direction_id INTEGER NOT NULL,
    start_time TEXT NOT NULL,
    start_date TEXT NOT NULL,
    schedule_relationship TEXT NOT NULL,
    vehicle_id TEXT NOT NULL,
    vehicle_label TEXT NOT NULL,
    vehicle_license_plate TEXT NOT NULL,
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL,
    point TEXT NOT NULL,
    bearing DOUBLE PRECISION NOT NULL,
    odometer DOUBLE PRECISION NOT NULL,
    speed DOUBLE PRECISION NOT NULL,
    current_stop_sequence INTEGER NOT NULL,
    stop_id TEXT NOT NULL,
    current_status TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    congestion_level TEXT NOT NULL,
    occupancy_status TEXT NOT NULL,
    occupancy_percentage INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS vehicle_positions_feed_message ON vehicle_positions (feed_message_id);
CREATE INDEX IF NOT EXISTS vehicle_positions_descriptor ON vehicle_positions (trip_id, start_date, start_time);
`

func newSQLStorage(db *sql.DB, numbered bool, clearDB bool) (*SQLStorage, error) {
	if clearDB {
		for _, table := range []string{
			"feed", "agency", "stops", "routes", "calendar",
			"calendar_dates", "shapes", "geoshapes", "trips",
			"stop_times", "fare_attributes", "fare_rules",
			"feed_info", "route_stops", "trip_durations",
			"feed_messages", "trip_updates", "stop_time_updates",
			"vehicle_positions",
		} {
			_, err := db.Exec("DROP TABLE IF EXISTS " + table)
			if err != nil {
				db.Close()
				return nil, fmt.Errorf("dropping %s table: %w", table, err)
			}
		}
	}

	_, err := db.Exec(schema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &SQLStorage{db: db, numbered: numbered}, nil
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}

func (s *SQLStorage) WriteFeed(feed *model.Feed) error {
	_, err := s.db.Exec(rebind(s.numbered, `
INSERT INTO feed (feed_id, provider, http_etag, http_last_modified, is_current, retrieved_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (feed_id) DO NOTHING`),
		feed.ID,
		feed.Provider,
		feed.ETag,
		nullTime(feed.LastModified),
		feed.IsCurrent,
		feed.RetrievedAt,
	)
	if err != nil {
		return fmt.Errorf("writing feed: %w", err)
	}
	return nil
}

func (s *SQLStorage) ListFeeds(filter ListFeedsFilter) ([]*model.Feed, error) {
	query := `
SELECT feed_id, provider, http_etag, http_last_modified, is_current, retrieved_at
FROM feed`

	conditions := []string{}
	params := []interface{}{}
	if filter.Provider != "" {
		conditions = append(conditions, "provider = ?")
		params = append(params, filter.Provider)
	}
	if filter.ID != "" {
		conditions = append(conditions, "feed_id = ?")
		params = append(params, filter.ID)
	}
	if filter.CurrentOnly {
		conditions = append(conditions, "is_current")
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY retrieved_at DESC"

	rows, err := s.db.Query(rebind(s.numbered, query), params...)
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}
	defer rows.Close()

	feeds := []*model.Feed{}
	for rows.Next() {
		var feed model.Feed
		var lastModified sql.NullTime
		err := rows.Scan(
			&feed.ID,
			&feed.Provider,
			&feed.ETag,
			&lastModified,
			&feed.IsCurrent,
			&feed.RetrievedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning feed: %w", err)
		}
		feed.LastModified = timeOf(lastModified)
		feeds = append(feeds, &feed)
	}

	return feeds, nil
}

func (s *SQLStorage) CurrentFeed(provider string) (*model.Feed, error) {
	feeds, err := s.ListFeeds(ListFeedsFilter{Provider: provider, CurrentOnly: true})
	if err != nil {
		return nil, err
	}
	if len(feeds) == 0 {
		return nil, ErrNotFound
	}
	return feeds[0], nil
}

func (s *SQLStorage) PromoteFeed(provider string, feedID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	res, err := tx.Exec(rebind(s.numbered, `
UPDATE feed SET is_current = (feed_id = ?)
WHERE provider = ?`), feedID, provider)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("promoting feed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("checking promoted rows: %w", err)
	}
	if affected == 0 {
		tx.Rollback()
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SQLStorage) ScheduleWriter(feedID string) (ScheduleWriter, error) {
	if feedID == "" {
		return nil, fmt.Errorf("empty feed ID")
	}
	return &sqlScheduleWriter{s: s, feedID: feedID}, nil
}

func (s *SQLStorage) ScheduleReader(feedID string) (ScheduleReader, error) {
	if feedID == "" {
		return nil, fmt.Errorf("empty feed ID")
	}
	return &sqlScheduleReader{s: s, feedID: feedID}, nil
}

func (s *SQLStorage) WriteTripUpdates(fm *model.FeedMessage, tus []*model.TripUpdate, stus []*model.StopTimeUpdate) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	if err := s.insertFeedMessage(tx, fm); err != nil {
		tx.Rollback()
		return err
	}

	insertTU, err := tx.Prepare(rebind(s.numbered, `
INSERT INTO trip_updates (
    id, feed_message_id, entity_id, trip_id, route_id, direction_id,
    start_time, start_date, schedule_relationship,
    vehicle_id, vehicle_label, vehicle_license_plate, timestamp, delay
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing trip_update insert: %w", err)
	}

	for _, tu := range tus {
		_, err := insertTU.Exec(
			tu.ID,
			tu.FeedMessageID,
			tu.EntityID,
			tu.TripID,
			tu.RouteID,
			tu.DirectionID,
			tu.StartTime,
			tu.StartDate,
			tu.ScheduleRelationship,
			tu.VehicleID,
			tu.VehicleLabel,
			tu.VehicleLicensePlate,
			tu.Timestamp,
			tu.Delay,
		)
		if err != nil {
			insertTU.Close()
			tx.Rollback()
			return fmt.Errorf("inserting trip_update: %w", err)
		}
	}
	insertTU.Close()

	insertSTU, err := tx.Prepare(rebind(s.numbered, `
INSERT INTO stop_time_updates (
    id, trip_update_id, feed_message_id, stop_sequence, stop_id,
    arrival_delay, arrival_time, arrival_uncertainty,
    departure_delay, departure_time, departure_uncertainty,
    departure_occupancy_status, schedule_relationship
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing stop_time_update insert: %w", err)
	}

	for _, stu := range stus {
		_, err := insertSTU.Exec(
			stu.ID,
			stu.TripUpdateID,
			stu.FeedMessageID,
			stu.StopSequence,
			stu.StopID,
			stu.ArrivalDelay,
			nullTime(stu.ArrivalTime),
			stu.ArrivalUncertainty,
			stu.DepartureDelay,
			nullTime(stu.DepartureTime),
			stu.DepartureUncertainty,
			stu.DepartureOccupancyStatus,
			stu.ScheduleRelationship,
		)
		if err != nil {
			insertSTU.Close()
			tx.Rollback()
			return fmt.Errorf("inserting stop_time_update: %w", err)
		}
	}
	insertSTU.Close()

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SQLStorage) WriteVehiclePositions(fm *model.FeedMessage, vps []*model.VehiclePosition) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	if err := s.insertFeedMessage(tx, fm); err != nil {
		tx.Rollback()
		return err
	}

	insertVP, err := tx.Prepare(rebind(s.numbered, `
INSERT INTO vehicle_positions (
    id, feed_message_id, entity_id, trip_id, route_id, direction_id,
    start_time, start_date, schedule_relationship,
    vehicle_id, vehicle_label, vehicle_license_plate,
    lat, lon, point, bearing, odometer, speed,
    current_stop_sequence, stop_id, current_status, timestamp,
    congestion_level, occupancy_status, occupancy_percentage
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing vehicle_position insert: %w", err)
	}

	for _, vp := range vps {
		vp.DerivePoint()
		_, err := insertVP.Exec(
			vp.ID,
			vp.FeedMessageID,
			vp.EntityID,
			vp.TripID,
			vp.RouteID,
			vp.DirectionID,
			vp.StartTime,
			vp.StartDate,
			vp.ScheduleRelationship,
			vp.VehicleID,
			vp.VehicleLabel,
			vp.VehicleLicensePlate,
			vp.Lat,
			vp.Lon,
			vp.Point.WKT(),
			vp.Bearing,
			vp.Odometer,
			vp.Speed,
			vp.CurrentStopSequence,
			vp.StopID,
			vp.CurrentStatus,
			vp.Timestamp,
			vp.CongestionLevel,
			vp.OccupancyStatus,
			vp.OccupancyPercentage,
		)
		if err != nil {
			insertVP.Close()
			tx.Rollback()
			return fmt.Errorf("inserting vehicle_position: %w", err)
		}
	}
	insertVP.Close()

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SQLStorage) insertFeedMessage(tx *sql.Tx, fm *model.FeedMessage) error {
	_, err := tx.Exec(rebind(s.numbered, `
INSERT INTO feed_messages (id, provider, entity_type, timestamp, incrementality, version)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`),
		fm.ID,
		fm.Provider,
		fm.EntityType,
		fm.Timestamp,
		fm.Incrementality,
		fm.Version,
	)
	if err != nil {
		return fmt.Errorf("inserting feed_message: %w", err)
	}
	return nil
}

func (s *SQLStorage) LatestFeedMessage(provider string, entityType string) (*model.FeedMessage, error) {
	row := s.db.QueryRow(rebind(s.numbered, `
SELECT id, provider, entity_type, timestamp, incrementality, version
FROM feed_messages
WHERE provider = ? AND entity_type = ?
ORDER BY timestamp DESC
LIMIT 1`), provider, entityType)

	var fm model.FeedMessage
	err := row.Scan(
		&fm.ID,
		&fm.Provider,
		&fm.EntityType,
		&fm.Timestamp,
		&fm.Incrementality,
		&fm.Version,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning feed_message: %w", err)
	}

	return &fm, nil
}

func (s *SQLStorage) TripUpdates(filter TripUpdateFilter) ([]*model.TripUpdate, error) {
	query := `
SELECT
    id, feed_message_id, entity_id, trip_id, route_id, direction_id,
    start_time, start_date, schedule_relationship,
    vehicle_id, vehicle_label, vehicle_license_plate, timestamp, delay
FROM trip_updates`

	conditions := []string{}
	params := []interface{}{}
	if filter.ID != "" {
		conditions = append(conditions, "id = ?")
		params = append(params, filter.ID)
	}
	if filter.FeedMessageID != "" {
		conditions = append(conditions, "feed_message_id = ?")
		params = append(params, filter.FeedMessageID)
	}
	if filter.TripID != "" {
		conditions = append(conditions, "trip_id = ? AND start_date = ? AND start_time = ?")
		params = append(params, filter.TripID, filter.StartDate, filter.StartTime)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	rows, err := s.db.Query(rebind(s.numbered, query), params...)
	if err != nil {
		return nil, fmt.Errorf("querying trip_updates: %w", err)
	}
	defer rows.Close()

	tus := []*model.TripUpdate{}
	for rows.Next() {
		tu := &model.TripUpdate{}
		err := rows.Scan(
			&tu.ID,
			&tu.FeedMessageID,
			&tu.EntityID,
			&tu.TripID,
			&tu.RouteID,
			&tu.DirectionID,
			&tu.StartTime,
			&tu.StartDate,
			&tu.ScheduleRelationship,
			&tu.VehicleID,
			&tu.VehicleLabel,
			&tu.VehicleLicensePlate,
			&tu.Timestamp,
			&tu.Delay,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning trip_update: %w", err)
		}
		tus = append(tus, tu)
	}

	return tus, nil
}

func (s *SQLStorage) StopTimeUpdates(filter StopTimeUpdateFilter) ([]*model.StopTimeUpdate, error) {
	query := `
SELECT
    id, trip_update_id, feed_message_id, stop_sequence, stop_id,
    arrival_delay, arrival_time, arrival_uncertainty,
    departure_delay, departure_time, departure_uncertainty,
    departure_occupancy_status, schedule_relationship
FROM stop_time_updates`

	conditions := []string{}
	params := []interface{}{}
	if filter.FeedMessageID != "" {
		conditions = append(conditions, "feed_message_id = ?")
		params = append(params, filter.FeedMessageID)
	}
	if filter.TripUpdateID != "" {
		conditions = append(conditions, "trip_update_id = ?")
		params = append(params, filter.TripUpdateID)
	}
	if filter.StopID != "" {
		conditions = append(conditions, "stop_id = ?")
		params = append(params, filter.StopID)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY trip_update_id, stop_sequence"

	rows, err := s.db.Query(rebind(s.numbered, query), params...)
	if err != nil {
		return nil, fmt.Errorf("querying stop_time_updates: %w", err)
	}
	defer rows.Close()

	stus := []*model.StopTimeUpdate{}
	for rows.Next() {
		stu := &model.StopTimeUpdate{}
		var arrival, departure sql.NullTime
		err := rows.Scan(
			&stu.ID,
			&stu.TripUpdateID,
			&stu.FeedMessageID,
			&stu.StopSequence,
			&stu.StopID,
			&stu.ArrivalDelay,
			&arrival,
			&stu.ArrivalUncertainty,
			&stu.DepartureDelay,
			&departure,
			&stu.DepartureUncertainty,
			&stu.DepartureOccupancyStatus,
			&stu.ScheduleRelationship,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning stop_time_update: %w", err)
		}
		stu.ArrivalTime = timeOf(arrival)
		stu.DepartureTime = timeOf(departure)
		stus = append(stus, stu)
	}

	return stus, nil
}

func (s *SQLStorage) VehiclePositions(filter VehiclePositionFilter) ([]*model.VehiclePosition, error) {
	query := `
SELECT
    id, feed_message_id, entity_id, trip_id, route_id, direction_id,
    start_time, start_date, schedule_relationship,
    vehicle_id, vehicle_label, vehicle_license_plate,
    lat, lon, bearing, odometer, speed,
    current_stop_sequence, stop_id, current_status, timestamp,
    congestion_level, occupancy_status, occupancy_percentage
FROM vehicle_positions`

	conditions := []string{}
	params := []interface{}{}
	if filter.FeedMessageID != "" {
		conditions = append(conditions, "feed_message_id = ?")
		params = append(params, filter.FeedMessageID)
	}
	if filter.TripID != "" {
		conditions = append(conditions, "trip_id = ? AND start_date = ? AND start_time = ?")
		params = append(params, filter.TripID, filter.StartDate, filter.StartTime)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	rows, err := s.db.Query(rebind(s.numbered, query), params...)
	if err != nil {
		return nil, fmt.Errorf("querying vehicle_positions: %w", err)
	}
	defer rows.Close()

	vps := []*model.VehiclePosition{}
	for rows.Next() {
		vp := &model.VehiclePosition{}
		err := rows.Scan(
			&vp.ID,
			&vp.FeedMessageID,
			&vp.EntityID,
			&vp.TripID,
			&vp.RouteID,
			&vp.DirectionID,
			&vp.StartTime,
			&vp.StartDate,
			&vp.ScheduleRelationship,
			&vp.VehicleID,
			&vp.VehicleLabel,
			&vp.VehicleLicensePlate,
			&vp.Lat,
			&vp.Lon,
			&vp.Bearing,
			&vp.Odometer,
			&vp.Speed,
			&vp.CurrentStopSequence,
			&vp.StopID,
			&vp.CurrentStatus,
			&vp.Timestamp,
			&vp.CongestionLevel,
			&vp.OccupancyStatus,
			&vp.OccupancyPercentage,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning vehicle_position: %w", err)
		}
		vp.DerivePoint()
		vps = append(vps, vp)
	}

	return vps, nil
}
