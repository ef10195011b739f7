package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/transitdata/datahub/geo"
	"github.com/transitdata/datahub/model"
)

type sqlScheduleWriter struct {
	s      *SQLStorage
	feedID string

	stopTimeInsertQuery *sql.Stmt
	stopTimeInsertTx    *sql.Tx
}

type sqlScheduleReader struct {
	s      *SQLStorage
	feedID string
}

func (w *sqlScheduleWriter) exec(query string, args ...interface{}) error {
	_, err := w.s.db.Exec(rebind(w.s.numbered, query), args...)
	return err
}

func (w *sqlScheduleWriter) WriteAgency(a *model.Agency) error {
	err := w.exec(`
INSERT INTO agency (feed_id, id, name, url, timezone, lang, phone, fare_url, email)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (feed_id, id) DO NOTHING`,
		w.feedID,
		a.ID,
		a.Name,
		a.URL,
		a.Timezone,
		a.Lang,
		a.Phone,
		a.FareURL,
		a.Email,
	)
	if err != nil {
		return fmt.Errorf("inserting agency: %w", err)
	}
	return nil
}

func (w *sqlScheduleWriter) WriteStop(stop *model.Stop) error {
	stop.DerivePoint()
	err := w.exec(`
INSERT INTO stops (
    feed_id, id, code, name, description, lat, lon, point, zone_id, url,
    location_type, parent_station, wheelchair_boarding, platform_code
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (feed_id, id) DO NOTHING`,
		w.feedID,
		stop.ID,
		stop.Code,
		stop.Name,
		stop.Desc,
		stop.Lat,
		stop.Lon,
		stop.Point.WKT(),
		stop.ZoneID,
		stop.URL,
		stop.LocationType,
		stop.ParentStation,
		stop.WheelchairBoarding,
		stop.PlatformCode,
	)
	if err != nil {
		return fmt.Errorf("inserting stop: %w", err)
	}
	return nil
}

func (w *sqlScheduleWriter) WriteRoute(route *model.Route) error {
	err := w.exec(`
INSERT INTO routes (feed_id, id, agency_id, short_name, long_name, description, type, url, color, text_color, sort_order)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (feed_id, id) DO NOTHING`,
		w.feedID,
		route.ID,
		route.AgencyID,
		route.ShortName,
		route.LongName,
		route.Desc,
		route.Type,
		route.URL,
		route.Color,
		route.TextColor,
		route.SortOrder,
	)
	if err != nil {
		return fmt.Errorf("inserting route: %w", err)
	}
	return nil
}

func (w *sqlScheduleWriter) WriteCalendar(cal *model.Calendar) error {
	mon, tue, wed, thu, fri, sat, sun := 0, 0, 0, 0, 0, 0, 0
	if cal.Weekday&(1<<time.Monday) != 0 {
		mon = 1
	}
	if cal.Weekday&(1<<time.Tuesday) != 0 {
		tue = 1
	}
	if cal.Weekday&(1<<time.Wednesday) != 0 {
		wed = 1
	}
	if cal.Weekday&(1<<time.Thursday) != 0 {
		thu = 1
	}
	if cal.Weekday&(1<<time.Friday) != 0 {
		fri = 1
	}
	if cal.Weekday&(1<<time.Saturday) != 0 {
		sat = 1
	}
	if cal.Weekday&(1<<time.Sunday) != 0 {
		sun = 1
	}

	err := w.exec(`
INSERT INTO calendar (feed_id, service_id, start_date, end_date, monday, tuesday, wednesday, thursday, friday, saturday, sunday)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (feed_id, service_id) DO NOTHING`,
		w.feedID,
		cal.ServiceID,
		cal.StartDate,
		cal.EndDate,
		mon, tue, wed, thu, fri, sat, sun,
	)
	if err != nil {
		return fmt.Errorf("inserting calendar: %w", err)
	}

	return nil
}

func (w *sqlScheduleWriter) WriteCalendarDate(cd *model.CalendarDate) error {
	err := w.exec(`
INSERT INTO calendar_dates (feed_id, service_id, date, exception_type)
VALUES (?, ?, ?, ?)
ON CONFLICT (feed_id, service_id, date) DO NOTHING`,
		w.feedID,
		cd.ServiceID,
		cd.Date,
		cd.ExceptionType,
	)
	if err != nil {
		return fmt.Errorf("inserting calendar date: %w", err)
	}

	return nil
}

func (w *sqlScheduleWriter) WriteShapePoint(sp *model.ShapePoint) error {
	err := w.exec(`
INSERT INTO shapes (feed_id, shape_id, pt_sequence, lat, lon, dist_traveled)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (feed_id, shape_id, pt_sequence) DO NOTHING`,
		w.feedID,
		sp.ShapeID,
		sp.Sequence,
		sp.Lat,
		sp.Lon,
		sp.DistTraveled,
	)
	if err != nil {
		return fmt.Errorf("inserting shape point: %w", err)
	}

	return nil
}

func (w *sqlScheduleWriter) WriteGeoShape(gs *model.GeoShape) error {
	err := w.exec(`
INSERT INTO geoshapes (feed_id, shape_id, geoshape)
VALUES (?, ?, ?)
ON CONFLICT (feed_id, shape_id) DO NOTHING`,
		w.feedID,
		gs.ShapeID,
		gs.Line.WKT(),
	)
	if err != nil {
		return fmt.Errorf("inserting geoshape: %w", err)
	}

	return nil
}

func (w *sqlScheduleWriter) WriteTrip(trip *model.Trip) error {
	err := w.exec(`
INSERT INTO trips (
    feed_id, id, route_id, service_id, headsign, short_name,
    direction_id, block_id, shape_id, wheelchair_accessible, bikes_allowed
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (feed_id, id) DO NOTHING`,
		w.feedID,
		trip.ID,
		trip.RouteID,
		trip.ServiceID,
		trip.Headsign,
		trip.ShortName,
		trip.DirectionID,
		trip.BlockID,
		trip.ShapeID,
		trip.WheelchairAccessible,
		trip.BikesAllowed,
	)
	if err != nil {
		return fmt.Errorf("inserting trip: %w", err)
	}
	return nil
}

func (w *sqlScheduleWriter) BeginStopTimes() error {
	// transaction with prepared statement, stop_times runs to
	// millions of rows.
	var err error
	w.stopTimeInsertTx, err = w.s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning stop_time insert transaction: %w", err)
	}

	w.stopTimeInsertQuery, err = w.stopTimeInsertTx.Prepare(rebind(w.s.numbered, `
INSERT INTO stop_times (
    feed_id, trip_id, stop_id, stop_sequence, arrival_time,
    departure_time, headsign, pickup_type, drop_off_type, timepoint
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (feed_id, trip_id, stop_sequence) DO NOTHING`))
	if err != nil {
		w.stopTimeInsertTx.Rollback()
		w.stopTimeInsertTx = nil
		return fmt.Errorf("preparing stop_time insert: %w", err)
	}

	return nil
}

func (w *sqlScheduleWriter) WriteStopTime(stopTime *model.StopTime) error {
	_, err := w.stopTimeInsertQuery.Exec(
		w.feedID,
		stopTime.TripID,
		stopTime.StopID,
		stopTime.StopSequence,
		stopTime.Arrival,
		stopTime.Departure,
		stopTime.Headsign,
		stopTime.PickupType,
		stopTime.DropOffType,
		stopTime.Timepoint,
	)
	if err != nil {
		w.stopTimeInsertQuery.Close()
		w.stopTimeInsertTx.Rollback()
		w.stopTimeInsertTx = nil
		w.stopTimeInsertQuery = nil
		return fmt.Errorf("inserting stop_time: %w", err)
	}

	return nil
}

func (w *sqlScheduleWriter) EndStopTimes() error {
	w.stopTimeInsertQuery.Close()
	err := w.stopTimeInsertTx.Commit()
	if err != nil {
		return fmt.Errorf("committing stop_time insert transaction: %w", err)
	}
	w.stopTimeInsertTx = nil
	w.stopTimeInsertQuery = nil

	return nil
}

func (w *sqlScheduleWriter) WriteFareAttribute(fa *model.FareAttribute) error {
	err := w.exec(`
INSERT INTO fare_attributes (feed_id, id, price, currency_type, payment_method, transfers, transfer_duration)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (feed_id, id) DO NOTHING`,
		w.feedID,
		fa.FareID,
		fa.Price,
		fa.CurrencyType,
		fa.PaymentMethod,
		fa.Transfers,
		fa.TransferDuration,
	)
	if err != nil {
		return fmt.Errorf("inserting fare attribute: %w", err)
	}
	return nil
}

func (w *sqlScheduleWriter) WriteFareRule(fr *model.FareRule) error {
	err := w.exec(`
INSERT INTO fare_rules (feed_id, fare_id, route_id, origin_id, destination_id, contains_id)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (feed_id, fare_id, route_id, origin_id, destination_id, contains_id) DO NOTHING`,
		w.feedID,
		fr.FareID,
		fr.RouteID,
		fr.OriginID,
		fr.DestinationID,
		fr.ContainsID,
	)
	if err != nil {
		return fmt.Errorf("inserting fare rule: %w", err)
	}
	return nil
}

func (w *sqlScheduleWriter) WriteFeedInfo(fi *model.FeedInfo) error {
	err := w.exec(`
INSERT INTO feed_info (feed_id, publisher_name, publisher_url, lang, start_date, end_date, version)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (feed_id) DO NOTHING`,
		w.feedID,
		fi.PublisherName,
		fi.PublisherURL,
		fi.Lang,
		fi.StartDate,
		fi.EndDate,
		fi.Version,
	)
	if err != nil {
		return fmt.Errorf("inserting feed info: %w", err)
	}
	return nil
}

func (w *sqlScheduleWriter) BuildDerived() error {
	err := w.exec(`
INSERT INTO route_stops (feed_id, route_id, direction_id, stop_id)
SELECT DISTINCT st.feed_id, t.route_id, t.direction_id, st.stop_id
FROM stop_times st
INNER JOIN trips t ON t.feed_id = st.feed_id AND t.id = st.trip_id
WHERE st.feed_id = ?
ON CONFLICT (feed_id, route_id, direction_id, stop_id) DO NOTHING`, w.feedID)
	if err != nil {
		return fmt.Errorf("building route_stops: %w", err)
	}

	rows, err := w.s.db.Query(rebind(w.s.numbered, `
SELECT trip_id, MIN(arrival_time), MAX(arrival_time)
FROM stop_times
WHERE feed_id = ?
GROUP BY trip_id`), w.feedID)
	if err != nil {
		return fmt.Errorf("querying trip arrival bounds: %w", err)
	}
	defer rows.Close()

	durations := []*model.TripDuration{}
	for rows.Next() {
		td := &model.TripDuration{}
		err := rows.Scan(&td.TripID, &td.FirstArrival, &td.LastArrival)
		if err != nil {
			return fmt.Errorf("scanning trip arrival bounds: %w", err)
		}
		first := model.StopTime{Arrival: td.FirstArrival}
		last := model.StopTime{Arrival: td.LastArrival}
		td.Duration = last.ArrivalTime() - first.ArrivalTime()
		durations = append(durations, td)
	}

	tx, err := w.s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	insert, err := tx.Prepare(rebind(w.s.numbered, `
INSERT INTO trip_durations (feed_id, trip_id, first_arrival, last_arrival, duration_secs)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (feed_id, trip_id) DO NOTHING`))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing trip_duration insert: %w", err)
	}

	for _, td := range durations {
		_, err := insert.Exec(
			w.feedID,
			td.TripID,
			td.FirstArrival,
			td.LastArrival,
			int64(td.Duration/time.Second),
		)
		if err != nil {
			insert.Close()
			tx.Rollback()
			return fmt.Errorf("inserting trip_duration: %w", err)
		}
	}
	insert.Close()

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (w *sqlScheduleWriter) Close() error {
	if w.stopTimeInsertTx != nil {
		w.stopTimeInsertTx.Rollback()
		w.stopTimeInsertTx = nil
		w.stopTimeInsertQuery = nil
	}
	return nil
}

func (r *sqlScheduleReader) Agencies() ([]*model.Agency, error) {
	rows, err := r.s.db.Query(rebind(r.s.numbered, `
SELECT id, name, url, timezone, lang, phone, fare_url, email
FROM agency
WHERE feed_id = ?`), r.feedID)
	if err != nil {
		return nil, fmt.Errorf("querying agencies: %w", err)
	}
	defer rows.Close()

	agencies := []*model.Agency{}
	for rows.Next() {
		a := &model.Agency{}
		err := rows.Scan(&a.ID, &a.Name, &a.URL, &a.Timezone, &a.Lang, &a.Phone, &a.FareURL, &a.Email)
		if err != nil {
			return nil, fmt.Errorf("scanning agency: %w", err)
		}
		agencies = append(agencies, a)
	}

	return agencies, nil
}

const stopColumns = `id, code, name, description, lat, lon, zone_id, url, location_type, parent_station, wheelchair_boarding, platform_code`

func scanStop(rows interface{ Scan(...interface{}) error }) (*model.Stop, error) {
	s := &model.Stop{}
	err := rows.Scan(
		&s.ID,
		&s.Code,
		&s.Name,
		&s.Desc,
		&s.Lat,
		&s.Lon,
		&s.ZoneID,
		&s.URL,
		&s.LocationType,
		&s.ParentStation,
		&s.WheelchairBoarding,
		&s.PlatformCode,
	)
	if err != nil {
		return nil, err
	}
	s.DerivePoint()
	return s, nil
}

func (r *sqlScheduleReader) Stops() ([]*model.Stop, error) {
	rows, err := r.s.db.Query(rebind(r.s.numbered, `
SELECT `+stopColumns+`
FROM stops
WHERE feed_id = ?`), r.feedID)
	if err != nil {
		return nil, fmt.Errorf("querying stops: %w", err)
	}
	defer rows.Close()

	stops := []*model.Stop{}
	for rows.Next() {
		s, err := scanStop(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning stop: %w", err)
		}
		stops = append(stops, s)
	}

	return stops, nil
}

func (r *sqlScheduleReader) StopByID(stopID string) (*model.Stop, error) {
	row := r.s.db.QueryRow(rebind(r.s.numbered, `
SELECT `+stopColumns+`
FROM stops
WHERE feed_id = ? AND id = ?`), r.feedID, stopID)

	s, err := scanStop(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning stop: %w", err)
	}

	return s, nil
}

const routeColumns = `id, agency_id, short_name, long_name, description, type, url, color, text_color, sort_order`

func scanRoute(rows interface{ Scan(...interface{}) error }) (*model.Route, error) {
	route := &model.Route{}
	err := rows.Scan(
		&route.ID,
		&route.AgencyID,
		&route.ShortName,
		&route.LongName,
		&route.Desc,
		&route.Type,
		&route.URL,
		&route.Color,
		&route.TextColor,
		&route.SortOrder,
	)
	if err != nil {
		return nil, err
	}
	return route, nil
}

func (r *sqlScheduleReader) Routes() ([]*model.Route, error) {
	rows, err := r.s.db.Query(rebind(r.s.numbered, `
SELECT `+routeColumns+`
FROM routes
WHERE feed_id = ?`), r.feedID)
	if err != nil {
		return nil, fmt.Errorf("querying routes: %w", err)
	}
	defer rows.Close()

	routes := []*model.Route{}
	for rows.Next() {
		route, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning route: %w", err)
		}
		routes = append(routes, route)
	}

	return routes, nil
}

func (r *sqlScheduleReader) RouteByID(routeID string) (*model.Route, error) {
	row := r.s.db.QueryRow(rebind(r.s.numbered, `
SELECT `+routeColumns+`
FROM routes
WHERE feed_id = ? AND id = ?`), r.feedID, routeID)

	route, err := scanRoute(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning route: %w", err)
	}

	return route, nil
}

const tripColumns = `id, route_id, service_id, headsign, short_name, direction_id, block_id, shape_id, wheelchair_accessible, bikes_allowed`

func scanTrip(rows interface{ Scan(...interface{}) error }) (*model.Trip, error) {
	t := &model.Trip{}
	err := rows.Scan(
		&t.ID,
		&t.RouteID,
		&t.ServiceID,
		&t.Headsign,
		&t.ShortName,
		&t.DirectionID,
		&t.BlockID,
		&t.ShapeID,
		&t.WheelchairAccessible,
		&t.BikesAllowed,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *sqlScheduleReader) Trips() ([]*model.Trip, error) {
	rows, err := r.s.db.Query(rebind(r.s.numbered, `
SELECT `+tripColumns+`
FROM trips
WHERE feed_id = ?`), r.feedID)
	if err != nil {
		return nil, fmt.Errorf("querying trips: %w", err)
	}
	defer rows.Close()

	trips := []*model.Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning trip: %w", err)
		}
		trips = append(trips, t)
	}

	return trips, nil
}

func (r *sqlScheduleReader) TripByID(tripID string) (*model.Trip, error) {
	row := r.s.db.QueryRow(rebind(r.s.numbered, `
SELECT `+tripColumns+`
FROM trips
WHERE feed_id = ? AND id = ?`), r.feedID, tripID)

	t, err := scanTrip(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning trip: %w", err)
	}

	return t, nil
}

func (r *sqlScheduleReader) Calendars() ([]*model.Calendar, error) {
	rows, err := r.s.db.Query(rebind(r.s.numbered, `
SELECT service_id, start_date, end_date, monday, tuesday, wednesday, thursday, friday, saturday, sunday
FROM calendar
WHERE feed_id = ?`), r.feedID)
	if err != nil {
		return nil, fmt.Errorf("querying calendar: %w", err)
	}
	defer rows.Close()

	calendars := []*model.Calendar{}
	for rows.Next() {
		var serviceID, startDate, endDate string
		var monday, tuesday, wednesday, thursday, friday, saturday, sunday bool
		err := rows.Scan(
			&serviceID,
			&startDate,
			&endDate,
			&monday,
			&tuesday,
			&wednesday,
			&thursday,
			&friday,
			&saturday,
			&sunday,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning calendar: %w", err)
		}
		weekday := int8(0)
		if monday {
			weekday |= 1 << time.Monday
		}
		if tuesday {
			weekday |= 1 << time.Tuesday
		}
		if wednesday {
			weekday |= 1 << time.Wednesday
		}
		if thursday {
			weekday |= 1 << time.Thursday
		}
		if friday {
			weekday |= 1 << time.Friday
		}
		if saturday {
			weekday |= 1 << time.Saturday
		}
		if sunday {
			weekday |= 1 << time.Sunday
		}

		calendars = append(calendars, &model.Calendar{
			ServiceID: serviceID,
			StartDate: startDate,
			EndDate:   endDate,
			Weekday:   weekday,
		})
	}

	return calendars, nil
}

func (r *sqlScheduleReader) CalendarDates() ([]*model.CalendarDate, error) {
	rows, err := r.s.db.Query(rebind(r.s.numbered, `
SELECT service_id, date, exception_type
FROM calendar_dates
WHERE feed_id = ?`), r.feedID)
	if err != nil {
		return nil, fmt.Errorf("querying calendar dates: %w", err)
	}
	defer rows.Close()

	calendarDates := []*model.CalendarDate{}
	for rows.Next() {
		cd := &model.CalendarDate{}
		err := rows.Scan(&cd.ServiceID, &cd.Date, &cd.ExceptionType)
		if err != nil {
			return nil, fmt.Errorf("scanning calendar date: %w", err)
		}
		calendarDates = append(calendarDates, cd)
	}

	return calendarDates, nil
}

func (r *sqlScheduleReader) ShapePoints(shapeID string) ([]*model.ShapePoint, error) {
	rows, err := r.s.db.Query(rebind(r.s.numbered, `
SELECT shape_id, pt_sequence, lat, lon, dist_traveled
FROM shapes
WHERE feed_id = ? AND shape_id = ?
ORDER BY pt_sequence`), r.feedID, shapeID)
	if err != nil {
		return nil, fmt.Errorf("querying shape points: %w", err)
	}
	defer rows.Close()

	points := []*model.ShapePoint{}
	for rows.Next() {
		sp := &model.ShapePoint{}
		err := rows.Scan(&sp.ShapeID, &sp.Sequence, &sp.Lat, &sp.Lon, &sp.DistTraveled)
		if err != nil {
			return nil, fmt.Errorf("scanning shape point: %w", err)
		}
		points = append(points, sp)
	}

	return points, nil
}

func (r *sqlScheduleReader) GeoShape(shapeID string) (*model.GeoShape, error) {
	row := r.s.db.QueryRow(rebind(r.s.numbered, `
SELECT shape_id, geoshape
FROM geoshapes
WHERE feed_id = ? AND shape_id = ?`), r.feedID, shapeID)

	gs := &model.GeoShape{}
	var wkt string
	err := row.Scan(&gs.ShapeID, &wkt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning geoshape: %w", err)
	}

	gs.Line, err = geo.ParseLineString(wkt)
	if err != nil {
		return nil, fmt.Errorf("parsing geoshape: %w", err)
	}

	return gs, nil
}

func (r *sqlScheduleReader) FeedInfo() (*model.FeedInfo, error) {
	row := r.s.db.QueryRow(rebind(r.s.numbered, `
SELECT publisher_name, publisher_url, lang, start_date, end_date, version
FROM feed_info
WHERE feed_id = ?`), r.feedID)

	fi := &model.FeedInfo{}
	err := row.Scan(&fi.PublisherName, &fi.PublisherURL, &fi.Lang, &fi.StartDate, &fi.EndDate, &fi.Version)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning feed info: %w", err)
	}

	return fi, nil
}

func (r *sqlScheduleReader) RouteStops(routeID string) ([]*model.RouteStop, error) {
	rows, err := r.s.db.Query(rebind(r.s.numbered, `
SELECT route_id, direction_id, stop_id
FROM route_stops
WHERE feed_id = ? AND route_id = ?`), r.feedID, routeID)
	if err != nil {
		return nil, fmt.Errorf("querying route stops: %w", err)
	}
	defer rows.Close()

	routeStops := []*model.RouteStop{}
	for rows.Next() {
		rs := &model.RouteStop{}
		err := rows.Scan(&rs.RouteID, &rs.DirectionID, &rs.StopID)
		if err != nil {
			return nil, fmt.Errorf("scanning route stop: %w", err)
		}
		routeStops = append(routeStops, rs)
	}

	return routeStops, nil
}

func (r *sqlScheduleReader) TripDuration(tripID string) (*model.TripDuration, error) {
	row := r.s.db.QueryRow(rebind(r.s.numbered, `
SELECT trip_id, first_arrival, last_arrival, duration_secs
FROM trip_durations
WHERE feed_id = ? AND trip_id = ?`), r.feedID, tripID)

	td := &model.TripDuration{}
	var secs int64
	err := row.Scan(&td.TripID, &td.FirstArrival, &td.LastArrival, &secs)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning trip duration: %w", err)
	}
	td.Duration = time.Duration(secs) * time.Second

	return td, nil
}

func (r *sqlScheduleReader) ActiveService(date string) (string, error) {
	parsedDate, err := time.Parse("20060102", date)
	if err != nil {
		return "", fmt.Errorf("invalid date: %s", date)
	}

	var weekday string
	switch parsedDate.Weekday() {
	case time.Monday:
		weekday = "monday"
	case time.Tuesday:
		weekday = "tuesday"
	case time.Wednesday:
		weekday = "wednesday"
	case time.Thursday:
		weekday = "thursday"
	case time.Friday:
		weekday = "friday"
	case time.Saturday:
		weekday = "saturday"
	case time.Sunday:
		weekday = "sunday"
	}

	// Added exceptions (rank 0) beat the weekly pattern (rank 1);
	// removed exceptions suppress an otherwise matching weekly
	// service.
	row := r.s.db.QueryRow(rebind(r.s.numbered, `
WITH
Exceptions AS (
    SELECT service_id, exception_type
    FROM calendar_dates
    WHERE feed_id = ? AND date = ?
),
Regular AS (
    SELECT service_id
    FROM calendar
    WHERE feed_id = ? AND
          `+weekday+` = 1 AND
          start_date <= ? AND
          end_date >= ?
)
SELECT service_id FROM (
    SELECT service_id, 0 AS rank
    FROM Exceptions
    WHERE exception_type = 1
    UNION
    SELECT service_id, 1 AS rank
    FROM Regular
    WHERE service_id NOT IN (
        SELECT service_id FROM Exceptions WHERE exception_type = 2
    )
) ranked
ORDER BY rank, service_id
LIMIT 1`), r.feedID, date, r.feedID, date, date)

	var serviceID string
	err = row.Scan(&serviceID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying for active service: %w", err)
	}

	return serviceID, nil
}

func (r *sqlScheduleReader) StopTimeEvents(filter StopTimeEventFilter) ([]*StopTimeEvent, error) {
	baseQuery := `
SELECT
    stops.id,
    stops.code,
    stops.name,
    stops.description,
    stops.lat,
    stops.lon,
    stops.zone_id,
    stops.url,
    stops.location_type,
    stops.parent_station,
    stops.wheelchair_boarding,
    stops.platform_code,
    stop_times.trip_id,
    stop_times.stop_id,
    stop_times.stop_sequence,
    stop_times.arrival_time,
    stop_times.departure_time,
    stop_times.headsign,
    stop_times.pickup_type,
    stop_times.drop_off_type,
    stop_times.timepoint,
    trips.id,
    trips.route_id,
    trips.service_id,
    trips.headsign,
    trips.short_name,
    trips.direction_id,
    trips.block_id,
    trips.shape_id,
    trips.wheelchair_accessible,
    trips.bikes_allowed,
    routes.id,
    routes.agency_id,
    routes.short_name,
    routes.long_name,
    routes.description,
    routes.type,
    routes.url,
    routes.color,
    routes.text_color,
    routes.sort_order
FROM stop_times
INNER JOIN stops ON stop_times.feed_id = stops.feed_id AND stop_times.stop_id = stops.id
INNER JOIN trips ON stop_times.feed_id = trips.feed_id AND stop_times.trip_id = trips.id
INNER JOIN routes ON trips.feed_id = routes.feed_id AND trips.route_id = routes.id
`

	fParams := []string{"stop_times.feed_id = ?"}
	fVals := []interface{}{r.feedID}

	if filter.StopID != "" {
		fParams = append(fParams, "(stops.id = ? OR stops.parent_station = ?)")
		fVals = append(fVals, filter.StopID, filter.StopID)
	}

	if filter.RouteID != "" {
		fParams = append(fParams, "routes.id = ?")
		fVals = append(fVals, filter.RouteID)
	}

	if len(filter.TripIDs) > 0 {
		fParams = append(fParams, "trips.id IN ("+placeholders(len(filter.TripIDs))+")")
		for _, id := range filter.TripIDs {
			fVals = append(fVals, id)
		}
	}

	if len(filter.ServiceIDs) > 0 {
		fParams = append(fParams, "trips.service_id IN ("+placeholders(len(filter.ServiceIDs))+")")
		for _, id := range filter.ServiceIDs {
			fVals = append(fVals, id)
		}
	}

	if filter.DirectionID > -1 {
		fParams = append(fParams, "trips.direction_id = ?")
		fVals = append(fVals, filter.DirectionID)
	}

	if filter.ArrivalStart != "" {
		fParams = append(fParams, "stop_times.arrival_time >= ?")
		fVals = append(fVals, filter.ArrivalStart)
	}

	if filter.ArrivalEnd != "" {
		fParams = append(fParams, "stop_times.arrival_time <= ?")
		fVals = append(fVals, filter.ArrivalEnd)
	}

	query := baseQuery + " WHERE " + strings.Join(fParams, " AND ")
	query += " ORDER BY stop_times.arrival_time, stop_times.trip_id"

	rows, err := r.s.db.Query(rebind(r.s.numbered, query), fVals...)
	if err != nil {
		return nil, fmt.Errorf("querying for stop time events: %w", err)
	}
	defer rows.Close()

	events := []*StopTimeEvent{}
	for rows.Next() {
		stop := &model.Stop{}
		stopTime := &model.StopTime{}
		trip := &model.Trip{}
		route := &model.Route{}

		err = rows.Scan(
			&stop.ID,
			&stop.Code,
			&stop.Name,
			&stop.Desc,
			&stop.Lat,
			&stop.Lon,
			&stop.ZoneID,
			&stop.URL,
			&stop.LocationType,
			&stop.ParentStation,
			&stop.WheelchairBoarding,
			&stop.PlatformCode,
			&stopTime.TripID,
			&stopTime.StopID,
			&stopTime.StopSequence,
			&stopTime.Arrival,
			&stopTime.Departure,
			&stopTime.Headsign,
			&stopTime.PickupType,
			&stopTime.DropOffType,
			&stopTime.Timepoint,
			&trip.ID,
			&trip.RouteID,
			&trip.ServiceID,
			&trip.Headsign,
			&trip.ShortName,
			&trip.DirectionID,
			&trip.BlockID,
			&trip.ShapeID,
			&trip.WheelchairAccessible,
			&trip.BikesAllowed,
			&route.ID,
			&route.AgencyID,
			&route.ShortName,
			&route.LongName,
			&route.Desc,
			&route.Type,
			&route.URL,
			&route.Color,
			&route.TextColor,
			&route.SortOrder,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning stop time event: %w", err)
		}
		stop.DerivePoint()

		events = append(events, &StopTimeEvent{
			Stop:     stop,
			StopTime: stopTime,
			Trip:     trip,
			Route:    route,
		})
	}

	return events, nil
}
