package parse

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"github.com/transitdata/datahub/storage"
)

// TableStatus records the outcome of importing one schedule table.
type TableStatus struct {
	Table string
	Rows  int
	Err   error
}

// ScheduleResult summarizes one parsed schedule archive.
type ScheduleResult struct {
	Tables        []TableStatus
	Timezone      string
	CalendarStart string // YYYYMMDD
	CalendarEnd   string // YYYYMMDD
}

// Failed returns the statuses of tables that failed to import.
func (r *ScheduleResult) Failed() []TableStatus {
	failed := []TableStatus{}
	for _, ts := range r.Tables {
		if ts.Err != nil {
			failed = append(failed, ts)
		}
	}
	return failed
}

// ParseSchedule parses a GTFS zip archive and writes its tables
// through the given schedule writer.
//
// Tables are processed in dependency order, so that each table's
// natural-key references can be checked against the tables written
// before it. A failure in one table aborts that table only; the
// remaining tables are still imported, and the per-table outcome is
// recorded in the result. Optional files absent from the archive are
// skipped.
func ParseSchedule(writer storage.ScheduleWriter, buf []byte) (*ScheduleResult, error) {
	file := map[string]io.ReadCloser{
		"agency.txt":          nil,
		"stops.txt":           nil,
		"shapes.txt":          nil,
		"calendar.txt":        nil,
		"calendar_dates.txt":  nil,
		"routes.txt":          nil,
		"fare_attributes.txt": nil,
		"fare_rules.txt":      nil,
		"trips.txt":           nil,
		"stop_times.txt":      nil,
		"feed_info.txt":       nil,
	}

	defer func() {
		for _, rc := range file {
			if rc != nil {
				rc.Close()
			}
		}
	}()

	r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, fmt.Errorf("unzipping: %w", err)
	}

	for _, f := range r.File {
		// There should not be any subdirectories. But, some
		// agencies don't care.
		if f.FileInfo().IsDir() {
			continue
		}
		path := strings.Split(f.Name, "/")
		fName := path[len(path)-1]

		if _, found := file[fName]; !found {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}

		file[fName] = rc
	}

	if file["calendar.txt"] == nil && file["calendar_dates.txt"] == nil {
		return nil, fmt.Errorf("missing calendar.txt and calendar_dates.txt")
	}

	for _, required := range []string{"agency.txt", "stops.txt", "routes.txt", "trips.txt", "stop_times.txt"} {
		if file[required] == nil {
			return nil, fmt.Errorf("missing %s", required)
		}
	}

	// LazyCSVReader required (at least) to survive sloppy use of
	// quotes. The BOM reader strips unicode BOMs if present.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})

	result := &ScheduleResult{}

	agency, tz, rows, err := ParseAgency(writer, file["agency.txt"])
	result.Tables = append(result.Tables, TableStatus{Table: "agency", Rows: rows, Err: err})
	result.Timezone = tz

	stops, rows, err := ParseStops(writer, file["stops.txt"])
	result.Tables = append(result.Tables, TableStatus{Table: "stops", Rows: rows, Err: err})

	var shapes map[string]bool
	if file["shapes.txt"] != nil {
		shapes, rows, err = ParseShapes(writer, file["shapes.txt"])
		result.Tables = append(result.Tables, TableStatus{Table: "shapes", Rows: rows, Err: err})
	}

	// Service IDs come from calendar.txt and calendar_dates.txt
	// combined; either may be absent.
	services := map[string]bool{}
	if file["calendar.txt"] != nil {
		calServices, minDate, maxDate, rows, err := ParseCalendar(writer, file["calendar.txt"])
		result.Tables = append(result.Tables, TableStatus{Table: "calendar", Rows: rows, Err: err})
		for serviceID := range calServices {
			services[serviceID] = true
		}
		result.CalendarStart = minDate
		result.CalendarEnd = maxDate
	}
	if file["calendar_dates.txt"] != nil {
		cdServices, minDate, maxDate, rows, err := ParseCalendarDates(writer, file["calendar_dates.txt"])
		result.Tables = append(result.Tables, TableStatus{Table: "calendar_dates", Rows: rows, Err: err})
		for serviceID := range cdServices {
			services[serviceID] = true
		}
		if result.CalendarStart == "" || (minDate != "" && minDate < result.CalendarStart) {
			result.CalendarStart = minDate
		}
		if result.CalendarEnd == "" || maxDate > result.CalendarEnd {
			result.CalendarEnd = maxDate
		}
	}
	if len(services) == 0 {
		services = nil
	}

	routes, rows, err := ParseRoutes(writer, file["routes.txt"], agency)
	result.Tables = append(result.Tables, TableStatus{Table: "routes", Rows: rows, Err: err})

	var fares map[string]bool
	if file["fare_attributes.txt"] != nil {
		fares, rows, err = ParseFareAttributes(writer, file["fare_attributes.txt"])
		result.Tables = append(result.Tables, TableStatus{Table: "fare_attributes", Rows: rows, Err: err})
	}
	if file["fare_rules.txt"] != nil {
		rows, err = ParseFareRules(writer, file["fare_rules.txt"], fares, routes)
		result.Tables = append(result.Tables, TableStatus{Table: "fare_rules", Rows: rows, Err: err})
	}

	trips, rows, err := ParseTrips(writer, file["trips.txt"], routes, services, shapes)
	result.Tables = append(result.Tables, TableStatus{Table: "trips", Rows: rows, Err: err})

	err = writer.BeginStopTimes()
	if err != nil {
		return nil, fmt.Errorf("beginning stop_times: %w", err)
	}
	rows, err = ParseStopTimes(writer, file["stop_times.txt"], trips, stops)
	if err == nil {
		err = writer.EndStopTimes()
	}
	result.Tables = append(result.Tables, TableStatus{Table: "stop_times", Rows: rows, Err: err})

	if file["feed_info.txt"] != nil {
		rows, err = ParseFeedInfo(writer, file["feed_info.txt"])
		result.Tables = append(result.Tables, TableStatus{Table: "feed_info", Rows: rows, Err: err})
	}

	if err := writer.BuildDerived(); err != nil {
		return nil, fmt.Errorf("building derived tables: %w", err)
	}

	return result, nil
}

// All CSV columns are read as raw strings and converted explicitly,
// to avoid silent numeric coercion on fields that merely look numeric
// (IDs with leading zeros, for one). The helpers below apply GTFS
// defaults for absent optional fields.

func parseFloat(s string, field string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty %s", field)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s '%s'", field, s)
	}
	return f, nil
}

func parseOptionalFloat(s string, field string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return parseFloat(s, field)
}

func parseOptionalInt(s string, dflt int, field string) (int, error) {
	if s == "" {
		return dflt, nil
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s '%s'", field, s)
	}
	return i, nil
}

func parseOptionalInt8(s string, dflt int8, field string) (int8, error) {
	i, err := parseOptionalInt(s, int(dflt), field)
	if err != nil {
		return 0, err
	}
	return int8(i), nil
}

func parseOptionalUint32(s string, field string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	i, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s '%s'", field, s)
	}
	return uint32(i), nil
}
