package parse

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/transitdata/datahub/model"
	"github.com/transitdata/datahub/storage"
)

type CalendarCSV struct {
	ServiceID string `csv:"service_id"`
	StartDate string `csv:"start_date"`
	EndDate   string `csv:"end_date"`
	Monday    string `csv:"monday"`
	Tuesday   string `csv:"tuesday"`
	Wednesday string `csv:"wednesday"`
	Thursday  string `csv:"thursday"`
	Friday    string `csv:"friday"`
	Saturday  string `csv:"saturday"`
	Sunday    string `csv:"sunday"`
}

// Returns set of all service IDs, min date and max date.
func ParseCalendar(writer storage.ScheduleWriter, data io.Reader) (map[string]bool, string, string, int, error) {
	calendarCsv := []*CalendarCSV{}
	if err := gocsv.Unmarshal(data, &calendarCsv); err != nil {
		return nil, "", "", 0, fmt.Errorf("unmarshaling csv: %w", err)
	}

	knownServices := map[string]bool{}

	var minDate, maxDate string

	for _, c := range calendarCsv {
		if c.ServiceID == "" {
			return nil, "", "", 0, fmt.Errorf("empty service_id")
		}
		if knownServices[c.ServiceID] {
			return nil, "", "", 0, fmt.Errorf("repeated service_id '%s'", c.ServiceID)
		}
		knownServices[c.ServiceID] = true

		var weekday int8
		for _, day := range []struct {
			name  string
			value string
			bit   time.Weekday
		}{
			{"monday", c.Monday, time.Monday},
			{"tuesday", c.Tuesday, time.Tuesday},
			{"wednesday", c.Wednesday, time.Wednesday},
			{"thursday", c.Thursday, time.Thursday},
			{"friday", c.Friday, time.Friday},
			{"saturday", c.Saturday, time.Saturday},
			{"sunday", c.Sunday, time.Sunday},
		} {
			switch day.value {
			case "1":
				weekday |= 1 << day.bit
			case "0", "":
			default:
				return nil, "", "", 0, fmt.Errorf("invalid %s value '%s'", day.name, day.value)
			}
		}

		_, err := time.ParseInLocation("20060102", c.StartDate, time.UTC)
		if err != nil {
			return nil, "", "", 0, fmt.Errorf("parsing start_date: %w", err)
		}

		_, err = time.ParseInLocation("20060102", c.EndDate, time.UTC)
		if err != nil {
			return nil, "", "", 0, fmt.Errorf("parsing end_date: %w", err)
		}

		if minDate == "" || c.StartDate < minDate {
			minDate = c.StartDate
		}
		if maxDate == "" || c.EndDate > maxDate {
			maxDate = c.EndDate
		}

		err = writer.WriteCalendar(&model.Calendar{
			ServiceID: c.ServiceID,
			StartDate: c.StartDate,
			EndDate:   c.EndDate,
			Weekday:   weekday,
		})
		if err != nil {
			return nil, "", "", 0, fmt.Errorf("writing calendar: %w", err)
		}
	}

	return knownServices, minDate, maxDate, len(calendarCsv), nil
}
