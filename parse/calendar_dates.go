package parse

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/transitdata/datahub/model"
	"github.com/transitdata/datahub/storage"
)

type CalendarDateCSV struct {
	ServiceID     string `csv:"service_id"`
	Date          string `csv:"date"`
	ExceptionType string `csv:"exception_type"`
}

func ParseCalendarDates(
	writer storage.ScheduleWriter,
	data io.Reader,
) (map[string]bool, string, string, int, error) {

	calendarDateCsv := []*CalendarDateCSV{}
	if err := gocsv.Unmarshal(data, &calendarDateCsv); err != nil {
		return nil, "", "", 0, fmt.Errorf("unmarshaling calendar_dates csv: %w", err)
	}

	knownService := map[string]bool{}
	knownServiceDate := map[string]bool{}
	var minDate, maxDate string

	for _, cd := range calendarDateCsv {
		exceptionType, err := parseOptionalInt8(cd.ExceptionType, 0, "exception_type")
		if err != nil {
			return nil, "", "", 0, err
		}
		if exceptionType != model.ExceptionTypeAdd && exceptionType != model.ExceptionTypeRemove {
			return nil, "", "", 0, fmt.Errorf("illegal exception_type: '%s'", cd.ExceptionType)
		}

		_, err = time.ParseInLocation("20060102", cd.Date, time.UTC)
		if err != nil {
			return nil, "", "", 0, fmt.Errorf("parsing date '%s': %w", cd.Date, err)
		}

		serviceDate := fmt.Sprintf("%s-%s", cd.Date, cd.ServiceID)
		if knownServiceDate[serviceDate] {
			return nil, "", "", 0, fmt.Errorf("duplicate service/date: '%s'", serviceDate)
		}
		knownServiceDate[serviceDate] = true
		knownService[cd.ServiceID] = true

		if minDate == "" || cd.Date < minDate {
			minDate = cd.Date
		}
		if maxDate == "" || cd.Date > maxDate {
			maxDate = cd.Date
		}

		err = writer.WriteCalendarDate(&model.CalendarDate{
			ServiceID:     cd.ServiceID,
			Date:          cd.Date,
			ExceptionType: exceptionType,
		})
		if err != nil {
			return nil, "", "", 0, fmt.Errorf("writing calendar date: %w", err)
		}
	}

	return knownService, minDate, maxDate, len(calendarDateCsv), nil
}
