package parse

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"github.com/transitdata/datahub/model"
	"github.com/transitdata/datahub/storage"
)

type StopTimeCSV struct {
	TripID        string `csv:"trip_id"`
	StopID        string `csv:"stop_id"`
	StopSequence  string `csv:"stop_sequence"`
	ArrivalTime   string `csv:"arrival_time"`
	DepartureTime string `csv:"departure_time"`
	Headsign      string `csv:"stop_headsign"`
	PickupType    string `csv:"pickup_type"`
	DropOffType   string `csv:"drop_off_type"`
	Timepoint     string `csv:"timepoint"`
}

// parseStopTimeTime normalizes a GTFS H:MM:SS time to sortable
// HHMMSS. Hours past 23 are legal; they denote services running past
// midnight.
func parseStopTimeTime(s string) (string, error) {
	split := strings.Split(s, ":")
	if len(split) != 3 {
		return "", fmt.Errorf("found %d parts in '%s'", len(split), s)
	}

	hms := [3]int{}
	for i, str := range split {
		j, err := strconv.Atoi(strings.TrimSpace(str))
		if err != nil {
			return "", fmt.Errorf("non-integer in '%s' pos %d", s, i)
		}
		hms[i] = j
	}

	if hms[0] < 0 || hms[0] > 99 {
		return "", fmt.Errorf("invalid hour in '%s'", s)
	}

	if hms[1] < 0 || hms[1] > 59 {
		return "", fmt.Errorf("invalid minute in '%s'", s)
	}

	if hms[2] < 0 || hms[2] > 59 {
		return "", fmt.Errorf("invalid second in '%s'", s)
	}

	return fmt.Sprintf("%02d%02d%02d", hms[0], hms[1], hms[2]), nil
}

// ParseStopTimes writes stop_times.txt through the writer's batched
// stop-time path. The trip and stop sets may be nil when their tables
// failed to import, in which case references go unchecked.
func ParseStopTimes(
	writer storage.ScheduleWriter,
	data io.Reader,
	trips map[string]bool,
	stops map[string]bool,
) (int, error) {

	stopSeq := map[string]map[uint32]bool{}

	i := -1
	err := gocsv.UnmarshalToCallbackWithError(data, func(st *StopTimeCSV) error {
		i += 1
		if trips != nil && !trips[st.TripID] {
			return fmt.Errorf("unknown trip_id: '%s' (row %d)", st.TripID, i+1)
		}
		if st.StopID == "" {
			return fmt.Errorf("missing stop_id (row %d)", i+1)
		}
		if stops != nil && !stops[st.StopID] {
			return fmt.Errorf("unknown stop_id: '%s' (row %d)", st.StopID, i+1)
		}

		seq, err := parseOptionalUint32(st.StopSequence, "stop_sequence")
		if err != nil {
			return errors.Wrapf(err, "row %d", i+1)
		}

		arrivalTime, err := parseStopTimeTime(st.ArrivalTime)
		if err != nil {
			return errors.Wrapf(err, "parsing arrival_time (row %d)", i+1)
		}

		departureTime, err := parseStopTimeTime(st.DepartureTime)
		if err != nil {
			return errors.Wrapf(err, "parsing departure_time (row %d)", i+1)
		}

		pickupType, err := parseOptionalInt8(st.PickupType, 0, "pickup_type")
		if err != nil {
			return errors.Wrapf(err, "row %d", i+1)
		}
		dropOffType, err := parseOptionalInt8(st.DropOffType, 0, "drop_off_type")
		if err != nil {
			return errors.Wrapf(err, "row %d", i+1)
		}
		timepoint, err := parseOptionalInt8(st.Timepoint, 1, "timepoint")
		if err != nil {
			return errors.Wrapf(err, "row %d", i+1)
		}

		// stop_sequence must be unique within a trip
		if stopSeq[st.TripID] == nil {
			stopSeq[st.TripID] = map[uint32]bool{}
		}
		if stopSeq[st.TripID][seq] {
			return fmt.Errorf("duplicate stop_sequence %d for trip_id '%s'", seq, st.TripID)
		}
		stopSeq[st.TripID][seq] = true

		err = writer.WriteStopTime(&model.StopTime{
			TripID:       st.TripID,
			StopID:       st.StopID,
			Headsign:     st.Headsign,
			StopSequence: seq,
			Arrival:      arrivalTime,
			Departure:    departureTime,
			PickupType:   pickupType,
			DropOffType:  dropOffType,
			Timepoint:    timepoint,
		})
		if err != nil {
			return errors.Wrapf(err, "writing stop_time (row %d)", i+1)
		}

		return nil
	})

	if err != nil {
		return 0, errors.Wrap(err, "unmarshaling stop_times csv")
	}

	return i + 1, nil
}
