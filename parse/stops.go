package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"github.com/transitdata/datahub/model"
	"github.com/transitdata/datahub/storage"
)

type StopCSV struct {
	ID                 string `csv:"stop_id"`
	Code               string `csv:"stop_code"`
	Name               string `csv:"stop_name"`
	Desc               string `csv:"stop_desc"`
	Lat                string `csv:"stop_lat"`
	Lon                string `csv:"stop_lon"`
	ZoneID             string `csv:"zone_id"`
	URL                string `csv:"stop_url"`
	LocationType       string `csv:"location_type"`
	ParentStation      string `csv:"parent_station"`
	WheelchairBoarding string `csv:"wheelchair_boarding"`
	PlatformCode       string `csv:"platform_code"`
}

func ParseStops(writer storage.ScheduleWriter, data io.Reader) (map[string]bool, int, error) {
	stopCsv := []*StopCSV{}
	if err := gocsv.Unmarshal(data, &stopCsv); err != nil {
		return nil, 0, fmt.Errorf("unmarshaling stops csv: %w", err)
	}

	stopIDs := map[string]bool{}
	parentRef := map[string]string{}
	for _, st := range stopCsv {
		if st.ID == "" {
			return nil, 0, fmt.Errorf("empty stop_id")
		}
		if stopIDs[st.ID] {
			return nil, 0, fmt.Errorf("repeated stop_id '%s'", st.ID)
		}
		stopIDs[st.ID] = true

		locationTypeRaw, err := parseOptionalInt8(st.LocationType, 0, "location_type")
		if err != nil {
			return nil, 0, errors.Wrapf(err, "stop_id '%s'", st.ID)
		}
		locationType := model.LocationType(locationTypeRaw)

		lat, err := parseOptionalFloat(st.Lat, "stop_lat")
		if err != nil {
			return nil, 0, errors.Wrapf(err, "stop_id '%s'", st.ID)
		}
		lon, err := parseOptionalFloat(st.Lon, "stop_lon")
		if err != nil {
			return nil, 0, errors.Wrapf(err, "stop_id '%s'", st.ID)
		}

		if locationType != model.LocationTypeGenericNode && locationType != model.LocationTypeBoardingArea {
			// stop_name, stop_lat and stop_lon are optional
			// for generic nodes (location_type=3) and
			// boarding areas (location_type=4), required
			// otherwise.
			if st.Name == "" {
				return nil, 0, fmt.Errorf("empty stop_name for stop_id '%s'", st.ID)
			}
			if st.Lat == "" || st.Lon == "" {
				return nil, 0, fmt.Errorf("empty stop_lat or stop_lon for stop_id '%s'", st.ID)
			}
		}

		wheelchair, err := parseOptionalInt8(st.WheelchairBoarding, 0, "wheelchair_boarding")
		if err != nil {
			return nil, 0, errors.Wrapf(err, "stop_id '%s'", st.ID)
		}

		stop := model.Stop{
			ID:                 st.ID,
			Code:               st.Code,
			Name:               st.Name,
			Desc:               st.Desc,
			Lat:                lat,
			Lon:                lon,
			ZoneID:             st.ZoneID,
			URL:                st.URL,
			LocationType:       locationType,
			ParentStation:      st.ParentStation,
			WheelchairBoarding: wheelchair,
			PlatformCode:       st.PlatformCode,
		}

		if st.ParentStation != "" {
			parentRef[st.ID] = st.ParentStation
		}

		err = writer.WriteStop(&stop)
		if err != nil {
			return nil, 0, fmt.Errorf("writing stop '%s': %w", st.ID, err)
		}
	}

	// verify stops referenced by parent_station exist
	for stopID, parentID := range parentRef {
		if !stopIDs[parentID] {
			return nil, 0, fmt.Errorf("stop '%s' references unknown parent_station '%s'", stopID, parentID)
		}
	}

	return stopIDs, len(stopCsv), nil
}
