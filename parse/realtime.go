package parse

import (
	"fmt"
	"strconv"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	proto "google.golang.org/protobuf/proto"

	"github.com/transitdata/datahub/model"
)

// RealtimeResult holds one decoded realtime payload, flattened into
// normalized rows. All row IDs are derived deterministically from the
// provider code, the entity kind and the header timestamp, so
// re-decoding an identical upstream payload yields identical IDs.
type RealtimeResult struct {
	Header           *model.FeedMessage
	TripUpdates      []*model.TripUpdate
	StopTimeUpdates  []*model.StopTimeUpdate
	VehiclePositions []*model.VehiclePosition
}

// ParseRealtime decodes a GTFS-Realtime protobuf payload for the
// given provider and entity kind ("trip_update" or "vehicle").
//
// Missing optional fields are repaired with defaults rather than left
// null: entity timestamps default to now, trip start dates to today,
// trip start times to midnight, direction and current stop sequence
// to the -1 sentinel, delays and uncertainties to zero. The
// multi-carriage detail list has no normalized destination and is
// dropped.
func ParseRealtime(provider string, entityType string, data []byte, now time.Time) (*RealtimeResult, error) {
	f := &gtfsproto.FeedMessage{}
	if err := proto.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("unmarshaling protobuf: %w", err)
	}

	header := f.GetHeader()

	version := header.GetGtfsRealtimeVersion()
	if version != "2.0" && version != "1.0" {
		return nil, fmt.Errorf("version %s not supported", version)
	}

	if header.GetIncrementality() != gtfsproto.FeedHeader_FULL_DATASET {
		return nil, fmt.Errorf("feed incrementality %s not supported", header.GetIncrementality())
	}

	headerTime := now
	if ts := header.GetTimestamp(); ts != 0 {
		headerTime = time.Unix(int64(ts), 0).UTC()
	}

	fm := &model.FeedMessage{
		ID:             fmt.Sprintf("%s-%s-%d", provider, entityType, headerTime.Unix()),
		Provider:       provider,
		Timestamp:      headerTime,
		EntityType:     entityType,
		Incrementality: header.GetIncrementality().String(),
		Version:        version,
	}

	result := &RealtimeResult{Header: fm}

	for _, entity := range f.GetEntity() {
		switch entityType {
		case model.EntityTripUpdate:
			if entity.TripUpdate == nil {
				continue
			}
			tu, stus := flattenTripUpdate(fm, entity.GetId(), entity.TripUpdate, now)
			result.TripUpdates = append(result.TripUpdates, tu)
			result.StopTimeUpdates = append(result.StopTimeUpdates, stus...)

		case model.EntityVehicle:
			if entity.Vehicle == nil {
				continue
			}
			vp := flattenVehiclePosition(fm, entity.GetId(), entity.Vehicle, now)
			result.VehiclePositions = append(result.VehiclePositions, vp)

		default:
			return nil, fmt.Errorf("entity type %s not supported", entityType)
		}
	}

	return result, nil
}

func flattenTripUpdate(
	fm *model.FeedMessage,
	entityID string,
	update *gtfsproto.TripUpdate,
	now time.Time,
) (*model.TripUpdate, []*model.StopTimeUpdate) {
	trip := update.GetTrip()
	vehicle := update.GetVehicle()

	timestamp := now
	if ts := update.GetTimestamp(); ts != 0 {
		timestamp = time.Unix(int64(ts), 0).UTC()
	}

	tu := &model.TripUpdate{
		ID:                   fm.ID + "-" + entityID,
		FeedMessageID:        fm.ID,
		EntityID:             entityID,
		TripID:               trip.GetTripId(),
		RouteID:              trip.GetRouteId(),
		DirectionID:          repairDirectionID(trip),
		StartTime:            repairStartTime(trip.GetStartTime()),
		StartDate:            repairStartDate(trip.GetStartDate(), now),
		ScheduleRelationship: trip.GetScheduleRelationship().String(),
		VehicleID:            vehicle.GetId(),
		VehicleLabel:         vehicle.GetLabel(),
		VehicleLicensePlate:  vehicle.GetLicensePlate(),
		Timestamp:            timestamp,
		Delay:                update.GetDelay(),
	}

	stus := make([]*model.StopTimeUpdate, 0, len(update.GetStopTimeUpdate()))
	for i, su := range update.GetStopTimeUpdate() {
		stu := &model.StopTimeUpdate{
			ID:                   tu.ID + "-" + strconv.Itoa(i),
			TripUpdateID:         tu.ID,
			FeedMessageID:        fm.ID,
			StopSequence:         int32(su.GetStopSequence()),
			StopID:               su.GetStopId(),
			ScheduleRelationship: su.GetScheduleRelationship().String(),
		}

		stu.ArrivalDelay = su.GetArrival().GetDelay()
		stu.ArrivalTime = repairEventTime(su.GetArrival(), now)
		stu.ArrivalUncertainty = su.GetArrival().GetUncertainty()

		stu.DepartureDelay = su.GetDeparture().GetDelay()
		stu.DepartureTime = repairEventTime(su.GetDeparture(), now)
		stu.DepartureUncertainty = su.GetDeparture().GetUncertainty()

		stus = append(stus, stu)
	}

	return tu, stus
}

func flattenVehiclePosition(
	fm *model.FeedMessage,
	entityID string,
	vp *gtfsproto.VehiclePosition,
	now time.Time,
) *model.VehiclePosition {
	trip := vp.GetTrip()
	vehicle := vp.GetVehicle()
	position := vp.GetPosition()

	timestamp := now
	if ts := vp.GetTimestamp(); ts != 0 {
		timestamp = time.Unix(int64(ts), 0).UTC()
	}

	currentStopSequence := int32(-1)
	if vp.CurrentStopSequence != nil {
		currentStopSequence = int32(vp.GetCurrentStopSequence())
	}

	row := &model.VehiclePosition{
		ID:                   fm.ID + "-" + entityID,
		FeedMessageID:        fm.ID,
		EntityID:             entityID,
		TripID:               trip.GetTripId(),
		RouteID:              trip.GetRouteId(),
		DirectionID:          repairDirectionID(trip),
		StartTime:            repairStartTime(trip.GetStartTime()),
		StartDate:            repairStartDate(trip.GetStartDate(), now),
		ScheduleRelationship: trip.GetScheduleRelationship().String(),
		VehicleID:            vehicle.GetId(),
		VehicleLabel:         vehicle.GetLabel(),
		VehicleLicensePlate:  vehicle.GetLicensePlate(),
		Lat:                  float64(position.GetLatitude()),
		Lon:                  float64(position.GetLongitude()),
		Bearing:              float64(position.GetBearing()),
		Odometer:             position.GetOdometer(),
		Speed:                float64(position.GetSpeed()),
		CurrentStopSequence:  currentStopSequence,
		StopID:               vp.GetStopId(),
		CurrentStatus:        vp.GetCurrentStatus().String(),
		Timestamp:            timestamp,
		CongestionLevel:      vp.GetCongestionLevel().String(),
		OccupancyStatus:      vp.GetOccupancyStatus().String(),
		OccupancyPercentage:  int32(vp.GetOccupancyPercentage()),
	}
	row.DerivePoint()

	return row
}

func repairDirectionID(trip *gtfsproto.TripDescriptor) int8 {
	if trip == nil || trip.DirectionId == nil {
		return -1
	}
	return int8(trip.GetDirectionId())
}

func repairStartDate(startDate string, now time.Time) string {
	if startDate == "" {
		return now.UTC().Format("20060102")
	}
	return startDate
}

func repairStartTime(startTime string) string {
	if startTime == "" {
		return "00:00:00"
	}
	return startTime
}

func repairEventTime(ev *gtfsproto.TripUpdate_StopTimeEvent, now time.Time) time.Time {
	if ev == nil || ev.Time == nil || ev.GetTime() == 0 {
		return now
	}
	return time.Unix(ev.GetTime(), 0).UTC()
}
