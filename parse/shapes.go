package parse

import (
	"fmt"
	"io"
	"sort"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"github.com/transitdata/datahub/geo"
	"github.com/transitdata/datahub/model"
	"github.com/transitdata/datahub/storage"
)

type ShapeCSV struct {
	ShapeID      string `csv:"shape_id"`
	Lat          string `csv:"shape_pt_lat"`
	Lon          string `csv:"shape_pt_lon"`
	Sequence     string `csv:"shape_pt_sequence"`
	DistTraveled string `csv:"shape_dist_traveled"`
}

// ParseShapes writes the raw shape points, then collapses the points
// of each shape_id, ordered by shape_pt_sequence, into one linestring
// geometry.
func ParseShapes(writer storage.ScheduleWriter, data io.Reader) (map[string]bool, int, error) {
	shapeCsv := []*ShapeCSV{}
	if err := gocsv.Unmarshal(data, &shapeCsv); err != nil {
		return nil, 0, fmt.Errorf("unmarshaling shapes csv: %w", err)
	}

	points := map[string][]*model.ShapePoint{}
	seqSeen := map[string]map[uint32]bool{}
	for i, sc := range shapeCsv {
		if sc.ShapeID == "" {
			return nil, 0, fmt.Errorf("empty shape_id (row %d)", i+1)
		}

		lat, err := parseFloat(sc.Lat, "shape_pt_lat")
		if err != nil {
			return nil, 0, errors.Wrapf(err, "shape_id '%s'", sc.ShapeID)
		}
		lon, err := parseFloat(sc.Lon, "shape_pt_lon")
		if err != nil {
			return nil, 0, errors.Wrapf(err, "shape_id '%s'", sc.ShapeID)
		}
		seq, err := parseOptionalUint32(sc.Sequence, "shape_pt_sequence")
		if err != nil {
			return nil, 0, errors.Wrapf(err, "shape_id '%s'", sc.ShapeID)
		}
		dist, err := parseOptionalFloat(sc.DistTraveled, "shape_dist_traveled")
		if err != nil {
			return nil, 0, errors.Wrapf(err, "shape_id '%s'", sc.ShapeID)
		}

		if seqSeen[sc.ShapeID] == nil {
			seqSeen[sc.ShapeID] = map[uint32]bool{}
		}
		if seqSeen[sc.ShapeID][seq] {
			return nil, 0, fmt.Errorf("duplicate shape_pt_sequence %d for shape_id '%s'", seq, sc.ShapeID)
		}
		seqSeen[sc.ShapeID][seq] = true

		sp := &model.ShapePoint{
			ShapeID:      sc.ShapeID,
			Lat:          lat,
			Lon:          lon,
			Sequence:     seq,
			DistTraveled: dist,
		}
		points[sc.ShapeID] = append(points[sc.ShapeID], sp)

		if err := writer.WriteShapePoint(sp); err != nil {
			return nil, 0, fmt.Errorf("writing shape point: %w", err)
		}
	}

	shapes := map[string]bool{}
	for shapeID, pts := range points {
		sort.Slice(pts, func(i, j int) bool {
			return pts[i].Sequence < pts[j].Sequence
		})

		line := make(geo.LineString, 0, len(pts))
		for _, pt := range pts {
			line = append(line, geo.Point{Lon: pt.Lon, Lat: pt.Lat})
		}

		err := writer.WriteGeoShape(&model.GeoShape{
			ShapeID: shapeID,
			Line:    line,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("writing geoshape '%s': %w", shapeID, err)
		}

		shapes[shapeID] = true
	}

	return shapes, len(shapeCsv), nil
}
