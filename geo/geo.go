package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const earthRadiusMeters = 6371000

// Point is a WGS84 coordinate. Following WKT convention, longitude
// comes first.
type Point struct {
	Lon float64
	Lat float64
}

// LineString is an ordered sequence of points describing a path, such
// as a route shape.
type LineString []Point

// HaversineDistance returns the great-circle distance between two
// points, in meters.
func HaversineDistance(aLat, aLon, bLat, bLon float64) float64 {
	phi1 := aLat * math.Pi / 180
	phi2 := bLat * math.Pi / 180
	deltaPhi := (bLat - aLat) * math.Pi / 180
	deltaLambda := (bLon - aLon) * math.Pi / 180

	a := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

func (p Point) WKT() string {
	return fmt.Sprintf("POINT(%s %s)", formatCoord(p.Lon), formatCoord(p.Lat))
}

func (l LineString) WKT() string {
	coords := make([]string, len(l))
	for i, p := range l {
		coords[i] = formatCoord(p.Lon) + " " + formatCoord(p.Lat)
	}
	return "LINESTRING(" + strings.Join(coords, ", ") + ")"
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ParsePoint parses a WKT POINT.
func ParsePoint(wkt string) (Point, error) {
	body, err := wktBody(wkt, "POINT")
	if err != nil {
		return Point{}, err
	}
	p, err := parseCoordPair(body)
	if err != nil {
		return Point{}, fmt.Errorf("parsing point: %w", err)
	}
	return p, nil
}

// ParseLineString parses a WKT LINESTRING.
func ParseLineString(wkt string) (LineString, error) {
	body, err := wktBody(wkt, "LINESTRING")
	if err != nil {
		return nil, err
	}

	pairs := strings.Split(body, ",")
	line := make(LineString, 0, len(pairs))
	for _, pair := range pairs {
		p, err := parseCoordPair(pair)
		if err != nil {
			return nil, fmt.Errorf("parsing linestring: %w", err)
		}
		line = append(line, p)
	}

	return line, nil
}

func wktBody(wkt string, geomType string) (string, error) {
	s := strings.TrimSpace(wkt)
	if !strings.HasPrefix(s, geomType) {
		return "", fmt.Errorf("not a %s: %q", geomType, wkt)
	}
	s = strings.TrimSpace(strings.TrimPrefix(s, geomType))
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return "", fmt.Errorf("malformed %s: %q", geomType, wkt)
	}
	return s[1 : len(s)-1], nil
}

func parseCoordPair(s string) (Point, error) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) != 2 {
		return Point{}, fmt.Errorf("expected 2 coordinates in %q", s)
	}
	lon, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Point{}, fmt.Errorf("bad longitude %q", fields[0])
	}
	lat, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Point{}, fmt.Errorf("bad latitude %q", fields[1])
	}
	return Point{Lon: lon, Lat: lat}, nil
}

// Length returns the total length of the line in meters.
func (l LineString) Length() float64 {
	var total float64
	for i := 1; i < len(l); i++ {
		total += HaversineDistance(l[i-1].Lat, l[i-1].Lon, l[i].Lat, l[i].Lon)
	}
	return total
}

// Project returns the arc length, in meters from the start of the
// line, of the point on the line closest to p.
//
// Each segment is treated as planar in a local equirectangular
// projection. This is accurate for the segment lengths seen in
// transit shapes.
func (l LineString) Project(p Point) float64 {
	if len(l) < 2 {
		return 0
	}

	bestDist := math.MaxFloat64
	bestArc := 0.0
	arc := 0.0

	for i := 1; i < len(l); i++ {
		a, b := l[i-1], l[i]
		segLen := HaversineDistance(a.Lat, a.Lon, b.Lat, b.Lon)

		// Local planar coordinates, meters, origin at a.
		cosLat := math.Cos(a.Lat * math.Pi / 180)
		scale := earthRadiusMeters * math.Pi / 180
		bx := (b.Lon - a.Lon) * cosLat * scale
		by := (b.Lat - a.Lat) * scale
		px := (p.Lon - a.Lon) * cosLat * scale
		py := (p.Lat - a.Lat) * scale

		t := 0.0
		if segSq := bx*bx + by*by; segSq > 0 {
			t = (px*bx + py*by) / segSq
			t = math.Max(0, math.Min(1, t))
		}

		dx := px - t*bx
		dy := py - t*by
		dist := math.Hypot(dx, dy)

		if dist < bestDist {
			bestDist = dist
			bestArc = arc + t*segLen
		}

		arc += segLen
	}

	return bestArc
}

// PositionInShape returns the fractional progress of p along the
// line, in [0, 1]. Returns 0 for degenerate (zero length) lines.
func (l LineString) PositionInShape(p Point) float64 {
	total := l.Length()
	if total == 0 {
		return 0
	}
	pos := l.Project(p) / total
	return math.Max(0, math.Min(1, pos))
}
