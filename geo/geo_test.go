package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversineDistance(t *testing.T) {
	// Paris to London, roughly 344km.
	d := HaversineDistance(48.8566, 2.3522, 51.5074, -0.1278)
	assert.InDelta(t, 344000, d, 2000)

	// Zero distance.
	assert.Equal(t, 0.0, HaversineDistance(12, 34, 12, 34))
}

func TestPointWKTRoundTrip(t *testing.T) {
	p := Point{Lon: -3.7038, Lat: 40.4168}

	parsed, err := ParsePoint(p.WKT())
	require.NoError(t, err)
	assert.InDelta(t, p.Lon, parsed.Lon, 1e-9)
	assert.InDelta(t, p.Lat, parsed.Lat, 1e-9)

	_, err = ParsePoint("LINESTRING(1 2, 3 4)")
	assert.Error(t, err)

	_, err = ParsePoint("POINT(1)")
	assert.Error(t, err)
}

func TestLineStringWKTRoundTrip(t *testing.T) {
	l := LineString{
		{Lon: 0, Lat: 0},
		{Lon: 1, Lat: 0},
		{Lon: 1, Lat: 1},
	}

	parsed, err := ParseLineString(l.WKT())
	require.NoError(t, err)
	require.Len(t, parsed, 3)
	for i := range l {
		assert.InDelta(t, l[i].Lon, parsed[i].Lon, 1e-9)
		assert.InDelta(t, l[i].Lat, parsed[i].Lat, 1e-9)
	}

	_, err = ParseLineString("POINT(1 2)")
	assert.Error(t, err)
}

func TestLineStringLength(t *testing.T) {
	// One degree of latitude is about 111km.
	l := LineString{
		{Lon: 0, Lat: 0},
		{Lon: 0, Lat: 1},
	}
	assert.InDelta(t, 111000, l.Length(), 500)

	assert.Equal(t, 0.0, LineString{}.Length())
	assert.Equal(t, 0.0, LineString{{Lon: 1, Lat: 2}}.Length())
}

func TestPositionInShapeBoundaries(t *testing.T) {
	l := LineString{
		{Lon: 0, Lat: 0},
		{Lon: 0, Lat: 0.5},
		{Lon: 0, Lat: 1},
	}

	assert.Equal(t, 0.0, l.PositionInShape(Point{Lon: 0, Lat: 0}))
	assert.Equal(t, 1.0, l.PositionInShape(Point{Lon: 0, Lat: 1}))
}

func TestPositionInShapeMidpoint(t *testing.T) {
	l := LineString{
		{Lon: 0, Lat: 0},
		{Lon: 0, Lat: 1},
	}

	pos := l.PositionInShape(Point{Lon: 0, Lat: 0.5})
	assert.InDelta(t, 0.5, pos, 0.01)
}

func TestPositionInShapeOffLinePoint(t *testing.T) {
	l := LineString{
		{Lon: 0, Lat: 0},
		{Lon: 0, Lat: 1},
	}

	// A point beside the line projects onto it.
	pos := l.PositionInShape(Point{Lon: 0.1, Lat: 0.25})
	assert.InDelta(t, 0.25, pos, 0.01)

	// A point past the end clamps to 1.
	pos = l.PositionInShape(Point{Lon: 0, Lat: 2})
	assert.Equal(t, 1.0, pos)
}

func TestPositionInShapeDegenerate(t *testing.T) {
	assert.Equal(t, 0.0, LineString{}.PositionInShape(Point{Lon: 1, Lat: 1}))
	assert.Equal(t, 0.0, LineString{{Lon: 1, Lat: 1}}.PositionInShape(Point{Lon: 2, Lat: 2}))

	zero := LineString{{Lon: 1, Lat: 1}, {Lon: 1, Lat: 1}}
	assert.Equal(t, 0.0, zero.PositionInShape(Point{Lon: 1, Lat: 1}))
	assert.False(t, math.IsNaN(zero.PositionInShape(Point{Lon: 2, Lat: 2})))
}
