package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// northwardLine builds a polyline starting at start with segments of
// segmentMeters each, running due north.
func northwardLine(start Coordinate, segments int, segmentMeters float64) []Coordinate {
	dLatDeg := segmentMeters / earthRadiusMeters * 180 / math.Pi
	coords := make([]Coordinate, 0, segments+1)
	cur := start
	coords = append(coords, cur)
	for i := 0; i < segments; i++ {
		cur.Lat += dLatDeg
		coords = append(coords, cur)
	}
	return coords
}

func TestSamplePolylineEvenSpacing(t *testing.T) {
	// 25km of 1km segments with a 10km step: samples at ~10km and ~20km,
	// and the 25km endpoint must not produce a third.
	line := northwardLine(Coordinate{Lon: 13.4, Lat: 52.5}, 25, 1000)
	samples := SamplePolyline(line, 9990)
	assert.Len(t, samples, 2)
}

func TestSamplePolylineShortRoute(t *testing.T) {
	line := northwardLine(Coordinate{Lon: 13.4, Lat: 52.5}, 5, 1000)
	assert.Empty(t, SamplePolyline(line, 10000))
}

func TestSamplePolylineDegenerateInputs(t *testing.T) {
	assert.Empty(t, SamplePolyline(nil, 1000))
	assert.Empty(t, SamplePolyline([]Coordinate{{Lon: 1, Lat: 1}}, 1000))
	assert.Empty(t, SamplePolyline(northwardLine(Coordinate{}, 10, 1000), 0))
}

func TestSamplePolylineResetsAccumulator(t *testing.T) {
	// 30 segments of ~10.01km = ~300km; a 50km step yields exactly 6
	// samples, the last one at the endpoint.
	line := northwardLine(Coordinate{Lon: 13.4, Lat: 52.5}, 30, 10010)
	samples := SamplePolyline(line, 50000)
	assert.Len(t, samples, 6)
}

func TestPlanarDistanceCompressesLongitude(t *testing.T) {
	// One degree of longitude shrinks with latitude; at 60°N it spans
	// about half the meters it does at the equator.
	atEquator := planarDistance(Coordinate{Lon: 0, Lat: 0}, Coordinate{Lon: 1, Lat: 0})
	atSixty := planarDistance(Coordinate{Lon: 0, Lat: 60}, Coordinate{Lon: 1, Lat: 60})
	assert.InDelta(t, 0.5, atSixty/atEquator, 0.01)
}
