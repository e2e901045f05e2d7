package geo

import "math"

const earthRadiusMeters = 6371000.0

// SamplePolyline walks the route geometry and emits a coordinate every
// time the accumulated path distance since the previous sample reaches
// stepMeters. The start point is never emitted and a trailing stretch
// shorter than a full step produces no extra sample.
func SamplePolyline(coords []Coordinate, stepMeters float64) []Coordinate {
	if stepMeters <= 0 || len(coords) < 2 {
		return nil
	}
	var samples []Coordinate
	acc := 0.0
	prev := coords[0]
	for _, cur := range coords[1:] {
		acc += planarDistance(prev, cur)
		if acc >= stepMeters {
			samples = append(samples, cur)
			acc = 0
		}
		prev = cur
	}
	return samples
}

// planarDistance approximates meters between nearby points using an
// equirectangular projection with latitude-dependent longitude
// compression. Good to well under a percent at route-segment scale.
func planarDistance(a, b Coordinate) float64 {
	meanLat := (a.Lat + b.Lat) / 2 * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180 * math.Cos(meanLat)
	return earthRadiusMeters * math.Hypot(dLat, dLon)
}
