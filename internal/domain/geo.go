package domain

import "errors"

var ErrPointOutOfRange = errors.New("coordinates out of range")

// Point is a WGS84 position, longitude first as in GeoJSON.
type Point struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

func (p Point) Validate() error {
	if p.Lng < -180 || p.Lng > 180 || p.Lat < -85.05112878 || p.Lat > 85.05112878 {
		return ErrPointOutOfRange
	}
	return nil
}
