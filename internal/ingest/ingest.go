// Package ingest loads the listed-building and conservation-area datasets
// into the spatial tables, from the public GeoJSON feeds or local
// shapefile extracts.
package ingest

import "strings"

// Filter restricts ingestion to the service area.
type Filter struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
	Boroughs       []string
}

// Contains reports whether the point falls inside the bounding box. A
// zero-valued filter accepts everything.
func (f Filter) Contains(lat, lng float64) bool {
	if f.MinLat == 0 && f.MaxLat == 0 && f.MinLng == 0 && f.MaxLng == 0 {
		return true
	}
	return lat >= f.MinLat && lat <= f.MaxLat && lng >= f.MinLng && lng <= f.MaxLng
}

// AllowsBorough reports whether the borough is in the target set. An
// empty set accepts everything. Matching is case-insensitive.
func (f Filter) AllowsBorough(borough string) bool {
	if len(f.Boroughs) == 0 {
		return true
	}
	for _, b := range f.Boroughs {
		if strings.EqualFold(b, borough) {
			return true
		}
	}
	return false
}
