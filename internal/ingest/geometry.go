package ingest

import (
	"encoding/json"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// GeoJSONPoint extracts lng/lat from a GeoJSON Point geometry.
func GeoJSONPoint(raw json.RawMessage) (lng, lat float64, err error) {
	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return 0, 0, eris.Wrap(err, "ingest: decode point geometry")
	}
	pt, ok := g.(*geom.Point)
	if !ok {
		return 0, 0, eris.Errorf("ingest: expected Point geometry, got %T", g)
	}
	coords := pt.Coords()
	if len(coords) < 2 {
		return 0, 0, eris.New("ingest: point geometry has no coordinates")
	}
	return coords[0], coords[1], nil
}

// GeoJSONBoundaryEWKB converts a GeoJSON Polygon or MultiPolygon to EWKB
// with SRID 4326. Single polygons are promoted to MultiPolygon so every
// boundary row has one geometry type.
func GeoJSONBoundaryEWKB(raw json.RawMessage) ([]byte, error) {
	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return nil, eris.Wrap(err, "ingest: decode boundary geometry")
	}

	var mp *geom.MultiPolygon
	switch s := g.(type) {
	case *geom.MultiPolygon:
		mp = s
	case *geom.Polygon:
		mp = geom.NewMultiPolygon(geom.XY)
		if err := mp.Push(s); err != nil {
			return nil, eris.Wrap(err, "ingest: promote polygon")
		}
	default:
		return nil, eris.Errorf("ingest: expected Polygon or MultiPolygon, got %T", g)
	}

	mp.SetSRID(4326)
	data, err := ewkb.Marshal(mp, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: encode boundary EWKB")
	}
	return data, nil
}

// ShapeBoundaryEWKB converts a shapefile polygon to MultiPolygon EWKB
// with SRID 4326. Returns nil, nil for nil or non-polygon shapes.
func ShapeBoundaryEWKB(shape shp.Shape) ([]byte, error) {
	p, ok := shape.(*shp.Polygon)
	if !ok || p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil, nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("ingest: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("ingest: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil, nil
	}

	data, err := ewkb.Marshal(mp, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: encode shape EWKB")
	}
	return data, nil
}
