package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/planmatter/heritage-cli/internal/db"
)

// Buildings fetches the listed-building feed, transforms it, and loads
// the result. Returns the number of rows written.
func Buildings(ctx context.Context, fetcher *Fetcher, pool db.Pool, url string, filter Filter, batchSize int) (int, error) {
	var coll BuildingCollection
	if err := fetcher.FetchJSON(ctx, url, &coll); err != nil {
		return 0, err
	}

	records := TransformBuildings(coll, filter)
	zap.L().Info("transformed building feed",
		zap.Int("features", len(coll.Features)),
		zap.Int("records", len(records)))

	return NewBuildingLoader(pool, batchSize).Load(ctx, records)
}

// Areas fetches a conservation-area feed, transforms it, and loads the
// result. Returns the number of rows written.
func Areas(ctx context.Context, fetcher *Fetcher, pool db.Pool, url string, filter Filter, batchSize int) (int, error) {
	var coll AreaCollection
	if err := fetcher.FetchJSON(ctx, url, &coll); err != nil {
		return 0, err
	}

	records := TransformAreas(coll, filter)
	zap.L().Info("transformed area feed",
		zap.Int("features", len(coll.Features)),
		zap.Int("records", len(records)))

	return NewAreaLoader(pool, batchSize).Load(ctx, records)
}

// AreasFromShapefile loads conservation areas from a local shapefile
// extract instead of a feed.
func AreasFromShapefile(ctx context.Context, pool db.Pool, path, borough string, batchSize int) (int, error) {
	records, err := ReadAreaShapefile(path, borough)
	if err != nil {
		return 0, err
	}
	return NewAreaLoader(pool, batchSize).Load(ctx, records)
}
