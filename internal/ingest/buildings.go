package ingest

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/planmatter/heritage-cli/internal/db"
	"github.com/planmatter/heritage-cli/internal/model"
)

// BuildingRecord is one listed building ready for loading.
type BuildingRecord struct {
	ListEntryNumber  string
	Name             string
	Grade            model.Grade
	Borough          string
	DocumentationURL string
	Lat              float64
	Lng              float64
}

// buildingFeature mirrors one feature of the National Heritage List
// GeoJSON export.
type buildingFeature struct {
	Properties struct {
		ListEntry string `json:"ListEntry"`
		Name      string `json:"Name"`
		Grade     string `json:"Grade"`
		Borough   string `json:"District"`
		Hyperlink string `json:"hyperlink"`
	} `json:"properties"`
	Geometry json.RawMessage `json:"geometry"`
}

// BuildingCollection is the feed's FeatureCollection envelope.
type BuildingCollection struct {
	Features []buildingFeature `json:"features"`
}

// TransformBuildings converts raw feed features to load-ready records,
// applying the service-area filter and deduplicating on list entry
// number. Records without a list entry or usable geometry are skipped.
func TransformBuildings(coll BuildingCollection, filter Filter) []BuildingRecord {
	log := zap.L().Named("ingest.buildings")

	seen := make(map[string]bool, len(coll.Features))
	records := make([]BuildingRecord, 0, len(coll.Features))
	var skipped int

	for _, feat := range coll.Features {
		entry := strings.TrimSpace(feat.Properties.ListEntry)
		if entry == "" || seen[entry] {
			skipped++
			continue
		}

		lng, lat, err := GeoJSONPoint(feat.Geometry)
		if err != nil {
			skipped++
			continue
		}

		if !filter.Contains(lat, lng) || !filter.AllowsBorough(feat.Properties.Borough) {
			skipped++
			continue
		}

		seen[entry] = true
		records = append(records, BuildingRecord{
			ListEntryNumber:  entry,
			Name:             strings.TrimSpace(feat.Properties.Name),
			Grade:            model.ParseGrade(feat.Properties.Grade),
			Borough:          strings.TrimSpace(feat.Properties.Borough),
			DocumentationURL: strings.TrimSpace(feat.Properties.Hyperlink),
			Lat:              lat,
			Lng:              lng,
		})
	}

	if skipped > 0 {
		log.Info("filtered building features",
			zap.Int("kept", len(records)),
			zap.Int("skipped", skipped))
	}
	return records
}

const upsertBuildingSQL = `
	INSERT INTO listed_buildings
		(list_entry_number, name, grade, borough, documentation_url, location)
	VALUES
		($1, $2, $3, $4, $5, ST_SetSRID(ST_MakePoint($6, $7), 4326))
	ON CONFLICT (list_entry_number) DO UPDATE SET
		name              = EXCLUDED.name,
		grade             = EXCLUDED.grade,
		borough           = EXCLUDED.borough,
		documentation_url = EXCLUDED.documentation_url,
		location          = EXCLUDED.location,
		updated_at        = now()
`

// BuildingLoader writes building records in transactional batches.
type BuildingLoader struct {
	pool      db.Pool
	batchSize int
	log       *zap.Logger
}

// NewBuildingLoader creates a loader. batchSize <= 0 defaults to 500.
func NewBuildingLoader(pool db.Pool, batchSize int) *BuildingLoader {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &BuildingLoader{
		pool:      pool,
		batchSize: batchSize,
		log:       zap.L().Named("ingest.buildings"),
	}
}

// Load upserts all records and returns the number written. A failed
// batch rolls back that batch only; earlier batches stay committed.
func (l *BuildingLoader) Load(ctx context.Context, records []BuildingRecord) (int, error) {
	var loaded int
	for start := 0; start < len(records); start += l.batchSize {
		end := start + l.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		err := db.WithTx(ctx, l.pool, func(tx pgx.Tx) error {
			for _, rec := range batch {
				if _, err := tx.Exec(ctx, upsertBuildingSQL,
					rec.ListEntryNumber, rec.Name, string(rec.Grade), rec.Borough,
					rec.DocumentationURL, rec.Lng, rec.Lat,
				); err != nil {
					return eris.Wrapf(err, "ingest: upsert building %s", rec.ListEntryNumber)
				}
			}
			return nil
		})
		if err != nil {
			return loaded, err
		}

		loaded += len(batch)
		l.log.Info("loaded building batch",
			zap.Int("batch", len(batch)),
			zap.Int("total", loaded))
	}
	return loaded, nil
}
