package ingest

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/planmatter/heritage-cli/internal/db"
)

// AreaRecord is one conservation area ready for loading.
type AreaRecord struct {
	Name                 string
	Borough              string
	Reference            string
	HasArticle4          bool
	Article4Restrictions []string
	BoundaryEWKB         []byte
}

// areaFeature mirrors one feature of a borough conservation-area
// GeoJSON export.
type areaFeature struct {
	Properties struct {
		Name         string `json:"name"`
		Borough      string `json:"borough"`
		Reference    string `json:"reference"`
		Article4     bool   `json:"article_4"`
		Restrictions string `json:"article_4_restrictions"`
	} `json:"properties"`
	Geometry json.RawMessage `json:"geometry"`
}

// AreaCollection is the feed's FeatureCollection envelope.
type AreaCollection struct {
	Features []areaFeature `json:"features"`
}

// parseRestrictions splits the semicolon-separated restriction list the
// borough exports use.
func parseRestrictions(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// TransformAreas converts raw feed features to load-ready records.
// Features without a name, reference, or usable boundary are skipped,
// as are boroughs outside the target set.
func TransformAreas(coll AreaCollection, filter Filter) []AreaRecord {
	log := zap.L().Named("ingest.areas")

	records := make([]AreaRecord, 0, len(coll.Features))
	var skipped int

	for _, feat := range coll.Features {
		name := strings.TrimSpace(feat.Properties.Name)
		ref := strings.TrimSpace(feat.Properties.Reference)
		borough := strings.TrimSpace(feat.Properties.Borough)
		if name == "" || ref == "" || !filter.AllowsBorough(borough) {
			skipped++
			continue
		}

		boundary, err := GeoJSONBoundaryEWKB(feat.Geometry)
		if err != nil {
			skipped++
			continue
		}

		records = append(records, AreaRecord{
			Name:                 name,
			Borough:              borough,
			Reference:            ref,
			HasArticle4:          feat.Properties.Article4,
			Article4Restrictions: parseRestrictions(feat.Properties.Restrictions),
			BoundaryEWKB:         boundary,
		})
	}

	if skipped > 0 {
		log.Info("filtered area features",
			zap.Int("kept", len(records)),
			zap.Int("skipped", skipped))
	}
	return records
}

const upsertAreaSQL = `
	INSERT INTO conservation_areas
		(name, borough, reference, has_article_4, article_4_restrictions, boundary)
	VALUES
		($1, $2, $3, $4, $5, ST_GeomFromEWKB($6))
	ON CONFLICT (borough, reference) DO UPDATE SET
		name                   = EXCLUDED.name,
		has_article_4          = EXCLUDED.has_article_4,
		article_4_restrictions = EXCLUDED.article_4_restrictions,
		boundary               = EXCLUDED.boundary,
		updated_at             = now()
`

// AreaLoader writes conservation area records in transactional batches.
type AreaLoader struct {
	pool      db.Pool
	batchSize int
	log       *zap.Logger
}

// NewAreaLoader creates a loader. batchSize <= 0 defaults to 500.
func NewAreaLoader(pool db.Pool, batchSize int) *AreaLoader {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &AreaLoader{
		pool:      pool,
		batchSize: batchSize,
		log:       zap.L().Named("ingest.areas"),
	}
}

// Load upserts all records and returns the number written.
func (l *AreaLoader) Load(ctx context.Context, records []AreaRecord) (int, error) {
	var loaded int
	for start := 0; start < len(records); start += l.batchSize {
		end := start + l.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		err := db.WithTx(ctx, l.pool, func(tx pgx.Tx) error {
			for _, rec := range batch {
				restrictions := rec.Article4Restrictions
				if restrictions == nil {
					restrictions = []string{}
				}
				if _, err := tx.Exec(ctx, upsertAreaSQL,
					rec.Name, rec.Borough, rec.Reference,
					rec.HasArticle4, restrictions, rec.BoundaryEWKB,
				); err != nil {
					return eris.Wrapf(err, "ingest: upsert area %s/%s", rec.Borough, rec.Reference)
				}
			}
			return nil
		})
		if err != nil {
			return loaded, err
		}

		loaded += len(batch)
		l.log.Info("loaded area batch",
			zap.Int("batch", len(batch)),
			zap.Int("total", loaded))
	}
	return loaded, nil
}
