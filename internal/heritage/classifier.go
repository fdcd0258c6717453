// Package heritage classifies a coordinate's heritage planning status by
// combining the listed-building and conservation-area lookups with a
// result cache and best-effort audit trail.
package heritage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/planmatter/heritage-cli/internal/audit"
	"github.com/planmatter/heritage-cli/internal/model"
	"github.com/planmatter/heritage-cli/internal/spatial"
)

// DefaultSearchRadiusMeters bounds the nearest-listed-building search.
const DefaultSearchRadiusMeters = 100

// Classifier orchestrates a single classification: cache check, two
// concurrent spatial lookups, precedence resolution, audit.
type Classifier struct {
	gateway  spatial.Gateway
	cache    ResultCache
	recorder audit.Recorder
	radius   float64
	log      *zap.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithRecorder attaches an audit recorder. Without one, classifications
// are not recorded.
func WithRecorder(r audit.Recorder) Option {
	return func(c *Classifier) { c.recorder = r }
}

// WithSearchRadius overrides the listed-building search radius in meters.
func WithSearchRadius(meters float64) Option {
	return func(c *Classifier) {
		if meters > 0 {
			c.radius = meters
		}
	}
}

func NewClassifier(gw spatial.Gateway, cache ResultCache, opts ...Option) *Classifier {
	c := &Classifier{
		gateway: gw,
		cache:   cache,
		radius:  DefaultSearchRadiusMeters,
		log:     zap.L().Named("heritage"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the heritage status for a coordinate. Every call gets
// a fresh request ID, cache hits included. The only error it returns is
// coordinate validation; lookup failures degrade to an unverified result
// instead.
func (c *Classifier) Classify(ctx context.Context, coord model.Coordinates, address, postcode string) (*model.ClassificationResult, error) {
	if err := coord.Validate(); err != nil {
		return nil, eris.Wrap(err, "classify")
	}

	start := time.Now()

	if cached, ok := c.cache.Get(ctx, coord); ok {
		res := cached.WithRequestID(uuid.NewString())
		c.log.Debug("cache hit",
			zap.String("request_id", res.RequestID),
			zap.Float64("lat", coord.Lat),
			zap.Float64("lng", coord.Lng))
		c.record(res, audit.Meta{CacheHit: true, Duration: time.Since(start)})
		return res, nil
	}

	var (
		lb spatial.Lookup[model.ListedBuildingMatch]
		ca spatial.Lookup[model.ConservationAreaMatch]
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lb = c.gateway.NearestListedBuilding(gctx, coord, c.radius)
		return nil
	})
	g.Go(func() error {
		ca = c.gateway.ConservationArea(gctx, coord)
		return nil
	})
	_ = g.Wait()

	res := Resolve(coord, address, postcode, lb, ca)
	res.RequestID = uuid.NewString()
	res.ClassifiedAt = time.Now().UTC()

	// An unverified result reflects an outage, not the property. Caching
	// it would pin the degraded answer for the full TTL.
	if !res.Unverified {
		c.cache.Set(ctx, coord, res)
	}

	c.log.Info("classified",
		zap.String("request_id", res.RequestID),
		zap.String("status", string(res.Status)),
		zap.Bool("unverified", res.Unverified),
		zap.Duration("took", time.Since(start)))

	c.record(res, audit.Meta{Duration: time.Since(start)})
	return res, nil
}

func (c *Classifier) record(res *model.ClassificationResult, meta audit.Meta) {
	if c.recorder == nil {
		return
	}
	c.recorder.Record(res, meta)
}
