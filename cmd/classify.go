package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/planmatter/heritage-cli/internal/audit"
	"github.com/planmatter/heritage-cli/internal/db"
	"github.com/planmatter/heritage-cli/internal/heritage"
	"github.com/planmatter/heritage-cli/internal/model"
	"github.com/planmatter/heritage-cli/internal/resilience"
	"github.com/planmatter/heritage-cli/internal/spatial"
)

var (
	classifyLat      float64
	classifyLng      float64
	classifyAddress  string
	classifyPostcode string
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify a coordinate's heritage status",
	Long:  "Runs the listed-building and conservation-area lookups for a coordinate and prints the RED/AMBER/GREEN classification as JSON.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("classify"); err != nil {
			return err
		}

		pool, err := heritagePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		gateway := spatial.NewPostgresGateway(pool, spatial.Config{
			QueryTimeout: time.Duration(cfg.Heritage.GatewayTimeoutSecs) * time.Second,
			Retry: resilience.FromRetryConfig(
				cfg.Heritage.RetryMaxAttempts,
				cfg.Heritage.RetryBackoffMs,
				cfg.Heritage.RetryMaxBackoffMs,
			),
			Breaker: resilience.FromCircuitConfig(
				cfg.Heritage.BreakerThreshold,
				cfg.Heritage.BreakerResetSecs,
			),
		})

		cache, err := buildCache()
		if err != nil {
			return err
		}

		store, err := buildAuditStore(pool)
		if err != nil {
			return err
		}
		recorder := audit.NewAsyncRecorder(store, cfg.Heritage.AuditQueueSize)
		defer func() {
			if err := recorder.Close(); err != nil {
				zap.L().Warn("audit recorder close", zap.Error(err))
			}
		}()

		classifier := heritage.NewClassifier(gateway, cache,
			heritage.WithRecorder(recorder),
			heritage.WithSearchRadius(cfg.Heritage.SearchRadiusMeters),
		)

		coord := model.Coordinates{Lat: classifyLat, Lng: classifyLng}
		result, err := classifier.Classify(ctx, coord, classifyAddress, classifyPostcode)
		if err != nil {
			return eris.Wrap(err, "classify")
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return eris.Wrap(err, "classify: marshal result")
		}
		fmt.Println(string(out))
		return nil
	},
}

// buildCache constructs the configured result cache.
func buildCache() (heritage.ResultCache, error) {
	ttl := time.Duration(cfg.Heritage.CacheTTLSecs) * time.Second

	switch cfg.Heritage.CacheDriver {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return heritage.NewRedisCache(client, ttl), nil
	case "memory":
		return heritage.NewMemoryCache(cfg.Heritage.CacheMaxEntries, ttl), nil
	default:
		return nil, eris.Errorf("unknown cache driver %q", cfg.Heritage.CacheDriver)
	}
}

// buildAuditStore constructs the configured audit store. The postgres
// store shares the spatial pool; closeFn is nil because the command owns
// the pool lifecycle.
func buildAuditStore(pool db.Pool) (audit.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return audit.NewPostgresStore(pool, nil), nil
	case "sqlite":
		return audit.NewSQLite(cfg.Store.SQLitePath)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func init() {
	classifyCmd.Flags().Float64Var(&classifyLat, "lat", 0, "latitude (WGS84)")
	classifyCmd.Flags().Float64Var(&classifyLng, "lng", 0, "longitude (WGS84)")
	classifyCmd.Flags().StringVar(&classifyAddress, "address", "", "street address for the audit trail")
	classifyCmd.Flags().StringVar(&classifyPostcode, "postcode", "", "postcode for the audit trail")
	_ = classifyCmd.MarkFlagRequired("lat")
	_ = classifyCmd.MarkFlagRequired("lng")

	rootCmd.AddCommand(classifyCmd)
}
