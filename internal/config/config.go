package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Redis    RedisConfig    `yaml:"redis" mapstructure:"redis"`
	Heritage HeritageConfig `yaml:"heritage" mapstructure:"heritage"`
	Ingest   IngestConfig   `yaml:"ingest" mapstructure:"ingest"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend. The postgres driver serves
// both the spatial tables and the audit trail; sqlite serves audit only.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int    `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int    `yaml:"min_conns" mapstructure:"min_conns"`
}

// RedisConfig configures the optional Redis result cache.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// HeritageConfig configures classification behavior.
type HeritageConfig struct {
	SearchRadiusMeters   float64 `yaml:"search_radius_meters" mapstructure:"search_radius_meters"`
	CacheDriver          string  `yaml:"cache_driver" mapstructure:"cache_driver"`
	CacheTTLSecs         int     `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	CacheMaxEntries      int     `yaml:"cache_max_entries" mapstructure:"cache_max_entries"`
	GatewayTimeoutSecs   int     `yaml:"gateway_timeout_secs" mapstructure:"gateway_timeout_secs"`
	RetryMaxAttempts     int     `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
	RetryBackoffMs       int     `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	RetryMaxBackoffMs    int     `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
	BreakerThreshold     int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs     int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	AuditQueueSize       int     `yaml:"audit_queue_size" mapstructure:"audit_queue_size"`
}

// IngestConfig configures the dataset ingestion commands.
type IngestConfig struct {
	BuildingsURL    string   `yaml:"buildings_url" mapstructure:"buildings_url"`
	AreasURL        string   `yaml:"areas_url" mapstructure:"areas_url"`
	RatePerSec      float64  `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	BatchSize       int      `yaml:"batch_size" mapstructure:"batch_size"`
	TargetBoroughs  []string `yaml:"target_boroughs" mapstructure:"target_boroughs"`
	MinLat          float64  `yaml:"min_lat" mapstructure:"min_lat"`
	MaxLat          float64  `yaml:"max_lat" mapstructure:"max_lat"`
	MinLng          float64  `yaml:"min_lng" mapstructure:"min_lng"`
	MaxLng          float64  `yaml:"max_lng" mapstructure:"max_lng"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HERITAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "heritage.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("heritage.search_radius_meters", 100)
	v.SetDefault("heritage.cache_driver", "memory")
	v.SetDefault("heritage.cache_ttl_secs", 3600)
	v.SetDefault("heritage.cache_max_entries", 10000)
	v.SetDefault("heritage.gateway_timeout_secs", 5)
	v.SetDefault("heritage.retry_max_attempts", 2)
	v.SetDefault("heritage.retry_backoff_ms", 200)
	v.SetDefault("heritage.retry_max_backoff_ms", 2000)
	v.SetDefault("heritage.breaker_threshold", 5)
	v.SetDefault("heritage.breaker_reset_secs", 30)
	v.SetDefault("heritage.audit_queue_size", 256)
	v.SetDefault("ingest.rate_per_sec", 2)
	v.SetDefault("ingest.batch_size", 500)
	v.SetDefault("ingest.target_boroughs", []string{
		"Camden", "Barnet", "Westminster", "Haringey", "Brent", "Islington",
	})
	v.SetDefault("ingest.min_lat", 51.45)
	v.SetDefault("ingest.max_lat", 51.70)
	v.SetDefault("ingest.min_lng", -0.50)
	v.SetDefault("ingest.max_lng", 0.05)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode needs before it starts.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "classify":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Heritage.CacheDriver != "memory" && c.Heritage.CacheDriver != "redis" {
			problems = append(problems, "heritage.cache_driver must be memory or redis")
		}
		if c.Heritage.CacheDriver == "redis" && c.Redis.Addr == "" {
			problems = append(problems, "redis.addr is required for the redis cache driver")
		}
		if c.Store.Driver != "postgres" && c.Store.Driver != "sqlite" {
			problems = append(problems, "store.driver must be postgres or sqlite")
		}
	case "ingest":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Ingest.BatchSize < 1 || c.Ingest.BatchSize > 10000 {
			problems = append(problems, "ingest.batch_size must be between 1 and 10000")
		}
		if c.Ingest.RatePerSec <= 0 {
			problems = append(problems, "ingest.rate_per_sec must be > 0")
		}
	case "migrate":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Heritage.SearchRadiusMeters <= 0 || c.Heritage.SearchRadiusMeters > 5000 {
		problems = append(problems, "heritage.search_radius_meters must be between 1 and 5000")
	}
	if c.Heritage.GatewayTimeoutSecs <= 0 {
		problems = append(problems, "heritage.gateway_timeout_secs must be > 0")
	}
	if c.Heritage.CacheTTLSecs <= 0 {
		problems = append(problems, "heritage.cache_ttl_secs must be > 0")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
