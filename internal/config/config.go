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
	Geocode  GeocodeConfig  `yaml:"geocode" mapstructure:"geocode"`
	Universe UniverseConfig `yaml:"universe" mapstructure:"universe"`
	Query    QueryConfig    `yaml:"query" mapstructure:"query"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// GeocodeConfig holds collaborator settings for Census and Google.
type GeocodeConfig struct {
	GoogleKey    string  `yaml:"google_api_key" mapstructure:"google_api_key"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheLookups bool    `yaml:"cache_lookups" mapstructure:"cache_lookups"`
	CacheTTLDays int     `yaml:"cache_ttl_days" mapstructure:"cache_ttl_days"`
}

// UniverseConfig configures the postal-code universe build.
type UniverseConfig struct {
	Concurrency  int    `yaml:"concurrency" mapstructure:"concurrency"`
	ChunkSize    int    `yaml:"chunk_size" mapstructure:"chunk_size"`
	GazetteerURL string `yaml:"gazetteer_url" mapstructure:"gazetteer_url"`
	TempDir      string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// QueryConfig configures the radius query run.
type QueryConfig struct {
	RadiusMiles float64 `yaml:"radius_miles" mapstructure:"radius_miles"`
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
	Indexed     bool    `yaml:"indexed" mapstructure:"indexed"`
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
	v.SetEnvPrefix("RADIUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "radius.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("geocode.rate_limit", 50)
	v.SetDefault("geocode.timeout_secs", 30)
	v.SetDefault("geocode.cache_lookups", true)
	v.SetDefault("geocode.cache_ttl_days", 30)
	v.SetDefault("universe.concurrency", 8)
	v.SetDefault("universe.chunk_size", 250)
	v.SetDefault("universe.gazetteer_url",
		"https://www2.census.gov/geo/docs/maps-data/data/gazetteer/2024_Gazetteer/2024_Gaz_zcta_national.zip")
	v.SetDefault("universe.temp_dir", "/tmp/radius")
	v.SetDefault("query.radius_miles", 50)
	v.SetDefault("query.concurrency", 4)
	v.SetDefault("query.indexed", true)

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

// Validate checks that the configuration is usable for the given mode.
// Modes: "universe", "query".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	if c.Geocode.CacheTTLDays < 0 {
		problems = append(problems, "geocode.cache_ttl_days must be >= 0")
	}

	switch mode {
	case "universe":
		if c.Universe.Concurrency < 1 || c.Universe.Concurrency > 64 {
			problems = append(problems, "universe.concurrency must be between 1 and 64")
		}
		if c.Universe.ChunkSize < 1 {
			problems = append(problems, "universe.chunk_size must be > 0")
		}
	case "query":
		if c.Query.RadiusMiles <= 0 {
			problems = append(problems, "query.radius_miles must be > 0")
		}
		if c.Query.Concurrency < 1 || c.Query.Concurrency > 64 {
			problems = append(problems, "query.concurrency must be between 1 and 64")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
