package config

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultServiceURL is the USA Census Counties feature layer.
const DefaultServiceURL = "https://services.arcgis.com/P3ePLMYs2RVChkJx/ArcGIS/rest/services/USA_Census_Counties/FeatureServer/0"

// Config holds the full application configuration.
type Config struct {
	Service    ServiceConfig    `yaml:"service" mapstructure:"service"`
	Compliance ComplianceConfig `yaml:"compliance" mapstructure:"compliance"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ServiceConfig configures the feature service client.
type ServiceConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// ComplianceConfig holds the minimum-area rule and the equal-area system
// areas are measured in.
type ComplianceConfig struct {
	ThresholdSqMi float64 `yaml:"threshold_sqmi" mapstructure:"threshold_sqmi"`
	EPSG          int     `yaml:"epsg" mapstructure:"epsg"`
}

// StoreConfig selects and configures the session store.
type StoreConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	Dir           string `yaml:"dir" mapstructure:"dir"`
	SQLitePath    string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	DatabaseURL   string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns      int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns      int32  `yaml:"min_conns" mapstructure:"min_conns"`
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
	RedisTTLHours int    `yaml:"redis_ttl_hours" mapstructure:"redis_ttl_hours"`
}

// RetryConfig controls caller-side retries of a whole fetch.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Store drivers.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

var drivers = []string{DriverFile, DriverSQLite, DriverPostgres, DriverRedis}

// Equal-area reference systems the area package can project into.
var supportedEPSG = []int{3083, 5070}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GISCOMP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("service.url", DefaultServiceURL)
	v.SetDefault("service.timeout_secs", 60)
	v.SetDefault("service.user_agent", "gis-compliance/1.0")
	v.SetDefault("compliance.threshold_sqmi", 2500.0)
	v.SetDefault("compliance.epsg", 3083)
	v.SetDefault("store.driver", DriverFile)
	v.SetDefault("store.dir", "saved_sessions")
	v.SetDefault("store.sqlite_path", "sessions.db")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("retry.max_attempts", 1)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
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

// Validate checks the settings a command mode depends on. Modes: check,
// fetch, audit, session, serve.
func (c *Config) Validate(mode string) error {
	var errs []string

	needService := false
	needStore := false
	switch mode {
	case "check":
	case "fetch":
		needService = true
	case "audit":
		needService = true
		needStore = true
	case "session":
		needStore = true
	case "serve":
		needService = true
		needStore = true
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Compliance.ThresholdSqMi <= 0 {
		errs = append(errs, "compliance.threshold_sqmi must be > 0")
	}
	if !slices.Contains(supportedEPSG, c.Compliance.EPSG) {
		errs = append(errs, "compliance.epsg must be one of 3083, 5070")
	}

	if needService {
		if c.Service.URL == "" {
			errs = append(errs, "service.url is required")
		}
		if c.Service.TimeoutSecs < 0 {
			errs = append(errs, "service.timeout_secs must be >= 0")
		}
		if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > 10 {
			errs = append(errs, "retry.max_attempts must be between 1 and 10")
		}
	}

	if needStore {
		switch c.Store.Driver {
		case DriverFile:
			if c.Store.Dir == "" {
				errs = append(errs, "store.dir is required for the file driver")
			}
		case DriverSQLite:
			if c.Store.SQLitePath == "" {
				errs = append(errs, "store.sqlite_path is required for the sqlite driver")
			}
		case DriverPostgres:
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for the postgres driver")
			}
		case DriverRedis:
			if c.Store.RedisAddr == "" {
				errs = append(errs, "store.redis_addr is required for the redis driver")
			}
		default:
			errs = append(errs, "store.driver must be one of "+strings.Join(drivers, ", "))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
