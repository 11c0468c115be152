package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"finextract/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	DB         DBConfig
	S3         S3Config
	Log        LogConfig
	Auth       AuthConfig
	Extraction ExtractionConfig
	Source     SourceConfig
	Cache      CacheConfig
	Notify     NotifyConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`

	// AllowedOrigins lists browser origins for CORS; empty disables CORS headers.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DBConfig holds run-store connection settings.
type DBConfig struct {
	Driver     string `mapstructure:"driver"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	Name       string `mapstructure:"name"`
	SSLMode    string `mapstructure:"sslmode"`
	SQLitePath string `mapstructure:"sqlite_path"`
	MaxOpen    int    `mapstructure:"max_open"`
	MaxIdle    int    `mapstructure:"max_idle"`
}

// DSN returns the connection string for the configured driver.
func (d *DBConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.SQLitePath
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// S3Config holds settings for the artifact archive bucket.
type S3Config struct {
	Enabled    bool          `mapstructure:"enabled"`
	Region     string        `mapstructure:"region"`
	Bucket     string        `mapstructure:"bucket"`
	Endpoint   string        `mapstructure:"endpoint"`
	AccessKey  string        `mapstructure:"access_key"`
	SecretKey  string        `mapstructure:"secret_key"`
	Prefix     string        `mapstructure:"prefix"`
	PresignTTL time.Duration `mapstructure:"presign_ttl"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig holds API bearer-token settings. Auth is off when Secret is empty.
type AuthConfig struct {
	Secret   string `mapstructure:"secret"`
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`
}

// Enabled reports whether bearer-token auth is required.
func (a *AuthConfig) Enabled() bool {
	return a.Secret != ""
}

// ExtractionConfig holds the heuristics that drive the extraction pipeline.
type ExtractionConfig struct {
	ContextRadius      int     `mapstructure:"context_radius"`
	NearRadius         int     `mapstructure:"near_radius"`
	MinAcceptance      float64 `mapstructure:"min_acceptance"`
	AgreementTolerance float64 `mapstructure:"agreement_tolerance"`
	MaxPlausibleValue  float64 `mapstructure:"max_plausible_value"`
	OutlierThreshold   float64 `mapstructure:"outlier_threshold"`
	OutlierAction      string  `mapstructure:"outlier_action"`
	AccuracyMethod     string  `mapstructure:"accuracy_method"`
	LowConfidence      float64 `mapstructure:"low_confidence"`
	PatternsFile       string  `mapstructure:"patterns_file"`
}

// Validate rejects settings the pipeline cannot run with.
func (e *ExtractionConfig) Validate() error {
	switch {
	case e.ContextRadius <= 0:
		return fmt.Errorf("%w: context_radius must be positive", domain.ErrInvalidConfig)
	case e.NearRadius <= 0 || e.NearRadius > e.ContextRadius:
		return fmt.Errorf("%w: near_radius must be in (0, context_radius]", domain.ErrInvalidConfig)
	case e.MinAcceptance < 0 || e.MinAcceptance > 1:
		return fmt.Errorf("%w: min_acceptance must be in [0, 1]", domain.ErrInvalidConfig)
	case e.AgreementTolerance < 0 || e.AgreementTolerance >= 1:
		return fmt.Errorf("%w: agreement_tolerance must be in [0, 1)", domain.ErrInvalidConfig)
	case e.MaxPlausibleValue <= 0:
		return fmt.Errorf("%w: max_plausible_value must be positive", domain.ErrInvalidConfig)
	case e.OutlierThreshold <= 0:
		return fmt.Errorf("%w: outlier_threshold must be positive", domain.ErrInvalidConfig)
	}
	switch domain.OutlierAction(e.OutlierAction) {
	case domain.OutlierReview, domain.OutlierClip:
	default:
		return fmt.Errorf("%w: unknown outlier_action %q", domain.ErrInvalidConfig, e.OutlierAction)
	}
	switch domain.AccuracyMethod(e.AccuracyMethod) {
	case domain.AccuracyRatio, domain.AccuracyDeviation:
	default:
		return fmt.Errorf("%w: unknown accuracy_method %q", domain.ErrInvalidConfig, e.AccuracyMethod)
	}
	return nil
}

// SourceConfig holds settings for the optional remote extraction source.
type SourceConfig struct {
	Provider    string  `mapstructure:"provider"`
	Name        string  `mapstructure:"name"`
	Endpoint    string  `mapstructure:"endpoint"`
	APIKey      string  `mapstructure:"api_key"`
	TimeoutSecs int     `mapstructure:"timeout_secs"`
	RatePerSec  float64 `mapstructure:"rate_per_sec"`
	Burst       int     `mapstructure:"burst"`
}

// Configured reports whether a remote source should be wired in.
func (s *SourceConfig) Configured() bool {
	return s.Provider != "" && s.Endpoint != ""
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	TTL     time.Duration `mapstructure:"ttl"`
	Cleanup time.Duration `mapstructure:"cleanup"`
}

// NotifyConfig holds reviewer notification settings.
type NotifyConfig struct {
	Provider      string   `mapstructure:"provider"`
	Region        string   `mapstructure:"region"`
	FromAddress   string   `mapstructure:"from_address"`
	FromName      string   `mapstructure:"from_name"`
	Recipients    []string `mapstructure:"recipients"`
	AccuracyFloor float64  `mapstructure:"accuracy_floor"`
}

// Load reads configuration from environment variables with the FINEX_ prefix.
// A .env file in the working directory is read first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("FINEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", "http://localhost:3000")

	// DB defaults
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "finex")
	v.SetDefault("db.password", "finex_secret")
	v.SetDefault("db.name", "finex_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.sqlite_path", "finex.db")
	v.SetDefault("db.max_open", 10)
	v.SetDefault("db.max_idle", 5)

	// S3 defaults
	v.SetDefault("s3.enabled", false)
	v.SetDefault("s3.region", "eu-central-2")
	v.SetDefault("s3.bucket", "finex-archive")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.prefix", "runs")
	v.SetDefault("s3.presign_ttl", "15m")

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	// Auth defaults
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "finex")
	v.SetDefault("auth.audience", "extraction")

	// Extraction defaults
	v.SetDefault("extraction.context_radius", 500)
	v.SetDefault("extraction.near_radius", 120)
	v.SetDefault("extraction.min_acceptance", 0.8)
	v.SetDefault("extraction.agreement_tolerance", 0.10)
	v.SetDefault("extraction.max_plausible_value", 1_000_000_000)
	v.SetDefault("extraction.outlier_threshold", 15_000_000)
	v.SetDefault("extraction.outlier_action", string(domain.OutlierReview))
	v.SetDefault("extraction.accuracy_method", string(domain.AccuracyRatio))
	v.SetDefault("extraction.low_confidence", 0.5)
	v.SetDefault("extraction.patterns_file", "")

	// Remote source defaults
	v.SetDefault("source.provider", "")
	v.SetDefault("source.name", "vision")
	v.SetDefault("source.endpoint", "")
	v.SetDefault("source.api_key", "")
	v.SetDefault("source.timeout_secs", 30)
	v.SetDefault("source.rate_per_sec", 2)
	v.SetDefault("source.burst", 1)

	// Cache defaults
	v.SetDefault("cache.ttl", "30m")
	v.SetDefault("cache.cleanup", "10m")

	// Notify defaults
	v.SetDefault("notify.provider", "noop")
	v.SetDefault("notify.region", "eu-central-1")
	v.SetDefault("notify.from_address", "noreply@finex.local")
	v.SetDefault("notify.from_name", "finex")
	v.SetDefault("notify.recipients", "")
	v.SetDefault("notify.accuracy_floor", 95.0)

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":                    "FINEX_SERVER_PORT",
		"server.read_timeout":            "FINEX_SERVER_READ_TIMEOUT",
		"server.write_timeout":           "FINEX_SERVER_WRITE_TIMEOUT",
		"server.environment":             "FINEX_SERVER_ENVIRONMENT",
		"server.allowed_origins":         "FINEX_SERVER_ALLOWED_ORIGINS",
		"db.driver":                      "FINEX_DB_DRIVER",
		"db.host":                        "FINEX_DB_HOST",
		"db.port":                        "FINEX_DB_PORT",
		"db.user":                        "FINEX_DB_USER",
		"db.password":                    "FINEX_DB_PASSWORD",
		"db.name":                        "FINEX_DB_NAME",
		"db.sslmode":                     "FINEX_DB_SSLMODE",
		"db.sqlite_path":                 "FINEX_DB_SQLITE_PATH",
		"db.max_open":                    "FINEX_DB_MAX_OPEN",
		"db.max_idle":                    "FINEX_DB_MAX_IDLE",
		"s3.enabled":                     "FINEX_S3_ENABLED",
		"s3.region":                      "FINEX_S3_REGION",
		"s3.bucket":                      "FINEX_S3_BUCKET",
		"s3.endpoint":                    "FINEX_S3_ENDPOINT",
		"s3.access_key":                  "FINEX_S3_ACCESS_KEY",
		"s3.secret_key":                  "FINEX_S3_SECRET_KEY",
		"s3.prefix":                      "FINEX_S3_PREFIX",
		"s3.presign_ttl":                 "FINEX_S3_PRESIGN_TTL",
		"log.level":                      "FINEX_LOG_LEVEL",
		"log.format":                     "FINEX_LOG_FORMAT",
		"auth.secret":                    "FINEX_AUTH_SECRET",
		"auth.issuer":                    "FINEX_AUTH_ISSUER",
		"auth.audience":                  "FINEX_AUTH_AUDIENCE",
		"extraction.context_radius":      "FINEX_EXTRACTION_CONTEXT_RADIUS",
		"extraction.near_radius":         "FINEX_EXTRACTION_NEAR_RADIUS",
		"extraction.min_acceptance":      "FINEX_EXTRACTION_MIN_ACCEPTANCE",
		"extraction.agreement_tolerance": "FINEX_EXTRACTION_AGREEMENT_TOLERANCE",
		"extraction.max_plausible_value": "FINEX_EXTRACTION_MAX_PLAUSIBLE_VALUE",
		"extraction.outlier_threshold":   "FINEX_EXTRACTION_OUTLIER_THRESHOLD",
		"extraction.outlier_action":      "FINEX_EXTRACTION_OUTLIER_ACTION",
		"extraction.accuracy_method":     "FINEX_EXTRACTION_ACCURACY_METHOD",
		"extraction.low_confidence":      "FINEX_EXTRACTION_LOW_CONFIDENCE",
		"extraction.patterns_file":       "FINEX_EXTRACTION_PATTERNS_FILE",
		"source.provider":                "FINEX_SOURCE_PROVIDER",
		"source.name":                    "FINEX_SOURCE_NAME",
		"source.endpoint":                "FINEX_SOURCE_ENDPOINT",
		"source.api_key":                 "FINEX_SOURCE_API_KEY",
		"source.timeout_secs":            "FINEX_SOURCE_TIMEOUT_SECS",
		"source.rate_per_sec":            "FINEX_SOURCE_RATE_PER_SEC",
		"source.burst":                   "FINEX_SOURCE_BURST",
		"cache.ttl":                      "FINEX_CACHE_TTL",
		"cache.cleanup":                  "FINEX_CACHE_CLEANUP",
		"notify.provider":                "FINEX_NOTIFY_PROVIDER",
		"notify.region":                  "FINEX_NOTIFY_REGION",
		"notify.from_address":            "FINEX_NOTIFY_FROM_ADDRESS",
		"notify.from_name":               "FINEX_NOTIFY_FROM_NAME",
		"notify.recipients":              "FINEX_NOTIFY_RECIPIENTS",
		"notify.accuracy_floor":          "FINEX_NOTIFY_ACCURACY_FLOOR",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if FINEX_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("FINEX_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:           serverPort,
		ReadTimeout:    v.GetDuration("server.read_timeout"),
		WriteTimeout:   v.GetDuration("server.write_timeout"),
		Environment:    v.GetString("server.environment"),
		AllowedOrigins: splitList(v.GetString("server.allowed_origins")),
	}
	cfg.DB = DBConfig{
		Driver:     v.GetString("db.driver"),
		Host:       v.GetString("db.host"),
		Port:       v.GetInt("db.port"),
		User:       v.GetString("db.user"),
		Password:   v.GetString("db.password"),
		Name:       v.GetString("db.name"),
		SSLMode:    v.GetString("db.sslmode"),
		SQLitePath: v.GetString("db.sqlite_path"),
		MaxOpen:    v.GetInt("db.max_open"),
		MaxIdle:    v.GetInt("db.max_idle"),
	}
	cfg.S3 = S3Config{
		Enabled:    v.GetBool("s3.enabled"),
		Region:     v.GetString("s3.region"),
		Bucket:     v.GetString("s3.bucket"),
		Endpoint:   v.GetString("s3.endpoint"),
		AccessKey:  v.GetString("s3.access_key"),
		SecretKey:  v.GetString("s3.secret_key"),
		Prefix:     v.GetString("s3.prefix"),
		PresignTTL: v.GetDuration("s3.presign_ttl"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	cfg.Auth = AuthConfig{
		Secret:   v.GetString("auth.secret"),
		Issuer:   v.GetString("auth.issuer"),
		Audience: v.GetString("auth.audience"),
	}
	cfg.Extraction = ExtractionConfig{
		ContextRadius:      v.GetInt("extraction.context_radius"),
		NearRadius:         v.GetInt("extraction.near_radius"),
		MinAcceptance:      v.GetFloat64("extraction.min_acceptance"),
		AgreementTolerance: v.GetFloat64("extraction.agreement_tolerance"),
		MaxPlausibleValue:  v.GetFloat64("extraction.max_plausible_value"),
		OutlierThreshold:   v.GetFloat64("extraction.outlier_threshold"),
		OutlierAction:      v.GetString("extraction.outlier_action"),
		AccuracyMethod:     v.GetString("extraction.accuracy_method"),
		LowConfidence:      v.GetFloat64("extraction.low_confidence"),
		PatternsFile:       v.GetString("extraction.patterns_file"),
	}
	if err := cfg.Extraction.Validate(); err != nil {
		return nil, err
	}
	cfg.Source = SourceConfig{
		Provider:    v.GetString("source.provider"),
		Name:        v.GetString("source.name"),
		Endpoint:    v.GetString("source.endpoint"),
		APIKey:      v.GetString("source.api_key"),
		TimeoutSecs: v.GetInt("source.timeout_secs"),
		RatePerSec:  v.GetFloat64("source.rate_per_sec"),
		Burst:       v.GetInt("source.burst"),
	}
	cfg.Cache = CacheConfig{
		TTL:     v.GetDuration("cache.ttl"),
		Cleanup: v.GetDuration("cache.cleanup"),
	}
	cfg.Notify = NotifyConfig{
		Provider:      v.GetString("notify.provider"),
		Region:        v.GetString("notify.region"),
		FromAddress:   v.GetString("notify.from_address"),
		FromName:      v.GetString("notify.from_name"),
		Recipients:    splitList(v.GetString("notify.recipients")),
		AccuracyFloor: v.GetFloat64("notify.accuracy_floor"),
	}

	return cfg, nil
}

// DefaultExtraction returns the extraction settings used when no environment is loaded.
func DefaultExtraction() ExtractionConfig {
	return ExtractionConfig{
		ContextRadius:      500,
		NearRadius:         120,
		MinAcceptance:      0.8,
		AgreementTolerance: 0.10,
		MaxPlausibleValue:  1_000_000_000,
		OutlierThreshold:   15_000_000,
		OutlierAction:      string(domain.OutlierReview),
		AccuracyMethod:     string(domain.AccuracyRatio),
		LowConfidence:      0.5,
	}
}

// splitList parses a comma-separated string into trimmed, non-empty entries.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
