package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Storage  StorageConfig
	Geocode  GeocodeConfig
	CheckIn  CheckInConfig
}

// AppConfig holds application configuration
type AppConfig struct {
	Name           string   `env:"APP_NAME" envDefault:"checkin-engine"`
	Version        string   `env:"APP_VERSION" envDefault:"v1.0.0"`
	Port           int      `env:"APP_PORT" envDefault:"8080"`
	Env            string   `env:"APP_ENV" envDefault:"development"` // development, staging, production
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string   `env:"LOG_FORMAT" envDefault:"json"` // json, text
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
}

func (a AppConfig) IsDevelopment() bool {
	return a.Env == "development"
}

type DatabaseConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME" envDefault:"checkin_engine"`
	SSLMode  string `env:"DB_SSL_MODE" envDefault:"disable"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"25"`
	MinConns int32  `env:"DB_MIN_CONNS" envDefault:"2"`
}

// RedisConfig is optional: an empty address keeps the check-in lock in process memory.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	Prefix   string `env:"REDIS_PREFIX" envDefault:"checkin"`
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// JWTConfig holds JWT configuration. Tokens are issued by the account service; this service only verifies them.
type JWTConfig struct {
	Secret           string `env:"JWT_SECRET_KEY"`
	AccessExpiration string `env:"JWT_ACCESS_EXPIRATION_TIME" envDefault:"1h"`
}

type StorageConfig struct {
	BasePath       string `env:"STORAGE_BASE_PATH" envDefault:"./uploads"`
	BaseURL        string `env:"STORAGE_BASE_URL" envDefault:"http://localhost:8080/uploads"`
	MaxUploadBytes int64  `env:"STORAGE_MAX_UPLOAD_BYTES" envDefault:"10485760"`
	MaxDimension   int    `env:"PHOTO_MAX_DIMENSION" envDefault:"1600"`
	MaxPhotoBytes  int    `env:"PHOTO_MAX_BYTES" envDefault:"153600"`
	MinPhotoBytes  int    `env:"PHOTO_MIN_BYTES" envDefault:"51200"`
}

// GeocodeConfig points at a Nominatim-compatible reverse geocoder. An empty URL disables address lookup.
type GeocodeConfig struct {
	URL       string        `env:"GEOCODE_URL" envDefault:"https://nominatim.openstreetmap.org"`
	UserAgent string        `env:"GEOCODE_USER_AGENT" envDefault:"checkin-engine/1.0"`
	Language  string        `env:"GEOCODE_LANGUAGE" envDefault:"vi"`
	Timeout   time.Duration `env:"GEOCODE_TIMEOUT" envDefault:"4s"`
}

func (g GeocodeConfig) Enabled() bool {
	return g.URL != ""
}

type CheckInConfig struct {
	OnTimeMinutes        int           `env:"CHECKIN_ON_TIME_MINUTES" envDefault:"15"`
	LateMinutes          int           `env:"CHECKIN_LATE_MINUTES" envDefault:"30"`
	DefaultRadiusMeters  float64       `env:"CHECKIN_DEFAULT_RADIUS_METERS" envDefault:"100"`
	UploadTimeout        time.Duration `env:"UPLOAD_TIMEOUT" envDefault:"30s"`
	SubmitTimeout        time.Duration `env:"SUBMIT_TIMEOUT" envDefault:"15s"`
	LockTTL              time.Duration `env:"CHECKIN_LOCK_TTL" envDefault:"2m"`
	BoardRefreshInterval time.Duration `env:"BOARD_REFRESH_INTERVAL" envDefault:"30s"`
	WatermarkLineWidth   int           `env:"WATERMARK_LINE_WIDTH" envDefault:"48"`
	RecordCacheSubjects  int           `env:"RECORD_CACHE_SUBJECTS" envDefault:"10000"`
}

func (c CheckInConfig) OnTime() time.Duration {
	return time.Duration(c.OnTimeMinutes) * time.Minute
}

func (c CheckInConfig) Late() time.Duration {
	return time.Duration(c.LateMinutes) * time.Minute
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if c.Database.Password == "" {
		errs = append(errs, errors.New("DB_PASSWORD is required"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET_KEY is required"))
	}
	if _, err := time.ParseDuration(c.JWT.AccessExpiration); err != nil {
		errs = append(errs, fmt.Errorf("JWT_ACCESS_EXPIRATION_TIME is invalid: %w", err))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT %d is out of range", c.App.Port))
	}
	if c.Storage.BasePath == "" {
		errs = append(errs, errors.New("STORAGE_BASE_PATH is required"))
	}
	if _, err := url.ParseRequestURI(c.Storage.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("STORAGE_BASE_URL is invalid: %w", err))
	}
	if c.CheckIn.OnTimeMinutes <= 0 {
		errs = append(errs, errors.New("CHECKIN_ON_TIME_MINUTES must be positive"))
	}
	if c.CheckIn.LateMinutes < c.CheckIn.OnTimeMinutes {
		errs = append(errs, errors.New("CHECKIN_LATE_MINUTES must not be shorter than CHECKIN_ON_TIME_MINUTES"))
	}
	if c.CheckIn.DefaultRadiusMeters <= 0 {
		errs = append(errs, errors.New("CHECKIN_DEFAULT_RADIUS_METERS must be positive"))
	}
	if c.CheckIn.BoardRefreshInterval <= 0 {
		errs = append(errs, errors.New("BOARD_REFRESH_INTERVAL must be positive"))
	}

	return errors.Join(errs...)
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.Database.User),
		url.QueryEscape(c.Database.Password),
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
