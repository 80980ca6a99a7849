/*
Package configs loads the server configuration from the environment.

An optional .env file is read first with godotenv; values are then bound onto AppConfig
through go-env struct tags and checked by Validate.
*/
package configs

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

const (
	developmentEnv       = "development"
	insecureDevJWTSecret = "insecure_development_secret_change_me"
)

// AppConfig contains every setting the server reads at startup.
type AppConfig struct {
	// General Server Settings
	Environment    string        `env:"ENVIRONMENT,default=development"`
	Port           int           `env:"PORT,default=8080"`
	LogLevel       string        `env:"LOG_LEVEL"`
	AllowedOrigins string        `env:"ALLOWED_ORIGINS"`
	ShutdownGrace  time.Duration `env:"SHUTDOWN_GRACE,default=10s"`

	// Security Settings
	JWTSecret     string        `env:"JWT_SECRET"`
	TokenTTL      time.Duration `env:"TOKEN_TTL,default=24h"`
	PowDifficulty int           `env:"POW_DIFFICULTY,default=0"`

	// Persistence Settings
	StoreDriver   string `env:"STORE_DRIVER,default=memory"`
	DatabaseDSN   string `env:"DATABASE_URL"`
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE,default=chatterbox"`

	// S3 Storage Settings; uploads are disabled when the bucket is empty.
	S3BucketName      string `env:"S3_BUCKET_NAME"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3Region          string `env:"S3_REGION,default=auto"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	S3PublicBaseURL   string `env:"S3_PUBLIC_BASE_URL"`
	MaxUploadBytes    int64  `env:"MAX_UPLOAD_BYTES,default=5242880"`

	// Telemetry Settings
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME,default=chatterbox"`
}

// LoadConfig reads .env (when present) and the process environment into an AppConfig.
func LoadConfig() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{}
	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.IsDevelopment() && cfg.JWTSecret == "" {
		cfg.JWTSecret = insecureDevJWTSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *AppConfig) Validate() error {
	if c.Port < 1024 || c.Port > 65535 {
		return fmt.Errorf("port number %d is outside the allowed range (%d-%d)", c.Port, 1024, 65535)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required in %s environment", c.Environment)
	}

	if c.PowDifficulty < 0 || c.PowDifficulty > 8 {
		return fmt.Errorf("POW_DIFFICULTY must be between 0 and 8, got %d", c.PowDifficulty)
	}

	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}

	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_URL environment variable is required for the %s store", c.StoreDriver)
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI environment variable is required for the %s store", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	if c.S3BucketName != "" && (c.S3Endpoint == "" || c.S3AccessKeyID == "" || c.S3SecretAccessKey == "") {
		return fmt.Errorf("S3_ENDPOINT, S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY are required when S3_BUCKET_NAME is set")
	}

	return nil
}

// IsDevelopment reports whether the server runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == developmentEnv
}

// Origins returns the trimmed, non-empty entries of ALLOWED_ORIGINS.
func (c *AppConfig) Origins() []string {
	origins := []string{}
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// UploadsEnabled reports whether object storage is configured.
func (c *AppConfig) UploadsEnabled() bool {
	return c.S3BucketName != ""
}

// Addr is the listen address for the HTTP server.
func (c *AppConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
