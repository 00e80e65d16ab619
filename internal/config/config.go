// Package config loads server configuration from the environment, an optional
// .env file and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/and161185/msgstore/internal/errs"
)

// Blob backends.
const (
	BlobDisk = "disk"
	BlobS3   = "s3"
)

// Config is the process configuration.
type Config struct {
	// Database
	DBModule string `env:"STORE_DB_MODULE" envDefault:"pgx"`
	Host     string `env:"STORE_DB_HOST" envDefault:"localhost"`
	Port     int    `env:"STORE_DB_PORT" envDefault:"5432"`
	User     string `env:"STORE_DB_USER" envDefault:"msgstore"`
	Password string `env:"STORE_DB_PASSWORD"`
	DBName   string `env:"STORE_DB_NAME" envDefault:"msgstore"`
	SSLMode  string `env:"STORE_DB_SSLMODE" envDefault:"disable"`
	MaxConns int    `env:"STORE_DB_MAX_CONNS" envDefault:"10"`

	// Blob storage
	BlobBackend string `env:"STORE_BLOB_BACKEND" envDefault:"disk"`
	BlobRoot    string `env:"STORE_BLOB_ROOT" envDefault:"./data/files"`
	S3Bucket    string `env:"STORE_S3_BUCKET"`
	S3Prefix    string `env:"STORE_S3_PREFIX"`
	S3Endpoint  string `env:"STORE_S3_ENDPOINT"`
	S3Region    string `env:"STORE_S3_REGION" envDefault:"us-east-1"`
	S3AccessKey string `env:"STORE_S3_ACCESS_KEY"`
	S3SecretKey string `env:"STORE_S3_SECRET_KEY"`
	S3PathStyle bool   `env:"STORE_S3_PATH_STYLE"`

	// Stores
	FederationTTL time.Duration `env:"STORE_FEDERATION_TTL" envDefault:"5m"`
	CodeLength    int           `env:"STORE_CODE_LENGTH" envDefault:"6"`

	// Redemption throttling
	RedeemMaxFails int           `env:"STORE_REDEEM_MAX_FAILS" envDefault:"5"`
	RedeemWindow   time.Duration `env:"STORE_REDEEM_WINDOW" envDefault:"15m"`
	RedeemBlock    time.Duration `env:"STORE_REDEEM_BLOCK" envDefault:"15m"`

	// Process
	HealthAddr     string        `env:"STORE_HEALTH_ADDR" envDefault:":9090"`
	HealthInterval time.Duration `env:"STORE_HEALTH_INTERVAL" envDefault:"10s"`
	LogQueries     bool          `env:"STORE_LOG_QUERIES"`
	Dev            bool          `env:"STORE_DEV"`
}

// Load reads envFiles (".env" when none are given; missing files are ignored),
// then the environment, then args.
func Load(args []string, envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("msgstore", flag.ContinueOnError)
	fs.StringVar(&cfg.DBModule, "dbmodule", cfg.DBModule, "database driver (pgx)")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "database host")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "database port")
	fs.StringVar(&cfg.User, "user", cfg.User, "database user")
	fs.StringVar(&cfg.Password, "password", cfg.Password, "database password")
	fs.StringVar(&cfg.DBName, "dbname", cfg.DBName, "database name")
	fs.IntVar(&cfg.MaxConns, "max-conns", cfg.MaxConns, "connection pool size")
	fs.StringVar(&cfg.BlobBackend, "blob-backend", cfg.BlobBackend, "blob backend: disk or s3")
	fs.StringVar(&cfg.BlobRoot, "blob-root", cfg.BlobRoot, "blob directory (disk backend)")
	fs.StringVar(&cfg.S3Bucket, "s3-bucket", cfg.S3Bucket, "bucket (s3 backend)")
	fs.DurationVar(&cfg.FederationTTL, "federation-ttl", cfg.FederationTTL, "federation directory cache TTL, 0 disables")
	fs.IntVar(&cfg.CodeLength, "code-length", cfg.CodeLength, "validation code length")
	fs.IntVar(&cfg.RedeemMaxFails, "redeem-max-fails", cfg.RedeemMaxFails, "invalid codes per source before blocking, 0 disables")
	fs.StringVar(&cfg.HealthAddr, "health-addr", cfg.HealthAddr, "gRPC health listen address")
	fs.BoolVar(&cfg.LogQueries, "log-queries", cfg.LogQueries, "trace SQL at debug level")
	fs.BoolVar(&cfg.Dev, "dev", cfg.Dev, "development logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option consistency.
func (c *Config) Validate() error {
	switch strings.ToLower(c.DBModule) {
	case "pgx", "postgres", "postgresql":
	default:
		return fmt.Errorf("dbmodule %q: %w", c.DBModule, errs.ErrUnsupportedDriver)
	}
	if c.Host == "" || c.DBName == "" {
		return errors.New("config: host and dbname are required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: bad port %d", c.Port)
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("config: bad max-conns %d", c.MaxConns)
	}
	if c.CodeLength <= 0 {
		return fmt.Errorf("config: bad code-length %d", c.CodeLength)
	}
	if c.HealthInterval <= 0 {
		return fmt.Errorf("config: bad health interval %s", c.HealthInterval)
	}
	if c.RedeemMaxFails > 0 && (c.RedeemWindow <= 0 || c.RedeemBlock <= 0) {
		return errors.New("config: redeem window and block must be positive")
	}
	switch c.BlobBackend {
	case BlobDisk:
		if c.BlobRoot == "" {
			return errors.New("config: blob-root is required for the disk backend")
		}
	case BlobS3:
		if c.S3Bucket == "" {
			return errors.New("config: s3-bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("config: unknown blob backend %q", c.BlobBackend)
	}
	return nil
}

// DSN returns the PostgreSQL connection URL.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.DBName,
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}
