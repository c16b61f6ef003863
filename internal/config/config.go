// Package config assembles crmd settings from an optional .env file, an
// optional YAML file and CRMCORE_* environment variables, in increasing order
// of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"crmcore/internal/blob"
	"crmcore/internal/core"
)

// Defaults applied before the file and environment are read.
const (
	DefaultHTTPAddr        = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultSQLitePath      = "./crmcore.db"
	DefaultExportQueue     = 16
	DefaultLogLevel        = "info"
)

// Config is the full runtime configuration of the service binary.
type Config struct {
	HTTP          HTTPConfig         `yaml:"http"`
	Auth          AuthConfig         `yaml:"auth"`
	StrictCascade bool               `yaml:"strict_cascade"`
	LogLevel      string             `yaml:"log_level"`
	Storage       core.StorageConfig `yaml:"storage"`
	Blob          blob.Config        `yaml:"blob"`
	Exports       ExportsConfig      `yaml:"exports"`
}

// HTTPConfig controls the listener.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// AuthConfig controls bearer token verification.
type AuthConfig struct {
	JWTSecret      string `yaml:"jwt_secret"`
	AllowAnonymous bool   `yaml:"allow_anonymous"`
}

// ExportsConfig sizes the audit export worker.
type ExportsConfig struct {
	QueueSize int           `yaml:"queue_size"`
	LinkTTL   time.Duration `yaml:"link_ttl"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            DefaultHTTPAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		LogLevel: DefaultLogLevel,
		Storage: core.StorageConfig{
			Driver:     core.StorageSQLite,
			SQLitePath: DefaultSQLitePath,
		},
		Blob:    blob.Config{Driver: blob.DriverFilesystem},
		Exports: ExportsConfig{QueueSize: DefaultExportQueue, LinkTTL: blob.DefaultPresignExpiry},
	}
}

// Sources names where Load reads from. Empty paths are skipped; a missing
// EnvFile is not an error, a missing File is.
type Sources struct {
	EnvFile string
	File    string
}

// Load builds a Config from defaults, then src.File, then the environment.
// Variables from src.EnvFile never replace ones already set in the process.
func Load(src Sources) (Config, error) {
	if src.EnvFile != "" {
		if err := godotenv.Load(src.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", src.EnvFile, err)
		}
	}
	cfg := Default()
	if src.File != "" {
		raw, err := os.ReadFile(src.File)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", src.File, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(raw []byte, cfg *Config) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

// applyEnv overlays CRMCORE_* variables:
//
//	CRMCORE_HTTP_ADDR            listen address (default :8080)
//	CRMCORE_SHUTDOWN_TIMEOUT     graceful shutdown budget, e.g. 15s
//	CRMCORE_CORS_ORIGINS         comma separated browser origins
//	CRMCORE_JWT_SECRET           HS256 verification secret
//	CRMCORE_ALLOW_ANONYMOUS      accept requests without a bearer token
//	CRMCORE_STRICT_CASCADE       roll back deals whose lead cascade fails
//	CRMCORE_LOG_LEVEL            debug|info|warn|error
//	CRMCORE_STORAGE_DRIVER       memory|sqlite|postgres
//	CRMCORE_SQLITE_PATH          sqlite file
//	CRMCORE_POSTGRES_DSN         postgres connection string
//	CRMCORE_BLOB_DRIVER          fs|s3|memory
//	CRMCORE_BLOB_FS_ROOT         archive directory for the fs driver
//	CRMCORE_BLOB_S3_BUCKET       bucket for the s3 driver
//	CRMCORE_BLOB_S3_REGION       bucket region
//	CRMCORE_BLOB_S3_ENDPOINT     custom endpoint, e.g. MinIO
//	CRMCORE_BLOB_S3_PATH_STYLE   address buckets by path
//	CRMCORE_EXPORT_QUEUE         pending export jobs before 503
//	CRMCORE_EXPORT_LINK_TTL      lifetime of presigned archive links
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) error {
		v, ok := lookup(name)
		if !ok || v == "" {
			return nil
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = parsed
		return nil
	}
	duration := func(name string, dst *time.Duration) error {
		v, ok := lookup(name)
		if !ok || v == "" {
			return nil
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = parsed
		return nil
	}

	str("CRMCORE_HTTP_ADDR", &cfg.HTTP.Addr)
	str("CRMCORE_JWT_SECRET", &cfg.Auth.JWTSecret)
	str("CRMCORE_LOG_LEVEL", &cfg.LogLevel)
	core.ApplyStorageEnv(&cfg.Storage, lookup)
	if err := blob.ApplyEnv(&cfg.Blob, lookup); err != nil {
		return err
	}
	if v, ok := lookup("CRMCORE_CORS_ORIGINS"); ok && v != "" {
		cfg.HTTP.CORSOrigins = splitList(v)
	}
	if v, ok := lookup("CRMCORE_EXPORT_QUEUE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CRMCORE_EXPORT_QUEUE: %w", err)
		}
		cfg.Exports.QueueSize = n
	}
	for name, dst := range map[string]*bool{
		"CRMCORE_ALLOW_ANONYMOUS": &cfg.Auth.AllowAnonymous,
		"CRMCORE_STRICT_CASCADE":  &cfg.StrictCascade,
	} {
		if err := boolean(name, dst); err != nil {
			return err
		}
	}
	for name, dst := range map[string]*time.Duration{
		"CRMCORE_SHUTDOWN_TIMEOUT": &cfg.HTTP.ShutdownTimeout,
		"CRMCORE_EXPORT_LINK_TTL":  &cfg.Exports.LinkTTL,
	} {
		if err := duration(name, dst); err != nil {
			return err
		}
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate rejects settings the binary cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case core.StorageMemory, core.StorageSQLite, "":
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage: postgres driver requires postgres_dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage: unknown driver %q", c.Storage.Driver))
	}
	if c.Blob.Driver != "" && !c.Blob.Driver.Valid() {
		errs = append(errs, fmt.Errorf("blob: unknown driver %q", c.Blob.Driver))
	}
	if c.Blob.Driver == blob.DriverS3 && c.Blob.S3.Bucket == "" {
		errs = append(errs, errors.New("blob: s3 driver requires a bucket"))
	}
	if c.Auth.JWTSecret == "" && !c.Auth.AllowAnonymous {
		errs = append(errs, errors.New("auth: jwt_secret is required unless allow_anonymous is set"))
	}
	if c.Exports.QueueSize < 0 {
		errs = append(errs, errors.New("exports: queue_size must not be negative"))
	}
	if c.Exports.LinkTTL < 0 {
		errs = append(errs, errors.New("exports: link_ttl must not be negative"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
