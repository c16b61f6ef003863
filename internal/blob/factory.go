package blob

import (
	"context"
	"fmt"
	"strconv"

	fsstore "crmcore/internal/infra/blob/fs"
	memstore "crmcore/internal/infra/blob/memory"
	s3store "crmcore/internal/infra/blob/s3"
)

// Config selects and parameterises a backend.
type Config struct {
	Driver Driver         `yaml:"driver"`
	FSRoot string         `yaml:"fs_root"`
	S3     s3store.Config `yaml:"s3"`
}

// ApplyEnv overlays the archive settings found through lookup onto cfg:
//
//	CRMCORE_BLOB_DRIVER       fs|s3|memory (default fs)
//	CRMCORE_BLOB_FS_ROOT      directory for the fs driver
//	CRMCORE_BLOB_S3_BUCKET    bucket for the s3 driver (required)
//	CRMCORE_BLOB_S3_REGION    region (default us-east-1)
//	CRMCORE_BLOB_S3_ENDPOINT  custom endpoint, e.g. MinIO
//	CRMCORE_BLOB_S3_PATH_STYLE true to address buckets by path
//
// Unset or empty variables leave cfg untouched. S3 credentials come from the
// standard AWS_* variables or the default chain.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	set := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("CRMCORE_BLOB_DRIVER"); ok && v != "" {
		cfg.Driver = Driver(v)
	}
	set("CRMCORE_BLOB_FS_ROOT", &cfg.FSRoot)
	set("CRMCORE_BLOB_S3_BUCKET", &cfg.S3.Bucket)
	set("CRMCORE_BLOB_S3_REGION", &cfg.S3.Region)
	set("CRMCORE_BLOB_S3_ENDPOINT", &cfg.S3.Endpoint)
	if raw, ok := lookup("CRMCORE_BLOB_S3_PATH_STYLE"); ok && raw != "" {
		pathStyle, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("CRMCORE_BLOB_S3_PATH_STYLE: %w", err)
		}
		cfg.S3.PathStyle = pathStyle
	}
	return nil
}

// Open constructs the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return fsstore.New(cfg.FSRoot)
	case DriverS3:
		return s3store.New(ctx, cfg.S3)
	case DriverMemory:
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}
