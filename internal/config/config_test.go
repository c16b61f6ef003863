package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmcore/internal/blob"
	"crmcore/internal/core"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsNeedASecret(t *testing.T) {
	t.Setenv("CRMCORE_JWT_SECRET", "")
	t.Setenv("CRMCORE_ALLOW_ANONYMOUS", "")
	_, err := Load(Sources{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")

	t.Setenv("CRMCORE_JWT_SECRET", "s3cret")
	cfg, err := Load(Sources{})
	require.NoError(t, err)
	assert.Equal(t, DefaultHTTPAddr, cfg.HTTP.Addr)
	assert.Equal(t, core.StorageSQLite, cfg.Storage.Driver)
	assert.Equal(t, DefaultSQLitePath, cfg.Storage.SQLitePath)
	assert.Equal(t, blob.DriverFilesystem, cfg.Blob.Driver)
	assert.Equal(t, DefaultExportQueue, cfg.Exports.QueueSize)
	assert.Equal(t, blob.DefaultPresignExpiry, cfg.Exports.LinkTTL)
}

func TestFileThenEnvironment(t *testing.T) {
	path := writeFile(t, "crmd.yaml", `
http:
  addr: ":9090"
  shutdown_timeout: 30s
  cors_origins: ["https://app.example.com"]
auth:
  jwt_secret: from-file
strict_cascade: true
storage:
  driver: postgres
  postgres_dsn: postgres://crm@db/crm
blob:
  driver: s3
  s3:
    bucket: audit-archive
    region: eu-west-1
exports:
  queue_size: 4
  link_ttl: 5m
`)
	t.Setenv("CRMCORE_HTTP_ADDR", ":7070")
	t.Setenv("CRMCORE_CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("CRMCORE_BLOB_S3_PATH_STYLE", "true")

	cfg, err := Load(Sources{File: path})
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.True(t, cfg.StrictCascade)
	assert.Equal(t, core.StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, "audit-archive", cfg.Blob.S3.Bucket)
	assert.True(t, cfg.Blob.S3.PathStyle)
	assert.Equal(t, 4, cfg.Exports.QueueSize)
	assert.Equal(t, 5*time.Minute, cfg.Exports.LinkTTL)
}

func TestApplyEnvCoversStorageAndArchive(t *testing.T) {
	env := map[string]string{
		"CRMCORE_STORAGE_DRIVER":     "postgres",
		"CRMCORE_POSTGRES_DSN":       "postgres://crm@db/crm",
		"CRMCORE_BLOB_DRIVER":        "s3",
		"CRMCORE_BLOB_S3_BUCKET":     "audit-archive",
		"CRMCORE_BLOB_S3_ENDPOINT":   "http://minio:9000",
		"CRMCORE_BLOB_S3_PATH_STYLE": "true",
	}
	cfg := Default()
	require.NoError(t, applyEnv(&cfg, func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}))
	assert.Equal(t, core.StorageConfig{Driver: core.StoragePostgres, SQLitePath: DefaultSQLitePath, PostgresDSN: "postgres://crm@db/crm"}, cfg.Storage)
	assert.Equal(t, blob.DriverS3, cfg.Blob.Driver)
	assert.Equal(t, "audit-archive", cfg.Blob.S3.Bucket)
	assert.Equal(t, "http://minio:9000", cfg.Blob.S3.Endpoint)
	assert.True(t, cfg.Blob.S3.PathStyle)
}

func TestEnvFileDoesNotOverrideProcessEnvironment(t *testing.T) {
	envFile := writeFile(t, ".env", "CRMCORE_JWT_SECRET=from-dotenv\nCRMCORE_STORAGE_DRIVER=memory\n")
	t.Setenv("CRMCORE_JWT_SECRET", "from-process")
	t.Setenv("CRMCORE_STORAGE_DRIVER", "")
	require.NoError(t, os.Unsetenv("CRMCORE_STORAGE_DRIVER"))

	cfg, err := Load(Sources{EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, "from-process", cfg.Auth.JWTSecret)
	assert.Equal(t, core.StorageMemory, cfg.Storage.Driver)
}

func TestMissingEnvFileIsIgnored(t *testing.T) {
	t.Setenv("CRMCORE_ALLOW_ANONYMOUS", "true")
	_, err := Load(Sources{EnvFile: filepath.Join(t.TempDir(), "absent.env")})
	require.NoError(t, err)
}

func TestLoadRejectsBadInput(t *testing.T) {
	t.Setenv("CRMCORE_JWT_SECRET", "s3cret")
	cases := map[string]struct {
		file string
		env  map[string]string
	}{
		"unknown yaml key":   {file: "storage:\n  drvier: sqlite\n"},
		"bad bool":           {env: map[string]string{"CRMCORE_STRICT_CASCADE": "sometimes"}},
		"bad duration":       {env: map[string]string{"CRMCORE_EXPORT_LINK_TTL": "soon"}},
		"bad queue":          {env: map[string]string{"CRMCORE_EXPORT_QUEUE": "many"}},
		"unknown storage":    {env: map[string]string{"CRMCORE_STORAGE_DRIVER": "mongo"}},
		"postgres needs dsn": {env: map[string]string{"CRMCORE_STORAGE_DRIVER": "postgres"}},
		"s3 needs bucket":    {env: map[string]string{"CRMCORE_BLOB_DRIVER": "s3"}},
		"unknown blob":       {env: map[string]string{"CRMCORE_BLOB_DRIVER": "ftp"}},
		"bad log level":      {env: map[string]string{"CRMCORE_LOG_LEVEL": "chatty"}},
		"bad s3 path style":  {env: map[string]string{"CRMCORE_BLOB_S3_PATH_STYLE": "maybe"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			src := Sources{}
			if tc.file != "" {
				src.File = writeFile(t, "crmd.yaml", tc.file)
			}
			_, err := Load(src)
			assert.Error(t, err)
		})
	}
}

func TestMissingConfigFileFails(t *testing.T) {
	t.Setenv("CRMCORE_JWT_SECRET", "s3cret")
	_, err := Load(Sources{File: filepath.Join(t.TempDir(), "nope.yaml")})
	require.Error(t, err)
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := Config{LogLevel: "warn"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "operation", "create_lead")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "create_lead", line["operation"])

	var _ core.Logger = logger
}
