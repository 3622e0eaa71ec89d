package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123"

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, "public", cfg.Storage.RootPath)
	assert.Equal(t, 1024, cfg.Limits.MaxPathLength)
	assert.Equal(t, 32, cfg.Limits.TreeMaxDepth)
	assert.Equal(t, 10000, cfg.Limits.TreeMaxNodes)
	assert.Equal(t, int64(100*1000*1000), cfg.Limits.MaxUploadBytes)
	assert.Equal(t, 30*time.Minute, cfg.Limits.ArchiveTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Jobs.UploadStaleAfter)
	assert.Equal(t, "./storage-data", cfg.Storage.Options()["base_dir"])
}

func TestLoadConfig_EnvAliases(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("MONGODB_URI", "mongodb://db.internal:27017")
	t.Setenv("STORAGE_TYPE", "b2")
	t.Setenv("BACKBLAZE_KEY_ID", "key-id")
	t.Setenv("B2_APP_KEY", "app-key")
	t.Setenv("B2_BUCKET", "company-files")
	t.Setenv("MAX_UPLOAD_SIZE", "2GiB")
	t.Setenv("ALLOWED_ORIGINS", "https://admin.example.com,https://ops.example.com")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "mongodb://db.internal:27017", cfg.Mongo.URI)
	assert.Equal(t, "key-id", cfg.Storage.Options()["key_id"])
	assert.Equal(t, "app-key", cfg.Storage.Options()["application_key"])
	assert.Equal(t, "company-files", cfg.Storage.Options()["bucket"])
	assert.Equal(t, int64(2<<30), cfg.Limits.MaxUploadBytes)
	assert.Equal(t, []string{"https://admin.example.com", "https://ops.example.com"}, cfg.AllowedOrigins)
}

func TestLoadConfig_File(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	path := filepath.Join(t.TempDir(), "filemanager.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  type: s3
  root_path: /tenants/
  s3:
    bucket: files
    endpoint: http://minio:9000
    force_path_style: true
limits:
  tree_max_depth: 8
audit:
  type: badger
  badger_dir: /var/lib/filemanager/audit
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "s3", cfg.Storage.Type)
	assert.Equal(t, "tenants", cfg.Storage.RootPath)
	assert.Equal(t, "files", cfg.Storage.Options()["bucket"])
	assert.Equal(t, true, cfg.Storage.Options()["force_path_style"])
	assert.Equal(t, 8, cfg.Limits.TreeMaxDepth)
	assert.Equal(t, "badger", cfg.Audit.Type)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{}},
		{"short secret", map[string]string{"JWT_SECRET": "short"}},
		{"unknown storage", map[string]string{"JWT_SECRET": testSecret, "STORAGE_TYPE": "ftp"}},
		{"b2 without credentials", map[string]string{"JWT_SECRET": testSecret, "STORAGE_TYPE": "b2"}},
		{"bad upload size", map[string]string{"JWT_SECRET": testSecret, "MAX_UPLOAD_SIZE": "lots"}},
		{"bad audit type", map[string]string{"JWT_SECRET": testSecret, "AUDIT_TYPE": "syslog"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig("")
			assert.Error(t, err)
		})
	}
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "[NOT SET]", maskSecret(""))
	assert.Equal(t, "[HIDDEN]", maskSecret("short"))
	assert.Equal(t, "abcd***mnop", maskSecret("abcdefghijklmnop"))
	assert.Equal(t, "[CREDENTIALS_HIDDEN]@host:27017", maskConnectionString("mongodb://u:p@host:27017"))
}
