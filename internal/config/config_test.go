package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/deploymenttheory/go-backup-mapper/internal/common/cryptoutil"
	commonerrors "github.com/deploymenttheory/go-backup-mapper/internal/common/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeFromFile(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "backup-mapper.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
log_format: json
backup:
  password_file: secret.txt
  temp_dir: /scratch
filesystem:
  platform_detect_limit: 200
report:
  hash_algorithm: md5
`), 0o644))
	t.Setenv("BACKUP_MAPPER_REPORT_LIST_LIMIT", "25")

	require.NoError(t, Initialize(cfg))
	assert.True(t, ConfigLoaded)
	assert.Equal(t, cfg, ConfigFile)
	assert.NotNil(t, Viper())

	assert.Equal(t, "json", Instance.LogFormat)
	assert.Equal(t, 25, Instance.Report.ListLimit)
	assert.Equal(t, 1000, Instance.Filesystem.ProgressInterval)

	decode := DecodeOptionsFromConfig()
	assert.Equal(t, "secret.txt", decode.PasswordFile)
	assert.Equal(t, "/scratch", decode.TempDir)
	assert.Equal(t, 500, decode.ProgressInterval)

	loader := LoaderOptionsFromConfig()
	assert.Equal(t, 200, loader.PlatformDetectLimit)
	assert.Equal(t, 1000, loader.ProgressInterval)
	assert.Equal(t, "/scratch", loader.TempDir)

	hasher, err := HasherFromConfig()
	require.NoError(t, err)
	assert.Equal(t, cryptoutil.MD5, hasher.Algorithm())

	Viper().Set("report.list_limit", 7)
	require.NoError(t, Refresh())
	assert.Equal(t, 7, Instance.Report.ListLimit)
}

func TestValidate(t *testing.T) {
	valid := func() AppConfig {
		var c AppConfig
		c.LogFormat = "human"
		c.Backup.ProgressInterval = 500
		c.Filesystem.PlatformDetectLimit = 5000
		c.Filesystem.ProgressInterval = 1000
		c.Report.ListLimit = 100
		c.Report.HashAlgorithm = "sha256"
		return c
	}

	c := valid()
	require.NoError(t, validate(&c))

	tests := []struct {
		name   string
		mutate func(c *AppConfig)
	}{
		{"log format", func(c *AppConfig) { c.LogFormat = "xml" }},
		{"backup progress", func(c *AppConfig) { c.Backup.ProgressInterval = 0 }},
		{"detect limit", func(c *AppConfig) { c.Filesystem.PlatformDetectLimit = -1 }},
		{"filesystem progress", func(c *AppConfig) { c.Filesystem.ProgressInterval = 0 }},
		{"list limit", func(c *AppConfig) { c.Report.ListLimit = -5 }},
		{"hash algorithm", func(c *AppConfig) { c.Report.HashAlgorithm = "crc32" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.ErrorIs(t, validate(&c), commonerrors.ErrConfigInvalid)
		})
	}
}
