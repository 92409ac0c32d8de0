package config_test

import (
	"nofuture/config"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nofuture.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, 120*time.Second, cfg.Ingest.Interval)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
[ingest]
interval = "30s"

[twitter]
max_results = 10

[[authors]]
handle = "golang"

[[authors]]
handle = "rustlang"
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Ingest.Interval)
	assert.Equal(t, 120*time.Second, cfg.Publish.Interval)
	assert.Equal(t, 10, cfg.Twitter.MaxResults)
	assert.Equal(t, "https://api.twitter.com", cfg.Twitter.BaseURL)
	assert.Equal(t, []config.TomlAuthor{{Handle: "golang"}, {Handle: "rustlang"}}, cfg.Authors)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "zero interval", content: "[publish]\ninterval = \"0s\"\n"},
		{name: "max results too small", content: "[twitter]\nmax_results = 1\n"},
		{name: "empty handle", content: "[[authors]]\nhandle = \"\"\n"},
		{name: "broken toml", content: "[ingest\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadConfig(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}
