package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "models", cfg.Models.Dir)
	assert.Equal(t, "dataset", cfg.Dataset.Dir)
	assert.True(t, cfg.WatchEnabled())
	assert.Equal(t, 30*time.Second, cfg.Timeout())
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
http:
  port: 9090
log:
  level: debug
  format: json
watch: false
apps:
  car:
    model_type: linear
    seed: 0
    strict: true
    currency: INR
  stock:
    test_ratio: 0.25
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.WatchEnabled())

	car := cfg.App("car")
	assert.Equal(t, "linear", car.ModelType)
	require.NotNil(t, car.Seed)
	assert.Equal(t, int64(0), *car.Seed)
	assert.True(t, car.Strict)
	assert.Equal(t, 0.25, cfg.App("stock").TestRatio)
	assert.Nil(t, cfg.App("house").Seed)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad port", "http:\n  port: 70000\n"},
		{"bad format", "log:\n  format: xml\n"},
		{"bad model", "apps:\n  car:\n    model_type: svm\n"},
		{"bad ratio", "apps:\n  car:\n    test_ratio: 1.5\n"},
		{"bad currency", "apps:\n  car:\n    currency: XYZW\n"},
		{"bad yaml", "http: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
