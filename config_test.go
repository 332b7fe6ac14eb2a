package rowcast

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
	path := filepath.Join(t.TempDir(), "rowcast.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
driver: postgres
dsn: postgres://u:p@localhost:5432/app
connect_timeout: 3s
defaults:
  cast_booleans: true
  as: array
  database_timezone: utc
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Driver)
	assert.Equal(t, "postgres://u:p@localhost:5432/app", cfg.DSN)
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)

	layer, err := cfg.Defaults.Layer()
	require.NoError(t, err)

	o := resolveOptions(layer)
	assert.True(t, o.CastBooleans)
	assert.Equal(t, ShapeArray, o.As)
	assert.Equal(t, TimezoneUTC, o.DatabaseTimezone)
	// Keys the file does not name keep their hardcoded defaults.
	assert.True(t, o.Cast)
	assert.True(t, o.CacheRows)
}

func TestLoadConfig_UnsetKeysDoNotOverride(t *testing.T) {
	path := writeConfig(t, `
driver: mysql
dsn: root@tcp(localhost:3306)/app
defaults:
  stream: true
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	layer, err := cfg.Defaults.Layer()
	require.NoError(t, err)
	require.Len(t, layer, 1)

	o := resolveOptions([]Option{WithCast(false)}, layer)
	assert.True(t, o.Stream)
	assert.False(t, o.Cast, "a key unset in the file must not clobber lower layers")
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad shape", "defaults:\n  as: tuple\n"},
		{"bad timezone", "defaults:\n  database_timezone: mars\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, tt.body))
			require.NoError(t, err)
			_, err = cfg.Defaults.Layer()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
