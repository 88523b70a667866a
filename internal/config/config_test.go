package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[server]
host = "127.0.0.1"
port = 9090

[logging]
level = "debug"
format = "json"

[airports]
db_path = "testdata/airports.csv"

[weather]
api_base_url = "https://example.test/api/data"
request_timeout_seconds = 5

[[stations]]
icao = "CYYZ"
feeds = ["METAR", "TAF"]

[[stations]]
icao = "KJFK"
feeds = ["METAR"]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadAndValidate(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "https://example.test/api/data", cfg.Weather.APIBaseURL)
	require.Len(t, cfg.Stations, 2)
	assert.Equal(t, "CYYZ", cfg.Stations[0].ICAO)
	assert.Equal(t, []string{"METAR"}, cfg.Stations[1].Feeds)
}

func TestValidateFillsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[airports]
db_path = "airports.csv"

[[stations]]
icao = "CYYZ"
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "https://aviationweather.gov/api/data", cfg.Weather.APIBaseURL)
	assert.Equal(t, 10, cfg.Weather.RequestTimeoutSeconds)
	assert.NotEmpty(t, cfg.Weather.UserAgent)
	assert.Positive(t, cfg.Weather.BreakerOpenSeconds)
}

func TestValidateRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"missing stations": `
[airports]
db_path = "airports.csv"
`,
		"missing airports db": `
[[stations]]
icao = "CYYZ"
`,
		"invalid feed": `
[airports]
db_path = "airports.csv"

[[stations]]
icao = "CYYZ"
feeds = ["NOTAM"]
`,
		"duplicate station": `
[airports]
db_path = "airports.csv"

[[stations]]
icao = "CYYZ"

[[stations]]
icao = "cyyz"
`,
		"bad log level": `
[logging]
level = "verbose"

[airports]
db_path = "airports.csv"

[[stations]]
icao = "CYYZ"
`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, content))
			require.NoError(t, err)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AVWEATHER_PORT", "7070")
	t.Setenv("AVWEATHER_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
}
