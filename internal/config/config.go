package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server   ServerConfig    `toml:"server"`   // HTTP server settings
	Logging  LoggingConfig   `toml:"logging"`  // Application logging settings
	Airports AirportsConfig  `toml:"airports"` // Airport reference dataset settings
	Weather  WeatherConfig   `toml:"weather"`  // Upstream weather source settings
	Stations []StationConfig `toml:"stations"` // Monitored airports and their enabled feeds
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port             int    `toml:"port"`                  // HTTP port for the server
	Host             string `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	ReadTimeoutSecs  int    `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request
	WriteTimeoutSecs int    `toml:"write_timeout_seconds"` // Maximum duration for writing the response
	IdleTimeoutSecs  int    `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// AirportsConfig contains the airport reference dataset configuration
type AirportsConfig struct {
	DBPath string `toml:"db_path"` // Path to airport database CSV file (OurAirports format)
}

// WeatherConfig contains upstream weather source configuration
type WeatherConfig struct {
	APIBaseURL            string `toml:"api_base_url"`            // Base URL of the aviationweather.gov data API
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"` // HTTP timeout for upstream requests in seconds
	UserAgent             string `toml:"user_agent"`              // User-Agent header sent upstream (identify your deployment)
	BreakerOpenSeconds    int    `toml:"breaker_open_seconds"`    // How long the circuit breaker stays open after tripping
}

// StationConfig is one monitored airport entry
type StationConfig struct {
	ICAO  string   `toml:"icao"`  // ICAO code of the airport (e.g., "CYYZ")
	Feeds []string `toml:"feeds"` // Enabled feeds: "METAR", "TAF"; empty means both
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyEnvOverrides()

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // Repository layout location
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// applyEnvOverrides lets deployment environments override file settings.
// Values come from the process environment; cmd/server loads a .env file
// first when one exists.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AVWEATHER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("AVWEATHER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("AVWEATHER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("AVWEATHER_API_BASE_URL"); v != "" {
		c.Weather.APIBaseURL = v
	}
	if v := os.Getenv("AVWEATHER_AIRPORTS_DB"); v != "" {
		c.Airports.DBPath = v
	}
}

// Validate validates the configuration and fills in defaults
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.ReadTimeoutSecs <= 0 {
		c.Server.ReadTimeoutSecs = 15
	}
	if c.Server.WriteTimeoutSecs <= 0 {
		c.Server.WriteTimeoutSecs = 30
	}
	if c.Server.IdleTimeoutSecs <= 0 {
		c.Server.IdleTimeoutSecs = 60
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logging.Format)
	}

	if c.Airports.DBPath == "" {
		return fmt.Errorf("airports.db_path is required")
	}

	if c.Weather.APIBaseURL == "" {
		c.Weather.APIBaseURL = "https://aviationweather.gov/api/data"
	}
	if c.Weather.RequestTimeoutSeconds <= 0 {
		c.Weather.RequestTimeoutSeconds = 10
	}
	if c.Weather.UserAgent == "" {
		c.Weather.UserAgent = "avweather/1.0 (github.com/skywatch/avweather)"
	}
	if c.Weather.BreakerOpenSeconds <= 0 {
		c.Weather.BreakerOpenSeconds = 60
	}

	if len(c.Stations) == 0 {
		return fmt.Errorf("at least one [[stations]] entry is required")
	}
	seen := make(map[string]bool, len(c.Stations))
	for i, st := range c.Stations {
		icao := strings.ToUpper(strings.TrimSpace(st.ICAO))
		if icao == "" {
			return fmt.Errorf("stations[%d]: icao is required", i)
		}
		if seen[icao] {
			return fmt.Errorf("duplicate station configured: %s", icao)
		}
		seen[icao] = true
		for _, feed := range st.Feeds {
			switch strings.ToUpper(feed) {
			case "METAR", "TAF":
			default:
				return fmt.Errorf("stations[%d] (%s): invalid feed %q (must be METAR or TAF)", i, icao, feed)
			}
		}
	}

	return nil
}
