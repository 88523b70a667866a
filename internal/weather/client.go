package weather

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/skywatch/avweather/pkg/logger"
)

// ClientConfig holds the upstream connection settings
type ClientConfig struct {
	APIBaseURL            string
	RequestTimeoutSeconds int
	UserAgent             string
	BreakerOpenSeconds    int
}

// Client fetches raw METAR/TAF payloads from aviationweather.gov. Exactly
// one HTTP request per Fetch call; retry policy belongs to the operator, not
// to this client. A circuit breaker guards the upstream because its rate
// limits are unpublished.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logger.Logger
}

// NewClient creates a new upstream client
func NewClient(config ClientConfig, log *logger.Logger) *Client {
	log = log.Named("weather-client")

	settings := gobreaker.Settings{
		Name:        "aviationweather",
		MaxRequests: 1,
		Timeout:     time.Duration(config.BreakerOpenSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.RequestTimeoutSeconds) * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  log,
	}
}

// Fetch retrieves the current payload for one (airport, feed) target.
// Returns the response body on HTTP 200 with content, ErrNoReport when the
// upstream has nothing for the station (204, 404, or an empty body), and a
// transient error for everything else. Never retries.
func (c *Client) Fetch(ctx context.Context, icao string, feed FeedType) ([]byte, error) {
	url := fmt.Sprintf("%s/%s?ids=%s&format=json", c.config.APIBaseURL, strings.ToLower(string(feed)), icao)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		body, err := c.doRequest(ctx, url, icao, feed)
		return body, err
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("upstream circuit open: %w", err)
		}
		return nil, err
	}
	body, _ := result.([]byte)
	if len(body) == 0 {
		return nil, ErrNoReport
	}
	return body, nil
}

// doRequest performs the single HTTP attempt. A nil, nil return means the
// station has no current report; the breaker must not count that as a
// failure.
func (c *Client) doRequest(ctx context.Context, url, icao string, feed FeedType) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s %s: %w", feed, icao, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Warn("Upstream rate limit hit",
			logger.String("airport", icao),
			logger.String("feed", string(feed)))
		return nil, fmt.Errorf("upstream rate limited (status %d)", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}

	c.logger.Debug("Fetched weather payload",
		logger.String("airport", icao),
		logger.String("feed", string(feed)),
		logger.Int("bytes", len(body)))
	return body, nil
}
