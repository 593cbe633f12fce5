package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sensor-gateway/gateway-monitor/internal/models"
)

// FetchError represents a failed remote fetch. Transient errors (network
// failures, timeouts, 5xx) are retried; permanent errors (4xx, malformed
// payloads) are not.
type FetchError struct {
	Op         string
	StatusCode int
	Transient  bool
	Err        error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("remote %s: status %d", e.Op, e.StatusCode)
}

// Unwrap returns the underlying error
func (e *FetchError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable fetch error
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Transient
}

// Config holds remote client settings
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	RetryCount     int
	RetryDelay     time.Duration
	CacheTTL       time.Duration
}

type cacheEntry struct {
	snapshots []models.DeviceSnapshot
	storedAt  time.Time
}

// Client fetches device snapshots from the remote gateway's summary and
// detail endpoints. It owns retry, short-lived response caching, and the
// connectivity bookkeeping consumed by the health reporter.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker

	mu          sync.Mutex
	cache       map[string]cacheEntry
	connected   bool
	lastContact time.Time
}

// NewClient creates a remote snapshot client
func NewClient(cfg Config) *Client {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.RetryCount < 1 {
		cfg.RetryCount = 1
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	// The breaker guards only interactive detail fetches. Summary polling
	// must keep probing through outages so recovery is observed.
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "remote-detail",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		breaker: cb,
		cache:   make(map[string]cacheEntry),
	}
}

// FetchSummary returns the remote per-device snapshot list, optionally
// filtered. Bursts of near-simultaneous calls with the same filter collapse
// into one round trip through the TTL cache.
func (c *Client) FetchSummary(ctx context.Context, filter string) ([]models.DeviceSnapshot, error) {
	if cached, ok := c.cachedSummary(filter); ok {
		return cached, nil
	}

	endpoint := c.cfg.BaseURL + "/api/v1/summary"
	if filter != "" {
		endpoint += "?filter=" + url.QueryEscape(filter)
	}

	var summary models.SummaryResponse
	operation := func() error {
		err := c.getJSON(ctx, "summary", endpoint, &summary)
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.RetryDelay), uint64(c.cfg.RetryCount-1)),
		ctx)

	if err := backoff.Retry(operation, bo); err != nil {
		c.markFailure()
		return nil, err
	}

	snapshots := make([]models.DeviceSnapshot, 0, len(summary.Devices))
	for _, snap := range summary.Devices {
		if snap.Identifier == "" {
			c.markFailure()
			return nil, &FetchError{Op: "summary", Err: errors.New("snapshot missing identifier")}
		}
		if snap.Fingerprint == "" {
			snap.Fingerprint = snap.ComputeFingerprint()
		}
		snapshots = append(snapshots, snap)
	}

	c.markSuccess(filter, snapshots)
	return snapshots, nil
}

// FetchDetail performs an on-demand deep fetch for one identifier. Detail
// calls are interactive, so they fail fast through a circuit breaker instead
// of retrying while the remote is known to be down.
func (c *Client) FetchDetail(ctx context.Context, identifier string) (*models.DetailResponse, error) {
	endpoint := c.cfg.BaseURL + "/api/v1/detail/" + url.PathEscape(identifier)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		var detail models.DetailResponse
		if err := c.getJSON(ctx, "detail", endpoint, &detail); err != nil {
			return nil, err
		}
		return &detail, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, &FetchError{Op: "detail", Transient: true, Err: err}
		}
		return nil, err
	}

	return result.(*models.DetailResponse), nil
}

// Connected reports whether the last remote contact succeeded
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// LastContact returns the time of the last successful remote contact
func (c *Client) LastContact() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastContact, !c.lastContact.IsZero()
}

// ClearCache drops all cached summary responses
func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]cacheEntry)
}

func (c *Client) cachedSummary(filter string) ([]models.DeviceSnapshot, bool) {
	if c.cfg.CacheTTL <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[filter]
	if !ok || time.Since(entry.storedAt) >= c.cfg.CacheTTL {
		return nil, false
	}
	return entry.snapshots, true
}

func (c *Client) markSuccess(filter string, snapshots []models.DeviceSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	c.lastContact = time.Now()
	if c.cfg.CacheTTL > 0 {
		c.cache[filter] = cacheEntry{snapshots: snapshots, storedAt: c.lastContact}
	}
}

func (c *Client) markFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

// getJSON performs one GET and decodes the JSON body into out
func (c *Client) getJSON(ctx context.Context, op, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &FetchError{Op: op, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("endpoint", endpoint).Msg("Remote request failed")
		return &FetchError{Op: op, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return &FetchError{Op: op, StatusCode: resp.StatusCode, Transient: true}
	case resp.StatusCode >= 400:
		return &FetchError{Op: op, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}

	return nil
}
