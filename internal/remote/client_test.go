package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sensor-gateway/gateway-monitor/internal/models"
)

func summaryHandler(t *testing.T, devices []models.DeviceSnapshot) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.SummaryResponse{
			Devices:    devices,
			ServerTime: time.Now().UTC(),
		})
	}
}

func testClient(baseURL string, cacheTTL time.Duration) *Client {
	return NewClient(Config{
		BaseURL:        baseURL,
		RequestTimeout: 2 * time.Second,
		RetryCount:     3,
		RetryDelay:     10 * time.Millisecond,
		CacheTTL:       cacheTTL,
	})
}

func TestFetchSummary(t *testing.T) {
	t.Run("returns snapshots and fills missing fingerprints", func(t *testing.T) {
		devices := []models.DeviceSnapshot{{
			Identifier: "gw-1",
			Channels:   map[string]float64{"temp": 21.5},
		}}
		srv := httptest.NewServer(summaryHandler(t, devices))
		defer srv.Close()

		c := testClient(srv.URL, 0)
		got, err := c.FetchSummary(context.Background(), "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 snapshot, got %d", len(got))
		}
		if got[0].Fingerprint == "" {
			t.Error("fingerprint not filled for snapshot without one")
		}
		if !c.Connected() {
			t.Error("expected connected after successful fetch")
		}
	})

	t.Run("retries transient 5xx and succeeds", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			summaryHandler(t, []models.DeviceSnapshot{{Identifier: "gw-1", Fingerprint: "aa"}})(w, r)
		}))
		defer srv.Close()

		c := testClient(srv.URL, 0)
		got, err := c.FetchSummary(context.Background(), "")
		if err != nil {
			t.Fatalf("unexpected error after retries: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 snapshot, got %d", len(got))
		}
		if n := calls.Load(); n != 3 {
			t.Errorf("expected 3 attempts, got %d", n)
		}
	})

	t.Run("gives up after exhausting retries", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		c := testClient(srv.URL, 0)
		_, err := c.FetchSummary(context.Background(), "")
		if err == nil {
			t.Fatal("expected error")
		}
		if !IsTransient(err) {
			t.Errorf("expected transient error, got %v", err)
		}
		if n := calls.Load(); n != 3 {
			t.Errorf("expected 3 attempts, got %d", n)
		}
		if c.Connected() {
			t.Error("expected disconnected after failed fetch")
		}
	})

	t.Run("4xx is permanent and not retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		c := testClient(srv.URL, 0)
		_, err := c.FetchSummary(context.Background(), "")
		if err == nil {
			t.Fatal("expected error")
		}
		if IsTransient(err) {
			t.Errorf("expected permanent error, got transient: %v", err)
		}
		if n := calls.Load(); n != 1 {
			t.Errorf("expected 1 attempt, got %d", n)
		}
	})

	t.Run("snapshot without identifier is rejected", func(t *testing.T) {
		srv := httptest.NewServer(summaryHandler(t, []models.DeviceSnapshot{{Fingerprint: "aa"}}))
		defer srv.Close()

		c := testClient(srv.URL, 0)
		if _, err := c.FetchSummary(context.Background(), ""); err == nil {
			t.Fatal("expected error for snapshot missing identifier")
		}
	})
}

func TestSummaryCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		summaryHandler(t, []models.DeviceSnapshot{{Identifier: "gw-1", Fingerprint: "aa"}})(w, r)
	}))
	defer srv.Close()

	c := testClient(srv.URL, time.Minute)

	for i := 0; i < 5; i++ {
		if _, err := c.FetchSummary(context.Background(), ""); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 round trip through cache, got %d", n)
	}

	// A different filter is a separate cache entry.
	if _, err := c.FetchSummary(context.Background(), "gw"); err != nil {
		t.Fatalf("filtered fetch: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected 2 round trips, got %d", n)
	}

	c.ClearCache()
	if _, err := c.FetchSummary(context.Background(), ""); err != nil {
		t.Fatalf("fetch after clear: %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("expected 3 round trips after cache clear, got %d", n)
	}
}

func TestFetchDetail(t *testing.T) {
	t.Run("returns readings for an identifier", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/v1/detail/gw-1" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			json.NewEncoder(w).Encode(models.DetailResponse{Identifier: "gw-1"})
		}))
		defer srv.Close()

		c := testClient(srv.URL, 0)
		detail, err := c.FetchDetail(context.Background(), "gw-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if detail.Identifier != "gw-1" {
			t.Errorf("unexpected identifier: %s", detail.Identifier)
		}
	})

	t.Run("breaker opens after repeated failures", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		c := testClient(srv.URL, 0)
		for i := 0; i < 5; i++ {
			if _, err := c.FetchDetail(context.Background(), "gw-1"); err == nil {
				t.Fatalf("attempt %d: expected error", i)
			}
		}

		_, err := c.FetchDetail(context.Background(), "gw-1")
		if err == nil {
			t.Fatal("expected error from open breaker")
		}
		if !IsTransient(err) {
			t.Errorf("open breaker should surface as transient, got %v", err)
		}
	})
}
