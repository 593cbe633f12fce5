package scan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sensor-gateway/gateway-monitor/internal/models"
)

func TestCommandInvoker(t *testing.T) {
	t.Run("empty command fails", func(t *testing.T) {
		inv := &CommandInvoker{}
		if err := inv.Invoke(context.Background()); err == nil {
			t.Fatal("expected error for empty command")
		}
	})

	t.Run("successful command", func(t *testing.T) {
		inv := &CommandInvoker{Command: "true"}
		if err := inv.Invoke(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("failing command surfaces the error", func(t *testing.T) {
		inv := &CommandInvoker{Command: "false"}
		if err := inv.Invoke(context.Background()); err == nil {
			t.Fatal("expected error for failing command")
		}
	})
}

func TestHTTPInvoker(t *testing.T) {
	t.Run("posts a scan request", func(t *testing.T) {
		var got models.ScanRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("unexpected method: %s", r.Method)
			}
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("decode request: %v", err)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		inv := NewHTTPInvoker(srv.URL, time.Second)
		if err := inv.Invoke(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Reason != models.ReasonChange {
			t.Errorf("unexpected reason: %s", got.Reason)
		}
	})

	t.Run("non-2xx is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}))
		defer srv.Close()

		inv := NewHTTPInvoker(srv.URL, time.Second)
		if err := inv.Invoke(context.Background()); err == nil {
			t.Fatal("expected error for 409 response")
		}
	})
}
