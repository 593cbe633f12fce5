package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sensor-gateway/gateway-monitor/internal/config"
	"github.com/sensor-gateway/gateway-monitor/internal/coordinator"
	"github.com/sensor-gateway/gateway-monitor/internal/models"
)

// CoordinatorServer exposes the coordinator's control surface: health,
// manual trigger, and live configuration.
type CoordinatorServer struct {
	*Server
	coord *coordinator.Coordinator
}

// NewCoordinatorServer creates the scan-coordinator control REST server
func NewCoordinatorServer(coord *coordinator.Coordinator, reg *prometheus.Registry) *CoordinatorServer {
	s := &CoordinatorServer{coord: coord}

	router := newRouter()
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/trigger", s.handleTrigger)
		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handleUpdateConfig)
	})

	s.Server = newServer(router, reg)
	return s
}

// handleHealth returns the coordinator health snapshot
func (s *CoordinatorServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.coord.Health())
}

// handleTrigger requests an immediate scan and returns the gate decision
func (s *CoordinatorServer) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		// An empty body is fine; reason is informational only.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "api request"
	}

	decision := s.coord.TriggerNow(req.Reason)

	status := http.StatusOK
	if decision.Decision != models.DecisionFire {
		status = http.StatusConflict
	}
	respondJSON(w, status, decision)
}

// configPayload is the wire representation of coordinator configuration.
// Intervals are expressed in seconds.
type configPayload struct {
	MinScanIntervalSeconds *int      `json:"minScanIntervalSeconds,omitempty"`
	MaxScanIntervalSeconds *int      `json:"maxScanIntervalSeconds,omitempty"`
	FixedIntervalSeconds   *int      `json:"fixedIntervalSeconds,omitempty"`
	AdaptiveEnabled        *bool     `json:"adaptiveEnabled,omitempty"`
	QuietPollsPerDecay     *int      `json:"quietPollsPerDecay,omitempty"`
	FailureBackoffFactor   *float64  `json:"failureBackoffFactor,omitempty"`
	PriorityIdentifiers    *[]string `json:"priorityIdentifiers,omitempty"`
}

// handleGetConfig returns the active coordinator configuration
func (s *CoordinatorServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.coord.CurrentConfig()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"minScanIntervalSeconds": int(cfg.MinScanInterval.Seconds()),
		"maxScanIntervalSeconds": int(cfg.MaxScanInterval.Seconds()),
		"fixedIntervalSeconds":   int(cfg.FixedInterval.Seconds()),
		"adaptiveEnabled":        cfg.AdaptiveEnabled,
		"quietPollsPerDecay":     cfg.QuietPollsPerDecay,
		"failureBackoffFactor":   cfg.FailureBackoffFactor,
		"priorityIdentifiers":    cfg.PriorityIdentifiers,
	})
}

// handleUpdateConfig applies a partial configuration update
func (s *CoordinatorServer) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var payload configPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	overrides := coordinator.Overrides{
		AdaptiveEnabled:      payload.AdaptiveEnabled,
		QuietPollsPerDecay:   payload.QuietPollsPerDecay,
		FailureBackoffFactor: payload.FailureBackoffFactor,
		PriorityIdentifiers:  payload.PriorityIdentifiers,
	}
	if payload.MinScanIntervalSeconds != nil {
		d := time.Duration(*payload.MinScanIntervalSeconds) * time.Second
		overrides.MinScanInterval = &d
	}
	if payload.MaxScanIntervalSeconds != nil {
		d := time.Duration(*payload.MaxScanIntervalSeconds) * time.Second
		overrides.MaxScanInterval = &d
	}
	if payload.FixedIntervalSeconds != nil {
		d := time.Duration(*payload.FixedIntervalSeconds) * time.Second
		overrides.FixedInterval = &d
	}

	updated, err := s.coord.UpdateConfig(overrides)
	if err != nil {
		if errors.Is(err, config.ErrInvalidConfig) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"minScanIntervalSeconds": int(updated.MinScanInterval.Seconds()),
		"maxScanIntervalSeconds": int(updated.MaxScanInterval.Seconds()),
		"fixedIntervalSeconds":   int(updated.FixedInterval.Seconds()),
		"adaptiveEnabled":        updated.AdaptiveEnabled,
		"quietPollsPerDecay":     updated.QuietPollsPerDecay,
		"failureBackoffFactor":   updated.FailureBackoffFactor,
		"priorityIdentifiers":    updated.PriorityIdentifiers,
	})
}
