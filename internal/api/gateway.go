package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/sensor-gateway/gateway-monitor/internal/models"
	"github.com/sensor-gateway/gateway-monitor/internal/scan"
	"github.com/sensor-gateway/gateway-monitor/internal/storage"
)

// GatewayServer serves the device-side API: the summary/detail endpoints the
// coordinator polls, plus scan control and the scan log.
type GatewayServer struct {
	*Server
	store     storage.Store
	invoker   scan.Invoker
	scanBusy  atomic.Bool
	startedAt time.Time
}

// NewGatewayServer creates the gateway-agent REST server
func NewGatewayServer(store storage.Store, invoker scan.Invoker, reg *prometheus.Registry) *GatewayServer {
	g := &GatewayServer{
		store:     store,
		invoker:   invoker,
		startedAt: time.Now(),
	}

	router := newRouter()
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/summary", g.handleSummary)
		r.Get("/detail/{identifier}", g.handleDetail)
		r.Get("/health", g.handleHealth)
		r.Post("/scan", g.handleScan)
		r.Get("/scans", g.handleListScans)
	})

	g.Server = newServer(router, reg)
	return g
}

// handleSummary returns the latest snapshot per device identifier
func (g *GatewayServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("filter")

	snapshots, err := g.store.LatestSnapshots(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load summary")
		respondError(w, http.StatusInternalServerError, "failed to load summary")
		return
	}

	respondJSON(w, http.StatusOK, models.SummaryResponse{
		Devices:    snapshots,
		ServerTime: time.Now().UTC(),
	})
}

// handleDetail returns recent readings for one identifier
func (g *GatewayServer) handleDetail(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")

	minutes := 10
	if raw := r.URL.Query().Get("minutes"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "invalid minutes parameter")
			return
		}
		minutes = parsed
	}

	since := time.Now().Add(-time.Duration(minutes) * time.Minute)
	readings, err := g.store.ReadingsSince(r.Context(), identifier, since)
	if err != nil {
		log.Error().Err(err).Str("identifier", identifier).Msg("Failed to load readings")
		respondError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}
	if len(readings) == 0 {
		// Distinguish unknown identifiers from quiet ones.
		ids, err := g.store.Identifiers(r.Context())
		if err == nil && !contains(ids, identifier) {
			respondError(w, http.StatusNotFound, "unknown identifier")
			return
		}
	}

	respondJSON(w, http.StatusOK, models.DetailResponse{
		Identifier: identifier,
		Readings:   readings,
		ServerTime: time.Now().UTC(),
	})
}

// handleHealth reports gateway liveness
func (g *GatewayServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ids, err := g.store.Identifiers(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"uptimeSeconds": int(time.Since(g.startedAt).Seconds()),
		"identifiers":   len(ids),
		"scanBusy":      g.scanBusy.Load(),
	})
}

// handleScan runs the gateway's local scan. At most one scan runs at a
// time; concurrent requests get 409.
func (g *GatewayServer) handleScan(w http.ResponseWriter, r *http.Request) {
	var req models.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		req.Reason = models.ReasonManual
	}

	if !g.scanBusy.CompareAndSwap(false, true) {
		respondError(w, http.StatusConflict, "scan already in progress")
		return
	}
	defer g.scanBusy.Store(false)

	start := time.Now()
	err := g.invoker.Invoke(r.Context())
	duration := time.Since(start)

	record := models.ScanRecord{
		Status:     models.ScanStatusOK,
		Reason:     req.Reason,
		Identifier: req.Identifier,
		StartedAt:  start,
		Duration:   duration,
	}
	if err != nil {
		record.Status = models.ScanStatusFailed
		record.Error = err.Error()
	}

	if saveErr := g.store.RecordScan(r.Context(), &record); saveErr != nil {
		log.Error().Err(saveErr).Msg("Failed to record scan")
	}

	if err != nil {
		log.Warn().Err(err).Dur("duration", duration).Msg("Gateway scan failed")
		respondJSON(w, http.StatusBadGateway, record)
		return
	}

	log.Info().Dur("duration", duration).Str("reason", string(req.Reason)).Msg("Gateway scan completed")
	respondJSON(w, http.StatusOK, record)
}

// handleListScans returns the recent scan log
func (g *GatewayServer) handleListScans(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = parsed
	}

	records, err := g.store.ListScans(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list scans")
		respondError(w, http.StatusInternalServerError, "failed to list scans")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"scans": records,
		"count": len(records),
	})
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
