package coordinator

import (
	"time"

	"github.com/sensor-gateway/gateway-monitor/internal/models"
)

// pendingTrigger remembers one deferred trigger so a debounced change is
// re-evaluated once the interval elapses instead of being dropped. A single
// slot is enough: a burst of deferrals collapses to the latest one.
type pendingTrigger struct {
	identifier string
	reason     models.TriggerReason
	deferredAt time.Time
}

// evaluateGate applies the trigger rules in order. Callers must hold c.mu.
//
//  1. A scan already in flight suppresses everything, manual or not.
//  2. Priority identifiers fire unconditionally.
//  3. Within the debounce window, non-priority triggers defer.
//  4. Otherwise fire.
//
// Manual triggers skip rules 2-3 but never rule 1.
func (c *Coordinator) evaluateGate(cfg Config, identifier string, reason models.TriggerReason, now time.Time) models.TriggerDecision {
	decision := models.TriggerDecision{Identifier: identifier, At: now}

	if c.scanInFlight {
		decision.Decision = models.DecisionSuppress
		decision.Reason = models.ReasonScanInProgress
		return decision
	}

	if reason == models.ReasonManual {
		decision.Decision = models.DecisionFire
		decision.Reason = models.ReasonManual
		return decision
	}

	if cfg.isPriority(identifier) {
		decision.Decision = models.DecisionFire
		decision.Reason = models.ReasonPriority
		return decision
	}

	if !c.lastFired.IsZero() && now.Sub(c.lastFired) < cfg.MinScanInterval {
		decision.Decision = models.DecisionDefer
		decision.Reason = models.ReasonDebounce
		return decision
	}

	decision.Decision = models.DecisionFire
	decision.Reason = reason
	return decision
}
