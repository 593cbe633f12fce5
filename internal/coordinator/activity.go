package coordinator

import (
	"math"
	"time"

	"github.com/sensor-gateway/gateway-monitor/internal/models"
)

// activityState is the coordinator's mutable scheduling state. The scheduler
// loop is its only writer; readers go through Health() under the same mutex.
type activityState struct {
	level                models.ActivityLevel
	quietPolls           int
	consecutiveFailures  int
	consecutiveSuccesses int
	lastPoll             time.Time
	interval             time.Duration
}

// recordChanges advances the activity level after a successful poll.
// Any change event jumps straight to HIGH; quiet polls decay the level one
// step at a time, never skipping levels downward.
func (s *activityState) recordChanges(cfg Config, eventCount int) {
	s.consecutiveFailures = 0
	s.consecutiveSuccesses++

	if eventCount > 0 {
		s.level = models.ActivityHigh
		s.quietPolls = 0
		return
	}

	s.quietPolls++
	if s.quietPolls >= cfg.QuietPollsPerDecay && s.level > models.ActivityIdle {
		s.level--
		s.quietPolls = 0
	}
}

// recordFailure notes a failed poll. The activity level is left unchanged;
// only the failure counter (and therefore the effective delay) moves.
func (s *activityState) recordFailure() {
	s.consecutiveSuccesses = 0
	s.consecutiveFailures++
}

// nextDelay computes the delay before the next poll. The result is always
// within [MinScanInterval, MaxScanInterval] regardless of level or failures.
func (s *activityState) nextDelay(cfg Config) time.Duration {
	base := baseInterval(cfg, s.level)

	if s.consecutiveFailures > 0 {
		backoff := math.Pow(cfg.FailureBackoffFactor, float64(s.consecutiveFailures))
		// Compare in float space: the product overflows int64 long before
		// the failure counter stops growing during an outage.
		stretched := float64(base) * backoff
		if stretched >= float64(cfg.MaxScanInterval) {
			return cfg.MaxScanInterval
		}
		base = time.Duration(stretched)
	}

	return clamp(base, cfg.MinScanInterval, cfg.MaxScanInterval)
}

// baseInterval maps an activity level onto the configured interval range
func baseInterval(cfg Config, level models.ActivityLevel) time.Duration {
	if !cfg.AdaptiveEnabled {
		return clamp(cfg.FixedInterval, cfg.MinScanInterval, cfg.MaxScanInterval)
	}

	span := cfg.MaxScanInterval - cfg.MinScanInterval
	switch level {
	case models.ActivityHigh:
		return cfg.MinScanInterval
	case models.ActivityNormal:
		return cfg.MinScanInterval + span/3
	case models.ActivityLow:
		return cfg.MinScanInterval + 2*span/3
	default: // IDLE
		return cfg.MaxScanInterval
	}
}

func clamp(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
