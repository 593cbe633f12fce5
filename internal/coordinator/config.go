package coordinator

import (
	"fmt"
	"time"

	"github.com/sensor-gateway/gateway-monitor/internal/config"
)

// Config holds the coordinator's runtime settings. The active Config is
// swapped atomically by UpdateConfig; each loop iteration captures the value
// current at its start.
type Config struct {
	MinScanInterval             time.Duration
	MaxScanInterval             time.Duration
	AdaptiveEnabled             bool
	FixedInterval               time.Duration
	QuietPollsPerDecay          int
	FailureBackoffFactor        float64
	ConsecutiveFailureThreshold int
	PriorityIdentifiers         []string
	SummaryFilter               string
	ScanTimeout                 time.Duration

	// CacheTTL mirrors the remote client's summary cache TTL. It floors the
	// shortened pre-replay sleep: polling faster than the cache expires only
	// re-reads cached data.
	CacheTTL time.Duration
}

// FromFileConfig builds a runtime Config from the loaded file configuration
func FromFileConfig(cc config.CoordinatorConfig, sc config.ScanConfig, rc config.RemoteConfig) Config {
	return Config{
		MinScanInterval:             cc.MinScanInterval,
		MaxScanInterval:             cc.MaxScanInterval,
		AdaptiveEnabled:             cc.AdaptiveEnabled,
		FixedInterval:               cc.FixedInterval,
		QuietPollsPerDecay:          cc.QuietPollsPerDecay,
		FailureBackoffFactor:        cc.FailureBackoffFactor,
		ConsecutiveFailureThreshold: cc.ConsecutiveFailureThreshold,
		PriorityIdentifiers:         cc.PriorityIdentifiers,
		SummaryFilter:               cc.SummaryFilter,
		ScanTimeout:                 sc.Timeout,
		CacheTTL:                    rc.CacheTTL,
	}
}

// Validate checks configuration invariants. Invalid updates are rejected and
// the prior config stays active.
func (c Config) Validate() error {
	if c.MinScanInterval <= 0 {
		return fmt.Errorf("%w: min scan interval must be positive, got %s",
			config.ErrInvalidConfig, c.MinScanInterval)
	}
	if c.MinScanInterval > c.MaxScanInterval {
		return fmt.Errorf("%w: min scan interval %s exceeds max %s",
			config.ErrInvalidConfig, c.MinScanInterval, c.MaxScanInterval)
	}
	if c.FailureBackoffFactor < 1 {
		return fmt.Errorf("%w: failure backoff factor must be >= 1, got %g",
			config.ErrInvalidConfig, c.FailureBackoffFactor)
	}
	if c.QuietPollsPerDecay < 1 {
		return fmt.Errorf("%w: quiet polls per decay must be >= 1, got %d",
			config.ErrInvalidConfig, c.QuietPollsPerDecay)
	}
	if c.ConsecutiveFailureThreshold < 1 {
		return fmt.Errorf("%w: consecutive failure threshold must be >= 1, got %d",
			config.ErrInvalidConfig, c.ConsecutiveFailureThreshold)
	}
	return nil
}

// isPriority reports whether identifier is on the priority allow-list
func (c Config) isPriority(identifier string) bool {
	for _, id := range c.PriorityIdentifiers {
		if id == identifier {
			return true
		}
	}
	return false
}

// Overrides represents a partial configuration update. Nil fields keep the
// current value.
type Overrides struct {
	MinScanInterval      *time.Duration
	MaxScanInterval      *time.Duration
	AdaptiveEnabled      *bool
	FixedInterval        *time.Duration
	QuietPollsPerDecay   *int
	FailureBackoffFactor *float64
	PriorityIdentifiers  *[]string
}

// apply returns a copy of base with the overrides applied
func (o Overrides) apply(base Config) Config {
	next := base
	if o.MinScanInterval != nil {
		next.MinScanInterval = *o.MinScanInterval
	}
	if o.MaxScanInterval != nil {
		next.MaxScanInterval = *o.MaxScanInterval
	}
	if o.AdaptiveEnabled != nil {
		next.AdaptiveEnabled = *o.AdaptiveEnabled
	}
	if o.FixedInterval != nil {
		next.FixedInterval = *o.FixedInterval
	}
	if o.QuietPollsPerDecay != nil {
		next.QuietPollsPerDecay = *o.QuietPollsPerDecay
	}
	if o.FailureBackoffFactor != nil {
		next.FailureBackoffFactor = *o.FailureBackoffFactor
	}
	if o.PriorityIdentifiers != nil {
		ids := make([]string, len(*o.PriorityIdentifiers))
		copy(ids, *o.PriorityIdentifiers)
		next.PriorityIdentifiers = ids
	}
	return next
}
