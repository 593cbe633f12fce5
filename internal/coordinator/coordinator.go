// Package coordinator implements the adaptive remote-triggered scan
// coordinator: it polls a remote gateway's summary endpoint, classifies
// changes, and decides when a local hardware scan is worth running.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sensor-gateway/gateway-monitor/internal/detector"
	"github.com/sensor-gateway/gateway-monitor/internal/models"
	"github.com/sensor-gateway/gateway-monitor/internal/scan"
)

// SnapshotFetcher is the remote client surface the coordinator depends on
type SnapshotFetcher interface {
	FetchSummary(ctx context.Context, filter string) ([]models.DeviceSnapshot, error)
	Connected() bool
	LastContact() (time.Time, bool)
}

// EventSink receives coordinator events. Implementations must not block.
type EventSink interface {
	PublishChange(models.ChangeEvent)
	PublishTrigger(models.TriggerDecision)
	PublishScan(models.ScanRecord)
}

// Coordinator owns the polling loop, the activity state machine, the trigger
// gate and the in-flight scan flag. Create one instance per remote host; no
// package-level state is kept.
type Coordinator struct {
	fetcher SnapshotFetcher
	invoker scan.Invoker
	sink    EventSink
	metrics *Metrics

	mu      sync.Mutex
	cfg     Config
	running bool
	stopCh  chan struct{}
	loopWG  sync.WaitGroup
	scanWG  sync.WaitGroup

	state        activityState
	previous     map[string]models.DeviceSnapshot
	observed     map[string]struct{}
	scanInFlight bool
	lastFired    time.Time
	lastTrigger  time.Time
	lastScan     time.Time
	pending      *pendingTrigger
	connected    bool
	stats        models.CoordinatorStats
}

// Option configures optional collaborators
type Option func(*Coordinator)

// WithEventSink attaches an event sink
func WithEventSink(sink EventSink) Option {
	return func(c *Coordinator) { c.sink = sink }
}

// WithMetrics attaches Prometheus metrics
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New creates a coordinator. The invoker is opaque: the coordinator records
// scan success or failure but never interprets the error.
func New(cfg Config, fetcher SnapshotFetcher, invoker scan.Invoker, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		fetcher:  fetcher,
		invoker:  invoker,
		cfg:      cfg,
		previous: make(map[string]models.DeviceSnapshot),
		observed: make(map[string]struct{}),
		state:    activityState{level: models.ActivityNormal},
	}
	c.state.interval = cfg.MinScanInterval

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start launches the polling loop. Idempotent.
func (c *Coordinator) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.mu.Unlock()

	c.loopWG.Add(1)
	go c.run()

	log.Info().
		Dur("minScanInterval", c.CurrentConfig().MinScanInterval).
		Dur("maxScanInterval", c.CurrentConfig().MaxScanInterval).
		Msg("Scan coordinator started")
}

// Stop interrupts the inter-poll sleep and waits for the loop and any
// in-flight scan to wind down. The in-flight flag is guaranteed clear when
// Stop returns. Idempotent.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopCh)
	c.mu.Unlock()

	c.loopWG.Wait()
	c.scanWG.Wait()

	log.Info().Msg("Scan coordinator stopped")
}

// run is the scheduler loop: fetch, classify, gate, sleep, repeat
func (c *Coordinator) run() {
	defer c.loopWG.Done()

	for {
		cfg := c.CurrentConfig()

		c.replayPending(cfg)
		c.pollOnce(cfg)

		delay := c.computeSleep(cfg)
		select {
		case <-c.stopCh:
			return
		case <-time.After(delay):
		}
	}
}

// pollOnce performs one fetch-classify-trigger cycle
func (c *Coordinator) pollOnce(cfg Config) {
	snapshots, err := c.fetcher.FetchSummary(context.Background(), cfg.SummaryFilter)
	now := time.Now()

	if err != nil {
		c.mu.Lock()
		c.stats.TotalPolls++
		c.stats.FailedPolls++
		c.state.lastPoll = now
		c.state.recordFailure()
		failures := c.state.consecutiveFailures
		if failures >= cfg.ConsecutiveFailureThreshold {
			c.connected = false
		}
		c.mu.Unlock()

		c.metrics.observePoll(false, 0)
		log.Warn().Err(err).Int("consecutiveFailures", failures).Msg("Remote poll failed")
		return
	}

	events := detector.Classify(c.snapshotIndex(), snapshots)

	c.mu.Lock()
	c.stats.TotalPolls++
	c.stats.SuccessfulPolls++
	c.stats.ChangeEvents += uint64(len(events))
	c.state.lastPoll = now
	c.state.recordChanges(cfg, len(events))
	c.connected = true
	c.previous = detector.Index(snapshots)
	for id := range c.previous {
		c.observed[id] = struct{}{}
	}
	c.mu.Unlock()

	c.metrics.observePoll(true, len(events))

	if len(events) > 0 {
		log.Info().Int("events", len(events)).Msg("Remote changes detected")
	}

	// Events are evaluated in the order the remote returned them, and all
	// decisions for this batch land before the next fetch begins.
	for _, ev := range events {
		if c.sink != nil {
			c.sink.PublishChange(ev)
		}
		c.handleEvent(cfg, ev)
	}
}

// handleEvent runs one change event through the trigger gate
func (c *Coordinator) handleEvent(cfg Config, ev models.ChangeEvent) {
	now := time.Now()

	c.mu.Lock()
	decision := c.evaluateGate(cfg, ev.Identifier, models.ReasonChange, now)
	c.applyDecision(cfg, decision)
	c.mu.Unlock()

	c.publishDecision(decision)
}

// applyDecision books a gate decision into state. Callers must hold c.mu.
func (c *Coordinator) applyDecision(cfg Config, decision models.TriggerDecision) {
	switch decision.Decision {
	case models.DecisionFire:
		c.beginScanLocked(cfg, decision)
	case models.DecisionDefer:
		c.stats.TriggersDeferred++
		c.pending = &pendingTrigger{
			identifier: decision.Identifier,
			reason:     decision.Reason,
			deferredAt: decision.At,
		}
	case models.DecisionSuppress:
		c.stats.TriggersSuppressed++
	}
}

// beginScanLocked sets the in-flight flag and launches the scan goroutine.
// Callers must hold c.mu.
func (c *Coordinator) beginScanLocked(cfg Config, decision models.TriggerDecision) {
	c.scanInFlight = true
	c.lastFired = decision.At
	c.lastTrigger = decision.At
	c.stats.TriggersFired++

	c.scanWG.Add(1)
	go c.runScan(cfg, decision)
}

// runScan invokes the local scan under a watchdog timeout. The in-flight
// flag is cleared on every path, including a hung invoker: the watchdog
// abandons the call and moves on rather than holding the flag forever.
func (c *Coordinator) runScan(cfg Config, decision models.TriggerDecision) {
	defer c.scanWG.Done()

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ScanTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.invoker.Invoke(ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("scan watchdog expired after %s: %w", cfg.ScanTimeout, ctx.Err())
	}

	duration := time.Since(start)

	c.mu.Lock()
	c.scanInFlight = false
	c.lastScan = time.Now()
	if err != nil {
		c.stats.ScansFailed++
	} else {
		c.stats.ScansSucceeded++
	}
	c.mu.Unlock()

	c.metrics.observeScan(err)

	record := models.ScanRecord{
		ID:         uuid.New(),
		Status:     models.ScanStatusOK,
		Reason:     decision.Reason,
		Identifier: decision.Identifier,
		StartedAt:  start,
		Duration:   duration,
	}
	if err != nil {
		record.Status = models.ScanStatusFailed
		record.Error = err.Error()
		log.Warn().Err(err).Dur("duration", duration).Msg("Local scan failed")
	} else {
		log.Info().Dur("duration", duration).Str("reason", string(decision.Reason)).Msg("Local scan completed")
	}

	if c.sink != nil {
		c.sink.PublishScan(record)
	}
}

// replayPending re-evaluates a deferred trigger once its debounce window has
// elapsed. Deferred triggers are never dropped silently: if the gate defers
// or suppresses again, the pending slot is kept for the next pass.
func (c *Coordinator) replayPending(cfg Config) {
	now := time.Now()

	c.mu.Lock()
	p := c.pending
	if p == nil || (!c.lastFired.IsZero() && now.Sub(c.lastFired) < cfg.MinScanInterval) {
		c.mu.Unlock()
		return
	}

	c.pending = nil
	decision := c.evaluateGate(cfg, p.identifier, models.ReasonDeferredReplay, now)
	c.applyDecision(cfg, decision)
	if decision.Decision != models.DecisionFire {
		// The slot survives a suppressed replay so the trigger is tried
		// again on the next pass instead of being dropped.
		c.pending = p
	}
	c.mu.Unlock()

	c.publishDecision(decision)
	if decision.Decision == models.DecisionFire {
		log.Debug().Str("identifier", p.identifier).Msg("Deferred trigger fired")
	}
}

// computeSleep returns the next inter-poll delay. When a deferred trigger is
// pending, the sleep is shortened so the replay happens as soon as the
// debounce window closes.
func (c *Coordinator) computeSleep(cfg Config) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	delay := c.state.nextDelay(cfg)

	if c.pending != nil && !c.lastFired.IsZero() {
		until := cfg.MinScanInterval - time.Since(c.lastFired)
		floor := cfg.CacheTTL
		if floor < time.Second {
			floor = time.Second
		}
		if until < floor {
			until = floor
		}
		if until < delay {
			delay = until
		}
	}

	c.state.interval = delay
	c.metrics.observeState(c.state.level, delay.Seconds(), c.connected)
	return delay
}

// TriggerNow requests an immediate scan. Manual triggers bypass the priority
// list and the debounce window but still honor the in-flight scan flag.
func (c *Coordinator) TriggerNow(reason string) models.TriggerDecision {
	now := time.Now()

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return models.TriggerDecision{
			Decision: models.DecisionSuppress,
			Reason:   models.ReasonNotRunning,
			At:       now,
		}
	}

	cfg := c.cfg
	decision := c.evaluateGate(cfg, "", models.ReasonManual, now)
	if decision.Decision == models.DecisionSuppress {
		c.stats.TriggersSuppressed++
	} else {
		c.beginScanLocked(cfg, decision)
	}
	c.mu.Unlock()

	log.Info().
		Str("decision", string(decision.Decision)).
		Str("requestReason", reason).
		Msg("Manual trigger evaluated")

	c.publishDecision(decision)
	return decision
}

// UpdateConfig applies a partial configuration update atomically. Invalid
// updates are rejected and the prior configuration stays active.
func (c *Coordinator) UpdateConfig(o Overrides) (Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := o.apply(c.cfg)
	if err := next.Validate(); err != nil {
		return c.cfg, err
	}

	c.cfg = next
	log.Info().
		Dur("minScanInterval", next.MinScanInterval).
		Dur("maxScanInterval", next.MaxScanInterval).
		Bool("adaptive", next.AdaptiveEnabled).
		Msg("Coordinator config updated")
	return next, nil
}

// CurrentConfig returns the active configuration
func (c *Coordinator) CurrentConfig() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Health assembles a point-in-time health snapshot. Safe to call
// concurrently with the scheduler loop; the critical section is bounded.
func (c *Coordinator) Health() models.HealthSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := models.HealthSnapshot{
		Running:             c.running,
		Connected:           c.connected,
		ActivityLevel:       c.state.level,
		PollInterval:        c.state.interval,
		ConsecutiveFailures: c.state.consecutiveFailures,
		ScanInProgress:      c.scanInFlight,
		Stats:               c.stats,
	}
	snapshot.Stats.IdentifiersObserved = len(c.observed)

	snapshot.LastPollAt = timePtr(c.state.lastPoll)
	snapshot.LastTriggerAt = timePtr(c.lastTrigger)
	snapshot.LastScanAt = timePtr(c.lastScan)
	if at, ok := c.fetcher.LastContact(); ok {
		snapshot.LastContactAt = &at
	}

	return snapshot
}

// snapshotIndex copies the previous-snapshot map for lock-free classification
func (c *Coordinator) snapshotIndex() map[string]models.DeviceSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := make(map[string]models.DeviceSnapshot, len(c.previous))
	for k, v := range c.previous {
		m[k] = v
	}
	return m
}

func (c *Coordinator) publishDecision(decision models.TriggerDecision) {
	c.metrics.observeDecision(decision.Decision)
	if c.sink != nil {
		c.sink.PublishTrigger(decision)
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
