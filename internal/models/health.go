package models

import "time"

// CoordinatorStats holds cumulative counters maintained by the coordinator.
// All fields are monotonic for the lifetime of the process.
type CoordinatorStats struct {
	TotalPolls          uint64 `json:"totalPolls"`
	SuccessfulPolls     uint64 `json:"successfulPolls"`
	FailedPolls         uint64 `json:"failedPolls"`
	ChangeEvents        uint64 `json:"changeEvents"`
	TriggersFired       uint64 `json:"triggersFired"`
	TriggersDeferred    uint64 `json:"triggersDeferred"`
	TriggersSuppressed  uint64 `json:"triggersSuppressed"`
	ScansSucceeded      uint64 `json:"scansSucceeded"`
	ScansFailed         uint64 `json:"scansFailed"`
	IdentifiersObserved int    `json:"identifiersObserved"`
}

// HealthSnapshot is a point-in-time read-only view of coordinator health.
// It is recomputed on every request and never cached.
type HealthSnapshot struct {
	Running             bool             `json:"running"`
	Connected           bool             `json:"connected"`
	ActivityLevel       ActivityLevel    `json:"activityLevel"`
	PollInterval        time.Duration    `json:"pollInterval"`
	ConsecutiveFailures int              `json:"consecutiveFailures"`
	ScanInProgress      bool             `json:"scanInProgress"`
	LastPollAt          *time.Time       `json:"lastPollAt,omitempty"`
	LastContactAt       *time.Time       `json:"lastContactAt,omitempty"`
	LastTriggerAt       *time.Time       `json:"lastTriggerAt,omitempty"`
	LastScanAt          *time.Time       `json:"lastScanAt,omitempty"`
	Stats               CoordinatorStats `json:"stats"`
}
