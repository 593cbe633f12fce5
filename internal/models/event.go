package models

import (
	"time"

	"github.com/google/uuid"
)

// ChangeKind represents the classification of a snapshot change
type ChangeKind string

const (
	ChangeNew     ChangeKind = "NEW"
	ChangeChanged ChangeKind = "CHANGED"
)

// ChangeEvent represents one detected difference between the previous and
// current remote snapshots. Identifiers that disappear from the remote
// summary are never reported: the remote view may be partial.
type ChangeEvent struct {
	ID         uuid.UUID      `json:"id"`
	Kind       ChangeKind     `json:"kind"`
	Identifier string         `json:"identifier"`
	Snapshot   DeviceSnapshot `json:"snapshot"`
	At         time.Time      `json:"at"`
}

// Decision represents the trigger gate's verdict for one change event
type Decision string

const (
	DecisionFire     Decision = "FIRE"
	DecisionDefer    Decision = "DEFER"
	DecisionSuppress Decision = "SUPPRESS"
)

// TriggerReason represents why a decision was produced
type TriggerReason string

const (
	ReasonScanInProgress TriggerReason = "scan_in_progress"
	ReasonPriority       TriggerReason = "priority_identifier"
	ReasonDebounce       TriggerReason = "debounce"
	ReasonChange         TriggerReason = "change_detected"
	ReasonManual         TriggerReason = "manual"
	ReasonDeferredReplay TriggerReason = "deferred_replay"
	ReasonNotRunning     TriggerReason = "coordinator_stopped"
)

// TriggerDecision is the ephemeral result of one trigger gate evaluation.
// It is consumed immediately and never persisted.
type TriggerDecision struct {
	Decision   Decision      `json:"decision"`
	Reason     TriggerReason `json:"reason"`
	Identifier string        `json:"identifier,omitempty"`
	At         time.Time     `json:"at"`
}
