package models

import (
	"time"

	"github.com/google/uuid"
)

// SensorReading represents one persisted telemetry sample on the gateway side
type SensorReading struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Identifier string    `json:"identifier" db:"identifier"`
	Channel    string    `json:"channel" db:"channel"`
	Value      float64   `json:"value" db:"value"`
	ReceivedAt time.Time `json:"receivedAt" db:"received_at"`
}

// ScanStatus represents the outcome of a local scan
type ScanStatus string

const (
	ScanStatusOK     ScanStatus = "OK"
	ScanStatusFailed ScanStatus = "FAILED"
)

// ScanRecord represents one completed local scan, kept in the gateway scan
// log so operators can correlate triggers with collected data.
type ScanRecord struct {
	ID         uuid.UUID     `json:"id" db:"id"`
	Status     ScanStatus    `json:"status" db:"status"`
	Reason     TriggerReason `json:"reason" db:"reason"`
	Identifier string        `json:"identifier,omitempty" db:"identifier"`
	StartedAt  time.Time     `json:"startedAt" db:"started_at"`
	Duration   time.Duration `json:"duration" db:"duration"`
	Error      string        `json:"error,omitempty" db:"error"`
}

// ScanRequest represents an inbound request to run a local scan
type ScanRequest struct {
	Reason     TriggerReason `json:"reason"`
	Identifier string        `json:"identifier,omitempty"`
}
