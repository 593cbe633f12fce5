package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sensor-gateway/gateway-monitor/internal/models"
)

// Common errors
var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidData = errors.New("invalid data")
)

// Store defines the gateway-side storage interface
type Store interface {
	// Telemetry
	SaveReading(ctx context.Context, reading *models.SensorReading) error
	ReadingsSince(ctx context.Context, identifier string, since time.Time) ([]models.SensorReading, error)

	// Summary rollup: latest value per identifier/channel
	LatestSnapshots(ctx context.Context, filter string) ([]models.DeviceSnapshot, error)
	Identifiers(ctx context.Context) ([]string, error)

	// Scan log
	RecordScan(ctx context.Context, record *models.ScanRecord) error
	ListScans(ctx context.Context, limit int) ([]models.ScanRecord, error)

	Close() error
}
