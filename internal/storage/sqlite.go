package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sensor-gateway/gateway-monitor/internal/models"
)

// SQLiteStore implements Store backed by SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the gateway database. Use ":memory:"
// for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer; the ingest goroutine and API readers share this handle.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	PRAGMA journal_mode = WAL;

	CREATE TABLE IF NOT EXISTS readings (
		id TEXT PRIMARY KEY,
		identifier TEXT NOT NULL,
		channel TEXT NOT NULL,
		value REAL NOT NULL,
		received_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		reason TEXT NOT NULL,
		identifier TEXT,
		started_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_readings_identifier ON readings(identifier, channel, received_at);
	CREATE INDEX IF NOT EXISTS idx_scans_started ON scans(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveReading persists one telemetry sample
func (s *SQLiteStore) SaveReading(ctx context.Context, reading *models.SensorReading) error {
	if reading.Identifier == "" || reading.Channel == "" {
		return fmt.Errorf("%w: reading needs identifier and channel", ErrInvalidData)
	}
	if reading.ID == uuid.Nil {
		reading.ID = uuid.New()
	}
	if reading.ReceivedAt.IsZero() {
		reading.ReceivedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO readings (id, identifier, channel, value, received_at)
		VALUES (?, ?, ?, ?, ?)`,
		reading.ID.String(), reading.Identifier, reading.Channel, reading.Value, reading.ReceivedAt)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// ReadingsSince returns readings for one identifier newer than since
func (s *SQLiteStore) ReadingsSince(ctx context.Context, identifier string, since time.Time) ([]models.SensorReading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, identifier, channel, value, received_at
		FROM readings
		WHERE identifier = ? AND received_at >= ?
		ORDER BY received_at`,
		identifier, since)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var readings []models.SensorReading
	for rows.Next() {
		var r models.SensorReading
		var id string
		if err := rows.Scan(&id, &r.Identifier, &r.Channel, &r.Value, &r.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		r.ID, _ = uuid.Parse(id)
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// LatestSnapshots assembles the per-identifier summary the coordinator
// polls: the newest value of every channel, grouped by identifier. A
// non-empty filter restricts results to identifiers with that prefix.
func (s *SQLiteStore) LatestSnapshots(ctx context.Context, filter string) ([]models.DeviceSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.identifier, r.channel, r.value, r.received_at
		FROM readings r
		JOIN (
			SELECT identifier, channel, MAX(received_at) AS latest
			FROM readings
			GROUP BY identifier, channel
		) t ON r.identifier = t.identifier AND r.channel = t.channel AND r.received_at = t.latest
		WHERE r.identifier LIKE ? || '%'
		ORDER BY r.identifier, r.channel`,
		filter)
	if err != nil {
		return nil, fmt.Errorf("query latest readings: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*models.DeviceSnapshot)
	var order []string

	for rows.Next() {
		var identifier, channel string
		var value float64
		var receivedAt time.Time
		if err := rows.Scan(&identifier, &channel, &value, &receivedAt); err != nil {
			return nil, fmt.Errorf("scan latest reading: %w", err)
		}

		snap, ok := byID[identifier]
		if !ok {
			snap = &models.DeviceSnapshot{
				Identifier: identifier,
				Channels:   make(map[string]float64),
			}
			byID[identifier] = snap
			order = append(order, identifier)
		}
		snap.Channels[channel] = value
		if receivedAt.After(snap.ServerTime) {
			snap.ServerTime = receivedAt
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	snapshots := make([]models.DeviceSnapshot, 0, len(order))
	for _, id := range order {
		snap := byID[id]
		snap.Fingerprint = snap.ComputeFingerprint()
		snapshots = append(snapshots, *snap)
	}
	return snapshots, nil
}

// Identifiers lists all device identifiers ever seen
func (s *SQLiteStore) Identifiers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT identifier FROM readings ORDER BY identifier`)
	if err != nil {
		return nil, fmt.Errorf("query identifiers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecordScan appends one entry to the scan log
func (s *SQLiteStore) RecordScan(ctx context.Context, record *models.ScanRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scans (id, status, reason, identifier, started_at, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID.String(), string(record.Status), string(record.Reason),
		record.Identifier, record.StartedAt, record.Duration.Milliseconds(), record.Error)
	if err != nil {
		return fmt.Errorf("insert scan record: %w", err)
	}
	return nil
}

// ListScans returns the most recent scan log entries
func (s *SQLiteStore) ListScans(ctx context.Context, limit int) ([]models.ScanRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, reason, identifier, started_at, duration_ms, error
		FROM scans
		ORDER BY started_at DESC
		LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	var records []models.ScanRecord
	for rows.Next() {
		var rec models.ScanRecord
		var id, status, reason string
		var durationMs int64
		var errText sql.NullString
		if err := rows.Scan(&id, &status, &reason, &rec.Identifier, &rec.StartedAt, &durationMs, &errText); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.ID, _ = uuid.Parse(id)
		rec.Status = models.ScanStatus(status)
		rec.Reason = models.TriggerReason(reason)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		if errText.Valid {
			rec.Error = errText.String
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
