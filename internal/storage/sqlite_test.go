package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sensor-gateway/gateway-monitor/internal/models"
)

// newTestStore creates an in-memory store for testing
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func saveReading(t *testing.T, store *SQLiteStore, identifier, channel string, value float64, at time.Time) {
	t.Helper()
	err := store.SaveReading(context.Background(), &models.SensorReading{
		Identifier: identifier,
		Channel:    channel,
		Value:      value,
		ReceivedAt: at,
	})
	if err != nil {
		t.Fatalf("failed to save reading: %v", err)
	}
}

func TestSaveAndQueryReadings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	saveReading(t, store, "gw-1", "temp", 21.5, now.Add(-2*time.Minute))
	saveReading(t, store, "gw-1", "temp", 22.0, now)
	saveReading(t, store, "gw-2", "humidity", 40, now)

	t.Run("rejects reading without identifier", func(t *testing.T) {
		err := store.SaveReading(ctx, &models.SensorReading{Channel: "temp"})
		if !errors.Is(err, ErrInvalidData) {
			t.Errorf("expected ErrInvalidData, got %v", err)
		}
	})

	t.Run("returns readings newer than since in order", func(t *testing.T) {
		readings, err := store.ReadingsSince(ctx, "gw-1", now.Add(-time.Hour))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(readings) != 2 {
			t.Fatalf("expected 2 readings, got %d", len(readings))
		}
		if readings[0].Value != 21.5 || readings[1].Value != 22.0 {
			t.Errorf("readings out of order: %v, %v", readings[0].Value, readings[1].Value)
		}
	})

	t.Run("since excludes older readings", func(t *testing.T) {
		readings, err := store.ReadingsSince(ctx, "gw-1", now.Add(-time.Minute))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(readings) != 1 {
			t.Fatalf("expected 1 reading, got %d", len(readings))
		}
	})

	t.Run("lists distinct identifiers", func(t *testing.T) {
		ids, err := store.Identifiers(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(ids) != 2 || ids[0] != "gw-1" || ids[1] != "gw-2" {
			t.Errorf("unexpected identifiers: %v", ids)
		}
	})
}

func TestLatestSnapshots(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	saveReading(t, store, "gw-1", "temp", 21.5, now.Add(-time.Minute))
	saveReading(t, store, "gw-1", "temp", 22.0, now)
	saveReading(t, store, "gw-1", "humidity", 40, now)
	saveReading(t, store, "node-3", "temp", 18.0, now)

	t.Run("keeps only the newest value per channel", func(t *testing.T) {
		snapshots, err := store.LatestSnapshots(ctx, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(snapshots) != 2 {
			t.Fatalf("expected 2 snapshots, got %d", len(snapshots))
		}

		gw := snapshots[0]
		if gw.Identifier != "gw-1" {
			t.Fatalf("unexpected first identifier: %s", gw.Identifier)
		}
		if gw.Channels["temp"] != 22.0 {
			t.Errorf("expected newest temp 22.0, got %g", gw.Channels["temp"])
		}
		if gw.Channels["humidity"] != 40 {
			t.Errorf("expected humidity 40, got %g", gw.Channels["humidity"])
		}
		if gw.Fingerprint == "" {
			t.Error("snapshot fingerprint not computed")
		}
	})

	t.Run("filter restricts by identifier prefix", func(t *testing.T) {
		snapshots, err := store.LatestSnapshots(ctx, "gw")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(snapshots) != 1 || snapshots[0].Identifier != "gw-1" {
			t.Errorf("unexpected filtered snapshots: %+v", snapshots)
		}
	})

	t.Run("fingerprint tracks the newest values", func(t *testing.T) {
		before, err := store.LatestSnapshots(ctx, "gw")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		saveReading(t, store, "gw-1", "temp", 25.0, now.Add(time.Minute))

		after, err := store.LatestSnapshots(ctx, "gw")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if before[0].Fingerprint == after[0].Fingerprint {
			t.Error("fingerprint unchanged after new reading")
		}
	})
}

func TestScanLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	ok := models.ScanRecord{
		Status:    models.ScanStatusOK,
		Reason:    models.ReasonChange,
		StartedAt: now.Add(-time.Minute),
		Duration:  1500 * time.Millisecond,
	}
	failed := models.ScanRecord{
		Status:     models.ScanStatusFailed,
		Reason:     models.ReasonManual,
		Identifier: "gw-1",
		StartedAt:  now,
		Duration:   200 * time.Millisecond,
		Error:      "exit status 1",
	}

	if err := store.RecordScan(ctx, &ok); err != nil {
		t.Fatalf("record ok scan: %v", err)
	}
	if err := store.RecordScan(ctx, &failed); err != nil {
		t.Fatalf("record failed scan: %v", err)
	}

	records, err := store.ListScans(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	// Newest first.
	if records[0].Status != models.ScanStatusFailed {
		t.Errorf("expected failed scan first, got %s", records[0].Status)
	}
	if records[0].Error != "exit status 1" {
		t.Errorf("unexpected error text: %q", records[0].Error)
	}
	if records[0].Reason != models.ReasonManual {
		t.Errorf("unexpected reason: %s", records[0].Reason)
	}
	if records[1].Duration != 1500*time.Millisecond {
		t.Errorf("unexpected duration: %s", records[1].Duration)
	}

	t.Run("limit caps the result", func(t *testing.T) {
		records, err := store.ListScans(ctx, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("expected 1 record, got %d", len(records))
		}
	})
}
