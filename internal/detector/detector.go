// Package detector classifies successive remote snapshots into change events.
package detector

import (
	"time"

	"github.com/google/uuid"

	"github.com/sensor-gateway/gateway-monitor/internal/models"
)

// Classify compares the current snapshot list against the previous per-
// identifier map and returns one event per new or changed identifier, in the
// order the remote returned them.
//
// Identifiers present in previous but absent from current are not reported:
// the remote summary may be partial, so absence is never treated as removal.
func Classify(previous map[string]models.DeviceSnapshot, current []models.DeviceSnapshot) []models.ChangeEvent {
	var events []models.ChangeEvent
	now := time.Now()

	for _, snap := range current {
		prev, seen := previous[snap.Identifier]

		switch {
		case !seen:
			events = append(events, models.ChangeEvent{
				ID:         uuid.New(),
				Kind:       models.ChangeNew,
				Identifier: snap.Identifier,
				Snapshot:   snap,
				At:         now,
			})
		case prev.Fingerprint != snap.Fingerprint:
			events = append(events, models.ChangeEvent{
				ID:         uuid.New(),
				Kind:       models.ChangeChanged,
				Identifier: snap.Identifier,
				Snapshot:   snap,
				At:         now,
			})
		}
	}

	return events
}

// Index builds the per-identifier map the caller retains as "previous" for
// the next classification. The map is rebuilt wholesale after each fetch.
func Index(snapshots []models.DeviceSnapshot) map[string]models.DeviceSnapshot {
	m := make(map[string]models.DeviceSnapshot, len(snapshots))
	for _, snap := range snapshots {
		m[snap.Identifier] = snap
	}
	return m
}
