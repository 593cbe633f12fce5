package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DeviceSnapshot represents the last known remote state for one device
// identifier at a point in time. Snapshots are immutable; a newer fetch
// supersedes the previous snapshot for the same identifier.
type DeviceSnapshot struct {
	Identifier  string             `json:"identifier"`
	Channels    map[string]float64 `json:"channels"`
	ServerTime  time.Time          `json:"serverTime"`
	Fingerprint string             `json:"fingerprint"`
}

// ComputeFingerprint derives a content fingerprint from the channel values.
// Used when the remote side does not supply one. Channels are serialized in
// key order so the digest is stable across map iteration order.
func (s *DeviceSnapshot) ComputeFingerprint() string {
	keys := make([]string, 0, len(s.Channels))
	for k := range s.Channels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%g;", k, s.Channels[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}

// SummaryResponse represents the remote summary endpoint payload
type SummaryResponse struct {
	Devices    []DeviceSnapshot `json:"devices"`
	ServerTime time.Time        `json:"serverTime"`
}

// DetailResponse represents the remote per-device detail payload
type DetailResponse struct {
	Identifier string          `json:"identifier"`
	Readings   []SensorReading `json:"readings"`
	ServerTime time.Time       `json:"serverTime"`
}
