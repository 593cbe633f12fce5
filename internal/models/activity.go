package models

import "fmt"

// ActivityLevel represents the coordinator's assessment of how frequently
// remote changes are occurring. It drives poll interval selection.
type ActivityLevel int

const (
	ActivityIdle ActivityLevel = iota
	ActivityLow
	ActivityNormal
	ActivityHigh
)

// String returns the level name
func (l ActivityLevel) String() string {
	switch l {
	case ActivityIdle:
		return "IDLE"
	case ActivityLow:
		return "LOW"
	case ActivityNormal:
		return "NORMAL"
	case ActivityHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("ActivityLevel(%d)", int(l))
	}
}

// MarshalJSON implements json.Marshaler
func (l ActivityLevel) MarshalJSON() ([]byte, error) {
	return []byte(`"` + l.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (l *ActivityLevel) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"IDLE"`:
		*l = ActivityIdle
	case `"LOW"`:
		*l = ActivityLow
	case `"NORMAL"`:
		*l = ActivityNormal
	case `"HIGH"`:
		*l = ActivityHigh
	default:
		return fmt.Errorf("invalid activity level: %s", data)
	}
	return nil
}
