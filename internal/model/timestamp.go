package model

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// naiveISOLayout matches ISO-8601 timestamps written without a zone offset,
// as found in older log files.
const naiveISOLayout = "2006-01-02T15:04:05.999999999"

// Timestamp is a point in time serialized as ISO-8601. Timestamps without an
// offset are interpreted in the local zone.
type Timestamp struct {
	time.Time
}

// MarshalJSON renders the timestamp as RFC 3339 with nanoseconds.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// UnmarshalJSON accepts RFC 3339 and naive ISO-8601 timestamps. A JSON null
// leaves the timestamp unchanged.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return eris.Wrap(err, "model: timestamp must be a string")
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// ParseTimestamp parses an ISO-8601 string with or without a zone offset.
func ParseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	ts, err := time.ParseInLocation(naiveISOLayout, s, time.Local)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "model: parse timestamp %q", s)
	}
	return ts, nil
}
