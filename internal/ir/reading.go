package ir

import "time"

// Reading is a single sensor sample.
//
// The zero Reading carrying only the sensor's Unit is the defined "no data
// yet" value returned by Sensor.Current; it is never an absent result.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
}

// IsZero reports whether r is the no-data reading.
func (r Reading) IsZero() bool {
	return r.Timestamp.IsZero() && r.Value == 0
}

// Snapshot maps sensor keys (e.g. "voltage", "cosphi") to their latest
// readings at one evaluation instant.
type Snapshot map[string]Reading
