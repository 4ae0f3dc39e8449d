package models

import "time"

// IndicatorSnapshot is a point-in-time capture of the tracked indicator set.
// Values maps indicator ID to the current numeric reading. Snapshots are
// produced by the market data source and never mutated after capture.
type IndicatorSnapshot struct {
	Values     map[string]float64 `json:"values"`
	CapturedAt time.Time          `json:"captured_at"`
}

// NewIndicatorSnapshot creates a snapshot stamped with the current UTC time.
func NewIndicatorSnapshot(values map[string]float64) IndicatorSnapshot {
	return IndicatorSnapshot{
		Values:     values,
		CapturedAt: time.Now().UTC(),
	}
}

// Get returns the value for an indicator ID and whether it is present.
func (s IndicatorSnapshot) Get(id string) (float64, bool) {
	v, ok := s.Values[id]
	return v, ok
}
