// Package fingerprint quantizes indicator snapshots into stable cache keys.
// Each indicator value is rounded to its configured step and the rounded set
// is serialized canonically, so any two snapshots that round to the same
// values produce byte-identical fingerprints.
package fingerprint

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/ternarybob/macropulse/internal/models"
)

// Table maps indicator ID to its quantization step. Steps are configuration,
// chosen per indicator: sub-unit for yields, hundreds for index levels.
type Table map[string]float64

// Compute derives the fingerprint for a snapshot. Every indicator known to
// the table must be present in the snapshot; a missing indicator fails fast
// with MissingIndicatorError before anything touches the store or provider.
// Pure function: no I/O, no side effects.
func Compute(snapshot models.IndicatorSnapshot, table Table) (string, error) {
	rounded := make(map[string]float64, len(table))
	for id, step := range table {
		value, ok := snapshot.Values[id]
		if !ok {
			return "", &models.MissingIndicatorError{ID: id}
		}
		rounded[id] = roundToStep(value, step)
	}

	// encoding/json sorts map keys, which makes the serialization canonical
	// regardless of input field order.
	data, err := json.Marshal(rounded)
	if err != nil {
		return "", fmt.Errorf("failed to serialize fingerprint: %w", err)
	}

	return string(data), nil
}

// Parse recovers the rounded per-indicator values from a fingerprint. It is
// the exact inverse of serialization, not of rounding: original precision is
// lost by design.
func Parse(fp string) (map[string]float64, error) {
	values := make(map[string]float64)
	if err := json.Unmarshal([]byte(fp), &values); err != nil {
		return nil, fmt.Errorf("malformed fingerprint %q: %w", fp, err)
	}
	return values, nil
}

// roundToStep rounds a value to the nearest multiple of step.
func roundToStep(value, step float64) float64 {
	return math.Round(value/step) * step
}
