package interfaces

import (
	"context"

	"github.com/ternarybob/macropulse/internal/models"
)

// IndicatorSource yields a snapshot of the fixed, versioned indicator set.
// Fetch failures propagate as-is; no retry logic lives behind this contract.
type IndicatorSource interface {
	Snapshot(ctx context.Context) (models.IndicatorSnapshot, error)
}
