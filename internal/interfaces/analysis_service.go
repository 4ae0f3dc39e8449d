package interfaces

import (
	"context"

	"github.com/ternarybob/macropulse/internal/models"
)

// AnalysisService is the public contract of the commentary orchestration:
// return an analysis for the snapshot, falling back to the best similarity
// match when the provider is quota-limited.
type AnalysisService interface {
	GetAnalysis(ctx context.Context, variant models.Variant, snapshot models.IndicatorSnapshot) (*models.AnalysisRecord, error)
}

// CacheStatus summarizes cache occupancy for one variant.
type CacheStatus struct {
	Variant      models.Variant `json:"variant"`
	ExactEntries int            `json:"exact_entries"`
	LogEntries   int            `json:"log_entries"`
}

// CacheInspector exposes read-only cache occupancy for the status endpoint.
type CacheInspector interface {
	Status(ctx context.Context) ([]CacheStatus, error)
}
