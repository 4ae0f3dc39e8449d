package interfaces

import (
	"context"

	"github.com/ternarybob/macropulse/internal/models"
)

// CommentaryProvider generates structured market commentary for a snapshot.
// Implementations must classify quota/rate-limit failures by wrapping
// models.ErrQuotaExceeded so the orchestration layer can branch to the
// similarity fallback; all other failures propagate as-is.
type CommentaryProvider interface {
	Generate(ctx context.Context, variant models.Variant, snapshot models.IndicatorSnapshot) (*models.Commentary, error)
}
