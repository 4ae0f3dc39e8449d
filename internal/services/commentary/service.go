// Package commentary orchestrates analysis retrieval: exact cache first,
// live provider on a miss, similarity fallback when the provider is
// quota-limited.
package commentary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/macropulse/internal/interfaces"
	"github.com/ternarybob/macropulse/internal/models"
	"github.com/ternarybob/macropulse/internal/services/analysiscache"
	"github.com/ternarybob/macropulse/internal/services/similarity"
)

// Service composes the cache, scorer and provider behind the
// AnalysisService contract.
type Service struct {
	cache    *analysiscache.Service
	scorer   *similarity.Service
	provider interfaces.CommentaryProvider
	logger   arbor.ILogger
}

// NewService creates a new commentary orchestration service.
func NewService(cache *analysiscache.Service, scorer *similarity.Service, provider interfaces.CommentaryProvider, logger arbor.ILogger) *Service {
	return &Service{
		cache:    cache,
		scorer:   scorer,
		provider: provider,
		logger:   logger,
	}
}

// GetAnalysis returns an analysis for the snapshot. Fast path is the exact
// cache. On a miss the provider is called; a successful result is cached
// and returned. A quota-classified provider failure falls back to the best
// similarity match from the fallback log, annotated so callers can tell
// approximate answers from fresh ones. Any other provider failure
// propagates untouched: substituting a cached answer would not help a
// request that will never succeed.
func (s *Service) GetAnalysis(ctx context.Context, variant models.Variant, snapshot models.IndicatorSnapshot) (*models.AnalysisRecord, error) {
	if !variant.Valid() {
		return nil, fmt.Errorf("unknown analysis variant: %q", variant)
	}

	cached, err := s.cache.GetExact(ctx, variant, snapshot)
	if err != nil {
		// Invalid snapshot; fails fast before any provider call.
		return nil, err
	}
	if cached != nil {
		s.logger.Debug().
			Str("variant", variant.String()).
			Str("analysis_id", cached.ID).
			Msg("Exact cache hit")
		return cached, nil
	}

	commentary, err := s.provider.Generate(ctx, variant, snapshot)
	if err != nil {
		if errors.Is(err, models.ErrQuotaExceeded) {
			s.logger.Warn().Err(err).Str("variant", variant.String()).Msg("Provider quota exceeded, trying similarity fallback")
			return s.fallback(ctx, variant, snapshot, err)
		}
		return nil, err
	}

	// A cancelled call must leave no partial write behind.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	record := &models.AnalysisRecord{
		ID:         uuid.New().String(),
		Variant:    variant,
		Sentiment:  commentary.Sentiment,
		Reasoning:  commentary.Reasoning,
		Risks:      commentary.Risks,
		Model:      commentary.Model,
		ProducedAt: time.Now().UTC(),
	}

	if err := s.cache.PutExact(ctx, variant, snapshot, record); err != nil {
		// The fresh result is still good; only durability suffered.
		s.logger.Warn().Err(err).Str("variant", variant.String()).Msg("Failed to cache fresh analysis")
	}

	s.logger.Info().
		Str("variant", variant.String()).
		Str("analysis_id", record.ID).
		Str("sentiment", string(record.Sentiment)).
		Msg("Generated fresh analysis")

	return record, nil
}

// fallback selects the closest logged analysis for the snapshot. The
// returned record is a clone: cached candidates are never mutated.
func (s *Service) fallback(ctx context.Context, variant models.Variant, snapshot models.IndicatorSnapshot, quotaErr error) (*models.AnalysisRecord, error) {
	candidates := s.cache.ListCandidates(ctx, variant)

	match := s.scorer.SelectBestMatch(snapshot.Values, candidates, time.Now().UTC())
	if match == nil {
		return nil, fmt.Errorf("%w: %w", models.ErrNoAnalysis, quotaErr)
	}

	record := match.Record.Clone()
	record.IsFallback = true
	record.FallbackNote = fmt.Sprintf(
		"approximate match from analysis produced at %s (similarity %.2f); live provider quota exceeded",
		match.Record.ProducedAt.Format(time.RFC3339), match.Similarity)

	s.logger.Info().
		Str("variant", variant.String()).
		Str("analysis_id", record.ID).
		Float64("similarity", match.Similarity).
		Float64("score", match.Score).
		Msg("Serving fallback analysis")

	return record, nil
}

// Ensure Service implements AnalysisService
var _ interfaces.AnalysisService = (*Service)(nil)
