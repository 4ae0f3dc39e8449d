// Package similarity selects the best approximate match from the fallback
// log when the commentary provider is quota-limited. Candidates are compared
// against the current snapshot with a normalized Euclidean distance and
// blended with a recency score; similarity dominates, recency tie-breaks.
package similarity

import (
	"math"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/macropulse/internal/models"
	"github.com/ternarybob/macropulse/internal/services/fingerprint"
)

// Options tunes the scoring blend. The weights and thresholds are empirical
// tuning, not derived from a principled model; keep them configurable.
type Options struct {
	// MinThresholds is the per-indicator normalization floor, roughly 1% of
	// each indicator's typical historical range. It keeps the denominator
	// sane when all candidates share near-identical values for an indicator.
	MinThresholds map[string]float64

	// SimilarityWeight and RecencyWeight blend the two scores. Observed
	// tuning is 0.9/0.1: similarity dominates, recency is a tie-breaker.
	SimilarityWeight float64
	RecencyWeight    float64

	// RecencyWindow is the age at which the recency score reaches zero,
	// normally the cache TTL.
	RecencyWindow time.Duration
}

// Match is a scored candidate selected from the fallback log.
type Match struct {
	Record     *models.AnalysisRecord
	Distance   float64
	Similarity float64
	Recency    float64
	Score      float64
}

// Service scores fallback candidates against a current snapshot.
type Service struct {
	opts   Options
	logger arbor.ILogger
}

// NewService creates a new similarity scorer.
func NewService(opts Options, logger arbor.ILogger) *Service {
	return &Service{
		opts:   opts,
		logger: logger,
	}
}

// parsedCandidate pairs a candidate record with its parsed rounded values.
type parsedCandidate struct {
	record *models.AnalysisRecord
	values map[string]float64
}

// SelectBestMatch returns the highest-scoring candidate for the current
// snapshot values, or nil when no usable candidate exists. Never errors:
// an empty or fully unusable candidate set is a normal outcome on the
// already-degraded quota path. Ties keep the first-enumerated candidate.
func (s *Service) SelectBestMatch(current map[string]float64, candidates []*models.AnalysisRecord, now time.Time) *Match {
	if len(candidates) == 0 {
		return nil
	}

	parsed := s.parseCandidates(current, candidates)
	if len(parsed) == 0 {
		return nil
	}

	effectiveRange := s.effectiveRanges(current, parsed)

	var best *Match
	for _, cand := range parsed {
		distance := normalizedDistance(current, cand.values, effectiveRange)
		match := &Match{
			Record:     cand.record,
			Distance:   distance,
			Similarity: math.Exp(-distance),
			Recency:    s.recencyScore(cand.record, now),
		}
		match.Score = match.Similarity*s.opts.SimilarityWeight + match.Recency*s.opts.RecencyWeight

		if best == nil || match.Score > best.Score {
			best = match
		}
	}

	if best != nil {
		s.logger.Debug().
			Str("candidate_id", best.Record.ID).
			Float64("distance", best.Distance).
			Float64("similarity", best.Similarity).
			Float64("recency", best.Recency).
			Float64("score", best.Score).
			Int("candidates", len(parsed)).
			Msg("Selected fallback candidate")
	}

	return best
}

// parseCandidates decodes each candidate's stored fingerprint, dropping any
// that cannot be parsed or that lack an indicator present in the current
// snapshot. A dropped candidate is a miss, not an error.
func (s *Service) parseCandidates(current map[string]float64, candidates []*models.AnalysisRecord) []parsedCandidate {
	parsed := make([]parsedCandidate, 0, len(candidates))
	for _, record := range candidates {
		values, err := fingerprint.Parse(record.Fingerprint)
		if err != nil {
			s.logger.Warn().Err(err).Str("candidate_id", record.ID).Msg("Skipping candidate with malformed fingerprint")
			continue
		}

		usable := true
		for id := range current {
			if _, ok := values[id]; !ok {
				s.logger.Debug().Str("candidate_id", record.ID).Str("indicator", id).Msg("Skipping candidate missing indicator")
				usable = false
				break
			}
		}
		if usable {
			parsed = append(parsed, parsedCandidate{record: record, values: values})
		}
	}
	return parsed
}

// effectiveRanges computes, per indicator, how much the candidates actually
// varied in the fallback window, floored at the configured minimum. With a
// single candidate the dynamic range is zero everywhere and the floor alone
// keeps the distance well-defined.
func (s *Service) effectiveRanges(current map[string]float64, parsed []parsedCandidate) map[string]float64 {
	ranges := make(map[string]float64, len(current))
	for id := range current {
		minVal := math.Inf(1)
		maxVal := math.Inf(-1)
		for _, cand := range parsed {
			v := cand.values[id]
			minVal = math.Min(minVal, v)
			maxVal = math.Max(maxVal, v)
		}

		dynamicRange := maxVal - minVal
		effective := math.Max(dynamicRange, s.opts.MinThresholds[id])
		if effective <= 0 {
			// No configured floor and coinciding candidates; any positive
			// denominator gives distance 0 for the shared value.
			effective = 1
		}
		ranges[id] = effective
	}
	return ranges
}

// normalizedDistance is a dimensionless Euclidean distance: each indicator's
// delta is scaled by its effective range so every indicator contributes
// equally regardless of native magnitude.
func normalizedDistance(current, candidate, effectiveRange map[string]float64) float64 {
	if len(current) == 0 {
		return 0
	}

	var sum float64
	for id, currentValue := range current {
		delta := math.Abs(currentValue-candidate[id]) / effectiveRange[id]
		sum += delta * delta
	}

	return math.Sqrt(sum / float64(len(current)))
}

// recencyScore decays linearly from 1.0 at age zero to 0.0 at the recency
// window, clamped for anything older. TTL expiry should prevent older
// candidates from appearing at all, but guard anyway.
func (s *Service) recencyScore(record *models.AnalysisRecord, now time.Time) float64 {
	if s.opts.RecencyWindow <= 0 {
		return 0
	}

	age := record.Age(now)
	if age <= 0 {
		return 1
	}
	if age >= s.opts.RecencyWindow {
		return 0
	}

	return 1 - float64(age)/float64(s.opts.RecencyWindow)
}
