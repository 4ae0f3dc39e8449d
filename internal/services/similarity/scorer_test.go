package similarity

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/macropulse/internal/models"
	"github.com/ternarybob/macropulse/internal/services/fingerprint"
)

func testOptions() Options {
	return Options{
		MinThresholds: map[string]float64{
			"treasury_10y": 0.25,
			"dxy":          5,
		},
		SimilarityWeight: 0.9,
		RecencyWeight:    0.1,
		RecencyWindow:    24 * time.Hour,
	}
}

func testScorer(t *testing.T) *Service {
	t.Helper()
	return NewService(testOptions(), arbor.NewLogger())
}

// makeCandidate builds a record whose fingerprint encodes the given values.
func makeCandidate(t *testing.T, id string, values map[string]float64, age time.Duration, now time.Time) *models.AnalysisRecord {
	t.Helper()

	table := fingerprint.Table{}
	for ind := range values {
		table[ind] = 0.0001 // fine step so the test values survive rounding
	}
	fp, err := fingerprint.Compute(models.IndicatorSnapshot{Values: values}, table)
	require.NoError(t, err)

	return &models.AnalysisRecord{
		ID:          id,
		Fingerprint: fp,
		Sentiment:   models.SentimentNeutral,
		ProducedAt:  now.Add(-age),
	}
}

func TestSelectBestMatch_EmptyCandidates(t *testing.T) {
	scorer := testScorer(t)

	match := scorer.SelectBestMatch(map[string]float64{"treasury_10y": 4.5}, nil, time.Now())
	assert.Nil(t, match)

	match = scorer.SelectBestMatch(map[string]float64{"treasury_10y": 4.5}, []*models.AnalysisRecord{}, time.Now())
	assert.Nil(t, match)
}

func TestSelectBestMatch_SingleCandidate(t *testing.T) {
	scorer := testScorer(t)
	now := time.Now().UTC()

	// One candidate: dynamic range is zero for every indicator and the
	// minimum thresholds alone must keep the distance well-defined.
	cand := makeCandidate(t, "only", map[string]float64{"treasury_10y": 4.45, "dxy": 104.0}, 2*time.Hour, now)
	current := map[string]float64{"treasury_10y": 4.50, "dxy": 105.0}

	match := scorer.SelectBestMatch(current, []*models.AnalysisRecord{cand}, now)
	require.NotNil(t, match)
	assert.Equal(t, "only", match.Record.ID)
	assert.Greater(t, match.Distance, 0.0)
	assert.False(t, math.IsNaN(match.Score))
}

func TestSelectBestMatch_IdentityWinsRegardlessOfRecency(t *testing.T) {
	scorer := testScorer(t)
	now := time.Now().UTC()

	current := map[string]float64{"treasury_10y": 4.5, "dxy": 105.0}

	// Exact match is nearly a day old; the fresher candidate differs.
	exact := makeCandidate(t, "exact", map[string]float64{"treasury_10y": 4.5, "dxy": 105.0}, 23*time.Hour, now)
	fresh := makeCandidate(t, "fresh", map[string]float64{"treasury_10y": 4.3, "dxy": 103.0}, 5*time.Minute, now)

	match := scorer.SelectBestMatch(current, []*models.AnalysisRecord{fresh, exact}, now)
	require.NotNil(t, match)
	assert.Equal(t, "exact", match.Record.ID)
	assert.InDelta(t, 0.0, match.Distance, 1e-9)
	assert.InDelta(t, 1.0, match.Similarity, 1e-9)
}

func TestSelectBestMatch_CloserCandidateBeatsNewerOne(t *testing.T) {
	// Worked example: the second candidate is closer in value but older.
	// Similarity (weighted 90%) must outweigh recency (10%).
	scorer := testScorer(t)
	now := time.Now().UTC()

	older := makeCandidate(t, "closer-older", map[string]float64{"treasury_10y": 4.49, "dxy": 104.9}, 10*time.Hour, now)
	newer := makeCandidate(t, "farther-newer", map[string]float64{"treasury_10y": 4.45, "dxy": 104.0}, 2*time.Hour, now)
	current := map[string]float64{"treasury_10y": 4.50, "dxy": 105.0}

	match := scorer.SelectBestMatch(current, []*models.AnalysisRecord{newer, older}, now)
	require.NotNil(t, match)
	assert.Equal(t, "closer-older", match.Record.ID)

	// Both effective ranges collapse to the minimum thresholds here
	// (dynamic ranges 0.04 and 0.9 are below the floors 0.25 and 5).
	assert.InDelta(t, 0.97, match.Similarity, 0.01)
	assert.InDelta(t, 0.58, match.Recency, 0.01)
}

func TestSelectBestMatch_DynamicRangeAboveFloor(t *testing.T) {
	// When candidates genuinely spread, the dynamic range replaces the floor.
	opts := testOptions()
	opts.MinThresholds = map[string]float64{"treasury_10y": 0.01}
	scorer := NewService(opts, arbor.NewLogger())
	now := time.Now().UTC()

	low := makeCandidate(t, "low", map[string]float64{"treasury_10y": 4.0}, time.Hour, now)
	high := makeCandidate(t, "high", map[string]float64{"treasury_10y": 5.0}, time.Hour, now)
	current := map[string]float64{"treasury_10y": 4.9}

	match := scorer.SelectBestMatch(current, []*models.AnalysisRecord{low, high}, now)
	require.NotNil(t, match)
	assert.Equal(t, "high", match.Record.ID)

	// Dynamic range is 1.0, so delta for "high" is 0.1 and the distance
	// is 0.1 exactly with a single indicator.
	assert.InDelta(t, 0.1, match.Distance, 1e-9)
}

func TestSelectBestMatch_TieKeepsFirstEnumerated(t *testing.T) {
	scorer := testScorer(t)
	now := time.Now().UTC()

	values := map[string]float64{"treasury_10y": 4.5, "dxy": 105.0}
	first := makeCandidate(t, "first", values, time.Hour, now)
	second := makeCandidate(t, "second", values, time.Hour, now)

	match := scorer.SelectBestMatch(values, []*models.AnalysisRecord{first, second}, now)
	require.NotNil(t, match)
	assert.Equal(t, "first", match.Record.ID)
}

func TestSelectBestMatch_SkipsMalformedFingerprints(t *testing.T) {
	scorer := testScorer(t)
	now := time.Now().UTC()

	broken := &models.AnalysisRecord{ID: "broken", Fingerprint: "not json", ProducedAt: now}
	good := makeCandidate(t, "good", map[string]float64{"treasury_10y": 4.5, "dxy": 105.0}, time.Hour, now)

	match := scorer.SelectBestMatch(map[string]float64{"treasury_10y": 4.5, "dxy": 105.0},
		[]*models.AnalysisRecord{broken, good}, now)
	require.NotNil(t, match)
	assert.Equal(t, "good", match.Record.ID)
}

func TestSelectBestMatch_AllCandidatesUnusable(t *testing.T) {
	scorer := testScorer(t)
	now := time.Now().UTC()

	broken := &models.AnalysisRecord{ID: "broken", Fingerprint: "{", ProducedAt: now}
	missing := makeCandidate(t, "missing", map[string]float64{"gold": 2400}, time.Hour, now)

	match := scorer.SelectBestMatch(map[string]float64{"treasury_10y": 4.5},
		[]*models.AnalysisRecord{broken, missing}, now)
	assert.Nil(t, match)
}

func TestRecencyScore(t *testing.T) {
	scorer := testScorer(t)
	now := time.Now().UTC()

	tests := []struct {
		name string
		age  time.Duration
		want float64
	}{
		{"brand new", 0, 1.0},
		{"half window", 12 * time.Hour, 0.5},
		{"at window", 24 * time.Hour, 0.0},
		{"older than window", 30 * time.Hour, 0.0},
		{"future timestamp clamps", -time.Hour, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := &models.AnalysisRecord{ProducedAt: now.Add(-tt.age)}
			got := scorer.recencyScore(record, now)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
