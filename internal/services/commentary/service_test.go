package commentary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/macropulse/internal/interfaces"
	"github.com/ternarybob/macropulse/internal/models"
	"github.com/ternarybob/macropulse/internal/services/analysiscache"
	"github.com/ternarybob/macropulse/internal/services/fingerprint"
	"github.com/ternarybob/macropulse/internal/services/similarity"
)

// memStore is an in-memory interfaces.AnalysisStore for orchestration tests.
type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, interfaces.ErrKeyNotFound
}

func (m *memStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *memStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *memStore) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// mockProvider returns a fixed commentary or error and counts calls.
type mockProvider struct {
	commentary *models.Commentary
	err        error
	calls      int
}

func (m *mockProvider) Generate(ctx context.Context, variant models.Variant, snapshot models.IndicatorSnapshot) (*models.Commentary, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.commentary, nil
}

// cancellingProvider simulates a call whose context is cancelled while the
// provider is still producing a result.
type cancellingProvider struct {
	cancel     context.CancelFunc
	commentary *models.Commentary
}

func (p *cancellingProvider) Generate(ctx context.Context, variant models.Variant, snapshot models.IndicatorSnapshot) (*models.Commentary, error) {
	p.cancel()
	return p.commentary, nil
}

func testCommentary() *models.Commentary {
	return &models.Commentary{
		Sentiment: models.SentimentBullish,
		Reasoning: "Yields eased while equities held their gains.",
		Risks:     []string{"CPI surprise"},
		Model:     "test-model",
	}
}

func testSnapshot(yield, dxy float64) models.IndicatorSnapshot {
	return models.IndicatorSnapshot{
		Values:     map[string]float64{"treasury_10y": yield, "dxy": dxy},
		CapturedAt: time.Now().UTC(),
	}
}

func newTestService(store interfaces.AnalysisStore, provider interfaces.CommentaryProvider) *Service {
	logger := arbor.NewLogger()
	table := fingerprint.Table{"treasury_10y": 0.01, "dxy": 0.1}
	cache := analysiscache.NewService(store, table, 24*time.Hour, 10, logger)
	scorer := similarity.NewService(similarity.Options{
		MinThresholds:    map[string]float64{"treasury_10y": 0.05, "dxy": 0.5},
		SimilarityWeight: 0.9,
		RecencyWeight:    0.1,
		RecencyWindow:    24 * time.Hour,
	}, logger)
	return NewService(cache, scorer, provider, logger)
}

func TestGetAnalysis_FreshThenCached(t *testing.T) {
	provider := &mockProvider{commentary: testCommentary()}
	svc := newTestService(newMemStore(), provider)
	ctx := context.Background()

	snap := testSnapshot(4.52, 105.0)
	first, err := svc.GetAnalysis(ctx, models.VariantClaude, snap)
	if err != nil {
		t.Fatalf("GetAnalysis() error = %v", err)
	}
	if first.IsFallback {
		t.Error("fresh analysis flagged as fallback")
	}
	if first.ID == "" || first.Fingerprint == "" {
		t.Errorf("fresh analysis missing ID or fingerprint: %+v", first)
	}
	if first.Variant != models.VariantClaude {
		t.Errorf("Variant = %s, want claude", first.Variant)
	}

	// Equivalent snapshot after rounding must hit the cache, not the provider.
	second, err := svc.GetAnalysis(ctx, models.VariantClaude, testSnapshot(4.523, 104.97))
	if err != nil {
		t.Fatalf("GetAnalysis() error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("cache hit ID = %s, want %s", second.ID, first.ID)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
}

func TestGetAnalysis_QuotaFallback(t *testing.T) {
	store := newMemStore()
	seedProvider := &mockProvider{commentary: testCommentary()}
	svc := newTestService(store, seedProvider)
	ctx := context.Background()

	// Seed the fallback log with a fresh analysis at nearby values.
	seeded, err := svc.GetAnalysis(ctx, models.VariantClaude, testSnapshot(4.49, 104.9))
	if err != nil {
		t.Fatalf("seed GetAnalysis() error = %v", err)
	}

	quotaProvider := &mockProvider{err: fmt.Errorf("%w: anthropic: 429", models.ErrQuotaExceeded)}
	svc = newTestService(store, quotaProvider)

	got, err := svc.GetAnalysis(ctx, models.VariantClaude, testSnapshot(4.51, 105.1))
	if err != nil {
		t.Fatalf("GetAnalysis() error = %v", err)
	}
	if !got.IsFallback {
		t.Error("fallback analysis not flagged")
	}
	if got.FallbackNote == "" {
		t.Error("fallback analysis missing note")
	}
	if got.ID != seeded.ID {
		t.Errorf("fallback ID = %s, want seeded %s", got.ID, seeded.ID)
	}
	if got.Sentiment != seeded.Sentiment || got.Reasoning != seeded.Reasoning {
		t.Error("fallback content does not match seeded analysis")
	}
}

func TestGetAnalysis_QuotaFallbackDoesNotMutateCache(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &mockProvider{commentary: testCommentary()})
	ctx := context.Background()

	snap := testSnapshot(4.49, 104.9)
	if _, err := svc.GetAnalysis(ctx, models.VariantClaude, snap); err != nil {
		t.Fatalf("seed GetAnalysis() error = %v", err)
	}

	quotaProvider := &mockProvider{err: fmt.Errorf("%w: anthropic: 429", models.ErrQuotaExceeded)}
	svc = newTestService(store, quotaProvider)

	if _, err := svc.GetAnalysis(ctx, models.VariantClaude, testSnapshot(4.51, 105.1)); err != nil {
		t.Fatalf("fallback GetAnalysis() error = %v", err)
	}

	// The original cached entry must still read back unannotated.
	cached, err := svc.GetAnalysis(ctx, models.VariantClaude, snap)
	if err != nil {
		t.Fatalf("GetAnalysis() error = %v", err)
	}
	if cached.IsFallback || cached.FallbackNote != "" {
		t.Errorf("cached entry was mutated by fallback annotation: %+v", cached)
	}
}

func TestGetAnalysis_QuotaNoCandidates(t *testing.T) {
	provider := &mockProvider{err: fmt.Errorf("%w: gemini: RESOURCE_EXHAUSTED", models.ErrQuotaExceeded)}
	svc := newTestService(newMemStore(), provider)

	_, err := svc.GetAnalysis(context.Background(), models.VariantGemini, testSnapshot(4.52, 105.0))
	if !errors.Is(err, models.ErrQuotaExceeded) {
		t.Errorf("error = %v, want ErrQuotaExceeded", err)
	}
	if !errors.Is(err, models.ErrNoAnalysis) {
		t.Errorf("error = %v, want ErrNoAnalysis", err)
	}
}

func TestGetAnalysis_NonQuotaErrorPropagates(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &mockProvider{commentary: testCommentary()})
	ctx := context.Background()

	// Candidates exist, but a non-quota failure must not trigger fallback.
	if _, err := svc.GetAnalysis(ctx, models.VariantClaude, testSnapshot(4.49, 104.9)); err != nil {
		t.Fatalf("seed GetAnalysis() error = %v", err)
	}

	authErr := errors.New("anthropic: 401 invalid api key")
	svc = newTestService(store, &mockProvider{err: authErr})

	_, err := svc.GetAnalysis(ctx, models.VariantClaude, testSnapshot(4.51, 105.1))
	if !errors.Is(err, authErr) {
		t.Errorf("error = %v, want provider error propagated", err)
	}
}

func TestGetAnalysis_CrossVariantFallbackIsolation(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &mockProvider{commentary: testCommentary()})
	ctx := context.Background()

	// Candidate exists only under claude.
	if _, err := svc.GetAnalysis(ctx, models.VariantClaude, testSnapshot(4.49, 104.9)); err != nil {
		t.Fatalf("seed GetAnalysis() error = %v", err)
	}

	quotaProvider := &mockProvider{err: fmt.Errorf("%w: gemini: 429", models.ErrQuotaExceeded)}
	svc = newTestService(store, quotaProvider)

	_, err := svc.GetAnalysis(ctx, models.VariantGemini, testSnapshot(4.51, 105.1))
	if !errors.Is(err, models.ErrNoAnalysis) {
		t.Errorf("error = %v, want ErrNoAnalysis (claude candidates must not serve gemini)", err)
	}
}

func TestGetAnalysis_InvalidSnapshot(t *testing.T) {
	provider := &mockProvider{commentary: testCommentary()}
	svc := newTestService(newMemStore(), provider)

	snap := models.IndicatorSnapshot{Values: map[string]float64{"treasury_10y": 4.5}}
	_, err := svc.GetAnalysis(context.Background(), models.VariantClaude, snap)
	if !models.IsMissingIndicator(err) {
		t.Errorf("error = %v, want MissingIndicatorError", err)
	}
	if provider.calls != 0 {
		t.Errorf("provider calls = %d, want 0 for invalid snapshot", provider.calls)
	}
}

func TestGetAnalysis_CancelledCallIsNotCached(t *testing.T) {
	store := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := newTestService(store, &cancellingProvider{cancel: cancel, commentary: testCommentary()})

	_, err := svc.GetAnalysis(ctx, models.VariantClaude, testSnapshot(4.52, 105.0))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if len(store.data) != 0 {
		t.Errorf("store entries = %d, want 0 after cancelled call", len(store.data))
	}
}

func TestGetAnalysis_UnknownVariant(t *testing.T) {
	provider := &mockProvider{commentary: testCommentary()}
	svc := newTestService(newMemStore(), provider)

	_, err := svc.GetAnalysis(context.Background(), models.Variant("claud"), testSnapshot(4.5, 105.0))
	if err == nil {
		t.Fatal("GetAnalysis() expected error for unknown variant")
	}
	if provider.calls != 0 {
		t.Errorf("provider calls = %d, want 0", provider.calls)
	}
}
