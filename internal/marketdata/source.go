package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/macropulse/internal/common"
	"github.com/ternarybob/macropulse/internal/interfaces"
	"github.com/ternarybob/macropulse/internal/models"
)

// Source fetches the configured indicator set as one snapshot. Snapshots are
// all-or-nothing: a partial indicator set would fingerprint inconsistently,
// so any missing quote fails the whole fetch.
type Source struct {
	client     *Client
	indicators []common.IndicatorConfig
	logger     arbor.ILogger
}

// NewSource creates an indicator source over the market data client.
func NewSource(client *Client, indicators []common.IndicatorConfig, logger arbor.ILogger) *Source {
	return &Source{
		client:     client,
		indicators: indicators,
		logger:     logger,
	}
}

// Snapshot fetches current quotes for every configured indicator.
func (s *Source) Snapshot(ctx context.Context) (models.IndicatorSnapshot, error) {
	symbols := make([]string, 0, len(s.indicators))
	for _, ind := range s.indicators {
		symbols = append(symbols, ind.Ticker)
	}

	quotes, err := s.client.GetRealTimeQuotes(ctx, symbols)
	if err != nil {
		return models.IndicatorSnapshot{}, fmt.Errorf("failed to fetch indicator quotes: %w", err)
	}

	byTicker := make(map[string]Quote, len(quotes))
	for _, q := range quotes {
		byTicker[strings.ToUpper(q.Code)] = q
	}

	values := make(map[string]float64, len(s.indicators))
	for _, ind := range s.indicators {
		quote, ok := byTicker[strings.ToUpper(ind.Ticker)]
		if !ok {
			return models.IndicatorSnapshot{}, fmt.Errorf("quote response missing indicator %s (ticker %s)", ind.ID, ind.Ticker)
		}
		values[ind.ID] = quote.Close
	}

	snapshot := models.IndicatorSnapshot{
		Values:     values,
		CapturedAt: time.Now().UTC(),
	}

	s.logger.Debug().
		Int("indicators", len(values)).
		Msg("Captured indicator snapshot")

	return snapshot, nil
}

// Ensure Source implements IndicatorSource
var _ interfaces.IndicatorSource = (*Source)(nil)
