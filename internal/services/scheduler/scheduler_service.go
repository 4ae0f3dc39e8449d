// Package scheduler polls the market data source on a cron schedule, keeps
// the most recent snapshot available for the API, and warms the analysis
// cache for every enabled variant. Poll failures are logged and never fatal:
// the next tick simply tries again.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/macropulse/internal/interfaces"
	"github.com/ternarybob/macropulse/internal/models"
)

const pollTimeout = 2 * time.Minute

// Service implements SchedulerService
type Service struct {
	source   interfaces.IndicatorSource
	analysis interfaces.AnalysisService
	events   interfaces.EventService
	variants []models.Variant
	cronExpr string
	cron     *cron.Cron
	logger   arbor.ILogger

	mu           sync.Mutex // Protects isProcessing
	snapMu       sync.RWMutex
	isProcessing bool
	running      bool
	latest       *models.IndicatorSnapshot
}

// NewService creates a new scheduler service
func NewService(source interfaces.IndicatorSource, analysis interfaces.AnalysisService, events interfaces.EventService, variants []models.Variant, cronExpr string, logger arbor.ILogger) *Service {
	return &Service{
		source:   source,
		analysis: analysis,
		events:   events,
		variants: variants,
		cronExpr: cronExpr,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start begins the polling schedule
func (s *Service) Start() error {
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	cronExpr := s.cronExpr
	if cronExpr == "" {
		cronExpr = "*/15 * * * *"
	}

	if _, err := s.cron.AddFunc(cronExpr, s.runPoll); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("cron_expr", cronExpr).
		Int("variants", len(s.variants)).
		Msg("Scheduler started")

	// Warm the dashboard immediately instead of waiting for the first tick.
	go s.runPoll()

	return nil
}

// Stop halts the scheduler
func (s *Service) Stop() error {
	if !s.running {
		return nil
	}

	deadline := time.Now().Add(30 * time.Second)

	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Until(deadline)):
		s.logger.Warn().Msg("Poll did not finish within shutdown timeout")
	}

	// Warm-up and manually triggered polls run outside cron's bookkeeping,
	// so the drain above does not cover them. Wait here so the caller can
	// tear down storage without a poll still writing to it.
	for {
		s.mu.Lock()
		busy := s.isProcessing
		s.mu.Unlock()
		if !busy {
			break
		}
		if time.Now().After(deadline) {
			s.logger.Warn().Msg("Poll still in progress at shutdown timeout")
			break
		}
		time.Sleep(25 * time.Millisecond)
	}

	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// TriggerNow runs one poll cycle immediately
func (s *Service) TriggerNow() {
	go s.runPoll()
}

// Latest returns the most recent snapshot, if one has been captured
func (s *Service) Latest() (models.IndicatorSnapshot, bool) {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()

	if s.latest == nil {
		return models.IndicatorSnapshot{}, false
	}
	return *s.latest, true
}

// runPoll fetches a snapshot and warms the cache for each enabled variant.
// Overlapping ticks are skipped rather than queued.
func (s *Service) runPoll() {
	s.mu.Lock()
	if s.isProcessing {
		s.mu.Unlock()
		s.logger.Debug().Msg("Poll already in progress, skipping tick")
		return
	}
	s.isProcessing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isProcessing = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()

	snapshot, err := s.source.Snapshot(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Indicator poll failed")
		return
	}

	s.snapMu.Lock()
	s.latest = &snapshot
	s.snapMu.Unlock()

	s.events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventSnapshotCaptured,
		Payload: snapshot,
	})

	for _, variant := range s.variants {
		record, err := s.analysis.GetAnalysis(ctx, variant, snapshot)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("variant", variant.String()).
				Msg("Cache warm-up failed for variant")
			continue
		}

		s.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventAnalysisRefreshed,
			Payload: record,
		})
	}

	s.logger.Info().
		Int("indicators", len(snapshot.Values)).
		Msg("Poll cycle complete")
}

// Ensure Service implements SchedulerService
var _ interfaces.SchedulerService = (*Service)(nil)
