// Package analysiscache stores generated analyses in the durable store under
// two key schemes: an exact-match table keyed by fingerprint for the fast
// path, and a bounded recency-ordered log per variant that feeds the
// similarity fallback. Every exact write is also a log write; the two are
// duplicates of the same record set differing only in key shape.
package analysiscache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/macropulse/internal/interfaces"
	"github.com/ternarybob/macropulse/internal/models"
	"github.com/ternarybob/macropulse/internal/services/fingerprint"
)

const (
	exactKeyPrefix = "analysis:exact:"
	logKeyPrefix   = "analysis:log:"
)

// Service provides exact-match caching and the fallback log.
type Service struct {
	store   interfaces.AnalysisStore
	table   fingerprint.Table
	ttl     time.Duration
	logSize int
	logger  arbor.ILogger
}

// NewService creates a new analysis cache service.
func NewService(store interfaces.AnalysisStore, table fingerprint.Table, ttl time.Duration, logSize int, logger arbor.ILogger) *Service {
	return &Service{
		store:   store,
		table:   table,
		ttl:     ttl,
		logSize: logSize,
		logger:  logger,
	}
}

// Fingerprint computes the cache fingerprint for a snapshot.
func (s *Service) Fingerprint(snapshot models.IndicatorSnapshot) (string, error) {
	return fingerprint.Compute(snapshot, s.table)
}

// GetExact looks up an analysis by the snapshot's exact fingerprint. A store
// failure is indistinguishable from a miss: the caller proceeds to the
// provider either way. Only an invalid snapshot returns an error.
func (s *Service) GetExact(ctx context.Context, variant models.Variant, snapshot models.IndicatorSnapshot) (*models.AnalysisRecord, error) {
	fp, err := fingerprint.Compute(snapshot, s.table)
	if err != nil {
		return nil, err
	}

	data, err := s.store.Get(ctx, exactKey(variant, fp))
	if err != nil {
		if err != interfaces.ErrKeyNotFound {
			s.logger.Warn().Err(err).Str("variant", variant.String()).Msg("Exact cache read failed, treating as miss")
		}
		return nil, nil
	}

	record, err := decodeRecord(data)
	if err != nil {
		s.logger.Warn().Err(err).Str("variant", variant.String()).Msg("Malformed cached analysis, treating as miss")
		return nil, nil
	}

	return record, nil
}

// PutExact writes an analysis under its exact fingerprint with the
// configured TTL, and dual-writes it into the fallback log. There is no
// independent write path into the log. Log maintenance failures never fail
// the put.
func (s *Service) PutExact(ctx context.Context, variant models.Variant, snapshot models.IndicatorSnapshot, record *models.AnalysisRecord) error {
	fp, err := fingerprint.Compute(snapshot, s.table)
	if err != nil {
		return err
	}
	record.Fingerprint = fp
	record.Variant = variant

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to serialize analysis record: %w", err)
	}

	if err := s.store.Set(ctx, exactKey(variant, fp), data, s.ttl); err != nil {
		return fmt.Errorf("failed to write exact cache entry: %w", err)
	}

	s.appendLog(ctx, variant, record, data)

	return nil
}

// ListCandidates enumerates the live fallback log entries for a variant in
// enumeration order. An empty result is a normal outcome, including when the
// store is unreachable; the quota path then simply has nothing to offer.
func (s *Service) ListCandidates(ctx context.Context, variant models.Variant) []*models.AnalysisRecord {
	keys, err := s.store.ListKeys(ctx, logPrefix(variant))
	if err != nil {
		s.logger.Warn().Err(err).Str("variant", variant.String()).Msg("Fallback log enumeration failed")
		return nil
	}

	candidates := make([]*models.AnalysisRecord, 0, len(keys))
	for _, key := range keys {
		data, err := s.store.Get(ctx, key)
		if err != nil {
			// Deleted or expired between enumeration and read; a miss for
			// this candidate, not an error.
			continue
		}

		record, err := decodeRecord(data)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Skipping malformed fallback log entry")
			continue
		}
		candidates = append(candidates, record)
	}

	return candidates
}

// Status reports exact and log entry counts per variant.
func (s *Service) Status(ctx context.Context) ([]interfaces.CacheStatus, error) {
	statuses := make([]interfaces.CacheStatus, 0, len(models.AllVariants()))
	for _, variant := range models.AllVariants() {
		exactKeys, err := s.store.ListKeys(ctx, exactKeyPrefix+variant.String()+":")
		if err != nil {
			return nil, fmt.Errorf("failed to count exact entries: %w", err)
		}
		logKeys, err := s.store.ListKeys(ctx, logPrefix(variant))
		if err != nil {
			return nil, fmt.Errorf("failed to count log entries: %w", err)
		}
		statuses = append(statuses, interfaces.CacheStatus{
			Variant:      variant,
			ExactEntries: len(exactKeys),
			LogEntries:   len(logKeys),
		})
	}
	return statuses, nil
}

// appendLog writes the record into the variant's fallback log and prunes
// entries beyond the configured size, oldest first. All failures here are
// logged and swallowed: the log is advisory relative to the exact write.
func (s *Service) appendLog(ctx context.Context, variant models.Variant, record *models.AnalysisRecord, data []byte) {
	if err := s.store.Set(ctx, logKey(variant, record), data, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("variant", variant.String()).Msg("Failed to append fallback log entry")
		return
	}

	keys, err := s.store.ListKeys(ctx, logPrefix(variant))
	if err != nil {
		s.logger.Warn().Err(err).Str("variant", variant.String()).Msg("Failed to enumerate fallback log for pruning")
		return
	}

	if len(keys) <= s.logSize {
		return
	}

	// Log keys embed a zero-padded timestamp, so lexicographic order is
	// chronological: the first (count - logSize) keys are the oldest.
	sort.Strings(keys)
	excess := keys[:len(keys)-s.logSize]
	if err := s.store.Delete(ctx, excess...); err != nil {
		s.logger.Warn().Err(err).Int("count", len(excess)).Msg("Failed to prune fallback log entries")
		return
	}

	s.logger.Debug().
		Str("variant", variant.String()).
		Int("pruned", len(excess)).
		Int("kept", s.logSize).
		Msg("Pruned fallback log")
}

// decodeRecord unmarshals a stored analysis blob and validates the fields
// the cache depends on, so malformed data fails fast and visibly instead of
// propagating empty fields downstream.
func decodeRecord(data []byte) (*models.AnalysisRecord, error) {
	var record models.AnalysisRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("malformed analysis record: %w", err)
	}
	if record.ID == "" || record.Fingerprint == "" {
		return nil, fmt.Errorf("analysis record missing id or fingerprint")
	}
	return &record, nil
}

func exactKey(variant models.Variant, fp string) string {
	sum := sha1.Sum([]byte(fp))
	return exactKeyPrefix + variant.String() + ":" + hex.EncodeToString(sum[:])
}

func logPrefix(variant models.Variant) string {
	return logKeyPrefix + variant.String() + ":"
}

func logKey(variant models.Variant, record *models.AnalysisRecord) string {
	// Record ID suffix keeps racing writes within the same nanosecond from
	// overwriting each other.
	return fmt.Sprintf("%s%020d:%s", logPrefix(variant), record.ProducedAt.UnixNano(), record.ID)
}

// Ensure Service implements CacheInspector
var _ interfaces.CacheInspector = (*Service)(nil)
