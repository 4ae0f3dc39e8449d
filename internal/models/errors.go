package models

import (
	"errors"
	"fmt"
)

// ErrQuotaExceeded classifies a provider failure as quota/rate-limit
// exhaustion. It is the only provider error that triggers the similarity
// fallback path; callers test with errors.Is.
var ErrQuotaExceeded = errors.New("provider quota exceeded")

// ErrNoAnalysis is returned when the provider is quota-limited and the
// fallback log holds no usable candidate.
var ErrNoAnalysis = errors.New("no analysis available")

// MissingIndicatorError reports a snapshot that lacks an indicator required
// by the rounding table. It fails fast, before any store or provider call.
type MissingIndicatorError struct {
	ID string
}

func (e *MissingIndicatorError) Error() string {
	return fmt.Sprintf("snapshot missing required indicator %q", e.ID)
}

// IsMissingIndicator reports whether err is a MissingIndicatorError.
func IsMissingIndicator(err error) bool {
	var target *MissingIndicatorError
	return errors.As(err, &target)
}
