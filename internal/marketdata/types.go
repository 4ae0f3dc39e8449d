// Package marketdata provides a client for the EODHD (End of Day Historical
// Data) API and the indicator source that turns configured tickers into
// snapshots. This package centralizes all market data API interactions.
package marketdata

import (
	"fmt"
	"time"
)

// APIError represents an error from the market data API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("market data API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// RateLimitError represents a rate limit error.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("market data rate limit exceeded, retry after %v", e.RetryAfter)
}
