package models

import (
	"fmt"
	"time"
)

// Sentiment is the overall market read of an analysis.
type Sentiment string

const (
	SentimentBullish Sentiment = "bullish"
	SentimentBearish Sentiment = "bearish"
	SentimentNeutral Sentiment = "neutral"
	SentimentMixed   Sentiment = "mixed"
)

// Valid reports whether the sentiment is one of the known labels.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentBullish, SentimentBearish, SentimentNeutral, SentimentMixed:
		return true
	}
	return false
}

// ParseSentiment converts a string to a Sentiment, rejecting unknown labels.
func ParseSentiment(s string) (Sentiment, error) {
	v := Sentiment(s)
	if !v.Valid() {
		return "", fmt.Errorf("unknown sentiment: %q", s)
	}
	return v, nil
}

// Commentary is the raw structured output of a provider call, before it is
// wrapped into an AnalysisRecord with provenance metadata.
type Commentary struct {
	Sentiment Sentiment `json:"sentiment"`
	Reasoning string    `json:"reasoning"`
	Risks     []string  `json:"risks"`
	Model     string    `json:"model"`
}

// AnalysisRecord is the cached unit of value: a generated market commentary
// plus the provenance needed to retrieve it again, exactly or approximately.
type AnalysisRecord struct {
	ID          string    `json:"id"`
	Variant     Variant   `json:"variant"`
	Fingerprint string    `json:"fingerprint"`
	Sentiment   Sentiment `json:"sentiment"`
	Reasoning   string    `json:"reasoning"`
	Risks       []string  `json:"risks"`
	Model       string    `json:"model"`
	ProducedAt  time.Time `json:"produced_at"`

	// IsFallback marks a record served from the similarity fallback path so
	// callers can render a staleness warning. Never persisted as true.
	IsFallback   bool   `json:"is_fallback"`
	FallbackNote string `json:"fallback_note,omitempty"`
}

// Clone returns a copy of the record. Used when annotating fallback results
// so cached candidates are never mutated in place.
func (r *AnalysisRecord) Clone() *AnalysisRecord {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Risks = append([]string(nil), r.Risks...)
	return &clone
}

// Age returns how long ago the record was produced relative to now.
func (r *AnalysisRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.ProducedAt)
}
