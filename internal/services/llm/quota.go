package llm

import "strings"

// IsQuotaError checks if an error is a quota/rate-limit condition from
// either provider. Matches 429 status codes, Anthropic rate_limit_error
// payloads and Gemini RESOURCE_EXHAUSTED errors.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate_limit") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "resource_exhausted") ||
		strings.Contains(errStr, "quota")
}
