package common

import (
	"context"
	"fmt"
	"os"

	"github.com/ternarybob/macropulse/internal/interfaces"
)

// ResolveAPIKey resolves an API key by name. Priority order: environment
// variable, KV storage, config fallback. Returns an error when no source
// yields a non-empty value.
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"anthropic_api_key":   {"MACROPULSE_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"gemini_api_key":      {"MACROPULSE_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"market_data_api_key": {"MACROPULSE_MARKET_DATA_API_KEY"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}
