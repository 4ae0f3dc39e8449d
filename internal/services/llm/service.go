// Package llm generates market commentary through the configured AI
// providers. Each analysis variant maps to one provider: claude to
// Anthropic, gemini to Google. Quota exhaustion is classified and wrapped
// with models.ErrQuotaExceeded so the orchestration layer can branch to the
// similarity fallback.
package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/macropulse/internal/common"
	"github.com/ternarybob/macropulse/internal/interfaces"
	"github.com/ternarybob/macropulse/internal/models"
	"google.golang.org/genai"
)

const (
	// maxRetries bounds retries for transient provider failures. Quota
	// errors are never retried here; they surface immediately so the
	// caller can fall back.
	maxRetries = 2
)

// Service implements interfaces.CommentaryProvider over Anthropic and
// Google clients, created lazily on first use.
type Service struct {
	claudeConfig *common.ClaudeConfig
	geminiConfig *common.GeminiConfig
	kvStorage    interfaces.KeyValueStorage
	logger       arbor.ILogger

	mu           sync.Mutex
	claudeClient anthropic.Client
	claudeReady  bool
	geminiClient *genai.Client
}

// NewService creates a new commentary provider service.
func NewService(claudeConfig *common.ClaudeConfig, geminiConfig *common.GeminiConfig, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) *Service {
	return &Service{
		claudeConfig: claudeConfig,
		geminiConfig: geminiConfig,
		kvStorage:    kvStorage,
		logger:       logger,
	}
}

// Generate produces structured commentary for the snapshot using the
// variant's provider.
func (s *Service) Generate(ctx context.Context, variant models.Variant, snapshot models.IndicatorSnapshot) (*models.Commentary, error) {
	prompt := buildPrompt(snapshot)

	s.logger.Debug().
		Str("variant", variant.String()).
		Int("indicators", len(snapshot.Values)).
		Msg("Generating commentary")

	switch variant {
	case models.VariantClaude:
		return s.generateWithClaude(ctx, prompt)
	case models.VariantGemini:
		return s.generateWithGemini(ctx, prompt)
	default:
		return nil, fmt.Errorf("unknown analysis variant: %q", variant)
	}
}

// getClaudeClient returns the Anthropic client, creating it on first use.
func (s *Service) getClaudeClient(ctx context.Context) (anthropic.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claudeReady {
		return s.claudeClient, nil
	}

	apiKey, err := common.ResolveAPIKey(ctx, s.kvStorage, "anthropic_api_key", s.claudeConfig.APIKey)
	if err != nil {
		return anthropic.Client{}, fmt.Errorf("failed to resolve Anthropic API key: %w", err)
	}

	s.claudeClient = anthropic.NewClient(option.WithAPIKey(apiKey))
	s.claudeReady = true
	return s.claudeClient, nil
}

// getGeminiClient returns the Gemini client, creating it on first use.
func (s *Service) getGeminiClient(ctx context.Context) (*genai.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.geminiClient != nil {
		return s.geminiClient, nil
	}

	apiKey, err := common.ResolveAPIKey(ctx, s.kvStorage, "gemini_api_key", s.geminiConfig.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Gemini API key: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	s.geminiClient = client
	return client, nil
}

// generateWithClaude calls the Anthropic API and parses the commentary.
func (s *Service) generateWithClaude(ctx context.Context, prompt string) (*models.Commentary, error) {
	client, err := s.getClaudeClient(ctx)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.claudeConfig.Model),
		MaxTokens: int64(s.claudeConfig.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
	}
	if s.claudeConfig.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(s.claudeConfig.Temperature))
	}

	var resp *anthropic.Message
	var apiErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, apiErr = client.Messages.New(ctx, params)
		if apiErr == nil {
			break
		}
		if IsQuotaError(apiErr) {
			return nil, fmt.Errorf("%w: anthropic: %v", models.ErrQuotaExceeded, apiErr)
		}
		if attempt == maxRetries {
			break
		}

		backoff := time.Duration(attempt+1) * 2 * time.Second
		s.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying Claude API call")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if apiErr != nil {
		return nil, fmt.Errorf("Claude API call failed after %d retries: %w", maxRetries, apiErr)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from Claude API")
	}

	commentary, err := parseCommentary(text.String())
	if err != nil {
		return nil, err
	}
	commentary.Model = s.claudeConfig.Model
	return commentary, nil
}

// generateWithGemini calls the Gemini API with a JSON response constraint
// and parses the commentary.
func (s *Service) generateWithGemini(ctx context.Context, prompt string) (*models.Commentary, error) {
	client, err := s.getGeminiClient(ctx)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(s.geminiConfig.Temperature),
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	var resp *genai.GenerateContentResponse
	var apiErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, apiErr = client.Models.GenerateContent(ctx, s.geminiConfig.Model, contents, config)
		if apiErr == nil {
			break
		}
		if IsQuotaError(apiErr) {
			return nil, fmt.Errorf("%w: gemini: %v", models.ErrQuotaExceeded, apiErr)
		}
		if attempt == maxRetries {
			break
		}

		backoff := time.Duration(attempt+1) * 2 * time.Second
		s.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying Gemini API call")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if apiErr != nil {
		return nil, fmt.Errorf("Gemini API call failed after %d retries: %w", maxRetries, apiErr)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from Gemini API")
	}
	responseText := resp.Text()
	if responseText == "" {
		return nil, fmt.Errorf("empty text in Gemini response")
	}

	commentary, err := parseCommentary(responseText)
	if err != nil {
		return nil, err
	}
	commentary.Model = s.geminiConfig.Model
	return commentary, nil
}

// Close releases provider clients.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claudeClient = anthropic.Client{}
	s.claudeReady = false
	s.geminiClient = nil
	return nil
}

// Ensure Service implements CommentaryProvider
var _ interfaces.CommentaryProvider = (*Service)(nil)
