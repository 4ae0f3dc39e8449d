package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ternarybob/macropulse/internal/models"
)

// systemPrompt frames the model as a macro analyst and pins the output
// contract to strict JSON.
const systemPrompt = `You are a macro market analyst. You are given current readings ` +
	`for a fixed set of macro indicators. Respond with a single JSON object and ` +
	`nothing else, using exactly these fields: ` +
	`"sentiment" (one of "bullish", "bearish", "neutral", "mixed"), ` +
	`"reasoning" (2-4 sentences of analysis grounded in the readings), ` +
	`"risks" (array of 2-5 short risk statements). Do not wrap the JSON in markdown.`

// indicatorLabels maps indicator IDs to display names used in the prompt.
var indicatorLabels = map[string]string{
	"treasury_10y": "US 10Y Treasury Yield (%)",
	"treasury_2y":  "US 2Y Treasury Yield (%)",
	"dxy":          "US Dollar Index",
	"sp500":        "S&P 500",
	"nasdaq":       "Nasdaq Composite",
	"gold":         "Gold (USD/oz)",
	"wti":          "WTI Crude (USD/bbl)",
	"vix":          "VIX",
	"btc":          "Bitcoin (USD)",
	"cpi_yoy":      "CPI YoY (%)",
	"unemployment": "Unemployment Rate (%)",
}

// buildPrompt renders the snapshot as a stable, sorted indicator listing.
func buildPrompt(snapshot models.IndicatorSnapshot) string {
	ids := make([]string, 0, len(snapshot.Values))
	for id := range snapshot.Values {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	b.WriteString("Current market indicator readings")
	if !snapshot.CapturedAt.IsZero() {
		b.WriteString(" as of ")
		b.WriteString(snapshot.CapturedAt.Format("2006-01-02 15:04 MST"))
	}
	b.WriteString(":\n\n")

	for _, id := range ids {
		label := indicatorLabels[id]
		if label == "" {
			label = id
		}
		b.WriteString(fmt.Sprintf("- %s: %s\n", label, strconv.FormatFloat(snapshot.Values[id], 'f', -1, 64)))
	}

	b.WriteString("\nProvide your market commentary as JSON.")
	return b.String()
}

// commentaryPayload is the expected provider response shape.
type commentaryPayload struct {
	Sentiment string   `json:"sentiment"`
	Reasoning string   `json:"reasoning"`
	Risks     []string `json:"risks"`
}

// parseCommentary decodes a provider response into a Commentary, tolerating
// markdown code fences some models emit despite instructions.
func parseCommentary(text string) (*models.Commentary, error) {
	cleaned := stripCodeFences(text)

	var payload commentaryPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse commentary response: %w", err)
	}

	sentiment, err := models.ParseSentiment(payload.Sentiment)
	if err != nil {
		return nil, fmt.Errorf("invalid commentary response: %w", err)
	}
	if payload.Reasoning == "" {
		return nil, fmt.Errorf("invalid commentary response: empty reasoning")
	}

	return &models.Commentary{
		Sentiment: sentiment,
		Reasoning: payload.Reasoning,
		Risks:     payload.Risks,
	}, nil
}

// stripCodeFences removes a surrounding ```json ... ``` block if present.
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
