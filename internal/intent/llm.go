package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperjump/civicrag/internal/apperrors"
	"github.com/hyperjump/civicrag/internal/models"
	"github.com/hyperjump/civicrag/pkg/utils"
)

// LLM completes a single-turn prompt.
type LLM interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Name() string
}

const systemPrompt = `You classify questions about New York City 311 service complaints.

Answer with a single JSON object and nothing else:
{"intent": "...", "parameters": {...}, "confidence": 0.0, "reasoning": "..."}

intent is one of:
- "statistical_analysis": counts, rankings, trends or breakdowns of complaints
- "search_complaints": finding or listing specific complaints
- "general_conversation": greetings, help, or anything not about complaint data

parameters may contain, only when the question states them:
- "complaint_type": a short category such as "Noise", "Heat", "Water", "Parking"
- "borough": one of "MANHATTAN", "BROOKLYN", "QUEENS", "BRONX", "STATEN ISLAND"
- "risk_level": one of "low", "medium", "high"
- "time_filter": one of "today", "yesterday", "week", "month", "year"
- "group_by": one of "borough", "complaint_type", "agency", "status", "month"

confidence is between 0 and 1.

Examples:
Q: Which borough has the most noise complaints?
{"intent": "statistical_analysis", "parameters": {"complaint_type": "Noise", "group_by": "borough"}, "confidence": 0.95, "reasoning": "ranking boroughs by count"}
Q: Show me urgent heating complaints in the Bronx from last week
{"intent": "search_complaints", "parameters": {"complaint_type": "Heat", "borough": "BRONX", "risk_level": "high", "time_filter": "week"}, "confidence": 0.9, "reasoning": "listing specific complaints"}
Q: Hi, what can you do?
{"intent": "general_conversation", "parameters": {}, "confidence": 0.9, "reasoning": "greeting"}`

const defaultLLMConfidence = 0.7

type llmParameters struct {
	ComplaintType string `json:"complaint_type"`
	Borough       string `json:"borough"`
	RiskLevel     string `json:"risk_level"`
	TimeFilter    string `json:"time_filter"`
	GroupBy       string `json:"group_by"`
}

type llmAnswer struct {
	Intent     string        `json:"intent"`
	Parameters llmParameters `json:"parameters"`
	Confidence *float64      `json:"confidence"`
	Reasoning  string        `json:"reasoning"`
}

// parseAnswer decodes an LLM reply into an intent. The reply must be exactly one JSON
// object, optionally wrapped in a markdown code fence.
func parseAnswer(provider, raw string) (models.QueryIntent, error) {
	body := stripCodeFence(raw)
	if body == "" {
		return models.QueryIntent{}, apperrors.NewMalformedResponse(provider, "empty response", nil)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	var ans llmAnswer
	if err := dec.Decode(&ans); err != nil {
		return models.QueryIntent{}, apperrors.NewMalformedResponse(provider, "response is not a JSON object", err)
	}
	if dec.More() {
		return models.QueryIntent{}, apperrors.NewMalformedResponse(provider, "trailing data after JSON object", nil)
	}

	kind, ok := models.ParseIntentKind(ans.Intent)
	if !ok {
		return models.QueryIntent{}, apperrors.NewMalformedResponse(provider, fmt.Sprintf("unknown intent %q", ans.Intent), nil)
	}

	confidence := defaultLLMConfidence
	if ans.Confidence != nil {
		confidence = utils.Clamp01(*ans.Confidence)
	}
	return models.QueryIntent{
		Kind:       kind,
		Parameters: ans.Parameters.validate(),
		Confidence: confidence,
		Reasoning:  utils.Truncate(strings.TrimSpace(ans.Reasoning), 500),
		Source:     models.IntentSourceLLM,
	}, nil
}

// validate keeps only values that parse into their typed enums.
func (p llmParameters) validate() models.IntentParameters {
	var out models.IntentParameters
	if ct := strings.TrimSpace(p.ComplaintType); ct != "" && len(ct) <= 100 {
		out.ComplaintType = ct
	}
	out.Borough, _ = models.ParseBorough(p.Borough)
	out.RiskLevel, _ = models.ParseRiskLevel(p.RiskLevel)
	out.TimeFilter, _ = models.ParseTimeFilter(p.TimeFilter)
	out.GroupBy, _ = models.ParseGroupBy(p.GroupBy)
	return out
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
