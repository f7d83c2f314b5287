package models

import (
	"strings"
	"time"
)

// Analysis methods.
const (
	AnalysisMethodLLM      = "llm"
	AnalysisMethodFallback = "fallback"
)

// ComplaintAnalysis is an LLM assessment of one complaint.
type ComplaintAnalysis struct {
	ComplaintID string    `json:"complaint_id"`
	RiskScore   float64   `json:"risk_score"`
	Category    string    `json:"category"`
	Summary     string    `json:"summary"`
	Tags        []string  `json:"tags"`
	Method      string    `json:"method"`
	Model       string    `json:"model,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Text renders the analysis for embedding under the analysis document type.
func (a *ComplaintAnalysis) Text() string {
	text := "Category: " + a.Category + ". Summary: " + a.Summary
	if len(a.Tags) > 0 {
		text += ". Tags: " + strings.Join(a.Tags, ", ")
	}
	return text
}

