package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/civicrag/internal/apperrors"
	"github.com/hyperjump/civicrag/internal/models"
	"github.com/hyperjump/civicrag/pkg/utils"
)

const (
	defaultAssessTimeout = 20 * time.Second
	defaultRisk          = 0.5
	defaultCategory      = "General"
	defaultSummary       = "Analysis completed"
	maxTags              = 10
)

// LLM completes a single-turn prompt. The intent package's OpenAI and Anthropic clients
// implement it.
type LLM interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Name() string
}

const assessSystemPrompt = `You are an expert municipal complaint analyst for New York City.
You assess 311 service complaints for urgency and route them to a service area.

Answer with a single JSON object and nothing else:
{"risk_score": 0.0, "category": "...", "summary": "...", "tags": ["...", "..."]}

risk_score is between 0 and 1:
- 0.9-1.0: critical or emergency (gas leaks, structural damage, immediate danger)
- 0.7-0.8: high priority (water outages, heat issues, traffic hazards)
- 0.4-0.6: medium priority (street conditions, sanitation issues)
- 0.0-0.3: low priority (noise complaints, minor parking violations)

category is one of "Infrastructure", "Transportation", "Quality of Life", "Public Health",
"Public Safety".

summary is two or three sentences naming the issue and the recommended response.
tags are three to five short keywords for search and filtering.`

// assessExample is one worked answer shown to the model.
type assessExample struct {
	complaint string
	answer    string
}

var (
	highRiskExamples = []assessExample{
		{"Type: Gas Leak. Description: strong gas odor in hallway. Location: BROOKLYN",
			`{"risk_score": 0.95, "category": "Public Safety", "summary": "Possible gas leak inside a residential building. Dispatch the utility emergency crew and evacuate if the odor persists.", "tags": ["gas", "leak", "emergency", "residential"]}`},
		{"Type: Building Construction. Description: scaffolding collapsing. Location: MANHATTAN",
			`{"risk_score": 0.9, "category": "Infrastructure", "summary": "Unsafe scaffolding at an active construction site. Inspect immediately and close the sidewalk below.", "tags": ["scaffolding", "structural", "construction"]}`},
	}
	mediumRiskExamples = []assessExample{
		{"Type: HEAT/HOT WATER. Description: entire building no heat. Location: BRONX",
			`{"risk_score": 0.75, "category": "Infrastructure", "summary": "Building-wide heat outage. Contact the landlord and schedule an HPD inspection.", "tags": ["heat", "outage", "residential"]}`},
		{"Type: Traffic Signal Condition. Description: signal dark at intersection. Location: QUEENS",
			`{"risk_score": 0.7, "category": "Transportation", "summary": "Traffic signal out at an intersection. Send a signal repair crew and request traffic control.", "tags": ["traffic", "signal", "intersection"]}`},
	}
	generalExamples = []assessExample{
		{"Type: Noise - Residential. Description: loud music at night. Location: BROOKLYN",
			`{"risk_score": 0.2, "category": "Quality of Life", "summary": "Late night music from a neighboring apartment. Refer to the precinct for a noise check.", "tags": ["noise", "music", "night"]}`},
		{"Type: Street Condition. Description: pothole. Location: STATEN ISLAND",
			`{"risk_score": 0.5, "category": "Transportation", "summary": "Pothole on a city street. Schedule a DOT repair crew.", "tags": ["pothole", "street", "repair"]}`},
		{"Type: Dirty Conditions. Description: overflowing litter basket. Location: MANHATTAN",
			`{"risk_score": 0.4, "category": "Public Health", "summary": "Overflowing public litter basket. Add the corner to the next sanitation pickup.", "tags": ["sanitation", "litter", "pickup"]}`},
	}
)

// examplesFor picks worked answers close to the complaint's likely risk.
func examplesFor(complaintType string) []assessExample {
	t := strings.ToLower(complaintType)
	for _, kw := range []string{"gas", "leak", "emergency", "structural"} {
		if strings.Contains(t, kw) {
			return highRiskExamples
		}
	}
	for _, kw := range []string{"water", "heat", "traffic"} {
		if strings.Contains(t, kw) {
			return mediumRiskExamples
		}
	}
	return generalExamples
}

// Assessor scores complaints for risk and categorizes them with an LLM.
type Assessor struct {
	llm     LLM
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// AssessorOption configures an Assessor.
type AssessorOption func(*Assessor)

// WithAssessTimeout bounds each LLM call.
func WithAssessTimeout(d time.Duration) AssessorOption {
	return func(a *Assessor) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithAssessorLogger sets the logger.
func WithAssessorLogger(l *zap.Logger) AssessorOption {
	return func(a *Assessor) { a.logger = utils.LoggerOrNop(l) }
}

// NewAssessor creates an Assessor over llm.
func NewAssessor(llm LLM, opts ...AssessorOption) *Assessor {
	a := &Assessor{llm: llm, timeout: defaultAssessTimeout, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assess asks the LLM to analyze c. A reply that is not usable JSON yields a fallback analysis
// built from keywords in the reply. Only a failed LLM call returns an error.
func (a *Assessor) Assess(ctx context.Context, c *models.Complaint) (*models.ComplaintAnalysis, error) {
	if c == nil {
		return nil, apperrors.NewValidationError("complaint", "is required")
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	raw, err := a.llm.Complete(ctx, systemWithExamples(c.ComplaintType), assessPrompt(c))
	if err != nil {
		return nil, fmt.Errorf("complaint analysis via %s: %w", a.llm.Name(), err)
	}

	analysis, perr := parseAssessment(raw)
	if perr != nil {
		a.logger.Warn("complaint analysis reply unusable, using fallback",
			zap.String("complaint_id", c.ID),
			zap.String("provider", a.llm.Name()),
			zap.Error(perr))
		analysis = fallbackAssessment(raw)
	}
	analysis.ComplaintID = c.ID
	analysis.Model = a.llm.Name()
	analysis.CreatedAt = a.now().UTC()

	a.logger.Debug("complaint analyzed",
		zap.String("complaint_id", c.ID),
		zap.Float64("risk_score", analysis.RiskScore),
		zap.String("category", analysis.Category),
		zap.String("method", analysis.Method),
		zap.Duration("took", time.Since(start)))
	return analysis, nil
}

func systemWithExamples(complaintType string) string {
	var b strings.Builder
	b.WriteString(assessSystemPrompt)
	b.WriteString("\n\nExamples:")
	for _, ex := range examplesFor(complaintType) {
		b.WriteString("\n")
		b.WriteString(ex.complaint)
		b.WriteString("\n")
		b.WriteString(ex.answer)
	}
	return b.String()
}

func assessPrompt(c *models.Complaint) string {
	field := func(v, missing string) string {
		if v = utils.CollapseWhitespace(v); v != "" {
			return v
		}
		return missing
	}
	submitted := "Unknown"
	if !c.SubmittedAt.IsZero() {
		submitted = c.SubmittedAt.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("Type: %s\nDescription: %s\nLocation: %s\nResponsible Agency: %s\nSubmitted: %s",
		field(c.ComplaintType, "Unknown"),
		field(c.Descriptor, "No description"),
		field(c.Location(), "Unknown"),
		field(c.Organization(), "Unknown"),
		submitted)
}

type assessAnswer struct {
	RiskScore any   `json:"risk_score"`
	Category  any   `json:"category"`
	Summary   any   `json:"summary"`
	Tags      []any `json:"tags"`
}

// parseAssessment extracts the outermost JSON object from raw and normalizes its fields.
func parseAssessment(raw string) (*models.ComplaintAnalysis, error) {
	body := strings.TrimSpace(raw)
	start, end := strings.IndexByte(body, '{'), strings.LastIndexByte(body, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in reply")
	}
	var ans assessAnswer
	if err := json.Unmarshal([]byte(body[start:end+1]), &ans); err != nil {
		return nil, err
	}

	out := &models.ComplaintAnalysis{
		RiskScore: riskOf(ans.RiskScore),
		Category:  textOr(ans.Category, defaultCategory),
		Summary:   textOr(ans.Summary, defaultSummary),
		Tags:      []string{},
		Method:    models.AnalysisMethodLLM,
	}
	for _, t := range ans.Tags {
		if t == nil || len(out.Tags) >= maxTags {
			continue
		}
		if s := strings.TrimSpace(fmt.Sprint(t)); s != "" {
			out.Tags = append(out.Tags, s)
		}
	}
	return out, nil
}

// riskOf accepts a number or a numeric string, clamped to [0,1]. Anything else is medium risk.
func riskOf(v any) float64 {
	switch r := v.(type) {
	case float64:
		return utils.Clamp01(r)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(r), 64); err == nil {
			return utils.Clamp01(f)
		}
	}
	return defaultRisk
}

func textOr(v any, fallback string) string {
	if v == nil {
		return fallback
	}
	if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
		return utils.Truncate(s, 1000)
	}
	return fallback
}

// fallbackAssessment guesses risk and category from keywords in an unusable reply.
func fallbackAssessment(raw string) *models.ComplaintAnalysis {
	lower := strings.ToLower(raw)
	out := &models.ComplaintAnalysis{
		RiskScore: defaultRisk,
		Category:  defaultCategory,
		Summary:   "Fallback analysis: " + utils.Truncate(utils.CollapseWhitespace(raw), 100),
		Tags:      []string{"fallback", "needs-review"},
		Method:    models.AnalysisMethodFallback,
	}
	switch {
	case containsAny(lower, "emergency", "critical", "urgent", "danger"):
		out.RiskScore = 0.8
		out.Category = "Public Safety"
	case containsAny(lower, "infrastructure", "water", "gas", "structural"):
		out.RiskScore = 0.6
		out.Category = "Infrastructure"
	}
	return out
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
