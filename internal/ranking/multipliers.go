package ranking

import (
	"strings"
	"time"
)

// CategoryBonus adds a fixed bonus when a key term occurs in the complaint type.
type CategoryBonus struct {
	config *RerankConfig
}

// NewCategoryBonus creates a new CategoryBonus.
func NewCategoryBonus(config *RerankConfig) *CategoryBonus {
	return &CategoryBonus{config: config}
}

// Name returns the multiplier name.
func (m *CategoryBonus) Name() string {
	return "category"
}

// Multiply adds the category bonus to the base score.
func (m *CategoryBonus) Multiply(ctx *ScoringContext, baseScore float64) float64 {
	if ctx.Complaint == nil || ctx.Query == nil {
		return baseScore
	}
	category := strings.ToLower(ctx.Complaint.ComplaintType)
	if category == "" {
		return baseScore
	}
	for _, tok := range categoryTokens(ctx.Query) {
		if strings.Contains(category, tok) {
			return baseScore + m.config.CategoryBonus
		}
	}
	return baseScore
}

// categoryTokens are the key terms and phrases. Stopwords are left out so "in" does not
// match "Building".
func categoryTokens(q *AnalyzedQuery) []string {
	return append(append([]string{}, q.Terms...), q.Phrases...)
}

// HighRiskBonus adds a fixed bonus to complaints scored above the high-risk threshold.
type HighRiskBonus struct {
	config *RerankConfig
}

// NewHighRiskBonus creates a new HighRiskBonus.
func NewHighRiskBonus(config *RerankConfig) *HighRiskBonus {
	return &HighRiskBonus{config: config}
}

// Name returns the multiplier name.
func (m *HighRiskBonus) Name() string {
	return "high_risk"
}

// Multiply adds the risk bonus to the base score. Unscored complaints get nothing.
func (m *HighRiskBonus) Multiply(ctx *ScoringContext, baseScore float64) float64 {
	if ctx.Complaint == nil || ctx.Complaint.RiskScore == nil {
		return baseScore
	}
	if *ctx.Complaint.RiskScore > m.config.HighRiskThreshold {
		return baseScore + m.config.HighRiskBonus
	}
	return baseScore
}

// RecencyMultiplier applies a boost based on how recently the complaint was submitted.
type RecencyMultiplier struct {
	config *RerankConfig
}

// NewRecencyMultiplier creates a new RecencyMultiplier.
func NewRecencyMultiplier(config *RerankConfig) *RecencyMultiplier {
	return &RecencyMultiplier{config: config}
}

// Name returns the multiplier name.
func (m *RecencyMultiplier) Name() string {
	return "recency"
}

// Multiply applies the recency multiplier to the base score.
func (m *RecencyMultiplier) Multiply(ctx *ScoringContext, baseScore float64) float64 {
	if !m.config.RecencyEnabled || baseScore == 0 || ctx.Complaint == nil {
		return baseScore
	}
	submitted := ctx.Complaint.SubmittedAt
	if submitted.IsZero() {
		return baseScore
	}
	now := ctx.Now
	if now.IsZero() {
		now = time.Now()
	}
	return baseScore * m.calculateMultiplier(now.Sub(submitted))
}

// calculateMultiplier calculates the recency multiplier for a complaint of the given age.
func (m *RecencyMultiplier) calculateMultiplier(age time.Duration) float64 {
	switch {
	case age < 0:
		// Clock skew between the importer and this host.
		return m.config.Recency24hMultiplier
	case age < 24*time.Hour:
		return m.config.Recency24hMultiplier
	case age < 7*24*time.Hour:
		return m.config.RecencyWeekMultiplier
	case age < 30*24*time.Hour:
		return m.config.RecencyMonthMultiplier
	}
	return 1.0
}

// DefaultMultipliers returns the multipliers enabled by config, bonuses first.
func DefaultMultipliers(config *RerankConfig) []Multiplier {
	var multipliers []Multiplier

	if config.CategoryBonus != 0 {
		multipliers = append(multipliers, NewCategoryBonus(config))
	}

	if config.HighRiskBonus != 0 {
		multipliers = append(multipliers, NewHighRiskBonus(config))
	}

	if config.RecencyEnabled {
		multipliers = append(multipliers, NewRecencyMultiplier(config))
	}

	return multipliers
}

// ApplyMultipliers applies a list of multipliers to a base score.
func ApplyMultipliers(ctx *ScoringContext, baseScore float64, multipliers []Multiplier) float64 {
	score := baseScore
	for _, m := range multipliers {
		score = m.Multiply(ctx, score)
	}
	return score
}

// ApplyMultipliersWithDetails applies multipliers and records what each one changed.
func ApplyMultipliersWithDetails(ctx *ScoringContext, baseScore float64, multipliers []Multiplier) *ScoreBreakdown {
	breakdown := &ScoreBreakdown{
		BaseScore:   baseScore,
		Multipliers: make(map[string]float64, len(multipliers)),
	}

	score := baseScore
	for _, m := range multipliers {
		prev := score
		score = m.Multiply(ctx, score)
		breakdown.Multipliers[m.Name()] = score - prev
	}

	breakdown.FinalScore = score
	return breakdown
}
