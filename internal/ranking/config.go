package ranking

// FieldWeights holds the contribution of each complaint field to relevance.
type FieldWeights struct {
	Category     float64 `yaml:"category"`     // default: 0.4
	Description  float64 `yaml:"description"`  // default: 0.3
	Location     float64 `yaml:"location"`     // default: 0.2
	Organization float64 `yaml:"organization"` // default: 0.1
}

// DefaultFieldWeights returns the default field weights.
func DefaultFieldWeights() FieldWeights {
	return FieldWeights{
		Category:     0.4,
		Description:  0.3,
		Location:     0.2,
		Organization: 0.1,
	}
}

// Weight returns the weight for f.
func (w FieldWeights) Weight(f Field) float64 {
	switch f {
	case FieldCategory:
		return w.Category
	case FieldDescription:
		return w.Description
	case FieldLocation:
		return w.Location
	case FieldOrganization:
		return w.Organization
	}
	return 0
}

// defaultStopwords are dropped from key terms.
var defaultStopwords = []string{
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for",
	"of", "with", "by", "is", "are", "was", "were", "be", "been", "have",
	"has", "had", "do", "does", "did", "will", "would", "could", "should",
	"may", "might", "can", "this", "that", "these", "those", "i", "you",
	"he", "she", "it", "we", "they", "me", "him", "her", "us", "them",
	"show", "find", "about", "any", "all", "complaints", "complaint",
}

// defaultExpansions maps a trigger substring to related 311 vocabulary.
var defaultExpansions = []struct {
	Trigger  string
	Synonyms []string
}{
	{"noise", []string{"loud", "sound", "music", "party", "construction"}},
	{"water", []string{"leak", "plumbing", "pipe", "flooding", "hydrant"}},
	{"heat", []string{"heating", "hot water", "boiler", "radiator"}},
	{"parking", []string{"car", "vehicle", "meter", "permit", "blocked driveway"}},
	{"trash", []string{"garbage", "waste", "sanitation", "pickup"}},
	{"street", []string{"road", "sidewalk", "pothole", "pavement"}},
}

// RerankConfig tunes the post-fusion reranking pass.
type RerankConfig struct {
	Enabled bool `yaml:"enabled"` // default: false

	// Bonuses added to the fused score
	CategoryBonus     float64 `yaml:"category_bonus"`      // default: 0.1
	HighRiskBonus     float64 `yaml:"high_risk_bonus"`     // default: 0.05
	HighRiskThreshold float64 `yaml:"high_risk_threshold"` // default: 0.7

	// Recency multiplier settings
	RecencyEnabled         bool    `yaml:"recency_enabled"`          // default: false
	Recency24hMultiplier   float64 `yaml:"recency_24h_multiplier"`   // default: 1.2
	RecencyWeekMultiplier  float64 `yaml:"recency_week_multiplier"`  // default: 1.1
	RecencyMonthMultiplier float64 `yaml:"recency_month_multiplier"` // default: 1.05

	// Near-duplicate suppression
	Diversity          bool    `yaml:"diversity"`           // default: true
	DiversityThreshold float64 `yaml:"diversity_threshold"` // default: 0.1
}

// DefaultRerankConfig returns the default rerank settings, disabled.
func DefaultRerankConfig() RerankConfig {
	return RerankConfig{
		CategoryBonus:          0.1,
		HighRiskBonus:          0.05,
		HighRiskThreshold:      0.7,
		Recency24hMultiplier:   1.2,
		RecencyWeekMultiplier:  1.1,
		RecencyMonthMultiplier: 1.05,
		Diversity:              true,
		DiversityThreshold:     0.1,
	}
}
