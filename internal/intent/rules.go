// Package intent classifies questions about civic complaints into search, statistical
// or conversational intents, with an LLM path and a deterministic rule fallback.
package intent

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/civicrag/internal/apperrors"
	"github.com/hyperjump/civicrag/internal/models"
)

// PhraseRule maps a phrase to a parameter value.
type PhraseRule struct {
	Phrase string `yaml:"phrase"`
	Value  string `yaml:"value"`
}

// CategoryRule maps keywords to a complaint category. The category is matched
// against complaint types with a case-insensitive contains.
type CategoryRule struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// BoroughRule maps a spoken name to a borough.
type BoroughRule struct {
	Name    string `yaml:"name"`
	Borough string `yaml:"borough"`
}

// RuleSet holds the word lists used by the rule-based classifier. Phrases match
// on whole words, case-insensitively. Order matters wherever the first match wins.
type RuleSet struct {
	NegativePatterns   []string       `yaml:"negative_patterns"`
	StatisticalPhrases []string       `yaml:"statistical_phrases"`
	DomainVocabulary   []string       `yaml:"domain_vocabulary"`
	SearchPhrases      []string       `yaml:"search_phrases"`
	Boroughs           []BoroughRule  `yaml:"boroughs"`
	Categories         []CategoryRule `yaml:"categories"`
	UrgencyKeywords    []string       `yaml:"urgency_keywords"`
	GroupBy            []PhraseRule   `yaml:"group_by"`
	TimeFilters        []PhraseRule   `yaml:"time_filters"`
}

// DefaultRules returns the built-in English rule set.
func DefaultRules() *RuleSet {
	return &RuleSet{
		NegativePatterns: []string{
			"has been added", "have been added", "was added", "were added",
			"has been removed", "have been removed", "was removed",
			"has been deleted", "was deleted",
			"add a user", "add a new user", "remove a user",
			"create an account", "reset my password",
		},
		StatisticalPhrases: []string{
			"how many", "number of", "count", "most", "least", "top",
			"highest", "lowest", "breakdown", "break down", "statistics", "stats",
			"trend", "trends", "distribution", "percentage", "average", "total", "compare",
		},
		DomainVocabulary: []string{
			"complaint", "complaints", "report", "reports", "request", "requests",
			"issue", "issues", "311", "service request", "incident", "incidents",
			"agency", "agencies", "department", "borough", "boroughs", "category", "categories",
		},
		SearchPhrases: []string{
			"show", "find", "search", "list", "look up", "lookup", "display", "get",
			"are there", "is there", "any", "what are", "which", "where",
			"complaints about", "recent", "open complaints", "high risk", "escalated", "resolved",
		},
		Boroughs: []BoroughRule{
			{Name: "manhattan", Borough: string(models.BoroughManhattan)},
			{Name: "brooklyn", Borough: string(models.BoroughBrooklyn)},
			{Name: "queens", Borough: string(models.BoroughQueens)},
			{Name: "bronx", Borough: string(models.BoroughBronx)},
			{Name: "staten island", Borough: string(models.BoroughStatenIsland)},
		},
		Categories: []CategoryRule{
			{Category: "Noise", Keywords: []string{"noise", "noisy", "loud", "music", "party", "barking"}},
			{Category: "Heat", Keywords: []string{"heat", "heating", "hot water", "radiator", "boiler"}},
			{Category: "Water", Keywords: []string{"water", "leak", "leaking", "flood", "flooding", "pipe", "hydrant", "sewer"}},
			{Category: "Parking", Keywords: []string{"parking", "parked", "driveway", "double parked"}},
			{Category: "Sanitation", Keywords: []string{"trash", "garbage", "litter", "rats", "rodent", "rodents", "dirty"}},
			{Category: "Street", Keywords: []string{"street", "pothole", "potholes", "sidewalk", "road"}},
		},
		UrgencyKeywords: []string{
			"urgent", "emergency", "dangerous", "danger", "hazard", "hazardous",
			"critical", "severe", "high risk", "unsafe", "immediate", "life threatening",
		},
		GroupBy: []PhraseRule{
			{Phrase: "by borough", Value: string(models.GroupByBorough)},
			{Phrase: "per borough", Value: string(models.GroupByBorough)},
			{Phrase: "each borough", Value: string(models.GroupByBorough)},
			{Phrase: "which borough", Value: string(models.GroupByBorough)},
			{Phrase: "by agency", Value: string(models.GroupByAgency)},
			{Phrase: "per agency", Value: string(models.GroupByAgency)},
			{Phrase: "which agency", Value: string(models.GroupByAgency)},
			{Phrase: "by status", Value: string(models.GroupByStatus)},
			{Phrase: "by month", Value: string(models.GroupByMonth)},
			{Phrase: "per month", Value: string(models.GroupByMonth)},
			{Phrase: "monthly", Value: string(models.GroupByMonth)},
			{Phrase: "by type", Value: string(models.GroupByComplaintType)},
			{Phrase: "by category", Value: string(models.GroupByComplaintType)},
			{Phrase: "most common", Value: string(models.GroupByComplaintType)},
		},
		TimeFilters: []PhraseRule{
			{Phrase: "today", Value: string(models.TimeToday)},
			{Phrase: "yesterday", Value: string(models.TimeYesterday)},
			{Phrase: "this week", Value: string(models.TimeWeek)},
			{Phrase: "last week", Value: string(models.TimeWeek)},
			{Phrase: "past week", Value: string(models.TimeWeek)},
			{Phrase: "this month", Value: string(models.TimeMonth)},
			{Phrase: "last month", Value: string(models.TimeMonth)},
			{Phrase: "past month", Value: string(models.TimeMonth)},
			{Phrase: "this year", Value: string(models.TimeYear)},
			{Phrase: "last year", Value: string(models.TimeYear)},
			{Phrase: "past year", Value: string(models.TimeYear)},
			{Phrase: "recent", Value: string(models.TimeWeek)},
			{Phrase: "recently", Value: string(models.TimeWeek)},
		},
	}
}

// LoadRules reads a YAML rule file. Sections missing from the file keep their defaults.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	var loaded RuleSet
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	rules := loaded.withDefaults(DefaultRules())
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return rules, nil
}

func (r RuleSet) withDefaults(d *RuleSet) *RuleSet {
	if len(r.NegativePatterns) == 0 {
		r.NegativePatterns = d.NegativePatterns
	}
	if len(r.StatisticalPhrases) == 0 {
		r.StatisticalPhrases = d.StatisticalPhrases
	}
	if len(r.DomainVocabulary) == 0 {
		r.DomainVocabulary = d.DomainVocabulary
	}
	if len(r.SearchPhrases) == 0 {
		r.SearchPhrases = d.SearchPhrases
	}
	if len(r.Boroughs) == 0 {
		r.Boroughs = d.Boroughs
	}
	if len(r.Categories) == 0 {
		r.Categories = d.Categories
	}
	if len(r.UrgencyKeywords) == 0 {
		r.UrgencyKeywords = d.UrgencyKeywords
	}
	if len(r.GroupBy) == 0 {
		r.GroupBy = d.GroupBy
	}
	if len(r.TimeFilters) == 0 {
		r.TimeFilters = d.TimeFilters
	}
	return &r
}

// Validate checks that every mapped value parses into its typed enum.
func (r *RuleSet) Validate() error {
	for i, b := range r.Boroughs {
		if _, ok := models.ParseBorough(b.Borough); !ok {
			return apperrors.NewConfigurationError(fmt.Sprintf("boroughs[%d].borough", i), fmt.Sprintf("unknown borough %q", b.Borough))
		}
	}
	for i, c := range r.Categories {
		if strings.TrimSpace(c.Category) == "" {
			return apperrors.NewConfigurationError(fmt.Sprintf("categories[%d].category", i), "must not be empty")
		}
	}
	for i, g := range r.GroupBy {
		if _, ok := models.ParseGroupBy(g.Value); !ok {
			return apperrors.NewConfigurationError(fmt.Sprintf("group_by[%d].value", i), fmt.Sprintf("unknown grouping %q", g.Value))
		}
	}
	for i, t := range r.TimeFilters {
		if _, ok := models.ParseTimeFilter(t.Value); !ok {
			return apperrors.NewConfigurationError(fmt.Sprintf("time_filters[%d].value", i), fmt.Sprintf("unknown time filter %q", t.Value))
		}
	}
	return nil
}

// words splits s into lowercase letter/digit runs.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsPhrase reports whether phrase occurs in text as a run of whole words.
func containsPhrase(text []string, phrase string) bool {
	p := words(phrase)
	if len(p) == 0 || len(p) > len(text) {
		return false
	}
	for i := 0; i+len(p) <= len(text); i++ {
		match := true
		for j := range p {
			if text[i+j] != p[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func firstPhrase(text []string, phrases []string) (string, bool) {
	for _, p := range phrases {
		if containsPhrase(text, p) {
			return p, true
		}
	}
	return "", false
}

// extract scans text for parameters. Each scan is independent of the others.
func (r *RuleSet) extract(text []string) models.IntentParameters {
	var p models.IntentParameters
	for _, b := range r.Boroughs {
		if containsPhrase(text, b.Name) {
			p.Borough, _ = models.ParseBorough(b.Borough)
			break
		}
	}
	for _, c := range r.Categories {
		if _, ok := firstPhrase(text, c.Keywords); ok {
			p.ComplaintType = c.Category
			break
		}
	}
	if _, ok := firstPhrase(text, r.UrgencyKeywords); ok {
		p.RiskLevel = models.RiskHigh
	}
	for _, g := range r.GroupBy {
		if containsPhrase(text, g.Phrase) {
			p.GroupBy, _ = models.ParseGroupBy(g.Value)
			break
		}
	}
	for _, t := range r.TimeFilters {
		if containsPhrase(text, t.Phrase) {
			p.TimeFilter, _ = models.ParseTimeFilter(t.Value)
			break
		}
	}
	return p
}
