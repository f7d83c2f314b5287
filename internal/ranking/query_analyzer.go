package ranking

import (
	"regexp"
	"strings"
	"unicode"
)

var phraseRegex = regexp.MustCompile(`["']([^"']+)["']`)

// QueryAnalyzer analyzes search queries to extract key terms, phrases and expansions.
type QueryAnalyzer struct {
	stopwords  map[string]struct{}
	expansions []struct {
		Trigger  string
		Synonyms []string
	}
}

// NewQueryAnalyzer creates a QueryAnalyzer with the default stopwords and expansions.
func NewQueryAnalyzer() *QueryAnalyzer {
	sw := make(map[string]struct{}, len(defaultStopwords))
	for _, w := range defaultStopwords {
		sw[w] = struct{}{}
	}
	return &QueryAnalyzer{stopwords: sw, expansions: defaultExpansions}
}

// IsStopword reports whether w is ignored as a key term.
func (qa *QueryAnalyzer) IsStopword(w string) bool {
	_, ok := qa.stopwords[strings.ToLower(w)]
	return ok
}

// Analyze parses a query string and returns an AnalyzedQuery.
func (qa *QueryAnalyzer) Analyze(query string) *AnalyzedQuery {
	result := &AnalyzedQuery{
		Original:     query,
		Terms:        []string{},
		Phrases:      []string{},
		NegatedTerms: []string{},
	}

	remaining := qa.extractPhrases(query, result)
	qa.extractTerms(remaining, result)

	result.Normalized = strings.Join(strings.Fields(strings.ToLower(strings.NewReplacer(`"`, " ", `'`, " ").Replace(query))), " ")
	result.Expansions = qa.expand(result.Normalized, result.Terms)
	result.QueryType = qa.classifyQuery(result)
	return result
}

// extractPhrases extracts quoted phrases from the query.
// Returns the query with phrases removed.
func (qa *QueryAnalyzer) extractPhrases(query string, result *AnalyzedQuery) string {
	for _, match := range phraseRegex.FindAllStringSubmatch(query, -1) {
		if phrase := strings.TrimSpace(match[1]); phrase != "" {
			result.Phrases = append(result.Phrases, strings.ToLower(phrase))
		}
	}
	return phraseRegex.ReplaceAllString(query, " ")
}

// extractTerms extracts key terms and negations from the remaining query.
func (qa *QueryAnalyzer) extractTerms(query string, result *AnalyzedQuery) {
	seen := make(map[string]bool)
	for _, word := range strings.Fields(query) {
		if strings.HasPrefix(word, "-") {
			if negated := qa.normalizeToken(strings.TrimPrefix(word, "-")); negated != "" {
				result.NegatedTerms = append(result.NegatedTerms, negated)
			}
			continue
		}
		if strings.EqualFold(word, "AND") || strings.EqualFold(word, "OR") || strings.EqualFold(word, "NOT") {
			continue
		}
		term := qa.normalizeToken(word)
		if len([]rune(term)) <= 2 || qa.IsStopword(term) || seen[term] {
			continue
		}
		seen[term] = true
		result.Terms = append(result.Terms, term)
	}
}

// normalizeToken lowercases a token and strips punctuation from its edges.
func (qa *QueryAnalyzer) normalizeToken(token string) string {
	token = strings.ToLower(token)
	return strings.TrimFunc(token, func(r rune) bool {
		return unicode.IsPunct(r) && r != '-' && r != '_'
	})
}

// expand returns the synonyms whose trigger occurs in the normalized query, excluding terms
// already present.
func (qa *QueryAnalyzer) expand(normalized string, terms []string) []string {
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		seen[t] = true
	}
	var out []string
	for _, e := range qa.expansions {
		if !strings.Contains(normalized, e.Trigger) {
			continue
		}
		for _, s := range e.Synonyms {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// classifyQuery determines the query type based on its components.
func (qa *QueryAnalyzer) classifyQuery(result *AnalyzedQuery) QueryType {
	switch {
	case len(result.NegatedTerms) > 0:
		return QueryTypeBoolean
	case len(result.Phrases) > 0:
		return QueryTypePhrase
	case len(result.Terms) == 0:
		if result.Normalized == "" {
			return QueryTypeEmpty
		}
		return QueryTypeSingleWord
	case len(result.Terms) == 1:
		return QueryTypeSingleWord
	}
	return QueryTypeMultiWord
}

// MatchTokens returns the tokens a field may contain to count as a match: the full normalized
// query, every key term and every phrase.
func (q *AnalyzedQuery) MatchTokens() []string {
	seen := make(map[string]bool)
	tokens := make([]string, 0, 1+len(q.Terms)+len(q.Phrases))
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			tokens = append(tokens, t)
		}
	}
	add(q.Normalized)
	for _, t := range q.Terms {
		add(t)
	}
	for _, p := range q.Phrases {
		add(p)
	}
	return tokens
}

// CountMatchingTerms counts how many query terms are found in the text.
func CountMatchingTerms(terms []string, text string) int {
	if len(terms) == 0 {
		return 0
	}
	count := 0
	textLower := strings.ToLower(text)
	for _, term := range terms {
		if strings.Contains(textLower, term) {
			count++
		}
	}
	return count
}
