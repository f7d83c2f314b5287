package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/civicrag/internal/models"
)

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

var _ KeywordIndex = (*BleveIndex)(nil)

// NewBleveIndex creates or opens a Bleve index at path. An empty path or ":memory:" creates an
// in-memory index. If you change the index mapping in code, remove the index directory to force
// a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := buildMapping()

	if path == "" || path == ":memory:" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func buildMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) keeps fuzzy terms comparable to the
	// raw query words; an English stemmer would turn "noise" into "nois".
	textFieldMapping.Analyzer = standard.Name
	for field := range fieldBoosts {
		docMapping.AddFieldMappingsAt(field, textFieldMapping)
	}
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("status", keywordFieldMapping)
	im.AddDocumentMapping("complaint", docMapping)
	im.DefaultType = "complaint"
	im.DefaultMapping = docMapping
	return im
}

// Index indexes a complaint by id, replacing any previous version.
func (b *BleveIndex) Index(ctx context.Context, c *models.Complaint) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("complaint id is required")
	}
	doc := map[string]interface{}{
		FieldCategory:     c.ComplaintType,
		FieldDescription:  c.Descriptor,
		FieldLocation:     c.Location(),
		FieldOrganization: c.Organization(),
		"status":          strings.ToLower(c.Status),
	}
	return b.index.Index(c.ID, doc)
}

// Search matches every query term (plus opts.ExtraTerms) against the complaint fields, boosting
// category over description over location over organization. Any term may match.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	if limit <= 0 {
		limit = 10
	}
	fuzzyEnabled := false
	fuzziness := 1
	var extra []string
	if opts != nil {
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
		extra = opts.ExtraTerms
	}

	terms := uniqueTerms(append(tokenizeQuery(query), tokenizeTerms(extra)...))
	if len(terms) == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequest(b.buildQuery(terms, fuzzyEnabled, fuzziness))
	req.Size = limit
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// buildQuery creates a disjunction over every (field, term) pair.
func (b *BleveIndex) buildQuery(terms []string, fuzzyEnabled bool, fuzziness int) blevequery.Query {
	queries := make([]blevequery.Query, 0, len(terms)*len(fieldBoosts))
	for field, boost := range fieldBoosts {
		for _, term := range terms {
			if fuzzyEnabled && len([]rune(term)) >= 4 {
				fq := bleve.NewFuzzyQuery(term)
				fq.SetFuzziness(fuzziness)
				fq.SetField(field)
				fq.SetBoost(boost)
				queries = append(queries, fq)
				continue
			}
			tq := bleve.NewTermQuery(term)
			tq.SetField(field)
			tq.SetBoost(boost)
			queries = append(queries, tq)
		}
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// tokenizeQuery splits query into lowercase letter/digit runs.
func tokenizeQuery(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func tokenizeTerms(terms []string) []string {
	var out []string
	for _, t := range terms {
		out = append(out, tokenizeQuery(t)...)
	}
	return out
}

func uniqueTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Delete removes a complaint from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// DocCount returns the total number of complaints in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}
