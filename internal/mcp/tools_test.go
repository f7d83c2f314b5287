package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hyperjump/civicrag/internal/intent"
	"github.com/hyperjump/civicrag/internal/models"
)

type stubSearch struct {
	query   string
	filters models.Filters
	opts    models.SearchOptions
}

func (s *stubSearch) Search(_ context.Context, query string, filters models.Filters, opts models.SearchOptions) (*models.SearchResponse, error) {
	s.query, s.filters, s.opts = query, filters, opts
	return &models.SearchResponse{
		Results: []*models.RankedResult{{
			DocumentType:  models.DocumentComplaint,
			DocumentID:    "c1",
			CombinedScore: 0.4,
			Sources:       []models.Source{models.SourceMetadata},
			Complaint:     &models.Complaint{ID: "c1", ComplaintType: "Noise", Borough: "BROOKLYN"},
			Rank:          1,
		}},
		Metadata: models.SearchMetadata{Query: query, TotalResults: 1, SearchMode: models.SearchModeNormal},
	}, nil
}

type stubAnalyzer struct{ params models.IntentParameters }

func (a *stubAnalyzer) Analyze(_ context.Context, p models.IntentParameters) (*models.StatsResult, error) {
	a.params = p
	return &models.StatsResult{GroupBy: p.GroupBy, Groups: []models.GroupCount{{Key: "BROOKLYN", Count: 2}}, Total: 2}, nil
}

func call(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}}
}

func decode(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	if res == nil || len(res.Content) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T", res.Content[0])
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(text.Text), &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestHandleSearchComplaints(t *testing.T) {
	search := &stubSearch{}
	s := NewServer(search, intent.NewClassifier(), &stubAnalyzer{}, nil)

	res, err := s.handleSearchComplaints(context.Background(), call("search_complaints", map[string]interface{}{
		"query":       "  loud parties  ",
		"borough":     "brooklyn",
		"time_filter": "week",
		"limit":       float64(5),
	}))
	if err != nil {
		t.Fatal(err)
	}
	if search.query != "loud parties" || search.filters.Borough != models.BoroughBrooklyn || search.filters.From == nil {
		t.Errorf("search called with %q %+v", search.query, search.filters)
	}
	if search.opts.Limit != 5 || !search.opts.IncludeFallback {
		t.Errorf("opts = %+v", search.opts)
	}
	out := decode(t, res)
	results, _ := out["results"].([]interface{})
	if len(results) != 1 {
		t.Fatalf("results = %v", out["results"])
	}
	first := results[0].(map[string]interface{})
	if first["id"] != "c1" || first["borough"] != "BROOKLYN" {
		t.Errorf("first = %v", first)
	}
}

func TestHandleSearchComplaints_InvalidParams(t *testing.T) {
	s := NewServer(&stubSearch{}, intent.NewClassifier(), &stubAnalyzer{}, nil)
	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"missing query", map[string]interface{}{}, ErrorCodeEmptyQuery},
		{"blank query", map[string]interface{}{"query": "   "}, ErrorCodeEmptyQuery},
		{"limit too high", map[string]interface{}{"query": "noise", "limit": float64(500)}, ErrorCodeInvalidParams},
		{"unknown borough", map[string]interface{}{"query": "noise", "borough": "Hoboken"}, ErrorCodeInvalidParams},
		{"unknown risk", map[string]interface{}{"query": "noise", "risk_level": "extreme"}, ErrorCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleSearchComplaints(context.Background(), call("search_complaints", tt.args))
			var mcpErr *MCPError
			if !errors.As(err, &mcpErr) || mcpErr.Code != tt.code {
				t.Errorf("expected code %d, got %v", tt.code, err)
			}
		})
	}
}

func TestHandleClassifyQuery(t *testing.T) {
	s := NewServer(&stubSearch{}, intent.NewClassifier(), &stubAnalyzer{}, nil)
	res, err := s.handleClassifyQuery(context.Background(), call("classify_query", map[string]interface{}{
		"query": "How many heat complaints in the Bronx this month?",
	}))
	if err != nil {
		t.Fatal(err)
	}
	out := decode(t, res)
	if out["intent"] != string(models.IntentStatisticalAnalysis) || out["source"] != string(models.IntentSourceRules) {
		t.Errorf("out = %v", out)
	}
	params := out["parameters"].(map[string]interface{})
	if params["borough"] != "BRONX" || params["complaint_type"] != "Heat" {
		t.Errorf("parameters = %v", params)
	}
}

func TestHandleComplaintStats(t *testing.T) {
	analyzer := &stubAnalyzer{}
	s := NewServer(&stubSearch{}, intent.NewClassifier(), analyzer, nil)

	res, err := s.handleComplaintStats(context.Background(), call("complaint_stats", map[string]interface{}{
		"complaint_type": "Noise",
		"group_by":       "borough",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if analyzer.params.GroupBy != models.GroupByBorough || analyzer.params.ComplaintType != "Noise" {
		t.Errorf("params = %+v", analyzer.params)
	}
	if out := decode(t, res); out["total"] != float64(2) {
		t.Errorf("out = %v", out)
	}

	if _, err := s.handleComplaintStats(context.Background(), call("complaint_stats", nil)); err != nil {
		t.Errorf("no arguments should be allowed: %v", err)
	}
	if _, err := s.handleComplaintStats(context.Background(), call("complaint_stats", map[string]interface{}{"group_by": "zip"})); err == nil {
		t.Error("expected error for unknown grouping")
	}
}

func TestToolDefinitions(t *testing.T) {
	for _, tool := range []mcp.Tool{searchComplaintsTool(), classifyQueryTool(), complaintStatsTool()} {
		if tool.Name == "" || tool.Description == "" || tool.InputSchema.Type != "object" {
			t.Errorf("incomplete tool %+v", tool)
		}
	}
	if got := searchComplaintsTool().InputSchema.Required; len(got) != 1 || got[0] != "query" {
		t.Errorf("required = %v", got)
	}
}
