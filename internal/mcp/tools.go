package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/hyperjump/civicrag/internal/apperrors"
	"github.com/hyperjump/civicrag/internal/models"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeEmptyQuery    = -32004 // Query parameter is empty
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{Code: code, Message: message, Data: data}
}

func (s *Server) handleSearchComplaints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	query, err := requireQuery(args)
	if err != nil {
		return nil, err
	}
	limit := getIntDefault(args, "limit", defaultLimit)
	if limit < 1 || limit > maxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}
	params, err := parseParameters(args)
	if err != nil {
		return nil, err
	}

	resp, err := s.search.Search(ctx, query, params.Filters(time.Now()), models.SearchOptions{
		Limit:           limit,
		IncludeFallback: true,
	})
	if err != nil {
		return nil, s.internalError("search failed", err)
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		item := map[string]interface{}{
			"rank":    r.Rank,
			"id":      r.DocumentID,
			"score":   r.CombinedScore,
			"sources": r.Sources,
			"content": r.Content,
		}
		if c := r.Complaint; c != nil {
			item["complaint_type"] = c.ComplaintType
			item["descriptor"] = c.Descriptor
			item["borough"] = c.Borough
			item["status"] = c.Status
			item["agency"] = c.Agency
			item["submitted_at"] = c.SubmittedAt.Format(time.RFC3339)
		}
		results = append(results, item)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"results":  results,
		"metadata": resp.Metadata,
	})), nil
}

func (s *Server) handleClassifyQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	query, err := requireQuery(args)
	if err != nil {
		return nil, err
	}
	intent := s.classifier.Classify(ctx, query)
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"intent":     intent.Kind,
		"parameters": intent.Parameters,
		"confidence": intent.Confidence,
		"reasoning":  intent.Reasoning,
		"source":     intent.Source,
	})), nil
}

func (s *Server) handleComplaintStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	params, err := parseParameters(args)
	if err != nil {
		return nil, err
	}
	stats, err := s.analyzer.Analyze(ctx, params)
	if err != nil {
		return nil, s.internalError("analysis failed", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"group_by": stats.GroupBy,
		"groups":   stats.Groups,
		"total":    stats.Total,
		"filters":  stats.Filters,
	})), nil
}

func (s *Server) internalError(msg string, err error) error {
	if errors.Is(err, apperrors.ErrValidation) {
		return newMCPError(ErrorCodeInvalidParams, msg, map[string]interface{}{"error": err.Error()})
	}
	s.logger.Error(msg, zap.Error(err))
	return newMCPError(ErrorCodeInternalError, msg, map[string]interface{}{"error": err.Error()})
}

func requireQuery(args map[string]interface{}) (string, error) {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return "", newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}
	return query, nil
}

// parseParameters reads the optional filter arguments. Unknown enum values are rejected.
func parseParameters(args map[string]interface{}) (models.IntentParameters, error) {
	var p models.IntentParameters
	p.ComplaintType = strings.TrimSpace(getStringDefault(args, "complaint_type", ""))

	type enumArg struct {
		key   string
		parse func(string) bool
	}
	enums := []enumArg{
		{"borough", func(v string) (ok bool) { p.Borough, ok = models.ParseBorough(v); return }},
		{"risk_level", func(v string) (ok bool) { p.RiskLevel, ok = models.ParseRiskLevel(v); return }},
		{"time_filter", func(v string) (ok bool) { p.TimeFilter, ok = models.ParseTimeFilter(v); return }},
		{"group_by", func(v string) (ok bool) { p.GroupBy, ok = models.ParseGroupBy(v); return }},
	}
	for _, e := range enums {
		v := getStringDefault(args, e.key, "")
		if v == "" {
			continue
		}
		if !e.parse(v) {
			return models.IntentParameters{}, newMCPError(ErrorCodeInvalidParams, "invalid "+e.key, map[string]interface{}{
				"param": e.key,
				"value": v,
			})
		}
	}
	return p, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
