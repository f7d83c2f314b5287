package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hyperjump/civicrag/internal/models"
)

var boroughEnum = func() []string {
	out := make([]string, len(models.Boroughs))
	for i, b := range models.Boroughs {
		out[i] = string(b)
	}
	return out
}()

func filterProperties() map[string]interface{} {
	return map[string]interface{}{
		"complaint_type": map[string]interface{}{
			"type":        "string",
			"description": "Complaint category, matched case-insensitively as a substring (e.g. 'Noise')",
		},
		"borough": map[string]interface{}{
			"type":        "string",
			"description": "NYC borough",
			"enum":        boroughEnum,
		},
		"risk_level": map[string]interface{}{
			"type": "string",
			"enum": []string{"low", "medium", "high"},
		},
		"time_filter": map[string]interface{}{
			"type":        "string",
			"description": "Relative submission window",
			"enum":        []string{"today", "yesterday", "week", "month", "year"},
		},
	}
}

// searchComplaintsTool returns the tool definition for search_complaints
func searchComplaintsTool() mcp.Tool {
	props := filterProperties()
	props["query"] = map[string]interface{}{
		"type":        "string",
		"description": "Natural language description of the complaints to find",
	}
	props["limit"] = map[string]interface{}{
		"type":        "integer",
		"description": "Maximum number of results to return (1-100)",
		"default":     10,
		"minimum":     1,
		"maximum":     100,
	}
	return mcp.Tool{
		Name:        "search_complaints",
		Description: "Hybrid semantic and metadata search over NYC 311 complaints",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   []string{"query"},
		},
	}
}

// classifyQueryTool returns the tool definition for classify_query
func classifyQueryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "classify_query",
		Description: "Classify a question as statistical analysis, complaint search or general conversation and extract its parameters",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The question to classify",
				},
			},
			Required: []string{"query"},
		},
	}
}

// complaintStatsTool returns the tool definition for complaint_stats
func complaintStatsTool() mcp.Tool {
	props := filterProperties()
	props["group_by"] = map[string]interface{}{
		"type":    "string",
		"enum":    []string{"borough", "complaint_type", "agency", "status", "month"},
		"default": "complaint_type",
	}
	return mcp.Tool{
		Name:        "complaint_stats",
		Description: "Count complaints matching optional filters, grouped by one dimension",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
		},
	}
}
