// Package cli provides output helpers for the civicrag command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hyperjump/civicrag/internal/assistant"
	"github.com/hyperjump/civicrag/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one result per line.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts text, compact or json.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
}

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\n", r.Rank, r.CombinedScore, r.DocumentID, TruncateWords(oneLine(r.Content), 12))
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	meta := response.Metadata
	fmt.Fprintf(w, "\nFound %d results in %dms (%d vector, %d metadata, mode: %s)\n",
		meta.TotalResults, meta.DurationMs, meta.VectorResultCount, meta.MetadataResultCount, meta.SearchMode)
	if meta.Degraded {
		fmt.Fprintf(w, "Degraded: %s\n", meta.DegradedReason)
	}
	fmt.Fprintln(w)
	for _, result := range response.Results {
		writeOneResult(w, result)
	}
}

func writeOneResult(w io.Writer, result *models.RankedResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f (Vector: %.4f, Metadata: %.4f) [%s]\n",
		result.Rank, result.CombinedScore, result.VectorScore, result.MetadataScore, joinSources(result.Sources))
	fmt.Fprintf(w, "ID: %s\n", result.DocumentID)
	if c := result.Complaint; c != nil {
		if c.ComplaintType != "" {
			fmt.Fprintf(w, "Type: %s\n", c.ComplaintType)
		}
		var where []string
		for _, s := range []string{c.Borough, c.Agency, c.Status} {
			if s != "" {
				where = append(where, s)
			}
		}
		if len(where) > 0 {
			fmt.Fprintf(w, "%s\n", strings.Join(where, " | "))
		}
		if !c.SubmittedAt.IsZero() {
			fmt.Fprintf(w, "Submitted: %s\n", c.SubmittedAt.Format("2006-01-02 15:04"))
		}
	}
	fmt.Fprintf(w, "\n%s\n", Truncate(result.Content, 200))
	fmt.Fprintln(w)
}

// WriteStats writes a grouped count.
func WriteStats(w io.Writer, stats *models.StatsResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintf(w, "%d complaints grouped by %s\n", stats.Total, stats.GroupBy)
	if len(stats.Groups) == 0 {
		fmt.Fprintln(w, "No matching complaints.")
		return nil
	}
	width := 0
	for _, g := range stats.Groups {
		width = max(width, len(g.Key))
	}
	for _, g := range stats.Groups {
		fmt.Fprintf(w, "  %-*s  %d\n", width, g.Key, g.Count)
	}
	return nil
}

// WriteAskResponse writes the answer to a question: search results, a grouped count or a message.
func WriteAskResponse(w io.Writer, resp *assistant.AskResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	if format == OutputText {
		fmt.Fprintf(w, "Intent: %s (%.2f, %s)\n", resp.Intent.Kind, resp.Intent.Confidence, resp.Intent.Source)
	}
	switch {
	case resp.Search != nil:
		return WriteSearchResults(w, resp.Search, format)
	case resp.Stats != nil:
		return WriteStats(w, resp.Stats, format)
	default:
		fmt.Fprintln(w, resp.Message)
		return nil
	}
}

// WriteIntent writes a classification result.
func WriteIntent(w io.Writer, intent models.QueryIntent, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, intent)
	}
	label := func(name, value string) { fmt.Fprintf(w, "%-16s%s\n", name+":", value) }
	label("intent", string(intent.Kind))
	label("confidence", fmt.Sprintf("%.2f", intent.Confidence))
	label("source", string(intent.Source))
	p := intent.Parameters
	for _, kv := range [][2]string{
		{"complaint_type", p.ComplaintType},
		{"borough", string(p.Borough)},
		{"risk_level", string(p.RiskLevel)},
		{"time_filter", string(p.TimeFilter)},
		{"group_by", string(p.GroupBy)},
	} {
		if kv[1] != "" {
			label(kv[0], kv[1])
		}
	}
	if intent.Reasoning != "" {
		label("reasoning", intent.Reasoning)
	}
	return nil
}

// PrintSearchResults prints search results to stdout in text format.
func PrintSearchResults(response *models.SearchResponse) {
	_ = WriteSearchResults(os.Stdout, response, OutputText)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func joinSources(sources []models.Source) string {
	parts := make([]string, len(sources))
	for i, s := range sources {
		parts[i] = string(s)
	}
	return strings.Join(parts, "+")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate truncates s to maxLen bytes and appends "..." if truncated.
// The cut is moved back so a multi-byte character is never split.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
