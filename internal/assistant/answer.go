package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/civicrag/internal/models"
	"github.com/hyperjump/civicrag/pkg/utils"
)

const (
	defaultAnswerTimeout = 30 * time.Second
	maxAnswerContext     = 5
	noContextMessage     = "No relevant complaints found in the database."
)

// LLM completes a single-turn prompt. The intent package's OpenAI and Anthropic clients
// implement it.
type LLM interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Name() string
}

const answerSystemPrompt = `You are a helpful assistant for New York City 311 service complaints.
Answer the user's question based on the provided complaint data context.
Use only the complaints in the context. Cite complaint numbers when you rely on them.
If the context does not answer the question, say so briefly.`

// WithAnswerer writes a natural-language answer over the top search results with llm.
func WithAnswerer(llm LLM) Option {
	return func(a *Assistant) { a.answerer = llm }
}

// WithAnswerTimeout bounds each answer call.
func WithAnswerTimeout(d time.Duration) Option {
	return func(a *Assistant) {
		if d > 0 {
			a.answerTimeout = d
		}
	}
}

// answer asks the LLM to answer question from results. Failures are logged and return "".
func (a *Assistant) answer(ctx context.Context, question string, results []*models.RankedResult) string {
	if a.answerer == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, a.answerTimeout)
	defer cancel()

	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer:", answerContext(results), question)
	out, err := a.answerer.Complete(ctx, answerSystemPrompt, prompt)
	if err != nil {
		a.logger.Warn("assistant answer generation failed",
			zap.String("provider", a.answerer.Name()), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(out)
}

// answerContext numbers the top results, one block per complaint.
func answerContext(results []*models.RankedResult) string {
	if len(results) == 0 {
		return noContextMessage
	}
	var b strings.Builder
	for i, r := range results {
		if i == maxAnswerContext {
			break
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Complaint #%d:\n", i+1)
		c := r.Complaint
		if c == nil {
			fmt.Fprintf(&b, "- ID: %s\n- Content: %s", r.DocumentID, utils.Truncate(r.Content, 500))
			continue
		}
		submitted := "Unknown"
		if !c.SubmittedAt.IsZero() {
			submitted = c.SubmittedAt.UTC().Format("2006-01-02")
		}
		fmt.Fprintf(&b, "- ID: %s\n- Type: %s\n- Description: %s\n- Location: %s\n- Agency: %s\n- Status: %s\n- Submitted: %s",
			c.ID,
			orUnknown(c.ComplaintType),
			orUnknown(c.Descriptor),
			orUnknown(c.Location()),
			orUnknown(c.Organization()),
			orUnknown(c.Status),
			submitted)
	}
	return b.String()
}

func orUnknown(s string) string {
	if s = utils.CollapseWhitespace(s); s != "" {
		return s
	}
	return "Unknown"
}
