package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/civicrag/internal/models"
)

type fakeLLM struct {
	reply  string
	err    error
	prompt string
	calls  int
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Complete(_ context.Context, _, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.reply, f.err
}

type resultSearch struct{ results []*models.RankedResult }

func (r resultSearch) Search(_ context.Context, query string, _ models.Filters, _ models.SearchOptions) (*models.SearchResponse, error) {
	return &models.SearchResponse{Results: r.results, Metadata: models.SearchMetadata{Query: query}}, nil
}

func searchIntent() fixedClassifier {
	return fixedClassifier{models.QueryIntent{Kind: models.IntentSearchComplaints}}
}

func TestAssistant_Answer(t *testing.T) {
	results := []*models.RankedResult{
		{DocumentID: "c1", Complaint: &models.Complaint{
			ID: "c1", ComplaintType: "Noise - Residential", Descriptor: "loud music", Borough: "BROOKLYN",
			Agency: "NYPD", Status: "Open", SubmittedAt: now,
		}},
		{DocumentType: models.DocumentAnalysis, DocumentID: "c2", Content: "Category: Quality of Life. Summary: party."},
	}
	llm := &fakeLLM{reply: "  Complaint #1 reports loud music in Brooklyn.  "}
	a := New(searchIntent(), resultSearch{results}, &recordingAnalyzer{}, WithAnswerer(llm))

	resp, err := a.Ask(context.Background(), "noise in brooklyn", AskOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != "Complaint #1 reports loud music in Brooklyn." {
		t.Errorf("answer = %q", resp.Answer)
	}
	for _, want := range []string{
		"Complaint #1:\n- ID: c1\n- Type: Noise - Residential\n- Description: loud music\n- Location: BROOKLYN\n- Agency: NYPD\n- Status: Open\n- Submitted: 2024-06-15",
		"Complaint #2:\n- ID: c2\n- Content: Category: Quality of Life.",
		"Question: noise in brooklyn",
	} {
		if !strings.Contains(llm.prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, llm.prompt)
		}
	}
}

func TestAssistant_AnswerWithoutResults(t *testing.T) {
	llm := &fakeLLM{reply: "Nothing matched."}
	a := New(searchIntent(), resultSearch{}, &recordingAnalyzer{}, WithAnswerer(llm))
	resp, err := a.Ask(context.Background(), "rats on mars", AskOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(llm.prompt, noContextMessage) {
		t.Errorf("prompt = %q", llm.prompt)
	}
	if resp.Answer != "Nothing matched." {
		t.Errorf("answer = %q", resp.Answer)
	}
}

func TestAssistant_AnswerFailureKeepsResults(t *testing.T) {
	llm := &fakeLLM{err: errors.New("provider down")}
	results := []*models.RankedResult{{DocumentID: "c1", Content: "Noise"}}
	a := New(searchIntent(), resultSearch{results}, &recordingAnalyzer{}, WithAnswerer(llm))

	resp, err := a.Ask(context.Background(), "noise", AskOptions{})
	if err != nil {
		t.Fatalf("answer failure should not fail Ask: %v", err)
	}
	if resp.Answer != "" || resp.Search == nil || len(resp.Search.Results) != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestAssistant_AnswerOnlyForSearch(t *testing.T) {
	llm := &fakeLLM{reply: "x"}
	intent := fixedClassifier{models.QueryIntent{Kind: models.IntentStatisticalAnalysis}}
	a := New(intent, resultSearch{}, &recordingAnalyzer{}, WithAnswerer(llm))
	resp, err := a.Ask(context.Background(), "which borough has the most complaints", AskOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if llm.calls != 0 || resp.Answer != "" {
		t.Errorf("stats question called the answerer %d times", llm.calls)
	}
}

func TestAnswerContext_CapsResults(t *testing.T) {
	var results []*models.RankedResult
	for i := 0; i < maxAnswerContext+2; i++ {
		results = append(results, &models.RankedResult{DocumentID: "x", Content: "x"})
	}
	got := answerContext(results)
	if strings.Count(got, "Complaint #") != maxAnswerContext {
		t.Errorf("context holds %d complaints, want %d", strings.Count(got, "Complaint #"), maxAnswerContext)
	}
}
