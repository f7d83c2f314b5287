package intent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/civicrag/internal/models"
)

func TestRulesWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeRules(t, dir, "search_phrases: [show]\n")
	rules, err := LoadRules(path)
	if err != nil {
		t.Fatal(err)
	}
	c := NewClassifier(WithRules(rules))

	reloaded := make(chan error, 4)
	w := NewRulesWatcher(path, c,
		WithDebounce(50*time.Millisecond),
		WithOnReload(func(_ *RuleSet, err error) {
			select {
			case reloaded <- err:
			default:
			}
		}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// Other files in the directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("search_phrases: [gimme]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-reloaded:
		if err != nil {
			t.Fatalf("reload failed: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("rules were not reloaded")
	}
	if got := c.Classify(ctx, "gimme noise"); got.Kind != models.IntentSearchComplaints {
		t.Errorf("new rules not active, kind = %s", got.Kind)
	}
}

func TestRulesWatcher_BadFileKeepsRules(t *testing.T) {
	dir := t.TempDir()
	path := writeRules(t, dir, "search_phrases: [show]\n")
	c := NewClassifier()
	before := c.Rules()

	if err := os.WriteFile(path, []byte("group_by:\n  - phrase: by color\n    value: color\n"), 0644); err != nil {
		t.Fatal(err)
	}
	w := NewRulesWatcher(path, c)
	if err := w.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if c.Rules() != before {
		t.Error("a failed reload must keep the current rules")
	}
}

func TestRulesWatcher_StopIsIdempotent(t *testing.T) {
	path := writeRules(t, t.TempDir(), "search_phrases: [show]\n")
	w := NewRulesWatcher(path, NewClassifier())
	w.Stop()
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}
