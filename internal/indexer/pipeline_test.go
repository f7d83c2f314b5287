package indexer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hyperjump/civicrag/internal/apperrors"
	"github.com/hyperjump/civicrag/internal/config"
	"github.com/hyperjump/civicrag/internal/embedding"
	"github.com/hyperjump/civicrag/internal/models"
)

func pipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{BatchSize: 2}
}

func docs(n int) []embedding.Document {
	out := make([]embedding.Document, n)
	for i := range out {
		out[i] = embedding.Document{
			Type:    models.DocumentComplaint,
			ID:      fmt.Sprintf("d%d", i),
			Content: fmt.Sprintf("complaint number %d", i),
		}
	}
	return out
}

func TestPipeline_Run(t *testing.T) {
	f := newFixture(t)
	p := NewPipeline(f.embed, f.store, pipelineConfig())

	in := docs(5)
	in[2].Content = "   "
	report, err := p.Run(context.Background(), in, 0)
	if err != nil {
		t.Fatal(err)
	}
	if report.Processed != 5 || report.Succeeded != 4 || report.Failed != 1 {
		t.Errorf("report = %+v", report)
	}
	if len(report.Errors) != 1 || report.Errors[0].DocumentID != "d2" {
		t.Errorf("errors = %+v", report.Errors)
	}
	if got := f.provider.calls.Load(); got != 4 {
		t.Errorf("provider calls = %d, want 4", got)
	}
}

func TestPipeline_DuplicateContentEmbedsOnce(t *testing.T) {
	f := newFixture(t)
	p := NewPipeline(f.embed, f.store, pipelineConfig())

	in := []embedding.Document{
		{ID: "a", Content: "Loud music at night"},
		{ID: "b", Content: "loud   MUSIC at night"},
		{ID: "c", Content: "Loud music at night"},
	}
	report, err := p.Run(context.Background(), in, 1)
	if err != nil {
		t.Fatal(err)
	}
	if report.Succeeded != 3 {
		t.Errorf("report = %+v", report)
	}
	if got := f.provider.calls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}

func TestPipeline_ProviderFailuresAreRecorded(t *testing.T) {
	f := newFixture(t)
	f.provider.down.Store(true)
	p := NewPipeline(f.embed, f.store, pipelineConfig())

	report, err := p.Run(context.Background(), docs(3), 0)
	if err != nil {
		t.Fatal(err)
	}
	if report.Failed != 3 || report.Succeeded != 0 || len(report.Errors) != 3 {
		t.Errorf("report = %+v", report)
	}
}

func TestPipeline_Busy(t *testing.T) {
	f := newFixture(t)
	p := NewPipeline(f.embed, f.store, pipelineConfig())

	p.mu.Lock()
	_, err := p.Run(context.Background(), docs(1), 0)
	p.mu.Unlock()
	if !errors.Is(err, ErrPipelineBusy) || !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected busy error, got %v", err)
	}

	if _, err := p.Run(context.Background(), docs(1), 0); err != nil {
		t.Errorf("run after release: %v", err)
	}
}

func TestPipeline_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t)
	p := NewPipeline(f.embed, f.store, pipelineConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.Run(ctx, docs(3), 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if report == nil || report.Processed != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestPipeline_CancelDuringChunkDelay(t *testing.T) {
	f := newFixture(t)
	p := NewPipeline(f.embed, f.store, config.PipelineConfig{BatchSize: 1, ChunkDelay: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	report, err := p.Run(ctx, docs(3), 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("chunk delay was not cancellable")
	}
	if report.Processed != 1 || report.Succeeded != 1 {
		t.Errorf("partial report = %+v", report)
	}
}

func TestPipeline_LimiterSkipsCachedContent(t *testing.T) {
	f := newFixture(t)
	// One token, refilled hourly: a second provider-bound put would block.
	p := NewPipeline(f.embed, f.store, pipelineConfig(), WithLimiter(rate.NewLimiter(rate.Every(time.Hour), 1)))

	in := []embedding.Document{
		{ID: "a", Content: "rats in the basement"},
		{ID: "b", Content: "Rats in the basement"},
		{ID: "c", Content: "rats in the basement"},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	report, err := p.Run(ctx, in, 0)
	if err != nil {
		t.Fatal(err)
	}
	if report.Succeeded != 3 {
		t.Errorf("report = %+v", report)
	}
}

func TestPipeline_BackfillWithoutBacklog(t *testing.T) {
	f := newFixture(t)
	p := NewPipeline(f.embed, nil, pipelineConfig())
	if _, err := p.Backfill(context.Background(), 0); !errors.Is(err, apperrors.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
