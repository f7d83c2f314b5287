package intent

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/civicrag/pkg/utils"
)

const defaultDebounce = 400 * time.Millisecond

// RulesWatcher reloads a rule file into a Classifier whenever it changes.
// A file that fails to load leaves the current rules in place.
type RulesWatcher struct {
	path       string
	classifier *Classifier
	debounce   time.Duration
	onReload   func(*RuleSet, error)
	watcher    *fsnotify.Watcher
	mu         sync.Mutex
	timer      *time.Timer
	done       chan struct{}
	started    bool
	stopOnce   sync.Once
	logger     *zap.Logger
}

// WatcherOption configures a RulesWatcher.
type WatcherOption func(*RulesWatcher)

// WithWatcherLogger sets a logger for reload events.
func WithWatcherLogger(l *zap.Logger) WatcherOption {
	return func(w *RulesWatcher) { w.logger = utils.LoggerOrNop(l) }
}

// WithDebounce sets how long the file must be quiet before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *RulesWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithOnReload registers a callback run after every reload attempt.
func WithOnReload(fn func(*RuleSet, error)) WatcherOption {
	return func(w *RulesWatcher) { w.onReload = fn }
}

// NewRulesWatcher creates a watcher for the rule file at path.
func NewRulesWatcher(path string, classifier *Classifier, opts ...WatcherOption) *RulesWatcher {
	w := &RulesWatcher{
		path:       filepath.Clean(path),
		classifier: classifier,
		debounce:   defaultDebounce,
		done:       make(chan struct{}),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start watches the file's directory, so editors that replace the file by rename
// are picked up. It runs until ctx is cancelled or Stop is called.
func (w *RulesWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return err
	}
	w.watcher = watcher
	w.started = true
	w.logger.Debug("rules watcher starting", zap.String("path", w.path))
	go w.run(ctx, watcher)
	return nil
}

func (w *RulesWatcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("rules watcher error", zap.Error(err))
			}
		}
	}
}

func (w *RulesWatcher) handleEvent(ev fsnotify.Event) {
	if filepath.Clean(ev.Name) != w.path {
		return
	}
	w.logger.Debug("rules watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
		w.scheduleReload()
	}
}

func (w *RulesWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.Reload() })
}

// Reload loads the rule file now and swaps it into the classifier on success.
func (w *RulesWatcher) Reload() error {
	rules, err := LoadRules(w.path)
	if err != nil {
		w.logger.Warn("rules reload failed, keeping current rules", zap.String("path", w.path), zap.Error(err))
	} else {
		w.classifier.SetRules(rules)
		w.logger.Info("classifier rules reloaded", zap.String("path", w.path))
	}
	if w.onReload != nil {
		w.onReload(rules, err)
	}
	return err
}

// Stop stops the watcher and releases resources.
func (w *RulesWatcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
