package validator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// phraseTable is the TOML layout:
//
//	[[rule]]
//	phrases = ["far from", "far"]
//	gap = 0.3
type phraseTable struct {
	Rules []PhraseRule `toml:"rule"`
}

// LoadPhraseTable reads and compiles a TOML phrase table.
func LoadPhraseTable(path string) (*KeywordClassifier, error) {
	var table phraseTable
	if _, err := toml.DecodeFile(path, &table); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPhraseTable, path, err)
	}
	if len(table.Rules) == 0 {
		return nil, fmt.Errorf("%w: %s: no rules", ErrPhraseTable, path)
	}
	return NewKeywordClassifier(table.Rules)
}

// PhraseWatcher reloads a phrase table into a SwappableClassifier whenever
// the file is written. A table that fails to load leaves the previous one
// in place.
type PhraseWatcher struct {
	path     string
	target   *SwappableClassifier
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	stop     chan struct{}
	stopOnce sync.Once
	reloaded chan struct{}
}

// NewPhraseWatcher loads path into target and prepares a watcher. Call
// Start to begin watching.
func NewPhraseWatcher(path string, target *SwappableClassifier, logger *zap.Logger) (*PhraseWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	k, err := LoadPhraseTable(path)
	if err != nil {
		return nil, err
	}
	target.Swap(k)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating phrase watcher: %w", err)
	}
	// Watch the directory so editors that replace the file are still seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", path, err)
	}
	return &PhraseWatcher{
		path:     filepath.Clean(path),
		target:   target,
		watcher:  watcher,
		logger:   logger.Named("phrases"),
		stop:     make(chan struct{}),
		reloaded: make(chan struct{}, 1),
	}, nil
}

// Start processes file events until ctx is cancelled or Stop is called.
func (w *PhraseWatcher) Start(ctx context.Context) {
	go w.processEvents(ctx)
}

// Stop stops watching and releases the watcher.
func (w *PhraseWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.watcher.Close()
	})
}

// Reloaded signals after each successful reload. Used by tests.
func (w *PhraseWatcher) Reloaded() <-chan struct{} {
	return w.reloaded
}

func (w *PhraseWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			w.Stop()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("phrase watcher error", zap.Error(err))
		}
	}
}

func (w *PhraseWatcher) reload() {
	k, err := LoadPhraseTable(w.path)
	if err != nil {
		w.logger.Warn("phrase table reload failed, keeping previous table", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.target.Swap(k)
	w.logger.Info("phrase table reloaded", zap.String("path", w.path))
	select {
	case w.reloaded <- struct{}{}:
	default:
	}
}
