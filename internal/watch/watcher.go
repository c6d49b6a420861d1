// Package watch polls for template changes and reports them
package watch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Change kinds
const (
	Added   = "added"
	Updated = "updated"
	Removed = "removed"
)

// Change is one detected difference between two polls
type Change struct {
	ID   string `json:"templateId"`
	Kind string `json:"kind"`
}

// Source returns a version fingerprint per item
type Source interface {
	Fingerprints(ctx context.Context) (map[string]int64, error)
}

// Watcher continuously polls a Source for changes
type Watcher struct {
	source   Source
	interval time.Duration
	onChange func(Change)
	logger   *zap.Logger

	previous map[string]int64
	primed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher. onChange runs on the polling goroutine.
func New(source Source, interval time.Duration, onChange func(Change), logger *zap.Logger) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}

	return &Watcher{
		source:   source,
		interval: interval,
		onChange: onChange,
		logger:   logger,
		previous: make(map[string]int64),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start takes the initial snapshot and begins polling
func (w *Watcher) Start() {
	w.Check()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.ctx.Done():
				return
			case <-ticker.C:
				w.Check()
			}
		}
	}()
}

// Stop stops polling and waits for the loop to exit
func (w *Watcher) Stop() {
	w.cancel()
	w.wg.Wait()
}

// Check polls once. The first successful poll only records the baseline.
// It is not safe to call concurrently with a running watcher.
func (w *Watcher) Check() []Change {
	current, err := w.source.Fingerprints(w.ctx)
	if err != nil {
		if w.ctx.Err() == nil {
			w.logger.Warn("template poll failed", zap.Error(err))
		}
		return nil
	}

	if !w.primed {
		w.previous, w.primed = current, true
		return nil
	}

	var changes []Change
	for id, version := range current {
		prev, exists := w.previous[id]
		switch {
		case !exists:
			changes = append(changes, Change{ID: id, Kind: Added})
		case prev != version:
			changes = append(changes, Change{ID: id, Kind: Updated})
		}
	}
	for id := range w.previous {
		if _, exists := current[id]; !exists {
			changes = append(changes, Change{ID: id, Kind: Removed})
		}
	}
	w.previous = current

	for _, c := range changes {
		w.logger.Debug("template changed", zap.String("template_id", c.ID), zap.String("kind", c.Kind))
		if w.onChange != nil {
			w.onChange(c)
		}
	}
	return changes
}
