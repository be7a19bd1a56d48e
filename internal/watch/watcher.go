// Package watch polls the sheet's trigger column and turns stable
// edits into resolution requests.
package watch

import (
	"context"
	"log/slog"
	"time"

	"github.com/web3-frozen/chainsync/internal/chain"
	"github.com/web3-frozen/chainsync/internal/metrics"
	"github.com/web3-frozen/chainsync/internal/resolve"
	"github.com/web3-frozen/chainsync/internal/sheet"
)

// SubmitFunc hands a trigger value to the resolution coordinator. It
// reports whether a new resolution was started (false means the request
// coalesced onto one already in flight).
type SubmitFunc func(raw string, rowID int64, reason string) bool

type pendingEdit struct {
	norm  chain.Name
	raw   string
	since time.Time
}

// Watcher compares each poll against the last value it acted on, so
// reformatting a cell ("Polygon" -> " polygon ") never refires, and
// holds new values back until they have been stable for the debounce
// window, so a burst of keystrokes yields one resolution for the final
// value.
type Watcher struct {
	sheet          sheet.Sheet
	submit         SubmitFunc
	interval       time.Duration
	debounce       time.Duration
	startupRefresh bool
	logger         *slog.Logger

	lastSeen map[int64]chain.Name
	pending  map[int64]pendingEdit
}

func New(s sheet.Sheet, submit SubmitFunc, interval, debounce time.Duration, startupRefresh bool, logger *slog.Logger) *Watcher {
	return &Watcher{
		sheet:          s,
		submit:         submit,
		interval:       interval,
		debounce:       debounce,
		startupRefresh: startupRefresh,
		logger:         logger,
		lastSeen:       make(map[int64]chain.Name),
		pending:        make(map[int64]pendingEdit),
	}
}

// Run primes the watcher from the sheet's current state and then polls
// until ctx is cancelled. Sheet errors are logged and retried on the
// next tick; the loop itself never exits early.
func (w *Watcher) Run(ctx context.Context) {
	w.prime(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("watcher started",
		"interval", w.interval,
		"debounce", w.debounce,
		"startup_refresh", w.startupRefresh)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopping")
			return
		case <-ticker.C:
			w.tick(ctx, time.Now())
		}
	}
}

// prime records every current trigger as already seen. With startup
// refresh enabled it also submits each non-empty one, so rows edited
// while the service was down still get resolved.
func (w *Watcher) prime(ctx context.Context) {
	rows, err := w.sheet.Triggers(ctx)
	if err != nil {
		metrics.SheetPollErrors.Inc()
		w.logger.Error("startup trigger read failed", "error", err)
		return
	}
	for _, row := range rows {
		norm := chain.Normalize(row.Name)
		w.lastSeen[row.ID] = norm
		if norm.Empty() || !w.startupRefresh {
			continue
		}
		started := w.submit(row.Name, row.ID, resolve.ReasonStartup)
		w.logger.Info("startup resolution requested",
			"chain", norm.String(), "row", row.ID, "started", started)
	}
}

func (w *Watcher) tick(ctx context.Context, now time.Time) {
	metrics.SheetPolls.Inc()

	rows, err := w.sheet.Triggers(ctx)
	if err != nil {
		metrics.SheetPollErrors.Inc()
		w.logger.Warn("trigger poll failed", "error", err)
		return
	}

	present := make(map[int64]bool, len(rows))
	for _, row := range rows {
		present[row.ID] = true
		norm := chain.Normalize(row.Name)

		if norm == w.lastSeen[row.ID] {
			// Unchanged, or an in-progress edit reverted.
			delete(w.pending, row.ID)
			continue
		}
		if norm.Empty() {
			// Cleared cells never fire, but retyping the same
			// name afterwards counts as a fresh edit.
			w.lastSeen[row.ID] = ""
			delete(w.pending, row.ID)
			continue
		}

		p, ok := w.pending[row.ID]
		if !ok || p.norm != norm {
			w.pending[row.ID] = pendingEdit{norm: norm, raw: row.Name, since: now}
			continue
		}
		if now.Sub(p.since) < w.debounce {
			continue
		}

		delete(w.pending, row.ID)
		w.lastSeen[row.ID] = norm
		metrics.TriggerEdits.Inc()
		started := w.submit(p.raw, row.ID, resolve.ReasonEdit)
		w.logger.Info("trigger edit dispatched",
			"chain", norm.String(), "row", row.ID, "started", started)
	}

	// Rows deleted from the sheet drop out of the caches.
	for id := range w.lastSeen {
		if !present[id] {
			delete(w.lastSeen, id)
			delete(w.pending, id)
		}
	}
}
