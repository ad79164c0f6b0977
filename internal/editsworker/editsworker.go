// Package editsworker implements spec §4.6: coalescing a burst of
// ProgressState snapshots into best-effort transport edits on a single
// MessageRef.
package editsworker

import (
	"context"
	"log/slog"

	"github.com/p0s/takopi/internal/model"
	"github.com/p0s/takopi/internal/progress"
)

// Editor is the subset of the Transport interface the worker needs.
type Editor interface {
	Edit(ctx context.Context, ref model.MessageRef, rendered model.RenderedMessage) error
}

// Worker coalesces bursts of snapshots: at most one edit in flight at a
// time, and while one is in flight only the latest pending snapshot is
// retained. The final render is never routed through this worker — the
// handler performs it synchronously after Completed, per spec §4.6.
type Worker struct {
	editor    Editor
	presenter *progress.Presenter
	ref       model.MessageRef
	logger    *slog.Logger

	snapshots chan progress.State
	done      chan struct{}
}

// Start launches the worker's driver goroutine bound to ref and returns it.
// Callers publish snapshots via Publish and must call Stop when the run's
// final render has been sent.
func Start(ctx context.Context, editor Editor, presenter *progress.Presenter, ref model.MessageRef, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		editor:    editor,
		presenter: presenter,
		ref:       ref,
		logger:    logger,
		snapshots: make(chan progress.State, 1),
		done:      make(chan struct{}),
	}
	go w.run(ctx)
	return w
}

// Publish offers a new snapshot to the worker. It never blocks the run: if
// the worker already has a pending snapshot queued, Publish replaces it
// in-place rather than waiting for the channel to drain, implementing the
// "retain only the latest pending snapshot" coalescing rule.
func (w *Worker) Publish(s progress.State) {
	select {
	case w.snapshots <- s:
		return
	default:
	}
	// A snapshot is already pending; drain it and replace with the latest.
	select {
	case <-w.snapshots:
	default:
	}
	select {
	case w.snapshots <- s:
	default:
	}
}

// Stop closes the publish channel and waits for the driver to exit. Safe
// to call once per Worker.
func (w *Worker) Stop() {
	close(w.snapshots)
	<-w.done
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	var lastSent *model.RenderedMessage
	for snap := range w.snapshots {
		rendered := w.presenter.Render(snap)
		if lastSent != nil && rendered.Text == lastSent.Text {
			continue // pending == last-sent: skip, per spec §4.6
		}
		if err := w.editor.Edit(ctx, w.ref, rendered); err != nil {
			w.logger.Warn("progress_edit_failed", "thread_id", w.ref.ThreadID, "error", err.Error())
			continue // best-effort: log and drop, never block the run
		}
		lastSent = &rendered
	}
}
