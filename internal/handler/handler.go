// Package handler implements spec §4.9: the per-message pipeline wiring
// the Auto-Router, Thread Scheduler, Runner, Progress Tracker, Presenter,
// Progress Edits Worker and Transport together, plus the cancellation and
// error-propagation policy from spec §7/§8.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p0s/takopi/internal/editsworker"
	"github.com/p0s/takopi/internal/model"
	"github.com/p0s/takopi/internal/progress"
	"github.com/p0s/takopi/internal/retryutil"
	"github.com/p0s/takopi/internal/router"
	"github.com/p0s/takopi/internal/runner"
	"github.com/p0s/takopi/internal/scheduler"
	"github.com/p0s/takopi/internal/takopierr"
	"github.com/p0s/takopi/internal/transport"
)

// cancelCmd is the text a reply must carry to cancel the run behind the
// message it replies to, per spec §4.9.
const cancelCmd = "/cancel"

// Handler owns the live set of in-flight runs and wires one message at a
// time for a given thread through router -> runner -> tracker -> presenter
// -> edits worker -> transport.
type Handler struct {
	registry  *runner.Registry
	router    *router.Router
	scheduler *scheduler.Scheduler
	transport transport.Transport
	presenter *progress.Presenter
	logger    *slog.Logger

	mu       sync.Mutex
	running  map[string]*model.RunningTask // keyed by progress MessageRef.MessageID
	byThread map[string]string             // threadID -> message id of its current progress message
}

// New builds a Handler. sched should already be running (its ctx governs
// driver goroutine lifetime); the Handler itself holds no goroutines of
// its own beyond what scheduler.Submit spawns per-job.
func New(reg *runner.Registry, rt *router.Router, sched *scheduler.Scheduler, tp transport.Transport, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry:  reg,
		router:    rt,
		scheduler: sched,
		transport: tp,
		presenter: progress.NewPresenter(),
		logger:    logger,
		running:   map[string]*model.RunningTask{},
		byThread:  map[string]string{},
	}
}

// HandleMessage is the entrypoint the transport's poll loop calls for each
// IncomingMessage. It decides between the cancellation path and the normal
// per-thread FIFO scheduling path, then returns immediately: the actual
// run happens asynchronously on the scheduler's thread queue.
func (h *Handler) HandleMessage(ctx context.Context, msg model.IncomingMessage) {
	if strings.TrimSpace(msg.Text) == cancelCmd && msg.ReplyTo != nil {
		h.cancel(msg.ReplyTo.MessageID)
		return
	}

	h.scheduler.NoteThreadKnown(msg.ThreadID)
	h.scheduler.Submit(msg.ThreadID, func(jobCtx context.Context) {
		h.run(jobCtx, msg)
	})
}

func (h *Handler) cancel(progressMessageID string) {
	h.mu.Lock()
	task, ok := h.running[progressMessageID]
	h.mu.Unlock()
	if !ok {
		return
	}
	task.Cancel()
}

// run executes steps 1-7 of spec §4.9 for one message. jobCtx is the
// scheduler-owned context for this thread's queue; it is further narrowed
// into a per-run cancel scope so /cancel only tears down this one run.
func (h *Handler) run(jobCtx context.Context, msg model.IncomingMessage) {
	replyText := ""
	if msg.ReplyTo != nil {
		replyText = msg.ReplyTo.Text
	}

	decision, err := h.router.Route(msg.ThreadID, msg.Text, replyText)
	if err != nil {
		h.reportRoutingError(jobCtx, msg.ThreadID, err)
		return
	}

	rn, ok := h.registry.Get(decision.EngineID)
	if !ok {
		h.reportRoutingError(jobCtx, msg.ThreadID, &takopierr.RunnerUnavailable{EngineID: string(decision.EngineID)})
		return
	}

	runCtx, cancel := context.WithCancel(jobCtx)
	defer cancel()

	runID := uuid.NewString()
	ref, err := h.transport.Send(runCtx, msg.ThreadID, model.RenderedMessage{Text: startingText(decision.EngineID)}, transport.Options{"silent": true})
	if err != nil {
		h.logger.Warn("progress_send_failed", "run_id", runID, "thread_id", msg.ThreadID, "error", err.Error())
		return
	}

	task := &model.RunningTask{RunID: runID, ThreadID: msg.ThreadID, EngineID: decision.EngineID, Cancel: cancel}
	h.registerRun(ref.MessageID, msg.ThreadID, task)
	defer h.unregisterRun(ref.MessageID, msg.ThreadID)

	h.logger.Info("run_started", "run_id", runID, "thread_id", msg.ThreadID, "engine_id", decision.EngineID, "message_id", ref.MessageID)

	worker := editsworker.Start(runCtx, h.transport, h.presenter, ref, h.logger)

	tracker := progress.NewTracker(nil)
	state := progress.NewState(time.Now())

	events := rn.Run(runCtx, decision.Prompt, decision.Resume)
	for e := range events {
		state = tracker.NoteEvent(state, e)
		if state.ResumeKnown {
			// A resume token surfaced mid-stream: make sure the scheduler
			// already knows this thread even if this is its first ever
			// message, per spec §4.8.
			h.scheduler.NoteThreadKnown(msg.ThreadID)
		}
		worker.Publish(state)
	}

	worker.Stop()
	h.logger.Info("run_finished", "run_id", runID, "thread_id", msg.ThreadID, "status", state.Status)
	h.finalize(jobCtx, ref, state)
}

// finalize performs the synchronous final render required by step 6/7 of
// spec §4.9: always emit a final message, even if the edit itself fails
// once and has to be retried.
func (h *Handler) finalize(ctx context.Context, ref model.MessageRef, state progress.State) {
	rendered := h.presenter.Render(state)
	if err := h.transport.Edit(ctx, ref, rendered); err != nil {
		h.logger.Warn("final_render_failed", "thread_id", ref.ThreadID, "error", err.Error())
		retryutil.AsyncRetry(h.logger, "final_render", 0, 0, func(retryCtx context.Context) error {
			return h.transport.Edit(retryCtx, ref, rendered)
		})
	}
}

func (h *Handler) reportRoutingError(ctx context.Context, threadID string, err error) {
	text := routingErrorText(err)
	if _, sendErr := h.transport.Send(ctx, threadID, model.RenderedMessage{Text: text}, nil); sendErr != nil {
		h.logger.Warn("routing_error_send_failed", "thread_id", threadID, "error", sendErr.Error())
	}
}

func routingErrorText(err error) string {
	switch {
	case err == takopierr.ErrNoEngines:
		return "no engines are configured"
	default:
		return fmt.Sprintf("could not route this message: %s", err.Error())
	}
}

func startingText(engineID model.EngineID) string {
	return fmt.Sprintf("▸ %s · starting…", engineID)
}

func (h *Handler) registerRun(messageID, threadID string, task *model.RunningTask) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running[messageID] = task
	h.byThread[threadID] = messageID
}

func (h *Handler) unregisterRun(messageID, threadID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.running, messageID)
	if h.byThread[threadID] == messageID {
		delete(h.byThread, threadID)
	}
}
