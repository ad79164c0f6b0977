package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/p0s/takopi/internal/lineio"
	"github.com/p0s/takopi/internal/model"
	"github.com/p0s/takopi/internal/outputfmt"
	"github.com/p0s/takopi/internal/subprocess"
)

// Translator turns one line of an engine's JSONL stream into zero or more
// domain events, in the order the underlying record implies. JSONL schemas
// themselves are an external collaborator (spec §1); this signature is the
// seam between that collaborator and the domain model.
type Translator func(f *model.EventFactory, line string) ([]model.Event, error)

// ArgvBuilder builds the argv and optional stdin payload for one invocation
// of an engine, per the per-engine invocation forms in spec §6.
type ArgvBuilder func(prompt string, resume *model.ResumeToken) (argv []string, stdin []byte)

// ResumeResolver scans message text for one engine's resume syntax. Pure,
// no I/O, per spec §4.3.
type ResumeResolver func(text string) *model.ResumeToken

// Spec configures a CLIRunner for one engine. Every field is engine-owned
// collaborator logic; CLIRunner itself only implements the shared lifecycle
// spec.md describes once, for all engines.
type Spec struct {
	EngineID    model.EngineID
	BuildArgv   ArgvBuilder
	Translate   Translator
	Resolve     ResumeResolver
	Env         []string
	Cwd         string
}

// CLIRunner is the shared implementation of Runner for every engine that is
// invoked as an external CLI subprocess emitting JSONL on stdout. Each
// engine differs only in its Spec.
type CLIRunner struct {
	spec Spec
	mgr  *subprocess.Manager
	lock *keyedLockPool
}

// New builds a CLIRunner for spec, using mgr to spawn its children.
func New(spec Spec, mgr *subprocess.Manager) *CLIRunner {
	return &CLIRunner{spec: spec, mgr: mgr, lock: newKeyedLockPool()}
}

// ApplyOverride lets an operator point this engine at a non-default binary
// and/or inject extra environment (internal/config.EngineOverride), without
// touching the engine-specific argv-building logic in Spec.BuildArgv: only
// argv[0] is substituted, every other argument stays exactly as the
// per-engine invocation form in spec §6 built it.
func (r *CLIRunner) ApplyOverride(command string, env []string) {
	if command == "" && len(env) == 0 {
		return
	}
	inner := r.spec.BuildArgv
	if command != "" {
		r.spec.BuildArgv = func(prompt string, resume *model.ResumeToken) ([]string, []byte) {
			argv, stdin := inner(prompt, resume)
			if len(argv) > 0 {
				argv[0] = command
			}
			return argv, stdin
		}
	}
	if len(env) > 0 {
		r.spec.Env = append(append([]string{}, r.spec.Env...), env...)
	}
}

func (r *CLIRunner) EngineID() model.EngineID { return r.spec.EngineID }

func (r *CLIRunner) ResolveResume(text string) *model.ResumeToken {
	return r.spec.Resolve(text)
}

// Run implements the Runner contract. It always emits exactly one Started
// event first and exactly one Completed event last, then closes the
// channel, regardless of which of the failure paths in spec §4.3 is taken.
func (r *CLIRunner) Run(ctx context.Context, prompt string, resume *model.ResumeToken) <-chan model.Event {
	out := make(chan model.Event, EventQueueCapacity)
	go r.run(ctx, prompt, resume, out)
	return out
}

func (r *CLIRunner) run(ctx context.Context, prompt string, resume *model.ResumeToken, out chan<- model.Event) {
	defer close(out)

	factory := model.NewEventFactory(r.spec.EngineID)
	resumeKnown := resume != nil
	if resume != nil {
		factory.ObserveResume(*resume)
	}

	var resumeKey string
	if resume != nil {
		resumeKey = resume.Raw
	}
	if resumeKey != "" {
		entry := r.lock.Acquire(resumeKey)
		defer r.lock.Release(resumeKey, entry)
	}

	emit(out, factory.Started(resumeKnown))

	argv, stdin := r.spec.BuildArgv(prompt, resume)
	child, err := r.mgr.Spawn(ctx, argv, r.spec.Env, r.spec.Cwd, stdin)
	if err != nil {
		emit(out, factory.CompletedEvt(false, "", err.Error()))
		return
	}

	hasCompleted := false
	reader := lineio.New(child.Stdout())
	for {
		line, ok := reader.Next()
		if !ok {
			break
		}
		if line.Oversize {
			child.Cancel()
			emit(out, factory.CompletedEvt(false, "", "translation error: line exceeds maximum size"))
			hasCompleted = true
			break
		}
		if strings.TrimSpace(line.Text) == "" {
			continue
		}

		events, terr := r.spec.Translate(factory, line.Text)
		if terr != nil {
			child.Cancel()
			emit(out, factory.CompletedEvt(false, "", fmt.Sprintf("translation error: %v", terr)))
			hasCompleted = true
			break
		}

		for _, e := range events {
			if e.Kind == model.EventCompleted {
				hasCompleted = true
			}
			emit(out, e)
			if hasCompleted {
				break
			}
		}
		if hasCompleted {
			break
		}
	}

	status := child.Wait()

	if hasCompleted {
		return
	}

	switch {
	case status.Cancelled:
		emit(out, factory.CompletedEvt(false, "", "cancelled"))
	case status.Err != nil:
		emit(out, factory.CompletedEvt(false, "", status.Err.Error()))
	case status.Code != 0:
		summary := fmt.Sprintf("exit status %d: %s", status.Code, tailSummary(child.StderrTail()))
		emit(out, factory.ActionNote("error", "child process failed", model.ActionWarning, summary))
		emit(out, factory.CompletedEvt(false, "", summary))
	default:
		emit(out, factory.CompletedEvt(true, "", ""))
	}
}

// emit delivers e on out. The consumer (internal/handler.Handler.run's
// `for e := range events`) never abandons the channel early, draining it
// until the producer closes it regardless of cancellation, so sending
// unconditionally here cannot deadlock and needs no escape against ctx.
func emit(out chan<- model.Event, e model.Event) {
	out <- e
}

const maxTailSummaryLen = 300

func tailSummary(tail []byte) string {
	s := strings.TrimSpace(string(tail))
	if s == "" {
		return "(no stderr output)"
	}
	lines := strings.Split(s, "\n")
	last := outputfmt.SanitizeErrorText(lines[len(lines)-1])
	if len(last) > maxTailSummaryLen {
		last = last[:maxTailSummaryLen] + "…"
	}
	return last
}
