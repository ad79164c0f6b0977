package runner

import (
	"context"
	"testing"
	"time"

	"github.com/p0s/takopi/internal/model"
	"github.com/p0s/takopi/internal/subprocess"
)

func collectEvents(ch <-chan model.Event) []model.Event {
	var out []model.Event
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func TestCLIRunnerHappyPath(t *testing.T) {
	mgr := subprocess.NewManager()
	spec := Spec{
		EngineID: "codex",
		BuildArgv: func(prompt string, resume *model.ResumeToken) ([]string, []byte) {
			script := `printf '{"msg":{"type":"task_started"}}\n{"msg":{"type":"exec_command_begin","call_id":"1","command":"ls"}}\n{"msg":{"type":"exec_command_end","call_id":"1","exit_code":0}}\n{"msg":{"type":"task_complete","message":"done"}}\n'`
			return []string{"sh", "-c", script}, nil
		},
		Translate: translateCodex,
		Resolve:   ResolveCodexResume,
	}
	r := New(spec, mgr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := collectEvents(r.Run(ctx, "write a haiku", nil))
	if len(events) == 0 {
		t.Fatalf("expected events")
	}
	if events[0].Kind != model.EventStarted {
		t.Fatalf("expected first event Started, got %v", events[0].Kind)
	}
	last := events[len(events)-1]
	if last.Kind != model.EventCompleted {
		t.Fatalf("expected last event Completed, got %v", last.Kind)
	}
	if !last.OK || last.Answer != "done" {
		t.Fatalf("expected ok completion with answer 'done', got %+v", last)
	}

	startedCount, completedCount := 0, 0
	for _, e := range events {
		switch e.Kind {
		case model.EventStarted:
			startedCount++
		case model.EventCompleted:
			completedCount++
		}
	}
	if startedCount != 1 {
		t.Fatalf("expected exactly one Started event, got %d", startedCount)
	}
	if completedCount != 1 {
		t.Fatalf("expected exactly one Completed event, got %d", completedCount)
	}
}

func TestCLIRunnerChildNonZeroExit(t *testing.T) {
	mgr := subprocess.NewManager()
	spec := Spec{
		EngineID: "codex",
		BuildArgv: func(prompt string, resume *model.ResumeToken) ([]string, []byte) {
			return []string{"sh", "-c", "echo oops 1>&2; exit 2"}, nil
		},
		Translate: translateCodex,
		Resolve:   ResolveCodexResume,
	}
	r := New(spec, mgr)
	ctx := context.Background()
	events := collectEvents(r.Run(ctx, "prompt", nil))

	last := events[len(events)-1]
	if last.Kind != model.EventCompleted || last.OK {
		t.Fatalf("expected failing Completed, got %+v", last)
	}

	sawWarning := false
	for _, e := range events {
		if e.Kind == model.EventAction {
			if e.ActionStatus != model.ActionWarning {
				t.Fatalf("expected action status warning for non-zero exit, got %v", e.ActionStatus)
			}
			sawWarning = true
		}
	}
	if !sawWarning {
		t.Fatalf("expected a warning action for non-zero exit")
	}
}

func TestCLIRunnerCancellation(t *testing.T) {
	mgr := subprocess.NewManager()
	spec := Spec{
		EngineID: "codex",
		BuildArgv: func(prompt string, resume *model.ResumeToken) ([]string, []byte) {
			return []string{"sh", "-c", "trap '' TERM; sleep 30"}, nil
		},
		Translate: translateCodex,
		Resolve:   ResolveCodexResume,
	}
	r := New(spec, mgr)
	ctx, cancel := context.WithCancel(context.Background())

	ch := r.Run(ctx, "prompt", nil)
	time.Sleep(200 * time.Millisecond)
	cancel()

	start := time.Now()
	events := collectEvents(ch)
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Fatalf("expected cancellation to settle quickly, took %v", elapsed)
	}
	last := events[len(events)-1]
	if last.Kind != model.EventCompleted || last.OK || last.Error != "cancelled" {
		t.Fatalf("expected cancelled Completed, got %+v", last)
	}
}

func TestCLIRunnerResolveResume(t *testing.T) {
	r := NewCodex(subprocess.NewManager())
	tok := r.ResolveResume("please codex resume abc123 and continue")
	if tok == nil || tok.SessionID != "abc123" {
		t.Fatalf("expected resume token abc123, got %+v", tok)
	}
	if r.ResolveResume("nothing here") != nil {
		t.Fatalf("expected no match")
	}
}
