package router

import (
	"testing"

	"github.com/p0s/takopi/internal/runner"
	"github.com/p0s/takopi/internal/takopierr"
)

func newTestRegistry() *runner.Registry {
	reg := runner.NewRegistry()
	reg.Register(runner.NewMock("mock answer"))
	reg.Register(runner.NewCodex(nil))
	reg.Register(runner.NewClaude(nil))
	reg.Register(runner.NewOpencode(nil))
	reg.Register(runner.NewPi(nil))
	return reg
}

func TestRouterEnginePrefix(t *testing.T) {
	r := New(newTestRegistry(), "mock")
	d, err := r.Route("t1", "/codex\nrefactor this", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.EngineID != "codex" {
		t.Fatalf("expected codex, got %v", d.EngineID)
	}
	if d.Prompt != "refactor this" {
		t.Fatalf("expected stripped prompt, got %q", d.Prompt)
	}
}

func TestRouterResumeInTextStripsLine(t *testing.T) {
	r := New(newTestRegistry(), "mock")
	d, err := r.Route("t1", "codex resume abc123 please continue", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.EngineID != "codex" || d.Resume == nil || d.Resume.SessionID != "abc123" {
		t.Fatalf("expected codex resume abc123, got %+v", d)
	}
	if d.Prompt != "please continue" {
		t.Fatalf("expected resume line stripped, got %q", d.Prompt)
	}
}

func TestRouterResumeInReplyLeavesTextUntouched(t *testing.T) {
	r := New(newTestRegistry(), "mock")
	d, err := r.Route("t1", "continue", "pi --session /tmp/s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.EngineID != "pi" || d.Resume == nil || d.Resume.SessionPath != "/tmp/s1" {
		t.Fatalf("expected pi resume /tmp/s1, got %+v", d)
	}
	if d.Prompt != "continue" {
		t.Fatalf("expected text untouched, got %q", d.Prompt)
	}
}

func TestRouterDefaultEngine(t *testing.T) {
	r := New(newTestRegistry(), "mock")
	d, err := r.Route("t1", "write a haiku", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.EngineID != "mock" || d.Resume != nil {
		t.Fatalf("expected default mock with no resume, got %+v", d)
	}
}

func TestRouterUnavailableEngine(t *testing.T) {
	r := New(newTestRegistry(), "mock")
	_, err := r.Route("t1", "/nope\nhello", "")
	var unavailable *takopierr.RunnerUnavailable
	if err == nil {
		t.Fatalf("expected error")
	}
	if !asRunnerUnavailable(err, &unavailable) {
		t.Fatalf("expected RunnerUnavailable, got %v", err)
	}
}

func TestRouterNoEngines(t *testing.T) {
	r := New(runner.NewRegistry(), "mock")
	_, err := r.Route("t1", "hi", "")
	if err != takopierr.ErrNoEngines {
		t.Fatalf("expected ErrNoEngines, got %v", err)
	}
}

func TestRouterFallsBackToRememberedResume(t *testing.T) {
	cache := NewLastResumeCache(t.TempDir())
	r := New(newTestRegistry(), "mock").WithCache(cache)

	d, err := r.Route("thread-9", "codex resume abc123 start", "")
	if err != nil {
		t.Fatalf("seed route: %v", err)
	}
	if d.EngineID != "codex" {
		t.Fatalf("expected codex, got %v", d.EngineID)
	}

	// A later message on the same thread, with no prefix or resume syntax
	// of its own, should land back on codex with the remembered token.
	d2, err := r.Route("thread-9", "keep going", "")
	if err != nil {
		t.Fatalf("followup route: %v", err)
	}
	if d2.EngineID != "codex" || d2.Resume == nil || d2.Resume.Raw != d.Resume.Raw {
		t.Fatalf("expected remembered codex resume, got %+v", d2)
	}
	if d2.Prompt != "keep going" {
		t.Fatalf("expected prompt untouched, got %q", d2.Prompt)
	}

	// A different, unseen thread still falls through to the default.
	d3, err := r.Route("thread-other", "keep going", "")
	if err != nil {
		t.Fatalf("other thread route: %v", err)
	}
	if d3.EngineID != "mock" || d3.Resume != nil {
		t.Fatalf("expected default mock with no resume, got %+v", d3)
	}
}

func asRunnerUnavailable(err error, target **takopierr.RunnerUnavailable) bool {
	if e, ok := err.(*takopierr.RunnerUnavailable); ok {
		*target = e
		return true
	}
	return false
}
