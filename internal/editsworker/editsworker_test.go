package editsworker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/p0s/takopi/internal/model"
	"github.com/p0s/takopi/internal/progress"
)

type fakeEditor struct {
	mu    sync.Mutex
	edits []model.RenderedMessage
	block chan struct{}
}

func (f *fakeEditor) Edit(ctx context.Context, ref model.MessageRef, rendered model.RenderedMessage) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.edits = append(f.edits, rendered)
	f.mu.Unlock()
	return nil
}

func (f *fakeEditor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.edits)
}

func TestWorkerCoalescesBursts(t *testing.T) {
	editor := &fakeEditor{block: make(chan struct{})}
	presenter := progress.NewPresenter()
	ref := model.MessageRef{ThreadID: "t1", MessageID: "m1"}
	w := Start(context.Background(), editor, presenter, ref, nil)

	base := progress.NewState(time.Now())
	base.EngineID = "mock"

	w.Publish(base)
	time.Sleep(20 * time.Millisecond) // let the worker pick up the first snapshot and block in Edit

	for i := 0; i < 20; i++ {
		s := base.Clone()
		s.Answer = "burst"
		w.Publish(s)
	}

	close(editor.block)
	w.Stop()

	if got := editor.count(); got < 1 || got > 2 {
		t.Fatalf("expected coalescing to collapse the burst into ~1-2 edits, got %d", got)
	}
}

func TestWorkerSkipsIdenticalRender(t *testing.T) {
	editor := &fakeEditor{}
	presenter := progress.NewPresenter()
	ref := model.MessageRef{ThreadID: "t1", MessageID: "m1"}
	w := Start(context.Background(), editor, presenter, ref, nil)

	s := progress.NewState(time.Now())
	s.EngineID = "mock"
	w.Publish(s)
	time.Sleep(10 * time.Millisecond)
	w.Publish(s.Clone())
	time.Sleep(10 * time.Millisecond)
	w.Stop()

	if got := editor.count(); got != 1 {
		t.Fatalf("expected identical renders to be skipped after the first, got %d edits", got)
	}
}
