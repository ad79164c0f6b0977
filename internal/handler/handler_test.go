package handler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/p0s/takopi/internal/model"
	"github.com/p0s/takopi/internal/router"
	"github.com/p0s/takopi/internal/runner"
	"github.com/p0s/takopi/internal/scheduler"
	"github.com/p0s/takopi/internal/transport"
)

type fakeTransport struct {
	mu      sync.Mutex
	nextID  int
	sent    []model.RenderedMessage
	edits   map[string][]model.RenderedMessage
	deleted []model.MessageRef
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{edits: map[string][]model.RenderedMessage{}}
}

func (f *fakeTransport) ID() string { return "fake" }

func (f *fakeTransport) Send(ctx context.Context, threadID string, rendered model.RenderedMessage, opts transport.Options) (model.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, rendered)
	return model.MessageRef{ThreadID: threadID, MessageID: fmt.Sprintf("m%d", f.nextID)}, nil
}

func (f *fakeTransport) Edit(ctx context.Context, ref model.MessageRef, rendered model.RenderedMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits[ref.MessageID] = append(f.edits[ref.MessageID], rendered)
	return nil
}

func (f *fakeTransport) Delete(ctx context.Context, ref model.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *fakeTransport) Poll(ctx context.Context) <-chan model.IncomingMessage {
	ch := make(chan model.IncomingMessage)
	close(ch)
	return ch
}

func (f *fakeTransport) lastEdit(messageID string) (model.RenderedMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	edits := f.edits[messageID]
	if len(edits) == 0 {
		return model.RenderedMessage{}, false
	}
	return edits[len(edits)-1], true
}

func newTestHandler(tp *fakeTransport) (*Handler, func()) {
	reg := runner.NewRegistry()
	reg.Register(runner.NewMock("the answer"))
	rt := router.New(reg, "mock")
	ctx, cancel := context.WithCancel(context.Background())
	sched := scheduler.New(ctx)
	h := New(reg, rt, sched, tp, nil)
	return h, cancel
}

func TestHandlerHappyPathRendersFinalAnswer(t *testing.T) {
	tp := newFakeTransport()
	h, cancel := newTestHandler(tp)
	defer cancel()

	h.HandleMessage(context.Background(), model.IncomingMessage{ThreadID: "t1", MessageID: "1", Text: "hello"})

	deadline := time.After(2 * time.Second)
	for {
		tp.mu.Lock()
		n := len(tp.sent)
		tp.mu.Unlock()
		if n >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for initial send")
		case <-time.After(10 * time.Millisecond):
		}
	}

	tp.mu.Lock()
	msgID := fmt.Sprintf("m%d", tp.nextID)
	tp.mu.Unlock()

	deadline = time.After(2 * time.Second)
	for {
		if rendered, ok := tp.lastEdit(msgID); ok && rendered.Text != "" {
			if contains(rendered.Text, "the answer") {
				return
			}
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for final render containing the answer")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func TestHandlerCancelReplyTargetsRunningTask(t *testing.T) {
	tp := newFakeTransport()
	reg := runner.NewRegistry()
	reg.Register(&runner.MockRunner{Answer: "slow", Delay: 200 * time.Millisecond})
	rt := router.New(reg, "mock")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched := scheduler.New(ctx)
	h := New(reg, rt, sched, tp, nil)

	h.HandleMessage(context.Background(), model.IncomingMessage{ThreadID: "t1", MessageID: "1", Text: "hello"})

	var msgID string
	deadline := time.After(1 * time.Second)
	for msgID == "" {
		tp.mu.Lock()
		if tp.nextID > 0 {
			msgID = fmt.Sprintf("m%d", tp.nextID)
		}
		tp.mu.Unlock()
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for progress message")
		case <-time.After(5 * time.Millisecond):
		}
	}

	h.HandleMessage(context.Background(), model.IncomingMessage{
		ThreadID: "t1", MessageID: "2", Text: "/cancel",
		ReplyTo: &model.IncomingMessage{MessageID: msgID},
	})

	deadline = time.After(1 * time.Second)
	for {
		if rendered, ok := tp.lastEdit(msgID); ok && contains(rendered.Text, "cancelled") {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for cancelled final render")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
