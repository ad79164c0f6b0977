package runner

import (
	"context"
	"time"

	"github.com/p0s/takopi/internal/model"
)

// MockRunner is the "mock" engine from spec §8 scenario 1: a fixture
// engine used in tests and local development that has no external CLI and
// no resume syntax of its own. It implements Runner directly instead of
// going through CLIRunner, since it spawns no subprocess.
type MockRunner struct {
	// Answer is the text returned in the final Completed event.
	Answer string
	// Delay separates each emitted event, letting tests observe
	// intermediate snapshots; zero means emit as fast as possible.
	Delay time.Duration
}

// NewMock builds a MockRunner with a fixed canned answer.
func NewMock(answer string) *MockRunner {
	return &MockRunner{Answer: answer}
}

func (m *MockRunner) EngineID() model.EngineID { return "mock" }

func (m *MockRunner) ResolveResume(text string) *model.ResumeToken { return nil }

func (m *MockRunner) Run(ctx context.Context, prompt string, resume *model.ResumeToken) <-chan model.Event {
	out := make(chan model.Event, EventQueueCapacity)
	go m.run(ctx, out)
	return out
}

func (m *MockRunner) run(ctx context.Context, out chan<- model.Event) {
	defer close(out)
	f := model.NewEventFactory("mock")

	steps := []model.Event{
		f.Started(false),
		f.ActionStartedEvt("thinking", "thinking", "Thinking"),
		f.ActionCompletedEvt("thinking", model.ActionDone, ""),
		f.CompletedEvt(true, m.Answer, ""),
	}

	for _, e := range steps {
		if m.Delay > 0 {
			select {
			case <-time.After(m.Delay):
			case <-ctx.Done():
				emit(out, f.CompletedEvt(false, "", "cancelled"))
				return
			}
		}
		emit(out, e)
	}
}
