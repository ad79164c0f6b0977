// Package runner implements spec §4.3: one Runner per engine, each owning a
// child process, translating its JSONL dialect into domain events, and
// exposing a single bounded event channel per run.
package runner

import (
	"context"

	"github.com/p0s/takopi/internal/model"
)

// Runner is the capability interface spec.md §9 asks for: {run,
// resolve_resume, engine_id}. Concrete engines are registered under this
// interface in a Registry.
type Runner interface {
	EngineID() model.EngineID
	// Run returns a finite, single-use channel of events for one
	// invocation. It always closes the channel after delivering exactly
	// one Completed event.
	Run(ctx context.Context, prompt string, resume *model.ResumeToken) <-chan model.Event
	// ResolveResume scans text for this engine's resume syntax. Pure, no I/O.
	ResolveResume(text string) *model.ResumeToken
}

// EventQueueCapacity is the bounded internal queue size between the JSONL
// translator and the external consumer, per spec §4.3.
const EventQueueCapacity = 128
