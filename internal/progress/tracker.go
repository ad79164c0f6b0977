package progress

import (
	"time"

	"github.com/p0s/takopi/internal/model"
)

// Tracker is the pure reducer described in spec §4.4: note_event(state,
// event) -> state'. It holds no I/O handles and no goroutines; callers
// (the Message Handler) own sequencing and publish the resulting snapshots
// to the edits worker themselves.
type Tracker struct {
	now func() time.Time
}

// NewTracker builds a Tracker. now defaults to time.Now; tests may override
// it for deterministic ActionCompleted/Started timestamps.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now}
}

// NoteEvent folds one event into state, returning the new state. state is
// passed by value and never mutated in place, matching the "pure function"
// contract and the "two runs consuming identical sequences produce
// byte-identical ProgressState" testable property.
func (t *Tracker) NoteEvent(state State, e model.Event) State {
	if state.done {
		return state
	}

	state = state.Clone()
	state.EngineID = e.EngineID
	if !e.Resume.IsZero() {
		state.Resume = e.Resume
		state.ResumeKnown = true
	}

	switch e.Kind {
	case model.EventStarted:
		state.ResumeKnown = state.ResumeKnown || e.ResumeKnown
		if state.StartedAt.IsZero() {
			state.StartedAt = t.now()
		}

	case model.EventAction:
		state.Actions = append(state.Actions, model.Action{
			Kind:   e.ActionKind,
			Title:  e.ActionTitle,
			Detail: e.ActionDetail,
			Status: e.ActionStatus,
		})

	case model.EventActionStarted:
		state.Actions = append(state.Actions, model.Action{
			ID:        e.ActionID,
			Kind:      e.ActionKind,
			Title:     e.ActionTitle,
			Status:    model.ActionRunning,
			StartedAt: t.now(),
		})

	case model.EventActionUpdated:
		idx := state.actionIndex(e.ActionID)
		if idx < 0 {
			break // ignored if id unknown, per spec
		}
		a := state.Actions[idx]
		if e.HasTitle {
			a.Title = e.ActionTitle
		}
		if e.HasDetail {
			a.Detail = e.ActionDetail
		}
		state.Actions[idx] = a

	case model.EventActionCompleted:
		idx := state.actionIndex(e.ActionID)
		if idx < 0 {
			break
		}
		a := state.Actions[idx]
		if model.CanTransition(a.Status, e.ActionStatus) {
			a.Status = e.ActionStatus
			a.EndedAt = t.now()
			if e.HasDetail {
				a.Detail = e.ActionDetail
			}
		}
		state.Actions[idx] = a

	case model.EventCompleted:
		state.OK = e.OK
		state.Answer = e.Answer
		state.Error = e.Error
		switch {
		case e.Error == "cancelled":
			state.Status = StatusCancelled
		case e.OK:
			state.Status = StatusOK
		default:
			state.Status = StatusError
		}
		state.done = true
	}

	return state
}
