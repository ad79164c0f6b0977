// Package progress implements the pure reducer and presenter that turn a
// runner's event sequence into a live-updating chat message.
package progress

import (
	"time"

	"github.com/p0s/takopi/internal/model"
)

// OverallStatus is the run-level status recorded at Completed time.
type OverallStatus string

const (
	StatusRunning   OverallStatus = "running"
	StatusOK        OverallStatus = "ok"
	StatusError     OverallStatus = "error"
	StatusCancelled OverallStatus = "cancelled"
)

// State is the reducer snapshot: the ordered list of actions, the current
// resume token, engine metadata, final answer text, and overall status. It
// is constructed empty at run start and mutated only by Tracker.NoteEvent.
type State struct {
	EngineID    model.EngineID
	Resume      model.ResumeToken
	ResumeKnown bool
	StartedAt   time.Time

	Actions []model.Action

	Status OverallStatus
	OK     bool
	Answer string
	Error  string

	done bool // Completed already folded; further events ignored.
}

// NewState constructs the empty snapshot a run starts with.
func NewState(now time.Time) State {
	return State{Status: StatusRunning, StartedAt: now}
}

// Clone returns a deep-enough copy safe to hand to a presenter or edits
// worker without risking a data race with the reducer goroutine.
func (s State) Clone() State {
	out := s
	out.Actions = make([]model.Action, len(s.Actions))
	copy(out.Actions, s.Actions)
	return out
}

func (s State) actionIndex(id string) int {
	for i := range s.Actions {
		if s.Actions[i].ID == id {
			return i
		}
	}
	return -1
}
