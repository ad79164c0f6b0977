package model

// EventKind is the explicit discriminant of the Event sum type. Per the
// design notes, the event union is a tagged variant, not an inheritance
// hierarchy: every Event carries exactly one Kind and only the fields that
// apply to it are meaningful.
type EventKind string

const (
	EventStarted         EventKind = "started"
	EventAction          EventKind = "action"
	EventActionStarted   EventKind = "action_started"
	EventActionUpdated   EventKind = "action_updated"
	EventActionCompleted EventKind = "action_completed"
	EventCompleted       EventKind = "completed"
)

// Event is a normalized engine event. Always carries EngineID and, once
// known, ResumeToken. Only the fields relevant to Kind are populated.
type Event struct {
	Kind     EventKind
	EngineID EngineID
	Resume   ResumeToken

	// Started
	ResumeKnown bool

	// Action (untracked, no id)
	ActionKind   string
	ActionTitle  string
	ActionDetail string

	// ActionStarted / ActionUpdated / ActionCompleted
	ActionID     string
	ActionStatus ActionStatus

	// ActionUpdated: fields present in this patch. A field is applied only
	// if its corresponding Has* flag is set, since the zero value of a
	// string is indistinguishable from "no change" otherwise.
	HasTitle  bool
	HasDetail bool

	// Completed
	OK     bool
	Answer string
	Error  string
}

// EventFactory stamps every event it produces with the owning engine id and
// the most recently observed resume token for that run, so translators
// never have to thread those two fields through by hand.
type EventFactory struct {
	engineID EngineID
	resume   ResumeToken
}

// NewEventFactory creates a factory for one run of the given engine.
func NewEventFactory(engineID EngineID) *EventFactory {
	return &EventFactory{engineID: engineID}
}

// ObserveResume updates the resume token the factory will stamp onto
// subsequent events. Once a token is observed it is never cleared, per the
// "preserved across subsequent events for that run" invariant.
func (f *EventFactory) ObserveResume(token ResumeToken) {
	if token.IsZero() {
		return
	}
	f.resume = token
}

func (f *EventFactory) stamp(e Event) Event {
	e.EngineID = f.engineID
	e.Resume = f.resume
	return e
}

// Started builds the first event of a run.
func (f *EventFactory) Started(resumeKnown bool) Event {
	return f.stamp(Event{Kind: EventStarted, ResumeKnown: resumeKnown})
}

// ActionNote builds an untracked Action event. It carries no id and is
// never transitioned again, so status is fixed at creation rather than
// reached by a later ActionCompleted.
func (f *EventFactory) ActionNote(kind, title string, status ActionStatus, detail string) Event {
	return f.stamp(Event{Kind: EventAction, ActionKind: kind, ActionTitle: title, ActionStatus: status, ActionDetail: detail})
}

// ActionStartedEvt builds an ActionStarted event.
func (f *EventFactory) ActionStartedEvt(id, kind, title string) Event {
	return f.stamp(Event{Kind: EventActionStarted, ActionID: id, ActionKind: kind, ActionTitle: title})
}

// ActionUpdatedEvt builds an ActionUpdated event. Pass hasTitle/hasDetail to
// indicate which fields this patch actually changes.
func (f *EventFactory) ActionUpdatedEvt(id, title string, hasTitle bool, detail string, hasDetail bool) Event {
	return f.stamp(Event{
		Kind: EventActionUpdated, ActionID: id,
		ActionTitle: title, HasTitle: hasTitle,
		ActionDetail: detail, HasDetail: hasDetail,
	})
}

// ActionCompletedEvt builds an ActionCompleted event.
func (f *EventFactory) ActionCompletedEvt(id string, status ActionStatus, detail string) Event {
	return f.stamp(Event{Kind: EventActionCompleted, ActionID: id, ActionStatus: status, ActionDetail: detail, HasDetail: detail != ""})
}

// CompletedEvt builds the terminal event of a run.
func (f *EventFactory) CompletedEvt(ok bool, answer, errMsg string) Event {
	return f.stamp(Event{Kind: EventCompleted, OK: ok, Answer: answer, Error: errMsg})
}
