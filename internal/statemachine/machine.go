// Package statemachine validates top-level conversation transitions.
//
// The machine is a pure lookup over a fixed transition table plus guard
// predicates. It holds no state; callers persist the state it returns.
package statemachine

import (
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// State is a top-level conversation state.
type State string

const (
	Init                State = "INIT"
	AutoAttendance      State = "AUTO_ATTENDANCE"
	FAQFlow             State = "FAQ_FLOW"
	SchedulingFlow      State = "SCHEDULING_FLOW"
	ConfirmationPending State = "CONFIRMATION_PENDING"
	HumanHandoff        State = "HUMAN_HANDOFF"
	Paused              State = "PAUSED"
	Blocked             State = "BLOCKED"
	Completed           State = "COMPLETED"
)

// IsTerminal reports whether no event can leave the state.
func (s State) IsTerminal() bool { return s == Blocked }

// IsActive reports whether the conversation can still receive turns.
func (s State) IsActive() bool { return s != Blocked && s != Completed }

// SuppressesReplies reports whether the bot must stay silent towards the customer.
func (s State) SuppressesReplies() bool { return s == HumanHandoff || s == Paused || s == Blocked }

// Event names a transition trigger.
type Event string

const (
	EventNone                Event = ""
	EventAttend              Event = "ATTEND"
	EventAnswerFAQ           Event = "ANSWER_FAQ"
	EventStartScheduling     Event = "START_SCHEDULING"
	EventRequestHuman        Event = "REQUEST_HUMAN"
	EventEscalate            Event = "ESCALATE"
	EventCancel              Event = "CANCEL"
	EventCompleteFlow        Event = "COMPLETE_FLOW"
	EventRequestConfirmation Event = "REQUEST_CONFIRMATION"
	EventConfirm             Event = "CONFIRM"
	EventReject              Event = "REJECT"
	EventPause               Event = "PAUSE"
	EventResume              Event = "RESUME"
	EventBlock               Event = "BLOCK"
	EventEnd                 Event = "END"
	EventNewContact          Event = "NEW_CONTACT"
	EventHandoffResolved     Event = "HANDOFF_RESOLVED"
)

// Transition is one allowed (from, event) -> to triple.
type Transition struct {
	From  State
	To    State
	Event Event
}

// Facts are the inputs guards evaluate.
type Facts struct {
	ServicesConfigured bool
	AdminActor         bool
}

// Guard may veto a transition the table allows.
type Guard func(t Transition, f Facts) bool

var defaultTransitions = []Transition{
	{Init, AutoAttendance, EventAttend},
	{Init, FAQFlow, EventAnswerFAQ},
	{Init, SchedulingFlow, EventStartScheduling},
	{Init, HumanHandoff, EventRequestHuman},
	{Init, HumanHandoff, EventEscalate},
	{Init, ConfirmationPending, EventRequestConfirmation},
	{Init, Completed, EventEnd},
	{Init, Paused, EventPause},
	{Init, Blocked, EventBlock},

	{AutoAttendance, AutoAttendance, EventAttend},
	{AutoAttendance, FAQFlow, EventAnswerFAQ},
	{AutoAttendance, SchedulingFlow, EventStartScheduling},
	{AutoAttendance, HumanHandoff, EventRequestHuman},
	{AutoAttendance, HumanHandoff, EventEscalate},
	{AutoAttendance, ConfirmationPending, EventRequestConfirmation},
	{AutoAttendance, Completed, EventEnd},
	{AutoAttendance, Paused, EventPause},
	{AutoAttendance, Blocked, EventBlock},

	{FAQFlow, AutoAttendance, EventAttend},
	{FAQFlow, FAQFlow, EventAnswerFAQ},
	{FAQFlow, SchedulingFlow, EventStartScheduling},
	{FAQFlow, HumanHandoff, EventRequestHuman},
	{FAQFlow, HumanHandoff, EventEscalate},
	{FAQFlow, ConfirmationPending, EventRequestConfirmation},
	{FAQFlow, Completed, EventEnd},
	{FAQFlow, Paused, EventPause},
	{FAQFlow, Blocked, EventBlock},

	{SchedulingFlow, SchedulingFlow, EventStartScheduling},
	{SchedulingFlow, AutoAttendance, EventCancel},
	{SchedulingFlow, AutoAttendance, EventCompleteFlow},
	{SchedulingFlow, HumanHandoff, EventRequestHuman},
	{SchedulingFlow, HumanHandoff, EventEscalate},
	{SchedulingFlow, Completed, EventEnd},
	{SchedulingFlow, Paused, EventPause},
	{SchedulingFlow, Blocked, EventBlock},

	{ConfirmationPending, AutoAttendance, EventConfirm},
	{ConfirmationPending, AutoAttendance, EventReject},
	{ConfirmationPending, SchedulingFlow, EventStartScheduling},
	{ConfirmationPending, HumanHandoff, EventRequestHuman},
	{ConfirmationPending, HumanHandoff, EventEscalate},
	{ConfirmationPending, Completed, EventEnd},
	{ConfirmationPending, Blocked, EventBlock},

	{HumanHandoff, AutoAttendance, EventHandoffResolved},
	{HumanHandoff, Paused, EventPause},
	{HumanHandoff, Blocked, EventBlock},

	{Paused, AutoAttendance, EventResume},
	{Paused, Blocked, EventBlock},

	{Completed, Init, EventNewContact},
}

func requireAdmin(_ Transition, f Facts) bool { return f.AdminActor }

func defaultGuards() map[Event]Guard {
	return map[Event]Guard{
		EventStartScheduling: func(_ Transition, f Facts) bool { return f.ServicesConfigured },
		EventPause:           requireAdmin,
		EventResume:          requireAdmin,
		EventBlock:           requireAdmin,
		EventHandoffResolved: requireAdmin,
	}
}

// Machine evaluates transitions.
type Machine struct {
	transitions []Transition
	guards      map[Event]Guard
	logger      *logging.Logger
}

// Option customizes a Machine.
type Option func(*Machine)

// WithGuard installs (or replaces) the guard for an event.
func WithGuard(event Event, g Guard) Option {
	return func(m *Machine) {
		m.guards[event] = g
	}
}

// WithTransitions replaces the transition table.
func WithTransitions(ts []Transition) Option {
	return func(m *Machine) {
		m.transitions = append([]Transition(nil), ts...)
	}
}

// New returns a machine over the default table and guards.
func New(logger *logging.Logger, opts ...Option) *Machine {
	if logger == nil {
		logger = logging.Default()
	}
	m := &Machine{
		transitions: defaultTransitions,
		guards:      defaultGuards(),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NextState returns the state reached from `from` on `event`.
// The second result is false when the table has no such triple or a guard vetoes it;
// the caller then stays in `from`.
func (m *Machine) NextState(from State, event Event, facts Facts) (State, bool) {
	if event == EventNone {
		return from, false
	}
	for _, t := range m.transitions {
		if t.From != from || t.Event != event {
			continue
		}
		if guard, ok := m.guards[event]; ok && !guard(t, facts) {
			m.logger.Warn("state transition vetoed by guard", "from", from, "event", event, "to", t.To)
			return from, false
		}
		return t.To, true
	}
	m.logger.Info("no state transition", "from", from, "event", event)
	return from, false
}

// Events lists the events with a transition out of the state, in table order.
func (m *Machine) Events(from State) []Event {
	var out []Event
	for _, t := range m.transitions {
		if t.From == from {
			out = append(out, t.Event)
		}
	}
	return out
}
