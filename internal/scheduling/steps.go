package scheduling

import (
	"encoding/json"
	"fmt"
)

// StepKind names a scheduling step.
type StepKind string

const (
	KindSelectService StepKind = "SELECT_SERVICE"
	KindSelectDate    StepKind = "SELECT_DATE"
	KindSelectTime    StepKind = "SELECT_TIME"
	KindConfirm       StepKind = "CONFIRM"
	KindWaitlistOffer StepKind = "WAITLIST_OFFER"
)

// Step is one variant of the booking sub-flow. Each variant carries only the
// fields its step needs.
type Step interface {
	Kind() StepKind
	isStep()
}

// ServiceChoice is the catalog entry captured at SELECT_SERVICE.
type ServiceChoice struct {
	Name            string `json:"name"`
	PriceCents      int    `json:"price_cents"`
	DurationMinutes int    `json:"duration_minutes"`
}

// SelectService waits for a catalog choice.
type SelectService struct{}

// SelectDate waits for a day. PendingDate holds an offered alternative day
// that an affirmative reply accepts.
type SelectDate struct {
	Service     ServiceChoice `json:"service"`
	PendingDate string        `json:"pending_date,omitempty"`
}

// SelectTime negotiates one suggested slot at a time. Rejected holds the
// slots the user declined for Date.
type SelectTime struct {
	Service   ServiceChoice `json:"service"`
	Date      string        `json:"date"`
	Suggested string        `json:"suggested"`
	Rejected  []string      `json:"rejected,omitempty"`
}

// Confirm waits for a yes/no on the chosen slot. Rejected carries the slots
// declined for Date so a lost race never offers them again.
type Confirm struct {
	Service  ServiceChoice `json:"service"`
	Date     string        `json:"date"`
	Time     string        `json:"time"`
	Rejected []string      `json:"rejected,omitempty"`
}

// WaitlistOffer asks whether to join the waitlist for a full day.
type WaitlistOffer struct {
	Service ServiceChoice `json:"service"`
	Date    string        `json:"date"`
}

func (SelectService) Kind() StepKind { return KindSelectService }
func (SelectDate) Kind() StepKind    { return KindSelectDate }
func (SelectTime) Kind() StepKind    { return KindSelectTime }
func (Confirm) Kind() StepKind       { return KindConfirm }
func (WaitlistOffer) Kind() StepKind { return KindWaitlistOffer }

func (SelectService) isStep() {}
func (SelectDate) isStep()    {}
func (SelectTime) isStep()    {}
func (Confirm) isStep()       {}
func (WaitlistOffer) isStep() {}

// State is the booking progress kept in the conversation context.
type State struct {
	Step Step
	// Replaces is the appointment cancelled once a reschedule is confirmed.
	Replaces string
}

// Active reports whether a booking is in progress.
func (s *State) Active() bool { return s != nil && s.Step != nil }

// Service returns the chosen service, if any.
func (s *State) Service() (ServiceChoice, bool) {
	if s == nil {
		return ServiceChoice{}, false
	}
	switch st := s.Step.(type) {
	case SelectDate:
		return st.Service, true
	case SelectTime:
		return st.Service, true
	case Confirm:
		return st.Service, true
	case WaitlistOffer:
		return st.Service, true
	}
	return ServiceChoice{}, false
}

type stateEnvelope struct {
	Kind     StepKind        `json:"kind"`
	Data     json.RawMessage `json:"data,omitempty"`
	Replaces string          `json:"replaces,omitempty"`
}

// MarshalJSON encodes the step as a kind/data envelope.
func (s State) MarshalJSON() ([]byte, error) {
	if s.Step == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(s.Step)
	if err != nil {
		return nil, fmt.Errorf("scheduling: marshal step: %w", err)
	}
	return json.Marshal(stateEnvelope{Kind: s.Step.Kind(), Data: data, Replaces: s.Replaces})
}

// UnmarshalJSON decodes the kind/data envelope back into a step variant.
func (s *State) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = State{}
		return nil
	}
	var env stateEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("scheduling: unmarshal state: %w", err)
	}
	var step Step
	var err error
	switch env.Kind {
	case KindSelectService:
		step = SelectService{}
	case KindSelectDate:
		var v SelectDate
		err = json.Unmarshal(env.Data, &v)
		step = v
	case KindSelectTime:
		var v SelectTime
		err = json.Unmarshal(env.Data, &v)
		step = v
	case KindConfirm:
		var v Confirm
		err = json.Unmarshal(env.Data, &v)
		step = v
	case KindWaitlistOffer:
		var v WaitlistOffer
		err = json.Unmarshal(env.Data, &v)
		step = v
	default:
		return fmt.Errorf("scheduling: unknown step kind %q", env.Kind)
	}
	if err != nil {
		return fmt.Errorf("scheduling: unmarshal %s: %w", env.Kind, err)
	}
	*s = State{Step: step, Replaces: env.Replaces}
	return nil
}
