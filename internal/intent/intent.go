// Package intent enumerates the intent labels produced by every resolver.
package intent

import "strings"

// Intent is a resolved user intent label.
type Intent string

const (
	Greeting       Intent = "GREETING"
	ScheduleNew    Intent = "SCHEDULE_NEW"
	Reschedule     Intent = "RESCHEDULE"
	Cancel         Intent = "CANCEL"
	HumanHandoff   Intent = "HUMAN_HANDOFF"
	Prices         Intent = "PRICES"
	Services       Intent = "SERVICES"
	Hours          Intent = "HOURS"
	Location       Intent = "LOCATION"
	Payment        Intent = "PAYMENT"
	Contact        Intent = "CONTACT"
	FAQ            Intent = "FAQ"
	Menu           Intent = "MENU"
	ConfirmYes     Intent = "CONFIRM_YES"
	ConfirmNo      Intent = "CONFIRM_NO"
	Thanks         Intent = "THANKS"
	Farewell       Intent = "FAREWELL"
	MyAppointments Intent = "MY_APPOINTMENTS"
	SmallTalk      Intent = "SMALL_TALK"
	Admin          Intent = "ADMIN"
	Unknown        Intent = "UNKNOWN"
)

var known = map[Intent]struct{}{
	Greeting: {}, ScheduleNew: {}, Reschedule: {}, Cancel: {}, HumanHandoff: {},
	Prices: {}, Services: {}, Hours: {}, Location: {}, Payment: {}, Contact: {},
	FAQ: {}, Menu: {}, ConfirmYes: {}, ConfirmNo: {}, Thanks: {}, Farewell: {},
	MyAppointments: {}, SmallTalk: {},
}

// Parse maps a free-form label (as returned by an AI model) to a known intent.
// Unrecognized labels map to Unknown.
func Parse(label string) Intent {
	candidate := Intent(strings.ToUpper(strings.TrimSpace(label)))
	candidate = Intent(strings.ReplaceAll(string(candidate), " ", "_"))
	if _, ok := known[candidate]; ok {
		return candidate
	}
	switch candidate {
	case "SCHEDULE", "SCHEDULING", "BOOKING", "BOOK":
		return ScheduleNew
	case "HUMAN", "HANDOFF", "ESCALATE":
		return HumanHandoff
	case "PRICE", "PRICING":
		return Prices
	case "YES", "CONFIRM":
		return ConfirmYes
	case "NO", "DENY":
		return ConfirmNo
	}
	return Unknown
}

// IsScheduling reports whether the intent opens the booking sub-flow.
func (i Intent) IsScheduling() bool {
	return i == ScheduleNew || i == Reschedule
}

// IsInformational reports whether the intent is answered from clinic settings alone.
func (i Intent) IsInformational() bool {
	switch i {
	case Prices, Services, Hours, Location, Payment, Contact, FAQ, Menu:
		return true
	}
	return false
}

func (i Intent) String() string { return string(i) }
