// Package compliance holds send-time policies for messages the clinic initiates.
package compliance

import (
	"fmt"
	"time"
)

// Purpose distinguishes replies to a patient from messages the clinic starts.
type Purpose string

const (
	PurposeReply     Purpose = "reply"
	PurposeProactive Purpose = "proactive"
)

// Clock is a time of day in minutes after midnight.
type Clock int

// ParseClock reads "HH:MM".
func ParseClock(v string) (Clock, error) {
	var h, m int
	if _, err := fmt.Sscanf(v, "%d:%d", &h, &m); err != nil || len(v) != 5 {
		return 0, fmt.Errorf("compliance: invalid clock %q", v)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("compliance: clock %q out of range", v)
	}
	return Clock(h*60 + m), nil
}

func clockOf(t time.Time) Clock { return Clock(t.Hour()*60 + t.Minute()) }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60) }

// QuietHours is a daily local window, possibly crossing midnight, during which
// proactive messages are held. The zero value never holds anything.
type QuietHours struct {
	Start, End Clock
	loc        *time.Location
}

// ParseQuietHours builds the window [start, end) in loc (UTC when nil).
func ParseQuietHours(start, end string, loc *time.Location) (QuietHours, error) {
	s, err := ParseClock(start)
	if err != nil {
		return QuietHours{}, fmt.Errorf("compliance: quiet hours start: %w", err)
	}
	e, err := ParseClock(end)
	if err != nil {
		return QuietHours{}, fmt.Errorf("compliance: quiet hours end: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return QuietHours{Start: s, End: e, loc: loc}, nil
}

// Active reports whether now falls inside the window.
func (q QuietHours) Active(now time.Time) bool {
	if q.loc == nil || q.Start == q.End {
		return false
	}
	c := clockOf(now.In(q.loc))
	if q.Start < q.End {
		return c >= q.Start && c < q.End
	}
	return c >= q.Start || c < q.End
}

// Suppress reports whether a send of the given purpose must wait.
func (q QuietHours) Suppress(now time.Time, purpose Purpose) bool {
	return purpose == PurposeProactive && q.Active(now)
}

// Resume returns when the window containing now closes, or now when it is not active.
func (q QuietHours) Resume(now time.Time) time.Time {
	if !q.Active(now) {
		return now
	}
	local := now.In(q.loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), int(q.End)/60, int(q.End)%60, 0, 0, q.loc)
	if !end.After(local) {
		end = end.AddDate(0, 0, 1)
	}
	return end
}

func (q QuietHours) String() string {
	if q.loc == nil {
		return "disabled"
	}
	return fmt.Sprintf("%s-%s %s", q.Start, q.End, q.loc)
}
