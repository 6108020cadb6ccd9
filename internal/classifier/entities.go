package classifier

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/textutil"
)

// Entities are the scheduling facts a single message may carry.
type Entities struct {
	Service    string
	Weekday    *time.Weekday
	Time       string // HH:MM
	PartOfDay  string // manha, tarde or noite
	HasEntries bool
}

var weekdayByName = map[string]time.Weekday{
	"domingo": time.Sunday,
	"segunda": time.Monday,
	"terca":   time.Tuesday,
	"quarta":  time.Wednesday,
	"quinta":  time.Thursday,
	"sexta":   time.Friday,
	"sabado":  time.Saturday,
}

// ParseWeekday maps a Portuguese weekday mention to a time.Weekday.
func ParseWeekday(text string) (time.Weekday, bool) {
	m := reWeekday.FindStringSubmatch(textutil.Normalize(text))
	if m == nil {
		return 0, false
	}
	d, ok := weekdayByName[m[1]]
	return d, ok
}

// ParseTime extracts an explicit clock time ("10h", "14:30", "às 9") as HH:MM.
func ParseTime(text string) (string, bool) {
	normalized := textutil.Normalize(text)
	if m := reClock.FindStringSubmatch(normalized); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		switch {
		case m[2] != "":
			minute, _ = strconv.Atoi(m[2])
		case m[3] != "":
			minute, _ = strconv.Atoi(m[3])
		}
		return fmt.Sprintf("%02d:%02d", hour, minute), true
	}
	if m := reAsHour.FindStringSubmatch(normalized); m != nil {
		hour, _ := strconv.Atoi(m[1])
		return fmt.Sprintf("%02d:00", hour), true
	}
	return "", false
}

// ExtractEntities pulls service, weekday and time from text independently of intent detection.
func ExtractEntities(text string, s *clinic.Settings) Entities {
	var e Entities
	if s != nil {
		if svc, ok := s.FindService(text); ok {
			e.Service = svc.Name
		}
	}
	if d, ok := ParseWeekday(text); ok {
		day := d
		e.Weekday = &day
	}
	if t, ok := ParseTime(text); ok {
		e.Time = t
	}
	if m := rePeriod.FindString(textutil.Normalize(text)); m != "" {
		switch {
		case strings.HasSuffix(m, "manha"):
			e.PartOfDay = "manha"
		case strings.HasSuffix(m, "tarde"):
			e.PartOfDay = "tarde"
		default:
			e.PartOfDay = "noite"
		}
	}
	e.HasEntries = e.Service != "" || e.Weekday != nil || e.Time != "" || e.PartOfDay != ""
	return e
}
