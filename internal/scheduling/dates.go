package scheduling

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/clinic-concierge/internal/classifier"
	"github.com/wolfman30/clinic-concierge/internal/storage"
	"github.com/wolfman30/clinic-concierge/internal/textutil"
)

var (
	reISODate   = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	reSlashDate = regexp.MustCompile(`\b(\d{1,2})[/.-](\d{1,2})(?:[/.-](\d{2,4}))?\b`)
)

// ParseDate resolves relative terms ("hoje", "amanhã", "depois de amanhã"),
// DD/MM, DD/MM/YYYY, ISO dates and weekday names against now. The result is
// midnight in loc. A DD/MM already past this year rolls to next year.
func ParseDate(text string, now time.Time, loc *time.Location) (time.Time, bool) {
	normalized := textutil.Normalize(text)
	today, _ := storage.DayBounds(now, loc)

	switch {
	case strings.Contains(normalized, "depois de amanha"):
		return today.AddDate(0, 0, 2), true
	case strings.Contains(normalized, "amanha"):
		return today.AddDate(0, 0, 1), true
	case strings.Contains(normalized, "hoje"):
		return today, true
	}

	if m := reISODate.FindStringSubmatch(normalized); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		return validDate(y, mo, d, loc)
	}

	if m := reSlashDate.FindStringSubmatch(normalized); m != nil {
		d, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		if m[3] != "" {
			y, _ := strconv.Atoi(m[3])
			if y < 100 {
				y += 2000
			}
			return validDate(y, mo, d, loc)
		}
		candidate, ok := validDate(today.Year(), mo, d, loc)
		if !ok {
			return time.Time{}, false
		}
		if candidate.Before(today) {
			return validDate(today.Year()+1, mo, d, loc)
		}
		return candidate, true
	}

	if wd, ok := classifier.ParseWeekday(normalized); ok {
		offset := (int(wd) - int(today.Weekday()) + 7) % 7
		if offset == 0 {
			offset = 7
		}
		return today.AddDate(0, 0, offset), true
	}
	return time.Time{}, false
}

func validDate(y, mo, d int, loc *time.Location) (time.Time, bool) {
	if mo < 1 || mo > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, loc)
	if t.Day() != d || int(t.Month()) != mo {
		return time.Time{}, false
	}
	return t, true
}

// DateKey formats a day as YYYY-MM-DD.
func DateKey(t time.Time) string { return t.Format(storage.DateLayout) }

// ParseDateKey is the inverse of DateKey.
func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(storage.DateLayout, key, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduling: parse date %q: %w", key, err)
	}
	return t, nil
}

// SlotTime combines a day and an HH:MM slot.
func SlotTime(day time.Time, slot string, loc *time.Location) (time.Time, error) {
	clock, err := time.Parse("15:04", slot)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduling: parse slot %q: %w", slot, err)
	}
	local := day.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), clock.Hour(), clock.Minute(), 0, 0, loc), nil
}

var weekdayLong = map[time.Weekday]string{
	time.Sunday:    "domingo",
	time.Monday:    "segunda-feira",
	time.Tuesday:   "terça-feira",
	time.Wednesday: "quarta-feira",
	time.Thursday:  "quinta-feira",
	time.Friday:    "sexta-feira",
	time.Saturday:  "sábado",
}

// DisplayDate renders "segunda-feira, 17/07".
func DisplayDate(t time.Time) string {
	return fmt.Sprintf("%s, %s", weekdayLong[t.Weekday()], t.Format("02/01"))
}
