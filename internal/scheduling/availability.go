package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/storage"
)

// ErrSlotTaken is returned when a slot stopped being free before confirmation.
var ErrSlotTaken = errors.New("scheduling: slot no longer available")

// CalendarReader is the read side availability needs.
type CalendarReader interface {
	ListAppointmentsBetween(ctx context.Context, from, to time.Time) ([]storage.Appointment, error)
	ListBlockedSlots(ctx context.Context, date time.Time) ([]storage.BlockedSlot, error)
}

// AvailableSlots returns the configured slots for day minus booked appointments,
// administrative blocks, the excluded (session-rejected) slots and, for today,
// slots already past. The result keeps chronological order.
func AvailableSlots(ctx context.Context, cal CalendarReader, s *clinic.Settings, day time.Time, exclude []string, now time.Time) ([]string, error) {
	loc := s.Location()
	start, end := storage.DayBounds(day, loc)

	var (
		booked  []storage.Appointment
		blocked []storage.BlockedSlot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		booked, err = cal.ListAppointmentsBetween(gctx, start, end)
		if err != nil {
			return fmt.Errorf("scheduling: load appointments: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		blocked, err = cal.ListBlockedSlots(gctx, start)
		if err != nil {
			return fmt.Errorf("scheduling: load blocked slots: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	excluded := make(map[string]struct{}, len(exclude))
	for _, slot := range exclude {
		excluded[slot] = struct{}{}
	}

	var free []string
	for _, slot := range s.SlotTimes {
		if _, skip := excluded[slot]; skip {
			continue
		}
		at, err := SlotTime(start, slot, loc)
		if err != nil {
			return nil, err
		}
		if !at.After(now) {
			continue
		}
		if isBooked(booked, at) || isBlocked(blocked, slot) {
			continue
		}
		free = append(free, slot)
	}
	return free, nil
}

// NextAvailable returns the earliest free slot, or false when none remains.
func NextAvailable(ctx context.Context, cal CalendarReader, s *clinic.Settings, day time.Time, exclude []string, now time.Time) (string, bool, error) {
	slots, err := AvailableSlots(ctx, cal, s, day, exclude, now)
	if err != nil {
		return "", false, err
	}
	if len(slots) == 0 {
		return "", false, nil
	}
	return slots[0], true, nil
}

// IsFree reports whether slot is currently available on day, ignoring session rejections.
func IsFree(ctx context.Context, cal CalendarReader, s *clinic.Settings, day time.Time, slot string, now time.Time) (bool, error) {
	slots, err := AvailableSlots(ctx, cal, s, day, nil, now)
	if err != nil {
		return false, err
	}
	for _, free := range slots {
		if free == slot {
			return true, nil
		}
	}
	return false, nil
}

func isBooked(appts []storage.Appointment, at time.Time) bool {
	for _, a := range appts {
		if a.Occupies(at) {
			return true
		}
	}
	return false
}

func isBlocked(blocks []storage.BlockedSlot, slot string) bool {
	for _, b := range blocks {
		if b.Covers(slot) {
			return true
		}
	}
	return false
}
