package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/clinic-concierge/internal/storage"
)

const appointmentColumns = `id, user_id, service, price_cents, duration_minutes, starts_at, status, reminder_sent, reminder_confirmed, created_at`

func scanAppointment(row pgx.Row) (*storage.Appointment, error) {
	var (
		a      storage.Appointment
		status string
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Service, &a.PriceCents, &a.DurationMinutes, &a.StartsAt,
		&status, &a.ReminderSent, &a.ReminderConfirmed, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Status = storage.AppointmentStatus(status)
	return &a, nil
}

func (s *Store) queryAppointments(ctx context.Context, query string, args ...any) ([]storage.Appointment, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Store) CreateAppointment(ctx context.Context, appt *storage.Appointment) error {
	ctx, sp := span(ctx, "create_appointment")
	defer sp.End()

	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = s.now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, appt.ID, appt.UserID, appt.Service, appt.PriceCents, appt.DurationMinutes, appt.StartsAt,
		string(appt.Status), appt.ReminderSent, appt.ReminderConfirmed, appt.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create appointment: %w", err)
	}
	return nil
}

func (s *Store) GetAppointment(ctx context.Context, id uuid.UUID) (*storage.Appointment, error) {
	ctx, sp := span(ctx, "get_appointment")
	defer sp.End()

	a, err := scanAppointment(s.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("postgres: get appointment: %w", notFound(err))
	}
	return a, nil
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status storage.AppointmentStatus) error {
	ctx, sp := span(ctx, "update_appointment_status")
	defer sp.End()

	tag, err := s.db.Exec(ctx, `UPDATE appointments SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update appointment status: %w", err)
	}
	return affected(tag)
}

func (s *Store) MarkReminder(ctx context.Context, id uuid.UUID, sent, confirmed bool) error {
	ctx, sp := span(ctx, "mark_reminder")
	defer sp.End()

	tag, err := s.db.Exec(ctx, `UPDATE appointments SET reminder_sent = $2, reminder_confirmed = $3 WHERE id = $1`, id, sent, confirmed)
	if err != nil {
		return fmt.Errorf("postgres: mark reminder: %w", err)
	}
	return affected(tag)
}

// ListAppointmentsBetween returns every appointment starting in [from, to), any status.
func (s *Store) ListAppointmentsBetween(ctx context.Context, from, to time.Time) ([]storage.Appointment, error) {
	ctx, sp := span(ctx, "list_appointments_between")
	defer sp.End()

	out, err := s.queryAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE starts_at >= $1 AND starts_at < $2
		ORDER BY starts_at
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list appointments: %w", err)
	}
	return out, nil
}

func (s *Store) ListUserAppointments(ctx context.Context, userID uuid.UUID, from time.Time) ([]storage.Appointment, error) {
	ctx, sp := span(ctx, "list_user_appointments")
	defer sp.End()

	out, err := s.queryAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE user_id = $1 AND starts_at >= $2
		ORDER BY starts_at
	`, userID, from)
	if err != nil {
		return nil, fmt.Errorf("postgres: list user appointments: %w", err)
	}
	return out, nil
}

func (s *Store) ListBlockedSlots(ctx context.Context, date time.Time) ([]storage.BlockedSlot, error) {
	ctx, sp := span(ctx, "list_blocked_slots")
	defer sp.End()

	rows, err := s.db.Query(ctx, `
		SELECT id, slot_date, start_time, end_time, reason
		FROM blocked_slots
		WHERE slot_date = $1::date
		ORDER BY start_time
	`, date.Format(storage.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("postgres: list blocked slots: %w", err)
	}
	defer rows.Close()

	var out []storage.BlockedSlot
	for rows.Next() {
		var b storage.BlockedSlot
		if err := rows.Scan(&b.ID, &b.Date, &b.Start, &b.End, &b.Reason); err != nil {
			return nil, fmt.Errorf("postgres: scan blocked slot: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) CreateBlockedSlot(ctx context.Context, slot *storage.BlockedSlot) error {
	ctx, sp := span(ctx, "create_blocked_slot")
	defer sp.End()

	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO blocked_slots (id, slot_date, start_time, end_time, reason)
		VALUES ($1, $2::date, $3, $4, $5)
	`, slot.ID, slot.Date.Format(storage.DateLayout), slot.Start, slot.End, slot.Reason)
	if err != nil {
		return fmt.Errorf("postgres: create blocked slot: %w", err)
	}
	return nil
}

func (s *Store) CreateWaitlistEntry(ctx context.Context, entry *storage.WaitlistEntry) error {
	ctx, sp := span(ctx, "create_waitlist_entry")
	defer sp.End()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	if entry.Status == "" {
		entry.Status = storage.WaitlistWaiting
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO waitlist (id, user_id, service, preferred_date, status, created_at)
		VALUES ($1, $2, $3, $4::date, $5, $6)
	`, entry.ID, entry.UserID, entry.Service, entry.PreferredDate.Format(storage.DateLayout), string(entry.Status), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create waitlist entry: %w", err)
	}
	return nil
}

func (s *Store) ListWaitlist(ctx context.Context, date time.Time, status storage.WaitlistStatus) ([]storage.WaitlistEntry, error) {
	ctx, sp := span(ctx, "list_waitlist")
	defer sp.End()

	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, service, preferred_date, status, created_at
		FROM waitlist
		WHERE preferred_date = $1::date AND status = $2
		ORDER BY created_at
	`, date.Format(storage.DateLayout), string(status))
	if err != nil {
		return nil, fmt.Errorf("postgres: list waitlist: %w", err)
	}
	defer rows.Close()

	var out []storage.WaitlistEntry
	for rows.Next() {
		var (
			e  storage.WaitlistEntry
			st string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Service, &e.PreferredDate, &st, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan waitlist entry: %w", err)
		}
		e.Status = storage.WaitlistStatus(st)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) UpdateWaitlistStatus(ctx context.Context, id uuid.UUID, status storage.WaitlistStatus) error {
	ctx, sp := span(ctx, "update_waitlist_status")
	defer sp.End()

	tag, err := s.db.Exec(ctx, `UPDATE waitlist SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update waitlist status: %w", err)
	}
	return affected(tag)
}
