package jobs

import (
	"context"
	"fmt"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/convctx"
	"github.com/wolfman30/clinic-concierge/internal/scheduling"
	"github.com/wolfman30/clinic-concierge/internal/storage"
)

const reminderTemplate = "Olá%s! Passando para lembrar do seu %s amanhã, %s, às %s na %s. Você confirma sua presença? Responda sim ou não."

// SendReminders messages every customer with an appointment tomorrow once the
// clinic's reminder time has passed today. Each appointment is reminded once.
func (r *Runner) SendReminders(ctx context.Context) (int, error) {
	s, err := r.settings.Settings(ctx)
	if err != nil {
		return 0, fmt.Errorf("jobs: load settings: %w", err)
	}
	loc := s.Location()
	now := r.now().In(loc)
	due, err := scheduling.SlotTime(now, s.ReminderTime, loc)
	if err != nil {
		return 0, fmt.Errorf("jobs: reminder time: %w", err)
	}
	if now.Before(due) {
		return 0, nil
	}

	from, to := storage.DayBounds(now.AddDate(0, 0, 1), loc)
	appts, err := r.store.ListAppointmentsBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("jobs: list tomorrow's appointments: %w", err)
	}
	sent := 0
	for _, appt := range appts {
		if !appt.Active() || appt.ReminderSent {
			continue
		}
		if err := r.remind(ctx, s, appt); err != nil {
			r.logger.Error("reminder failed", "error", err, "appointment_id", appt.ID)
			continue
		}
		sent++
	}
	return sent, nil
}

func (r *Runner) remind(ctx context.Context, s *clinic.Settings, appt storage.Appointment) error {
	user, err := r.store.GetUser(ctx, appt.UserID)
	if err != nil {
		return fmt.Errorf("jobs: load user: %w", err)
	}
	if user.Blocked {
		return nil
	}
	key, err := r.contextFor(ctx, user.ID)
	if err != nil {
		return err
	}
	starts := appt.StartsAt.In(s.Location())
	text := fmt.Sprintf(reminderTemplate, greetingName(user.Name), appt.Service,
		scheduling.DisplayDate(starts), starts.Format("15:04"), s.Name)
	if err := r.send(ctx, "reminder", key.ConversationID, user.Phone, text); err != nil {
		return err
	}
	if err := r.store.MarkReminder(ctx, appt.ID, true, false); err != nil {
		return fmt.Errorf("jobs: mark reminder: %w", err)
	}
	if _, err := r.contexts.Update(ctx, key, func(c *convctx.Context) {
		c.ReminderPending = appt.ID.String()
	}); err != nil {
		r.logger.Warn("reminder context not saved", "error", err, "appointment_id", appt.ID)
	}
	return nil
}

func greetingName(name string) string {
	if name == "" {
		return ""
	}
	return ", " + name
}
