package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-concierge/internal/convctx"
	"github.com/wolfman30/clinic-concierge/internal/messaging/compliance"
	"github.com/wolfman30/clinic-concierge/internal/scheduling"
	"github.com/wolfman30/clinic-concierge/internal/statemachine"
	"github.com/wolfman30/clinic-concierge/internal/storage"
)

const (
	nudgePrefix      = "Oi! Ficamos no meio do seu agendamento. "
	waitlistTemplate = "Boa notícia! Abriu um horário de %s em %s às %s. Quer agendar? É só responder \"agendar\"."
)

// CompleteStale ends conversations idle longer than the window. Conversations
// whose state has no END transition (handoff, paused) are left for a human.
func (r *Runner) CompleteStale(ctx context.Context) (int, error) {
	stale, err := r.store.ListStaleConversations(ctx, r.now().Add(-r.staleAfter), defaultBatch)
	if err != nil {
		return 0, fmt.Errorf("jobs: list stale conversations: %w", err)
	}
	done := 0
	for _, conv := range stale {
		next, ok := r.machine.NextState(conv.State, statemachine.EventEnd, statemachine.Facts{})
		if !ok {
			continue
		}
		if err := r.store.UpdateConversationState(ctx, conv.ID, next); err != nil {
			r.logger.Error("stale conversation not completed", "error", err, "conversation_id", conv.ID)
			continue
		}
		if err := r.contexts.Clear(ctx, convctx.Key{UserID: conv.UserID, ConversationID: conv.ID}); err != nil {
			r.logger.Warn("stale context not cleared", "error", err, "conversation_id", conv.ID)
		}
		done++
	}
	return done, nil
}

// SendNudges sends one nudge to customers who left a booking half-way.
func (r *Runner) SendNudges(ctx context.Context) (int, error) {
	now := r.now()
	idle, err := r.store.ListStaleConversations(ctx, now.Add(-r.nudgeAfter), defaultBatch)
	if err != nil {
		return 0, fmt.Errorf("jobs: list idle conversations: %w", err)
	}
	cutoff := now.Add(-r.staleAfter)
	sent := 0
	for _, conv := range idle {
		if conv.State != statemachine.SchedulingFlow || conv.UpdatedAt.Before(cutoff) {
			continue
		}
		key := convctx.Key{UserID: conv.UserID, ConversationID: conv.ID}
		cc := r.contexts.Get(ctx, key)
		if !cc.InFlow() || cc.NudgeSent {
			continue
		}
		user, err := r.store.GetUser(ctx, conv.UserID)
		if err != nil {
			r.logger.Error("nudge user lookup failed", "error", err, "conversation_id", conv.ID)
			continue
		}
		if user.Blocked {
			continue
		}
		if err := r.send(ctx, "nudge", conv.ID, user.Phone, nudgePrefix+scheduling.ResumeHint(cc.Booking)); err != nil {
			r.logger.Error("nudge failed", "error", err, "conversation_id", conv.ID)
			continue
		}
		cc.NudgeSent = true
		if err := r.contexts.Put(ctx, key, cc); err != nil {
			r.logger.Warn("nudge flag not saved", "error", err, "conversation_id", conv.ID)
		}
		sent++
	}
	return sent, nil
}

// AppointmentCancelled tells the waitlist for the freed day. During quiet
// hours the notice is held until the next sweep outside them.
func (r *Runner) AppointmentCancelled(ctx context.Context, appt storage.Appointment) {
	if r.quiet.Suppress(r.now(), compliance.PurposeProactive) {
		r.mu.Lock()
		r.deferred = append(r.deferred, appt)
		r.mu.Unlock()
		return
	}
	if _, err := r.NotifyWaitlist(ctx, appt); err != nil {
		r.logger.Error("waitlist notice failed", "error", err, "appointment_id", appt.ID)
	}
}

func (r *Runner) flushDeferred(ctx context.Context) {
	r.mu.Lock()
	pending := r.deferred
	r.deferred = nil
	r.mu.Unlock()
	for _, appt := range pending {
		if _, err := r.NotifyWaitlist(ctx, appt); err != nil {
			r.logger.Error("waitlist notice failed", "error", err, "appointment_id", appt.ID)
		}
	}
}

// NotifyWaitlist messages every WAITING entry for the appointment's day and
// service and marks them NOTIFIED. The first to book takes the slot.
func (r *Runner) NotifyWaitlist(ctx context.Context, appt storage.Appointment) (int, error) {
	s, err := r.settings.Settings(ctx)
	if err != nil {
		return 0, fmt.Errorf("jobs: load settings: %w", err)
	}
	starts := appt.StartsAt.In(s.Location())
	day, _ := storage.DayBounds(starts, s.Location())
	entries, err := r.store.ListWaitlist(ctx, day, storage.WaitlistWaiting)
	if err != nil {
		return 0, fmt.Errorf("jobs: list waitlist: %w", err)
	}
	notified := 0
	for _, entry := range entries {
		if entry.Service != "" && !strings.EqualFold(entry.Service, appt.Service) {
			continue
		}
		user, err := r.store.GetUser(ctx, entry.UserID)
		if err != nil {
			r.logger.Error("waitlist user lookup failed", "error", err, "entry_id", entry.ID)
			continue
		}
		if user.Blocked {
			continue
		}
		key, err := r.contextFor(ctx, user.ID)
		if err != nil {
			r.logger.Error("waitlist conversation failed", "error", err, "entry_id", entry.ID)
			continue
		}
		text := fmt.Sprintf(waitlistTemplate, appt.Service, scheduling.DisplayDate(starts), starts.Format("15:04"))
		if err := r.send(ctx, "waitlist", key.ConversationID, user.Phone, text); err != nil {
			r.logger.Error("waitlist send failed", "error", err, "entry_id", entry.ID)
			continue
		}
		if err := r.store.UpdateWaitlistStatus(ctx, entry.ID, storage.WaitlistNotified); err != nil {
			r.logger.Error("waitlist status not saved", "error", err, "entry_id", entry.ID)
		}
		notified++
	}
	return notified, nil
}
