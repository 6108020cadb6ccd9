package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/convctx"
	"github.com/wolfman30/clinic-concierge/internal/scheduling"
	"github.com/wolfman30/clinic-concierge/internal/statemachine"
	"github.com/wolfman30/clinic-concierge/internal/storage"
	"github.com/wolfman30/clinic-concierge/internal/textutil"
)

// adminCommand answers an administrator command. ok is false when text is not a command.
func (e *Engine) adminCommand(ctx context.Context, s *clinic.Settings, text string) (string, bool) {
	fields := strings.Fields(textutil.Normalize(text))
	if len(fields) == 0 {
		return "", false
	}
	switch fields[0] {
	case "agenda":
		period := "hoje"
		if len(fields) > 1 {
			period = fields[1]
		}
		reply, ok := e.agenda(ctx, s, period)
		return reply, ok
	case "retomar", "pausar", "bloquear":
		if len(fields) < 2 {
			return fmt.Sprintf("Uso: %s <telefone>", fields[0]), true
		}
		phone := textutil.Digits(strings.Join(fields[1:], ""))
		if phone == "" {
			return fmt.Sprintf("Uso: %s <telefone>", fields[0]), true
		}
		return e.moderate(ctx, fields[0], phone), true
	}
	return "", false
}

func (e *Engine) agenda(ctx context.Context, s *clinic.Settings, period string) (string, bool) {
	loc := s.Location()
	now := e.now().In(loc)
	today, tomorrow := storage.DayBounds(now, loc)
	var (
		from, to time.Time
		label    string
	)
	switch period {
	case "hoje":
		from, to, label = today, tomorrow, "hoje"
	case "amanha":
		from, to, label = tomorrow, tomorrow.AddDate(0, 0, 1), "amanhã"
	case "semana":
		from, to, label = today, today.AddDate(0, 0, 7), "próximos 7 dias"
	case "mes":
		endOfMonth := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, loc)
		from, to, label = today, endOfMonth, "este mês"
	default:
		day, ok := scheduling.ParseDate(period, now, loc)
		if !ok {
			return "", false
		}
		from, to = storage.DayBounds(day, loc)
		label = scheduling.DisplayDate(day)
	}

	appts, err := e.store.ListAppointmentsBetween(ctx, from, to)
	if err != nil {
		e.logger.Error("admin agenda lookup failed", "error", err, "period", period)
		return replyAgendaTrouble, true
	}
	active := appts[:0:0]
	for _, a := range appts {
		if a.Active() {
			active = append(active, a)
		}
	}
	if len(active) == 0 {
		return fmt.Sprintf("Nenhum agendamento para %s.", label), true
	}
	sort.Slice(active, func(i, j int) bool { return active[i].StartsAt.Before(active[j].StartsAt) })

	var b strings.Builder
	fmt.Fprintf(&b, "Agenda (%s): %d agendamento(s)", label, len(active))
	for _, a := range active {
		who := "?"
		if u, err := e.store.GetUser(ctx, a.UserID); err == nil {
			who = u.Phone
			if u.Name != "" {
				who = u.Name + " " + u.Phone
			}
		}
		local := a.StartsAt.In(loc)
		fmt.Fprintf(&b, "\n%s %s - %s - %s", local.Format("02/01"), local.Format("15:04"), a.Service, who)
	}
	return b.String(), true
}

// moderate applies retomar, pausar or bloquear to the customer's latest active conversation.
func (e *Engine) moderate(ctx context.Context, command, phone string) string {
	user, err := e.store.FindUserByPhone(ctx, phone)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Sprintf("Não encontrei cliente com o telefone %s.", phone)
	}
	if err != nil {
		e.logger.Error("admin user lookup failed", "error", err)
		return replyAgendaTrouble
	}
	conv, err := e.store.ActiveConversation(ctx, user.ID, time.Time{})
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		e.logger.Error("admin conversation lookup failed", "error", err, "user_id", user.ID)
		return replyAgendaTrouble
	}
	if conv == nil {
		if command == "bloquear" {
			if err := e.store.SetUserBlocked(ctx, user.ID, true); err != nil {
				e.logger.Error("block user failed", "error", err, "user_id", user.ID)
				return replyAgendaTrouble
			}
			return fmt.Sprintf("Cliente %s bloqueado.", user.Phone)
		}
		return fmt.Sprintf("O cliente %s não tem conversa ativa.", user.Phone)
	}

	var event statemachine.Event
	switch command {
	case "retomar":
		event = statemachine.EventHandoffResolved
		if conv.State == statemachine.Paused {
			event = statemachine.EventResume
		}
	case "pausar":
		event = statemachine.EventPause
	case "bloquear":
		event = statemachine.EventBlock
	}

	next, ok := e.machine.NextState(conv.State, event, statemachine.Facts{AdminActor: true})
	if !ok {
		return fmt.Sprintf("Não é possível %s a conversa de %s no estado %s.", command, user.Phone, conv.State)
	}
	if err := e.store.UpdateConversationState(ctx, conv.ID, next); err != nil {
		e.logger.Error("admin state update failed", "error", err, "conversation_id", conv.ID)
		return replyAgendaTrouble
	}
	if command == "bloquear" {
		if err := e.store.SetUserBlocked(ctx, user.ID, true); err != nil {
			e.logger.Error("block user failed", "error", err, "user_id", user.ID)
		}
	}
	if command == "retomar" {
		key := convctx.Key{UserID: user.ID, ConversationID: conv.ID}
		if _, err := e.contexts.Update(ctx, key, func(c *convctx.Context) { c.FailedAttempts = 0 }); err != nil {
			e.logger.Warn("context reset after handoff failed", "error", err, "conversation_id", conv.ID)
		}
	}
	e.logger.Info("admin command applied", "command", command, "conversation_id", conv.ID, "from", conv.State, "to", next)

	switch command {
	case "retomar":
		return fmt.Sprintf("Conversa com %s retomada pelo assistente.", user.Phone)
	case "pausar":
		return fmt.Sprintf("Conversa com %s pausada. Use \"retomar %s\" para reativar.", user.Phone, user.Phone)
	default:
		return fmt.Sprintf("Cliente %s bloqueado.", user.Phone)
	}
}

// ErrTransitionRefused is returned when the conversation's state does not allow the admin action.
var ErrTransitionRefused = errors.New("conversation: transition not allowed")

// ResolveHandoff hands a conversation back to the assistant after an operator
// finished with it. Used by the admin API.
func (e *Engine) ResolveHandoff(ctx context.Context, conversationID uuid.UUID) (statemachine.State, error) {
	conv, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("conversation: load for resolve: %w", err)
	}
	next, ok := e.machine.NextState(conv.State, statemachine.EventHandoffResolved, statemachine.Facts{AdminActor: true})
	if !ok {
		return conv.State, fmt.Errorf("%w: %s on %s", ErrTransitionRefused, statemachine.EventHandoffResolved, conv.State)
	}
	if err := e.store.UpdateConversationState(ctx, conv.ID, next); err != nil {
		return conv.State, fmt.Errorf("conversation: resolve handoff: %w", err)
	}
	key := convctx.Key{UserID: conv.UserID, ConversationID: conv.ID}
	if _, err := e.contexts.Update(ctx, key, func(c *convctx.Context) { c.FailedAttempts = 0 }); err != nil {
		e.logger.Warn("context reset after handoff failed", "error", err, "conversation_id", conv.ID)
	}
	e.logger.Info("handoff resolved", "conversation_id", conv.ID, "from", conv.State, "to", next)
	return next, nil
}
