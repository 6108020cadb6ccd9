package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/convctx"
	"github.com/wolfman30/clinic-concierge/internal/messaging/compliance"
	"github.com/wolfman30/clinic-concierge/internal/scheduling"
	"github.com/wolfman30/clinic-concierge/internal/statemachine"
	"github.com/wolfman30/clinic-concierge/internal/storage"
	"github.com/wolfman30/clinic-concierge/internal/storage/memory"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

var saoPaulo, _ = time.LoadLocation("America/Sao_Paulo")

type sent struct {
	to   string
	text string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeSender) Send(_ context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{to: to, text: text})
	return nil
}

type fixture struct {
	runner   *Runner
	store    *memory.Store
	contexts *convctx.Store
	sender   *fakeSender
	clock    *time.Time
}

func newFixture(t *testing.T, start time.Time) *fixture {
	t.Helper()
	clock := start
	now := func() time.Time { return clock }
	store := memory.New(memory.WithClock(now))
	contexts := convctx.New(convctx.NewMemoryBackend(convctx.WithMemoryClock(now)), logging.Discard(), convctx.WithClock(now))
	settings, err := clinic.NewStaticProvider(nil)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	quiet, err := compliance.ParseQuietHours("21:00", "08:00", saoPaulo)
	if err != nil {
		t.Fatalf("quiet hours: %v", err)
	}
	sender := &fakeSender{}
	r, err := New(Config{
		Store:      store,
		Contexts:   contexts,
		Settings:   settings,
		Sender:     sender,
		QuietHours: quiet,
		Logger:     logging.Discard(),
		Now:        now,
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return &fixture{runner: r, store: store, contexts: contexts, sender: sender, clock: &clock}
}

func (f *fixture) user(t *testing.T, phone string) *storage.User {
	t.Helper()
	u, err := f.store.FindOrCreateUser(context.Background(), phone)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (f *fixture) appointment(t *testing.T, userID uuid.UUID, startsAt time.Time) *storage.Appointment {
	t.Helper()
	appt := &storage.Appointment{
		UserID:          userID,
		Service:         "Botox",
		PriceCents:      90000,
		DurationMinutes: 30,
		StartsAt:        startsAt,
		Status:          storage.AppointmentConfirmed,
	}
	if err := f.store.CreateAppointment(context.Background(), appt); err != nil {
		t.Fatalf("create appointment: %v", err)
	}
	return appt
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without store")
	}
}

func TestSendRemindersAfterReminderTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2028, 7, 10, 17, 30, 0, 0, saoPaulo))
	u := f.user(t, "+5511988887777")
	appt := f.appointment(t, u.ID, time.Date(2028, 7, 11, 10, 0, 0, 0, saoPaulo))
	f.appointment(t, u.ID, time.Date(2028, 7, 12, 10, 0, 0, 0, saoPaulo))

	n, err := f.runner.SendReminders(ctx)
	if err != nil || n != 0 {
		t.Fatalf("expected nothing before 18:00, got %d err=%v", n, err)
	}

	*f.clock = time.Date(2028, 7, 10, 18, 5, 0, 0, saoPaulo)
	n, err = f.runner.SendReminders(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected one reminder, got %d err=%v", n, err)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0].to != u.Phone {
		t.Fatalf("unexpected sends %+v", f.sender.sent)
	}
	if !strings.Contains(f.sender.sent[0].text, "terça-feira, 11/07") || !strings.Contains(f.sender.sent[0].text, "10:00") {
		t.Fatalf("reminder text missing appointment details: %q", f.sender.sent[0].text)
	}

	stored, err := f.store.GetAppointment(ctx, appt.ID)
	if err != nil || !stored.ReminderSent || stored.ReminderConfirmed {
		t.Fatalf("reminder flags not set: %+v err=%v", stored, err)
	}

	conv, err := f.store.ActiveConversation(ctx, u.ID, f.clock.Add(-time.Hour))
	if err != nil {
		t.Fatalf("reminder conversation: %v", err)
	}
	cc := f.contexts.Get(ctx, convctx.Key{UserID: u.ID, ConversationID: conv.ID})
	if cc.ReminderPending != appt.ID.String() {
		t.Fatalf("reminder pending = %q, want %s", cc.ReminderPending, appt.ID)
	}

	n, _ = f.runner.SendReminders(ctx)
	if n != 0 {
		t.Fatalf("appointment reminded twice")
	}
}

func TestSendRemindersSkipsCancelledAndBlocked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2028, 7, 10, 19, 0, 0, 0, saoPaulo))
	u := f.user(t, "+5511988887777")
	appt := f.appointment(t, u.ID, time.Date(2028, 7, 11, 9, 0, 0, 0, saoPaulo))
	if err := f.store.UpdateAppointmentStatus(ctx, appt.ID, storage.AppointmentCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	blocked := f.user(t, "+5511977776666")
	f.appointment(t, blocked.ID, time.Date(2028, 7, 11, 11, 0, 0, 0, saoPaulo))
	if err := f.store.SetUserBlocked(ctx, blocked.ID, true); err != nil {
		t.Fatalf("block: %v", err)
	}

	if _, err := f.runner.SendReminders(ctx); err != nil {
		t.Fatalf("send reminders: %v", err)
	}
	if len(f.sender.sent) != 0 {
		t.Fatalf("expected no sends, got %+v", f.sender.sent)
	}
}

func TestCompleteStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2028, 7, 10, 10, 0, 0, 0, saoPaulo))
	u := f.user(t, "+5511988887777")

	idle, _ := f.store.CreateConversation(ctx, u.ID)
	_ = f.store.UpdateConversationState(ctx, idle.ID, statemachine.AutoAttendance)
	handoff, _ := f.store.CreateConversation(ctx, u.ID)
	_ = f.store.UpdateConversationState(ctx, handoff.ID, statemachine.HumanHandoff)
	key := convctx.Key{UserID: u.ID, ConversationID: idle.ID}
	if _, err := f.contexts.Update(ctx, key, func(c *convctx.Context) { c.FailedAttempts = 2 }); err != nil {
		t.Fatalf("seed context: %v", err)
	}

	*f.clock = f.clock.Add(25 * time.Hour)
	n, err := f.runner.CompleteStale(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected one completed, got %d err=%v", n, err)
	}
	got, _ := f.store.GetConversation(ctx, idle.ID)
	if got.State != statemachine.Completed {
		t.Fatalf("idle conversation state = %s", got.State)
	}
	kept, _ := f.store.GetConversation(ctx, handoff.ID)
	if kept.State != statemachine.HumanHandoff {
		t.Fatalf("handoff conversation should wait for a human, got %s", kept.State)
	}
	if cc := f.contexts.Get(ctx, key); cc.FailedAttempts != 0 {
		t.Fatalf("context not cleared: %+v", cc)
	}
}

func TestSendNudgesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2028, 7, 10, 10, 0, 0, 0, saoPaulo))
	u := f.user(t, "+5511988887777")
	conv, _ := f.store.CreateConversation(ctx, u.ID)
	_ = f.store.UpdateConversationState(ctx, conv.ID, statemachine.SchedulingFlow)
	key := convctx.Key{UserID: u.ID, ConversationID: conv.ID}
	_, _ = f.contexts.Update(ctx, key, func(c *convctx.Context) {
		c.Booking = &scheduling.State{Step: scheduling.SelectDate{Service: scheduling.ServiceChoice{Name: "Botox"}}}
	})

	*f.clock = f.clock.Add(time.Hour)
	if n, _ := f.runner.SendNudges(ctx); n != 0 {
		t.Fatalf("nudged before the idle threshold")
	}

	*f.clock = f.clock.Add(90 * time.Minute)
	n, err := f.runner.SendNudges(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected one nudge, got %d err=%v", n, err)
	}
	if !strings.Contains(f.sender.sent[0].text, "Botox") {
		t.Fatalf("nudge should resume the booking: %q", f.sender.sent[0].text)
	}
	if cc := f.contexts.Get(ctx, key); !cc.NudgeSent {
		t.Fatalf("nudge flag not stored")
	}

	*f.clock = f.clock.Add(3 * time.Hour)
	if n, _ := f.runner.SendNudges(ctx); n != 0 {
		t.Fatalf("nudged twice")
	}
}

func TestNotifyWaitlist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2028, 7, 10, 10, 0, 0, 0, saoPaulo))
	owner := f.user(t, "+5511988887777")
	waiting := f.user(t, "+5511966665555")
	other := f.user(t, "+5511955554444")
	day := time.Date(2028, 7, 17, 0, 0, 0, 0, saoPaulo)
	appt := f.appointment(t, owner.ID, time.Date(2028, 7, 17, 14, 0, 0, 0, saoPaulo))

	match := &storage.WaitlistEntry{UserID: waiting.ID, Service: "Botox", PreferredDate: day}
	skip := &storage.WaitlistEntry{UserID: other.ID, Service: "Drenagem Linfática", PreferredDate: day}
	for _, e := range []*storage.WaitlistEntry{match, skip} {
		if err := f.store.CreateWaitlistEntry(ctx, e); err != nil {
			t.Fatalf("waitlist: %v", err)
		}
	}

	f.runner.AppointmentCancelled(ctx, *appt)

	if len(f.sender.sent) != 1 || f.sender.sent[0].to != waiting.Phone {
		t.Fatalf("unexpected sends %+v", f.sender.sent)
	}
	if !strings.Contains(f.sender.sent[0].text, "14:00") {
		t.Fatalf("waitlist text missing slot: %q", f.sender.sent[0].text)
	}
	entries, _ := f.store.ListWaitlist(ctx, day, storage.WaitlistWaiting)
	if len(entries) != 1 || entries[0].ID != skip.ID {
		t.Fatalf("only the matching entry should leave WAITING: %+v", entries)
	}
}

func TestWaitlistHeldDuringQuietHours(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2028, 7, 10, 22, 30, 0, 0, saoPaulo))
	owner := f.user(t, "+5511988887777")
	waiting := f.user(t, "+5511966665555")
	appt := f.appointment(t, owner.ID, time.Date(2028, 7, 11, 9, 0, 0, 0, saoPaulo))
	entry := &storage.WaitlistEntry{UserID: waiting.ID, Service: "Botox", PreferredDate: time.Date(2028, 7, 11, 0, 0, 0, 0, saoPaulo)}
	_ = f.store.CreateWaitlistEntry(ctx, entry)

	f.runner.AppointmentCancelled(ctx, *appt)
	f.runner.RunOnce(ctx)
	if len(f.sender.sent) != 0 {
		t.Fatalf("sent during quiet hours: %+v", f.sender.sent)
	}

	*f.clock = time.Date(2028, 7, 11, 8, 15, 0, 0, saoPaulo)
	f.runner.RunOnce(ctx)
	if len(f.sender.sent) != 1 || f.sender.sent[0].to != waiting.Phone {
		t.Fatalf("held notice not flushed: %+v", f.sender.sent)
	}
}

func TestSendFailureIsCounted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2028, 7, 10, 18, 30, 0, 0, saoPaulo))
	f.sender.err = errors.New("carrier down")
	u := f.user(t, "+5511988887777")
	appt := f.appointment(t, u.ID, time.Date(2028, 7, 11, 10, 0, 0, 0, saoPaulo))

	n, err := f.runner.SendReminders(ctx)
	if err != nil || n != 0 {
		t.Fatalf("expected no reminders, got %d err=%v", n, err)
	}
	stored, _ := f.store.GetAppointment(ctx, appt.ID)
	if stored.ReminderSent {
		t.Fatalf("failed reminder must be retried on the next sweep")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, time.Date(2028, 7, 10, 10, 0, 0, 0, saoPaulo))
	f.runner.interval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.runner.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("runner did not stop")
	}
}
