package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/wolfman30/clinic-concierge/internal/statemachine"
	"github.com/wolfman30/clinic-concierge/internal/storage"
)

var fixedNow = time.Date(2028, 7, 10, 11, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		mock.Close()
	})
	return newWithDB(mock, func() time.Time { return fixedNow }), mock
}

var userCols = []string{"id", "phone", "name", "blocked", "created_at"}

func TestFindOrCreateUserUpsertsByDigits(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery("INSERT INTO users").
		WithArgs(pgxmock.AnyArg(), "+55 11 98888-7777", "5511988887777", fixedNow).
		WillReturnRows(pgxmock.NewRows(userCols).AddRow(id, "+5511988887777", "Ana", false, fixedNow))

	u, err := store.FindOrCreateUser(context.Background(), "+55 11 98888-7777")
	if err != nil {
		t.Fatalf("find or create: %v", err)
	}
	if u.ID != id || u.Name != "Ana" || u.Phone != "+5511988887777" {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestGetUserNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	if _, err := store.GetUser(context.Background(), id); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindUserByPhoneUsesDigits(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectQuery("FROM users WHERE phone_digits").WithArgs("5511988887777").
		WillReturnRows(pgxmock.NewRows(userCols).AddRow(id, "+5511988887777", "", true, fixedNow))

	u, err := store.FindUserByPhone(context.Background(), "11 98888 7777 +55")
	if err != nil || !u.Blocked {
		t.Fatalf("unexpected user %+v err=%v", u, err)
	}
}

func TestSetUserBlockedMissingRow(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectExec("UPDATE users SET blocked").WithArgs(id, true).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := store.SetUserBlocked(context.Background(), id, true); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestActiveConversation(t *testing.T) {
	store, mock := newMockStore(t)
	userID, convID := uuid.New(), uuid.New()
	since := fixedNow.Add(-24 * time.Hour)

	mock.ExpectQuery("FROM conversations").WithArgs(userID, since).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "state", "created_at", "updated_at"}).
			AddRow(convID, userID, "SCHEDULING_FLOW", since, fixedNow))

	c, err := store.ActiveConversation(context.Background(), userID, since)
	if err != nil {
		t.Fatalf("active conversation: %v", err)
	}
	if c.ID != convID || c.State != statemachine.SchedulingFlow {
		t.Fatalf("unexpected conversation %+v", c)
	}

	mock.ExpectQuery("FROM conversations").WithArgs(userID, since).WillReturnError(pgx.ErrNoRows)
	if _, err := store.ActiveConversation(context.Background(), userID, since); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateAndUpdateConversation(t *testing.T) {
	store, mock := newMockStore(t)
	userID := uuid.New()

	mock.ExpectExec("INSERT INTO conversations").
		WithArgs(pgxmock.AnyArg(), userID, "INIT", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	c, err := store.CreateConversation(context.Background(), userID)
	if err != nil || c.State != statemachine.Init {
		t.Fatalf("create conversation: %+v %v", c, err)
	}

	mock.ExpectExec("UPDATE conversations SET state").
		WithArgs(c.ID, "HUMAN_HANDOFF", fixedNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := store.UpdateConversationState(context.Background(), c.ID, statemachine.HumanHandoff); err != nil {
		t.Fatalf("update state: %v", err)
	}
}

func TestAppendMessageTouchesConversation(t *testing.T) {
	store, mock := newMockStore(t)
	convID := uuid.New()

	mock.ExpectExec("INSERT INTO messages").
		WithArgs(pgxmock.AnyArg(), convID, "INBOUND", "oi", "", "msg_in_42", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE conversations SET updated_at").
		WithArgs(convID, fixedNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	msg := &storage.Message{ConversationID: convID, Direction: storage.DirectionInbound, Text: "oi", ExternalID: "msg_in_42"}
	if err := store.AppendMessage(context.Background(), msg); err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.ID == uuid.Nil || !msg.CreatedAt.Equal(fixedNow) {
		t.Fatalf("message defaults not applied: %+v", msg)
	}
}

func TestListMessages(t *testing.T) {
	store, mock := newMockStore(t)
	convID := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "conversation_id", "direction", "text", "intent", "external_id", "created_at"}).
		AddRow(uuid.New(), convID, "INBOUND", "oi", "", "", fixedNow).
		AddRow(uuid.New(), convID, "OUTBOUND", "Olá!", "GREETING", "", fixedNow.Add(time.Second))
	mock.ExpectQuery("FROM messages").WithArgs(convID, 6).WillReturnRows(rows)

	msgs, err := store.ListMessages(context.Background(), convID, 6)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 || msgs[1].Direction != storage.DirectionOutbound || msgs[1].Intent != "GREETING" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
}

var appointmentCols = []string{"id", "user_id", "service", "price_cents", "duration_minutes", "starts_at", "status", "reminder_sent", "reminder_confirmed", "created_at"}

func TestAppointments(t *testing.T) {
	store, mock := newMockStore(t)
	userID := uuid.New()
	startsAt := time.Date(2028, 7, 17, 13, 0, 0, 0, time.UTC)

	appt := &storage.Appointment{UserID: userID, Service: "Botox", PriceCents: 90000, DurationMinutes: 30, StartsAt: startsAt, Status: storage.AppointmentConfirmed}
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), userID, "Botox", 90000, 30, startsAt, "CONFIRMED", false, false, fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if err := store.CreateAppointment(context.Background(), appt); err != nil {
		t.Fatalf("create appointment: %v", err)
	}

	mock.ExpectQuery("FROM appointments").WithArgs(userID, fixedNow).
		WillReturnRows(pgxmock.NewRows(appointmentCols).
			AddRow(appt.ID, userID, "Botox", 90000, 30, startsAt, "CONFIRMED", true, false, fixedNow))
	list, err := store.ListUserAppointments(context.Background(), userID, fixedNow)
	if err != nil {
		t.Fatalf("list appointments: %v", err)
	}
	if len(list) != 1 || list[0].Status != storage.AppointmentConfirmed || !list[0].ReminderSent {
		t.Fatalf("unexpected appointments %+v", list)
	}

	mock.ExpectExec("UPDATE appointments SET status").WithArgs(appt.ID, "CANCELLED").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := store.UpdateAppointmentStatus(context.Background(), appt.ID, storage.AppointmentCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	mock.ExpectExec("UPDATE appointments SET reminder_sent").WithArgs(appt.ID, true, true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := store.MarkReminder(context.Background(), appt.ID, true, true); err != nil {
		t.Fatalf("mark reminder: %v", err)
	}
}

func TestListAppointmentsBetweenWrapsErrors(t *testing.T) {
	store, mock := newMockStore(t)
	from, to := fixedNow, fixedNow.Add(24*time.Hour)
	mock.ExpectQuery("FROM appointments").WithArgs(from, to).WillReturnError(errors.New("connection reset"))

	if _, err := store.ListAppointmentsBetween(context.Background(), from, to); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBlockedSlotsAndWaitlist(t *testing.T) {
	store, mock := newMockStore(t)
	day := time.Date(2028, 7, 17, 0, 0, 0, 0, time.UTC)
	userID := uuid.New()

	mock.ExpectExec("INSERT INTO blocked_slots").
		WithArgs(pgxmock.AnyArg(), "2028-07-17", "14:00", "16:00", "curso").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if err := store.CreateBlockedSlot(context.Background(), &storage.BlockedSlot{Date: day, Start: "14:00", End: "16:00", Reason: "curso"}); err != nil {
		t.Fatalf("create blocked slot: %v", err)
	}

	mock.ExpectQuery("FROM blocked_slots").WithArgs("2028-07-17").
		WillReturnRows(pgxmock.NewRows([]string{"id", "slot_date", "start_time", "end_time", "reason"}).
			AddRow(uuid.New(), day, "14:00", "16:00", "curso"))
	blocks, err := store.ListBlockedSlots(context.Background(), day)
	if err != nil || len(blocks) != 1 || !blocks[0].Covers("15:00") {
		t.Fatalf("unexpected blocks %+v err=%v", blocks, err)
	}

	mock.ExpectExec("INSERT INTO waitlist").
		WithArgs(pgxmock.AnyArg(), userID, "Botox", "2028-07-17", "WAITING", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if err := store.CreateWaitlistEntry(context.Background(), &storage.WaitlistEntry{UserID: userID, Service: "Botox", PreferredDate: day}); err != nil {
		t.Fatalf("create waitlist entry: %v", err)
	}

	mock.ExpectQuery("FROM waitlist").WithArgs("2028-07-17", "WAITING").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "service", "preferred_date", "status", "created_at"}).
			AddRow(uuid.New(), userID, "Botox", day, "WAITING", fixedNow))
	entries, err := store.ListWaitlist(context.Background(), day, storage.WaitlistWaiting)
	if err != nil || len(entries) != 1 || entries[0].Status != storage.WaitlistWaiting {
		t.Fatalf("unexpected waitlist %+v err=%v", entries, err)
	}
}
