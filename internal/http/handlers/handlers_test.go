package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/conversation"
	"github.com/wolfman30/clinic-concierge/internal/reporting"
	"github.com/wolfman30/clinic-concierge/internal/statemachine"
	"github.com/wolfman30/clinic-concierge/internal/storage"
	"github.com/wolfman30/clinic-concierge/internal/storage/memory"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

type stubResolver struct {
	state statemachine.State
	err   error
}

func (s stubResolver) ResolveHandoff(context.Context, uuid.UUID) (statemachine.State, error) {
	return s.state, s.err
}

type stubReports struct {
	from, to time.Time
	err      error
}

func (s *stubReports) Summary(_ context.Context, from, to time.Time) (*reporting.Summary, error) {
	s.from, s.to = from, to
	if s.err != nil {
		return nil, s.err
	}
	return &reporting.Summary{From: from, To: to, OpenHandoffs: 2}, nil
}

type stubSimulator struct {
	calls int
}

func (s *stubSimulator) Simulate(_ context.Context, phone, text string) (conversation.SimulateResult, error) {
	s.calls++
	return conversation.SimulateResult{Response: "eco: " + text, Intent: "GREETING", State: "AUTO_ATTENDANCE"}, nil
}

func newAdminRouter(t *testing.T, cfg AdminConfig) (chi.Router, *memory.Store) {
	t.Helper()
	provider, err := clinic.NewStaticProvider(nil)
	if err != nil {
		t.Fatalf("static provider: %v", err)
	}
	store := memory.New()
	cfg.Store = store
	cfg.Settings = provider
	cfg.Logger = logging.Discard()
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Date(2028, 7, 10, 9, 0, 0, 0, time.UTC) }
	}
	r := chi.NewRouter()
	NewAdminHandler(cfg).Register(r)
	return r, store
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, http.HandlerFunc(Health), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
}

func TestGetSummary(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		r, _ := newAdminRouter(t, AdminConfig{})
		if rec := do(t, r, http.MethodGet, "/reports/summary", ""); rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
	})

	t.Run("defaults to current month", func(t *testing.T) {
		reports := &stubReports{}
		r, _ := newAdminRouter(t, AdminConfig{Reports: reports})
		rec := do(t, r, http.MethodGet, "/reports/summary", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if reports.from.Day() != 1 || reports.from.Month() != time.July || reports.to.Month() != time.August {
			t.Fatalf("unexpected period %v - %v", reports.from, reports.to)
		}
		var body reporting.Summary
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.OpenHandoffs != 2 {
			t.Fatalf("expected open handoffs in body, got %+v", body)
		}
	})

	t.Run("explicit inclusive range", func(t *testing.T) {
		reports := &stubReports{}
		r, _ := newAdminRouter(t, AdminConfig{Reports: reports})
		rec := do(t, r, http.MethodGet, "/reports/summary?from=2028-07-03&to=2028-07-05", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if got := reports.to.Sub(reports.from); got != 72*time.Hour {
			t.Fatalf("expected three days, got %v", got)
		}
	})

	t.Run("bad range", func(t *testing.T) {
		r, _ := newAdminRouter(t, AdminConfig{Reports: &stubReports{}})
		for _, q := range []string{"?from=ontem", "?from=2028-07-05&to=2028-07-01"} {
			if rec := do(t, r, http.MethodGet, "/reports/summary"+q, ""); rec.Code != http.StatusBadRequest {
				t.Fatalf("%s: expected 400, got %d", q, rec.Code)
			}
		}
	})

	t.Run("store error", func(t *testing.T) {
		r, _ := newAdminRouter(t, AdminConfig{Reports: &stubReports{err: errors.New("db down")}})
		if rec := do(t, r, http.MethodGet, "/reports/summary", ""); rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
	})
}

func TestListAppointments(t *testing.T) {
	r, store := newAdminRouter(t, AdminConfig{})
	ctx := context.Background()
	loc, _ := time.LoadLocation("America/Sao_Paulo")
	user, err := store.FindOrCreateUser(ctx, "+5511988887777")
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	inRange := &storage.Appointment{UserID: user.ID, Service: "Limpeza de pele", StartsAt: time.Date(2028, 7, 12, 10, 0, 0, 0, loc), Status: storage.AppointmentConfirmed, DurationMinutes: 60}
	outOfRange := &storage.Appointment{UserID: user.ID, Service: "Massagem", StartsAt: time.Date(2028, 7, 30, 10, 0, 0, 0, loc), Status: storage.AppointmentPending}
	for _, a := range []*storage.Appointment{inRange, outOfRange} {
		if err := store.CreateAppointment(ctx, a); err != nil {
			t.Fatalf("create appointment: %v", err)
		}
	}

	rec := do(t, r, http.MethodGet, "/appointments", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Appointments []AppointmentResponse `json:"appointments"`
		Total        int                   `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 || body.Appointments[0].ID != inRange.ID.String() {
		t.Fatalf("expected only the appointment inside the week, got %+v", body)
	}
	if body.Appointments[0].CustomerPhone != "+5511988887777" || body.Appointments[0].Status != "CONFIRMED" {
		t.Fatalf("unexpected row %+v", body.Appointments[0])
	}

	rec = do(t, r, http.MethodGet, "/appointments?from=2028-07-01&to=2028-07-31", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 2 {
		t.Fatalf("expected both appointments in July, got %d", body.Total)
	}
}

func TestBlockedSlots(t *testing.T) {
	r, store := newAdminRouter(t, AdminConfig{})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"bad date", `{"date":"17/07/2028"}`, http.StatusBadRequest},
		{"bad clock", `{"date":"2028-07-17","start":"9h","end":"12:00"}`, http.StatusBadRequest},
		{"start after end", `{"date":"2028-07-17","start":"14:00","end":"12:00"}`, http.StatusBadRequest},
		{"partial day", `{"date":"2028-07-17","start":"09:00","end":"12:00","reason":"manutenção"}`, http.StatusCreated},
		{"whole day", `{"date":"2028-07-18","reason":"feriado"}`, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, r, http.MethodPost, "/blocked-slots", tt.body); rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}

	loc, _ := time.LoadLocation("America/Sao_Paulo")
	slots, err := store.ListBlockedSlots(context.Background(), time.Date(2028, 7, 17, 0, 0, 0, 0, loc))
	if err != nil || len(slots) != 1 {
		t.Fatalf("expected one stored block, got %v (%v)", slots, err)
	}
	if !slots[0].Covers("10:00") || slots[0].Covers("12:00") {
		t.Fatalf("unexpected block coverage %+v", slots[0])
	}

	rec := do(t, r, http.MethodGet, "/blocked-slots?date=2028-07-17", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "manutenção") {
		t.Fatalf("unexpected list response %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, r, http.MethodGet, "/blocked-slots", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without date, got %d", rec.Code)
	}
}

func TestListMessages(t *testing.T) {
	r, store := newAdminRouter(t, AdminConfig{})
	ctx := context.Background()
	user, _ := store.FindOrCreateUser(ctx, "+5511977776666")
	conv, err := store.CreateConversation(ctx, user.ID)
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	for i := 0; i < 3; i++ {
		msg := &storage.Message{ConversationID: conv.ID, Direction: storage.DirectionInbound, Text: fmt.Sprintf("msg %d", i)}
		if err := store.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	rec := do(t, r, http.MethodGet, "/conversations/"+conv.ID.String()+"/messages?limit=2", "")
	var body struct {
		Messages []MessageResponse `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Messages) != 2 || body.Messages[1].Text != "msg 2" {
		t.Fatalf("expected the latest two messages, got %+v", body.Messages)
	}
	if rec := do(t, r, http.MethodGet, "/conversations/nope/messages", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rec.Code)
	}
}

func TestResolveConversation(t *testing.T) {
	id := uuid.New().String()
	tests := []struct {
		name     string
		id       string
		resolver stubResolver
		want     int
	}{
		{"bad id", "not-a-uuid", stubResolver{}, http.StatusBadRequest},
		{"not found", id, stubResolver{err: fmt.Errorf("load: %w", storage.ErrNotFound)}, http.StatusNotFound},
		{"not in handoff", id, stubResolver{state: statemachine.AutoAttendance, err: conversation.ErrTransitionRefused}, http.StatusConflict},
		{"failure", id, stubResolver{err: errors.New("boom")}, http.StatusInternalServerError},
		{"resolved", id, stubResolver{state: statemachine.AutoAttendance}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newAdminRouter(t, AdminConfig{Resolver: tt.resolver})
			rec := do(t, r, http.MethodPost, "/conversations/"+tt.id+"/resolve", "")
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if tt.want == http.StatusOK && !strings.Contains(rec.Body.String(), string(statemachine.AutoAttendance)) {
				t.Fatalf("expected new state in body, got %s", rec.Body.String())
			}
		})
	}
}

func TestSimulateHandler(t *testing.T) {
	sim := &stubSimulator{}
	h := NewSimulateHandler(sim, logging.Discard())

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"invalid json", http.MethodPost, `{`, http.StatusBadRequest},
		{"missing phone", http.MethodPost, `{"text":"oi"}`, http.StatusBadRequest},
		{"blank text", http.MethodPost, `{"phone":"+5511999990000","text":"   "}`, http.StatusBadRequest},
		{"ok", http.MethodPost, `{"phone":"+5511999990000","text":"oi"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, "/simulate", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
	if sim.calls != 1 {
		t.Fatalf("expected one simulated turn, got %d", sim.calls)
	}

	rec := do(t, h, http.MethodPost, "/simulate", `{"phone":"+5511999990000","text":"bom dia"}`)
	var res conversation.SimulateResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Response != "eco: bom dia" || res.State != "AUTO_ATTENDANCE" {
		t.Fatalf("unexpected result %+v", res)
	}
}
