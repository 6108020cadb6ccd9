package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/conversation"
	"github.com/wolfman30/clinic-concierge/internal/http/middleware"
	"github.com/wolfman30/clinic-concierge/internal/reporting"
	"github.com/wolfman30/clinic-concierge/internal/statemachine"
	"github.com/wolfman30/clinic-concierge/internal/storage"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

type summaryReader interface {
	Summary(ctx context.Context, from, to time.Time) (*reporting.Summary, error)
}

type handoffResolver interface {
	ResolveHandoff(ctx context.Context, conversationID uuid.UUID) (statemachine.State, error)
}

// AdminConfig wires an AdminHandler. Reports is optional; the summary
// endpoint answers 503 without it.
type AdminConfig struct {
	Store    storage.Store
	Settings clinic.Provider
	Resolver handoffResolver
	Reports  summaryReader
	Logger   *logging.Logger
	Now      func() time.Time
}

// AdminHandler serves the operator endpoints under /admin.
type AdminHandler struct {
	store    storage.Store
	settings clinic.Provider
	resolver handoffResolver
	reports  summaryReader
	logger   *logging.Logger
	now      func() time.Time
}

func NewAdminHandler(cfg AdminConfig) *AdminHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AdminHandler{
		store:    cfg.Store,
		settings: cfg.Settings,
		resolver: cfg.Resolver,
		reports:  cfg.Reports,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
}

// Register mounts the admin routes on r. r is expected to be behind admin auth.
func (h *AdminHandler) Register(r chi.Router) {
	r.Get("/reports/summary", h.GetSummary)
	r.Get("/appointments", h.ListAppointments)
	r.Get("/blocked-slots", h.ListBlockedSlots)
	r.Post("/blocked-slots", h.CreateBlockedSlot)
	r.Get("/conversations/{conversationID}/messages", h.ListMessages)
	r.Post("/conversations/{conversationID}/resolve", h.ResolveConversation)
}

func (h *AdminHandler) location(ctx context.Context) *time.Location {
	s, err := h.settings.Settings(ctx)
	if err != nil {
		h.logger.Warn("clinic settings unavailable, using UTC", "error", err)
		return time.UTC
	}
	return s.Location()
}

// GetSummary returns grouped counts for a period, the current month by default.
// GET /admin/reports/summary?from=2028-07-01&to=2028-07-31
func (h *AdminHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "reporting requires a database")
		return
	}
	loc := h.location(r.Context())
	now := h.now().In(loc)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	from, to, ok := dateRange(r, loc, monthStart, monthStart.AddDate(0, 1, 0))
	if !ok {
		writeError(w, http.StatusBadRequest, "from/to must be YYYY-MM-DD with from <= to")
		return
	}
	summary, err := h.reports.Summary(r.Context(), from, to)
	if err != nil {
		h.logger.Error("report summary failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// AppointmentResponse is one agenda row.
type AppointmentResponse struct {
	ID              string    `json:"id"`
	Service         string    `json:"service"`
	StartsAt        time.Time `json:"starts_at"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceCents      int       `json:"price_cents"`
	Status          string    `json:"status"`
	CustomerPhone   string    `json:"customer_phone,omitempty"`
	CustomerName    string    `json:"customer_name,omitempty"`
	ReminderSent    bool      `json:"reminder_sent"`
	Confirmed       bool      `json:"reminder_confirmed"`
}

// ListAppointments returns the agenda, the next 7 days by default.
// GET /admin/appointments?from=2028-07-10&to=2028-07-16
func (h *AdminHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	loc := h.location(r.Context())
	today, _ := storage.DayBounds(h.now(), loc)
	from, to, ok := dateRange(r, loc, today, today.AddDate(0, 0, 7))
	if !ok {
		writeError(w, http.StatusBadRequest, "from/to must be YYYY-MM-DD with from <= to")
		return
	}
	appts, err := h.store.ListAppointmentsBetween(r.Context(), from, to)
	if err != nil {
		h.logger.Error("list appointments failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	users := map[uuid.UUID]*storage.User{}
	out := make([]AppointmentResponse, 0, len(appts))
	for _, a := range appts {
		u, seen := users[a.UserID]
		if !seen {
			if u, err = h.store.GetUser(r.Context(), a.UserID); err != nil {
				h.logger.Warn("appointment owner lookup failed", "error", err, "appointment_id", a.ID)
				u = nil
			}
			users[a.UserID] = u
		}
		row := AppointmentResponse{
			ID:              a.ID.String(),
			Service:         a.Service,
			StartsAt:        a.StartsAt.In(loc),
			DurationMinutes: a.DurationMinutes,
			PriceCents:      a.PriceCents,
			Status:          string(a.Status),
			ReminderSent:    a.ReminderSent,
			Confirmed:       a.ReminderConfirmed,
		}
		if u != nil {
			row.CustomerPhone, row.CustomerName = u.Phone, u.Name
		}
		out = append(out, row)
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": out, "total": len(out)})
}

// BlockedSlotRequest blocks [start, end) on date. Empty start and end block the day.
type BlockedSlotRequest struct {
	Date   string `json:"date"`
	Start  string `json:"start,omitempty"`
	End    string `json:"end,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func validClock(v string) bool {
	if v == "" {
		return true
	}
	_, err := time.Parse("15:04", v)
	return err == nil
}

// CreateBlockedSlot blocks part of a day on the agenda.
// POST /admin/blocked-slots
func (h *AdminHandler) CreateBlockedSlot(w http.ResponseWriter, r *http.Request) {
	var req BlockedSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	day, err := time.ParseInLocation(storage.DateLayout, req.Date, h.location(r.Context()))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	if !validClock(req.Start) || !validClock(req.End) || (req.Start != "" && req.End != "" && req.Start >= req.End) {
		writeError(w, http.StatusBadRequest, "start/end must be HH:MM with start < end")
		return
	}
	slot := &storage.BlockedSlot{Date: day, Start: req.Start, End: req.End, Reason: req.Reason}
	if err := h.store.CreateBlockedSlot(r.Context(), slot); err != nil {
		h.logger.Error("create blocked slot failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.logger.Info("agenda blocked", "date", req.Date, "start", req.Start, "end", req.End, "actor", actor(r))
	writeJSON(w, http.StatusCreated, map[string]any{"id": slot.ID.String(), "date": req.Date, "start": req.Start, "end": req.End, "reason": req.Reason})
}

// ListBlockedSlots returns the blocks of one day.
// GET /admin/blocked-slots?date=2028-07-17
func (h *AdminHandler) ListBlockedSlots(w http.ResponseWriter, r *http.Request) {
	day, err := time.ParseInLocation(storage.DateLayout, r.URL.Query().Get("date"), h.location(r.Context()))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	slots, err := h.store.ListBlockedSlots(r.Context(), day)
	if err != nil {
		h.logger.Error("list blocked slots failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	out := make([]BlockedSlotRequest, 0, len(slots))
	for _, s := range slots {
		out = append(out, BlockedSlotRequest{Date: s.Date.Format(storage.DateLayout), Start: s.Start, End: s.End, Reason: s.Reason})
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocked_slots": out})
}

// MessageResponse is one transcript line.
type MessageResponse struct {
	Direction string    `json:"direction"`
	Text      string    `json:"text"`
	Intent    string    `json:"intent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListMessages returns a conversation transcript, oldest first.
// GET /admin/conversations/{conversationID}/messages?limit=50
func (h *AdminHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 500 {
		limit = 100
	}
	msgs, err := h.store.ListMessages(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("list messages failed", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageResponse{Direction: string(m.Direction), Text: m.Text, Intent: m.Intent, CreatedAt: m.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation_id": id.String(), "messages": out})
}

// ResolveConversation hands a conversation back to the assistant.
// POST /admin/conversations/{conversationID}/resolve
func (h *AdminHandler) ResolveConversation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	state, err := h.resolver.ResolveHandoff(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	case errors.Is(err, conversation.ErrTransitionRefused):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "conversation is not waiting for a human", "state": string(state)})
		return
	case err != nil:
		h.logger.Error("resolve handoff failed", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.logger.Info("handoff resolved via admin api", "conversation_id", id, "actor", actor(r))
	writeJSON(w, http.StatusOK, map[string]string{"conversation_id": id.String(), "state": string(state)})
}

func actor(r *http.Request) string {
	if c, ok := middleware.AdminFromContext(r.Context()); ok {
		return c.Actor()
	}
	return ""
}
