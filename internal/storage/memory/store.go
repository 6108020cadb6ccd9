// Package memory is an in-process storage.Store used by the simulate CLI and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinic-concierge/internal/statemachine"
	"github.com/wolfman30/clinic-concierge/internal/storage"
	"github.com/wolfman30/clinic-concierge/internal/textutil"
)

// Store keeps every entity in maps guarded by one mutex.
type Store struct {
	mu            sync.Mutex
	now           func() time.Time
	users         map[uuid.UUID]*storage.User
	conversations map[uuid.UUID]*storage.Conversation
	messages      map[uuid.UUID][]storage.Message
	appointments  map[uuid.UUID]*storage.Appointment
	blocked       []storage.BlockedSlot
	waitlist      map[uuid.UUID]*storage.WaitlistEntry
}

var _ storage.Store = (*Store)(nil)

// Option customizes the store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:           time.Now,
		users:         make(map[uuid.UUID]*storage.User),
		conversations: make(map[uuid.UUID]*storage.Conversation),
		messages:      make(map[uuid.UUID][]storage.Message),
		appointments:  make(map[uuid.UUID]*storage.Appointment),
		waitlist:      make(map[uuid.UUID]*storage.WaitlistEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) FindOrCreateUser(_ context.Context, phone string) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.userByPhone(phone); u != nil {
		cp := *u
		return &cp, nil
	}
	u := &storage.User{ID: uuid.New(), Phone: phone, CreatedAt: s.now()}
	s.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (s *Store) GetUser(_ context.Context, id uuid.UUID) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) FindUserByPhone(_ context.Context, phone string) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.userByPhone(phone)
	if u == nil {
		return nil, storage.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) userByPhone(phone string) *storage.User {
	digits := textutil.Digits(phone)
	for _, u := range s.users {
		if u.Phone == phone || (digits != "" && textutil.Digits(u.Phone) == digits) {
			return u
		}
	}
	return nil
}

func (s *Store) SetUserBlocked(_ context.Context, id uuid.UUID, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.Blocked = blocked
	return nil
}

func (s *Store) ActiveConversation(_ context.Context, userID uuid.UUID, since time.Time) (*storage.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *storage.Conversation
	for _, c := range s.conversations {
		if c.UserID != userID || !c.State.IsActive() || c.UpdatedAt.Before(since) {
			continue
		}
		if best == nil || c.UpdatedAt.After(best.UpdatedAt) {
			best = c
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (s *Store) GetConversation(_ context.Context, id uuid.UUID) (*storage.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) CreateConversation(_ context.Context, userID uuid.UUID) (*storage.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	c := &storage.Conversation{ID: uuid.New(), UserID: userID, State: statemachine.Init, CreatedAt: now, UpdatedAt: now}
	s.conversations[c.ID] = c
	cp := *c
	return &cp, nil
}

func (s *Store) UpdateConversationState(_ context.Context, id uuid.UUID, state statemachine.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return storage.ErrNotFound
	}
	c.State = state
	c.UpdatedAt = s.now()
	return nil
}

func (s *Store) ListStaleConversations(_ context.Context, before time.Time, limit int) ([]storage.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Conversation
	for _, c := range s.conversations {
		if c.State.IsActive() && c.UpdatedAt.Before(before) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) AppendMessage(_ context.Context, msg *storage.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	if c, ok := s.conversations[msg.ConversationID]; ok {
		c.UpdatedAt = msg.CreatedAt
	}
	return nil
}

func (s *Store) ListMessages(_ context.Context, conversationID uuid.UUID, limit int) ([]storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]storage.Message(nil), msgs...), nil
}

func (s *Store) CreateAppointment(_ context.Context, appt *storage.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = s.now()
	}
	cp := *appt
	s.appointments[appt.ID] = &cp
	return nil
}

func (s *Store) GetAppointment(_ context.Context, id uuid.UUID) (*storage.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, status storage.AppointmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return storage.ErrNotFound
	}
	a.Status = status
	return nil
}

func (s *Store) MarkReminder(_ context.Context, id uuid.UUID, sent, confirmed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return storage.ErrNotFound
	}
	a.ReminderSent = sent
	a.ReminderConfirmed = confirmed
	return nil
}

func (s *Store) ListAppointmentsBetween(_ context.Context, from, to time.Time) ([]storage.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Appointment
	for _, a := range s.appointments {
		if !a.StartsAt.Before(from) && a.StartsAt.Before(to) {
			out = append(out, *a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (s *Store) ListUserAppointments(_ context.Context, userID uuid.UUID, from time.Time) ([]storage.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Appointment
	for _, a := range s.appointments {
		if a.UserID == userID && a.Active() && !a.StartsAt.Before(from) {
			out = append(out, *a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func sortAppointments(appts []storage.Appointment) {
	sort.Slice(appts, func(i, j int) bool { return appts[i].StartsAt.Before(appts[j].StartsAt) })
}

func (s *Store) ListBlockedSlots(_ context.Context, date time.Time) ([]storage.BlockedSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := date.Format(storage.DateLayout)
	var out []storage.BlockedSlot
	for _, b := range s.blocked {
		if b.Date.Format(storage.DateLayout) == key {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) CreateBlockedSlot(_ context.Context, slot *storage.BlockedSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	s.blocked = append(s.blocked, *slot)
	return nil
}

func (s *Store) CreateWaitlistEntry(_ context.Context, entry *storage.WaitlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Status == "" {
		entry.Status = storage.WaitlistWaiting
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	cp := *entry
	s.waitlist[entry.ID] = &cp
	return nil
}

func (s *Store) ListWaitlist(_ context.Context, date time.Time, status storage.WaitlistStatus) ([]storage.WaitlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := date.Format(storage.DateLayout)
	var out []storage.WaitlistEntry
	for _, e := range s.waitlist {
		if e.PreferredDate.Format(storage.DateLayout) == key && (status == "" || e.Status == status) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateWaitlistStatus(_ context.Context, id uuid.UUID, status storage.WaitlistStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.waitlist[id]
	if !ok {
		return storage.ErrNotFound
	}
	e.Status = status
	return nil
}
