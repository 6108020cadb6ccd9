// Package convctx holds the ephemeral per-conversation state: booking progress,
// failed-attempt counters and pending confirmations. Entries expire after a TTL
// and a missing entry is always read as a fresh context.
package convctx

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-concierge/internal/scheduling"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// DefaultTTL is how long an untouched context survives.
const DefaultTTL = 24 * time.Hour

const maxProcessedIDs = 32

// Key identifies a context by user and conversation.
type Key struct {
	UserID         uuid.UUID
	ConversationID uuid.UUID
}

// String renders the cache key.
func (k Key) String() string {
	return fmt.Sprintf("ctx:%s:%s", k.UserID, k.ConversationID)
}

// Context is the mutable conversation scratchpad.
type Context struct {
	Booking         *scheduling.State `json:"booking,omitempty"`
	FailedAttempts  int               `json:"failed_attempts"`
	NudgeSent       bool              `json:"nudge_sent"`
	ReminderPending string            `json:"reminder_pending,omitempty"`
	PendingCancel   string            `json:"pending_cancel,omitempty"`
	Preferences     map[string]string `json:"preferences,omitempty"`
	ProcessedIDs    []string          `json:"processed_ids,omitempty"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Fresh returns an empty context.
func Fresh() *Context {
	return &Context{Preferences: map[string]string{}}
}

// InFlow reports whether a booking is in progress.
func (c *Context) InFlow() bool {
	return c.Booking.Active()
}

// ResetBooking drops booking progress and the low-confidence streak.
func (c *Context) ResetBooking() {
	c.Booking = nil
	c.FailedAttempts = 0
	c.NudgeSent = false
}

// PreferencePartOfDay holds the period (manha, tarde or noite) the user last asked for.
const PreferencePartOfDay = "part_of_day"

// SetPreference stores a free-form preference, e.g. preferred period of the day.
func (c *Context) SetPreference(key, value string) {
	if c.Preferences == nil {
		c.Preferences = map[string]string{}
	}
	c.Preferences[key] = value
}

// Processed reports whether an inbound message id was already handled.
func (c *Context) Processed(id string) bool {
	if id == "" {
		return false
	}
	for _, seen := range c.ProcessedIDs {
		if seen == id {
			return true
		}
	}
	return false
}

// MarkProcessed remembers an inbound message id, keeping only the most recent ones.
func (c *Context) MarkProcessed(id string) {
	if id == "" || c.Processed(id) {
		return
	}
	c.ProcessedIDs = append(c.ProcessedIDs, id)
	if len(c.ProcessedIDs) > maxProcessedIDs {
		c.ProcessedIDs = c.ProcessedIDs[len(c.ProcessedIDs)-maxProcessedIDs:]
	}
}

// Backend persists serialized contexts.
type Backend interface {
	Load(ctx context.Context, key string) (*Context, bool, error)
	Save(ctx context.Context, key string, c *Context, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Store is the context store used by the engine.
type Store struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
	logger  *logging.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the clock used to stamp UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New wraps a backend.
func New(backend Backend, logger *logging.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Store{backend: backend, ttl: DefaultTTL, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the stored context or a fresh one. Backend failures are logged, never returned.
func (s *Store) Get(ctx context.Context, key Key) *Context {
	c, ok, err := s.backend.Load(ctx, key.String())
	if err != nil {
		s.logger.Warn("context load failed, starting fresh", "key", key.String(), "error", err)
		return Fresh()
	}
	if !ok || c == nil {
		return Fresh()
	}
	if c.Preferences == nil {
		c.Preferences = map[string]string{}
	}
	return c
}

// Put stamps and persists c with the store TTL.
func (s *Store) Put(ctx context.Context, key Key, c *Context) error {
	c.UpdatedAt = s.now()
	if err := s.backend.Save(ctx, key.String(), c, s.ttl); err != nil {
		return fmt.Errorf("convctx: save %s: %w", key, err)
	}
	return nil
}

// Update runs a read-modify-write of the context.
func (s *Store) Update(ctx context.Context, key Key, mutate func(*Context)) (*Context, error) {
	c := s.Get(ctx, key)
	mutate(c)
	if err := s.Put(ctx, key, c); err != nil {
		return c, err
	}
	return c, nil
}

// Clear deletes the context.
func (s *Store) Clear(ctx context.Context, key Key) error {
	if err := s.backend.Delete(ctx, key.String()); err != nil {
		return fmt.Errorf("convctx: clear %s: %w", key, err)
	}
	return nil
}
