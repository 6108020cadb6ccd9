// Package storage defines the persistence contract of the assistant and its entities.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinic-concierge/internal/statemachine"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("storage: not found")

// DateLayout is the key format for calendar days.
const DateLayout = "2006-01-02"

// Direction of a persisted message.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// User is a customer (or administrator) identified by phone.
type User struct {
	ID        uuid.UUID
	Phone     string
	Name      string
	Blocked   bool
	CreatedAt time.Time
}

// Conversation is one attendance thread. Only one active conversation per user
// exists within the rolling window; terminal ones are superseded.
type Conversation struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	State     statemachine.State
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is append-only.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Direction      Direction
	Text           string
	Intent         string
	ExternalID     string
	CreatedAt      time.Time
}

// AppointmentStatus is the lifecycle of an appointment.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "PENDING"
	AppointmentConfirmed AppointmentStatus = "CONFIRMED"
	AppointmentCancelled AppointmentStatus = "CANCELLED"
	AppointmentCompleted AppointmentStatus = "COMPLETED"
	AppointmentNoShow    AppointmentStatus = "NO_SHOW"
)

// Appointment is a booked service.
type Appointment struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	Service           string
	PriceCents        int
	DurationMinutes   int
	StartsAt          time.Time
	Status            AppointmentStatus
	ReminderSent      bool
	ReminderConfirmed bool
	CreatedAt         time.Time
}

// EndsAt returns the end of the appointment.
func (a Appointment) EndsAt() time.Time {
	d := a.DurationMinutes
	if d <= 0 {
		d = 60
	}
	return a.StartsAt.Add(time.Duration(d) * time.Minute)
}

// Occupies reports whether the appointment holds the clinic at t.
func (a Appointment) Occupies(t time.Time) bool {
	if !a.Active() {
		return false
	}
	return !t.Before(a.StartsAt) && t.Before(a.EndsAt())
}

// Active reports whether the appointment still holds its slot.
func (a Appointment) Active() bool {
	return a.Status == AppointmentPending || a.Status == AppointmentConfirmed
}

// WaitlistStatus is the lifecycle of a waitlist entry.
type WaitlistStatus string

const (
	WaitlistWaiting  WaitlistStatus = "WAITING"
	WaitlistNotified WaitlistStatus = "NOTIFIED"
	WaitlistExpired  WaitlistStatus = "EXPIRED"
)

// WaitlistEntry records interest in a fully booked day.
type WaitlistEntry struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Service       string
	PreferredDate time.Time
	Status        WaitlistStatus
	CreatedAt     time.Time
}

// BlockedSlot is an administrative block over [Start, End) on Date.
// Empty Start and End block the whole day.
type BlockedSlot struct {
	ID     uuid.UUID
	Date   time.Time
	Start  string
	End    string
	Reason string
}

// Covers reports whether the HH:MM slot falls inside the block.
func (b BlockedSlot) Covers(slot string) bool {
	if b.Start == "" && b.End == "" {
		return true
	}
	start, end := b.Start, b.End
	if start == "" {
		start = "00:00"
	}
	if end == "" {
		end = "24:00"
	}
	return slot >= start && slot < end
}

// Store is the storage collaborator used by the engine, the jobs and the admin API.
type Store interface {
	FindOrCreateUser(ctx context.Context, phone string) (*User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	FindUserByPhone(ctx context.Context, phone string) (*User, error)
	SetUserBlocked(ctx context.Context, id uuid.UUID, blocked bool) error

	// ActiveConversation returns the most recent non-terminal conversation updated after since.
	ActiveConversation(ctx context.Context, userID uuid.UUID, since time.Time) (*Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error)
	CreateConversation(ctx context.Context, userID uuid.UUID) (*Conversation, error)
	UpdateConversationState(ctx context.Context, id uuid.UUID, state statemachine.State) error
	ListStaleConversations(ctx context.Context, before time.Time, limit int) ([]Conversation, error)

	AppendMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error)

	CreateAppointment(ctx context.Context, appt *Appointment) error
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) error
	MarkReminder(ctx context.Context, id uuid.UUID, sent, confirmed bool) error
	ListAppointmentsBetween(ctx context.Context, from, to time.Time) ([]Appointment, error)
	ListUserAppointments(ctx context.Context, userID uuid.UUID, from time.Time) ([]Appointment, error)

	ListBlockedSlots(ctx context.Context, date time.Time) ([]BlockedSlot, error)
	CreateBlockedSlot(ctx context.Context, slot *BlockedSlot) error

	CreateWaitlistEntry(ctx context.Context, entry *WaitlistEntry) error
	ListWaitlist(ctx context.Context, date time.Time, status WaitlistStatus) ([]WaitlistEntry, error)
	UpdateWaitlistStatus(ctx context.Context, id uuid.UUID, status WaitlistStatus) error
}

// DayBounds returns [start of day, start of next day) for t in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
