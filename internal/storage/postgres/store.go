// Package postgres implements storage.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-concierge/internal/statemachine"
	"github.com/wolfman30/clinic-concierge/internal/storage"
	"github.com/wolfman30/clinic-concierge/internal/textutil"
)

var tracer = otel.Tracer("clinic-concierge/storage")

// db is the subset of pgxpool.Pool the store needs; pgxmock satisfies it in tests.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists users, conversations, messages, appointments, blocked slots and the waitlist.
type Store struct {
	db  db
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New creates a store backed by pool.
func New(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("postgres: pgx pool required")
	}
	return &Store{db: pool, now: time.Now}
}

func newWithDB(conn db, now func() time.Time) *Store {
	if conn == nil {
		panic("postgres: db required")
	}
	if now == nil {
		now = time.Now
	}
	return &Store{db: conn, now: now}
}

func span(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "postgres."+op)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

func affected(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

const userColumns = `id, phone, name, blocked, created_at`

func scanUser(row pgx.Row) (*storage.User, error) {
	var u storage.User
	if err := row.Scan(&u.ID, &u.Phone, &u.Name, &u.Blocked, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) FindOrCreateUser(ctx context.Context, phone string) (*storage.User, error) {
	ctx, sp := span(ctx, "find_or_create_user")
	defer sp.End()

	query := `
		INSERT INTO users (id, phone, phone_digits, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (phone_digits) DO UPDATE SET phone_digits = EXCLUDED.phone_digits
		RETURNING ` + userColumns
	u, err := scanUser(s.db.QueryRow(ctx, query, uuid.New(), phone, textutil.Digits(phone), s.now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("postgres: upsert user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*storage.User, error) {
	ctx, sp := span(ctx, "get_user")
	defer sp.End()

	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("postgres: get user: %w", notFound(err))
	}
	return u, nil
}

func (s *Store) FindUserByPhone(ctx context.Context, phone string) (*storage.User, error) {
	ctx, sp := span(ctx, "find_user_by_phone")
	defer sp.End()

	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone_digits = $1`, textutil.Digits(phone)))
	if err != nil {
		return nil, fmt.Errorf("postgres: find user: %w", notFound(err))
	}
	return u, nil
}

func (s *Store) SetUserBlocked(ctx context.Context, id uuid.UUID, blocked bool) error {
	ctx, sp := span(ctx, "set_user_blocked")
	defer sp.End()

	tag, err := s.db.Exec(ctx, `UPDATE users SET blocked = $2 WHERE id = $1`, id, blocked)
	if err != nil {
		return fmt.Errorf("postgres: block user: %w", err)
	}
	return affected(tag)
}

const conversationColumns = `id, user_id, state, created_at, updated_at`

func scanConversation(row pgx.Row) (*storage.Conversation, error) {
	var (
		c     storage.Conversation
		state string
	)
	if err := row.Scan(&c.ID, &c.UserID, &state, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.State = statemachine.State(state)
	return &c, nil
}

func (s *Store) ActiveConversation(ctx context.Context, userID uuid.UUID, since time.Time) (*storage.Conversation, error) {
	ctx, sp := span(ctx, "active_conversation")
	defer sp.End()

	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE user_id = $1 AND state NOT IN ('BLOCKED', 'COMPLETED') AND updated_at >= $2
		ORDER BY updated_at DESC
		LIMIT 1
	`
	c, err := scanConversation(s.db.QueryRow(ctx, query, userID, since))
	if err != nil {
		return nil, fmt.Errorf("postgres: active conversation: %w", notFound(err))
	}
	return c, nil
}

func (s *Store) GetConversation(ctx context.Context, id uuid.UUID) (*storage.Conversation, error) {
	ctx, sp := span(ctx, "get_conversation")
	defer sp.End()

	c, err := scanConversation(s.db.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("postgres: get conversation: %w", notFound(err))
	}
	return c, nil
}

func (s *Store) CreateConversation(ctx context.Context, userID uuid.UUID) (*storage.Conversation, error) {
	ctx, sp := span(ctx, "create_conversation")
	defer sp.End()

	now := s.now().UTC()
	c := &storage.Conversation{ID: uuid.New(), UserID: userID, State: statemachine.Init, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.Exec(ctx, `
		INSERT INTO conversations (id, user_id, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, c.ID, c.UserID, string(c.State), now)
	if err != nil {
		return nil, fmt.Errorf("postgres: create conversation: %w", err)
	}
	return c, nil
}

func (s *Store) UpdateConversationState(ctx context.Context, id uuid.UUID, state statemachine.State) error {
	ctx, sp := span(ctx, "update_conversation_state")
	defer sp.End()

	tag, err := s.db.Exec(ctx, `UPDATE conversations SET state = $2, updated_at = $3 WHERE id = $1`, id, string(state), s.now().UTC())
	if err != nil {
		return fmt.Errorf("postgres: update conversation state: %w", err)
	}
	return affected(tag)
}

func (s *Store) ListStaleConversations(ctx context.Context, before time.Time, limit int) ([]storage.Conversation, error) {
	ctx, sp := span(ctx, "list_stale_conversations")
	defer sp.End()

	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE state NOT IN ('BLOCKED', 'COMPLETED') AND updated_at < $1
		ORDER BY updated_at
		LIMIT NULLIF($2, 0)
	`
	rows, err := s.db.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stale conversations: %w", err)
	}
	defer rows.Close()

	var out []storage.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan conversation: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// AppendMessage inserts the message and touches the conversation so the
// rolling window counts from the latest message.
func (s *Store) AppendMessage(ctx context.Context, msg *storage.Message) error {
	ctx, sp := span(ctx, "append_message")
	defer sp.End()

	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, direction, text, intent, external_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
	`, msg.ID, msg.ConversationID, string(msg.Direction), msg.Text, msg.Intent, msg.ExternalID, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert message: %w", err)
	}
	if _, err := s.db.Exec(ctx, `UPDATE conversations SET updated_at = $2 WHERE id = $1`, msg.ConversationID, msg.CreatedAt); err != nil {
		return fmt.Errorf("postgres: touch conversation: %w", err)
	}
	return nil
}

// ListMessages returns the latest limit messages in chronological order. A zero limit returns all.
func (s *Store) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]storage.Message, error) {
	ctx, sp := span(ctx, "list_messages")
	defer sp.End()

	query := `
		SELECT id, conversation_id, direction, text, intent, external_id, created_at FROM (
			SELECT id, conversation_id, direction, text, intent, COALESCE(external_id, '') AS external_id, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT NULLIF($2, 0)
		) recent
		ORDER BY created_at
	`
	rows, err := s.db.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list messages: %w", err)
	}
	defer rows.Close()

	var out []storage.Message
	for rows.Next() {
		var (
			m   storage.Message
			dir string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &dir, &m.Text, &m.Intent, &m.ExternalID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan message: %w", err)
		}
		m.Direction = storage.Direction(dir)
		out = append(out, m)
	}
	return out, rows.Err()
}
