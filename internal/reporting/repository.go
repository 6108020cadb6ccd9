// Package reporting computes the grouped counts behind the admin summary.
package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/wolfman30/clinic-concierge/internal/intent"
	"github.com/wolfman30/clinic-concierge/internal/statemachine"
	"github.com/wolfman30/clinic-concierge/internal/storage"
)

// Summary is the admin overview for a period.
type Summary struct {
	From                 time.Time      `json:"from"`
	To                   time.Time      `json:"to"`
	ConversationsByState map[string]int `json:"conversations_by_state"`
	AppointmentsByStatus map[string]int `json:"appointments_by_status"`
	OpenHandoffs         int            `json:"open_handoffs"`
	Handoffs             int            `json:"handoffs"`
	InboundMessages      int            `json:"inbound_messages"`
}

// Repository runs read-only aggregate queries.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		panic("reporting: sql db required")
	}
	return &Repository{db: db}
}

// ConversationsByState counts conversations touched in [from, to) grouped by state.
func (r *Repository) ConversationsByState(ctx context.Context, from, to time.Time) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT state, COUNT(*)
		FROM conversations
		WHERE updated_at >= $1 AND updated_at < $2
		GROUP BY state
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("reporting: conversations by state: %w", err)
	}
	return scanCounts(rows)
}

// AppointmentsByStatus counts appointments starting in [from, to). An empty
// statuses slice counts every status.
func (r *Repository) AppointmentsByStatus(ctx context.Context, from, to time.Time, statuses []storage.AppointmentStatus) (map[string]int, error) {
	filter := make([]string, 0, len(statuses))
	for _, s := range statuses {
		filter = append(filter, string(s))
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM appointments
		WHERE starts_at >= $1 AND starts_at < $2
		  AND (cardinality($3::text[]) = 0 OR status = ANY($3))
		GROUP BY status
	`, from, to, pq.Array(filter))
	if err != nil {
		return nil, fmt.Errorf("reporting: appointments by status: %w", err)
	}
	return scanCounts(rows)
}

// OpenHandoffs counts conversations waiting for a human right now.
func (r *Repository) OpenHandoffs(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM conversations WHERE state = ANY($1)
	`, pq.Array([]string{string(statemachine.HumanHandoff)})).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("reporting: open handoffs: %w", err)
	}
	return n, nil
}

// HandoffCount counts replies in [from, to) that handed the customer to a human.
func (r *Repository) HandoffCount(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT conversation_id)
		FROM messages
		WHERE direction = 'OUTBOUND' AND intent = ANY($3)
		  AND created_at >= $1 AND created_at < $2
	`, from, to, pq.Array([]string{string(intent.HumanHandoff)})).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("reporting: handoff count: %w", err)
	}
	return n, nil
}

func (r *Repository) inboundCount(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE direction = 'INBOUND' AND created_at >= $1 AND created_at < $2
	`, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("reporting: inbound count: %w", err)
	}
	return n, nil
}

// Summary assembles every count for [from, to).
func (r *Repository) Summary(ctx context.Context, from, to time.Time) (*Summary, error) {
	out := &Summary{From: from, To: to}
	var err error
	if out.ConversationsByState, err = r.ConversationsByState(ctx, from, to); err != nil {
		return nil, err
	}
	if out.AppointmentsByStatus, err = r.AppointmentsByStatus(ctx, from, to, nil); err != nil {
		return nil, err
	}
	if out.OpenHandoffs, err = r.OpenHandoffs(ctx); err != nil {
		return nil, err
	}
	if out.Handoffs, err = r.HandoffCount(ctx, from, to); err != nil {
		return nil, err
	}
	if out.InboundMessages, err = r.inboundCount(ctx, from, to); err != nil {
		return nil, err
	}
	return out, nil
}

func scanCounts(rows *sql.Rows) (map[string]int, error) {
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("reporting: scan count: %w", err)
		}
		out[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reporting: iterate counts: %w", err)
	}
	return out, nil
}
