// Package jobs runs the periodic sweeps around conversations: appointment
// reminders, waitlist notices, nudges for abandoned bookings and closing idle
// conversations.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/convctx"
	"github.com/wolfman30/clinic-concierge/internal/messaging"
	"github.com/wolfman30/clinic-concierge/internal/messaging/compliance"
	"github.com/wolfman30/clinic-concierge/internal/observability/metrics"
	"github.com/wolfman30/clinic-concierge/internal/statemachine"
	"github.com/wolfman30/clinic-concierge/internal/storage"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

const (
	DefaultInterval   = 10 * time.Minute
	DefaultStaleAfter = 24 * time.Hour
	DefaultNudgeAfter = 2 * time.Hour
	defaultBatch      = 200
)

// Config wires a Runner. Store, Contexts, Settings and Sender are required.
type Config struct {
	Store      storage.Store
	Contexts   *convctx.Store
	Settings   clinic.Provider
	Sender     messaging.Sender
	Machine    *statemachine.Machine
	QuietHours compliance.QuietHours
	Metrics    *metrics.MessagingMetrics
	Logger     *logging.Logger
	Interval   time.Duration
	StaleAfter time.Duration
	NudgeAfter time.Duration
	Now        func() time.Time
}

// Runner executes the sweeps on a ticker.
type Runner struct {
	store      storage.Store
	contexts   *convctx.Store
	settings   clinic.Provider
	sender     messaging.Sender
	machine    *statemachine.Machine
	quiet      compliance.QuietHours
	metrics    *metrics.MessagingMetrics
	logger     *logging.Logger
	interval   time.Duration
	staleAfter time.Duration
	nudgeAfter time.Duration
	now        func() time.Time

	mu       sync.Mutex
	deferred []storage.Appointment
}

func New(cfg Config) (*Runner, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("jobs: store required")
	case cfg.Contexts == nil:
		return nil, errors.New("jobs: context store required")
	case cfg.Settings == nil:
		return nil, errors.New("jobs: settings provider required")
	case cfg.Sender == nil:
		return nil, errors.New("jobs: sender required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Machine == nil {
		cfg.Machine = statemachine.New(cfg.Logger)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.NudgeAfter <= 0 {
		cfg.NudgeAfter = DefaultNudgeAfter
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Runner{
		store:      cfg.Store,
		contexts:   cfg.Contexts,
		settings:   cfg.Settings,
		sender:     cfg.Sender,
		machine:    cfg.Machine,
		quiet:      cfg.QuietHours,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		interval:   cfg.Interval,
		staleAfter: cfg.StaleAfter,
		nudgeAfter: cfg.NudgeAfter,
		now:        cfg.Now,
	}, nil
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce executes every sweep. A failing sweep does not stop the others.
func (r *Runner) RunOnce(ctx context.Context) {
	if n, err := r.CompleteStale(ctx); err != nil {
		r.logger.Error("stale conversation sweep failed", "error", err)
	} else if n > 0 {
		r.logger.Info("stale conversations completed", "count", n)
	}
	if r.quiet.Suppress(r.now(), compliance.PurposeProactive) {
		r.logger.Debug("quiet hours, proactive sends held", "resume_at", r.quiet.Resume(r.now()).Format(time.RFC3339))
		return
	}
	if n, err := r.SendReminders(ctx); err != nil {
		r.logger.Error("reminder sweep failed", "error", err)
	} else if n > 0 {
		r.logger.Info("reminders sent", "count", n)
	}
	if n, err := r.SendNudges(ctx); err != nil {
		r.logger.Error("nudge sweep failed", "error", err)
	} else if n > 0 {
		r.logger.Info("nudges sent", "count", n)
	}
	r.flushDeferred(ctx)
}

// contextFor returns the context key of the user's live conversation, opening
// one when the window has lapsed, so a proactive message and its reply share it.
func (r *Runner) contextFor(ctx context.Context, userID uuid.UUID) (convctx.Key, error) {
	since := r.now().Add(-r.staleAfter)
	conv, err := r.store.ActiveConversation(ctx, userID, since)
	if errors.Is(err, storage.ErrNotFound) {
		conv, err = r.store.CreateConversation(ctx, userID)
	}
	if err != nil {
		return convctx.Key{}, fmt.Errorf("jobs: conversation for user: %w", err)
	}
	return convctx.Key{UserID: userID, ConversationID: conv.ID}, nil
}

func (r *Runner) send(ctx context.Context, kind string, convID uuid.UUID, to, text string) error {
	err := r.sender.Send(ctx, to, text)
	r.metrics.ObserveOutbound(kind, err)
	if err != nil {
		return fmt.Errorf("jobs: send %s: %w", kind, err)
	}
	msg := &storage.Message{ConversationID: convID, Direction: storage.DirectionOutbound, Text: text, Intent: kind}
	if err := r.store.AppendMessage(ctx, msg); err != nil {
		r.logger.Error("proactive message not persisted", "error", err, "kind", kind, "conversation_id", convID)
	}
	return nil
}
