package messaging

import (
	"context"
	"errors"

	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// Sender delivers a text message to a phone number.
type Sender interface {
	Send(ctx context.Context, to, text string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, to, text string) error

func (f SenderFunc) Send(ctx context.Context, to, text string) error { return f(ctx, to, text) }

// LogSender writes outbound messages to the log instead of a carrier.
type LogSender struct {
	logger *logging.Logger
}

func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, to, text string) error {
	s.logger.Info("outbound sms (log only)", "to", to, "body", text)
	return nil
}

type namedSender struct {
	name string
	Sender
}

// FailoverSender hands a message to the secondary when the primary fails.
// The secondary's error, if any, is the one returned.
type FailoverSender struct {
	primary, secondary namedSender
	logger             *logging.Logger
}

func NewFailoverSender(primary Sender, primaryName string, secondary Sender, secondaryName string, logger *logging.Logger) *FailoverSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverSender{
		primary:   namedSender{primaryName, primary},
		secondary: namedSender{secondaryName, secondary},
		logger:    logger,
	}
}

func (f *FailoverSender) Send(ctx context.Context, to, text string) error {
	if f == nil || f.primary.Sender == nil {
		return errors.New("messaging: failover sender has no primary")
	}
	err := f.primary.Send(ctx, to, text)
	if err == nil || f.secondary.Sender == nil {
		return err
	}
	log := f.logger.With("to", to, "provider", f.primary.name, "fallback", f.secondary.name)
	log.Warn("sms send failed, trying fallback", "error", err)
	if err := f.secondary.Send(ctx, to, text); err != nil {
		log.Error("fallback sms send failed", "error", err)
		return err
	}
	return nil
}

var (
	_ Sender = (*LogSender)(nil)
	_ Sender = (*FailoverSender)(nil)
	_ Sender = SenderFunc(nil)
)
