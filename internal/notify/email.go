package notify

import (
	"context"
	"fmt"

	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

const defaultFromName = "Clinic Concierge"

// EmailSender delivers one team notification email.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a plain-text email with an optional HTML alternative.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
	HTML    string
}

func (m EmailMessage) html() string {
	if m.HTML != "" {
		return m.HTML
	}
	return m.Body
}

// From is the sending mailbox.
type From struct {
	Email string
	Name  string
}

func (f From) withDefaults() From {
	if f.Name == "" {
		f.Name = defaultFromName
	}
	return f
}

func (f From) String() string {
	return fmt.Sprintf("%s <%s>", f.Name, f.Email)
}

// LogEmailSender only logs; used when no provider is configured.
type LogEmailSender struct {
	logger *logging.Logger
}

func NewLogEmailSender(logger *logging.Logger) *LogEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogEmailSender{logger: logger}
}

func (s *LogEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("email (log only)", "to", msg.To, "subject", msg.Subject)
	return nil
}
