package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// SMSSender sends SMS messages to operators.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Service alerts the clinic team about conversations that need them.
type Service struct {
	email    EmailSender
	sms      SMSSender
	settings clinic.Provider
	logger   *logging.Logger
}

// NewService creates a notification service. Either sender may be nil.
func NewService(email EmailSender, sms SMSSender, settings clinic.Provider, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, sms: sms, settings: settings, logger: logger}
}

// Handoff describes a customer waiting for a human.
type Handoff struct {
	CustomerPhone string
	CustomerName  string
	Message       string
	Reason        string
	At            time.Time
}

// Booking describes an appointment change worth telling the team about.
type Booking struct {
	CustomerPhone string
	Service       string
	StartsAt      time.Time
	Cancelled     bool
}

// NotifyHandoff alerts every admin phone and email.
func (s *Service) NotifyHandoff(ctx context.Context, h Handoff) error {
	cfg, err := s.load(ctx)
	if err != nil {
		return err
	}
	who := h.CustomerPhone
	if h.CustomerName != "" {
		who = fmt.Sprintf("%s (%s)", h.CustomerName, h.CustomerPhone)
	}
	reason := h.Reason
	if reason == "" {
		reason = "pedido de atendimento humano"
	}
	sms := fmt.Sprintf("[%s] %s precisa de atendimento: %s. Mensagem: \"%s\"", cfg.Name, who, reason, truncate(h.Message, 120))
	body := fmt.Sprintf("Cliente: %s\nMotivo: %s\nMensagem: %s\nHorário: %s\n\nResponda \"retomar %s\" para devolver a conversa ao assistente.",
		who, reason, h.Message, h.At.In(cfg.Location()).Format("02/01/2006 15:04"), h.CustomerPhone)
	return s.broadcast(ctx, cfg, sms, "Atendimento humano solicitado", body)
}

// NotifyBooking tells admins about a new or cancelled appointment.
func (s *Service) NotifyBooking(ctx context.Context, b Booking) error {
	cfg, err := s.load(ctx)
	if err != nil {
		return err
	}
	when := b.StartsAt.In(cfg.Location()).Format("02/01 15:04")
	verb, subject := "novo agendamento", "Novo agendamento"
	if b.Cancelled {
		verb, subject = "agendamento cancelado", "Agendamento cancelado"
	}
	sms := fmt.Sprintf("[%s] %s: %s em %s (%s)", cfg.Name, verb, b.Service, when, b.CustomerPhone)
	return s.broadcast(ctx, cfg, sms, subject, sms)
}

func (s *Service) load(ctx context.Context) (*clinic.Settings, error) {
	if s.settings == nil {
		return nil, errors.New("notify: settings provider not configured")
	}
	cfg, err := s.settings.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("notify: load settings: %w", err)
	}
	return cfg, nil
}

// broadcast tries every channel. Failures are joined so one bad recipient does
// not stop the rest.
func (s *Service) broadcast(ctx context.Context, cfg *clinic.Settings, smsBody, subject, emailBody string) error {
	var errs []error
	if s.sms != nil {
		for _, phone := range cfg.AdminPhones {
			if err := s.sms.SendSMS(ctx, phone, smsBody); err != nil {
				s.logger.Error("notify: admin sms failed", "error", err, "to", phone)
				errs = append(errs, fmt.Errorf("sms %s: %w", phone, err))
			}
		}
	}
	if s.email != nil {
		for _, addr := range cfg.AdminEmails {
			msg := EmailMessage{To: addr, Subject: fmt.Sprintf("[%s] %s", cfg.Name, subject), Body: emailBody}
			if err := s.email.Send(ctx, msg); err != nil {
				s.logger.Error("notify: admin email failed", "error", err, "to", addr)
				errs = append(errs, fmt.Errorf("email %s: %w", addr, err))
			}
		}
	}
	if len(cfg.AdminPhones) == 0 && len(cfg.AdminEmails) == 0 {
		s.logger.Warn("notify: no admin contacts configured")
	}
	return errors.Join(errs...)
}

// SMSFunc adapts a plain send function, such as messaging.Sender.Send, to SMSSender.
type SMSFunc func(ctx context.Context, to, body string) error

func (f SMSFunc) SendSMS(ctx context.Context, to, body string) error { return f(ctx, to, body) }

func truncate(s string, maxLen int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= maxLen {
		return string(r)
	}
	return string(r[:maxLen]) + "..."
}

var _ SMSSender = SMSFunc(nil)
