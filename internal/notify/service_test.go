package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
)

type mockEmailSender struct {
	sent   []EmailMessage
	failOn string
}

func (m *mockEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	if m.failOn != "" && msg.To == m.failOn {
		return errors.New("mock email error")
	}
	m.sent = append(m.sent, msg)
	return nil
}

type mockSMSSender struct {
	sent   []struct{ to, body string }
	failOn string
}

func (m *mockSMSSender) SendSMS(ctx context.Context, to, body string) error {
	if m.failOn != "" && to == m.failOn {
		return errors.New("mock SMS error")
	}
	m.sent = append(m.sent, struct{ to, body string }{to, body})
	return nil
}

func testProvider(t *testing.T) clinic.Provider {
	t.Helper()
	s := clinic.DefaultSettings()
	s.AdminPhones = []string{"+5511911110000", "+5511922220000"}
	s.AdminEmails = []string{"gerente@bellavita.com.br"}
	p, err := clinic.NewStaticProvider(s)
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	return p
}

func TestService_NotifyHandoff_AllChannels(t *testing.T) {
	email := &mockEmailSender{}
	sms := &mockSMSSender{}
	svc := NewService(email, sms, testProvider(t), nil)

	err := svc.NotifyHandoff(context.Background(), Handoff{
		CustomerPhone: "+5511999990000",
		CustomerName:  "Ana",
		Message:       "quero falar com uma pessoa",
		At:            time.Date(2028, 7, 10, 13, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sms.sent) != 2 || len(email.sent) != 1 {
		t.Fatalf("expected 2 sms and 1 email, got %d/%d", len(sms.sent), len(email.sent))
	}
	if !strings.Contains(sms.sent[0].body, "Ana (+5511999990000)") {
		t.Fatalf("sms should identify the customer: %q", sms.sent[0].body)
	}
	if !strings.Contains(email.sent[0].Body, "10/07/2028 10:00") {
		t.Fatalf("email should use clinic timezone: %q", email.sent[0].Body)
	}
	if !strings.Contains(email.sent[0].Body, "retomar +5511999990000") {
		t.Fatalf("email should explain how to resume: %q", email.sent[0].Body)
	}
}

func TestService_NotifyHandoff_PartialFailure(t *testing.T) {
	sms := &mockSMSSender{failOn: "+5511911110000"}
	svc := NewService(nil, sms, testProvider(t), nil)
	err := svc.NotifyHandoff(context.Background(), Handoff{CustomerPhone: "+5511999990000", Message: "ajuda"})
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if len(sms.sent) != 1 {
		t.Fatalf("remaining admins must still be notified, sent %d", len(sms.sent))
	}
}

func TestService_NotifyBooking(t *testing.T) {
	email := &mockEmailSender{}
	svc := NewService(email, nil, testProvider(t), nil)
	loc, _ := time.LoadLocation("America/Sao_Paulo")
	err := svc.NotifyBooking(context.Background(), Booking{
		CustomerPhone: "+5511999990000",
		Service:       "Botox",
		StartsAt:      time.Date(2028, 7, 17, 10, 0, 0, 0, loc),
		Cancelled:     true,
	})
	if err != nil {
		t.Fatalf("notify booking: %v", err)
	}
	if !strings.Contains(email.sent[0].Subject, "cancelado") || !strings.Contains(email.sent[0].Body, "Botox em 17/07 10:00") {
		t.Fatalf("unexpected email %+v", email.sent[0])
	}
}

func TestService_NoSettingsProvider(t *testing.T) {
	if err := NewService(nil, nil, nil, nil).NotifyHandoff(context.Background(), Handoff{}); err == nil {
		t.Fatalf("expected error without settings")
	}
}

func TestSMSFunc(t *testing.T) {
	var got string
	sender := SMSFunc(func(_ context.Context, to, body string) error {
		got = to + ":" + body
		return nil
	})
	if err := sender.SendSMS(context.Background(), "+5511", "oi"); err != nil || got != "+5511:oi" {
		t.Fatalf("unexpected send %q %v", got, err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("olá mundo", 3); got != "olá..." {
		t.Fatalf("truncate must respect runes, got %q", got)
	}
	if got := truncate("curto", 10); got != "curto" {
		t.Fatalf("unexpected %q", got)
	}
}
