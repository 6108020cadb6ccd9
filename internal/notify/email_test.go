package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type fakeSendGrid struct {
	sent   *mail.SGMailV3
	status int
	err    error
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, m *mail.SGMailV3) (*rest.Response, error) {
	f.sent = m
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status}, nil
}

func TestNewSendGridSenderRequiresKey(t *testing.T) {
	if NewSendGridSender("", From{Email: "a@b.c"}, nil) != nil {
		t.Fatal("expected nil sender without API key")
	}
	if s := NewSendGridSender("SG.key", From{Email: "a@b.c"}, nil); s == nil || s.from.Name != defaultFromName {
		t.Fatalf("expected sender with default name, got %+v", s)
	}
}

func TestSendGridSenderSend(t *testing.T) {
	tests := []struct {
		name    string
		api     *fakeSendGrid
		wantErr bool
	}{
		{"accepted", &fakeSendGrid{status: 202}, false},
		{"rejected", &fakeSendGrid{status: 401}, true},
		{"transport error", &fakeSendGrid{err: errors.New("dial tcp")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSendGridSender(tt.api, From{Email: "no-reply@bellavita.com.br", Name: "Bella Vita"}, nil)
			err := s.Send(context.Background(), EmailMessage{To: "recepcao@bellavita.com.br", Subject: "Atendimento humano", Body: "Cliente aguardando"})
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if tt.api.sent == nil || tt.api.sent.From.Name != "Bella Vita" || tt.api.sent.Subject != "Atendimento humano" {
				t.Fatalf("unexpected message %+v", tt.api.sent)
			}
		})
	}
}

func TestEmailMessageHTMLFallsBackToBody(t *testing.T) {
	if got := (EmailMessage{Body: "texto"}).html(); got != "texto" {
		t.Fatalf("expected body as html fallback, got %q", got)
	}
	if got := (EmailMessage{Body: "texto", HTML: "<p>texto</p>"}).html(); got != "<p>texto</p>" {
		t.Fatalf("expected explicit html, got %q", got)
	}
}

func TestLogEmailSender(t *testing.T) {
	if err := NewLogEmailSender(nil).Send(context.Background(), EmailMessage{To: "a@example.com"}); err != nil {
		t.Fatalf("log sender should not fail: %v", err)
	}
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSenderSend(t *testing.T) {
	api := &fakeSES{}
	sender := NewSESSender(api, From{Email: "no-reply@bellavita.com.br"}, nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "admin@bellavita.com.br", Subject: "Oi", Body: "texto"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := aws.ToString(api.input.FromEmailAddress); got != "Clinic Concierge <no-reply@bellavita.com.br>" {
		t.Fatalf("unexpected from %q", got)
	}
	body := api.input.Content.Simple.Body
	if aws.ToString(body.Text.Data) != "texto" || body.Html != nil {
		t.Fatalf("expected text-only body, got %+v", body)
	}

	api.err = errors.New("throttled")
	if err := sender.Send(context.Background(), EmailMessage{To: "x@example.com"}); err == nil {
		t.Fatalf("expected SES error")
	}
	if NewSESSender(nil, From{}, nil) != nil {
		t.Fatalf("nil client yields nil sender")
	}
}
