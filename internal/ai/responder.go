package ai

import (
	"context"
	"errors"
	"strings"
)

// Responder generates free-text replies for messages outside the rule and flow paths.
type Responder struct {
	client Client
	system string
}

// NewResponder builds a responder that speaks for clinicName.
func NewResponder(client Client, clinicName string) *Responder {
	system := "Você é a assistente virtual da " + clinicName + ". Responda em português do Brasil, de forma curta, cordial e objetiva. " +
		"Nunca invente preços, horários ou diagnósticos; quando não souber, ofereça falar com a equipe."
	return &Responder{client: client, system: system}
}

// Generate answers prompt. An empty model reply is an error.
func (r *Responder) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "ai.generate")
	defer span.End()

	if r.client == nil {
		return "", errors.New("ai: no model configured")
	}
	resp, err := r.client.Complete(ctx, Request{
		System:      []string{r.system},
		Messages:    []Message{{Role: RoleUser, Content: prompt}},
		MaxTokens:   300,
		Temperature: 0.4,
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", errors.New("ai: empty reply")
	}
	return text, nil
}
