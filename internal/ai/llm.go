// Package ai wraps the external language models used as the last tier of
// intent resolution and for open-ended replies.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn sent to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// Request is a provider-neutral completion request. A negative Temperature
// keeps the provider default.
type Request struct {
	Model       string
	System      []string
	Messages    []Message
	MaxTokens   int32
	Temperature float32
}

type Response struct {
	Text       string
	Usage      Usage
	StopReason string
}

// Client completes chat requests against one provider.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// split folds system-role messages into the system prompt and drops blank
// turns. Every provider adapter starts from it.
func (r Request) split() (system string, turns []Message, err error) {
	var sys []string
	for _, s := range r.System {
		if s = strings.TrimSpace(s); s != "" {
			sys = append(sys, s)
		}
	}
	for _, m := range r.Messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		switch m.Role {
		case RoleSystem:
			sys = append(sys, content)
		case RoleUser, RoleAssistant:
			turns = append(turns, Message{Role: m.Role, Content: content})
		default:
			return "", nil, fmt.Errorf("ai: unsupported role %q", m.Role)
		}
	}
	return strings.Join(sys, "\n\n"), turns, nil
}

func (r Request) model(fallback string) string {
	if r.Model != "" {
		return r.Model
	}
	return fallback
}

type timeoutClient struct {
	next    Client
	timeout time.Duration
}

// WithTimeout gives every Complete call on next its own deadline. A zero
// timeout returns next unchanged.
func WithTimeout(next Client, timeout time.Duration) Client {
	if timeout <= 0 {
		return next
	}
	return &timeoutClient{next: next, timeout: timeout}
}

func (c *timeoutClient) Complete(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.next.Complete(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("ai: complete: %w", err)
	}
	return resp, nil
}
