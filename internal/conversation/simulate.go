package conversation

import (
	"context"
	"fmt"

	"github.com/wolfman30/clinic-concierge/internal/messaging"
)

// SimulateResult is the debug view of one turn.
type SimulateResult struct {
	Response   string         `json:"response"`
	Intent     string         `json:"intent"`
	Confidence int            `json:"confidence"`
	State      string         `json:"state"`
	Debug      map[string]any `json:"debug"`
}

// Simulate runs a full turn without a transport. Messages are persisted the
// same way as real traffic.
func (e *Engine) Simulate(ctx context.Context, phone, text string) (SimulateResult, error) {
	reply, err := e.HandleInbound(ctx, InboundMessage{Phone: phone, Text: text, ReceivedAt: e.now()})
	if err != nil {
		return SimulateResult{}, err
	}
	debug := map[string]any{
		"resolver":        reply.Resolver,
		"failed_attempts": reply.FailedAttempts,
		"suppressed":      reply.Suppressed,
		"conversation_id": reply.ConversationID.String(),
	}
	if reply.RuleID != "" {
		debug["rule_id"] = reply.RuleID
	}
	if reply.Step != "" {
		debug["step"] = string(reply.Step)
	}
	if reply.Event != "" {
		debug["event"] = string(reply.Event)
	}
	return SimulateResult{
		Response:   reply.Text,
		Intent:     string(reply.Intent),
		Confidence: reply.Confidence,
		State:      string(reply.State),
		Debug:      debug,
	}, nil
}

// Process adapts the engine to the webhook handler.
func (e *Engine) Process(ctx context.Context, in messaging.Inbound) (string, error) {
	reply, err := e.HandleInbound(ctx, InboundMessage{
		Phone:      in.From,
		Text:       in.Text,
		MessageID:  in.MessageID,
		ReceivedAt: in.ReceivedAt,
	})
	if err != nil {
		return "", fmt.Errorf("conversation: process inbound: %w", err)
	}
	return reply.Text, nil
}
