package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-concierge/internal/intent"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

var tracer = otel.Tracer("clinic-concierge/ai")

// ErrMalformedOutput is returned when the model reply carries no usable JSON.
var ErrMalformedOutput = errors.New("ai: malformed model output")

// Snapshot is the conversation context handed to the classifier.
type Snapshot struct {
	ClinicName string
	Services   []string
	State      string
	Step       string
	History    []Message
}

// Entities are the scheduling facts a model extracted from the message.
type Entities struct {
	Service string `json:"service,omitempty"`
	Date    string `json:"date,omitempty"`
	Time    string `json:"time,omitempty"`
}

// Analysis is the classifier verdict. Confidence is 0 to 100.
type Analysis struct {
	Intent     intent.Intent
	Entities   Entities
	Confidence int
}

// Classifier asks a model for an intent label.
type Classifier struct {
	client Client
	logger *logging.Logger
}

func NewClassifier(client Client, logger *logging.Logger) *Classifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &Classifier{client: client, logger: logger}
}

const classifierSystemPrompt = `Você classifica mensagens de pacientes de uma clínica de estética brasileira.
Responda APENAS com um objeto JSON no formato:
{"intent": "<INTENT>", "confidence": <0-100>, "entities": {"service": "", "date": "", "time": ""}}
Intents válidos: GREETING, SCHEDULE_NEW, RESCHEDULE, CANCEL, HUMAN_HANDOFF, PRICES, SERVICES, HOURS, LOCATION, PAYMENT, CONTACT, MENU, CONFIRM_YES, CONFIRM_NO, THANKS, FAREWELL, MY_APPOINTMENTS, SMALL_TALK, UNKNOWN.
Use confidence baixa quando a mensagem for ambígua ou fora do contexto da clínica.`

// Analyze classifies text. Transport failures and malformed output are errors;
// callers treat both as a low-confidence turn.
func (c *Classifier) Analyze(ctx context.Context, text string, snap Snapshot) (Analysis, error) {
	ctx, span := tracer.Start(ctx, "ai.analyze")
	defer span.End()

	if c.client == nil {
		return Analysis{Intent: intent.Unknown}, errors.New("ai: no model configured")
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Clínica: %s\n", snap.ClinicName)
	if len(snap.Services) > 0 {
		fmt.Fprintf(&prompt, "Serviços: %s\n", strings.Join(snap.Services, ", "))
	}
	if snap.State != "" {
		fmt.Fprintf(&prompt, "Estado da conversa: %s\n", snap.State)
	}
	if snap.Step != "" {
		fmt.Fprintf(&prompt, "Etapa do agendamento: %s\n", snap.Step)
	}
	fmt.Fprintf(&prompt, "Mensagem: %s", text)

	messages := append(append([]Message(nil), snap.History...), Message{Role: RoleUser, Content: prompt.String()})
	resp, err := c.client.Complete(ctx, Request{
		System:      []string{classifierSystemPrompt},
		Messages:    messages,
		MaxTokens:   200,
		Temperature: 0,
	})
	if err != nil {
		span.RecordError(err)
		return Analysis{Intent: intent.Unknown}, err
	}

	analysis, err := parseAnalysis(resp.Text)
	if err != nil {
		span.RecordError(err)
		c.logger.Warn("classifier returned malformed output", "error", err)
		return Analysis{Intent: intent.Unknown}, err
	}
	span.SetAttributes(
		attribute.String("ai.intent", string(analysis.Intent)),
		attribute.Int("ai.confidence", analysis.Confidence),
	)
	return analysis, nil
}

func parseAnalysis(text string) (Analysis, error) {
	raw, ok := extractJSON(text)
	if !ok {
		return Analysis{}, ErrMalformedOutput
	}
	var payload struct {
		Intent     string   `json:"intent"`
		Confidence float64  `json:"confidence"`
		Entities   Entities `json:"entities"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	confidence := payload.Confidence
	// Some models answer on a 0-1 scale.
	if confidence > 0 && confidence <= 1 {
		confidence *= 100
	}
	return Analysis{
		Intent:     intent.Parse(payload.Intent),
		Entities:   payload.Entities,
		Confidence: clamp(int(confidence+0.5), 0, 100),
	}, nil
}

// extractJSON returns the outermost object in text, tolerating code fences and prose.
func extractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
