package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/clinic-concierge/internal/messaging/telnyxclient"
	"github.com/wolfman30/clinic-concierge/internal/textutil"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// Inbound is a patient message handed to the conversation engine.
type Inbound struct {
	From       string
	To         string
	Text       string
	MessageID  string
	ReceivedAt time.Time
}

// ProcessFunc runs one conversation turn and returns the reply text, empty for no reply.
type ProcessFunc func(ctx context.Context, msg Inbound) (string, error)

type signatureVerifier interface {
	VerifyWebhookSignature(timestamp, signature string, payload []byte) error
}

// WebhookObserver records webhook handling latency.
type WebhookObserver interface {
	ObserveWebhook(eventType string, seconds float64)
}

// WebhookConfig configures a WebhookHandler.
type WebhookConfig struct {
	Verifier       signatureVerifier
	Process        ProcessFunc
	Sender         Sender
	Logger         *logging.Logger
	Observer       WebhookObserver
	ProcessTimeout time.Duration
}

// WebhookHandler receives Telnyx message webhooks and runs the conversation turn
// in the background so the carrier gets a fast acknowledgement.
type WebhookHandler struct {
	verifier signatureVerifier
	process  ProcessFunc
	sender   Sender
	logger   *logging.Logger
	observer WebhookObserver
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 30 * time.Second
	}
	return &WebhookHandler{
		verifier: cfg.Verifier,
		process:  cfg.Process,
		sender:   cfg.Sender,
		logger:   cfg.Logger,
		observer: cfg.Observer,
		timeout:  cfg.ProcessTimeout,
	}
}

// HandleMessages processes Telnyx message webhooks (inbound messages + delivery receipts).
func (h *WebhookHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	if h.process == nil {
		http.Error(w, "conversation engine not configured", http.StatusServiceUnavailable)
		return
	}
	start := time.Now()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if h.verifier != nil {
		if err := h.verifier.VerifyWebhookSignature(r.Header.Get("Telnyx-Timestamp"), r.Header.Get("Telnyx-Signature"), body); err != nil {
			h.logger.Warn("invalid telnyx webhook signature", "error", err)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}
	evt, err := telnyxclient.ParseEvent(body)
	if err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	switch evt.EventType {
	case telnyxclient.EventMessageReceived:
		if err := h.handleInbound(r.Context(), evt); err != nil {
			h.logger.Warn("telnyx inbound dropped", "error", err, "event_id", evt.ID)
			http.Error(w, "invalid message payload", http.StatusBadRequest)
			return
		}
	case telnyxclient.EventMessageSent, telnyxclient.EventMessageFinal:
		h.logDeliveryStatus(evt)
	default:
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if h.observer != nil {
		h.observer.ObserveWebhook(evt.EventType, time.Since(start).Seconds())
	}
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleInbound(ctx context.Context, evt telnyxclient.Event) error {
	var payload telnyxclient.MessagePayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return fmt.Errorf("messaging: decode inbound payload: %w", err)
	}
	from := textutil.E164(payload.FromNumber())
	to := textutil.E164(payload.ToNumber())
	if from == "" || to == "" {
		return fmt.Errorf("messaging: missing phone numbers in payload")
	}
	if len(payload.To) > 1 {
		h.logger.Info("group message ignored", "from", from, "recipients", len(payload.To))
		return nil
	}
	if strings.TrimSpace(payload.Text) == "" {
		h.logger.Info("media-only message ignored", "from", from, "media", len(payload.MediaURLs))
		return nil
	}
	msg := Inbound{
		From:       from,
		To:         to,
		Text:       payload.Text,
		MessageID:  payload.ID,
		ReceivedAt: evt.OccurredAt,
	}
	if msg.MessageID == "" {
		msg.MessageID = evt.ID
	}
	// The turn outlives the webhook request.
	turnCtx := context.WithoutCancel(ctx)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.dispatch(turnCtx, msg)
	}()
	return nil
}

func (h *WebhookHandler) dispatch(ctx context.Context, msg Inbound) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	reply, err := h.process(ctx, msg)
	if err != nil {
		h.logger.Error("conversation turn failed", "error", err, "from", msg.From, "message_id", msg.MessageID)
		return
	}
	if reply == "" || h.sender == nil {
		return
	}
	if err := h.sender.Send(ctx, msg.From, reply); err != nil {
		h.logger.Error("reply send failed", "error", err, "to", msg.From)
	}
}

func (h *WebhookHandler) logDeliveryStatus(evt telnyxclient.Event) {
	var payload telnyxclient.MessagePayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		h.logger.Warn("delivery status payload unreadable", "error", err, "event_id", evt.ID)
		return
	}
	status := ""
	if len(payload.To) > 0 {
		status = payload.To[0].Status
	}
	h.logger.Info("telnyx delivery status",
		"event_type", evt.EventType,
		"message_id", payload.ID,
		"to", payload.ToNumber(),
		"status", status,
	)
}

// Wait blocks until every background turn has finished.
func (h *WebhookHandler) Wait() {
	h.wg.Wait()
}
