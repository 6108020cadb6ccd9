package telnyxclient

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// SendMessageRequest is an outbound SMS.
type SendMessageRequest struct {
	From               string
	To                 string
	Body               string
	MessagingProfileID string
}

func (r SendMessageRequest) validate() error {
	switch {
	case strings.TrimSpace(r.From) == "" && strings.TrimSpace(r.MessagingProfileID) == "":
		return errors.New("telnyxclient: from number or messaging profile required")
	case strings.TrimSpace(r.To) == "":
		return errors.New("telnyxclient: to number required")
	case strings.TrimSpace(r.Body) == "":
		return errors.New("telnyxclient: message body required")
	}
	return nil
}

func (r SendMessageRequest) body() map[string]string {
	b := map[string]string{"to": r.To, "text": r.Body}
	if r.From != "" {
		b["from"] = r.From
	}
	if r.MessagingProfileID != "" {
		b["messaging_profile_id"] = r.MessagingProfileID
	}
	return b
}

// Recipient is one delivery target of a message.
type Recipient struct {
	PhoneNumber string `json:"phone_number"`
	Status      string `json:"status"`
}

// MessageResponse is the subset of the message resource the service reads.
type MessageResponse struct {
	ID        string      `json:"id"`
	Direction string      `json:"direction"`
	Text      string      `json:"text"`
	Parts     int         `json:"parts"`
	CreatedAt time.Time   `json:"created_at"`
	To        []Recipient `json:"to"`
}

// Status returns the delivery status of the first recipient.
func (m MessageResponse) Status() string {
	if len(m.To) == 0 {
		return ""
	}
	return m.To[0].Status
}

// Event is a webhook envelope.
type Event struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

const (
	EventMessageReceived = "message.received"
	EventMessageSent     = "message.sent"
	EventMessageFinal    = "message.finalized"
)

// ParseEvent decodes the {"data": {...}} webhook envelope.
func ParseEvent(body []byte) (Event, error) {
	var wrapper struct {
		Data Event `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return Event{}, errors.New("telnyxclient: invalid webhook payload")
	}
	if wrapper.Data.ID == "" || wrapper.Data.EventType == "" {
		return Event{}, errors.New("telnyxclient: webhook missing id or event type")
	}
	return wrapper.Data, nil
}

// MessagePayload is the payload of message.* events.
type MessagePayload struct {
	ID        string   `json:"id"`
	Direction string   `json:"direction"`
	Text      string   `json:"text"`
	MediaURLs []string `json:"media_urls"`
	From      struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"from"`
	To []Recipient `json:"to"`
}

func (p MessagePayload) FromNumber() string {
	return strings.TrimSpace(p.From.PhoneNumber)
}

func (p MessagePayload) ToNumber() string {
	if len(p.To) == 0 {
		return ""
	}
	return strings.TrimSpace(p.To[0].PhoneNumber)
}
