package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-concierge/internal/messaging/telnyxclient"
	"github.com/wolfman30/clinic-concierge/internal/textutil"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

type telnyxAPI interface {
	SendMessage(ctx context.Context, req telnyxclient.SendMessageRequest) (*telnyxclient.MessageResponse, error)
}

// TelnyxSender sends SMS from the clinic number through Telnyx. Numbers are
// normalized to E.164 on the way out.
type TelnyxSender struct {
	api       telnyxAPI
	from      string
	profileID string
	logger    *logging.Logger
}

func NewTelnyxSender(api telnyxAPI, from, profileID string, logger *logging.Logger) *TelnyxSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TelnyxSender{
		api:       api,
		from:      textutil.E164(from),
		profileID: strings.TrimSpace(profileID),
		logger:    logger,
	}
}

func (s *TelnyxSender) Send(ctx context.Context, to, text string) error {
	if s.api == nil {
		return errors.New("messaging: telnyx client not configured")
	}
	resp, err := s.api.SendMessage(ctx, telnyxclient.SendMessageRequest{
		From:               s.from,
		To:                 textutil.E164(to),
		Body:               text,
		MessagingProfileID: s.profileID,
	})
	if err != nil {
		return fmt.Errorf("messaging: telnyx send: %w", err)
	}
	s.logger.Debug("sms queued", "to", to, "message_id", resp.ID, "status", resp.Status())
	return nil
}
