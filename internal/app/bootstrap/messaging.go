package bootstrap

import (
	"strings"

	appconfig "github.com/wolfman30/clinic-concierge/internal/config"
	"github.com/wolfman30/clinic-concierge/internal/messaging"
	"github.com/wolfman30/clinic-concierge/internal/messaging/telnyxclient"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// BuildTelnyxClient returns nil when no API key is configured.
func BuildTelnyxClient(cfg *appconfig.Config, logger *logging.Logger) (*telnyxclient.Client, error) {
	if strings.TrimSpace(cfg.TelnyxAPIKey) == "" {
		return nil, nil
	}
	return telnyxclient.New(telnyxclient.Config{
		APIKey:        cfg.TelnyxAPIKey,
		WebhookSecret: cfg.TelnyxWebhookSecret,
		Logger:        logger,
	})
}

// BuildSender picks the outbound transport. Without Telnyx replies are only
// logged. Outside production a Telnyx failure falls back to the log.
func BuildSender(cfg *appconfig.Config, client *telnyxclient.Client, logger *logging.Logger) (messaging.Sender, string) {
	logSender := messaging.NewLogSender(logger)
	if client == nil {
		return logSender, "log"
	}
	telnyx := messaging.NewTelnyxSender(client, cfg.TelnyxFromNumber, cfg.TelnyxMessagingProfileID, logger)
	if cfg.IsProduction() {
		return telnyx, "telnyx"
	}
	return messaging.NewFailoverSender(telnyx, "telnyx", logSender, "log", logger), "telnyx+log"
}
