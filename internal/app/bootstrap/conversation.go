package bootstrap

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/wolfman30/clinic-concierge/internal/ai"
	"github.com/wolfman30/clinic-concierge/internal/clinic"
	appconfig "github.com/wolfman30/clinic-concierge/internal/config"
	"github.com/wolfman30/clinic-concierge/internal/conversation"
	"github.com/wolfman30/clinic-concierge/internal/convctx"
	"github.com/wolfman30/clinic-concierge/internal/humanize"
	"github.com/wolfman30/clinic-concierge/internal/messaging"
	"github.com/wolfman30/clinic-concierge/internal/notify"
	"github.com/wolfman30/clinic-concierge/internal/observability/metrics"
	"github.com/wolfman30/clinic-concierge/internal/storage"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// EngineDeps are the collaborators shared between the engine and the jobs.
type EngineDeps struct {
	Store         storage.Store
	Contexts      *convctx.Store
	Settings      clinic.Provider
	Sender        messaging.Sender
	Cancellations conversation.CancellationListener
	Metrics       *metrics.EngineMetrics
	Now           func() time.Time
}

// BuildEngine wires the conversation engine with the optional AI and notification collaborators.
func BuildEngine(ctx context.Context, cfg *appconfig.Config, deps EngineDeps, logger *logging.Logger) (*conversation.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	engineCfg := conversation.Config{
		Store:               deps.Store,
		Contexts:            deps.Contexts,
		Settings:            deps.Settings,
		Humanizer:           humanize.New(),
		Cancellations:       deps.Cancellations,
		Metrics:             deps.Metrics,
		Logger:              logger,
		ConfidenceThreshold: cfg.AIConfidenceThreshold,
		MaxFailedAttempts:   cfg.MaxFailedAttempts,
		ConversationWindow:  cfg.ConversationWindow,
		Now:                 deps.Now,
	}

	client, err := ai.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: ai client: %w", err)
	}
	if client != nil {
		name := "a clínica"
		if s, err := deps.Settings.Settings(ctx); err == nil && s.Name != "" {
			name = s.Name
		}
		engineCfg.Analyzer = ai.NewClassifier(client, logger)
		engineCfg.Responder = ai.NewResponder(client, name)
		logger.Info("ai collaborator enabled", "provider", cfg.AIProvider)
	}

	engineCfg.Notifier = BuildNotifier(ctx, cfg, deps, logger)
	return conversation.NewEngine(engineCfg)
}

// BuildNotifier sends team alerts by SMS through the patient transport and by
// email through SendGrid or SES, whichever is configured.
func BuildNotifier(ctx context.Context, cfg *appconfig.Config, deps EngineDeps, logger *logging.Logger) *notify.Service {
	var email notify.EmailSender
	switch {
	case cfg.SendGridAPIKey != "":
		email = notify.NewSendGridSender(cfg.SendGridAPIKey, notify.From{
			Email: cfg.SendGridFromEmail,
			Name:  cfg.SendGridFromName,
		}, logger)
		logger.Info("email notifications via sendgrid")
	case cfg.SESFromEmail != "":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logger.Warn("ses unavailable, email notifications disabled", "error", err)
			break
		}
		email = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.From{
			Email: cfg.SESFromEmail,
			Name:  cfg.SendGridFromName,
		}, logger)
		logger.Info("email notifications via ses")
	default:
		email = notify.NewLogEmailSender(logger)
	}

	var sms notify.SMSSender
	if deps.Sender != nil {
		sms = notify.SMSFunc(deps.Sender.Send)
	}
	return notify.NewService(email, sms, deps.Settings, logger)
}
