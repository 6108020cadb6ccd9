package ai

import (
	"context"
	"errors"

	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// FallbackClient tries each client in order until one answers.
type FallbackClient struct {
	clients []Client
	logger  *logging.Logger
}

// NewFallbackClient chains primary to fallback. A nil fallback leaves primary alone.
func NewFallbackClient(primary, fallback Client, logger *logging.Logger) *FallbackClient {
	if logger == nil {
		logger = logging.Default()
	}
	clients := []Client{primary}
	if fallback != nil {
		clients = append(clients, fallback)
	}
	return &FallbackClient{clients: clients, logger: logger}
}

func (c *FallbackClient) Complete(ctx context.Context, req Request) (Response, error) {
	var errs []error
	for i, client := range c.clients {
		if i > 0 {
			// Model ids do not carry across providers.
			req.Model = ""
		}
		resp, err := client.Complete(ctx, req)
		if err == nil {
			if i > 0 {
				c.logger.Info("model fallback answered", "position", i)
			}
			return resp, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("model call failed", "position", i, "remaining", len(c.clients)-i-1, "error", err)
	}
	return Response{}, errors.Join(errs...)
}
