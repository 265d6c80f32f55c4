package providers

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// FallbackClient calls primary and falls back to secondary only when
// primary has no credential. Any other primary error is returned as is.
type FallbackClient struct {
	primary   ModelClient
	secondary ModelClient
	logger    *zap.Logger
}

// NewFallbackClient creates a new FallbackClient instance
func NewFallbackClient(primary, secondary ModelClient, logger *zap.Logger) *FallbackClient {
	return &FallbackClient{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

func (c *FallbackClient) Name() string {
	return c.primary.Name()
}

func (c *FallbackClient) Complete(ctx context.Context, prompt string, contextTexts []string) (string, error) {
	resp, err := c.primary.Complete(ctx, prompt, contextTexts)
	if errors.Is(err, ErrNoCredential) {
		c.logger.Debug("no provider credential, using fallback model",
			zap.String("provider", c.primary.Name()),
			zap.String("fallback", c.secondary.Name()))
		return c.secondary.Complete(ctx, prompt, contextTexts)
	}
	return resp, err
}
