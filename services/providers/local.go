package providers

import (
	"context"
	"fmt"
)

// LocalClient answers without calling any external service. It stands in
// for the real model when no provider credential is configured.
type LocalClient struct{}

func NewLocalClient() *LocalClient {
	return &LocalClient{}
}

func (c *LocalClient) Name() string {
	return "local"
}

func (c *LocalClient) Complete(ctx context.Context, prompt string, _ []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("local model response to '%s'", prompt), nil
}
