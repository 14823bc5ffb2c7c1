package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNoProvider is returned when a chain holds no provider.
var ErrNoProvider = errors.New("no ai provider configured")

// ChainProvider tries a primary provider and falls back to the next ones in order.
type ChainProvider struct {
	providers []Provider
	logger    zerolog.Logger
}

// NewChainProvider builds a chain, skipping nil providers. It returns nil when none remain.
func NewChainProvider(logger zerolog.Logger, providers ...Provider) *ChainProvider {
	filtered := make([]Provider, 0, len(providers))
	for _, provider := range providers {
		if provider != nil {
			filtered = append(filtered, provider)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return &ChainProvider{
		providers: filtered,
		logger:    logger.With().Str("component", "ai_chain").Logger(),
	}
}

// Name joins the provider names in fallback order.
func (c *ChainProvider) Name() string {
	names := make([]string, 0, len(c.providers))
	for _, provider := range c.providers {
		names = append(names, provider.Name())
	}
	return strings.Join(names, ">")
}

// Generate returns the first successful response. When every provider fails the errors are
// joined so quota markers from any of them stay visible to callers.
func (c *ChainProvider) Generate(ctx context.Context, req Request) (Response, error) {
	if c == nil || len(c.providers) == 0 {
		return Response{}, ErrNoProvider
	}

	var errs []error
	for i, provider := range c.providers {
		resp, err := provider.Generate(ctx, req)
		if err == nil {
			if i > 0 {
				aiProviderFallbacks.WithLabelValues(c.providers[0].Name(), provider.Name()).Inc()
				c.logger.Info().Str("provider", provider.Name()).Str("operation", req.Operation).Msg("served by fallback provider")
			}
			return resp, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn().Err(err).Str("provider", provider.Name()).Str("operation", req.Operation).Msg("provider failed")
	}
	return Response{}, errors.Join(errs...)
}
