package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedProvider throttles Request through a token bucket. Events pass
// through untouched.
type RateLimitedProvider struct {
	Provider
	limiter *rate.Limiter
}

func RateLimited(p Provider, limiter *rate.Limiter) *RateLimitedProvider {
	return &RateLimitedProvider{Provider: p, limiter: limiter}
}

func (r *RateLimitedProvider) Request(ctx context.Context, args RequestArguments) (json.RawMessage, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("provider: rate limit %s: %w", args.Method, err)
	}
	return r.Provider.Request(ctx, args)
}

// Close closes the wrapped transport when it supports closing.
func (r *RateLimitedProvider) Close() error {
	if c, ok := r.Provider.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
