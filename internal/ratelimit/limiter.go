package ratelimit

import "context"

// RateLimiter caps how often a subject (for example one user's poll loop)
// may hit a hot endpoint within a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, subject string) (bool, error)
}

// Unlimited allows every call. It is used when throttling is disabled.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (bool, error) { return true, nil }

var _ RateLimiter = Unlimited{}
