// Package ratelimit implements sliding-window request counters partitioned
// by (policy tier, client key).
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Tier names a rate-limit policy.
type Tier string

const (
	TierAPI     Tier = "api"
	TierStrict  Tier = "strict"
	TierAuth    Tier = "auth"
	TierContact Tier = "contact"
)

// ErrUnknownTier is returned when a tier has no configured policy.
var ErrUnknownTier = errors.New("unknown rate limit tier")

// Policy is a sliding-window limit: at most Limit hits within any Window.
type Policy struct {
	Name   Tier
	Limit  int
	Window time.Duration
}

// DefaultPolicies returns the built-in tier table.
func DefaultPolicies() map[Tier]Policy {
	return map[Tier]Policy{
		TierAPI:     {Name: TierAPI, Limit: 100, Window: time.Minute},
		TierStrict:  {Name: TierStrict, Limit: 10, Window: time.Minute},
		TierAuth:    {Name: TierAuth, Limit: 5, Window: 15 * time.Minute},
		TierContact: {Name: TierContact, Limit: 3, Window: time.Hour},
	}
}

// Decision is the outcome of a single Hit.
//
// Remaining is always within [0, Limit]. When Allowed is false, ResetAt is
// strictly after the time of the hit.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	ClientKey string
}

// RetryAfter returns the time left until ResetAt, measured from now.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Store records a hit for key under policy p and reports whether it fits.
// Implementations must make the check-and-increment atomic per key.
type Store interface {
	Hit(ctx context.Context, key string, p Policy) (Decision, error)
}

// Limiter binds a Store to a tier table.
type Limiter struct {
	store    Store
	policies map[Tier]Policy
}

// NewLimiter creates a Limiter. A nil policies map selects DefaultPolicies.
func NewLimiter(store Store, policies map[Tier]Policy) *Limiter {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &Limiter{store: store, policies: policies}
}

// Policy looks up the policy for tier.
func (l *Limiter) Policy(tier Tier) (Policy, error) {
	p, ok := l.policies[tier]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	return p, nil
}

// Allow records a hit for clientKey under tier.
func (l *Limiter) Allow(ctx context.Context, tier Tier, clientKey string) (Decision, error) {
	p, err := l.Policy(tier)
	if err != nil {
		return Decision{}, err
	}
	d, err := l.store.Hit(ctx, CounterKey(tier, clientKey), p)
	if err != nil {
		return Decision{}, err
	}
	d.ClientKey = clientKey
	return d, nil
}

// CounterKey is the storage key for a (tier, clientKey) counter.
func CounterKey(tier Tier, clientKey string) string {
	return "ratelimit:" + string(tier) + ":" + clientKey
}
