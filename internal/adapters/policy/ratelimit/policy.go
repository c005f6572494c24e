// Package ratelimit provides a token-bucket quality policy keyed by session.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/adapters/policy/basic"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
)

type bucket struct {
	limiter  *rate.Limiter
	max      int
	window   time.Duration
	lastSeen time.Time
}

// Policy limits each session to MaxMessages per Window. The bucket starts
// full and refills at MaxMessages/Window.
type Policy struct {
	*basic.Policy

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// Option configures a Policy.
type Option func(*Policy)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) { p.now = now }
}

// NewPolicy creates an empty rate-limit policy.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{
		Policy:  basic.NewPolicy(),
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckRequest takes one token from the session's bucket.
func (p *Policy) CheckRequest(ctx context.Context, req *ports.PolicyRequest) (*ports.PolicyDecision, error) {
	if req == nil || req.MaxMessages <= 0 || req.Window <= 0 {
		return &ports.PolicyDecision{Allow: true}, nil
	}

	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.buckets[req.SessionID]
	if !ok || b.max != req.MaxMessages || b.window != req.Window {
		every := req.Window / time.Duration(req.MaxMessages)
		b = &bucket{
			limiter: rate.NewLimiter(rate.Every(every), req.MaxMessages),
			max:     req.MaxMessages,
			window:  req.Window,
		}
		p.buckets[req.SessionID] = b
	}
	b.lastSeen = now

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return &ports.PolicyDecision{Reason: "rate limited"}, nil
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return &ports.PolicyDecision{
			Reason:     fmt.Sprintf("more than %d messages in %s", req.MaxMessages, req.Window),
			RetryAfter: delay,
		}, nil
	}
	return &ports.PolicyDecision{Allow: true}, nil
}

// Prune drops buckets not used for idle and returns how many were removed.
func (p *Policy) Prune(idle time.Duration) int {
	cutoff := p.now().Add(-idle)

	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for key, b := range p.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(p.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked sessions.
func (p *Policy) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets)
}

var _ ports.QualityPolicy = (*Policy)(nil)
