// Package basic provides a quality policy with no rate limiting.
package basic

import (
	"context"
	"sync"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
)

// Totals is the accumulated provider usage of one session.
type Totals struct {
	Replies          int
	PromptTokens     int
	CompletionTokens int
}

// Policy implements ports.QualityPolicy with no restrictions. It keeps
// per-session usage totals for the status commands.
type Policy struct {
	mu     sync.Mutex
	totals map[string]Totals
}

// NewPolicy creates a new basic policy.
func NewPolicy() *Policy {
	return &Policy{totals: make(map[string]Totals)}
}

// CheckRequest always allows requests.
func (p *Policy) CheckRequest(ctx context.Context, req *ports.PolicyRequest) (*ports.PolicyDecision, error) {
	return &ports.PolicyDecision{
		Allow:  true,
		Reason: "basic policy allows all messages",
	}, nil
}

// RecordUsage adds usage to the session's totals.
func (p *Policy) RecordUsage(ctx context.Context, usage *ports.UsageRecord) error {
	if usage == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	t := p.totals[usage.SessionID]
	t.Replies++
	t.PromptTokens += usage.PromptTokens
	t.CompletionTokens += usage.CompletionTokens
	p.totals[usage.SessionID] = t
	return nil
}

// Usage returns the totals recorded for a session.
func (p *Policy) Usage(sessionID string) Totals {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totals[sessionID]
}

var _ ports.QualityPolicy = (*Policy)(nil)
