// Package tokens provides token counting for conversation context compression.
package tokens

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
)

// Counter counts the tokens of a list of conversation turns.
type Counter interface {
	CountTokens(ctx context.Context, model string, msgs []domain.ChatMessage) (int, error)
	SupportsModel(model string) bool
}

// Registry picks a counter by model and falls back to an estimator.
// It supports:
// 1. Registered Counter implementations (like tiktoken for OpenAI models)
// 2. A fallback estimator for unknown models
type Registry struct {
	counters []Counter
	fallback Counter
}

// NewRegistry creates a new token counter registry.
func NewRegistry() *Registry {
	return &Registry{
		fallback: NewEstimator(), // Default fallback estimator
	}
}

// NewDefaultRegistry returns a registry with the tiktoken counter registered.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewTiktokenCounter())
	return r
}

// Register adds a token counter to the registry.
func (r *Registry) Register(counter Counter) {
	r.counters = append(r.counters, counter)
}

// SetFallback sets the fallback counter for unsupported models.
func (r *Registry) SetFallback(counter Counter) {
	r.fallback = counter
}

// CountTokens counts tokens using the first counter that supports the model.
// A failing counter falls through to the fallback.
func (r *Registry) CountTokens(ctx context.Context, model string, msgs []domain.ChatMessage) (int, error) {
	for _, counter := range r.counters {
		if !counter.SupportsModel(model) {
			continue
		}
		n, err := counter.CountTokens(ctx, model, msgs)
		if err == nil {
			return n, nil
		}
		break
	}

	if r.fallback != nil {
		return r.fallback.CountTokens(ctx, model, msgs)
	}

	return 0, fmt.Errorf("no token counter available for model: %s", model)
}

// SupportsModel is true when any counter or the fallback handles the model.
func (r *Registry) SupportsModel(model string) bool {
	if r.fallback != nil {
		return true
	}
	for _, counter := range r.counters {
		if counter.SupportsModel(model) {
			return true
		}
	}
	return false
}

// Estimator approximates token counts without a tokenizer: each CJK character
// weighs CJKWeight tokens and every whitespace-separated word outside CJK
// runs counts as one.
type Estimator struct {
	CJKWeight float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{
		CJKWeight: 1.5,
	}
}

// CountTokens estimates the token count.
func (e *Estimator) CountTokens(ctx context.Context, model string, msgs []domain.ChatMessage) (int, error) {
	total := 0
	for _, msg := range msgs {
		total += e.Estimate(msg.Content)
	}
	return total, nil
}

// Estimate returns the estimated tokens of a single text.
func (e *Estimator) Estimate(text string) int {
	cjk := 0
	var rest strings.Builder
	for _, r := range text {
		if isCJK(r) {
			cjk++
			rest.WriteRune(' ')
			continue
		}
		rest.WriteRune(r)
	}
	words := len(strings.Fields(rest.String()))
	return int(float64(cjk)*e.CJKWeight) + words
}

// SupportsModel returns true - estimator supports all models as a fallback.
func (e *Estimator) SupportsModel(model string) bool {
	return true
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r)
}

// ModelMatcher helps match model names to provider patterns.
type ModelMatcher struct {
	prefixes []string
	exact    []string
}

// NewModelMatcher creates a new model matcher.
func NewModelMatcher(prefixes, exact []string) *ModelMatcher {
	return &ModelMatcher{
		prefixes: prefixes,
		exact:    exact,
	}
}

// Matches returns true if the model matches any pattern.
func (m *ModelMatcher) Matches(model string) bool {
	// Check exact matches first
	for _, e := range m.exact {
		if model == e {
			return true
		}
	}

	// Check prefix matches
	for _, p := range m.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}

	return false
}
