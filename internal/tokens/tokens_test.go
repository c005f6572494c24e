package tokens

import (
	"context"
	"errors"
	"testing"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
)

func TestEstimator_Estimate(t *testing.T) {
	e := NewEstimator()

	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"english words", "hello there world", 3},
		{"cjk only", "你好世界", 6},
		{"mixed", "hi 你好", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Estimate(tt.text); got != tt.want {
				t.Errorf("Estimate(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestTiktokenCounter_SupportsModel(t *testing.T) {
	c := NewTiktokenCounter()

	tests := []struct {
		model string
		want  bool
	}{
		{"gpt-4o-mini", true},
		{"GPT-4", true},
		{"o3-mini", true},
		{"claude-3-5-sonnet", false},
		{"qwen2", false},
	}

	for _, tt := range tests {
		if got := c.SupportsModel(tt.model); got != tt.want {
			t.Errorf("SupportsModel(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestTiktokenCounter_CountTokens(t *testing.T) {
	c := NewTiktokenCounter()
	msgs := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "Hello, how are you?"},
		{Role: domain.RoleAssistant, Content: "Fine, thanks."},
	}

	n, err := c.CountTokens(context.Background(), "gpt-4o", msgs)
	if err != nil {
		t.Fatalf("CountTokens() error = %v", err)
	}
	// framing alone is 2*4+3
	if n <= 11 || n > 40 {
		t.Errorf("CountTokens() = %d, outside expected range", n)
	}
}

type failingCounter struct{}

func (failingCounter) CountTokens(context.Context, string, []domain.ChatMessage) (int, error) {
	return 0, errors.New("boom")
}

func (failingCounter) SupportsModel(string) bool { return true }

func TestRegistry_FallsBackToEstimator(t *testing.T) {
	r := NewRegistry()
	r.Register(failingCounter{})

	msgs := []domain.ChatMessage{{Role: domain.RoleUser, Content: "one two three"}}
	n, err := r.CountTokens(context.Background(), "any", msgs)
	if err != nil {
		t.Fatalf("CountTokens() error = %v", err)
	}
	if n != 3 {
		t.Errorf("CountTokens() = %d, want estimator result 3", n)
	}
}

func TestModelMatcher(t *testing.T) {
	m := NewModelMatcher([]string{"gpt-"}, []string{"davinci"})
	if !m.Matches("gpt-4") || !m.Matches("davinci") {
		t.Error("expected prefix and exact matches")
	}
	if m.Matches("claude") {
		t.Error("did not expect claude to match")
	}
}
