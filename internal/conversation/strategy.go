package conversation

import (
	"fmt"
	"strings"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
)

// Strategy selects how an over-long context is compressed.
type Strategy string

const (
	StrategyNone        Strategy = "none"
	StrategyFIFO        Strategy = "fifo"
	StrategyLRU         Strategy = "lru"
	StrategySummary     Strategy = "summary"
	StrategyChatSummary Strategy = "chat_summary"
)

// summaryKeep is how many recent turns survive summary compression verbatim.
const summaryKeep = 5

// ParseStrategy maps a config value to a Strategy; unknown values are fifo.
func ParseStrategy(s string) Strategy {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyNone:
		return StrategyNone
	case StrategyLRU:
		return StrategyLRU
	case StrategySummary:
		return StrategySummary
	case StrategyChatSummary:
		return StrategyChatSummary
	default:
		return StrategyFIFO
	}
}

// compress applies the message-count policy of the strategy.
func compress(strategy Strategy, msgs []domain.ChatMessage, maxMessages int) []domain.ChatMessage {
	if strategy == StrategyNone || maxMessages <= 0 || len(msgs) <= maxMessages {
		return msgs
	}

	switch strategy {
	case StrategySummary, StrategyChatSummary:
		return summarize(strategy, msgs)
	default:
		// fifo and lru both evict the oldest turns; history has no access
		// times beyond insertion order.
		return dropOldest(msgs, len(msgs)-maxMessages)
	}
}

// dropOldest removes n of the oldest non-system turns.
func dropOldest(msgs []domain.ChatMessage, n int) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if n > 0 && m.Role != domain.RoleSystem {
			n--
			continue
		}
		out = append(out, m)
	}
	return out
}

func summarize(strategy Strategy, msgs []domain.ChatMessage) []domain.ChatMessage {
	if len(msgs) <= summaryKeep {
		return msgs
	}
	old := msgs[:len(msgs)-summaryKeep]
	recent := msgs[len(msgs)-summaryKeep:]

	var summary string
	if strategy == StrategySummary {
		summary = summaryText(old)
	} else {
		summary = chatSummaryText(old)
	}

	if summary == "" {
		return msgs
	}

	out := make([]domain.ChatMessage, 0, summaryKeep+2)
	for _, m := range old {
		if m.Role == domain.RoleSystem {
			out = append(out, m)
		}
	}
	out = append(out, domain.ChatMessage{Role: domain.RoleSystem, Content: summary})
	return append(out, recent...)
}

func summaryText(old []domain.ChatMessage) string {
	var parts []string
	for _, m := range old {
		if m.Role == domain.RoleSystem {
			continue
		}
		parts = append(parts, fmt.Sprintf("[%s]: %s", m.Role, snippet(m.Content, 50, "...")))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Summary of the earlier conversation:\n" + strings.Join(parts, "\n")
}

func chatSummaryText(old []domain.ChatMessage) string {
	var users, assistants []string
	for _, m := range old {
		switch m.Role {
		case domain.RoleUser:
			users = append(users, fmt.Sprintf("User %d: %s", len(users)+1, snippet(m.Content, 100, "")))
		case domain.RoleAssistant:
			assistants = append(assistants, fmt.Sprintf("Assistant %d: %s", len(assistants)+1, snippet(m.Content, 100, "")))
		}
	}
	if len(users) == 0 {
		return ""
	}
	return "Conversation summary:\n" + strings.Join(append(users, assistants...), "\n")
}

// snippet cuts s to n runes, appending ellipsis when it was cut.
func snippet(s string, n int, ellipsis string) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + ellipsis
}
