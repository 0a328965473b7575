// Package tokenizer estimates prompt sizes and trims conversation history to
// a token budget.
package tokenizer

import (
	"unicode/utf8"

	"github.com/sweetpotato0/agri-advisor/message"
)

// Counter counts tokens in text.
type Counter interface {
	CountTokens(text string) int
}

// CounterFunc adapts a function to Counter.
type CounterFunc func(string) int

func (f CounterFunc) CountTokens(text string) int { return f(text) }

// Approximate counts roughly four characters per token. It is the default
// when no model encoding is available.
type Approximate struct{}

func (Approximate) CountTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// perMessageOverhead covers role markers and separators.
const perMessageOverhead = 4

// MessageTokens counts one message including its overhead.
func MessageTokens(c Counter, m message.Message) int {
	return c.CountTokens(m.Content) + perMessageOverhead
}

// TrimHistory keeps the most recent messages whose combined size fits in
// budget, preserving order. A budget <= 0 keeps nothing.
func TrimHistory(history []message.Message, budget int, c Counter) []message.Message {
	if c == nil {
		c = Approximate{}
	}
	if budget <= 0 || len(history) == 0 {
		return nil
	}

	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		n := MessageTokens(c, history[i])
		if used+n > budget {
			break
		}
		used += n
		start = i
	}
	return message.Clone(history[start:])
}
