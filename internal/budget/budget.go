// Package budget provides token budget estimation for answer prompts. Because
// the answerer supports multiple LLM backends with different tokenizers, this
// package uses a character-based heuristic: 1 token ≈ 4 characters.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// messageOverhead is the per-message framing cost most chat APIs add.
	messageOverhead = 4
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// FitContexts returns how many of the leading contexts can be kept so that a
// single user message built by build(contexts[:n]) fits within maxTokens.
// contexts are ordered best first, so trimming drops the lowest ranked.
// maxTokens <= 0 disables the budget. At least one context is always kept
// when any are given; the caller decides whether an oversized prompt is fatal.
func FitContexts(contexts []string, maxTokens int, build func([]string) string) int {
	n := len(contexts)
	if maxTokens <= 0 {
		return n
	}
	for n > 1 {
		msg := schema.UserMessage(build(contexts[:n]))
		if EstimateMessages([]*schema.Message{msg}) <= maxTokens {
			break
		}
		n--
	}
	return n
}
