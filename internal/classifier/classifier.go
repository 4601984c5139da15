package classifier

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"lexchat/internal/llm"
)

// DefaultMaxChars caps how much content is sent upstream; a token budget
// for the generative call, not a correctness limit.
const DefaultMaxChars = 20000

const systemPrompt = "You are a legal document reviewer. Answer with a single word: yes or no."

const questionPrefix = "Is the following text a legal document (a contract, agreement, " +
	"statute, court filing, legal notice, or similar)?\n\n"

// negativePattern matches responses that lead with "no". Anything else,
// including ambiguous or empty text, keeps the document.
var negativePattern = regexp.MustCompile(`(?i)^["'*]*no\b`)

// Classifier asks an LLM whether document content is a legal document.
type Classifier struct {
	llm      llm.Client
	maxChars int
}

func New(client llm.Client, maxChars int) *Classifier {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Classifier{llm: client, maxChars: maxChars}
}

// IsLegal returns the verdict. On upstream failure the error is returned and
// the verdict is meaningless; the absence of a verdict must never be treated
// as a negative one.
func (c *Classifier) IsLegal(ctx context.Context, content string) (bool, error) {
	resp, err := c.llm.Complete(ctx, systemPrompt, questionPrefix+truncate(content, c.maxChars))
	if err != nil {
		return false, fmt.Errorf("classifier: %w", err)
	}
	return !negativePattern.MatchString(strings.TrimSpace(resp)), nil
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
