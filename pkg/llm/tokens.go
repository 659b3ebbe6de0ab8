package llm

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	tokenEncoder *tiktoken.Tiktoken
	encoderOnce  sync.Once
	encoderErr   error
)

// initTokenEncoder initializes the tiktoken encoder lazily.
func initTokenEncoder() error {
	encoderOnce.Do(func() {
		// cl100k_base covers the GPT-4 / GPT-3.5-turbo family.
		tokenEncoder, encoderErr = tiktoken.GetEncoding("cl100k_base")
	})
	return encoderErr
}

// CountTokens counts the tokens in text, falling back to a character-based
// estimate when the encoder is unavailable.
func CountTokens(text string) int {
	if err := initTokenEncoder(); err != nil {
		return estimateTokens(text)
	}
	return len(tokenEncoder.Encode(text, nil, nil))
}

// TruncateToTokens trims text to at most maxTokens, cutting at a line
// boundary where possible so JSON context snapshots stay readable.
func TruncateToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 || CountTokens(text) <= maxTokens {
		return text
	}

	lines := strings.Split(text, "\n")
	var b strings.Builder
	used := 0
	for _, line := range lines {
		cost := CountTokens(line) + 1
		if used+cost > maxTokens {
			break
		}
		b.WriteString(line)
		b.WriteString("\n")
		used += cost
	}
	if b.Len() > 0 {
		return strings.TrimSuffix(b.String(), "\n")
	}

	// A single oversized line: fall back to a character cut.
	limit := maxTokens * 4
	if limit < len(text) {
		return text[:limit]
	}
	return text
}

// estimateTokens provides a rough token estimate, ~4 characters per token.
func estimateTokens(text string) int {
	return len(text) / 4
}
