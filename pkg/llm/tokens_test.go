package llm

import (
	"strings"
	"testing"
)

func TestCountTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		min  int
		max  int
	}{
		{name: "short text", text: "Hello", min: 1, max: 2},
		{name: "sentence", text: "This is a test of token counting functionality", min: 8, max: 15},
		{name: "empty string", text: "", min: 0, max: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count := CountTokens(tt.text)

			// Allow variance: the encoder may be unavailable and the
			// character-based estimate kicks in.
			if count < tt.min || count > tt.max {
				t.Errorf("CountTokens(%q) = %d, want between %d and %d",
					tt.text, count, tt.min, tt.max)
			}
		})
	}
}

func TestTruncateToTokensKeepsShortText(t *testing.T) {
	text := "line one\nline two"
	if got := TruncateToTokens(text, 1000); got != text {
		t.Errorf("short text changed: %q", got)
	}
}

func TestTruncateToTokensRespectsBudget(t *testing.T) {
	lines := make([]string, 200)
	for i := range lines {
		lines[i] = "the quick brown fox jumps over the lazy dog"
	}
	text := strings.Join(lines, "\n")

	got := TruncateToTokens(text, 50)
	if got == text {
		t.Fatal("oversized text was not truncated")
	}
	if CountTokens(got) > 50 {
		t.Errorf("truncated text still counts %d tokens", CountTokens(got))
	}
	if !strings.HasPrefix(got, "the quick brown fox") {
		t.Errorf("truncation should keep leading lines, got %q", got[:40])
	}
}

func TestTruncateToTokensSingleLongLine(t *testing.T) {
	text := strings.Repeat("x", 4000)

	got := TruncateToTokens(text, 100)
	if len(got) >= len(text) {
		t.Fatal("single long line was not cut")
	}
}
