package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	// MaxTokensPerChunk is the target maximum token count per chunk
	MaxTokensPerChunk = 1000

	// TokensPerChar is the heuristic for estimating tokens (chars/4)
	TokensPerChar = 4
)

// EstimateTokenCount estimates the number of tokens in a string
func EstimateTokenCount(text string) int {
	return utf8.RuneCountInString(text) / TokensPerChar
}

// Split divides text into pieces of at most maxTokens estimated tokens.
// It cuts at paragraph breaks first, then line breaks, then spaces, and only
// splits inside a word when a single word is too long. Text that already
// fits is returned as the only piece. maxTokens <= 0 uses MaxTokensPerChunk.
func Split(text string, maxTokens int) []string {
	if maxTokens <= 0 {
		maxTokens = MaxTokensPerChunk
	}
	maxRunes := maxTokens * TokensPerChar

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= maxRunes {
		return []string{text}
	}

	return splitAt(text, maxRunes, 0)
}

// separators are tried in order, coarsest first
var separators = []string{"\n\n", "\n", " "}

func splitAt(text string, maxRunes, level int) []string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return []string{text}
	}
	if level >= len(separators) {
		return hardSplit(text, maxRunes)
	}

	sep := separators[level]
	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		return splitAt(text, maxRunes, level+1)
	}

	var (
		pieces  []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			pieces = append(pieces, s)
		}
		current.Reset()
		size = 0
	}

	sepLen := utf8.RuneCountInString(sep)
	for _, part := range parts {
		partLen := utf8.RuneCountInString(part)

		// A part that cannot fit on its own is split at the next level
		if partLen > maxRunes {
			flush()
			pieces = append(pieces, splitAt(part, maxRunes, level+1)...)
			continue
		}

		if size > 0 && size+sepLen+partLen > maxRunes {
			flush()
		}
		if size > 0 {
			current.WriteString(sep)
			size += sepLen
		}
		current.WriteString(part)
		size += partLen
	}
	flush()

	return pieces
}

func hardSplit(text string, maxRunes int) []string {
	runes := []rune(text)
	pieces := make([]string, 0, len(runes)/maxRunes+1)
	for start := 0; start < len(runes); start += maxRunes {
		end := start + maxRunes
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}
