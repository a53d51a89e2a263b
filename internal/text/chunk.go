package text

import (
	"strings"
	"unicode/utf8"
)

// ChunkBySentence groups sentences (split after '.', '!' and '?') into
// chunks of at most maxChars runes. A sentence longer than maxChars becomes
// its own chunk. maxChars <= 0 disables splitting. Text inside ARPAbet curly
// braces is never split.
func ChunkBySentence(s string, maxChars int) []string {
	if maxChars <= 0 {
		return []string{s}
	}

	sentences := splitSentences(s)
	if len(sentences) <= 1 {
		return []string{s}
	}

	var chunks []string
	var current strings.Builder

	for _, sent := range sentences {
		if current.Len() > 0 && utf8.RuneCountInString(current.String())+1+utf8.RuneCountInString(sent) > maxChars {
			chunks = append(chunks, current.String())
			current.Reset()
		}

		if current.Len() > 0 {
			current.WriteByte(' ')
		}

		current.WriteString(sent)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

func splitSentences(s string) []string {
	var out []string

	start, depth := 0, 0

	for i, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			depth = max(depth-1, 0)
		case '.', '!', '?':
			if depth > 0 {
				continue
			}

			if sent := strings.TrimSpace(s[start : i+1]); sent != "" {
				out = append(out, sent)
			}

			start = i + 1
		}
	}

	if sent := strings.TrimSpace(s[start:]); sent != "" {
		out = append(out, sent)
	}

	return out
}
