package chat

import (
	"strings"
	"unicode"
)

const titleLimit = 30

// deriveTitle labels a conversation from its first user message: the first
// line, cut at the first sentence end when too long, then truncated.
func deriveTitle(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	if len([]rune(text)) > titleLimit {
		text = firstSentence(text)
	}
	text = trimTitle(text)
	if text == "" {
		return defaultTitle
	}
	return text
}

func firstSentence(text string) string {
	runes := []rune(text)
	for i, r := range runes {
		if r != '.' && r != '?' && r != '!' {
			continue
		}
		if i == len(runes)-1 || unicode.IsSpace(runes[i+1]) {
			return string(runes[:i+1])
		}
	}
	return text
}

func trimTitle(title string) string {
	title = strings.TrimSpace(title)
	runes := []rune(title)
	if len(runes) <= titleLimit {
		return title
	}
	return strings.TrimSpace(string(runes[:titleLimit-3])) + "..."
}
