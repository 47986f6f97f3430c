package chat

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// Script and style bodies are payload, not text: drop the whole element.
	elementPattern = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(script|style)\s*>`)
	tagPattern     = regexp.MustCompile(`<[^>]*>`)
)

// Sanitize strips markup from untrusted widget input and enforces the
// length budget. The widget renders messages as text, stripping here keeps
// stored history clean for the admin view too.
func Sanitize(text string, maxLength int) (string, error) {
	cleaned := elementPattern.ReplaceAllString(text, "")
	cleaned = strings.TrimSpace(tagPattern.ReplaceAllString(cleaned, ""))
	if len(cleaned) == 0 || len(cleaned) > maxLength {
		return "", validationError(fmt.Sprintf("text length must be 1-%d", maxLength))
	}
	return cleaned, nil
}
