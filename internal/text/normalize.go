package text

import (
	"strings"

	"github.com/example/go-trait-tts/internal/fault"
)

// Normalize prepares raw input text for segmentation.
// It normalizes line endings to \n, trims surrounding whitespace,
// and rejects empty or whitespace-only input.
func Normalize(s string) (string, error) {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	s = strings.TrimSpace(s)

	if s == "" {
		return "", fault.Input("normalize", "text is empty")
	}

	return s, nil
}

// CollapseSpaces replaces every run of spaces with a single space.
func CollapseSpaces(s string) string {
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return s
}
