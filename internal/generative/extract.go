package generative

import (
	"fmt"
	"strings"

	"github.com/kjstillabower/atmo/internal/models"
)

// ExtractJSON returns the first balanced {...} object in text, skipping braces
// inside string literals. Models often wrap JSON in prose or code fences.
func ExtractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", fmt.Errorf("%w: no JSON object in model response", models.ErrUpstreamMalformed)
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("%w: unterminated JSON object in model response", models.ErrUpstreamMalformed)
}
