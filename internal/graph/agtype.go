package graph

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// parseAgtype decodes the text form of an agtype value.
// Type annotations such as ::vertex, ::edge, ::path and ::numeric are dropped.
func parseAgtype(raw string) (any, error) {
	cleaned := stripAnnotations(strings.TrimSpace(raw))
	if cleaned == "" {
		return nil, nil
	}

	var value any
	if err := json.Unmarshal([]byte(cleaned), &value); err != nil {
		return nil, fmt.Errorf("decode agtype %q: %w", raw, err)
	}

	return value, nil
}

func stripAnnotations(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	inString := false
	escaped := false
	runes := []rune(raw)

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if inString {
			b.WriteRune(r)
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		if r == '"' {
			inString = true
			b.WriteRune(r)
			continue
		}

		if r == ':' && i+1 < len(runes) && runes[i+1] == ':' {
			j := i + 2
			for j < len(runes) && unicode.IsLetter(runes[j]) {
				j++
			}
			if j > i+2 {
				i = j - 1
				continue
			}
		}

		b.WriteRune(r)
	}

	return b.String()
}
