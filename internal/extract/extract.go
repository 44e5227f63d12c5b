// Package extract recovers structured JSON objects from free-form text
// returned by the generation backend. Backends routinely wrap JSON in
// markdown fences, prepend prose, or emit almost-JSON (smart quotes,
// trailing commas, bare keys); every stage handler funnels raw output
// through this one cascade instead of hand-rolling repair logic.
package extract

import (
	"encoding/json"
	"strings"
)

// Object tries each recovery strategy in order and returns the first
// well-formed JSON object found in raw. The second return is false when
// no strategy succeeds; Object never panics. Callers treat a miss as
// missing field data, not as an error.
func Object(raw string) (map[string]any, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}

	for _, candidate := range candidates(raw) {
		var out map[string]any
		if err := json.Unmarshal([]byte(candidate), &out); err == nil {
			return out, true
		}
	}

	// Repair pass, then retry every strategy on the repaired text.
	repaired := Repair(raw)
	if repaired != raw {
		for _, candidate := range candidates(repaired) {
			var out map[string]any
			if err := json.Unmarshal([]byte(candidate), &out); err == nil {
				return out, true
			}
		}
	}
	return nil, false
}

// Decode recovers an object from raw and re-marshals it into v. Returns
// false when nothing parseable was found or v cannot hold the result.
func Decode(raw string, v any) bool {
	obj, ok := Object(raw)
	if !ok {
		return false
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return false
	}
	return json.Unmarshal(b, v) == nil
}

// candidates yields the substrings worth parsing, most specific first:
// the full text, any fenced code block, then the first balanced
// brace-delimited span.
func candidates(text string) []string {
	out := []string{text}
	if fenced, ok := fencedBlock(text); ok {
		out = append(out, fenced)
	}
	if braced, ok := bracedSpan(text); ok {
		out = append(out, braced)
	}
	return out
}

// fencedBlock extracts the body of the first ``` fence, tolerating a
// language tag after the opening marker.
func fencedBlock(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	rest := text[start+3:]
	// Skip a language tag such as "json" up to the first newline.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		tag := strings.TrimSpace(rest[:nl])
		if len(tag) <= 10 && !strings.ContainsAny(tag, "{}") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:end]), true
}

// bracedSpan returns the first balanced {...} span, honoring string
// literals and escapes so braces inside values don't end the scan.
func bracedSpan(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// Repair normalizes the almost-JSON the backend tends to produce:
// smart quotes, raw newlines/tabs inside string literals, unquoted
// object keys, and trailing commas.
func Repair(text string) string {
	text = normalizeQuotes(text)
	text = escapeRawWhitespace(text)
	text = quoteBareKeys(text)
	text = stripTrailingCommas(text)
	return text
}

var quoteReplacer = strings.NewReplacer(
	"“", `"`, // left double
	"”", `"`, // right double
	"‘", "'", // left single
	"’", "'", // right single
)

func normalizeQuotes(text string) string {
	return quoteReplacer.Replace(text)
}

// escapeRawWhitespace escapes literal newlines and tabs that appear
// inside string literals, where JSON requires \n and \t.
func escapeRawWhitespace(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if escaped {
			b.WriteByte(c)
			escaped = false
			continue
		}
		switch c {
		case '\\':
			b.WriteByte(c)
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
			b.WriteByte(c)
		case '\n':
			if inString {
				b.WriteString(`\n`)
			} else {
				b.WriteByte(c)
			}
		case '\r':
			if inString {
				b.WriteString(`\r`)
			} else {
				b.WriteByte(c)
			}
		case '\t':
			if inString {
				b.WriteString(`\t`)
			} else {
				b.WriteByte(c)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// quoteBareKeys wraps unquoted object keys ({key: ...} or , key: ...)
// in double quotes. Only touches text outside string literals.
func quoteBareKeys(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 16)
	inString := false
	escaped := false
	i := 0
	for i < len(text) {
		c := text[i]
		if escaped {
			b.WriteByte(c)
			escaped = false
			i++
			continue
		}
		if inString {
			if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			b.WriteByte(c)
			i++
			continue
		}
		switch c {
		case '"':
			inString = true
			b.WriteByte(c)
			i++
		case '{', ',':
			b.WriteByte(c)
			i++
			// Copy whitespace, then check for a bare identifier key.
			j := i
			for j < len(text) && (text[j] == ' ' || text[j] == '\n' || text[j] == '\t' || text[j] == '\r') {
				j++
			}
			b.WriteString(text[i:j])
			i = j
			k := j
			for k < len(text) && isIdentChar(text[k]) {
				k++
			}
			if k > j {
				// Followed (after spaces) by a colon means it was a key.
				m := k
				for m < len(text) && (text[m] == ' ' || text[m] == '\t') {
					m++
				}
				if m < len(text) && text[m] == ':' {
					b.WriteByte('"')
					b.WriteString(text[j:k])
					b.WriteByte('"')
					i = k
				}
			}
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

func isIdentChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// stripTrailingCommas removes commas that directly precede a closing
// brace or bracket.
func stripTrailingCommas(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if escaped {
			b.WriteByte(c)
			escaped = false
			continue
		}
		if inString {
			if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(text) && (text[j] == ' ' || text[j] == '\n' || text[j] == '\t' || text[j] == '\r') {
				j++
			}
			if j < len(text) && (text[j] == '}' || text[j] == ']') {
				continue // drop the comma
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
