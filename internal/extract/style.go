package extract

import "strings"

// Inline style attributes can smuggle remote media through url() tokens, so
// the rewrite pass needs a tokenizer that can find and replace those values
// while leaving every other byte of the declaration alone.

type styleTokenKind int

const (
	styleOther styleTokenKind = iota
	styleString
	styleURL
)

type styleToken struct {
	kind  styleTokenKind
	value string
}

// parseInlineStyle splits a style attribute into url tokens, string tokens
// and verbatim runs. It follows the CSS syntax rules for <url-token> and
// <string-token> closely enough to round-trip real declarations; anything it
// does not understand passes through untouched.
func parseInlineStyle(style string) []styleToken {
	var tokens []styleToken
	var other strings.Builder
	flushOther := func() {
		if other.Len() > 0 {
			tokens = append(tokens, styleToken{styleOther, other.String()})
			other.Reset()
		}
	}

	i := 0
	for i < len(style) {
		c := style[i]
		switch {
		case c == '\'' || c == '"':
			flushOther()
			value, next := scanString(style, i)
			tokens = append(tokens, styleToken{styleString, value})
			i = next
		case hasURLPrefix(style[i:]) && (i == 0 || !isIdentByte(style[i-1])):
			flushOther()
			value, next := scanURL(style, i+len("url("))
			tokens = append(tokens, styleToken{styleURL, value})
			i = next
		default:
			other.WriteByte(c)
			i++
		}
	}
	flushOther()
	return tokens
}

// serializeInlineStyle writes tokens back out, quoting url and string values
// so the result survives reparsing.
func serializeInlineStyle(tokens []styleToken) string {
	var b strings.Builder
	for _, t := range tokens {
		switch t.kind {
		case styleURL:
			b.WriteString("url(")
			b.WriteString(quoteStyleString(t.value))
			b.WriteByte(')')
		case styleString:
			b.WriteString(quoteStyleString(t.value))
		default:
			b.WriteString(t.value)
		}
	}
	return b.String()
}

func isIdentByte(c byte) bool {
	return c == '-' || c == '_' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func hasURLPrefix(s string) bool {
	return len(s) >= 4 && (s[0] == 'u' || s[0] == 'U') &&
		(s[1] == 'r' || s[1] == 'R') && (s[2] == 'l' || s[2] == 'L') && s[3] == '('
}

// scanString consumes a quoted string starting at the opening quote and
// returns the unescaped value plus the index after the closing quote.
func scanString(s string, start int) (string, int) {
	quote := s[start]
	var b strings.Builder
	i := start + 1
	for i < len(s) {
		c := s[i]
		switch c {
		case quote:
			return b.String(), i + 1
		case '\\':
			value, next := unescape(s, i)
			b.WriteString(value)
			i = next
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), i
}

// scanURL consumes the inside of url(...), quoted or bare, and returns the
// value plus the index after the closing parenthesis.
func scanURL(s string, start int) (string, int) {
	i := start
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n') {
		i++
	}
	if i < len(s) && (s[i] == '\'' || s[i] == '"') {
		value, next := scanString(s, i)
		for next < len(s) && s[next] != ')' {
			next++
		}
		if next < len(s) {
			next++
		}
		return value, next
	}
	var b strings.Builder
	for i < len(s) {
		switch s[i] {
		case ')':
			return strings.TrimSpace(b.String()), i + 1
		case '\\':
			value, next := unescape(s, i)
			b.WriteString(value)
			i = next
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return strings.TrimSpace(b.String()), i
}

// unescape handles a backslash escape at s[i] and returns the replacement
// text plus the index after the escape. Hex escapes cover only the newline
// case emitted by quoteStyleString.
func unescape(s string, i int) (string, int) {
	if i+1 >= len(s) {
		return "", i + 1
	}
	c := s[i+1]
	if c == 'A' || c == 'a' {
		end := i + 2
		if end < len(s) && s[end] == ' ' {
			end++
		}
		return "\n", end
	}
	return string(c), i + 2
}

func quoteStyleString(value string) string {
	escaped := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		"\n", `\A `,
	).Replace(value)
	return "'" + escaped + "'"
}
