// Package sqltoken provides a small tokenizer for rendered filter text.
// Structural pattern detection works on tokens, never on raw substrings, so
// whitespace and quoting variance cannot cause false matches.
package sqltoken

import "strings"

// Kind classifies a token.
type Kind int

const (
	// Ident is a bare, double-quoted, or $-prefixed identifier.
	Ident Kind = iota
	// Number is an integer or decimal literal, with optional leading sign
	// consumed as a separate Symbol token.
	Number
	// String is a single-quoted literal with '' escapes, quotes stripped.
	String
	// Symbol is punctuation or an operator (multi-character operators such
	// as <=, >=, <> and != are single tokens).
	Symbol
)

// Token is one lexical unit of rendered filter text.
type Token struct {
	Kind Kind
	// Text is the token content. Identifier quotes are stripped so that
	// "fid" and fid compare equal; string literal quotes are stripped too.
	Text string
	// Quoted reports whether an identifier was double-quoted.
	Quoted bool
}

// EqualFold reports whether the token is an identifier matching s
// case-insensitively.
func (t Token) EqualFold(s string) bool {
	return t.Kind == Ident && strings.EqualFold(t.Text, s)
}

// Scan tokenizes s. Unknown bytes become single-character Symbol tokens;
// scanning never fails.
func Scan(s string) []Token {
	var tokens []Token
	i := 0
	n := len(s)

	for i < n {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '"':
			text, next := scanQuoted(s, i, '"')
			tokens = append(tokens, Token{Kind: Ident, Text: text, Quoted: true})
			i = next

		case c == '\'':
			text, next := scanQuoted(s, i, '\'')
			tokens = append(tokens, Token{Kind: String, Text: text})
			i = next

		case isIdentStart(c):
			start := i
			i++
			for i < n && isIdentPart(s[i]) {
				i++
			}
			tokens = append(tokens, Token{Kind: Ident, Text: s[start:i]})

		case c >= '0' && c <= '9':
			start := i
			i++
			for i < n && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
				i++
			}
			tokens = append(tokens, Token{Kind: Number, Text: s[start:i]})

		default:
			if i+1 < n {
				two := s[i : i+2]
				switch two {
				case "<=", ">=", "<>", "!=":
					tokens = append(tokens, Token{Kind: Symbol, Text: two})
					i += 2
					continue
				}
			}
			tokens = append(tokens, Token{Kind: Symbol, Text: string(c)})
			i++
		}
	}

	return tokens
}

// scanQuoted consumes a quoted run starting at i; doubled quote characters
// inside are unescaped. Returns the content and the index past the close.
func scanQuoted(s string, i int, quote byte) (string, int) {
	var b strings.Builder
	i++ // opening quote
	n := len(s)
	for i < n {
		if s[i] == quote {
			if i+1 < n && s[i+1] == quote {
				b.WriteByte(quote)
				i += 2
				continue
			}
			i++
			break
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String(), i
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' ||
		c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}
