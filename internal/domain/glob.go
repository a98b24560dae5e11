package domain

import (
	"strings"
	"unicode/utf8"
)

// Matcher reports whether a service name matches a compiled pattern.
type Matcher func(name string) bool

type globToken struct {
	kind byte   // '*', '?' or 0 for a literal
	lit  string // one encoded character
}

// CompileGlob turns a wildcard pattern into a Matcher.
//
// '*' matches any run of characters (including none), '?' matches exactly
// one character and every other character matches itself. Matching is
// case-sensitive and never goes through a regular expression engine, so
// characters such as '.', '+' or '%' have no special meaning. Bytes that
// are not valid UTF-8 count as one character each and only match the same
// byte.
func CompileGlob(pattern string) Matcher {
	if !HasWildcard(pattern) {
		return func(name string) bool { return name == pattern }
	}

	chars := splitChars(pattern)
	tokens := make([]globToken, 0, len(chars))
	for _, c := range chars {
		switch c {
		case "*":
			// collapse "**" runs, they match the same set
			if n := len(tokens); n > 0 && tokens[n-1].kind == '*' {
				continue
			}
			tokens = append(tokens, globToken{kind: '*'})
		case "?":
			tokens = append(tokens, globToken{kind: '?'})
		default:
			tokens = append(tokens, globToken{lit: c})
		}
	}

	return func(name string) bool {
		return matchTokens(tokens, splitChars(name))
	}
}

// HasWildcard reports whether pattern contains '*' or '?'.
func HasWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, "*?")
}

// splitChars cuts s into its encoded characters. Unlike a []rune
// conversion it keeps invalid bytes as they are instead of turning them
// into U+FFFD.
func splitChars(s string) []string {
	out := make([]string, 0, len(s))
	for len(s) > 0 {
		_, w := utf8.DecodeRuneInString(s)
		out = append(out, s[:w])
		s = s[w:]
	}
	return out
}

// matchTokens is the classic iterative wildcard matcher: on mismatch it
// backtracks to the last star and lets it swallow one more character.
func matchTokens(tokens []globToken, name []string) bool {
	ti, ni := 0, 0
	star, mark := -1, 0

	for ni < len(name) {
		switch {
		case ti < len(tokens) && tokens[ti].kind == '*':
			star, mark = ti, ni
			ti++
		case ti < len(tokens) && (tokens[ti].kind == '?' || (tokens[ti].kind == 0 && tokens[ti].lit == name[ni])):
			ti++
			ni++
		case star >= 0:
			mark++
			ni = mark
			ti = star + 1
		default:
			return false
		}
	}

	for ti < len(tokens) && tokens[ti].kind == '*' {
		ti++
	}
	return ti == len(tokens)
}
