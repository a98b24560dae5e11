package domain

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCompileGlob(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		input   string
		want    bool
	}{
		{name: "exact", pattern: "billing", input: "billing", want: true},
		{name: "exact mismatch", pattern: "billing", input: "billing2", want: false},
		{name: "case sensitive", pattern: "Billing", input: "billing", want: false},
		{name: "star matches all", pattern: "*", input: "anything.at.all", want: true},
		{name: "star matches empty", pattern: "*", input: "", want: true},
		{name: "prefix", pattern: "billing.*", input: "billing.api", want: true},
		{name: "prefix needs dot", pattern: "billing.*", input: "billingapi", want: false},
		{name: "suffix", pattern: "*.api", input: "users.api", want: true},
		{name: "infix", pattern: "a*b*c", input: "aXXbYYc", want: true},
		{name: "infix wrong order", pattern: "a*b*c", input: "acb", want: false},
		{name: "question one char", pattern: "a?c", input: "abc", want: true},
		{name: "question not zero", pattern: "a?c", input: "ac", want: false},
		{name: "question not two", pattern: "a?c", input: "abbc", want: false},
		{name: "question is a rune", pattern: "caf?", input: "café", want: true},
		{name: "dot is literal", pattern: "a.c", input: "abc", want: false},
		{name: "plus is literal", pattern: "a+", input: "aaa", want: false},
		{name: "percent is literal", pattern: "%", input: "anything", want: false},
		{name: "underscore is literal", pattern: "a_c", input: "abc", want: false},
		{name: "brackets are literal", pattern: "[ab]", input: "a", want: false},
		{name: "empty matches empty", pattern: "", input: "", want: true},
		{name: "empty rejects name", pattern: "", input: "x", want: false},
		{name: "double star", pattern: "a**", input: "abc", want: true},
		{name: "backtracking", pattern: "*a*a*b", input: "aaaaaaaaaaaaaaaaaaaaaaaaac", want: false},
		{name: "star then question", pattern: "*?", input: "", want: false},
		{name: "invalid byte is not U+FFFD", pattern: "\xff*", input: "\uFFFDx", want: false},
		{name: "invalid byte matches itself", pattern: "\xff*", input: "\xffx", want: true},
		{name: "question takes one invalid byte", pattern: "a?", input: "a\xff", want: true},
		{name: "question takes one byte of broken sequence", pattern: "a?", input: "a\xe2\x82", want: false},
		{name: "U+FFFD does not match invalid byte", pattern: "\uFFFD?", input: "\xffx", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompileGlob(tt.pattern)(tt.input)
			if got != tt.want {
				t.Errorf("CompileGlob(%q)(%q) = %v, want %v", tt.pattern, tt.input, got, tt.want)
			}
		})
	}
}

func TestCompileGlob_LiteralPatternsMatchOnlyThemselves(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pattern := rapid.StringMatching(`[a-z.+%_\[\]]{0,12}`).Draw(t, "pattern")
		name := rapid.StringMatching(`[a-z.+%_\[\]]{0,12}`).Draw(t, "name")

		require.Equal(t, pattern == name, CompileGlob(pattern)(name))
		require.True(t, CompileGlob(pattern)(pattern))
	})
}

func TestCompileGlob_StarMatchesEverything(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.String().Draw(t, "name")
		require.True(t, CompileGlob("*")(name))
	})
}

func TestCompileGlob_QuestionMarksMatchLength(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(t, "n")
		name := rapid.StringMatching(`[a-z]{0,10}`).Draw(t, "name")

		pattern := strings.Repeat("?", n)
		require.Equal(t, len([]rune(name)) == n, CompileGlob(pattern)(name))
	})
}

func TestCompileGlob_PrefixStar(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		prefix := rapid.StringMatching(`[a-z.]{0,6}`).Draw(t, "prefix")
		rest := rapid.StringMatching(`[a-z.]{0,6}`).Draw(t, "rest")

		require.True(t, CompileGlob(prefix + "*")(prefix+rest))
	})
}

func TestCompileGlob_InvalidUTF8IsNotReplaced(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := string(rapid.SliceOfN(rapid.Byte(), 1, 8).Draw(t, "name"))
		if HasWildcard(name) || utf8.ValidString(name) {
			t.Skip("want a literal name with invalid UTF-8")
		}

		m := CompileGlob(name + "*")
		require.True(t, m(name))
		require.False(t, m(strings.ToValidUTF8(name, "\uFFFD")))
	})
}

func TestHasWildcard(t *testing.T) {
	require.True(t, HasWildcard("a*"))
	require.True(t, HasWildcard("a?"))
	require.False(t, HasWildcard("a.b"))
	require.False(t, HasWildcard(""))
}
