// Package tokenizer implements the deterministic, language-agnostic token
// pipeline shared by indexing and querying: lowercase, hyphen-preserving
// word extraction, stopword removal, Snowball English stemming.
package tokenizer

import (
	"regexp"

	"github.com/blevesearch/snowballstem"
	"github.com/blevesearch/snowballstem/english"
)

// tokenPattern matches maximal runs of lowercase alphanumerics with
// hyphenated compounds preserved, e.g. "state-of-the-art".
var tokenPattern = regexp.MustCompile(`[a-z0-9]+(-[a-z0-9]+)*`)

// stopWords is the fixed ~34-word English stopword set.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true,
	"has": true, "have": true, "he": true, "in": true, "is": true,
	"it": true, "its": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "to": true, "was": true, "were": true,
	"will": true, "with": true, "this": true, "these": true, "those": true,
	"i": true, "you": true, "we": true,
}

// Tokenize lowercases text, extracts candidate tokens, drops stopwords, and
// stems what remains. It has no hidden state: the same input always
// produces the same output, on both the indexing and query paths.
func Tokenize(text string) []string {
	lower := toLower(text)
	matches := tokenPattern.FindAllString(lower, -1)

	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		if stopWords[m] {
			continue
		}
		tokens = append(tokens, stem(m))
	}
	return tokens
}

// stem applies Snowball-family English stemming to a single lowercase word.
func stem(word string) string {
	env := snowballstem.NewEnv(word)
	english.Stem(env)
	return env.Current()
}

// toLower is a byte-level ASCII lowercase; non-ASCII runes pass through
// unchanged since the token pattern only matches [a-z0-9-] anyway.
func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
