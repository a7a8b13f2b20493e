package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// IsOnlyNumbers reports whether s is a non-empty run of digits.
func IsOnlyNumbers(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// IsRepetitive reports whether s is one rune repeated three or more times,
// as in "aaa" or "www".
func IsRepetitive(s string) bool {
	if utf8.RuneCountInString(s) <= 2 {
		return false
	}
	first, _ := utf8.DecodeRuneInString(s)
	for _, r := range s {
		if r != first {
			return false
		}
	}
	return true
}

// IsValidPrefix reports whether a prefix is worth completing.
func IsValidPrefix(s string) bool {
	return s != "" && !IsOnlyNumbers(s) && !IsRepetitive(s)
}

// SuggestionFilter drops case-insensitive duplicates and the typed input
// itself from a stream of suggestions. It is not safe for concurrent use.
type SuggestionFilter struct {
	seen map[string]struct{}
}

// NewSuggestionFilter creates a filter that already excludes input.
func NewSuggestionFilter(input string) *SuggestionFilter {
	return &SuggestionFilter{
		seen: map[string]struct{}{strings.ToLower(input): {}},
	}
}

// ShouldInclude reports whether word was not seen before, and marks it.
func (f *SuggestionFilter) ShouldInclude(word string) bool {
	key := strings.ToLower(word)
	if _, ok := f.seen[key]; ok {
		return false
	}
	f.seen[key] = struct{}{}
	return true
}
