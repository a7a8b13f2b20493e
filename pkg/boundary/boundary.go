// Package boundary classifies characters into whitespace, symbol and word
// classes and extracts leading runs of a single class. Partial accepts use
// it to decide how much of a ghost text makes up the "next word".
package boundary

import (
	"unicode"
	"unicode/utf8"
)

// Class is the character class of a rune.
type Class int

const (
	// Word covers everything that is neither whitespace nor a symbol.
	Word Class = iota
	// Symbol covers punctuation and symbol runes.
	Symbol
	// Whitespace covers spaces, tabs and line breaks.
	Whitespace
)

func (c Class) String() string {
	switch c {
	case Whitespace:
		return "whitespace"
	case Symbol:
		return "symbol"
	default:
		return "word"
	}
}

// Classify returns the class of r. Whitespace wins over symbol, which wins over word.
func Classify(r rune) Class {
	switch {
	case unicode.IsSpace(r):
		return Whitespace
	case unicode.IsPunct(r) || unicode.IsSymbol(r):
		return Symbol
	default:
		return Word
	}
}

// IsWord reports whether r belongs to the word class.
func IsWord(r rune) bool {
	return Classify(r) == Word
}

// LeadingRun returns the longest prefix of s made of runes sharing the class
// of its first rune. ok is false for an empty or invalid string.
func LeadingRun(s string) (run string, class Class, ok bool) {
	first, size := utf8.DecodeRuneInString(s)
	if size == 0 || first == utf8.RuneError && size == 1 {
		return "", Word, false
	}
	class = Classify(first)
	end := size
	for end < len(s) {
		r, n := utf8.DecodeRuneInString(s[end:])
		if Classify(r) != class {
			break
		}
		end += n
	}
	return s[:end], class, true
}

// TrailingRun returns the longest suffix of s made of runes of class c.
func TrailingRun(s string, c Class) string {
	start := len(s)
	for start > 0 {
		r, n := utf8.DecodeLastRuneInString(s[:start])
		if Classify(r) != c {
			break
		}
		start -= n
	}
	return s[start:]
}
