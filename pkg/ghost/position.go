package ghost

import (
	"strings"
	"unicode"
	"unicode/utf8"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Advance moves pos over text. A "\n" or "\r\n" starts a new line at column
// zero, any other rune adds its UTF-16 width to the column.
func Advance(pos protocol.Position, text string) protocol.Position {
	return AdvanceBefore(pos, text, "")
}

// AdvanceBefore moves pos over text where next is the text that follows it.
// A "\r" ending text whose "\n" starts next is left for next to count, so
// a "\r\n" split between two edits moves one line.
func AdvanceBefore(pos protocol.Position, text, next string) protocol.Position {
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		switch r {
		case '\r':
			if i < len(text) && text[i] == '\n' {
				continue
			}
			if i == len(text) && strings.HasPrefix(next, "\n") {
				continue
			}
			pos.Line++
			pos.Character = 0
		case '\n':
			pos.Line++
			pos.Character = 0
		default:
			pos.Character += protocol.UInteger(utf16Width(r))
		}
	}
	return pos
}

// RuneLen returns the number of characters in s.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// SliceRunes returns s without its first n characters. ok is false when s
// holds fewer than n characters.
func SliceRunes(s string, n int) (rest string, ok bool) {
	if n < 0 {
		return "", false
	}
	i := 0
	for ; n > 0; n-- {
		if i >= len(s) {
			return "", false
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[i:], true
}

// HeadRunes returns the first n characters of s, or all of s when shorter.
func HeadRunes(s string, n int) string {
	i := 0
	for ; n > 0 && i < len(s); n-- {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i]
}

func utf16Width(r rune) int {
	if n := utf16RuneLen(r); n > 0 {
		return n
	}
	return 1
}

// utf16RuneLen mirrors utf16.RuneLen (Go 1.23+) for older toolchains.
func utf16RuneLen(r rune) int {
	switch {
	case 0 <= r && r < 0xd800, 0xe000 <= r && r < 0x10000:
		return 1
	case 0x10000 <= r && r <= unicode.MaxRune:
		return 2
	default:
		return -1
	}
}

// Before reports whether a is strictly before b.
func Before(a, b protocol.Position) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Character < b.Character
}

// Width returns the UTF-16 length of s, the column span it covers.
func Width(s string) int {
	w := 0
	for _, r := range s {
		w += utf16Width(r)
	}
	return w
}
