package ghost

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func pos(line, char int) protocol.Position {
	return protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(char)}
}

func TestAdvance(t *testing.T) {
	testCases := []struct {
		start       protocol.Position
		text        string
		expected    protocol.Position
		description string
	}{
		{pos(0, 0), "public", pos(0, 6), "same line"},
		{pos(2, 4), "", pos(2, 4), "empty text"},
		{pos(1, 3), "a\nbc", pos(2, 2), "crosses a line"},
		{pos(1, 3), "a\r\nbc", pos(2, 2), "crlf counts as one break"},
		{pos(0, 0), "\n\n", pos(2, 0), "two breaks"},
		{pos(0, 0), "é", pos(0, 1), "bmp rune is one unit"},
		{pos(0, 0), "😀", pos(0, 2), "astral rune is a surrogate pair"},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			assert.Equal(t, tc.expected, Advance(tc.start, tc.text))
		})
	}
}

func TestAdvanceBeforeSplitLineBreak(t *testing.T) {
	testCases := []struct {
		text        string
		next        string
		expected    protocol.Position
		description string
	}{
		{"ab\r", "\ncd", pos(0, 2), "carriage return waits for its line feed"},
		{"ab\r", "cd", pos(1, 0), "lone carriage return breaks the line"},
		{"ab\r", "", pos(1, 0), "carriage return at the end breaks the line"},
		{"a\r\n", "\n", pos(1, 0), "complete crlf is counted at once"},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			assert.Equal(t, tc.expected, AdvanceBefore(pos(0, 0), tc.text, tc.next))
		})
	}

	split := AdvanceBefore(pos(0, 0), "ab\r", "\ncd")
	assert.Equal(t, Advance(pos(0, 0), "ab\r\n"), Advance(split, "\n"))
}

func TestSliceRunes(t *testing.T) {
	rest, ok := SliceRunes("héllo", 2)
	assert.True(t, ok)
	assert.Equal(t, "llo", rest)

	rest, ok = SliceRunes("ab", 2)
	assert.True(t, ok)
	assert.Empty(t, rest)

	_, ok = SliceRunes("ab", 3)
	assert.False(t, ok)

	assert.Equal(t, "hé", HeadRunes("héllo", 2))
	assert.Equal(t, "ab", HeadRunes("ab", 5))
}

func TestTextDocumentConversions(t *testing.T) {
	doc := NewTextDocument("file:///a.go", "package main\r\nfunc é() {}\n")

	off, err := doc.PositionToOffset(pos(1, 5))
	require.NoError(t, err)
	assert.Equal(t, "é() {}\n", doc.Text()[off:])

	p, err := doc.OffsetToPosition(off)
	require.NoError(t, err)
	assert.Equal(t, pos(1, 5), p)

	off, err = doc.PositionToOffset(pos(2, 0))
	require.NoError(t, err)
	assert.Equal(t, len(doc.Text()), off)

	_, err = doc.PositionToOffset(pos(5, 0))
	assert.True(t, errors.Is(err, ErrOutOfRange))

	_, err = doc.PositionToOffset(pos(0, 40))
	assert.True(t, errors.Is(err, ErrOutOfRange))

	_, err = doc.OffsetToPosition(-1)
	assert.True(t, errors.Is(err, ErrOutOfRange))
}

func TestTextDocumentEdits(t *testing.T) {
	doc := NewTextDocument("file:///a.txt", "hello")
	assert.Equal(t, int32(1), doc.Version())

	v, err := doc.Insert(5, " world")
	require.NoError(t, err)
	assert.Equal(t, int32(2), v)
	assert.Equal(t, "hello world", doc.Text())

	off, v, err := doc.DeleteBefore(11, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, off)
	assert.Equal(t, int32(3), v)
	assert.Equal(t, "hello", doc.Text())

	_, err = doc.Insert(99, "x")
	assert.True(t, errors.Is(err, ErrOutOfRange))
}

func TestResultEmpty(t *testing.T) {
	var r *Result
	assert.True(t, r.Empty())
	assert.True(t, (&Result{}).Empty())
	assert.False(t, (&Result{Items: []Candidate{{ID: "a"}}}).Empty())
}

func TestIDsAndClone(t *testing.T) {
	in := []Candidate{{ID: "a"}, {ID: "b"}}
	assert.Equal(t, []string{"a", "b"}, IDs(in))

	out := Clone(in)
	out[0].ID = "z"
	assert.Equal(t, "a", in[0].ID)
	assert.Nil(t, Clone(nil))
}
