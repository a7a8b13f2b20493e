package ghost

import (
	"sync"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// ErrOutOfRange is returned when a position or offset does not exist in a document.
var ErrOutOfRange = errors.New("position out of range")

// Document is the narrow view of an editor buffer the completion core needs.
// Conversions may fail when the buffer changed since the position was taken.
type Document interface {
	URI() string
	Version() int32
	Text() string
	PositionToOffset(pos protocol.Position) (int, error)
	OffsetToPosition(offset int) (protocol.Position, error)
}

// lineInfo stores where a line starts and how long it is.
type lineInfo struct {
	byteOffset int
	byteLen    int
}

// TextDocument is an in-memory Document. Offsets are byte offsets into the
// text, columns are UTF-16 code units.
type TextDocument struct {
	mu      sync.RWMutex
	uri     string
	version int32
	text    string
	lines   []lineInfo
}

// NewTextDocument creates a document holding text at version 1.
func NewTextDocument(uri, text string) *TextDocument {
	d := &TextDocument{uri: uri, version: 1}
	d.setText(text)
	return d
}

func (d *TextDocument) URI() string {
	return d.uri
}

func (d *TextDocument) Version() int32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

func (d *TextDocument) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}

// SetText replaces the content and bumps the version.
func (d *TextDocument) SetText(text string) int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setText(text)
	d.version++
	return d.version
}

// Insert inserts text at offset and bumps the version.
func (d *TextDocument) Insert(offset int, text string) (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if offset < 0 || offset > len(d.text) {
		return d.version, errors.Wrapf(ErrOutOfRange, "insert at offset %d", offset)
	}
	d.setText(d.text[:offset] + text + d.text[offset:])
	d.version++
	return d.version, nil
}

// DeleteBefore removes n characters ending at offset and returns the new
// offset of the cursor.
func (d *TextDocument) DeleteBefore(offset, n int) (int, int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if offset < 0 || offset > len(d.text) {
		return offset, d.version, errors.Wrapf(ErrOutOfRange, "delete at offset %d", offset)
	}
	start := offset
	for ; n > 0 && start > 0; n-- {
		_, size := utf8.DecodeLastRuneInString(d.text[:start])
		start -= size
	}
	d.setText(d.text[:start] + d.text[offset:])
	d.version++
	return start, d.version, nil
}

func (d *TextDocument) setText(text string) {
	d.text = text
	d.lines = d.lines[:0]
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			end := i
			if end > start && text[end-1] == '\r' {
				end--
			}
			d.lines = append(d.lines, lineInfo{byteOffset: start, byteLen: end - start})
			start = i + 1
		}
	}
	d.lines = append(d.lines, lineInfo{byteOffset: start, byteLen: len(text) - start})
}

// PositionToOffset converts an LSP position to a byte offset.
func (d *TextDocument) PositionToOffset(pos protocol.Position) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if int(pos.Line) >= len(d.lines) {
		return 0, errors.Wrapf(ErrOutOfRange, "line %d of %d", pos.Line, len(d.lines))
	}
	line := d.lines[pos.Line]
	content := d.text[line.byteOffset : line.byteOffset+line.byteLen]

	col := 0
	for i, r := range content {
		if col == int(pos.Character) {
			return line.byteOffset + i, nil
		}
		col += utf16Width(r)
		if col > int(pos.Character) {
			return 0, errors.Wrapf(ErrOutOfRange, "column %d splits a character", pos.Character)
		}
	}
	if col == int(pos.Character) {
		return line.byteOffset + line.byteLen, nil
	}
	return 0, errors.Wrapf(ErrOutOfRange, "column %d past end of line %d", pos.Character, pos.Line)
}

// OffsetToPosition converts a byte offset to an LSP position.
func (d *TextDocument) OffsetToPosition(offset int) (protocol.Position, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if offset < 0 || offset > len(d.text) {
		return protocol.Position{}, errors.Wrapf(ErrOutOfRange, "offset %d of %d", offset, len(d.text))
	}
	line := 0
	for line+1 < len(d.lines) && d.lines[line+1].byteOffset <= offset {
		line++
	}
	info := d.lines[line]
	if offset > info.byteOffset+info.byteLen {
		// inside a "\r\n" break
		return protocol.Position{}, errors.Wrapf(ErrOutOfRange, "offset %d inside a line break", offset)
	}
	col := 0
	for _, r := range d.text[info.byteOffset:offset] {
		col += utf16Width(r)
	}
	return protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col)}, nil
}
