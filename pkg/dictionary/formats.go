package dictionary

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrUnknownFormat is returned when a file is not a dictionary this
// package can read.
var ErrUnknownFormat = errors.New("unknown dictionary format")

// Format is the encoding of a dictionary file.
type Format int

const (
	FormatUnknown Format = iota
	// FormatText holds one phrase per line, optionally "<freq>\t<phrase>".
	FormatText
	// FormatMsgpack holds a msgpack map of phrase to frequency.
	FormatMsgpack
	// FormatBinary is the chunk layout: an int32 entry count followed by
	// entries of uint16 length, phrase bytes and uint16 rank.
	FormatBinary
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatMsgpack:
		return "msgpack"
	case FormatBinary:
		return "binary"
	}
	return "unknown"
}

var extensions = map[string]Format{
	".txt":     FormatText,
	".words":   FormatText,
	".msgpack": FormatMsgpack,
	".mpk":     FormatMsgpack,
	".bin":     FormatBinary,
}

// DetectFormat chooses the format of path from its extension, falling back
// to sniffing the first byte.
func DetectFormat(path string) (Format, error) {
	if f, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return f, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return FormatUnknown, errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()

	f, err := sniff(bufio.NewReader(file))
	if err != nil {
		return FormatUnknown, errors.Wrapf(err, "%s", path)
	}
	return f, nil
}

// sniff looks at the first byte without consuming it.
func sniff(r *bufio.Reader) (Format, error) {
	head, err := r.Peek(1)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return FormatText, nil
		}
		return FormatUnknown, err
	}
	switch b := head[0]; {
	case b >= 0x80 && b <= 0x8f, b == 0xde, b == 0xdf:
		// fixmap, map16, map32
		return FormatMsgpack, nil
	case b == '\t', b == '\n', b == '\r', b >= 0x20 && b < 0x7f, b >= 0xc2 && b <= 0xf4:
		return FormatText, nil
	}
	return FormatUnknown, ErrUnknownFormat
}
