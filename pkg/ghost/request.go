package ghost

import (
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// FormatOptions are the formatting preferences of the target file.
type FormatOptions struct {
	TabSize      int  `msgpack:"tab" toml:"tab_size"`
	InsertSpaces bool `msgpack:"spaces" toml:"insert_spaces"`
}

// Request describes one completion request sent to the completion service.
type Request struct {
	URI      string            `msgpack:"uri"`
	Position protocol.Position `msgpack:"pos"`
	// Offset is the byte offset of Position in Text.
	Offset  int           `msgpack:"off"`
	Version int32         `msgpack:"ver"`
	Format  FormatOptions `msgpack:"fmt"`
	// Text is a snapshot of the document; empty when the service keeps its own copy.
	Text string `msgpack:"text,omitempty"`
}

// Result is what the completion service answered. A nil Result or one
// without items is an empty completion.
type Result struct {
	Items []Candidate `msgpack:"items"`
}

// Empty reports whether r carries no candidates.
func (r *Result) Empty() bool {
	return r == nil || len(r.Items) == 0
}
