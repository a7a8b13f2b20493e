/*
Package ghost holds the data model shared by the ghost-text completion core.

A Candidate is one proposed completion. Candidates are values: narrowing a
candidate while the user types produces a new Candidate and leaves the one
returned by the completion service untouched, so the tracker can always
rebuild its view from the original set.

Positions and ranges use the LSP 3.16 types from tliron/glsp: zero based
lines, UTF-16 columns.

	c := ghost.Candidate{
		ID:              "c1",
		InsertText:      "quickSort(int[] a)",
		DisplayText:     "Sort(int[] a)",
		TriggerPosition: protocol.Position{Line: 3, Character: 9},
	}
	next := ghost.Advance(c.TriggerPosition, "Sort")
*/
package ghost

import (
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Candidate is a single completion proposal as delivered by the completion service.
type Candidate struct {
	// ID identifies the candidate when reporting accepts and rejects.
	ID string `msgpack:"id"`
	// InsertText is the full text inserted when the candidate is accepted.
	InsertText string `msgpack:"insert"`
	// DisplayRange is the document range the ghost text covers.
	DisplayRange protocol.Range `msgpack:"range"`
	// DisplayText is the ghost text still to be rendered after the cursor.
	DisplayText string `msgpack:"display"`
	// TriggerPosition is where the candidate applies.
	TriggerPosition protocol.Position `msgpack:"pos"`
	// DocumentVersion is the document version the candidate was computed for.
	DocumentVersion int32 `msgpack:"ver"`
}

// IDs returns the identifiers of candidates in order.
func IDs(candidates []Candidate) []string {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	return ids
}

// Clone returns a copy of candidates that does not share the backing array.
func Clone(candidates []Candidate) []Candidate {
	if candidates == nil {
		return nil
	}
	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	return out
}
