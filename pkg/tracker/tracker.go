/*
Package tracker keeps the set of ghost-text candidates usable between
completion round-trips.

The tracker holds the candidate set last returned by the completion service
(the originals) and a live view derived from it. As the user types, Insert
narrows the live view to the candidates that predicted the typed text; as
the user deletes, Delete rebuilds the live view from the originals. Either
operation reports Rejected when local state can no longer explain the
edit, after which the tracker is empty and a fresh completion is needed.

	t := tracker.New()
	t.Populate(result.Items)
	if res, _ := t.Insert("pub"); res == tracker.Rejected {
		// request a new completion
	}
	first, _ := t.FirstLine()

All methods are safe for concurrent use, but the intended model is a single
owner (the editor thread) with completion results marshalled onto it.
*/
package tracker

import (
	"strings"
	"sync"

	"github.com/bastiangx/ghostserve/pkg/boundary"
	"github.com/bastiangx/ghostserve/pkg/ghost"
	"github.com/cockroachdb/errors"
)

// ErrInvalidState is returned when the tracker is used without a current
// suggestion. Callers are expected to check HasSuggestion first.
var ErrInvalidState = errors.New("suggestion tracker: invalid state")

// Result tells the caller whether an edit could be explained locally.
type Result int

const (
	// Accepted means the live candidates were adjusted to the edit.
	Accepted Result = iota
	// Rejected means no candidate explains the edit; the tracker was reset.
	Rejected
)

func (r Result) String() string {
	if r == Accepted {
		return "accepted"
	}
	return "rejected"
}

// Tracker owns the candidate state of one editor context.
type Tracker struct {
	mu       sync.RWMutex
	original []ghost.Candidate
	live     []ghost.Candidate
	selected int
	consumed int
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{}
}

// SetCandidates stores candidates. With no originals held this is a full
// reset; otherwise only the live view is replaced and the offset is kept.
func (t *Tracker) SetCandidates(candidates []ghost.Candidate) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.original) == 0 {
		t.populate(candidates)
		return
	}
	t.live = ghost.Clone(candidates)
	if t.selected >= len(t.live) {
		t.selected = 0
	}
}

// Populate replaces everything with a fresh candidate set.
func (t *Tracker) Populate(candidates []ghost.Candidate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.populate(candidates)
}

func (t *Tracker) populate(candidates []ghost.Candidate) {
	t.original = ghost.Clone(candidates)
	t.live = ghost.Clone(candidates)
	t.consumed = 0
	t.selected = 0
}

// Reset clears all state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset()
}

func (t *Tracker) reset() {
	t.original = nil
	t.live = nil
	t.consumed = 0
	t.selected = 0
}

// Insert narrows the live candidates by typed text.
func (t *Tracker) Insert(typed string) (Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.live) == 0 {
		return Rejected, errors.Wrap(ErrInvalidState, "insert without live candidates")
	}

	selectedID := t.selectedID()
	narrowed := make([]ghost.Candidate, 0, len(t.live))
	for _, c := range t.live {
		if !strings.HasPrefix(c.DisplayText, typed) {
			continue
		}
		rest := c.DisplayText[len(typed):]
		if rest == "" {
			continue
		}
		c.DisplayText = rest
		c.TriggerPosition = ghost.AdvanceBefore(c.TriggerPosition, typed, rest)
		narrowed = append(narrowed, c)
	}

	if len(narrowed) == 0 {
		t.reset()
		return Rejected, nil
	}
	t.live = narrowed
	t.consumed += ghost.RuneLen(typed)
	t.reselect(selectedID)
	return Accepted, nil
}

// Delete widens the live candidates by n characters, rebuilt from the originals.
func (t *Tracker) Delete(n int) (Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.live) == 0 {
		return Rejected, errors.Wrap(ErrInvalidState, "delete without live candidates")
	}
	if n < 0 {
		return Rejected, errors.Wrapf(ErrInvalidState, "negative delete count %d", n)
	}
	if t.consumed == 0 || t.consumed < n {
		t.reset()
		return Rejected, nil
	}

	offset := t.consumed - n
	selectedID := t.selectedID()
	rebuilt := make([]ghost.Candidate, 0, len(t.original))
	for _, c := range t.original {
		rest, ok := ghost.SliceRunes(c.DisplayText, offset)
		if !ok || rest == "" {
			continue
		}
		c.TriggerPosition = ghost.AdvanceBefore(c.TriggerPosition, ghost.HeadRunes(c.DisplayText, offset), rest)
		c.DisplayText = rest
		rebuilt = append(rebuilt, c)
	}

	if len(rebuilt) == 0 {
		t.reset()
		return Rejected, nil
	}
	t.live = rebuilt
	t.consumed = offset
	t.reselect(selectedID)
	return Accepted, nil
}

func (t *Tracker) selectedID() string {
	if c, ok, _ := t.current(); ok {
		return c.ID
	}
	return ""
}

func (t *Tracker) reselect(id string) {
	t.selected = 0
	for i, c := range t.live {
		if c.ID == id {
			t.selected = i
			return
		}
	}
}

// HasSuggestion reports whether a current item exists.
func (t *Tracker) HasSuggestion() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.live) > 0
}

// CurrentItem returns the selected live candidate. It fails with
// ErrInvalidState, and ok is false, when there are no live candidates.
func (t *Tracker) CurrentItem() (c ghost.Candidate, ok bool, err error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current()
}

func (t *Tracker) current() (ghost.Candidate, bool, error) {
	if len(t.live) == 0 {
		return ghost.Candidate{}, false, errors.Wrap(ErrInvalidState, "no current suggestion")
	}
	if t.selected < 0 || t.selected >= len(t.live) {
		return ghost.Candidate{}, false, errors.Wrapf(ErrInvalidState,
			"selected index %d out of range [0, %d)", t.selected, len(t.live))
	}
	return t.live[t.selected], true, nil
}

func (t *Tracker) currentText() (string, error) {
	c, _, err := t.current()
	if err != nil {
		return "", err
	}
	return c.DisplayText, nil
}

// NextWord returns the leading run of the current display text, preferring
// whitespace, then symbols, then word characters.
func (t *Tracker) NextWord() (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	text, err := t.currentText()
	if err != nil {
		return "", err
	}
	run, _, ok := boundary.LeadingRun(text)
	if !ok {
		return text, nil
	}
	return run, nil
}

// FirstLine returns the current display text up to its first line break.
func (t *Tracker) FirstLine() (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	text, err := t.currentText()
	if err != nil {
		return "", err
	}
	first, _, _ := splitFirstLine(text)
	return first, nil
}

// RemainingLines returns everything after the first line break of the
// current display text, or "" for a single line.
func (t *Tracker) RemainingLines() (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	text, err := t.currentText()
	if err != nil {
		return "", err
	}
	_, rest, _ := splitFirstLine(text)
	return rest, nil
}

// splitFirstLine splits on the first "\n", treating a preceding "\r" as
// part of the break. brk is the break itself.
func splitFirstLine(text string) (first, rest, brk string) {
	i := strings.IndexByte(text, '\n')
	if i < 0 {
		return text, "", ""
	}
	end := i
	if end > 0 && text[end-1] == '\r' {
		end--
	}
	return text[:end], text[i+1:], text[end : i+1]
}

// LineBreak returns the line break following the first line of the current
// item, or "" when the item is a single line.
func (t *Tracker) LineBreak() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	text, err := t.currentText()
	if err != nil {
		return ""
	}
	_, _, brk := splitFirstLine(text)
	return brk
}

// Identifiers returns the IDs of the live candidates in order.
func (t *Tracker) Identifiers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return ghost.IDs(t.live)
}

// Live returns a copy of the live candidates.
func (t *Tracker) Live() []ghost.Candidate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return ghost.Clone(t.live)
}

// Consumed returns how many characters of the originals were consumed by local edits.
func (t *Tracker) Consumed() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.consumed
}

// Selected returns the index of the current item.
func (t *Tracker) Selected() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.selected
}

// Select makes the i-th live candidate current.
func (t *Tracker) Select(i int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i < 0 || i >= len(t.live) {
		return errors.Wrapf(ErrInvalidState, "select %d of %d candidates", i, len(t.live))
	}
	t.selected = i
	return nil
}

// Next moves the selection forward, wrapping around.
func (t *Tracker) Next() error {
	return t.cycle(1)
}

// Prev moves the selection backward, wrapping around.
func (t *Tracker) Prev() error {
	return t.cycle(-1)
}

func (t *Tracker) cycle(step int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.live) == 0 {
		return errors.Wrap(ErrInvalidState, "cycle without live candidates")
	}
	t.selected = (t.selected + step + len(t.live)) % len(t.live)
	return nil
}
