/*
Package session wires one coordinator and one tracker per editor context.

A Session turns editor events into tracker edits and completion triggers:
typed text that a live candidate predicted is absorbed locally, anything
else asks the service again. Accept, Discard and the partial accept
operations report back to the service through Feedback without blocking
the editor.

	m := session.NewManager(provider, cfg, session.WithFeedback(provider))
	s := m.Attach(uri, doc)
	s.Typed("q", cursor, doc.Version())
	if first, rest, ok := s.Ghost(); ok {
		// render first and rest after the cursor
	}
*/
package session

import (
	"context"
	"sync"
	"time"

	"github.com/bastiangx/ghostserve/pkg/config"
	"github.com/bastiangx/ghostserve/pkg/coordinator"
	"github.com/bastiangx/ghostserve/pkg/ghost"
	"github.com/bastiangx/ghostserve/pkg/tracker"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// FeedbackTimeout bounds a single accept or reject notification.
const FeedbackTimeout = 2 * time.Second

var (
	// ErrUnsupported is returned for operations whose capability is off.
	ErrUnsupported = errors.New("operation not supported")
	// ErrNoSuggestion is returned when there is nothing to accept.
	ErrNoSuggestion = errors.New("no suggestion")
)

// Feedback tells the completion service what happened to its candidates.
type Feedback interface {
	NotifyAccepted(ctx context.Context, id string) error
	NotifyRejected(ctx context.Context, ids []string) error
}

// Session is the completion state of one editor context.
type Session struct {
	uri      string
	tracker  *tracker.Tracker
	coord    *coordinator.Coordinator
	feedback Feedback
	logger   *log.Logger

	mu   sync.RWMutex
	caps config.Capabilities
	// doc is nil while the context has no open document.
	doc ghost.Document

	wg sync.WaitGroup
}

// URI returns the context's document URI.
func (s *Session) URI() string { return s.uri }

// Tracker exposes the candidate state for renderers.
func (s *Session) Tracker() *tracker.Tracker { return s.tracker }

// Coordinator exposes the request coordinator.
func (s *Session) Coordinator() *coordinator.Coordinator { return s.coord }

// Capabilities returns the capabilities in effect.
func (s *Session) Capabilities() config.Capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caps
}

// Document returns the bound document, or nil.
func (s *Session) Document() ghost.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

func (s *Session) bind(doc ghost.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
}

func (s *Session) setCapabilities(c config.Capabilities) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caps = c
}

func (s *Session) trigger(pos protocol.Position, version int32) *coordinator.Request {
	if doc := s.Document(); doc != nil {
		return s.coord.TriggerDocument(doc, pos, version)
	}
	return s.coord.Trigger(s.uri, pos, version)
}

// Typed reports text inserted before pos, the cursor after the insert.
// It returns the triggered request, or nil when the live candidates
// already explain the text.
func (s *Session) Typed(text string, pos protocol.Position, version int32) *coordinator.Request {
	if s.tracker.HasSuggestion() {
		res, err := s.tracker.Insert(text)
		if err == nil && res == tracker.Accepted {
			return nil
		}
	}
	return s.trigger(pos, version)
}

// Deleted reports n characters removed before the cursor at pos.
func (s *Session) Deleted(n int, pos protocol.Position, version int32) *coordinator.Request {
	if s.tracker.HasSuggestion() {
		res, err := s.tracker.Delete(n)
		if err == nil && res == tracker.Accepted {
			return nil
		}
	}
	return s.trigger(pos, version)
}

// Moved reports any edit or cursor movement the tracker cannot follow.
func (s *Session) Moved(pos protocol.Position, version int32) *coordinator.Request {
	s.tracker.Reset()
	return s.trigger(pos, version)
}

// Accept takes the whole current candidate. The caller inserts its
// DisplayText at the cursor.
func (s *Session) Accept() (ghost.Candidate, error) {
	if !s.tracker.HasSuggestion() {
		return ghost.Candidate{}, ErrNoSuggestion
	}
	item, _, err := s.tracker.CurrentItem()
	if err != nil {
		return ghost.Candidate{}, err
	}
	s.coord.Cancel()
	s.tracker.Reset()
	s.notifyAccepted(item.ID)
	return item, nil
}

// AcceptNextWord takes the next word of the current candidate and narrows
// the candidates by it. The caller inserts the returned text and must not
// report it again through Typed.
func (s *Session) AcceptNextWord() (string, error) {
	if !s.Capabilities().PartialAccept {
		return "", errors.WithHint(errors.Wrap(ErrUnsupported, "accept next word"),
			"enable capabilities.partial_accept")
	}
	if !s.tracker.HasSuggestion() {
		return "", ErrNoSuggestion
	}
	word, err := s.tracker.NextWord()
	if err != nil {
		return "", err
	}
	return word, s.consume(word)
}

// AcceptLine takes the first line of the current candidate, including the
// line break when more lines follow.
func (s *Session) AcceptLine() (string, error) {
	if !s.Capabilities().MultiLine {
		return "", errors.WithHint(errors.Wrap(ErrUnsupported, "accept line"),
			"enable capabilities.multi_line")
	}
	if !s.tracker.HasSuggestion() {
		return "", ErrNoSuggestion
	}
	line, err := s.tracker.FirstLine()
	if err != nil {
		return "", err
	}
	line += s.tracker.LineBreak()
	return line, s.consume(line)
}

// consume narrows the tracker by accepted text. A candidate that is used
// up by it counts as accepted.
func (s *Session) consume(text string) error {
	item, _, err := s.tracker.CurrentItem()
	if err != nil {
		return err
	}
	res, err := s.tracker.Insert(text)
	if err != nil {
		return err
	}
	if res == tracker.Rejected || item.DisplayText == text {
		s.coord.Cancel()
		s.notifyAccepted(item.ID)
	}
	return nil
}

// Discard drops all candidates and reports them as rejected.
func (s *Session) Discard() {
	ids := s.tracker.Identifiers()
	s.coord.Cancel()
	s.tracker.Reset()
	if len(ids) > 0 {
		s.notifyRejected(ids)
	}
}

// Next selects the next candidate.
func (s *Session) Next() error {
	if !s.Capabilities().Cycle {
		return errors.Wrap(ErrUnsupported, "cycle candidates")
	}
	return s.tracker.Next()
}

// Prev selects the previous candidate.
func (s *Session) Prev() error {
	if !s.Capabilities().Cycle {
		return errors.Wrap(ErrUnsupported, "cycle candidates")
	}
	return s.tracker.Prev()
}

// Ghost returns the text to render after the cursor: the rest of the
// current line and the lines below it.
func (s *Session) Ghost() (first, rest string, ok bool) {
	if !s.tracker.HasSuggestion() {
		return "", "", false
	}
	first, err := s.tracker.FirstLine()
	if err != nil {
		return "", "", false
	}
	if s.Capabilities().MultiLine {
		rest, _ = s.tracker.RemainingLines()
	}
	return first, rest, true
}

func (s *Session) notifyAccepted(id string) {
	if s.feedback == nil || id == "" {
		return
	}
	s.send(func(ctx context.Context) error {
		return s.feedback.NotifyAccepted(ctx, id)
	})
}

func (s *Session) notifyRejected(ids []string) {
	if s.feedback == nil {
		return
	}
	s.send(func(ctx context.Context) error {
		return s.feedback.NotifyRejected(ctx, ids)
	})
}

// send runs fn on its own goroutine. Failures are logged only.
func (s *Session) send(fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), FeedbackTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Warn("feedback failed", "uri", s.uri, "err", err)
		}
	}()
}

// Close stops the coordinator and waits for pending feedback.
func (s *Session) Close() {
	s.coord.Close()
	s.tracker.Reset()
	s.wg.Wait()
}
