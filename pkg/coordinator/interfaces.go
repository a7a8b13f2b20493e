package coordinator

import (
	"context"

	"github.com/bastiangx/ghostserve/pkg/ghost"
)

// Client is the completion service.
type Client interface {
	// GetCompletions returns candidates for req. An empty or nil result is
	// a normal answer, not an error.
	GetCompletions(ctx context.Context, req ghost.Request) (*ghost.Result, error)
}

// Listener is notified once per completed, non-empty request.
type Listener interface {
	OnCompletionResolved(uri string, candidates []ghost.Candidate)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(uri string, candidates []ghost.Candidate)

func (f ListenerFunc) OnCompletionResolved(uri string, candidates []ghost.Candidate) {
	f(uri, candidates)
}

// AuthChecker tells whether completions may be requested at all.
type AuthChecker interface {
	Authorized() bool
}

// AuthFunc adapts a function to AuthChecker.
type AuthFunc func() bool

func (f AuthFunc) Authorized() bool { return f() }

// FormatResolver returns the formatting preferences of a file.
type FormatResolver interface {
	FormatFor(uri string) ghost.FormatOptions
}

// FileResolver finds the open document for a URI. ok is false when the
// file was closed or renamed.
type FileResolver interface {
	Resolve(uri string) (doc ghost.Document, ok bool)
}

// Status is the externally visible health of the completion service.
type Status int

const (
	StatusOK Status = iota
	StatusError
)

func (s Status) String() string {
	if s == StatusOK {
		return "ok"
	}
	return "error"
}

// StatusSink receives status changes. err is set for StatusError.
type StatusSink interface {
	SetStatus(status Status, err error)
}

// Dispatcher runs fn on the thread that owns the tracker.
type Dispatcher func(fn func())

// Inline runs fn on the calling goroutine.
func Inline(fn func()) { fn() }
