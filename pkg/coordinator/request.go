package coordinator

import (
	"context"
	"sync"

	"github.com/bastiangx/ghostserve/pkg/ghost"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// State is the lifecycle state of a Request.
type State int

const (
	Scheduled State = iota
	Running
	Completed
	CompletedEmpty
	Cancelled
	TimedOut
	Failed
)

var stateNames = map[State]string{
	Scheduled:      "scheduled",
	Running:        "running",
	Completed:      "completed",
	CompletedEmpty: "completed-empty",
	Cancelled:      "cancelled",
	TimedOut:       "timed-out",
	Failed:         "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether s is final.
func (s State) Terminal() bool {
	return s >= Completed
}

// Request is one completion request of a coordinator. Its state only moves
// forward and terminal states are final.
type Request struct {
	id       string
	uri      string
	position protocol.Position
	version  int32
	format   ghost.FormatOptions
	doc      ghost.Document

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State
	err   error
	done  chan struct{}
}

func newRequest(parent context.Context, id, uri string, pos protocol.Position, version int32) *Request {
	ctx, cancel := context.WithCancel(parent)
	return &Request{
		id:       id,
		uri:      uri,
		position: pos,
		version:  version,
		ctx:      ctx,
		cancel:   cancel,
		state:    Scheduled,
		done:     make(chan struct{}),
	}
}

func (r *Request) ID() string                  { return r.id }
func (r *Request) URI() string                 { return r.uri }
func (r *Request) Position() protocol.Position { return r.position }
func (r *Request) Version() int32              { return r.version }

// State returns the current state.
func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the failure of a Failed request.
func (r *Request) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done is closed once the request reaches a terminal state.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the request is terminal or ctx ends.
func (r *Request) Wait(ctx context.Context) (State, error) {
	select {
	case <-r.done:
		return r.State(), nil
	case <-ctx.Done():
		return r.State(), ctx.Err()
	}
}

// start moves Scheduled to Running.
func (r *Request) start() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Scheduled {
		return false
	}
	r.state = Running
	return true
}

// finish moves a non-terminal request to s. It fails if the request was
// already finished, which is how a superseded request loses the race.
func (r *Request) finish(s State, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finishLocked(s, err)
}

func (r *Request) finishLocked(s State, err error) bool {
	if r.state.Terminal() {
		return false
	}
	r.state = s
	r.err = err
	close(r.done)
	r.cancel()
	return true
}

// finishWith runs fn while holding the request lock if the request can move
// to s. No cancellation can interleave with fn, so fn must not call back
// into the coordinator.
func (r *Request) finishWith(s State, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Terminal() {
		return false
	}
	fn()
	return r.finishLocked(s, nil)
}

// Cancel moves a non-terminal request to Cancelled.
func (r *Request) Cancel() bool {
	return r.finish(Cancelled, nil)
}
