/*
Package coordinator owns the completion request lifecycle of one editor context.

A Coordinator keeps at most one current request. Trigger synchronously
cancels the previous request before scheduling a new one, so a superseded
request can never deliver candidates, even when its RPC call resolves
later. Each request runs on its own goroutine:

	Scheduled -> Running -> Completed | CompletedEmpty | Cancelled | TimedOut | Failed

Only Completed feeds the tracker and fires listeners; delivery is marshalled
through the Dispatcher onto the thread that owns the tracker. Timeouts and
cancellations are benign and never change the status; client failures set
StatusError. Nothing is retried until the next Trigger.

	c := coordinator.New(client,
		coordinator.WithTracker(t),
		coordinator.WithTimeout(5*time.Second),
	)
	c.AddListener(coordinator.ListenerFunc(func(uri string, items []ghost.Candidate) {
		// render
	}))
	c.Trigger("file:///main.go", pos, version)
*/
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/bastiangx/ghostserve/internal/logger"
	"github.com/bastiangx/ghostserve/pkg/ghost"
	"github.com/bastiangx/ghostserve/pkg/tracker"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"golang.org/x/time/rate"
)

// DefaultTimeout is the ceiling for a single completion call.
const DefaultTimeout = 5000 * time.Millisecond

// Coordinator schedules completion requests for one editor context.
type Coordinator struct {
	client   Client
	tracker  *tracker.Tracker
	auth     AuthChecker
	formats  FormatResolver
	files    FileResolver
	status   StatusSink
	dispatch Dispatcher
	logger   *log.Logger

	mu        sync.Mutex
	timeout   time.Duration
	debounce  time.Duration
	limiter   *rate.Limiter
	listeners []Listener
	current   *Request
	closed    bool

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTracker sets the tracker populated by completed requests.
func WithTracker(t *tracker.Tracker) Option {
	return func(c *Coordinator) { c.tracker = t }
}

// WithAuth sets the authorization predicate checked on every trigger.
func WithAuth(a AuthChecker) Option {
	return func(c *Coordinator) { c.auth = a }
}

// WithFormats sets how formatting options are resolved per file.
func WithFormats(f FormatResolver) Option {
	return func(c *Coordinator) { c.formats = f }
}

// WithFiles sets how unbound requests find their document.
func WithFiles(f FileResolver) Option {
	return func(c *Coordinator) { c.files = f }
}

// WithStatus sets the status sink.
func WithStatus(s StatusSink) Option {
	return func(c *Coordinator) { c.status = s }
}

// WithDispatcher sets how deliveries reach the tracker's thread.
func WithDispatcher(d Dispatcher) Option {
	return func(c *Coordinator) { c.dispatch = d }
}

// WithTimeout sets the ceiling for one completion call.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// WithDebounce delays execution of a scheduled request by d.
func WithDebounce(d time.Duration) Option {
	return func(c *Coordinator) { c.debounce = d }
}

// WithRateLimit bounds how many requests per second reach the client.
// A non-positive perSecond disables the limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Coordinator) { c.limiter = newLimiter(perSecond, burst) }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithListener registers a listener.
func WithListener(l Listener) Option {
	return func(c *Coordinator) { c.listeners = append(c.listeners, l) }
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// New creates a coordinator calling client.
func New(client Client, opts ...Option) *Coordinator {
	base, stop := context.WithCancel(context.Background())
	c := &Coordinator{
		client:   client,
		dispatch: Inline,
		timeout:  DefaultTimeout,
		base:     base,
		stop:     stop,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.New("coordinator")
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	return c
}

// AddListener registers l for future completions.
func (c *Coordinator) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Configure changes timeout, debounce and rate limit for future requests.
func (c *Coordinator) Configure(timeout, debounce time.Duration, perSecond float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timeout > 0 {
		c.timeout = timeout
	}
	if debounce >= 0 {
		c.debounce = debounce
	}
	c.limiter = newLimiter(perSecond, 1)
}

// Trigger requests completions at pos of the document identified by uri.
// The document is resolved when the request executes. It returns nil when
// not authorized or closed.
func (c *Coordinator) Trigger(uri string, pos protocol.Position, version int32) *Request {
	return c.trigger(uri, nil, pos, version)
}

// TriggerDocument is Trigger bound to doc.
func (c *Coordinator) TriggerDocument(doc ghost.Document, pos protocol.Position, version int32) *Request {
	return c.trigger(doc.URI(), doc, pos, version)
}

func (c *Coordinator) trigger(uri string, doc ghost.Document, pos protocol.Position, version int32) *Request {
	authorized := c.auth == nil || c.auth.Authorized()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	if !authorized {
		// A request started before sign-out must not surface.
		if prev := c.current; prev != nil && prev.Cancel() {
			c.logger.Debug("pending request dropped, not authorized", "id", prev.id)
		}
		c.logger.Debug("completion skipped, not authorized", "uri", uri)
		return nil
	}
	if prev := c.current; prev != nil && prev.Cancel() {
		c.logger.Debug("superseded request", "id", prev.id)
	}

	req := newRequest(c.base, uuid.NewString(), uri, pos, version)
	req.doc = doc
	if c.formats != nil {
		req.format = c.formats.FormatFor(uri)
	}
	c.current = req

	c.wg.Add(1)
	go c.run(req, c.debounce, c.timeout, c.limiter)
	return req
}

// Current returns the latest request, terminal or not.
func (c *Coordinator) Current() *Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Cancel cancels the current request, if any.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.Cancel()
	}
}

// Close cancels the current request and waits for all workers. Triggers
// after Close are ignored.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	if c.current != nil {
		c.current.Cancel()
	}
	c.stop()
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Coordinator) run(req *Request, debounce, timeout time.Duration, limiter *rate.Limiter) {
	defer c.wg.Done()

	if debounce > 0 {
		timer := time.NewTimer(debounce)
		select {
		case <-timer.C:
		case <-req.ctx.Done():
			timer.Stop()
			req.finish(Cancelled, nil)
			return
		}
	}
	if !req.start() {
		return
	}

	if limiter != nil {
		if err := limiter.Wait(req.ctx); err != nil {
			req.finish(Cancelled, nil)
			return
		}
	}

	greq, ok := c.prepare(req)
	if !ok {
		req.finish(Cancelled, nil)
		return
	}

	result, err := c.call(req.ctx, greq, timeout)
	if err != nil {
		c.fail(req, err, timeout)
		return
	}
	if result.Empty() {
		if req.finish(CompletedEmpty, nil) {
			c.logger.Debug("empty completion", "uri", req.uri)
		}
		return
	}

	items := ghost.Clone(result.Items)
	c.dispatch(func() { c.deliver(req, items) })
}

// prepare validates the request against its document and builds the wire request.
func (c *Coordinator) prepare(req *Request) (ghost.Request, bool) {
	doc := req.doc
	if doc == nil {
		if c.files == nil {
			c.logger.Debug("no file resolver for unbound request", "uri", req.uri)
			return ghost.Request{}, false
		}
		resolved, ok := c.files.Resolve(req.uri)
		if !ok || resolved == nil {
			c.logger.Debug("document no longer open", "uri", req.uri)
			return ghost.Request{}, false
		}
		doc = resolved
	}
	if req.version > 0 && doc.Version() != req.version {
		c.logger.Debug("stale request", "uri", req.uri, "requested", req.version, "current", doc.Version())
		return ghost.Request{}, false
	}
	offset, err := doc.PositionToOffset(req.position)
	if err != nil {
		c.logger.Debug("position no longer valid", "uri", req.uri, "err", err)
		return ghost.Request{}, false
	}

	return ghost.Request{
		URI:      req.uri,
		Position: req.position,
		Offset:   offset,
		Version:  req.version,
		Format:   req.format,
		Text:     doc.Text(),
	}, true
}

type outcome struct {
	result *ghost.Result
	err    error
}

// call runs the client with a ceiling timeout that holds even if the
// client ignores its context.
func (c *Coordinator) call(ctx context.Context, greq ghost.Request, timeout time.Duration) (*ghost.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		res, err := c.client.GetCompletions(callCtx, greq)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		if o.err == nil && callCtx.Err() != nil {
			// resolved after the deadline or cancellation
			return nil, callCtx.Err()
		}
		return o.result, o.err
	case <-callCtx.Done():
		return nil, callCtx.Err()
	}
}

func (c *Coordinator) fail(req *Request, err error, timeout time.Duration) {
	switch {
	case req.ctx.Err() != nil, errors.Is(err, context.Canceled):
		req.finish(Cancelled, nil)
	case errors.Is(err, context.DeadlineExceeded):
		if req.finish(TimedOut, nil) {
			c.logger.Info("completion timed out", "uri", req.uri, "timeout", timeout)
		}
	default:
		if req.finish(Failed, err) {
			c.logger.Error("completion failed", "uri", req.uri, "err", err)
			c.setStatus(StatusError, err)
		}
	}
}

func (c *Coordinator) deliver(req *Request, items []ghost.Candidate) {
	populated := req.finishWith(Completed, func() {
		if c.tracker != nil {
			c.tracker.Populate(items)
		}
	})
	if !populated {
		c.logger.Debug("discarded result of superseded request", "id", req.id)
		return
	}

	c.mu.Lock()
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		l.OnCompletionResolved(req.uri, ghost.Clone(items))
	}
	c.setStatus(StatusOK, nil)
	c.logger.Debug("completion delivered", "uri", req.uri, "candidates", len(items))
}

func (c *Coordinator) setStatus(s Status, err error) {
	if c.status != nil {
		c.status.SetStatus(s, err)
	}
}
