package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bastiangx/ghostserve/internal/logger"
	"github.com/bastiangx/ghostserve/pkg/ghost"
	"github.com/bastiangx/ghostserve/pkg/tracker"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

const testURI = "file:///src/sort.go"

// fakeClient answers through respond and records every request it sees.
type fakeClient struct {
	mu       sync.Mutex
	requests []ghost.Request
	respond  func(ctx context.Context, call int, req ghost.Request) (*ghost.Result, error)
}

func (f *fakeClient) GetCompletions(ctx context.Context, req ghost.Request) (*ghost.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	call := len(f.requests)
	f.mu.Unlock()
	return f.respond(ctx, call, req)
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeClient) request(i int) ghost.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func answer(items ...ghost.Candidate) func(context.Context, int, ghost.Request) (*ghost.Result, error) {
	return func(context.Context, int, ghost.Request) (*ghost.Result, error) {
		return &ghost.Result{Items: items}, nil
	}
}

type resolved struct {
	uri        string
	candidates []ghost.Candidate
}

type recorder struct {
	mu       sync.Mutex
	resolved []resolved
	statuses []Status
	errs     []error
}

func (r *recorder) OnCompletionResolved(uri string, candidates []ghost.Candidate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = append(r.resolved, resolved{uri, candidates})
}

func (r *recorder) SetStatus(s Status, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
	r.errs = append(r.errs, err)
}

func (r *recorder) snapshot() ([]resolved, []Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]resolved(nil), r.resolved...), append([]Status(nil), r.statuses...)
}

type formats struct{}

func (formats) FormatFor(string) ghost.FormatOptions {
	return ghost.FormatOptions{TabSize: 8, InsertSpaces: false}
}

type files map[string]ghost.Document

func (f files) Resolve(uri string) (ghost.Document, bool) {
	doc, ok := f[uri]
	return doc, ok
}

func item(id, display string) ghost.Candidate {
	return ghost.Candidate{ID: id, InsertText: display, DisplayText: display}
}

func at(line, char int) protocol.Position {
	return protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(char)}
}

type harness struct {
	client  *fakeClient
	tracker *tracker.Tracker
	rec     *recorder
	doc     *ghost.TextDocument
	coord   *Coordinator
}

func newHarness(t *testing.T, respond func(context.Context, int, ghost.Request) (*ghost.Result, error), opts ...Option) *harness {
	t.Helper()
	h := &harness{
		client:  &fakeClient{respond: respond},
		tracker: tracker.New(),
		rec:     &recorder{},
		doc:     ghost.NewTextDocument(testURI, "func main() {\n\tquick\n}\n"),
	}
	base := []Option{
		WithTracker(h.tracker),
		WithListener(h.rec),
		WithStatus(h.rec),
		WithFormats(formats{}),
		WithLogger(logger.Discard()),
	}
	h.coord = New(h.client, append(base, opts...)...)
	t.Cleanup(h.coord.Close)
	return h
}

func wait(t *testing.T, req *Request) State {
	t.Helper()
	require.NotNil(t, req)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	state, err := req.Wait(ctx)
	require.NoError(t, err, "request never reached a terminal state")
	return state
}

func TestCompletedPopulatesTrackerAndNotifies(t *testing.T) {
	h := newHarness(t, answer(item("a", "Sort(a)"), item("b", "Select(a)")))

	req := h.coord.TriggerDocument(h.doc, at(1, 6), h.doc.Version())
	assert.Equal(t, Completed, wait(t, req))
	h.coord.Close()

	got, statuses := h.rec.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, testURI, got[0].uri)
	assert.Equal(t, []string{"a", "b"}, ghost.IDs(got[0].candidates))
	assert.Equal(t, []Status{StatusOK}, statuses)
	assert.Equal(t, []string{"a", "b"}, h.tracker.Identifiers())

	sent := h.client.request(0)
	assert.Equal(t, testURI, sent.URI)
	assert.Equal(t, at(1, 6), sent.Position)
	assert.Equal(t, "\n}\n", sent.Text[sent.Offset:])
	assert.Equal(t, ghost.FormatOptions{TabSize: 8}, sent.Format)
}

func TestEmptyResultIsSilent(t *testing.T) {
	testCases := []struct {
		result      *ghost.Result
		description string
	}{
		{nil, "nil result"},
		{&ghost.Result{}, "no items"},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			h := newHarness(t, func(context.Context, int, ghost.Request) (*ghost.Result, error) {
				return tc.result, nil
			})

			req := h.coord.TriggerDocument(h.doc, at(1, 6), 0)
			assert.Equal(t, CompletedEmpty, wait(t, req))
			h.coord.Close()

			got, statuses := h.rec.snapshot()
			assert.Empty(t, got)
			assert.Empty(t, statuses)
			assert.False(t, h.tracker.HasSuggestion())
		})
	}
}

func TestClientFailureSetsErrorStatus(t *testing.T) {
	boom := errors.New("language server crashed")
	h := newHarness(t, func(context.Context, int, ghost.Request) (*ghost.Result, error) {
		return nil, boom
	})

	req := h.coord.TriggerDocument(h.doc, at(0, 0), 0)
	assert.Equal(t, Failed, wait(t, req))
	assert.True(t, errors.Is(req.Err(), boom))
	h.coord.Close()

	got, statuses := h.rec.snapshot()
	assert.Empty(t, got)
	assert.Equal(t, []Status{StatusError}, statuses)
}

func TestTimeoutIsBenign(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	// The client ignores its context; the coordinator still gives up.
	h := newHarness(t, func(context.Context, int, ghost.Request) (*ghost.Result, error) {
		<-release
		return &ghost.Result{Items: []ghost.Candidate{item("late", "x")}}, nil
	}, WithTimeout(30*time.Millisecond))

	req := h.coord.TriggerDocument(h.doc, at(0, 0), 0)
	assert.Equal(t, TimedOut, wait(t, req))

	got, statuses := h.rec.snapshot()
	assert.Empty(t, got)
	assert.Empty(t, statuses)
	assert.False(t, h.tracker.HasSuggestion())
}

func TestSupersededRequestNeverDelivers(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, func(_ context.Context, call int, _ ghost.Request) (*ghost.Result, error) {
		if call == 1 {
			<-release
			return &ghost.Result{Items: []ghost.Candidate{item("stale", "old")}}, nil
		}
		return &ghost.Result{Items: []ghost.Candidate{item("fresh", "new")}}, nil
	})

	first := h.coord.TriggerDocument(h.doc, at(0, 0), 0)
	require.Eventually(t, func() bool { return h.client.calls() == 1 }, 2*time.Second, 5*time.Millisecond)

	second := h.coord.TriggerDocument(h.doc, at(0, 1), 0)
	// cancelled synchronously by the second trigger
	assert.Equal(t, Cancelled, first.State())
	assert.Equal(t, Completed, wait(t, second))

	close(release)
	h.coord.Close()

	got, _ := h.rec.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, []string{"fresh"}, ghost.IDs(got[0].candidates))
	assert.Equal(t, []string{"fresh"}, h.tracker.Identifiers())
	assert.Equal(t, Cancelled, first.State())
}

func TestAtMostOneRequestInFlight(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, _ int, _ ghost.Request) (*ghost.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	var reqs []*Request
	for i := 0; i < 10; i++ {
		reqs = append(reqs, h.coord.TriggerDocument(h.doc, at(0, i), 0))
		nonTerminal := 0
		for _, r := range reqs {
			if !r.State().Terminal() {
				nonTerminal++
			}
		}
		assert.LessOrEqual(t, nonTerminal, 1)
	}
	assert.Same(t, reqs[len(reqs)-1], h.coord.Current())

	h.coord.Cancel()
	assert.Equal(t, Cancelled, wait(t, reqs[len(reqs)-1]))
}

func TestUnauthorizedTriggerCancelsPending(t *testing.T) {
	authorized := true
	h := newHarness(t, func(ctx context.Context, _ int, _ ghost.Request) (*ghost.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, WithAuth(AuthFunc(func() bool { return authorized })))

	first := h.coord.TriggerDocument(h.doc, at(0, 0), 0)
	require.NotNil(t, first)

	authorized = false
	assert.Nil(t, h.coord.TriggerDocument(h.doc, at(0, 1), 0))
	assert.Equal(t, Cancelled, wait(t, first))
	assert.Same(t, first, h.coord.Current())
	assert.False(t, h.tracker.HasSuggestion())
}

func TestInvalidRequestsAreCancelled(t *testing.T) {
	testCases := []struct {
		trigger     func(h *harness) *Request
		description string
	}{
		{func(h *harness) *Request {
			return h.coord.Trigger("file:///closed.go", at(0, 0), 0)
		}, "document closed"},
		{func(h *harness) *Request {
			return h.coord.TriggerDocument(h.doc, at(40, 0), 0)
		}, "position gone"},
		{func(h *harness) *Request {
			return h.coord.TriggerDocument(h.doc, at(0, 0), h.doc.Version()+3)
		}, "stale version"},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			h := newHarness(t, answer(item("a", "x")), WithFiles(files{}))

			req := tc.trigger(h)
			assert.Equal(t, Cancelled, wait(t, req))
			h.coord.Close()

			got, statuses := h.rec.snapshot()
			assert.Empty(t, got)
			assert.Empty(t, statuses)
			assert.Zero(t, h.client.calls())
		})
	}
}

func TestUnboundRequestResolvesByURI(t *testing.T) {
	doc := ghost.NewTextDocument(testURI, "quick")
	h := newHarness(t, answer(item("a", "Sort")), WithFiles(files{testURI: doc}))

	req := h.coord.Trigger(testURI, at(0, 5), doc.Version())
	assert.Equal(t, Completed, wait(t, req))
	assert.Equal(t, "quick", h.client.request(0).Text)
}

func TestDebounceCollapsesBursts(t *testing.T) {
	h := newHarness(t, answer(item("a", "x")), WithDebounce(100*time.Millisecond))

	first := h.coord.TriggerDocument(h.doc, at(0, 0), 0)
	second := h.coord.TriggerDocument(h.doc, at(0, 1), 0)

	assert.Equal(t, Cancelled, wait(t, first))
	assert.Equal(t, Completed, wait(t, second))
	h.coord.Close()
	assert.Equal(t, 1, h.client.calls())
	assert.Equal(t, at(0, 1), h.client.request(0).Position)
}

func TestCancelledBeforeDispatchIsDiscarded(t *testing.T) {
	var mu sync.Mutex
	var queued []func()
	dispatch := func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		queued = append(queued, fn)
	}

	h := newHarness(t, answer(item("a", "x")), WithDispatcher(dispatch))
	req := h.coord.TriggerDocument(h.doc, at(0, 0), 0)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(queued) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, Running, req.State())

	h.coord.Cancel()
	mu.Lock()
	queued[0]()
	mu.Unlock()

	assert.Equal(t, Cancelled, req.State())
	got, statuses := h.rec.snapshot()
	assert.Empty(t, got)
	assert.Empty(t, statuses)
	assert.False(t, h.tracker.HasSuggestion())
}

func TestRateLimitWaitIsCancellable(t *testing.T) {
	h := newHarness(t, answer(item("a", "x")), WithRateLimit(0.001, 1))

	first := h.coord.TriggerDocument(h.doc, at(0, 0), 0)
	assert.Equal(t, Completed, wait(t, first))

	second := h.coord.TriggerDocument(h.doc, at(0, 1), 0)
	require.Eventually(t, func() bool { return second.State() == Running }, 2*time.Second, 5*time.Millisecond)
	h.coord.Cancel()
	assert.Equal(t, Cancelled, wait(t, second))
	assert.Equal(t, 1, h.client.calls())
}

func TestCloseStopsEverything(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, _ int, _ ghost.Request) (*ghost.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	req := h.coord.TriggerDocument(h.doc, at(0, 0), 0)
	h.coord.Close()

	assert.Equal(t, Cancelled, req.State())
	assert.Nil(t, h.coord.TriggerDocument(h.doc, at(0, 0), 0))
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "timed-out", TimedOut.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.False(t, Running.Terminal())
	assert.True(t, Failed.Terminal())
	assert.Equal(t, "error", StatusError.String())
}
