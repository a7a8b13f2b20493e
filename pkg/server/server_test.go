package server

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/bastiangx/ghostserve/internal/logger"
	"github.com/bastiangx/ghostserve/pkg/coordinator"
	"github.com/bastiangx/ghostserve/pkg/dictionary"
	"github.com/bastiangx/ghostserve/pkg/ghost"
	"github.com/bastiangx/ghostserve/pkg/suggest"
	"github.com/bastiangx/ghostserve/pkg/tracker"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

type fakeBackend struct {
	complete func(ctx context.Context, req ghost.Request) (*ghost.Result, error)
}

func (f *fakeBackend) GetCompletions(ctx context.Context, req ghost.Request) (*ghost.Result, error) {
	return f.complete(ctx, req)
}

func (f *fakeBackend) NotifyAccepted(context.Context, string) error   { return nil }
func (f *fakeBackend) NotifyRejected(context.Context, []string) error { return nil }

// connect runs a server for backend on in-memory pipes and returns a ready
// client.
func connect(t *testing.T, backend Backend, opts ...Option) *Client {
	t.Helper()
	clientR, serverW := io.Pipe()
	serverR, clientW := io.Pipe()

	opts = append([]Option{WithLogger(logger.Discard())}, opts...)
	srv := NewServer(backend, serverR, serverW, opts...)
	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(context.Background())
		serverW.Close()
	}()

	c := NewClient(clientR, clientW)
	c.SetLogger(logger.Discard())
	t.Cleanup(func() {
		c.Close()
		select {
		case err := <-served:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Error("server did not stop")
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, c.WaitReady(ctx))
	return c
}

func provider() *suggest.Provider {
	completer := suggest.NewCompleter()
	completer.Load([]dictionary.Entry{
		{Phrase: "quick", Frequency: 50},
		{Phrase: "quickSort", Frequency: 10},
	})
	p := suggest.NewProvider(completer, suggest.ProviderOptions{})
	p.SetLogger(logger.Discard())
	return p
}

func ctxTimeout(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func remoteCode(err error) int {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Code
	}
	return 0
}

func TestRoundTrip(t *testing.T) {
	c := connect(t, provider())
	ctx := ctxTimeout(t)

	res, err := c.GetCompletions(ctx, ghost.Request{
		URI:      "file:///a.go",
		Position: protocol.Position{Line: 0, Character: 3},
		Offset:   3,
		Version:  2,
		Text:     "qui",
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "ck", res.Items[0].DisplayText)
	assert.Equal(t, int32(2), res.Items[0].DocumentVersion)
	assert.Equal(t, protocol.Position{Line: 0, Character: 3}, res.Items[0].TriggerPosition)

	require.NoError(t, c.NotifyAccepted(ctx, res.Items[1].ID))
	err = c.NotifyAccepted(ctx, res.Items[1].ID)
	assert.Equal(t, CodeNotFound, remoteCode(err))
	require.NoError(t, c.NotifyRejected(ctx, []string{res.Items[0].ID}))

	stats, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats["totalWords"])
	assert.Equal(t, 1, stats["hotCacheWords"])
}

func TestEmptyCompletion(t *testing.T) {
	c := connect(t, provider())
	res, err := c.GetCompletions(ctxTimeout(t), ghost.Request{Text: "zz", Offset: 2})
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestValidation(t *testing.T) {
	c := connect(t, provider())
	ctx := ctxTimeout(t)

	testCases := []struct {
		msg         Message
		description string
	}{
		{Message{Method: "bogus"}, "unknown method"},
		{Message{Method: MethodComplete}, "missing request"},
		{Message{Method: MethodComplete, Complete: &ghost.Request{Text: "ab", Offset: 7}}, "offset outside text"},
		{Message{Method: MethodAccept}, "missing candidate"},
		{Message{Method: MethodReject}, "missing candidates"},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			_, err := c.call(ctx, tc.msg)
			assert.Equal(t, CodeBadRequest, remoteCode(err))
		})
	}
}

func TestBackendFailure(t *testing.T) {
	c := connect(t, &fakeBackend{complete: func(context.Context, ghost.Request) (*ghost.Result, error) {
		return nil, errors.New("model offline")
	}})
	_, err := c.GetCompletions(ctxTimeout(t), ghost.Request{})
	assert.Equal(t, CodeInternal, remoteCode(err))
	assert.Contains(t, err.Error(), "model offline")
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []coordinator.Status
}

func (r *statusRecorder) SetStatus(s coordinator.Status, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *statusRecorder) snapshot() []coordinator.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]coordinator.Status(nil), r.statuses...)
}

func slowBackend() *fakeBackend {
	return &fakeBackend{complete: func(ctx context.Context, _ ghost.Request) (*ghost.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
}

func TestServerTimeoutIsDeadline(t *testing.T) {
	assert.Less(t, DefaultRequestTimeout, coordinator.DefaultTimeout)

	c := connect(t, slowBackend(), WithRequestTimeout(30*time.Millisecond))
	_, err := c.GetCompletions(ctxTimeout(t), ghost.Request{})
	assert.Equal(t, CodeTimeout, remoteCode(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	c = connect(t, &fakeBackend{complete: func(context.Context, ghost.Request) (*ghost.Result, error) {
		return nil, errors.New("model offline")
	}})
	_, err = c.GetCompletions(ctxTimeout(t), ghost.Request{})
	assert.False(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRemoteTimeoutIsBenignForCoordinator(t *testing.T) {
	c := connect(t, slowBackend(), WithRequestTimeout(30*time.Millisecond))
	doc := ghost.NewTextDocument("file:///main.go", "qui")
	status := &statusRecorder{}

	coord := coordinator.New(c,
		coordinator.WithTracker(tracker.New()),
		coordinator.WithStatus(status),
		coordinator.WithTimeout(2*time.Second),
		coordinator.WithLogger(logger.Discard()),
	)
	defer coord.Close()

	req := coord.TriggerDocument(doc, protocol.Position{Line: 0, Character: 3}, doc.Version())
	require.NotNil(t, req)
	state, err := req.Wait(ctxTimeout(t))
	require.NoError(t, err)
	assert.Equal(t, coordinator.TimedOut, state)
	assert.Empty(t, status.snapshot())
}

func TestRateLimit(t *testing.T) {
	c := connect(t, provider(), WithRateLimit(0.001, 1))
	ctx := ctxTimeout(t)

	_, err := c.Health(ctx)
	require.NoError(t, err)
	_, err = c.Health(ctx)
	assert.Equal(t, CodeRateLimited, remoteCode(err))
}

func TestLateResponseIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	c := connect(t, &fakeBackend{complete: func(_ context.Context, req ghost.Request) (*ghost.Result, error) {
		if req.Text == "slow" {
			<-release
		}
		return &ghost.Result{Items: []ghost.Candidate{{ID: req.Text, DisplayText: "x"}}}, nil
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.GetCompletions(ctx, ghost.Request{Text: "slow"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	res, err := c.GetCompletions(ctxTimeout(t), ghost.Request{Text: "fast"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "fast", res.Items[0].ID)

	assert.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.pending) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestClosedConnection(t *testing.T) {
	clientR, serverW := io.Pipe()
	_, clientW := io.Pipe()
	c := NewClient(clientR, clientW)
	c.SetLogger(logger.Discard())

	serverW.Close()
	assert.Eventually(t, func() bool { return c.Err() != nil }, time.Second, 10*time.Millisecond)

	_, err := c.GetCompletions(context.Background(), ghost.Request{})
	assert.True(t, errors.Is(err, ErrClosed))
	assert.Error(t, c.WaitReady(context.Background()))
}

func TestCoordinatorOverIPC(t *testing.T) {
	c := connect(t, provider())
	doc := ghost.NewTextDocument("file:///main.go", "x := qui")
	tr := tracker.New()

	coord := coordinator.New(c, coordinator.WithTracker(tr), coordinator.WithLogger(logger.Discard()))
	defer coord.Close()

	req := coord.TriggerDocument(doc, protocol.Position{Line: 0, Character: 8}, doc.Version())
	require.NotNil(t, req)
	state, err := req.Wait(ctxTimeout(t))
	require.NoError(t, err)
	assert.Equal(t, coordinator.Completed, state)

	word, err := tr.NextWord()
	require.NoError(t, err)
	assert.Equal(t, "ck", word)
}
