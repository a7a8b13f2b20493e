package server

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/bastiangx/ghostserve/internal/logger"
	"github.com/bastiangx/ghostserve/pkg/ghost"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// Client talks to a Server. It implements the coordinator's completion
// client and the session feedback interface, so a session can run against
// a ghostserve process.
type Client struct {
	dec    *msgpack.Decoder
	logger *log.Logger

	wmu sync.Mutex
	enc *msgpack.Encoder

	mu      sync.Mutex
	pending map[string]chan Response
	err     error

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}

	closer io.Closer
	cmd    *exec.Cmd
}

// NewClient starts reading responses from r and writes requests to w.
func NewClient(r io.Reader, w io.Writer) *Client {
	c := &Client{
		dec:     msgpack.NewDecoder(r),
		enc:     msgpack.NewEncoder(w),
		logger:  logger.New("client"),
		pending: make(map[string]chan Response),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
	if closer, ok := w.(io.Closer); ok {
		c.closer = closer
	}
	go c.readLoop()
	return c
}

// Spawn starts a server process and connects to its stdin and stdout.
// Its stderr is passed through.
func Spawn(ctx context.Context, path string, args ...string) (*Client, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "stdout pipe")
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "start %s", path)
	}

	c := NewClient(stdout, stdin)
	c.cmd = cmd
	return c, nil
}

// SetLogger replaces the logger.
func (c *Client) SetLogger(l *log.Logger) {
	c.logger = l
}

func (c *Client) readLoop() {
	for {
		var resp Response
		if err := c.dec.Decode(&resp); err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrClosed
			}
			c.fail(err)
			return
		}
		if resp.ID == "" {
			if resp.Status == StatusReady {
				c.readyOnce.Do(func() { close(c.ready) })
			} else if resp.Error != "" {
				c.logger.Warn("server error without request", "code", resp.Code, "err", resp.Error)
			}
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("discarding late response", "id", resp.ID)
			continue
		}
		ch <- resp
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	c.err = err
	close(c.done)
}

// Err returns why the connection ended, or nil while it is alive.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// WaitReady blocks until the server announced readiness.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-c.done:
		return errors.Wrap(c.Err(), "waiting for server")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call sends msg and waits for its response. When ctx ends first the
// request is forgotten and its response, if any, is discarded.
func (c *Client) call(ctx context.Context, msg Message) (Response, error) {
	msg.ID = uuid.NewString()
	ch := make(chan Response, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return Response{}, errors.Wrap(ErrClosed, err.Error())
	}
	c.pending[msg.ID] = ch
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
	}

	c.wmu.Lock()
	err := c.enc.Encode(&msg)
	c.wmu.Unlock()
	if err != nil {
		forget()
		return Response{}, errors.Wrapf(err, "send %s", msg.Method)
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return resp, &RemoteError{Code: resp.Code, Message: resp.Error}
		}
		return resp, nil
	case <-ctx.Done():
		forget()
		return Response{}, ctx.Err()
	case <-c.done:
		forget()
		return Response{}, ErrClosed
	}
}

// GetCompletions asks the server for candidates.
func (c *Client) GetCompletions(ctx context.Context, req ghost.Request) (*ghost.Result, error) {
	resp, err := c.call(ctx, Message{Method: MethodComplete, Complete: &req})
	if err != nil {
		return nil, err
	}
	return &ghost.Result{Items: resp.Items}, nil
}

// NotifyAccepted reports an accepted candidate.
func (c *Client) NotifyAccepted(ctx context.Context, id string) error {
	_, err := c.call(ctx, Message{Method: MethodAccept, Accept: id})
	return err
}

// NotifyRejected reports discarded candidates.
func (c *Client) NotifyRejected(ctx context.Context, ids []string) error {
	_, err := c.call(ctx, Message{Method: MethodReject, Reject: ids})
	return err
}

// Health returns the server's statistics.
func (c *Client) Health(ctx context.Context) (map[string]int, error) {
	resp, err := c.call(ctx, Message{Method: MethodHealth})
	if err != nil {
		return nil, err
	}
	return resp.Stats, nil
}

// Close closes the request stream and, for spawned servers, waits for the
// process to exit.
func (c *Client) Close() error {
	var err error
	if c.closer != nil {
		err = c.closer.Close()
	}
	if c.cmd != nil {
		// the server exits on EOF; drain its output before reaping it
		<-c.done
		if werr := c.cmd.Wait(); werr != nil {
			err = errors.CombineErrors(err, werr)
		}
	}
	return err
}
