package server

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/bastiangx/ghostserve/internal/logger"
	"github.com/bastiangx/ghostserve/pkg/coordinator"
	"github.com/bastiangx/ghostserve/pkg/session"
	"github.com/bastiangx/ghostserve/pkg/suggest"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/time/rate"
)

// ErrClosed is returned once the connection is gone.
var ErrClosed = errors.New("connection closed")

// DefaultRequestTimeout bounds one backend call. It stays below the
// coordinator's ceiling so a client sees the server's 504 first.
const DefaultRequestTimeout = 4 * time.Second

// Backend serves completions and takes feedback.
type Backend interface {
	coordinator.Client
	session.Feedback
}

// StatsReporter is implemented by backends that can describe themselves
// in health responses.
type StatsReporter interface {
	Stats() map[string]int
}

// Server handles the IPC for one client.
type Server struct {
	backend Backend
	dec     *msgpack.Decoder
	logger  *log.Logger
	timeout time.Duration

	wmu sync.Mutex
	enc *msgpack.Encoder

	mu      sync.Mutex
	limiter *rate.Limiter

	wg sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit bounds requests per second. Non-positive disables it.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) { s.setLimit(perSecond, burst) }
}

// WithRequestTimeout bounds each backend call.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a server reading messages from r and writing to w.
func NewServer(backend Backend, r io.Reader, w io.Writer, opts ...Option) *Server {
	s := &Server{
		backend: backend,
		dec:     msgpack.NewDecoder(r),
		enc:     msgpack.NewEncoder(w),
		timeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.New("server")
	}
	return s
}

// SetRateLimit changes the rate limit, for config reloads.
func (s *Server) SetRateLimit(perSecond float64) {
	s.setLimit(perSecond, int(perSecond)+1)
}

func (s *Server) setLimit(perSecond float64, burst int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if perSecond <= 0 {
		s.limiter = nil
		return
	}
	if burst < 1 {
		burst = 1
	}
	s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

func (s *Server) allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limiter == nil || s.limiter.Allow()
}

// Serve announces readiness and handles messages until the reader ends or
// ctx is done. Requests run concurrently; Serve waits for them to finish.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.wg.Wait()
	}()

	s.logger.Debug("Starting server")
	if err := s.send(Response{Status: StatusReady}); err != nil {
		return err
	}

	for {
		raw, err := s.dec.DecodeRaw()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "read message")
		}

		var msg Message
		if err := msgpack.Unmarshal(raw, &msg); err != nil {
			s.logger.Error("unmarshaling message", "err", err)
			s.sendError("", "invalid message", CodeBadRequest)
			continue
		}
		if !s.allow() {
			s.sendError(msg.ID, "rate limit exceeded", CodeRateLimited)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, msg)
		}()
	}
}

func (s *Server) handle(ctx context.Context, msg Message) {
	if msg.ID == "" {
		s.sendError("", "missing id", CodeBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	switch msg.Method {
	case MethodComplete:
		s.handleComplete(ctx, msg)
	case MethodAccept:
		if msg.Accept == "" {
			s.sendError(msg.ID, "missing candidate id", CodeBadRequest)
			return
		}
		s.reply(msg.ID, s.backend.NotifyAccepted(ctx, msg.Accept))
	case MethodReject:
		if len(msg.Reject) == 0 {
			s.sendError(msg.ID, "missing candidate ids", CodeBadRequest)
			return
		}
		s.reply(msg.ID, s.backend.NotifyRejected(ctx, msg.Reject))
	case MethodHealth:
		resp := Response{ID: msg.ID, Status: StatusOK}
		if r, ok := s.backend.(StatsReporter); ok {
			resp.Stats = r.Stats()
		}
		s.send(resp)
	default:
		s.sendError(msg.ID, "unknown method: "+msg.Method, CodeBadRequest)
	}
}

func (s *Server) handleComplete(ctx context.Context, msg Message) {
	req := msg.Complete
	if req == nil {
		s.sendError(msg.ID, "missing completion request", CodeBadRequest)
		return
	}
	if req.Offset < 0 || req.Offset > len(req.Text) {
		s.sendError(msg.ID, "offset outside text", CodeBadRequest)
		return
	}

	start := time.Now()
	result, err := s.backend.GetCompletions(ctx, *req)
	if err != nil {
		s.reply(msg.ID, err)
		return
	}
	resp := Response{ID: msg.ID, TimeTaken: time.Since(start).Microseconds()}
	if !result.Empty() {
		resp.Items = result.Items
		resp.Count = len(result.Items)
	}
	s.send(resp)
}

// reply sends an OK status or the error mapped to a code.
func (s *Server) reply(id string, err error) {
	if err == nil {
		s.send(Response{ID: id, Status: StatusOK})
		return
	}
	code := CodeInternal
	switch {
	case errors.Is(err, suggest.ErrInvalidRequest):
		code = CodeBadRequest
	case errors.Is(err, suggest.ErrUnknownCandidate):
		code = CodeNotFound
	case errors.Is(err, context.DeadlineExceeded):
		code = CodeTimeout
	}
	if code == CodeInternal {
		s.logger.Error("backend failed", "id", id, "err", err)
	}
	s.sendError(id, err.Error(), code)
}

func (s *Server) sendError(id, message string, code int) {
	s.send(Response{ID: id, Error: message, Code: code})
}

func (s *Server) send(resp Response) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.enc.Encode(resp); err != nil {
		s.logger.Error("writing response", "err", err)
		return errors.Wrap(err, "write response")
	}
	return nil
}
