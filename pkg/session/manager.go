package session

import (
	"sync"

	"github.com/bastiangx/ghostserve/internal/logger"
	"github.com/bastiangx/ghostserve/pkg/config"
	"github.com/bastiangx/ghostserve/pkg/coordinator"
	"github.com/bastiangx/ghostserve/pkg/ghost"
	"github.com/bastiangx/ghostserve/pkg/tracker"
	"github.com/charmbracelet/log"
)

// Manager creates a Session when an editor context attaches and destroys
// it on detach. Sessions share the client and feedback but no state.
type Manager struct {
	client   coordinator.Client
	feedback Feedback
	coordOpt []coordinator.Option
	logger   *log.Logger

	mu       sync.RWMutex
	cfg      *config.Config
	sessions map[string]*Session
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithFeedback sets where accept and reject notifications go.
func WithFeedback(f Feedback) ManagerOption {
	return func(m *Manager) { m.feedback = f }
}

// WithCoordinatorOptions adds options applied to every coordinator, such
// as the auth predicate, status sink or dispatcher.
func WithCoordinatorOptions(opts ...coordinator.Option) ManagerOption {
	return func(m *Manager) { m.coordOpt = append(m.coordOpt, opts...) }
}

// WithLogger sets the logger shared by sessions.
func WithLogger(l *log.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager. A nil cfg means defaults.
func NewManager(client coordinator.Client, cfg *config.Config, opts ...ManagerOption) *Manager {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	m := &Manager{
		client:   client,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.New("session")
	}
	return m
}

// FormatFor resolves formatting from the current config.
func (m *Manager) FormatFor(uri string) ghost.FormatOptions {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.FormatFor(uri)
}

// Resolve finds the document of an attached context.
func (m *Manager) Resolve(uri string) (ghost.Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[uri]
	if !ok {
		return nil, false
	}
	doc := s.Document()
	return doc, doc != nil
}

// Attach returns the session of uri, creating it if needed. A non-nil doc
// is bound to the session, replacing any earlier one. doc may be nil, in
// which case requests resolve the document by URI when they run.
func (m *Manager) Attach(uri string, doc ghost.Document) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[uri]; ok {
		if doc != nil {
			s.bind(doc)
			m.logger.Debug("document bound", "uri", uri)
		}
		return s
	}

	t := tracker.New()
	c := m.cfg.Completion
	opts := []coordinator.Option{
		coordinator.WithTracker(t),
		coordinator.WithFormats(m),
		coordinator.WithFiles(m),
		coordinator.WithTimeout(c.Timeout()),
		coordinator.WithDebounce(c.Debounce()),
		coordinator.WithRateLimit(c.MaxRequestsPerSecond, 1),
		coordinator.WithLogger(m.logger.WithPrefix("coordinator")),
	}
	opts = append(opts, m.coordOpt...)

	s := &Session{
		uri:      uri,
		tracker:  t,
		coord:    coordinator.New(m.client, opts...),
		feedback: m.feedback,
		logger:   m.logger,
		caps:     m.cfg.Capabilities,
	}
	s.bind(doc)
	m.sessions[uri] = s
	m.logger.Debug("session attached", "uri", uri)
	return s
}

// Get returns the session of uri.
func (m *Manager) Get(uri string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[uri]
	return s, ok
}

// Len returns the number of attached sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Unbind drops the document of uri, as when its file is closed. The
// session and its candidates stay; pending requests find no document and
// are cancelled.
func (m *Manager) Unbind(uri string) {
	m.mu.RLock()
	s, ok := m.sessions[uri]
	m.mu.RUnlock()
	if ok {
		s.bind(nil)
		m.logger.Debug("document unbound", "uri", uri)
	}
}

// Detach closes and forgets the session of uri.
func (m *Manager) Detach(uri string) {
	m.mu.Lock()
	s, ok := m.sessions[uri]
	delete(m.sessions, uri)
	m.mu.Unlock()

	if ok {
		s.Close()
		m.logger.Debug("session detached", "uri", uri)
	}
}

// Apply switches to cfg for future sessions and reconfigures existing ones.
func (m *Manager) Apply(cfg *config.Config) {
	if cfg == nil {
		return
	}
	m.mu.Lock()
	m.cfg = cfg
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	c := cfg.Completion
	for _, s := range sessions {
		s.coord.Configure(c.Timeout(), c.Debounce(), c.MaxRequestsPerSecond)
		s.setCapabilities(cfg.Capabilities)
	}
	m.logger.Debug("config applied", "sessions", len(sessions))
}

// Close detaches every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
