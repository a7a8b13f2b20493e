package suggest

import (
	"context"
	"sync"
	"unicode/utf8"

	"github.com/bastiangx/ghostserve/internal/logger"
	"github.com/bastiangx/ghostserve/internal/utils"
	"github.com/bastiangx/ghostserve/pkg/boundary"
	"github.com/bastiangx/ghostserve/pkg/config"
	"github.com/bastiangx/ghostserve/pkg/ghost"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// maxIssued bounds how many handed-out candidates are remembered for
// feedback.
const maxIssued = 4096

var (
	// ErrInvalidRequest is returned for requests that cannot be served.
	ErrInvalidRequest = errors.New("invalid completion request")
	// ErrUnknownCandidate is returned for feedback about a candidate that
	// was never issued or was already settled.
	ErrUnknownCandidate = errors.New("unknown candidate")
)

// ProviderOptions bound what a Provider completes.
type ProviderOptions struct {
	MaxItems  int
	MinPrefix int
	MaxPrefix int
}

// OptionsFromConfig builds ProviderOptions from the server section.
func OptionsFromConfig(s config.ServerConfig) ProviderOptions {
	return ProviderOptions{MaxItems: s.MaxItems, MinPrefix: s.MinPrefix, MaxPrefix: s.MaxPrefix}
}

// Provider completes the word before the cursor from an ICompleter and
// learns from accepted candidates.
type Provider struct {
	engine ICompleter
	logger *log.Logger

	mu     sync.Mutex
	opts   ProviderOptions
	issued map[string]string
	order  []string
}

// NewProvider creates a provider over engine.
func NewProvider(engine ICompleter, opts ProviderOptions) *Provider {
	return &Provider{
		engine: engine,
		logger: logger.New("suggest"),
		opts:   normalize(opts),
		issued: make(map[string]string),
	}
}

func normalize(o ProviderOptions) ProviderOptions {
	def := OptionsFromConfig(config.DefaultConfig().Server)
	if o.MaxItems <= 0 {
		o.MaxItems = def.MaxItems
	}
	if o.MinPrefix < 1 {
		o.MinPrefix = def.MinPrefix
	}
	if o.MaxPrefix < o.MinPrefix {
		o.MaxPrefix = def.MaxPrefix
	}
	return o
}

// SetOptions replaces the options for future requests.
func (p *Provider) SetOptions(opts ProviderOptions) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opts = normalize(opts)
}

// Options returns the options in effect.
func (p *Provider) Options() ProviderOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts
}

// SetLogger replaces the logger.
func (p *Provider) SetLogger(l *log.Logger) {
	p.logger = l
}

// Prefix returns the word run ending at byte offset of text, and whether
// the cursor sits inside a word, in which case nothing should be completed.
func Prefix(text string, offset int) (prefix string, midWord bool, err error) {
	if offset < 0 || offset > len(text) {
		return "", false, errors.Wrapf(ErrInvalidRequest, "offset %d outside text", offset)
	}
	if offset < len(text) && !utf8.RuneStart(text[offset]) {
		return "", false, errors.Wrapf(ErrInvalidRequest, "offset %d splits a character", offset)
	}
	before, after := text[:offset], text[offset:]
	if run, class, ok := boundary.LeadingRun(after); ok && class == boundary.Word && run != "" {
		midWord = true
	}
	return boundary.TrailingRun(before, boundary.Word), midWord, nil
}

// GetCompletions returns candidates completing the word before the cursor.
func (p *Provider) GetCompletions(ctx context.Context, req ghost.Request) (*ghost.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix, midWord, err := Prefix(req.Text, req.Offset)
	if err != nil {
		return nil, err
	}

	opts := p.Options()
	n := ghost.RuneLen(prefix)
	if midWord || n < opts.MinPrefix || n > opts.MaxPrefix || !utils.IsValidPrefix(prefix) {
		return &ghost.Result{}, nil
	}

	start := req.Position
	if w := protocol.UInteger(ghost.Width(prefix)); start.Character >= w {
		start.Character -= w
	} else {
		start.Character = 0
	}

	suggestions := p.engine.Complete(prefix, opts.MaxItems)
	items := make([]ghost.Candidate, 0, len(suggestions))
	for _, s := range suggestions {
		rest, ok := ghost.SliceRunes(s.Word, n)
		if !ok || rest == "" {
			continue
		}
		items = append(items, ghost.Candidate{
			ID:              uuid.NewString(),
			InsertText:      s.Word,
			DisplayRange:    protocol.Range{Start: start, End: req.Position},
			DisplayText:     rest,
			TriggerPosition: req.Position,
			DocumentVersion: req.Version,
		})
	}
	p.remember(items)

	p.logger.Debug("completed", "prefix", prefix, "candidates", len(items))
	return &ghost.Result{Items: items}, nil
}

func (p *Provider) remember(items []ghost.Candidate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range items {
		p.issued[c.ID] = c.InsertText
		p.order = append(p.order, c.ID)
	}
	for len(p.order) > maxIssued {
		delete(p.issued, p.order[0])
		p.order = p.order[1:]
	}
}

func (p *Provider) settle(id string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	phrase, ok := p.issued[id]
	delete(p.issued, id)
	return phrase, ok
}

// NotifyAccepted promotes the phrase of candidate id.
func (p *Provider) NotifyAccepted(_ context.Context, id string) error {
	phrase, ok := p.settle(id)
	if !ok {
		return errors.Wrapf(ErrUnknownCandidate, "accept %s", id)
	}
	p.engine.Promote(phrase)
	p.logger.Debug("accepted", "phrase", phrase)
	return nil
}

// NotifyRejected forgets the given candidates.
func (p *Provider) NotifyRejected(_ context.Context, ids []string) error {
	settled := 0
	for _, id := range ids {
		if _, ok := p.settle(id); ok {
			settled++
		}
	}
	p.logger.Debug("rejected", "candidates", len(ids), "known", settled)
	return nil
}

// Stats reports engine statistics plus outstanding candidates.
func (p *Provider) Stats() map[string]int {
	stats := p.engine.Stats()
	p.mu.Lock()
	stats["issuedCandidates"] = len(p.issued)
	p.mu.Unlock()
	return stats
}
