// Package cli is an interactive line-based driver for trying ghost-text
// completion against a live backend without an editor.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bastiangx/ghostserve/pkg/config"
	"github.com/bastiangx/ghostserve/pkg/coordinator"
	"github.com/bastiangx/ghostserve/pkg/ghost"
	"github.com/bastiangx/ghostserve/pkg/session"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// DocumentURI names the scratch document edited by the driver.
const DocumentURI = "file:///scratch.txt"

const help = `type text and press Enter to insert it at the cursor
  :a        accept the whole suggestion
  :w        accept the next word
  :l        accept the next line
  :n  :p    next / previous suggestion
  :x        discard the suggestion
  :d N      delete N characters before the cursor
  :nl       insert a line break
  :clear    start over
  :q        quit`

var (
	ghostStyle  = lipgloss.NewStyle().Faint(true)
	promptStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	countStyle = lipgloss.NewStyle().Italic(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#9893a5", Dark: "#6e6a86"})
)

// InputHandler reads editing commands and shows the resulting ghost text.
// Completion deliveries and command handling are serialized on mu, which
// plays the role of an editor's UI thread.
type InputHandler struct {
	mu      sync.Mutex
	manager *session.Manager
	sess    *session.Session
	doc     *ghost.TextDocument

	out  io.Writer
	wait time.Duration
}

// NewInputHandler creates a driver completing through client.
func NewInputHandler(client coordinator.Client, feedback session.Feedback, cfg *config.Config, out io.Writer) *InputHandler {
	h := &InputHandler{
		doc:  ghost.NewTextDocument(DocumentURI, ""),
		out:  out,
		wait: 2 * time.Second,
	}
	if cfg != nil {
		h.wait = cfg.Completion.Timeout() + cfg.Completion.Debounce()
	}
	h.manager = session.NewManager(client, cfg,
		session.WithFeedback(feedback),
		session.WithCoordinatorOptions(
			coordinator.WithDispatcher(h.dispatch),
			coordinator.WithStatus(h),
		),
	)
	h.sess = h.manager.Attach(DocumentURI, h.doc)
	return h
}

// Manager exposes the session manager, for config reloads.
func (h *InputHandler) Manager() *session.Manager {
	return h.manager
}

func (h *InputHandler) dispatch(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn()
}

// SetStatus reports service failures.
func (h *InputHandler) SetStatus(status coordinator.Status, err error) {
	if status == coordinator.StatusError {
		log.Warn("completion service error", "err", err)
	}
}

// Text returns the document contents.
func (h *InputHandler) Text() string {
	return h.doc.Text()
}

// Start runs the loop until in ends, ctx is done or the user quits.
func (h *InputHandler) Start(ctx context.Context, in io.Reader) error {
	defer h.manager.Close()

	fmt.Fprintln(h.out, promptStyle.Render("ghostserve try")+"  (:h for help)")
	scanner := bufio.NewScanner(in)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !scanner.Scan() {
			return errors.Wrap(scanner.Err(), "read input")
		}
		line := scanner.Text()
		if line == ":q" || line == ":quit" {
			return nil
		}

		h.mu.Lock()
		req, err := h.handle(line)
		h.mu.Unlock()
		if err != nil {
			fmt.Fprintln(h.out, "! "+err.Error())
			continue
		}
		if req != nil {
			waitCtx, cancel := context.WithTimeout(ctx, h.wait)
			state, _ := req.Wait(waitCtx)
			cancel()
			log.Debug("request settled", "state", state)
		}

		h.mu.Lock()
		h.render()
		h.mu.Unlock()
	}
}

// handle applies one input line. It runs with mu held.
func (h *InputHandler) handle(line string) (*coordinator.Request, error) {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case ":h", ":help":
		fmt.Fprintln(h.out, help)
		return nil, nil
	case ":a":
		item, err := h.sess.Accept()
		if err != nil {
			return nil, err
		}
		return nil, h.insert(item.DisplayText)
	case ":w":
		word, err := h.sess.AcceptNextWord()
		if err != nil {
			return nil, err
		}
		return nil, h.insert(word)
	case ":l":
		text, err := h.sess.AcceptLine()
		if err != nil {
			return nil, err
		}
		return nil, h.insert(text)
	case ":n":
		return nil, h.sess.Next()
	case ":p":
		return nil, h.sess.Prev()
	case ":x":
		h.sess.Discard()
		return nil, nil
	case ":d":
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil || n <= 0 {
			return nil, errors.Newf("usage: :d N")
		}
		return h.delete(n)
	case ":nl":
		return h.typeText("\n")
	case ":clear":
		h.doc.SetText("")
		return h.sess.Moved(h.cursor(), h.doc.Version()), nil
	}
	if line == "" {
		return nil, nil
	}
	return h.typeText(line)
}

func (h *InputHandler) cursor() protocol.Position {
	pos, err := h.doc.OffsetToPosition(len(h.doc.Text()))
	if err != nil {
		log.Error("cursor out of document", "err", err)
	}
	return pos
}

// insert puts accepted text at the cursor without reporting it as typed.
func (h *InputHandler) insert(text string) error {
	_, err := h.doc.Insert(len(h.doc.Text()), text)
	return err
}

func (h *InputHandler) typeText(text string) (*coordinator.Request, error) {
	version, err := h.doc.Insert(len(h.doc.Text()), text)
	if err != nil {
		return nil, err
	}
	return h.sess.Typed(text, h.cursor(), version), nil
}

func (h *InputHandler) delete(n int) (*coordinator.Request, error) {
	text := h.doc.Text()
	if n > ghost.RuneLen(text) {
		n = ghost.RuneLen(text)
	}
	if n == 0 {
		return nil, nil
	}
	_, version, err := h.doc.DeleteBefore(len(text), n)
	if err != nil {
		return nil, err
	}
	return h.sess.Deleted(n, h.cursor(), version), nil
}

// render prints the current line followed by the ghost text. It runs with
// mu held.
func (h *InputHandler) render() {
	text := h.doc.Text()
	current := text[strings.LastIndexByte(text, '\n')+1:]

	var b strings.Builder
	b.WriteString("> ")
	b.WriteString(current)
	if first, rest, ok := h.sess.Ghost(); ok {
		b.WriteString(ghostStyle.Render(first))
		if rest != "" {
			for _, l := range strings.Split(rest, "\n") {
				b.WriteString("\n  ")
				b.WriteString(ghostStyle.Render(l))
			}
		}
		if n := len(h.sess.Tracker().Live()); n > 1 {
			b.WriteString("  ")
			b.WriteString(countStyle.Render(fmt.Sprintf("[%d/%d]", h.sess.Tracker().Selected()+1, n)))
		}
	}
	fmt.Fprintln(h.out, b.String())
}
