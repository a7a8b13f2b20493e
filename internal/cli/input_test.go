package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/bastiangx/ghostserve/pkg/config"
	"github.com/bastiangx/ghostserve/pkg/dictionary"
	"github.com/bastiangx/ghostserve/pkg/suggest"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetLevel(log.FatalLevel)
}

func run(t *testing.T, cfg *config.Config, lines ...string) (*InputHandler, string) {
	t.Helper()
	completer := suggest.NewCompleter()
	completer.Load([]dictionary.Entry{
		{Phrase: "quick brown fox", Frequency: 9},
		{Phrase: "quiet", Frequency: 5},
	})
	provider := suggest.NewProvider(completer, suggest.ProviderOptions{})

	var out bytes.Buffer
	h := NewInputHandler(provider, provider, cfg, &out)
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	require.NoError(t, h.Start(context.Background(), in))
	return h, out.String()
}

func TestTypeAndAccept(t *testing.T) {
	h, out := run(t, nil, "qui", ":a")
	assert.Contains(t, out, "> quick brown fox")
	assert.Contains(t, out, "[1/2]")
	assert.Equal(t, "quick brown fox", h.Text())
}

func TestPartialAcceptAndCycle(t *testing.T) {
	h, _ := run(t, nil, "qui", ":w", ":w", ":q", "ignored")
	assert.Equal(t, "quick ", h.Text())

	h, _ = run(t, nil, "qui", ":n", ":a")
	assert.Equal(t, "quiet", h.Text())
}

func TestTypingNarrowsAndDeleting(t *testing.T) {
	h, out := run(t, nil, "qui", "ck", ":d 1", ":a")
	assert.Contains(t, out, "> quick brown fox")
	assert.Equal(t, "quick brown fox", h.Text())
}

func TestErrorsAreReported(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Capabilities.Cycle = false

	h, out := run(t, cfg, ":a", "qui", ":n", ":d x", ":x", ":a")
	assert.Contains(t, out, "! no suggestion")
	assert.Contains(t, out, "not supported")
	assert.Contains(t, out, "usage: :d N")
	assert.Equal(t, "qui", h.Text())
}

func TestLineBreaksAndClear(t *testing.T) {
	h, out := run(t, nil, "a", ":nl", "qu", ":clear", ":h")
	assert.Contains(t, out, "accept the next word")
	assert.Empty(t, h.Text())
}
