package suggest

import (
	"sort"
	"strings"
	"sync"

	"github.com/bastiangx/ghostserve/internal/utils"
	"github.com/bastiangx/ghostserve/pkg/dictionary"
	"github.com/bastiangx/ghostserve/pkg/ghost"
	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"
)

var stringPool = sync.Map{}

func internString(s string) string {
	if cached, ok := stringPool.Load(s); ok {
		return cached.(string)
	}
	stringPool.Store(s, s)
	return s
}

// Suggestion is one completed phrase. Word starts with the typed prefix
// exactly as typed.
type Suggestion struct {
	Word      string
	Frequency int
	Hot       bool
}

// entry is stored in the trie under the lowercased phrase.
type entry struct {
	phrase    string
	frequency int
}

// Completer looks up phrases by case-insensitive prefix.
type Completer struct {
	mu           sync.RWMutex
	trie         *patricia.Trie
	hotCache     *HotCache
	totalWords   int
	maxFrequency int
	minFrequency int
}

// CompleterOption configures a Completer.
type CompleterOption func(*Completer)

// WithMinFrequency hides phrases rarer than n.
func WithMinFrequency(n int) CompleterOption {
	return func(c *Completer) { c.minFrequency = n }
}

// WithHotCache sets the hot cache size.
func WithHotCache(maxWords int) CompleterOption {
	return func(c *Completer) { c.hotCache = NewHotCache(maxWords) }
}

// NewCompleter creates an empty completer.
func NewCompleter(opts ...CompleterOption) *Completer {
	c := &Completer{trie: patricia.NewTrie()}
	for _, opt := range opts {
		opt(c)
	}
	if c.hotCache == nil {
		c.hotCache = NewHotCache(DefaultHotWords)
	}
	return c
}

// Load adds every dictionary entry.
func (c *Completer) Load(entries []dictionary.Entry) {
	for _, e := range entries {
		c.AddWord(e.Phrase, e.Frequency)
	}
	log.Debugf("Completer holds %d phrases", c.Stats()["totalWords"])
}

// AddWord adds word, keeping the higher frequency of duplicates.
func (c *Completer) AddWord(word string, frequency int) {
	key := strings.ToLower(word)
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if item := c.trie.Get(patricia.Prefix(key)); item != nil {
		existing := item.(*entry)
		if frequency > existing.frequency {
			existing.frequency = frequency
			existing.phrase = internString(word)
		}
	} else {
		c.trie.Insert(patricia.Prefix(key), &entry{phrase: internString(word), frequency: frequency})
		c.totalWords++
	}
	if frequency > c.maxFrequency {
		c.maxFrequency = frequency
	}
}

// Promote moves word into the hot cache, adding it when unknown.
func (c *Completer) Promote(word string) {
	key := strings.ToLower(word)
	if key == "" {
		return
	}
	c.mu.RLock()
	known := c.trie.Get(patricia.Prefix(key)) != nil
	c.mu.RUnlock()
	if !known {
		c.AddWord(word, 1)
	}
	c.hotCache.Promote(key, word)
}

// Complete returns up to limit phrases extending prefix. Hot phrases come
// first, then the trie by descending frequency. A non-positive limit means
// no limit.
func (c *Completer) Complete(prefix string, limit int) []Suggestion {
	lowerPrefix := strings.ToLower(prefix)
	if lowerPrefix == "" {
		return nil
	}

	hot := c.hotCache.Search(lowerPrefix)
	sort.SliceStable(hot, func(i, j int) bool { return hot[i].Frequency > hot[j].Frequency })

	var found []Suggestion
	c.mu.RLock()
	err := c.trie.VisitSubtree(patricia.Prefix(lowerPrefix), func(p patricia.Prefix, item patricia.Item) error {
		if string(p) == lowerPrefix {
			return nil
		}
		e := item.(*entry)
		if e.frequency < c.minFrequency {
			return nil
		}
		found = append(found, Suggestion{Word: e.phrase, Frequency: e.frequency})
		return nil
	})
	c.mu.RUnlock()
	if err != nil {
		log.Errorf("Error visiting trie subtree: %v", err)
		return nil
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].Frequency != found[j].Frequency {
			return found[i].Frequency > found[j].Frequency
		}
		return found[i].Word < found[j].Word
	})

	filter := utils.NewSuggestionFilter(prefix)
	n := ghost.RuneLen(prefix)
	results := make([]Suggestion, 0, len(hot)+len(found))
	for _, s := range append(hot, found...) {
		if limit > 0 && len(results) >= limit {
			break
		}
		if !filter.ShouldInclude(s.Word) {
			continue
		}
		rest, ok := ghost.SliceRunes(s.Word, n)
		if !ok {
			continue
		}
		s.Word = prefix + rest
		results = append(results, s)
	}
	return results
}

func (c *Completer) Stats() map[string]int {
	c.mu.RLock()
	stats := map[string]int{
		"totalWords":   c.totalWords,
		"maxFrequency": c.maxFrequency,
	}
	c.mu.RUnlock()
	for k, v := range c.hotCache.Stats() {
		stats[k] = v
	}
	return stats
}
