package suggest

import (
	"math"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"
)

// DefaultHotWords bounds the hot cache.
const DefaultHotWords = 512

// hotEntry is stored in the hot trie under the lowercased phrase.
type hotEntry struct {
	phrase string
	uses   int
}

// HotCache keeps recently accepted phrases in a small trie searched before
// the main one. The least recently used phrase is evicted when full.
type HotCache struct {
	hotTrie     *patricia.Trie
	accessTime  map[string]int64
	accessCount int64
	hits        int
	maxWords    int
	mu          sync.Mutex
}

// NewHotCache creates a cache holding at most maxWords phrases.
func NewHotCache(maxWords int) *HotCache {
	if maxWords <= 0 {
		maxWords = DefaultHotWords
	}
	return &HotCache{
		hotTrie:    patricia.NewTrie(),
		accessTime: make(map[string]int64, maxWords),
		maxWords:   maxWords,
	}
}

// Promote records a use of phrase under key.
func (hc *HotCache) Promote(key, phrase string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	if item := hc.hotTrie.Get(patricia.Prefix(key)); item != nil {
		entry := item.(*hotEntry)
		entry.uses++
		entry.phrase = phrase
	} else {
		if len(hc.accessTime) >= hc.maxWords {
			hc.evictLRU()
		}
		hc.hotTrie.Insert(patricia.Prefix(key), &hotEntry{phrase: phrase, uses: 1})
	}
	hc.markAccessed(key)
}

// Search returns the cached phrases whose key extends lowerPrefix, with
// how often each was accepted.
func (hc *HotCache) Search(lowerPrefix string) []Suggestion {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	var results []Suggestion
	err := hc.hotTrie.VisitSubtree(patricia.Prefix(lowerPrefix), func(p patricia.Prefix, item patricia.Item) error {
		key := string(p)
		if key == lowerPrefix {
			return nil
		}
		entry := item.(*hotEntry)
		hc.markAccessed(key)
		results = append(results, Suggestion{Word: entry.phrase, Frequency: entry.uses, Hot: true})
		return nil
	})
	if err != nil {
		log.Errorf("Error searching hot cache: %v", err)
	}
	if len(results) > 0 {
		hc.hits++
	}
	return results
}

// Len returns the number of cached phrases.
func (hc *HotCache) Len() int {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	return len(hc.accessTime)
}

func (hc *HotCache) Stats() map[string]int {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	return map[string]int{
		"hotCacheWords": len(hc.accessTime),
		"maxHotWords":   hc.maxWords,
		"hotCacheHits":  hc.hits,
	}
}

func (hc *HotCache) markAccessed(key string) {
	hc.accessCount++
	hc.accessTime[key] = hc.accessCount
}

func (hc *HotCache) evictLRU() {
	var oldest string
	oldestTime := int64(math.MaxInt64)
	for key, t := range hc.accessTime {
		if t < oldestTime {
			oldestTime = t
			oldest = key
		}
	}
	if oldest == "" {
		return
	}
	delete(hc.accessTime, oldest)
	hc.hotTrie.Delete(patricia.Prefix(oldest))
	log.Debugf("Evicted '%s' from hot cache", oldest)
}
