// Package suggest is the local completion backend: a patricia trie of
// phrases ranked by frequency, a hot cache of recently accepted phrases,
// and a Provider that serves both as ghost-text candidates.
package suggest

// ICompleter defines the interface for phrase completion engines.
type ICompleter interface {
	// Complete returns up to limit phrases starting with prefix, best first.
	Complete(prefix string, limit int) []Suggestion

	// AddWord adds a phrase with its frequency.
	AddWord(word string, frequency int)

	// Promote records that word was accepted by the user.
	Promote(word string)

	// Stats returns statistics about the loaded phrases.
	Stats() map[string]int
}
