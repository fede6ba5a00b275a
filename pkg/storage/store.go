// Package storage provides the persistent key-value partitions the pipeline
// relies on: a "sync" partition for user-facing settings and credentials,
// backed by a JSON file, and a "local" partition for high-churn, tab-scoped
// runtime state, backed by sqlite.
//
// Values are JSON-encoded. Writes are last-write-wins; there are no locks or
// transactions spanning keys.
package storage

import "fmt"

// Store is the uniform key-value contract shared by both partitions.
type Store interface {
	// Get decodes the value at key into v. The bool reports whether the key
	// existed; a missing key is not an error.
	Get(key string, v interface{}) (bool, error)

	// Set encodes v and stores it at key, replacing any previous value.
	Set(key string, v interface{}) error

	// Delete removes key. Deleting a missing key is a no-op.
	Delete(key string) error

	// Keys returns all keys with the given prefix.
	Keys(prefix string) ([]string, error)

	// Close releases the underlying resources.
	Close() error
}

// Well-known sync partition keys.
const (
	KeyCredentials   = "credentials"   // map[platformID]Credential
	KeyCustomPrompts = "customPrompts" // map[contentType]Prompt
)

// Well-known local partition keys and prefixes.
const (
	KeyChatSessions = "chatSessions" // map[sessionID]ChatSession
	KeyTokenStats   = "tokenStats"   // map[sessionID]TokenUsage

	prefixTabContent = "extractedContent:"
	prefixTabUIState = "tabUIState:"
)

// TabContentKey is the tab-scoped key holding the active extracted content
// record. Keying by tab id is what keeps concurrent extractions from
// different tabs from seeing each other's records.
func TabContentKey(tabID int) string {
	return fmt.Sprintf("%s%d", prefixTabContent, tabID)
}

// TabUIStateKey is the tab-scoped key holding the tab's UI state row.
func TabUIStateKey(tabID int) string {
	return fmt.Sprintf("%s%d", prefixTabUIState, tabID)
}
