package widgetclient

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Cache key scheme shared with every widget build. The keys are stable
// names; renaming one orphans whatever state existing installs have saved.
const (
	anonymousIDKey         = "support_anonymous_id"
	currentConversationKey = "support_current_conversation_id"
	messagesKeyPrefix      = "support_messages_"
)

// MessagesKey returns the cache key holding a conversation's message list.
func MessagesKey(conversationID string) string {
	return messagesKeyPrefix + conversationID
}

// FileCache persists cache entries as JSON files in one directory, one file
// per key. Writes are last-write-wins; the store serializes access.
type FileCache struct {
	dir string
}

// NewFileCache creates the cache directory if needed.
func NewFileCache(dir string) (*FileCache, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &FileCache{dir: dir}, nil
}

func (c *FileCache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Get returns the stored value for key, reporting a miss for keys that were
// never set. Unreadable entries count as misses.
func (c *FileCache) Get(key string) ([]byte, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *FileCache) Set(key string, value []byte) error {
	if err := os.WriteFile(c.path(key), value, 0o644); err != nil {
		return fmt.Errorf("write cache entry %s: %w", key, err)
	}
	return nil
}

// Delete removes the entry; deleting an absent key is not an error.
func (c *FileCache) Delete(key string) error {
	if err := os.Remove(c.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete cache entry %s: %w", key, err)
	}
	return nil
}
