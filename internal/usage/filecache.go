package usage

import (
	"context"

	"github.com/lugia19/claude-counter/internal/store"
)

// FileKind distinguishes the two attachment categories the sidebar shows.
type FileKind string

const (
	ProjectFile FileKind = "project"
	ContentFile FileKind = "content"
)

// FileKey returns the store key for a file's cached token count. A missing
// conversation id is written as "null", matching keys the browser version
// produced outside a conversation.
func FileKey(kind FileKind, conversationID, filename string) string {
	if conversationID == "" {
		conversationID = "null"
	}
	return Namespace + "_" + string(kind) + "_" + conversationID + "_" + filename
}

// FileCache stores measured file token counts. Entries are never
// invalidated: a file is treated as immutable once it has been seen.
type FileCache struct {
	store store.Store
}

// NewFileCache returns a cache over s.
func NewFileCache(s store.Store) *FileCache {
	return &FileCache{store: s}
}

// Get returns the cached count for a file.
func (c *FileCache) Get(ctx context.Context, kind FileKind, conversationID, filename string) (int64, bool, error) {
	var tokens int64
	ok, err := store.GetJSON(ctx, c.store, FileKey(kind, conversationID, filename), &tokens)
	return tokens, ok, err
}

// Put caches a file's count. Zero counts are not cached so a file whose
// content failed to render is measured again next time.
func (c *FileCache) Put(ctx context.Context, kind FileKind, conversationID, filename string, tokens int64) error {
	if tokens <= 0 {
		return nil
	}
	return store.SetJSON(ctx, c.store, FileKey(kind, conversationID, filename), tokens)
}
