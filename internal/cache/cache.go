// Package cache provides thread-safe generic caching functionality and markdown rendering cache.
package cache

import "sync"

type Cache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
	limit int
}

func NewCache[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		items: make(map[K]V),
	}
}

// NewBoundedCache drops every entry once limit is reached.
func NewBoundedCache[K comparable, V any](limit int) *Cache[K, V] {
	c := NewCache[K, V]()
	c.limit = limit
	return c
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.items[key]
	return val, ok
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists && c.limit > 0 && len(c.items) >= c.limit {
		c.items = make(map[K]V)
	}
	c.items[key] = value
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]V)
}

// RenderedContent represents cached rendered markdown with HTML and extra data.
type RenderedContent struct {
	HTML  []byte
	Extra interface{}
}

// Drafts change on every keystroke, so old renders are dropped wholesale.
const renderedLimit = 256

var renderedMarkdownCache = NewBoundedCache[string, *RenderedContent](renderedLimit)

func GetRenderedMarkdown(contentHash string) (*RenderedContent, bool) {
	return renderedMarkdownCache.Get(contentHash)
}

func SetRenderedMarkdown(contentHash string, html []byte, extra interface{}) {
	renderedMarkdownCache.Set(contentHash, &RenderedContent{
		HTML:  html,
		Extra: extra,
	})
}

func ClearRenderedMarkdownCache() {
	renderedMarkdownCache.Clear()
}

func RenderedMarkdownLen() int {
	return renderedMarkdownCache.Len()
}
