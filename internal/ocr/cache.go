package ocr

import (
	"sync"

	"github.com/chartmed-ai/karte/internal/model"
)

// docCache memoizes OCR output by content hash. Eviction is insertion
// order rather than recency: recognition results are immutable and the
// cache only needs to keep re-uploads of recent files cheap.
type docCache struct {
	mu      sync.Mutex
	max     int
	order   []string
	entries map[string]model.DocumentOCR
}

func newDocCache(max int) *docCache {
	if max <= 0 {
		max = 1
	}
	return &docCache{
		max:     max,
		entries: make(map[string]model.DocumentOCR, max),
	}
}

func (c *docCache) get(key string) (model.DocumentOCR, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.entries[key]
	return doc, ok
}

func (c *docCache) put(key string, doc model.DocumentOCR) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = doc
		return
	}
	if len(c.entries) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.order = append(c.order, key)
	c.entries[key] = doc
}
