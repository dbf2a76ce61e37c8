package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chartmed-ai/karte/internal/model"
)

func TestDocCacheEvictsOldestFirst(t *testing.T) {
	c := newDocCache(2)
	c.put("a", model.DocumentOCR{TotalPages: 1})
	c.put("b", model.DocumentOCR{TotalPages: 2})

	// Reading does not refresh position: eviction follows insertion order.
	_, ok := c.get("a")
	require.True(t, ok)

	c.put("c", model.DocumentOCR{TotalPages: 3})

	_, ok = c.get("a")
	assert.False(t, ok)

	got, ok := c.get("b")
	require.True(t, ok)
	assert.Equal(t, 2, got.TotalPages)

	_, ok = c.get("c")
	assert.True(t, ok)
}

func TestDocCacheUpdateKeepsPosition(t *testing.T) {
	c := newDocCache(2)
	c.put("a", model.DocumentOCR{TotalPages: 1})
	c.put("b", model.DocumentOCR{TotalPages: 2})
	c.put("a", model.DocumentOCR{TotalPages: 9})

	got, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, 9, got.TotalPages)

	// "a" is still the oldest entry, so it goes first.
	c.put("c", model.DocumentOCR{TotalPages: 3})

	_, ok = c.get("a")
	assert.False(t, ok)
	_, ok = c.get("b")
	assert.True(t, ok)
}
