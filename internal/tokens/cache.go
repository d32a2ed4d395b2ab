package tokens

import (
	"crypto/sha256"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of distinct texts CachingCounter remembers.
const DefaultCacheSize = 1024

// CachingCounter memoises counts for texts that are counted repeatedly,
// such as canvas documents that are re-attached on every prompt.
// Only successful counts are cached.
type CachingCounter struct {
	next  Counter
	cache *lru.Cache[[sha256.Size]byte, int]
}

// NewCachingCounter wraps next with an LRU cache of the given size.
// A size <= 0 uses DefaultCacheSize.
func NewCachingCounter(next Counter, size int) (*CachingCounter, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[[sha256.Size]byte, int](size)
	if err != nil {
		return nil, fmt.Errorf("create token cache: %w", err)
	}
	return &CachingCounter{next: next, cache: cache}, nil
}

// CountText returns the cached count for text or delegates to the wrapped counter.
func (c *CachingCounter) CountText(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	key := sha256.Sum256([]byte(text))
	if n, ok := c.cache.Get(key); ok {
		return n, nil
	}
	n, err := c.next.CountText(text)
	if err != nil {
		return 0, err
	}
	c.cache.Add(key, n)
	return n, nil
}

// Len reports how many entries are cached.
func (c *CachingCounter) Len() int {
	return c.cache.Len()
}
