package sabitcms

import (
	"context"
	"sync"
	"time"

	"github.com/eringen/sabitcms/content"
)

// PostCache is an in-memory TTL cache of published posts backing the RSS
// feed and the sitemap. Rendered pages live in the build cache instead.
type PostCache struct {
	mu      sync.RWMutex
	posts   []content.Post
	fetched time.Time
	ttl     time.Duration
	store   *Store
}

// NewPostCache creates a PostCache backed by the given Store.
func NewPostCache(s *Store, ttl time.Duration) *PostCache {
	return &PostCache{store: s, ttl: ttl}
}

func (c *PostCache) valid() bool {
	return c.posts != nil && time.Since(c.fetched) < c.ttl
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *PostCache) Invalidate() {
	c.mu.Lock()
	c.posts = nil
	c.mu.Unlock()
}

// Published returns published posts, newest first, loading them from the
// store when the cache is empty or expired.
// It tries a read lock first; only takes a write lock if a reload is needed.
func (c *PostCache) Published(ctx context.Context) ([]content.Post, error) {
	c.mu.RLock()
	if c.valid() {
		posts := c.posts
		c.mu.RUnlock()
		return posts, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid() {
		return c.posts, nil
	}
	posts, err := c.store.ListPublishedPosts(ctx)
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []content.Post{}
	}
	c.posts = posts
	c.fetched = time.Now()
	return c.posts, nil
}
