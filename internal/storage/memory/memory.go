// Package memory keeps caches in process memory.
package memory

import (
	"context"
	"sync"

	"github.com/skyline93/offline/internal/offline"
)

// Storage is an in-memory offline.Storage.
type Storage struct {
	mu     sync.Mutex
	order  []string
	caches map[string]*Cache
}

// New returns an empty Storage.
func New() *Storage {
	return &Storage{caches: make(map[string]*Cache)}
}

// Open returns the cache for tag, creating it when needed.
func (s *Storage) Open(_ context.Context, tag string) (offline.Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.caches[tag]
	if !ok {
		c = &Cache{entries: make(map[offline.Key]*offline.Entry)}
		s.caches[tag] = c
		s.order = append(s.order, tag)
	}
	return c, nil
}

func (s *Storage) Has(_ context.Context, tag string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.caches[tag]
	return ok, nil
}

// Keys lists tags in creation order.
func (s *Storage) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.order...), nil
}

func (s *Storage) Delete(_ context.Context, tag string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.caches[tag]; !ok {
		return false, nil
	}
	delete(s.caches, tag)
	for i, t := range s.order {
		if t == tag {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *Storage) Close() error {
	return nil
}

// Cache is one in-memory generation.
type Cache struct {
	mu      sync.RWMutex
	order   []offline.Key
	entries map[offline.Key]*offline.Entry
}

func (c *Cache) Match(_ context.Context, req *offline.Request) (*offline.Response, bool, error) {
	if !req.IsGet() {
		return nil, false, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[offline.KeyFor(req)]
	if !ok || !e.Matches(req) {
		return nil, false, nil
	}
	return e.Response(), true, nil
}

func (c *Cache) Put(_ context.Context, req *offline.Request, resp *offline.Response) error {
	if err := offline.CheckPut(req, resp); err != nil {
		return err
	}
	e := offline.NewEntry(req, resp)
	k := offline.KeyFor(req)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[k]; !ok {
		c.order = append(c.order, k)
	}
	c.entries[k] = e
	return nil
}

func (c *Cache) Delete(_ context.Context, req *offline.Request) (bool, error) {
	k := offline.KeyFor(req)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[k]; !ok {
		return false, nil
	}
	delete(c.entries, k)
	for i, o := range c.order {
		if o == k {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Keys lists stored requests in insertion order.
func (c *Cache) Keys(_ context.Context) ([]*offline.Request, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	reqs := make([]*offline.Request, 0, len(c.order))
	for _, k := range c.order {
		req, err := c.entries[k].Request()
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
