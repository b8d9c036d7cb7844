package ocr

import (
	"os/exec"
	"sync"
)

// Handle is a resolved engine: the binary to run and what it reported about itself.
type Handle struct {
	Engine  string
	Binary  string
	Version string
}

// HandleKey identifies a cached handle. Langs is the comma-joined language list.
type HandleKey struct {
	Engine string
	Binary string
	Langs  string
	GPU    bool
}

// HandleCache memoizes engine handles for the lifetime of a batch. It is owned by
// the caller and passed to providers explicitly.
type HandleCache struct {
	mu      sync.Mutex
	handles map[HandleKey]*Handle
	builds  int
}

func NewHandleCache() *HandleCache {
	return &HandleCache{handles: make(map[HandleKey]*Handle)}
}

// Get returns the cached handle for key, calling construct on a miss. Failed
// constructions are not cached.
func (c *HandleCache) Get(key HandleKey, construct func() (*Handle, error)) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.handles[key]; ok {
		return h, nil
	}
	h, err := construct()
	c.builds++
	if err != nil {
		return nil, err
	}
	c.handles[key] = h
	return h, nil
}

// Invalidate drops every cached handle.
func (c *HandleCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.handles)
}

// Len returns the number of cached handles.
func (c *HandleCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

// Builds returns how many times a constructor ran.
func (c *HandleCache) Builds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builds
}

func defaultLookPath(name string) (string, error) {
	return exec.LookPath(name)
}
