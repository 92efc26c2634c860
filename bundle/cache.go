package bundle

import "sync"

// A ManifestCache remembers bundle member lists between runs, so a
// server can index its bundles at startup without opening every
// container. The registry writes through on registration and deletes on
// removal. Implementations must be goroutine safe.
type ManifestCache interface {
	// Lookup returns the member list saved for the bundle, or nil.
	Lookup(id string) []string
	// Set saves the member list for the bundle.
	Set(id string, members []string)
	// Delete forgets the bundle.
	Delete(id string)
}

// NewMemoryCache returns a ManifestCache kept in memory. It is useful
// for testing and for servers without a database.
func NewMemoryCache() ManifestCache {
	return &memoryCache{members: make(map[string][]string)}
}

type memoryCache struct {
	m       sync.RWMutex
	members map[string][]string
}

func (c *memoryCache) Lookup(id string) []string {
	c.m.RLock()
	defer c.m.RUnlock()
	result := c.members[id]
	if result == nil {
		return nil
	}
	return append([]string(nil), result...)
}

func (c *memoryCache) Set(id string, members []string) {
	c.m.Lock()
	c.members[id] = append([]string(nil), members...)
	c.m.Unlock()
}

func (c *memoryCache) Delete(id string) {
	c.m.Lock()
	delete(c.members, id)
	c.m.Unlock()
}
