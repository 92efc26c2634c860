package filecache

import (
	"container/list"
	"io"
	"sync"

	"github.com/sheafkit/sheaf/store"
)

// An LRU is a fixed-size cache evicting the least recently used entry
// when a new one needs room.
type LRU struct {
	s store.Store // where cached content lives

	m sync.Mutex // protects everything below

	// bytes used by entries in the cache, reservations included
	size int64

	maxSize int64

	// front is most recently used, back is next to be evicted
	lru   *list.List
	index map[string]*list.Element
}

type lruEntry struct {
	key  string
	size int64
}

// NewLRU returns an LRU cache backed by s holding at most maxSize bytes.
// The store may already have content in it; call Scan, inline or in a
// goroutine, to index it.
func NewLRU(s store.Store, maxSize int64) *LRU {
	return &LRU{
		s:       s,
		maxSize: maxSize,
		lru:     list.New(),
		index:   make(map[string]*list.Element),
	}
}

// Scan enumerates the backing store and adds whatever is there to the
// usage list, in no particular order. Entries too big for the cache are
// deleted. Blocks until finished.
func (c *LRU) Scan() {
	for key := range c.s.List() {
		if c.Contains(key) {
			continue
		}
		rc, size, err := c.s.Open(key)
		if err != nil {
			continue
		}
		rc.Close()
		if c.reserve(size) != nil {
			c.s.Delete(key)
			continue
		}
		c.link(key, size)
	}
}

// Contains reports whether the key is cached. It does not touch the
// usage list.
func (c *LRU) Contains(key string) bool {
	c.m.Lock()
	_, ok := c.index[key]
	c.m.Unlock()
	return ok
}

// Get returns a reader for the cached content and marks the entry used.
// A nil reader means a miss, which is not an error.
func (c *LRU) Get(key string) (store.ReadAtCloser, int64, error) {
	c.m.Lock()
	e, ok := c.index[key]
	if !ok {
		c.m.Unlock()
		return nil, 0, nil
	}
	c.lru.MoveToFront(e)
	c.m.Unlock()
	return c.s.Open(key)
}

// Put returns a writer saving content under the key. Other entries are
// evicted as data is written, so the cache never holds more than its
// limit. The new entry appears when the writer is closed. A Put for a
// key being written or already cached returns an error.
func (c *LRU) Put(key string) (io.WriteCloser, error) {
	w, err := c.s.Create(key)
	if err == store.ErrKeyExists {
		return nil, ErrPutPending
	}
	if err != nil {
		return nil, err
	}
	return &writer{parent: c, key: key, w: w}, nil
}

// Delete removes the key from the cache.
func (c *LRU) Delete(key string) error {
	c.m.Lock()
	e, ok := c.index[key]
	if !ok {
		c.m.Unlock()
		return nil
	}
	ent := c.lru.Remove(e).(lruEntry)
	delete(c.index, key)
	c.size -= ent.size
	c.m.Unlock()
	return c.s.Delete(key)
}

// Size returns the bytes currently used by the cache.
func (c *LRU) Size() int64 {
	c.m.Lock()
	defer c.m.Unlock()
	return c.size
}

// MaxSize returns the byte limit the cache evicts to stay under.
func (c *LRU) MaxSize() int64 {
	return c.maxSize
}

func (c *LRU) link(key string, size int64) {
	c.m.Lock()
	c.index[key] = c.lru.PushFront(lruEntry{key: key, size: size})
	c.m.Unlock()
}

// reserve claims space for size more bytes, evicting from the back of
// the usage list as needed. Size may be negative to return a previous
// claim. On error nothing is reserved.
func (c *LRU) reserve(size int64) error {
	c.m.Lock()
	defer c.m.Unlock()

	c.size += size
	for c.size > c.maxSize {
		e := c.lru.Back()
		if e == nil {
			c.size -= size
			return ErrCacheFull
		}
		ent := c.lru.Remove(e).(lruEntry)
		delete(c.index, ent.key)
		err := c.s.Delete(ent.key)
		if err != nil {
			c.size -= size
			return err
		}
		c.size -= ent.size
	}
	return nil
}

// save and discard make LRU a saver for writer.

func (c *LRU) save(w *writer) {
	c.link(w.key, w.size)
}

func (c *LRU) discard(w *writer) {
	// give back the reservation and drop the partial write
	c.reserve(-w.size)
	c.s.Delete(w.key)
}
