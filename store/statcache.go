package store

// The S3 store needs to remember the existence and size of remote
// objects, since every probe is a round trip. This file implements that
// little cache.

import (
	"errors"
	"sync"
	"time"
)

// ErrNotExist means the key does not exist in the store.
var ErrNotExist = errors.New("Key does not exist")

// entry records what we know about one remote object.
type entry struct {
	expire time.Time
	size   int64 // size of object. 0 = unknown, -1 = doesn't exist
}

// A statcache remembers the size or absence of remote objects. The size
// is either positive, 0 meaning unknown, or -1 meaning the object does
// not exist. Entries expire, with misses expiring sooner than hits.
type statcache struct {
	m         sync.RWMutex // protects everything below
	cache     map[string]entry
	sweeptime time.Time // next time to age everything
}

const (
	// value for entry.size marking a deleted key
	sizeDeleted int64 = -1

	missTTL = 3 * time.Hour
	hitTTL  = 240 * time.Hour // 10 days
)

func newStatCache() *statcache {
	return &statcache{cache: make(map[string]entry)}
}

// Get returns the size associated with key, calling fill to look it up
// if it isn't cached. A key known to not exist returns ErrNotExist.
func (s *statcache) Get(key string, fill func(key string) (int64, error)) (int64, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if time.Now().After(s.sweeptime) {
		go s.age()
	}
	e := s.cache[key]
	if e.size > 0 {
		return e.size, nil
	}
	if e.size < 0 {
		return 0, ErrNotExist
	}
	if fill == nil {
		return 0, nil
	}
	// not cached, ask the store. We hold the lock m during the call, so
	// concurrent Gets for other keys will wait behind this round trip.
	size, err := fill(key)
	s.set0(key, size)
	return size, err
}

// Set caches a size to use for the given key. Use sizeDeleted to mark
// the key as missing.
func (s *statcache) Set(key string, size int64) {
	s.m.Lock()
	s.set0(key, size)
	s.m.Unlock()
}

// set0 is Set for callers already holding s.m.
func (s *statcache) set0(key string, size int64) {
	ttl := hitTTL
	switch {
	case size < 0:
		ttl = missTTL
	case size == 0:
		ttl = 0
	}
	s.cache[key] = entry{expire: time.Now().Add(ttl), size: size}
}

// age removes every expired entry. It holds m the whole time.
func (s *statcache) age() {
	s.m.Lock()
	defer s.m.Unlock()
	now := time.Now()
	s.sweeptime = now.Add(time.Hour)
	for k, v := range s.cache {
		if now.After(v.expire) {
			delete(s.cache, k)
		}
	}
}
