// Package filecache caches file content extracted from pack containers.
//
// The server keys entries by the checksum recorded in the container
// manifest, so a cached entry never goes stale: if the container is
// rebuilt with different content, the key changes with it. The cache is
// backed by a store, so it can live in memory or on disk. Usage
// bookkeeping is kept only in memory and is rebuilt by scanning the
// store at startup.
package filecache

import (
	"errors"
	"io"
	"io/ioutil"

	"github.com/sheafkit/sheaf/store"
)

// A Cache holds byte streams under string keys and forgets them
// according to its own policy. Implementations are goroutine safe.
type Cache interface {
	// Contains reports whether the key is in the cache right now. The
	// answer may change before a following Get.
	Contains(key string) bool

	// Get returns a reader for the cached content, or a nil reader if
	// the key is not cached. A miss is not an error.
	Get(key string) (store.ReadAtCloser, int64, error)

	// Put returns a writer saving new content under the key. The entry
	// is not visible until the writer is closed.
	Put(key string) (io.WriteCloser, error)

	// Delete removes the key from the cache, if present.
	Delete(key string) error
}

var (
	// ErrCacheFull means an item cannot fit in the cache even after
	// evicting everything else.
	ErrCacheFull = errors.New("cache is full and no more items can be removed")

	// ErrPutPending means another Put for the same key has not been
	// closed yet.
	ErrPutPending = errors.New("another put for this key is still open")
)

// An EmptyCache always misses. It keeps nothing and saves nothing.
type EmptyCache struct{}

// Contains always returns false.
func (EmptyCache) Contains(key string) bool { return false }

// Get always returns a cache miss.
func (EmptyCache) Get(key string) (store.ReadAtCloser, int64, error) {
	return nil, 0, nil
}

// Put returns a valid WriteCloser which discards its input.
func (EmptyCache) Put(key string) (io.WriteCloser, error) {
	return nopCloser{ioutil.Discard}, nil
}

// Delete does nothing.
func (EmptyCache) Delete(key string) error { return nil }

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
