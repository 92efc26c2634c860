// Package store provides a simple, goroutine safe key-value interface for
// keeping pack containers. Values are streams instead of opaque byte
// slices, so containers much larger than memory pose no problem.
//
// The FileSystem store is the production one. Memory is useful for
// testing, S3 keeps containers in an object store, and Mirror reads
// through to a remote sheaf server.
package store

import (
	"io"
)

// ReadAtCloser combines the io.ReaderAt and io.Closer interfaces.
type ReadAtCloser interface {
	io.ReaderAt
	io.Closer
}

// Store is the basic stream based key-value store. Values are immutable
// once stored, but a key may be deleted and then created again.
//
// The FileSystem store uses keys as file names, so keys should not
// contain characters forbidden in file names, such as '/'.
//
// Open returns a ReadAtCloser rather than an io.ReadCloser because the
// zip decoder needs random access into the container.
type Store interface {
	ROStore
	Create(key string) (io.WriteCloser, error)
	Delete(key string) error
}

// ROStore is the read-only part of a Store. It allows one to list the
// contents and to retrieve data.
type ROStore interface {
	List() <-chan string
	ListPrefix(prefix string) ([]string, error)
	Open(key string) (ReadAtCloser, int64, error)
}

// NewReader converts an io.ReaderAt into an io.Reader. It is a utility
// for working with the ReadAtCloser returned by Open.
func NewReader(r io.ReaderAt) io.Reader {
	return &reader{r: r}
}

type reader struct {
	r   io.ReaderAt
	off int64
}

func (r *reader) Read(p []byte) (n int, err error) {
	n, err = r.r.ReadAt(p, r.off)
	r.off += int64(n)
	if err == io.EOF && n > 0 {
		// a short read is not an error for an io.Reader
		err = nil
	}
	return
}
