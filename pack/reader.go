package pack

import (
	"archive/zip"
	"errors"
	"io"

	"github.com/sheafkit/sheaf/store"
)

var (
	// ErrNotFound means the named member is not in the container.
	ErrNotFound = errors.New("member not found")

	// ErrNoManifest means the container has no pack-info.json entry.
	ErrNoManifest = errors.New("container has no manifest")
)

// A Resource is an open pack container. It hands out retrievable handles
// for the member files inside. A Resource holds its store stream open
// until Close is called.
type Resource struct {
	key     string
	f       io.Closer   // the underlying store stream
	z       *zip.Reader // zip interface over the stream
	man     *Manifest
	members map[string]*zip.File
}

// Open reads the container stored under the given key.
func Open(s store.ROStore, key string) (*Resource, error) {
	stream, size, err := s.Open(key)
	if err != nil {
		return nil, err
	}
	z, err := zip.NewReader(stream, size)
	if err != nil {
		stream.Close()
		return nil, err
	}
	r := &Resource{
		key:     key,
		f:       stream,
		z:       z,
		members: make(map[string]*zip.File),
	}
	for _, f := range z.File {
		if f.Name == ManifestName {
			err = r.readManifest(f)
			if err != nil {
				stream.Close()
				return nil, err
			}
			continue
		}
		r.members[f.Name] = f
	}
	if r.man == nil {
		stream.Close()
		return nil, ErrNoManifest
	}
	return r, nil
}

func (r *Resource) readManifest(f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	r.man, err = readManifest(rc)
	return err
}

// Key returns the store key this container was opened from.
func (r *Resource) Key() string {
	return r.key
}

// Manifest returns the manifest read from the container.
func (r *Resource) Manifest() *Manifest {
	return r.man
}

// Contains reports whether the container has a member with the given
// relative path.
func (r *Resource) Contains(name string) bool {
	_, ok := r.members[name]
	return ok
}

// Names returns the member file names in the container, in archive order.
func (r *Resource) Names() []string {
	var result []string
	for _, f := range r.z.File {
		if f.Name == ManifestName {
			continue
		}
		result = append(result, f.Name)
	}
	return result
}

// Handle returns a retrievable handle for the member with the given
// relative path, or nil if the container has no such member. The handle
// stays usable until the Resource is closed.
func (r *Resource) Handle(name string) *Handle {
	f, ok := r.members[name]
	if !ok {
		return nil
	}
	return &Handle{f: f, ent: r.man.Find(name)}
}

// Close releases the underlying store stream. Handles from this Resource
// must not be used afterward.
func (r *Resource) Close() error {
	return r.f.Close()
}

// A Handle is a retrievable reference to one member file inside an open
// container.
type Handle struct {
	f   *zip.File
	ent *Entry // manifest entry, nil if the member is not listed
}

// Name returns the member's relative path inside the container.
func (h *Handle) Name() string {
	return h.f.Name
}

// Entry returns the manifest entry describing this member, or nil if the
// container's manifest does not list it.
func (h *Handle) Entry() *Entry {
	return h.ent
}

// Size returns the member's uncompressed size.
func (h *Handle) Size() int64 {
	return int64(h.f.UncompressedSize64)
}

// Open returns a reader for the member's content.
func (h *Handle) Open() (io.ReadCloser, error) {
	return h.f.Open()
}

// parentReadCloser closes its parent when the stream is closed.
type parentReadCloser struct {
	parent io.Closer
	io.ReadCloser
}

func (r *parentReadCloser) Close() error {
	r.ReadCloser.Close()
	return r.parent.Close()
}

// OpenStream is a convenience returning the contents of the single member
// name inside the container at key. Closing the returned stream closes
// the container too.
func OpenStream(s store.ROStore, key, name string) (io.ReadCloser, error) {
	r, err := Open(s, key)
	if err != nil {
		return nil, err
	}
	h := r.Handle(name)
	if h == nil {
		r.Close()
		return nil, ErrNotFound
	}
	rc, err := h.Open()
	if err != nil {
		r.Close()
		return nil, err
	}
	return &parentReadCloser{parent: r, ReadCloser: rc}, nil
}
