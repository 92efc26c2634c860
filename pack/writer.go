package pack

import (
	"archive/zip"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/sheafkit/sheaf/store"
	"github.com/sheafkit/sheaf/util"
)

// A Writer builds a pack container in a store. Members are added one at
// a time, and the manifest is written when the Writer is closed. It is
// not goroutine safe. Make sure to call Close when finished.
type Writer struct {
	f   io.WriteCloser // the underlying store stream
	z   *zip.Writer
	man Manifest
}

// NewWriter starts a container for the bundle id under the given store
// key. Pass Key(id) for the conventional key.
func NewWriter(s store.Store, key, id string) (*Writer, error) {
	f, err := s.Create(key)
	if err != nil {
		return nil, err
	}
	z := zip.NewWriter(f)
	z.SetComment("sheaf pack " + id)
	return &Writer{
		f: f,
		z: z,
		man: Manifest{
			ID:      id,
			Created: time.Now(),
		},
	}, nil
}

// SetCreator records who is writing this container in its manifest.
func (w *Writer) SetCreator(name string) {
	w.man.Creator = name
}

// Add stores one member file with the given relative path. The content
// is checksummed as it is copied, and the sums are recorded in the
// manifest.
func (w *Writer) Add(name string, r io.Reader) error {
	header := zip.FileHeader{
		Name:     name,
		Method:   zip.Store,
		Modified: time.Now(),
	}
	dst, err := w.z.CreateHeader(&header)
	if err != nil {
		return errors.Wrapf(err, "adding %s", name)
	}
	hw := util.NewHashWriter(dst)
	size, err := io.Copy(hw, r)
	if err != nil {
		return errors.Wrapf(err, "adding %s", name)
	}
	w.man.Entries = append(w.man.Entries, Entry{
		Name:   name,
		Size:   size,
		MD5:    hw.SumMD5(),
		SHA256: hw.SumSHA256(),
	})
	return nil
}

// Manifest returns the manifest accumulated so far. Mostly useful after
// all members are added and before Close.
func (w *Writer) Manifest() *Manifest {
	return &w.man
}

// Close writes the manifest entry and closes the container. The store
// entry is not complete until Close returns nil.
func (w *Writer) Close() error {
	header := zip.FileHeader{
		Name:     ManifestName,
		Method:   zip.Store,
		Modified: time.Now(),
	}
	dst, err := w.z.CreateHeader(&header)
	if err == nil {
		err = writeManifest(dst, &w.man)
	}
	err2 := w.z.Close()
	if err == nil {
		err = err2
	}
	err2 = w.f.Close()
	if err == nil {
		err = err2
	}
	return err
}
