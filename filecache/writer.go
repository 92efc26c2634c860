package filecache

import (
	"io"
)

// saver is what a writer reports to as content is copied in.
type saver interface {
	save(w *writer)      // the new entry arrived whole
	reserve(int64) error // claims more space on each Write
	discard(w *writer)   // the new entry went bad partway
}

type writer struct {
	parent        saver
	key           string
	w             io.WriteCloser
	size          int64
	deleteOnClose bool
}

func (w *writer) Write(p []byte) (int, error) {
	// reserve before writing so the cache never exceeds its limit
	err := w.parent.reserve(int64(len(p)))
	if err != nil {
		if err == ErrCacheFull {
			w.deleteOnClose = true
		}
		return 0, err
	}
	// size tracks what was reserved, not what landed, so discard can
	// give back exactly the right amount
	w.size += int64(len(p))
	n, err := w.w.Write(p)
	if err != nil {
		w.deleteOnClose = true
	}
	return n, err
}

func (w *writer) Close() error {
	err := w.w.Close()
	if err != nil || w.deleteOnClose {
		w.parent.discard(w)
		return err
	}
	w.parent.save(w)
	return nil
}
