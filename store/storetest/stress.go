// Package storetest provides helpers for testing anything implementing
// the Store interface.
package storetest

import (
	"bytes"
	"crypto/md5"
	"io"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/sheafkit/sheaf/store"
)

type blob struct {
	key  string
	hash []byte
	size int64
}

// Stress spawns goroutines simultaneously reading, writing, and deleting
// random blobs in the given store. It is a good test to run with the
// -race flag.
//
// Blob sizes are generated until their sum reaches totalsize (pass 0 for
// the 1 GB default). Each blob is uploaded, downloaded, compared, and
// eventually deleted. The list functions are not exercised.
func Stress(t *testing.T, s store.Store, totalsize int64) {
	// the pipeline is
	//       size maker
	// sizes ----> uploader pool
	// dwnld ----> downloader pool (possible repeat)
	//       ----> delete
	if totalsize == 0 {
		totalsize = 1000 * 1000 * 1000 // 1GB
	}
	sizes := make(chan int64)
	dwnld := make(chan blob, 1000)
	done := make(chan struct{})
	var uppool, downpool sync.WaitGroup

	for i := 0; i < 5; i++ {
		uppool.Add(1)
		go func() {
			uploader(t, s, sizes, dwnld)
			uppool.Done()
		}()
	}

	for i := 0; i < 10; i++ {
		downpool.Add(1)
		go func() {
			downloader(t, s, dwnld, done)
			downpool.Done()
		}()
	}

	generatesizes(sizes, totalsize)
	close(sizes)
	uppool.Wait()
	close(done)
	downpool.Wait()
}

// randomReader presents n bytes of random data. The length may be much
// larger than len(data).
type randomReader struct {
	n    int64
	data []byte
}

func (r *randomReader) Read(p []byte) (int, error) {
	if r.n <= 0 {
		return 0, io.EOF
	}
	total := 0
	data := r.data
	for len(p) > 0 && r.n > 0 {
		if r.n < int64(len(data)) {
			data = data[:int(r.n)]
		}
		n := copy(p, data)
		p = p[n:]
		r.n -= int64(n)
		total += n
	}
	return total, nil
}

func uploader(t *testing.T, s store.Store, in <-chan int64, out chan<- blob) {
	h := md5.New()
	const L = 64 * 1024 // 64k
	buffer := make([]byte, L)

	for size := range in {
		h.Reset()
		buffer = buffer[:L]
		rand.Read(buffer)

		// pick a key out of the random buffer: first byte gives an
		// offset, that byte gives a length, then scan for ascii letters
		j := buffer[0]
		klen := int(buffer[j])&0x3f + 1 // 0 < length <= 64
		key := make([]byte, 0, klen)
		// statistically j will not run off the end of buffer
		for ; len(key) < klen; j++ {
			if buffer[j] >= 'a' && buffer[j] <= 'z' {
				key = append(key, buffer[j])
			}
		}
		keystr := string(key)
	retry:
		w, err := s.Create(keystr)
		if err == store.ErrKeyExists {
			keystr += "a"
			goto retry
		} else if err != nil {
			t.Error(err)
			continue
		}
		mw := io.MultiWriter(h, w)
		n, err := io.Copy(mw, &randomReader{data: buffer, n: size})
		if n != size {
			t.Error("expected", size, "only read", n)
		}
		if err != nil {
			t.Error(err)
		}
		err = w.Close()
		if err != nil {
			t.Error(keystr, size, err)
			continue
		}
		out <- blob{key: keystr, hash: h.Sum(nil), size: size}
	}
}

func downloader(t *testing.T, s store.Store, in chan blob, done chan struct{}) {
	h := md5.New()
	for {
		var b blob
		select {
		case <-done:
			return
		case b = <-in:
		}
		rac, size, err := s.Open(b.key)
		if err != nil {
			t.Error(err)
			continue
		}
		if size != b.size {
			t.Error("Expected", b.size, "Open() returned", size)
		}
		h.Reset()
		n, err := io.Copy(h, store.NewReader(rac))
		if err != nil {
			t.Error(err)
		}
		if n != size {
			t.Error("Expected", size, "but read", n)
		}
		err = rac.Close()
		if err != nil {
			t.Error(err)
		}
		if !bytes.Equal(b.hash, h.Sum(nil)) {
			t.Errorf("hashes unequal. %#v. Received %x", b, h.Sum(nil))
			// the blob is left in the store
			continue
		}

		// flip a coin: delete it or go around again
		if rand.Float32() < 0.5 {
			err := s.Delete(b.key)
			if err != nil {
				t.Error(err)
			}
		} else {
			in <- b
		}
	}
}

func generatesizes(out chan<- int64, totalsize int64) {
	// Generate the exponent uniformly at random so sizes cover a wide
	// range of magnitudes.
	for totalsize > 0 {
		x := 20 * rand.Float64()
		size := int64(math.Trunc(math.Exp(x)))
		out <- size
		totalsize -= size
	}
}
