package filecache

import (
	"fmt"
	"testing"
	"time"

	"github.com/sheafkit/sheaf/store"
)

func TestEvictionTB(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timing test in short mode")
	}
	cache := NewTime(store.NewMemory(), time.Second)
	defer cache.Stop()
	w, err := cache.Put("hello")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("hello world"))
	w.Close()

	time.Sleep(1500 * time.Millisecond)
	cache.expireKeys()
	r, _, _ := cache.Get("hello")
	if r != nil {
		r.Close()
		t.Error("key not evicted")
	}
}

func TestExpireListTB(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timing test in short mode")
	}
	cache := NewTime(store.NewMemory(), time.Second)
	defer cache.Stop()
	for i := 0; i < 100; i++ {
		w, _ := cache.Put(fmt.Sprintf("hello-%d", i))
		w.Write([]byte("hello world"))
		w.Close()
	}

	// sleep less than the ttl, then touch the even keys
	time.Sleep(500 * time.Millisecond)
	for i := 0; i < 100; i += 2 {
		r, _, _ := cache.Get(fmt.Sprintf("hello-%d", i))
		if r == nil {
			t.Error("key", i, "evicted early")
			continue
		}
		r.Close()
	}

	// past the original ttl only the touched keys survive
	time.Sleep(700 * time.Millisecond)
	cache.expireKeys()
	for i := 0; i < 100; i++ {
		r, _, _ := cache.Get(fmt.Sprintf("hello-%d", i))
		if r == nil {
			if i%2 == 0 {
				t.Error("touched key evicted", i)
			}
			continue
		}
		if i%2 != 0 {
			t.Error("untouched key kept", i)
		}
		r.Close()
	}
}

func TestIndexRoundTrip(t *testing.T) {
	mem := store.NewMemory()
	cache := NewTime(mem, time.Hour)
	for i := 0; i < 5; i++ {
		w, err := cache.Put(fmt.Sprintf("key-%d", i))
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte("some content"))
		w.Close()
	}
	cache.writeIndex()
	cache.Stop()

	// a new cache over the same store picks the entries back up
	cache = NewTime(mem, time.Hour)
	defer cache.Stop()
	cache.Scan()
	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("key-%d", i)
		if !cache.Contains(key) {
			t.Errorf("key %s lost across restart", key)
		}
	}
	if cache.Contains(indexKey) {
		t.Error("index file indexed as an entry")
	}
}

func TestPutPendingTB(t *testing.T) {
	cache := NewTime(store.NewMemory(), time.Hour)
	defer cache.Stop()
	w, err := cache.Put("dup")
	if err != nil {
		t.Fatal(err)
	}
	_, err = cache.Put("dup")
	if err != ErrPutPending {
		t.Errorf("second put got %v, want ErrPutPending", err)
	}
	w.Write([]byte("x"))
	w.Close()

	// after the first writer closes, a new put replaces the entry
	w, err = cache.Put("dup")
	if err != nil {
		t.Fatalf("replacement put: %s", err)
	}
	w.Write([]byte("y"))
	w.Close()
	r, size, err := cache.Get("dup")
	if err != nil || r == nil {
		t.Fatalf("Get after replace: %v %v", r, err)
	}
	r.Close()
	if size != 1 {
		t.Errorf("replaced entry size %d, want 1", size)
	}
	if cache.Size() != 1 {
		t.Errorf("cache accounts %d bytes after replace, want 1", cache.Size())
	}
}
