package filecache

import (
	"fmt"
	"testing"

	"github.com/sheafkit/sheaf/store"
)

func TestEviction(t *testing.T) {
	cache := NewLRU(store.NewMemory(), 100)
	// "hello world" is 11 bytes, so 10 entries force an eviction
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("hello-%d", i)
		w, err := cache.Put(key)
		if err != nil {
			t.Fatalf("Put(%s): %s", key, err)
		}
		w.Write([]byte("hello world"))
		w.Close()
	}

	// see that something was evicted, without assuming which
	var nEvicted int
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("hello-%d", i)
		r, size, err := cache.Get(key)
		if err != nil {
			t.Fatalf("Get(%s): %s", key, err)
		}
		if r == nil {
			nEvicted++
			continue
		}
		if size != 11 {
			t.Errorf("key %s size %d, want 11", key, size)
		}
		r.Close()
	}
	t.Logf("nEvicted = %d", nEvicted)
	if nEvicted == 0 {
		t.Errorf("no entries evicted")
	}
	if cache.Size() > cache.MaxSize() {
		t.Errorf("cache size %d over limit %d", cache.Size(), cache.MaxSize())
	}
}

func TestLRUOrder(t *testing.T) {
	cache := NewLRU(store.NewMemory(), 25)
	for _, key := range []string{"one", "two"} {
		w, err := cache.Put(key)
		if err != nil {
			t.Fatalf("Put(%s): %s", key, err)
		}
		w.Write([]byte("0123456789")) // 10 bytes each
		w.Close()
	}

	// touch "one" so "two" is the eviction candidate
	r, _, _ := cache.Get("one")
	if r == nil {
		t.Fatal("Get(one) missed")
	}
	r.Close()

	w, err := cache.Put("three")
	if err != nil {
		t.Fatalf("Put(three): %s", err)
	}
	w.Write([]byte("0123456789"))
	w.Close()

	if !cache.Contains("one") {
		t.Error("recently used entry evicted")
	}
	if cache.Contains("two") {
		t.Error("least recently used entry kept")
	}
	if !cache.Contains("three") {
		t.Error("new entry missing")
	}
}

func TestTooLargeItem(t *testing.T) {
	cache := NewLRU(store.NewMemory(), 100)
	w, err := cache.Put("qwerty")
	if err != nil {
		t.Fatalf("Put: %s", err)
	}
	// write in pieces; the last ones cannot fit
	for i := 0; i < 10; i++ {
		_, err = w.Write([]byte("hello world"))
		if err != nil {
			break
		}
	}
	if err != ErrCacheFull {
		t.Errorf("got %v, want ErrCacheFull", err)
	}
	w.Close()
	if size := cache.Size(); size != 0 {
		t.Errorf("cache size %d after discarded put, want 0", size)
	}
	if cache.Contains("qwerty") {
		t.Error("discarded entry is in the cache")
	}
}

func TestLRUScan(t *testing.T) {
	mem := store.NewMemory()
	var table = []struct {
		key, contents string
	}{
		{"qwerty", "1234567890"},
		{"asdf", "1234567890-="},
		{"zxcv", "abcdefghijklmnopqrstuvwxyz"},
	}
	for _, elem := range table {
		w, err := mem.Create(elem.key)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(elem.contents))
		w.Close()
	}

	// a cache big enough for everything indexes everything
	cache := NewLRU(mem, 100)
	cache.Scan()
	for _, elem := range table {
		if !cache.Contains(elem.key) {
			t.Errorf("key %s not indexed by scan", elem.key)
		}
	}

	// a small cache drops what cannot fit
	cache = NewLRU(mem, 15)
	cache.Scan()
	var kept int64
	for _, elem := range table {
		if cache.Contains(elem.key) {
			kept += int64(len(elem.contents))
		}
	}
	if kept > 15 {
		t.Errorf("scan kept %d bytes, limit is 15", kept)
	}
}

func TestDelete(t *testing.T) {
	cache := NewLRU(store.NewMemory(), 100)
	w, err := cache.Put("gone")
	if err != nil {
		t.Fatalf("Put: %s", err)
	}
	w.Write([]byte("soon"))
	w.Close()
	if !cache.Contains("gone") {
		t.Fatal("entry missing before delete")
	}
	err = cache.Delete("gone")
	if err != nil {
		t.Fatalf("Delete: %s", err)
	}
	if cache.Contains("gone") {
		t.Error("entry present after delete")
	}
	if size := cache.Size(); size != 0 {
		t.Errorf("cache size %d after delete, want 0", size)
	}
}

func TestPutPending(t *testing.T) {
	cache := NewLRU(store.NewMemory(), 100)
	w, err := cache.Put("dup")
	if err != nil {
		t.Fatalf("Put: %s", err)
	}
	_, err = cache.Put("dup")
	if err != ErrPutPending {
		t.Errorf("second put got %v, want ErrPutPending", err)
	}
	w.Write([]byte("x"))
	w.Close()
}
