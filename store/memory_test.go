package store

import (
	"io/ioutil"
	"testing"
)

func TestMemoryCreateExisting(t *testing.T) {
	m := NewMemory()
	addToStore(t, m, "twice", "first content")
	_, err := m.Create("twice")
	if err != ErrKeyExists {
		t.Errorf("Second create returned %v, expected ErrKeyExists", err)
	}
	// the stored content is untouched
	rac, size, err := m.Open("twice")
	if err != nil {
		t.Fatalf("Open: %s", err)
	}
	back, err := ioutil.ReadAll(NewReader(rac))
	rac.Close()
	if err != nil {
		t.Fatalf("ReadAll: %s", err)
	}
	if string(back) != "first content" {
		t.Errorf("Read back %q", back)
	}
	if size != int64(len("first content")) {
		t.Errorf("Open returned size %d", size)
	}
	// after a delete the key can be written again
	err = m.Delete("twice")
	if err != nil {
		t.Fatalf("Delete: %s", err)
	}
	addToStore(t, m, "twice", "second content")
}
