package storetest

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/sheafkit/sheaf/store"
)

func TestMemoryStress(t *testing.T) {
	Stress(t, store.NewMemory(), 10*1000*1000)
}

func TestFileSystemStress(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping filesystem stress in short mode")
	}
	dir, err := ioutil.TempDir("", "stress")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	Stress(t, store.NewFileSystem(dir), 10*1000*1000)
}
