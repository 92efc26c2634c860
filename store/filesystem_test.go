package store

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestKeySubdir(t *testing.T) {
	var table = []struct{ input, output string }{
		{"x", "x/"},
		{"xy", "xy/"},
		{"xyz", "xy/z/"},
		{"wxyz", "wx/yz/"},
		{"vwxyz", "vw/xy/"},
		{"b930agg8z", "b9/30/"},
	}
	for _, s := range table {
		result := keySubdir(s.input)
		if result != s.output {
			t.Errorf("Got %s, expected %s", result, s.output)
		}
	}
}

func TestFSListPrefix(t *testing.T) {
	var files = []string{
		"ab/",
		"ab/cd/",
		"ab/cd/abcd-0001",
		"ab/cd/abcd-0002",
		"ab/cd/abcdef-0001",
		"ab/ce/",
		"ab/ce/abcez-0001",
		"ab/qw/",
		"ab/qw/abqw-0001",
		"ac/",
		"ac/zx/",
		"ac/zx/aczx-0001",
		"bc/",
		"bc/de/",
		"bc/de/bcde-0001",
	}
	var table = []struct {
		prefix   string
		expected []string
	}{
		{"", []string{
			"abcd-0001",
			"abcd-0002",
			"abcdef-0001",
			"abcez-0001",
			"abqw-0001",
			"aczx-0001",
			"bcde-0001",
		}},
		{"a", []string{
			"abcd-0001",
			"abcd-0002",
			"abcdef-0001",
			"abcez-0001",
			"abqw-0001",
			"aczx-0001",
		}},
		{"ab", []string{
			"abcd-0001",
			"abcd-0002",
			"abcdef-0001",
			"abcez-0001",
			"abqw-0001",
		}},
		{"abc", []string{
			"abcd-0001",
			"abcd-0002",
			"abcdef-0001",
			"abcez-0001",
		}},
		{"abcd", []string{
			"abcd-0001",
			"abcd-0002",
			"abcdef-0001",
		}},
		{"abcde", []string{
			"abcdef-0001",
		}},
	}
	dir := makeTmpTree(files)
	defer os.RemoveAll(dir)
	s := NewFileSystem(dir)
	for _, tab := range table {
		t.Logf("Trying prefix %s", tab.prefix)
		result, err := s.ListPrefix(tab.prefix)
		if err != nil {
			t.Errorf("Got unexpected error: %s", err.Error())
		} else if !equalStrings(tab.expected, result) {
			t.Errorf("Got result %v, expected %v", result, tab.expected)
		}
	}
}

func TestWalkTree(t *testing.T) {
	var files = []string{
		"a/",
		"a/b/",
		"a/b/xyz-0001",
		"a/b/xyz-0002",
		"a/b/qwe-0001",
		"a/b/qwe-0002",
		"a/c/",
		"a/c/asd-0001",
		"a/c/asd-0002",
		"a/c/asd-0003",
	}
	dir := makeTmpTree(files)
	defer os.RemoveAll(dir)
	c := make(chan string)
	go walkTree(c, dir, 0)
	var result []string
	for name := range c {
		result = append(result, name)
		t.Log(name)
	}
	if len(result) != 7 {
		t.Errorf("Walked %d files, expected 7", len(result))
	}
}

func TestFSRoundTrip(t *testing.T) {
	dir, _ := ioutil.TempDir("", "")
	defer os.RemoveAll(dir)
	content := []byte("once upon a time there was a container")

	// exercise both the plain and the mapped read paths
	for _, usemmap := range []bool{false, true} {
		s := NewFileSystem(dir)
		s.UseMmap = usemmap
		key := fmt.Sprintf("roundtrip-%v", usemmap)
		w, err := s.Create(key)
		if err != nil {
			t.Fatalf("Create: %s", err)
		}
		w.Write(content)
		err = w.Close()
		if err != nil {
			t.Fatalf("Close: %s", err)
		}
		// creating again should conflict
		_, err = s.Create(key)
		if err != ErrKeyExists {
			t.Errorf("Second create returned %v, expected ErrKeyExists", err)
		}
		rac, size, err := s.Open(key)
		if err != nil {
			t.Fatalf("Open: %s", err)
		}
		if size != int64(len(content)) {
			t.Errorf("Open returned size %d, expected %d", size, len(content))
		}
		back, err := ioutil.ReadAll(NewReader(rac))
		rac.Close()
		if err != nil {
			t.Fatalf("ReadAll: %s", err)
		}
		if string(back) != string(content) {
			t.Errorf("Read back %q", back)
		}
		err = s.Delete(key)
		if err != nil {
			t.Fatalf("Delete: %s", err)
		}
		_, _, err = s.Open(key)
		if err == nil {
			t.Errorf("Open after delete succeeded")
		}
	}
}

func TestKeyValidation(t *testing.T) {
	var table = []struct {
		key string
		err error
	}{
		{"goodkey", nil},
		{"has/slash", ErrKeyContainsSlash},
		{"has space", ErrKeyContainsWhiteSpace},
		{"has\ttab", ErrKeyContainsWhiteSpace},
		{"has\x07control", ErrKeyContainsControlChar},
		{"bad\xffutf8", ErrKeyContainsNonUnicode},
	}
	for _, tab := range table {
		if err := isKeyValid(tab.key); err != tab.err {
			t.Errorf("isKeyValid(%q) = %v, expected %v", tab.key, err, tab.err)
		}
	}
}

// returns the abs path of the root of the new tree.
// remember to delete the directory when finished.
func makeTmpTree(files []string) string {
	var data []byte
	root, _ := ioutil.TempDir("", "")
	for _, s := range files {
		var err error
		p := filepath.Join(root, s)
		if strings.HasSuffix(s, "/") {
			err = os.Mkdir(p, 0777)
		} else {
			err = ioutil.WriteFile(p, data, 0777)
		}
		if err != nil {
			fmt.Println(err)
		}
	}
	return root
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
