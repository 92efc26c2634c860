package server

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/sheafkit/sheaf/store"
)

const (
	typeMemory = iota
	typeFileSystem
	typeS3
)

func TestCacheBackend(t *testing.T) {
	var table = []struct {
		cachedir string
		typ      int
		bucket   string
		prefix   string
	}{
		{"", typeMemory, "", ""},
		{"rel/path", typeFileSystem, "", ""},
		{"/abs/path/", typeFileSystem, "", ""},
		{"file:/rel/path", typeFileSystem, "", ""},
		{"file:rel/path", typeFileSystem, "", ""},
		{"s3:/bucket", typeS3, "bucket", ""},
		{"s3://localhost:9000/bucket/prefix/", typeS3, "bucket", "prefix/"},
	}

	for _, row := range table {
		t.Log(row.cachedir)
		s := &RESTServer{CacheDir: row.cachedir}
		result := s.cachebackend()
		switch x := result.(type) {
		case *store.Memory:
			if row.typ != typeMemory {
				t.Errorf("unexpected received %#v", result)
			}
		case *store.FileSystem:
			if row.typ != typeFileSystem {
				t.Errorf("unexpected received %#v", result)
			}
		case *store.S3:
			if row.typ != typeS3 {
				t.Errorf("unexpected received %#v", result)
			}
			if x.Bucket != row.bucket {
				t.Error("expected bucket", row.bucket, "received", x.Bucket)
			}
			if x.Prefix != row.prefix {
				t.Error("expected prefix", row.prefix, "received", x.Prefix)
			}
		}
	}
}

func TestCacheStoreNamespace(t *testing.T) {
	dir, err := ioutil.TempDir("", "")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	s := &RESTServer{CacheDir: dir}

	// two namespaces over the same backing directory stay apart
	one := s.getcachestore("one")
	two := s.getcachestore("two")
	w, err := one.Create("key")
	if err != nil {
		t.Fatalf("Create: %s", err)
	}
	w.Write([]byte("content"))
	w.Close()

	rac, _, err := one.Open("key")
	if err != nil {
		t.Errorf("Open in owning namespace: %s", err)
	} else {
		rac.Close()
	}
	if rac, _, err := two.Open("key"); err == nil {
		rac.Close()
		t.Error("key visible from the other namespace")
	}
	keys, err := two.ListPrefix("")
	if err != nil {
		t.Fatalf("ListPrefix: %s", err)
	}
	if len(keys) != 0 {
		t.Errorf("other namespace lists %v", keys)
	}
}

func TestSplitBucketPrefix(t *testing.T) {
	var table = []struct {
		location string
		addition string
		bucket   string
		prefix   string
	}{
		{"", "", "", ""},
		{"bucket", "", "bucket", ""},
		{"/bucket", "", "bucket", ""},
		{"bucket/and/a/prefix", "", "bucket", "and/a/prefix/"},
		{"bucket/prefix/", "extra", "bucket", "prefix/extra/"},
		{"bucket", "extra", "bucket", "extra/"},
	}

	for _, row := range table {
		bucket, prefix := splitBucketPrefix(row.location, row.addition)
		if bucket != row.bucket || prefix != row.prefix {
			t.Errorf("splitBucketPrefix(%q, %q) = (%q, %q), expected (%q, %q)",
				row.location, row.addition, bucket, prefix, row.bucket, row.prefix)
		}
	}
}
