package store

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
)

// fake just enough of the remote bundle API for a Mirror
func newRemote(t *testing.T, contents map[string]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "sesame" {
			w.WriteHeader(401)
			return
		}
		switch {
		case r.URL.Path == "/bundle/list":
			var keys []string
			for k := range contents {
				keys = append(keys, k)
			}
			json.NewEncoder(w).Encode(keys)
		case strings.HasPrefix(r.URL.Path, "/bundle/open/"):
			key := strings.TrimPrefix(r.URL.Path, "/bundle/open/")
			body, ok := contents[key]
			if !ok {
				w.WriteHeader(404)
				return
			}
			w.Write([]byte(body))
		default:
			w.WriteHeader(404)
		}
	}))
}

func TestMirrorReadThrough(t *testing.T) {
	remote := newRemote(t, map[string]string{
		"abc": "remote content",
	})
	defer remote.Close()

	local := NewMemory()
	m := NewMirror(local, remote.URL, "sesame")

	rac, size, err := m.Open("abc")
	if err != nil {
		t.Fatalf("Open: %s", err)
	}
	body, _ := ioutil.ReadAll(NewReader(rac))
	rac.Close()
	if string(body) != "remote content" || size != int64(len(body)) {
		t.Errorf("Read %q (size %d)", body, size)
	}

	// the container should now be local
	_, _, err = local.Open("abc")
	if err != nil {
		t.Errorf("Container was not copied to local store: %s", err)
	}
}

func TestMirrorListMerge(t *testing.T) {
	remote := newRemote(t, map[string]string{
		"abc": "remote content",
		"xyz": "more remote content",
	})
	defer remote.Close()

	local := NewMemory()
	addToStore(t, local, "abc", "local shadow")
	addToStore(t, local, "qrs", "local only")

	m := NewMirror(local, remote.URL, "sesame")
	var keys []string
	for k := range m.List() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if !equalStrings(keys, []string{"abc", "qrs", "xyz"}) {
		t.Errorf("List returned %v", keys)
	}

	// the local copy shadows the remote one
	rac, _, err := m.Open("abc")
	if err != nil {
		t.Fatalf("Open: %s", err)
	}
	body, _ := ioutil.ReadAll(NewReader(rac))
	rac.Close()
	if string(body) != "local shadow" {
		t.Errorf("Read %q, expected the local copy", body)
	}
}
