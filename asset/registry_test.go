package asset

import (
	"strings"
	"sync"
	"testing"

	"github.com/sheafkit/sheaf/pack"
	"github.com/sheafkit/sheaf/store"
)

// recorder remembers every event it hears.
type recorder struct {
	m      sync.Mutex
	events []Event
}

func (r *recorder) OnAssetEvent(e Event) {
	r.m.Lock()
	r.events = append(r.events, e)
	r.m.Unlock()
}

func (r *recorder) kinds() []Kind {
	r.m.Lock()
	defer r.m.Unlock()
	var result []Kind
	for _, e := range r.events {
		result = append(result, e.Kind)
	}
	return result
}

func kindsEqual(a, b []Kind) bool {
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

func TestRegistryEvents(t *testing.T) {
	r := NewRegistry()
	rec := &recorder{}
	r.Subscribe(rec)

	r.Add(&Asset{ID: "a", Type: "texture", URL: "a.png?v=2"})
	if a := r.Get("a"); a == nil || a.URL != "a.png" {
		t.Fatalf("Get(a) = %#v", a)
	}

	// replacing an id fires Remove then Add
	r.Add(&Asset{ID: "a", Type: "texture", URL: "a2.png"})
	r.Remove("a")
	r.Remove("missing") // silently ignored

	want := []Kind{Add, Remove, Add, Remove}
	if got := rec.kinds(); !kindsEqual(got, want) {
		t.Errorf("events %v, expected %v", got, want)
	}

	r.Unsubscribe(rec)
	r.Add(&Asset{ID: "b", Type: "texture", URL: "b.png"})
	if got := rec.kinds(); !kindsEqual(got, want) {
		t.Errorf("heard events after unsubscribe: %v", got)
	}
}

func TestPerAssetListenersDropOnRemove(t *testing.T) {
	r := NewRegistry()
	rec := &recorder{}
	r.Add(&Asset{ID: "x", Type: TypeBundle, URL: "x.pack", Members: []string{"m"}})
	r.SubscribeAsset("x", rec)
	r.Remove("x")
	// a fresh asset under the same id should not reach the old listener
	r.Add(&Asset{ID: "x", Type: TypeBundle, URL: "x.pack", Members: []string{"m"}})

	r.m.RLock()
	n := len(r.byAsset["x"])
	r.m.RUnlock()
	if n != 0 {
		t.Errorf("stale per-asset listeners: %d", n)
	}
}

func buildContainer(t *testing.T, s store.Store, id string, members map[string]string) {
	w, err := pack.NewWriter(s, pack.Key(id), id)
	if err != nil {
		t.Fatalf("NewWriter: %s", err)
	}
	for name, content := range members {
		if err := w.Add(name, strings.NewReader(content)); err != nil {
			t.Fatalf("Add: %s", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %s", err)
	}
}

func TestLoadBundle(t *testing.T) {
	s := store.NewMemory()
	buildContainer(t, s, "lvl1", map[string]string{"a.png": "aaa"})

	r := NewLoadingRegistry(s, 0)
	rec := &recorder{}
	r.Add(&Asset{ID: "b1", Type: TypeBundle, URL: "packs/lvl1.pack", Members: []string{"a"}})
	r.SubscribeAsset("b1", rec)

	err := r.Load("b1")
	if err != nil {
		t.Fatalf("Load: %s", err)
	}
	want := []Kind{LoadStart, Load}
	if got := rec.kinds(); !kindsEqual(got, want) {
		t.Fatalf("events %v, expected %v", got, want)
	}
	rec.m.Lock()
	res := rec.events[1].Resource
	rec.m.Unlock()
	if res == nil || !res.Contains("a.png") {
		t.Errorf("Load event carried resource %v", res)
	}
	if r.Resource("b1") != res {
		t.Errorf("Resource accessor disagrees with event")
	}

	// loading again is a no-op
	if err := r.Load("b1"); err != nil {
		t.Errorf("second Load: %s", err)
	}
	if got := rec.kinds(); !kindsEqual(got, want) {
		t.Errorf("second load fired events: %v", got)
	}
}

func TestLoadMissingContainer(t *testing.T) {
	s := store.NewMemory()
	r := NewLoadingRegistry(s, 0)
	rec := &recorder{}
	r.Add(&Asset{ID: "b2", Type: TypeBundle, URL: "packs/ghost.pack"})
	r.SubscribeAsset("b2", rec)

	err := r.Load("b2")
	if err == nil {
		t.Fatal("Load of a missing container succeeded")
	}
	want := []Kind{LoadStart, Error}
	if got := rec.kinds(); !kindsEqual(got, want) {
		t.Fatalf("events %v, expected %v", got, want)
	}
	// a failed load does not retry
	err2 := r.Load("b2")
	if err2 == nil {
		t.Fatal("reload of failed asset succeeded")
	}
	if got := rec.kinds(); !kindsEqual(got, want) {
		t.Errorf("retry fired events: %v", got)
	}
}

func TestLoadWrongType(t *testing.T) {
	r := NewLoadingRegistry(store.NewMemory(), 0)
	r.Add(&Asset{ID: "t", Type: "texture", URL: "a.png"})
	if err := r.Load("t"); err == nil {
		t.Error("loading a texture directly succeeded")
	}
	if err := r.Load("missing"); err == nil {
		t.Error("loading an unknown id succeeded")
	}
}

func TestLoadWithoutLoader(t *testing.T) {
	r := NewRegistry()
	r.Add(&Asset{ID: "b", Type: TypeBundle, URL: "b.pack"})
	if err := r.Load("b"); err != ErrNoLoader {
		t.Errorf("Load returned %v, expected ErrNoLoader", err)
	}
}
