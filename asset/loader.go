package asset

import (
	"github.com/golang/groupcache/singleflight"
	"github.com/pkg/errors"

	"github.com/sheafkit/sheaf/pack"
	"github.com/sheafkit/sheaf/store"
	"github.com/sheafkit/sheaf/util"
)

// loader opens pack containers from a store.
type loader struct {
	st     store.ROStore
	gate   *util.Gate         // bounds containers being opened at once
	flight singleflight.Group // merges concurrent loads, keyed by asset id
}

// NewLoadingRegistry returns a registry that can load bundle containers
// from the given store. At most maxload containers are opened at a time;
// pass 0 for a reasonable default.
func NewLoadingRegistry(st store.ROStore, maxload int) *Registry {
	if maxload <= 0 {
		maxload = 4
	}
	r := NewRegistry()
	r.loader = &loader{st: st, gate: util.NewGate(maxload)}
	return r
}

// ErrNoLoader means Load was called on a registry built without a store.
var ErrNoLoader = errors.New("registry has no loader")

// Load fetches and decodes the container behind the bundle asset with
// the given id. It blocks until the load finishes. Concurrent loads of
// the same id are merged. Loading an asset that is already loaded is a
// no-op, and one that already failed returns its original error without
// retrying.
func (r *Registry) Load(id string) error {
	if r.loader == nil {
		return ErrNoLoader
	}
	_, err := r.loader.flight.Do(id, func() (interface{}, error) {
		return nil, r.load(id)
	})
	return err
}

func (r *Registry) load(id string) error {
	r.m.Lock()
	a := r.assets[id]
	if a == nil {
		r.m.Unlock()
		return errors.Errorf("no asset %s", id)
	}
	if a.loaded {
		r.m.Unlock()
		return nil
	}
	if a.err != nil {
		err := a.err
		r.m.Unlock()
		return err
	}
	if a.Type != TypeBundle {
		r.m.Unlock()
		return errors.Errorf("asset %s is a %s, only bundles load directly", id, a.Type)
	}
	a.loading = true
	r.m.Unlock()
	r.dispatch(Event{Kind: LoadStart, Asset: a})

	ld := r.loader
	if !ld.gate.Enter() {
		err := errors.New("registry destroyed")
		r.fail(a, err)
		return err
	}
	res, err := pack.Open(ld.st, a.StoreKey())
	ld.gate.Leave()
	if err != nil {
		err = errors.Wrapf(err, "loading bundle %s", id)
		r.fail(a, err)
		return err
	}

	r.m.Lock()
	if r.assets[id] != a {
		// the asset was removed while its container was opening
		r.m.Unlock()
		res.Close()
		return errors.Errorf("asset %s removed while loading", id)
	}
	a.loading = false
	a.loaded = true
	a.resource = res
	r.m.Unlock()
	r.dispatch(Event{Kind: Load, Asset: a, Resource: res})
	return nil
}

func (r *Registry) fail(a *Asset, err error) {
	r.m.Lock()
	a.loading = false
	a.err = err
	r.m.Unlock()
	r.dispatch(Event{Kind: Error, Asset: a, Err: err})
}

func (l *loader) stop() {
	l.gate.Stop()
}
