// Package bundle resolves file URLs against the pack bundles containing
// them.
//
// The registry listens to the asset registry. Every bundle asset added
// there gets a descriptor here, and the member list in the bundle's
// manifest is indexed two ways: by member asset id, and by every file
// URL those members occupy. Both views share one membership set per
// asset, so the sets stay consistent by construction. Requests for a URL
// whose bundle is still loading are queued and drained, in order, when
// the bundle arrives.
package bundle

import (
	"fmt"
	"sync"

	"github.com/sheafkit/sheaf/asset"
	"github.com/sheafkit/sheaf/pack"
)

// State of a bundle descriptor. A descriptor starts Unloaded and moves
// through Loading to exactly one of Loaded or Errored. There is no
// reload; replacing the bundle asset makes a fresh descriptor.
type State int

const (
	Unloaded State = iota
	Loading
	Loaded
	Errored
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Errored:
		return "errored"
	}
	return "unknown"
}

// descriptor is the registry's record of one bundle. Mutable fields are
// guarded by the registry lock and only change inside event handlers.
type descriptor struct {
	id       string
	seq      int      // registration order, used to break ties
	assets   []string // member asset ids, manifest order
	state    State
	resource *pack.Resource
	err      error
}

func (d *descriptor) lists(assetID string) bool {
	for _, aid := range d.assets {
		if aid == assetID {
			return true
		}
	}
	return false
}

// Descriptor is a point-in-time copy of one bundle's record.
type Descriptor struct {
	ID     string
	Assets []string
	State  State
	Err    error
}

func (d *descriptor) snapshot() Descriptor {
	return Descriptor{
		ID:     d.id,
		Assets: append([]string(nil), d.assets...),
		State:  d.state,
		Err:    d.err,
	}
}

// A memberSet is the ordered set of bundles covering one asset. The same
// set object is installed in the asset view and under every URL the
// asset occupies, so index cleanup can find aliases by identity.
type memberSet struct {
	list []*descriptor
}

func (s *memberSet) add(d *descriptor) {
	for _, e := range s.list {
		if e == d {
			return
		}
	}
	s.list = append(s.list, d)
}

func (s *memberSet) remove(d *descriptor) bool {
	for i, e := range s.list {
		if e == d {
			s.list = append(s.list[:i], s.list[i+1:]...)
			return true
		}
	}
	return false
}

func (s *memberSet) empty() bool {
	return len(s.list) == 0
}

// search returns the first loaded bundle holding its resource and the
// first loading bundle, in registration order. Either may be nil.
func (s *memberSet) search() (loaded, loading *descriptor) {
	for _, d := range s.list {
		switch {
		case loaded == nil && d.state == Loaded && d.resource != nil:
			loaded = d
		case loading == nil && d.state == Loading:
			loading = d
		}
	}
	return
}

// A LoadFunc receives the result of a LoadURL call: a retrievable handle
// for the file, or an error. It is called exactly once.
type LoadFunc func(h *pack.Handle, err error)

// A Registry resolves file URLs to the bundles that can provide them.
// Create one with NewRegistry and release it with Destroy. All methods
// are goroutine safe.
type Registry struct {
	m         sync.RWMutex
	assets    *asset.Registry
	catalog   map[string]*descriptor // bundle id -> record
	byAsset   map[string]*memberSet  // member asset id -> covering bundles
	byURL     map[string]*memberSet  // normalized URL -> same set objects
	pending   map[string][]LoadFunc  // normalized URL -> waiting requests
	cache     ManifestCache          // optional, may be nil
	nextseq   int
	destroyed bool
}

// NewRegistry returns a registry watching the given asset registry. It
// subscribes immediately, so bundle assets added from now on are
// tracked. Assets already present are picked up with a scan.
func NewRegistry(assets *asset.Registry) *Registry {
	r := &Registry{
		assets:  assets,
		catalog: make(map[string]*descriptor),
		byAsset: make(map[string]*memberSet),
		byURL:   make(map[string]*memberSet),
		pending: make(map[string][]LoadFunc),
	}
	assets.Subscribe(r)
	for _, a := range assets.List() {
		r.OnAssetEvent(asset.Event{Kind: asset.Add, Asset: a})
	}
	return r
}

// SetManifestCache gives the registry a persistent manifest cache.
// Bundle registrations are written through to it and removals delete
// from it. Bundles already in the catalog are written through now, so
// registrations made before the cache was available are not lost.
func (r *Registry) SetManifestCache(mc ManifestCache) {
	type entry struct {
		id      string
		members []string
	}
	r.m.Lock()
	r.cache = mc
	var save []entry
	if mc != nil {
		for id, d := range r.catalog {
			save = append(save, entry{id: id, members: d.assets})
		}
	}
	r.m.Unlock()
	for _, e := range save {
		mc.Set(e.id, e.members)
	}
}

// BundlesForAsset returns a snapshot of the bundles covering the given
// asset id, in registration order.
func (r *Registry) BundlesForAsset(assetID string) []Descriptor {
	r.m.RLock()
	defer r.m.RUnlock()
	set := r.byAsset[assetID]
	if set == nil {
		return nil
	}
	result := make([]Descriptor, 0, len(set.list))
	for _, d := range set.list {
		result = append(result, d.snapshot())
	}
	return result
}

// BundlesForURL returns a snapshot of the bundles covering the given
// URL, in registration order. The query string, if any, is ignored.
func (r *Registry) BundlesForURL(url string) []Descriptor {
	norm := asset.NormalizeURL(url)
	r.m.RLock()
	defer r.m.RUnlock()
	set := r.byURL[norm]
	if set == nil {
		return nil
	}
	result := make([]Descriptor, 0, len(set.list))
	for _, d := range set.list {
		result = append(result, d.snapshot())
	}
	return result
}

// List returns a snapshot of every bundle in the registry, in no
// particular order.
func (r *Registry) List() []Descriptor {
	r.m.RLock()
	defer r.m.RUnlock()
	result := make([]Descriptor, 0, len(r.catalog))
	for _, d := range r.catalog {
		result = append(result, d.snapshot())
	}
	return result
}

// Get returns a snapshot of the bundle with the given id.
func (r *Registry) Get(id string) (Descriptor, bool) {
	r.m.RLock()
	defer r.m.RUnlock()
	d := r.catalog[id]
	if d == nil {
		return Descriptor{}, false
	}
	return d.snapshot(), true
}

// HasURL reports whether any bundle, in any state, covers the given URL.
func (r *Registry) HasURL(url string) bool {
	norm := asset.NormalizeURL(url)
	r.m.RLock()
	defer r.m.RUnlock()
	set := r.byURL[norm]
	return set != nil && !set.empty()
}

// CanLoadURL reports whether a bundle covering the given URL is loaded
// or loading, that is, whether a LoadURL would succeed now or be queued.
func (r *Registry) CanLoadURL(url string) bool {
	norm := asset.NormalizeURL(url)
	r.m.RLock()
	defer r.m.RUnlock()
	set := r.byURL[norm]
	if set == nil {
		return false
	}
	loaded, loading := set.search()
	return loaded != nil || loading != nil
}

// LoadURL resolves the given URL to a file handle. If a covering bundle
// is loaded the continuation is called synchronously, before LoadURL
// returns. If one is still loading the continuation is queued and called
// when that URL's outcome is known; queued requests for one URL are
// answered in arrival order. Otherwise the continuation is called
// synchronously with an error. It is called exactly once either way.
//
// When more than one bundle covers the URL, the first loaded one in
// registration order wins, then the first loading one.
func (r *Registry) LoadURL(url string, fn LoadFunc) {
	norm := asset.NormalizeURL(url)
	r.m.Lock()
	if r.destroyed {
		r.m.Unlock()
		fn(nil, errDestroyed)
		return
	}
	set := r.byURL[norm]
	if set == nil || set.empty() {
		r.m.Unlock()
		fn(nil, errNotFound(url))
		return
	}
	loaded, loading := set.search()
	switch {
	case loaded != nil:
		h := loaded.resource.Handle(asset.DecodePath(norm))
		r.m.Unlock()
		if h == nil {
			fn(nil, errNotInBundle(loaded.id, url))
			return
		}
		fn(h, nil)
	case loading != nil:
		r.pending[norm] = append(r.pending[norm], fn)
		r.m.Unlock()
	default:
		r.m.Unlock()
		fn(nil, errNotFound(url))
	}
}

// Destroy unsubscribes from the asset registry, fails every queued
// request, and clears the indices. The registry is unusable afterward.
func (r *Registry) Destroy() {
	r.assets.Unsubscribe(r)
	r.m.Lock()
	if r.destroyed {
		r.m.Unlock()
		return
	}
	r.destroyed = true
	var calls []call
	for _, q := range r.pending {
		for _, fn := range q {
			calls = append(calls, call{fn: fn, err: errDestroyed})
		}
	}
	ids := make([]string, 0, len(r.catalog))
	for id := range r.catalog {
		ids = append(ids, id)
	}
	r.catalog = make(map[string]*descriptor)
	r.byAsset = make(map[string]*memberSet)
	r.byURL = make(map[string]*memberSet)
	r.pending = make(map[string][]LoadFunc)
	r.m.Unlock()
	for _, id := range ids {
		r.assets.UnsubscribeAsset(id, r)
	}
	invoke(calls)
}

// The error messages are part of the API; hosts match on them.

func errNotFound(url string) error {
	return fmt.Errorf("URL %s not found in any bundles", url)
}

func errLoadFailed(id string) error {
	return fmt.Errorf("Bundle %s failed to load", id)
}

func errNotInBundle(id, url string) error {
	return fmt.Errorf("Bundle %s does not contain URL %s", id, url)
}

var errDestroyed = fmt.Errorf("bundle registry destroyed")

// a call is one continuation invocation owed to a caller, built under
// the lock and delivered outside it.
type call struct {
	fn     LoadFunc
	handle *pack.Handle
	err    error
}

func invoke(calls []call) {
	for _, c := range calls {
		c.fn(c.handle, c.err)
	}
}
