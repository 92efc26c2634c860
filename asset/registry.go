package asset

import (
	"sort"
	"sync"

	"github.com/sheafkit/sheaf/pack"
)

// Kind enumerates the events a Registry emits.
type Kind int

const (
	// Add fires when an asset is registered. Sent to registry listeners.
	Add Kind = iota
	// Remove fires when an asset is unregistered. Sent to registry
	// listeners.
	Remove
	// LoadStart fires when a bundle asset begins loading. Sent to that
	// asset's listeners.
	LoadStart
	// Load fires when a bundle asset finishes loading. Sent to that
	// asset's listeners.
	Load
	// Error fires when a bundle asset fails to load. Sent to that
	// asset's listeners.
	Error
)

func (k Kind) String() string {
	switch k {
	case Add:
		return "add"
	case Remove:
		return "remove"
	case LoadStart:
		return "loadstart"
	case Load:
		return "load"
	case Error:
		return "error"
	}
	return "unknown"
}

// An Event describes one thing that happened to an asset.
type Event struct {
	Kind     Kind
	Asset    *Asset
	Resource *pack.Resource // the decoded container, set on Load
	Err      error          // what went wrong, set on Error
}

// A Listener receives events. Delivery is synchronous on the goroutine
// that caused the event and happens outside the registry lock, so a
// listener may call back into the registry. Each listener sees each
// event at most once.
type Listener interface {
	OnAssetEvent(Event)
}

// A Registry owns the set of known assets. Registry listeners hear Add
// and Remove for every asset; per-asset listeners hear LoadStart, Load,
// and Error for just their asset. All methods are goroutine safe.
type Registry struct {
	m       sync.RWMutex
	assets  map[string]*Asset
	nextseq int
	global  []Listener
	byAsset map[string][]Listener
	loader  *loader // nil if this registry cannot load containers
}

// NewRegistry returns an empty registry with no loader. Assets may be
// added and events subscribed, but Load will fail. Use NewLoadingRegistry
// for one that can open containers.
func NewRegistry() *Registry {
	return &Registry{
		assets:  make(map[string]*Asset),
		byAsset: make(map[string][]Listener),
	}
}

// Add registers an asset. Its URL is normalized first. Adding an id that
// already exists removes the old asset, so listeners see a Remove
// followed by an Add.
func (r *Registry) Add(a *Asset) {
	a.URL = NormalizeURL(a.URL)
	r.m.Lock()
	old := r.assets[a.ID]
	var res *pack.Resource
	if old != nil {
		delete(r.assets, a.ID)
		res = old.resource
		old.resource = nil
	}
	r.m.Unlock()
	if old != nil {
		if res != nil {
			res.Close()
		}
		r.dispatch(Event{Kind: Remove, Asset: old})
		r.m.Lock()
		delete(r.byAsset, a.ID)
		r.m.Unlock()
	}
	r.m.Lock()
	a.seq = r.nextseq
	r.nextseq++
	r.assets[a.ID] = a
	r.m.Unlock()
	r.dispatch(Event{Kind: Add, Asset: a})
}

// Remove unregisters the asset with the given id. Any listeners
// subscribed to that asset are dropped after the Remove event is
// delivered. Removing an unknown id does nothing.
func (r *Registry) Remove(id string) {
	r.m.Lock()
	a := r.assets[id]
	var res *pack.Resource
	if a != nil {
		delete(r.assets, id)
		res = a.resource
		a.resource = nil
	}
	r.m.Unlock()
	if a == nil {
		return
	}
	if res != nil {
		res.Close()
	}
	r.dispatch(Event{Kind: Remove, Asset: a})
	r.m.Lock()
	delete(r.byAsset, id)
	r.m.Unlock()
}

// Get returns the asset with the given id, or nil. The result is shared;
// treat it as read-only.
func (r *Registry) Get(id string) *Asset {
	r.m.RLock()
	defer r.m.RUnlock()
	return r.assets[id]
}

// List returns a snapshot of every asset in the registry, in the order
// they were registered. A re-registered asset counts as new.
func (r *Registry) List() []*Asset {
	r.m.RLock()
	defer r.m.RUnlock()
	result := make([]*Asset, 0, len(r.assets))
	for _, a := range r.assets {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].seq < result[j].seq })
	return result
}

// Status returns the load state of the asset with the given id.
func (r *Registry) Status(id string) (loading, loaded bool, err error) {
	r.m.RLock()
	defer r.m.RUnlock()
	a := r.assets[id]
	if a == nil {
		return false, false, nil
	}
	return a.loading, a.loaded, a.err
}

// Resource returns the decoded container behind a loaded bundle asset,
// or nil.
func (r *Registry) Resource(id string) *pack.Resource {
	r.m.RLock()
	defer r.m.RUnlock()
	a := r.assets[id]
	if a == nil {
		return nil
	}
	return a.resource
}

// Subscribe adds a registry listener receiving Add and Remove events.
func (r *Registry) Subscribe(l Listener) {
	r.m.Lock()
	r.global = append(r.global, l)
	r.m.Unlock()
}

// Unsubscribe removes a registry listener.
func (r *Registry) Unsubscribe(l Listener) {
	r.m.Lock()
	r.global = removeListener(r.global, l)
	r.m.Unlock()
}

// SubscribeAsset adds a listener receiving LoadStart, Load, and Error
// events for the asset with the given id.
func (r *Registry) SubscribeAsset(id string, l Listener) {
	r.m.Lock()
	r.byAsset[id] = append(r.byAsset[id], l)
	r.m.Unlock()
}

// UnsubscribeAsset removes a listener for the given asset id.
func (r *Registry) UnsubscribeAsset(id string, l Listener) {
	r.m.Lock()
	ls := removeListener(r.byAsset[id], l)
	if len(ls) == 0 {
		delete(r.byAsset, id)
	} else {
		r.byAsset[id] = ls
	}
	r.m.Unlock()
}

// Destroy drops every asset and listener and closes any decoded
// containers. The registry is unusable afterward.
func (r *Registry) Destroy() {
	r.m.Lock()
	var open []*pack.Resource
	for _, a := range r.assets {
		if a.resource != nil {
			open = append(open, a.resource)
			a.resource = nil
		}
	}
	r.assets = make(map[string]*Asset)
	r.global = nil
	r.byAsset = make(map[string][]Listener)
	r.m.Unlock()
	for _, res := range open {
		res.Close()
	}
	if r.loader != nil {
		r.loader.stop()
	}
}

// dispatch delivers the event to the listeners it concerns. The listener
// list is copied under the lock and invoked outside it.
func (r *Registry) dispatch(e Event) {
	var ls []Listener
	r.m.RLock()
	switch e.Kind {
	case Add, Remove:
		ls = append(ls, r.global...)
	default:
		ls = append(ls, r.byAsset[e.Asset.ID]...)
	}
	r.m.RUnlock()
	for _, l := range ls {
		l.OnAssetEvent(e)
	}
}

func removeListener(ls []Listener, l Listener) []Listener {
	for i := range ls {
		if ls[i] == l {
			return append(ls[:i], ls[i+1:]...)
		}
	}
	return ls
}
