package bundle

import (
	"sort"

	"github.com/sheafkit/sheaf/asset"
)

// OnAssetEvent makes the registry an asset.Listener. It receives global
// add and remove events plus the load lifecycle of each bundle asset the
// registry has subscribed to. Not intended to be called directly.
func (r *Registry) OnAssetEvent(e asset.Event) {
	if e.Asset == nil {
		return
	}
	switch e.Kind {
	case asset.Add:
		if e.Asset.Type == asset.TypeBundle {
			r.register(e.Asset)
		} else {
			r.indexAsset(e.Asset)
		}
	case asset.Remove:
		if e.Asset.Type == asset.TypeBundle {
			r.unregister(e.Asset)
		} else {
			r.unindexAsset(e.Asset)
		}
	case asset.LoadStart:
		r.loadStarted(e.Asset.ID)
	case asset.Load:
		r.loaded(e.Asset.ID, e)
	case asset.Error:
		r.failed(e.Asset.ID, e.Err)
	}
}

// register makes a descriptor for a new bundle asset and indexes its
// member list. URL aliases are installed for members already known to
// the asset registry; late members get theirs in indexAsset.
func (r *Registry) register(a *asset.Asset) {
	d := &descriptor{id: a.ID, assets: append([]string(nil), a.Members...)}
	r.m.Lock()
	if r.destroyed || r.catalog[d.id] != nil {
		r.m.Unlock()
		return
	}
	d.seq = r.nextseq
	r.nextseq++
	r.catalog[d.id] = d
	for _, aid := range d.assets {
		set := r.byAsset[aid]
		if set == nil {
			set = &memberSet{}
			r.byAsset[aid] = set
		}
		set.add(d)
		if member := r.assets.Get(aid); member != nil {
			for _, u := range member.FileURLs() {
				r.byURL[asset.NormalizeURL(u)] = set
			}
		}
	}
	mc := r.cache
	r.m.Unlock()
	r.assets.SubscribeAsset(d.id, r)
	if mc != nil {
		mc.Set(d.id, d.assets)
	}
}

// unregister removes a bundle's descriptor and re-resolves any requests
// that were waiting on URLs it covered. A queue survives if another
// bundle covering its URL is loaded or loading; otherwise it fails as
// not found, the same answer a fresh LoadURL would get.
func (r *Registry) unregister(a *asset.Asset) {
	r.m.Lock()
	d := r.catalog[a.ID]
	if d == nil {
		r.m.Unlock()
		return
	}
	delete(r.catalog, a.ID)
	covered := r.coveredURLs(d)
	for aid, set := range r.byAsset {
		if set.remove(d) && set.empty() {
			delete(r.byAsset, aid)
			for u, uset := range r.byURL {
				if uset == set {
					delete(r.byURL, u)
				}
			}
		}
	}
	var calls []call
	for _, u := range covered {
		calls = r.resettle(u, errNotFound(u), calls)
	}
	mc := r.cache
	r.m.Unlock()
	r.assets.UnsubscribeAsset(a.ID, r)
	if mc != nil {
		mc.Delete(a.ID)
	}
	invoke(calls)
}

// indexAsset installs URL aliases for an ordinary asset. If the asset is
// returning after a removal its membership set is rebuilt from the
// manifests in the catalog.
func (r *Registry) indexAsset(a *asset.Asset) {
	r.m.Lock()
	defer r.m.Unlock()
	if r.destroyed {
		return
	}
	set := r.byAsset[a.ID]
	if set == nil {
		var ds []*descriptor
		for _, d := range r.catalog {
			if d.lists(a.ID) {
				ds = append(ds, d)
			}
		}
		if len(ds) > 0 {
			sort.Slice(ds, func(i, j int) bool { return ds[i].seq < ds[j].seq })
			set = &memberSet{list: ds}
			r.byAsset[a.ID] = set
		}
	}
	if set == nil {
		return // no bundle lists this asset
	}
	for _, u := range a.FileURLs() {
		r.byURL[asset.NormalizeURL(u)] = set
	}
}

// unindexAsset drops an ordinary asset's membership entry and URL
// aliases. Requests queued on those URLs are re-resolved; with the
// aliases gone they fail as not found unless a different asset still
// claims the same URL.
func (r *Registry) unindexAsset(a *asset.Asset) {
	r.m.Lock()
	set := r.byAsset[a.ID]
	if set == nil {
		r.m.Unlock()
		return
	}
	delete(r.byAsset, a.ID)
	urls := a.FileURLs()
	for i, u := range urls {
		urls[i] = asset.NormalizeURL(u)
		if r.byURL[urls[i]] == set {
			delete(r.byURL, urls[i])
		}
	}
	var calls []call
	for _, u := range urls {
		calls = r.resettle(u, errNotFound(u), calls)
	}
	r.m.Unlock()
	invoke(calls)
}

func (r *Registry) loadStarted(id string) {
	r.m.Lock()
	d := r.catalog[id]
	if d != nil && d.state == Unloaded {
		d.state = Loading
	}
	r.m.Unlock()
}

// loaded records a bundle's resource and answers every request queued on
// a URL the bundle covers, oldest first. A load event with no resource
// counts as a failure.
func (r *Registry) loaded(id string, e asset.Event) {
	if e.Resource == nil {
		r.failed(id, nil)
		return
	}
	r.m.Lock()
	d := r.catalog[id]
	if d == nil || d.state == Loaded || d.state == Errored {
		r.m.Unlock()
		return
	}
	d.state = Loaded
	d.resource = e.Resource
	var calls []call
	for _, u := range r.coveredURLs(d) {
		calls = r.drain(u, d, calls)
	}
	r.m.Unlock()
	invoke(calls)
}

// failed marks a bundle errored and re-resolves requests queued on its
// URLs. A queue survives if another covering bundle is loaded or
// loading; otherwise every request in it fails.
func (r *Registry) failed(id string, err error) {
	r.m.Lock()
	d := r.catalog[id]
	if d == nil || d.state == Loaded || d.state == Errored {
		r.m.Unlock()
		return
	}
	d.state = Errored
	d.err = err
	if d.err == nil {
		d.err = errLoadFailed(id)
	}
	var calls []call
	for _, u := range r.coveredURLs(d) {
		calls = r.resettle(u, d.err, calls)
	}
	r.m.Unlock()
	invoke(calls)
}

// coveredURLs lists the normalized file URLs of d's members, in manifest
// order. Members the asset registry does not know yet contribute
// nothing. Call with the lock held.
func (r *Registry) coveredURLs(d *descriptor) []string {
	var urls []string
	for _, aid := range d.assets {
		a := r.assets.Get(aid)
		if a == nil {
			continue
		}
		for _, u := range a.FileURLs() {
			urls = append(urls, asset.NormalizeURL(u))
		}
	}
	return urls
}

// drain empties the queue for u, answering each request from d's
// resource. Call with the lock held; returned calls are made after it is
// released.
func (r *Registry) drain(u string, d *descriptor, calls []call) []call {
	q := r.pending[u]
	if len(q) == 0 {
		return calls
	}
	delete(r.pending, u)
	h := d.resource.Handle(asset.DecodePath(u))
	var err error
	if h == nil {
		err = errNotInBundle(d.id, u)
	}
	for _, fn := range q {
		calls = append(calls, call{fn: fn, handle: h, err: err})
	}
	return calls
}

// resettle re-resolves the queue for u after the bundle it was waiting
// on went away. A loaded survivor answers now, a loading survivor keeps
// the queue, and no survivor fails it with the given error. Call with
// the lock held.
func (r *Registry) resettle(u string, failure error, calls []call) []call {
	q := r.pending[u]
	if len(q) == 0 {
		return calls
	}
	set := r.byURL[u]
	if set != nil {
		loaded, loading := set.search()
		if loaded != nil {
			return r.drain(u, loaded, calls)
		}
		if loading != nil {
			return calls // another bundle is on the way
		}
	}
	delete(r.pending, u)
	for _, fn := range q {
		calls = append(calls, call{fn: fn, err: failure})
	}
	return calls
}
