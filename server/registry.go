package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/sheafkit/sheaf/asset"
)

// registryEntry is the view of one registered asset returned by the
// /registry routes.
type registryEntry struct {
	ID      string   `json:"id"`
	Type    string   `json:"type"`
	URL     string   `json:"url,omitempty"`
	Members []string `json:"members,omitempty"`
	Pages   int      `json:"pages,omitempty"`
	URLs    []string `json:"urls,omitempty"`
	State   string   `json:"state,omitempty"` // bundle assets only
	Error   string   `json:"error,omitempty"`
}

func (s *RESTServer) registryEntry(a *asset.Asset) registryEntry {
	entry := registryEntry{
		ID:      a.ID,
		Type:    a.Type,
		URL:     a.URL,
		Members: a.Members,
		Pages:   a.Pages,
		URLs:    a.FileURLs(),
	}
	if a.Type == asset.TypeBundle {
		if d, ok := s.Bundles.Get(a.ID); ok {
			entry.State = d.State.String()
			if d.Err != nil {
				entry.Error = d.Err.Error()
			}
		}
	}
	return entry
}

var registryTemplate = template.Must(template.New("registry").Parse(`<html>
<h1>Asset Registry</h1>
<table>
<tr><th>ID</th><th>Type</th><th>URL</th><th>State</th></tr>
{{ range . }}
	<tr><td><a href="/registry/{{ .ID }}">{{ .ID }}</a></td>
	<td>{{ .Type }}</td>
	<td>{{ .URL }}</td>
	<td>{{ .State }} {{ .Error }}</td></tr>
{{ end }}
</table>
</html>`))

// RegistryListHandler handles GET requests to "/registry".
func (s *RESTServer) RegistryListHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	assets := s.Assets.List()
	entries := make([]registryEntry, 0, len(assets))
	for _, a := range assets {
		entries = append(entries, s.registryEntry(a))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	writeHTMLorJSON(w, r, registryTemplate, entries)
}

var registryIDTemplate = template.Must(template.New("registryid").Parse(`<html>
<h1>Asset {{ .ID }}</h1>
<dl>
<dt>Type</dt><dd>{{ .Type }}</dd>
<dt>URL</dt><dd>{{ .URL }}</dd>
<dt>State</dt><dd>{{ .State }} {{ .Error }}</dd>
<dt>Members</dt><dd>{{ range .Members }}{{ . }} {{ end }}</dd>
<dt>URLs</dt><dd>{{ range .URLs }}{{ . }} {{ end }}</dd>
</dl>
</html>`))

// RegistryGetHandler handles GET requests to "/registry/:id".
func (s *RESTServer) RegistryGetHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	a := s.Assets.Get(id)
	if a == nil {
		w.WriteHeader(404)
		fmt.Fprintf(w, "Unknown asset %s\n", id)
		return
	}
	writeHTMLorJSON(w, r, registryIDTemplate, s.registryEntry(a))
}

// RegistryAddHandler handles POST requests to "/registry". The body is
// either an asset table, a JSON array of asset objects, or a single asset
// object. Bundle assets registered without their member list are filled in
// from the manifest database, which remembers the membership from earlier
// runs.
func (s *RESTServer) RegistryAddHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rd := bufio.NewReader(r.Body)
	var assets []*asset.Asset
	var err error
	if isJSONArray(rd) {
		assets, err = asset.ParseTable(rd)
	} else {
		var a *asset.Asset
		a, err = asset.ParseAssetJSON(rd)
		if a != nil {
			assets = []*asset.Asset{a}
		}
	}
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintln(w, err.Error())
		return
	}
	for _, a := range assets {
		if a.Type == asset.TypeBundle && len(a.Members) == 0 {
			a.Members = s.Manifests.Lookup(a.ID)
			if a.Members != nil {
				log.Printf("Recovered membership of bundle %s (%d assets)",
					a.ID, len(a.Members))
			}
		}
		s.Assets.Add(a)
		if a.Type == asset.TypeBundle {
			s.scheduleVerify(a.ID)
		}
	}
	fmt.Fprintf(w, "{\"added\": %d}\n", len(assets))
}

// scheduleVerify gives a container its first verification pass. A bundle
// already in the verification schedule is left alone.
func (s *RESTServer) scheduleVerify(id string) {
	if s.VerifyDatabase == nil {
		return
	}
	when, err := s.VerifyDatabase.LookupCheck(id)
	if err == nil && when.IsZero() {
		s.VerifyDatabase.SetCheck(id, time.Now())
	}
}

// isJSONArray peeks past any leading whitespace and reports whether a JSON
// array is next. An asset table may be an object or an array, but a single
// asset is always an object.
func isJSONArray(rd *bufio.Reader) bool {
	for {
		c, err := rd.ReadByte()
		if err != nil {
			return false
		}
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		}
		rd.UnreadByte()
		return c == '['
	}
}

// RegistryDeleteHandler handles DELETE requests to "/registry/:id".
func (s *RESTServer) RegistryDeleteHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if s.Assets.Get(id) == nil {
		w.WriteHeader(404)
		fmt.Fprintf(w, "Unknown asset %s\n", id)
		return
	}
	s.Assets.Remove(id)
	fmt.Fprintf(w, "Removed %s\n", id)
}

// RegistryLoadHandler handles POST requests to "/registry/:id/load". It
// starts loading the container behind the given bundle asset. The load
// happens in the background; poll GET /registry/:id for the outcome.
func (s *RESTServer) RegistryLoadHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	a := s.Assets.Get(id)
	if a == nil {
		w.WriteHeader(404)
		fmt.Fprintf(w, "Unknown asset %s\n", id)
		return
	}
	if a.Type != asset.TypeBundle {
		w.WriteHeader(400)
		fmt.Fprintf(w, "Asset %s is not a bundle\n", id)
		return
	}
	go func() {
		err := s.Assets.Load(id)
		if err != nil {
			log.Printf("load %s: %s", id, err.Error())
		}
	}()
	w.WriteHeader(202)
	fmt.Fprintf(w, "Loading %s\n", id)
}

// AssetBundlesHandler handles GET requests to "/asset/:id/bundles". It
// lists the bundles covering the given asset, in registration order.
func (s *RESTServer) AssetBundlesHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	ds := s.Bundles.BundlesForAsset(id)
	type view struct {
		ID    string `json:"id"`
		State string `json:"state"`
		Error string `json:"error,omitempty"`
	}
	result := make([]view, 0, len(ds))
	for _, d := range ds {
		v := view{ID: d.ID, State: d.State.String()}
		if d.Err != nil {
			v.Error = d.Err.Error()
		}
		result = append(result, v)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.Encode(result)
}
