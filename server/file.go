package server

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/sheafkit/sheaf/bundle"
	"github.com/sheafkit/sheaf/pack"
	"github.com/sheafkit/sheaf/store"
)

// FileHandler handles GET and HEAD requests to "/file/*url". The url is
// resolved against the registered bundles; on GET the member's content is
// streamed back. A request for content in a bundle that is not loaded yet
// triggers the load, unless demand loading is disabled, in which case it
// receives a 503.
//
// HEAD reports coverage without touching any container: the X-Sheaf-Has-URL
// header tells whether any bundle covers the url, and X-Sheaf-Can-Load
// whether a GET would succeed without a new load.
func (s *RESTServer) FileHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	// the star parameter in httprouter returns the leading slash
	rawurl := strings.TrimPrefix(ps.ByName("url"), "/")

	if r.Method == "HEAD" {
		has := s.Bundles.HasURL(rawurl)
		w.Header().Set("X-Sheaf-Has-URL", strconv.FormatBool(has))
		w.Header().Set("X-Sheaf-Can-Load", strconv.FormatBool(s.Bundles.CanLoadURL(rawurl)))
		if !has {
			w.WriteHeader(404)
		}
		return
	}

	if !s.Bundles.CanLoadURL(rawurl) && s.Bundles.HasURL(rawurl) {
		// some bundle covers this url, but none is loaded or loading
		if !s.autoloadOn() {
			w.WriteHeader(503)
			fmt.Fprintln(w, "demand loading is disabled")
			return
		}
		s.loadCovering(rawurl)
	}

	h, err := s.resolve(rawurl)
	if err != nil {
		w.WriteHeader(404)
		fmt.Fprintln(w, err.Error())
		return
	}
	s.sendfile(w, h)
}

// loadCovering loads the first unloaded bundle covering the url, blocking
// until the load finishes, so a following resolve sees the outcome. If every
// covering bundle has already errored there is nothing to do; the resolve
// will fail on its own.
func (s *RESTServer) loadCovering(url string) {
	for _, d := range s.Bundles.BundlesForURL(url) {
		if d.State == bundle.Unloaded {
			err := s.Assets.Load(d.ID)
			if err != nil {
				log.Printf("load %s: %s", d.ID, err.Error())
			}
			return
		}
	}
}

type fileResult struct {
	h   *pack.Handle
	err error
}

// resolve runs the url through the bundle registry and waits for the
// answer. The wait only happens when a covering bundle is mid-load.
func (s *RESTServer) resolve(url string) (*pack.Handle, error) {
	done := make(chan fileResult, 1)
	s.Bundles.LoadURL(url, func(h *pack.Handle, err error) {
		done <- fileResult{h: h, err: err}
	})
	result := <-done
	return result.h, result.err
}

// sendfile streams the member file behind h. Content with a known checksum
// goes through the file cache. Cache entries are keyed by the checksum
// itself, so the cache can never serve stale bytes: changed content has a
// new key.
func (s *RESTServer) sendfile(w http.ResponseWriter, h *pack.Handle) {
	var key string
	if ent := h.Entry(); ent != nil {
		key = ent.MD5
	}
	if key == "" {
		// not in the manifest, so no checksum to cache under
		s.copyfile(w, h, "", nil)
		return
	}

	rac, size, err := s.Cache.Get(key)
	if err == nil && rac != nil {
		w.Header().Set("ETag", strconv.Quote(key))
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		io.Copy(w, store.NewReader(rac))
		rac.Close()
		return
	}

	cw, err := s.Cache.Put(key)
	if err != nil {
		// either the entry is being filled by another request or the
		// content is too big for the cache. serve it directly.
		cw = nil
	}
	s.copyfile(w, h, key, cw)
}

// copyfile extracts the member content and streams it to w, teeing into the
// cache writer when one is given. An interrupted copy would leave truncated
// content under a full-content key, so the entry is deleted if the copy
// falls short.
func (s *RESTServer) copyfile(w http.ResponseWriter, h *pack.Handle, key string, cw io.WriteCloser) {
	rc, err := h.Open()
	if err != nil {
		if cw != nil {
			cw.Close()
			s.Cache.Delete(key)
		}
		w.WriteHeader(500)
		fmt.Fprintln(w, err.Error())
		return
	}
	defer rc.Close()
	if key != "" {
		w.Header().Set("ETag", strconv.Quote(key))
	}
	w.Header().Set("Content-Length", strconv.FormatInt(h.Size(), 10))
	var dst io.Writer = w
	if cw != nil {
		dst = io.MultiWriter(w, cw)
	}
	n, err := io.Copy(dst, rc)
	if cw != nil {
		cw.Close()
		if err != nil || n != h.Size() {
			s.Cache.Delete(key)
		}
	}
	if err != nil {
		log.Printf("sendfile %s: %s", h.Name(), err.Error())
	}
}
