package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/sheafkit/sheaf/store"
)

// These routes expose the raw pack containers sitting in the store. They
// are what a Mirror store on another sheaf server reads through.

// BundleListHandler handles GET requests to "/bundle/list".
func (s *RESTServer) BundleListHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	c := s.Packs.List()
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	// we encode this as JSON ourselves....how could it go wrong?
	w.Write([]byte("["))
	// comma starts as a space
	var comma = ' '
	for key := range c {
		fmt.Fprintf(w, "%c\"%s\"", comma, key)
		comma = ','
	}
	w.Write([]byte("]"))
}

// BundleListPrefixHandler handles GET requests to "/bundle/list/:prefix".
func (s *RESTServer) BundleListPrefixHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	prefix := ps.ByName("prefix")

	result, err := s.Packs.ListPrefix(prefix)
	if err != nil {
		fmt.Fprintln(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.Encode(result) // ignore any error
}

// BundleOpenHandler handles GET requests to "/bundle/open/:key"
func (s *RESTServer) BundleOpenHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	key := ps.ByName("key")

	data, size, err := s.Packs.Open(key)
	if err != nil {
		w.WriteHeader(404)
		fmt.Fprintln(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
	io.Copy(w, store.NewReader(data))
	data.Close()
}
