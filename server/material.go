package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/sheafkit/sheaf/material"
)

// MaterialHandler handles GET requests to "/material/*url". The url is
// resolved the same way as a file request, but the content is decoded as a
// material file and returned in canonical form: blend mode expanded into
// blend factors, render state and color fields filled in, and any
// unrecognized fields passed through under Params.
func (s *RESTServer) MaterialHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rawurl := strings.TrimPrefix(ps.ByName("url"), "/")

	if !s.Bundles.CanLoadURL(rawurl) && s.Bundles.HasURL(rawurl) {
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
	rc, err := h.Open()
	if err != nil {
		w.WriteHeader(500)
		fmt.Fprintln(w, err.Error())
		return
	}
	state, err := material.Decode(rc)
	rc.Close()
	if err != nil {
		w.WriteHeader(500)
		fmt.Fprintf(w, "decoding %s: %s\n", h.Name(), err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.Encode(state)
}
