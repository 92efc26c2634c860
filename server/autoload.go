package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// Demand loading lets a file request trigger the load of a covering bundle
// instead of failing outright. It is enabled at startup, and an admin can
// toggle it at runtime, say to quiet the server down during maintenance.

// EnableAutoload allows file requests to trigger bundle loads.
func (s *RESTServer) EnableAutoload() {
	log.Println("Enabling demand loading")
	s.am.Lock()
	s.autoload = true
	s.am.Unlock()
}

// DisableAutoload keeps file requests from triggering bundle loads. Requests
// for content in an unloaded bundle will receive a 503.
func (s *RESTServer) DisableAutoload() {
	log.Println("Disabling demand loading")
	s.am.Lock()
	s.autoload = false
	s.am.Unlock()
}

func (s *RESTServer) autoloadOn() bool {
	s.am.RLock()
	defer s.am.RUnlock()
	return s.autoload
}

// SetAutoloadHandler handles requests to PUT /admin/autoload/:status
func (s *RESTServer) SetAutoloadHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	status := ps.ByName("status")

	switch status {
	case "on":
		w.WriteHeader(201)
		s.EnableAutoload()
	case "off":
		w.WriteHeader(201)
		s.DisableAutoload()
	default:
		w.WriteHeader(503)
		log.Println("PUT /admin/autoload: unknown parameter ", status)
	}
}

// GetAutoloadHandler handles requests from GET /admin/autoload
func (s *RESTServer) GetAutoloadHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if s.autoloadOn() {
		fmt.Fprintf(w, "On")
	} else {
		fmt.Fprintf(w, "Off")
	}
}
