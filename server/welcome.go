package server

import (
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// Version is the version string reported by the API. It is set at build
// time by the linker.
var Version = "devel"

func WelcomeHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	fmt.Fprintf(w, "Sheaf (%s)\n", Version)
}
