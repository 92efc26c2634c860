package server

import (
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/sheafkit/sheaf/pack"
	"github.com/sheafkit/sheaf/util"
)

// do not verify a container any more often than every 6 months
const minDurationVerify = 180 * 24 * time.Hour

// StartVerify starts a background goroutine which reads each stored
// container end to end and compares every member against the checksums in
// its manifest. The VerifyDatabase says which container is due next, and
// receives the outcomes.
func (s *RESTServer) StartVerify() {
	s.verifystop = make(chan struct{})
	if s.VerifyRate > 0 {
		// VerifyRate is MB/hour and the counter takes bytes/second
		s.verifyrate = util.NewRateCounter(float64(s.VerifyRate) * 1000000 / 3600)
	}
	go s.verifyloop()
}

// StopVerify halts the background verification process. The process is not
// resumable once stopped.
func (s *RESTServer) StopVerify() {
	if s.verifystop != nil {
		close(s.verifystop)
	}
	if s.verifyrate != nil {
		// wakes any read waiting for credits
		s.verifyrate.Stop()
	}
}

func (s *RESTServer) verifyloop() {
	for {
		select {
		case <-s.verifystop:
			return
		default:
		}
		id := s.VerifyDatabase.NextVerify(time.Now())
		if id == "" {
			// sleep if no checks are due
			select {
			case <-time.After(time.Hour):
			case <-s.verifystop:
				return
			}
			continue
		}
		s.verifyBundle(id)
	}
}

// verifyBundle checks the container behind one bundle, records the outcome,
// and schedules the following check.
func (s *RESTServer) verifyBundle(id string) {
	log.Println("Verify start", id)
	// The container key usually comes from the registered asset. A bundle
	// removed from the registry keeps its verification schedule, so fall
	// back to the conventional key for its id.
	key := pack.Key(id)
	if a := s.Assets.Get(id); a != nil {
		key = a.StoreKey()
	}
	nb, problems, err := pack.Verify(s.Packs, key, s.verifyrate)
	if err == util.ErrStopped {
		// shutting down. leave this check scheduled for the next run
		return
	}
	status := "ok"
	var notes string
	switch {
	case err != nil:
		status = "error"
		notes = err.Error()
	case len(problems) > 0:
		status = "mismatch"
		notes = strings.Join(problems, "\n")
	}
	log.Println("Verify end", id, status, nb, "bytes")
	err = s.VerifyDatabase.UpdateVerify(id, status, notes)
	if err != nil {
		log.Println("verify", id, err)
	}
	err = s.VerifyDatabase.SetCheck(id, time.Now().Add(minDurationVerify))
	if err != nil {
		log.Println("verify", id, err)
	}
}

// statusValidate checks that its argument names a verification status. The
// empty string is allowed and means any status.
func statusValidate(s string) (string, error) {
	switch s {
	case "", "ok", "scheduled", "error", "mismatch":
		return s, nil
	}
	return "", fmt.Errorf("bad status %s", s)
}

// timeValidate parses a time parameter. The empty string and "*" give the
// zero time. Otherwise either a bare date or an RFC 3339 timestamp is
// accepted.
func timeValidate(s string) (time.Time, error) {
	if s == "" || s == "*" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
	}
	return t, err
}

var verifyTemplate = template.Must(template.New("verify").Parse(`<html>
<h1>Verification Records</h1>
<table>
<tr><th>ID</th><th>Bundle</th><th>Scheduled</th><th>Status</th><th>Notes</th></tr>
{{ range . }}
	<tr><td>{{ .ID }}</td>
	<td><a href="/verify/{{ .Bundle }}">{{ .Bundle }}</a></td>
	<td>{{ .Scheduled }}</td>
	<td>{{ .Status }}</td>
	<td>{{ .Notes }}</td></tr>
{{ end }}
</table>
</html>`))

// GetVerifyHandler handles GET /verify. The query parameters start, end,
// bundle, and status are optional and filter the records returned.
func (s *RESTServer) GetVerifyHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if s.VerifyDatabase == nil {
		w.WriteHeader(503)
		fmt.Fprintln(w, "verification is disabled")
		return
	}
	start, err := timeValidate(r.FormValue("start"))
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintln(w, err.Error())
		return
	}
	end, err := timeValidate(r.FormValue("end"))
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintln(w, err.Error())
		return
	}
	status, err := statusValidate(r.FormValue("status"))
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintln(w, err.Error())
		return
	}
	records, err := s.VerifyDatabase.GetVerify(start, end, r.FormValue("bundle"), status)
	if err != nil {
		w.WriteHeader(500)
		fmt.Fprintln(w, err.Error())
		return
	}
	writeHTMLorJSON(w, r, verifyTemplate, records)
}

// GetVerifyIdHandler handles GET /verify/:id. It returns every verification
// record kept for the given bundle.
func (s *RESTServer) GetVerifyIdHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if s.VerifyDatabase == nil {
		w.WriteHeader(503)
		fmt.Fprintln(w, "verification is disabled")
		return
	}
	id := ps.ByName("id")
	records, err := s.VerifyDatabase.GetVerify(time.Time{}, time.Time{}, id, "")
	if err != nil {
		w.WriteHeader(500)
		fmt.Fprintln(w, err.Error())
		return
	}
	if len(records) == 0 {
		w.WriteHeader(404)
		fmt.Fprintf(w, "No verification records for %s\n", id)
		return
	}
	writeHTMLorJSON(w, r, verifyTemplate, records)
}
