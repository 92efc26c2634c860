package server

import (
	"encoding/json"
	"expvar"
	"fmt"
	"html/template"
	"log"
	"net/http"
	_ "net/http/pprof" // for pprof server
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/facebookgo/httpdown"
	"github.com/julienschmidt/httprouter"

	"github.com/sheafkit/sheaf/asset"
	"github.com/sheafkit/sheaf/bundle"
	"github.com/sheafkit/sheaf/filecache"
	"github.com/sheafkit/sheaf/store"
	"github.com/sheafkit/sheaf/util"
)

// RESTServer holds the configuration for a sheaf REST API server.
//
// Set all the public fields and then call Run. Run will listen on the given
// port and handle requests. At the moment there is no maximum simultaneous
// request limit. Do not change any fields after calling Run.
//
// Run will also start a goroutine to verify stored containers against their
// manifests.
//
// There are two levels of configuration. It should be enough to only set
// Packs and CacheDir. The other fields are exposed to allow more
// customization.
type RESTServer struct {
	// Port number to listen on. defaults to 14000
	PortNumber string
	PProfPort  string

	// Packs is the store holding the pack containers. Run will panic if
	// Packs is nil.
	Packs store.ROStore

	// MaxConcurrentLoads limits how many containers are decoded at a
	// time. Defaults to 2.
	MaxConcurrentLoads int

	// CacheDir is the path to put the file cache in the filesystem. It
	// may also be an s3: location. If CacheDir is empty then no file
	// content is cached, and the database is kept entirely in memory
	// (unless MySQL is set).
	CacheDir  string
	CacheSize int64 // in bytes

	// CacheTimeout, if set, expires cache entries after this duration
	// instead of keeping the cache under a maximum size.
	CacheTimeout time.Duration

	// Pass in a dial command to use a MySQL server as a database.
	// Otherwise a lightweight internal database is used, and placed inside
	// the CacheDir directory. The special value "memory" will run
	// the database entirely inside the server's memory. (useful for testing).
	// e.g. "user:password@tcp(localhost:5555)/dbname" or just "/dbname"
	// if everything else can be the default. Can also use domain sockets:
	// "user@unix(/path/to/socket)/dbname"
	MySQL string

	// --- The following fields are more advanced and only need to be
	// set in special situations. ---

	// Validator does authentication by validating any user tokens
	// presented to the API. If this is nil then no authentication will be
	// done.
	Validator TokenValidator

	// Assets is the asset registry backing the resolver. If nil, Run
	// creates one that loads containers from Packs.
	Assets *asset.Registry

	// Bundles resolves file URLs against the registered bundles. If nil,
	// Run creates one subscribed to Assets.
	Bundles *bundle.Registry

	// Manifests remembers the member list of every registered bundle. Run
	// points it at the server's database, so a bundle registered without
	// its member list can recover the list from a previous run.
	Manifests bundle.ManifestCache

	// Cache keeps file content extracted from containers.
	Cache filecache.Cache

	// VerifyDatabase stores the records tracking past and future
	// verification passes over the stored containers.
	VerifyDatabase VerifyDB
	DisableVerify  bool

	// NoAutoload starts the server with demand loading turned off, so a
	// file request never triggers a bundle load. An admin can still turn
	// it on at runtime.
	NoAutoload bool

	// VerifyRate limits how fast the verifier reads containers, in
	// MB/hour. Zero means read at full speed.
	VerifyRate int64

	server     httpdown.Server   // used to close our listening socket
	verifystop chan struct{}     // is closed to tell the verifier to exit
	verifyrate *util.RateCounter // paces the verifier's reads, may be nil

	am       sync.RWMutex // protects autoload
	autoload bool         // may file requests trigger bundle loads?
}

// Run initializes and starts all the goroutines used by the server. It then
// blocks listening for and handling http requests.
func (s *RESTServer) Run() error {
	log.Println("==========")
	log.Printf("Starting Sheaf Server version %s", Version)
	log.Printf("CacheDir = %s", s.CacheDir)
	log.Printf("CacheSize = %d", s.CacheSize)

	if s.Packs == nil {
		panic("No container storage given. Packs is nil.")
	}

	if s.Validator == nil {
		log.Println("No Validator given")
		s.Validator = NobodyValidator{}
	}

	// init database
	var db interface {
		VerifyDB
		bundle.ManifestCache
	}
	var err error
	if s.MySQL != "" {
		log.Printf("Using MySQL")
		db, err = NewMysqlCache(s.MySQL)
	} else {
		var dbpath = "memory"
		if dir := s.localdir(); dir != "" {
			dbpath = filepath.Join(dir, "sheaf.ql")
		}
		log.Printf("Using internal database at %s", dbpath)
		db, err = NewQlCache(dbpath)
	}
	if db == nil || err != nil {
		panic("problem setting up database")
	}

	// init registries
	if s.Assets == nil {
		n := s.MaxConcurrentLoads
		if n == 0 {
			n = 2
		}
		s.Assets = asset.NewLoadingRegistry(s.Packs, n)
	}
	if s.Bundles == nil {
		s.Bundles = bundle.NewRegistry(s.Assets)
	}
	if s.Manifests == nil {
		s.Manifests = db
	}
	s.Bundles.SetManifestCache(s.Manifests)

	// init autoload
	if s.NoAutoload {
		s.DisableAutoload()
	} else {
		s.EnableAutoload()
	}

	// init verification. The handlers use the database even when the
	// background process is off.
	if s.VerifyDatabase == nil {
		s.VerifyDatabase = db
	}
	if !s.DisableVerify {
		s.StartVerify()
	}

	// init file cache
	if s.Cache == nil {
		if s.CacheDir == "" || s.CacheSize == 0 {
			log.Println("Not using file cache")
			s.Cache = filecache.EmptyCache{}
		} else {
			fs := s.getcachestore("filecache")
			if s.CacheTimeout > 0 {
				s.Cache = filecache.NewTime(fs, s.CacheTimeout)
			} else {
				c := filecache.NewLRU(fs, s.CacheSize)
				go c.Scan()
				s.Cache = c
			}
		}
	}

	// for pprof
	if s.PProfPort != "" {
		log.Println("Starting PProf on port", s.PProfPort)
		go func() {
			log.Println(http.ListenAndServe(":"+s.PProfPort, nil))
		}()
	}
	log.Println("Listening on", s.PortNumber)

	h := httpdown.HTTP{}
	s.server, err = h.ListenAndServe(&http.Server{
		Addr:    ":" + s.PortNumber,
		Handler: s.addRoutes(),
	})
	if err != nil {
		log.Println(err)
		return err
	}
	return s.server.Wait()
}

// Stop will stop the server and return when all the server goroutines have
// exited and the socket closed.
func (s *RESTServer) Stop() error {
	s.StopVerify()
	s.Bundles.Destroy()
	s.Assets.Destroy()

	// then shutdown all the HTTP connections
	return s.server.Stop()
}

// localdir returns CacheDir as a filesystem path, or "" if CacheDir is
// empty or names a remote location.
func (s *RESTServer) localdir() string {
	u, err := url.Parse(s.CacheDir)
	if err != nil || u == nil {
		return ""
	}
	switch u.Scheme {
	case "":
		return u.Path
	case "file":
		if u.Path != "" {
			return u.Path
		}
		return u.Opaque
	}
	return ""
}

// getcachestore resolves the CacheDir setting into a store for the given
// namespace. Keys are prefixed with the namespace, so several caches can
// share one backing location without colliding with each other or with
// anything else kept there.
func (s *RESTServer) getcachestore(namespace string) store.Store {
	base := s.cachebackend()
	if base == nil {
		return nil
	}
	return store.NewWithPrefix(base, namespace+":")
}

// cachebackend resolves CacheDir into the store backing the caches. An
// empty CacheDir gives a memory store. CacheDir may be a bare path, a
// "file:" path, or an "s3:" location.
func (s *RESTServer) cachebackend() store.Store {
	if s.CacheDir == "" {
		return store.NewMemory()
	}
	if dir := s.localdir(); dir != "" {
		os.MkdirAll(dir, 0755)
		return store.NewFileSystem(dir)
	}
	u, err := url.Parse(s.CacheDir)
	if err != nil {
		log.Println("Error parsing CacheDir", s.CacheDir, err)
		return nil
	}
	switch u.Scheme {
	case "s3":
		conf := &aws.Config{}
		if u.Host != "" {
			conf.Endpoint = aws.String(u.Host)
			conf.Region = aws.String("us-east-1")
			// disable SSL for local development
			if strings.Contains(u.Host, "localhost") {
				conf.DisableSSL = aws.Bool(true)
				conf.S3ForcePathStyle = aws.Bool(true)
			}
		}
		bucket, prefix := splitBucketPrefix(u.Path, "")
		if bucket == "" {
			log.Println("Error parsing CacheDir, no bucket name", s.CacheDir)
			return nil
		}
		return store.NewS3(bucket, prefix, session.New(conf))
	}
	log.Println("Unknown CacheDir location", s.CacheDir)
	return nil
}

// splitBucketPrefix will take a path and separate the bucket name from a
// prefix, if any. It will also append "addition" to the prefix, and make
// sure the prefix returned is either empty or ends with a slash "/".
//
// examples:
// 		"" -> ("", "")
//		"bucket" -> ("bucket", "")
//		"bucket/and/a/prefix" -> ("bucket", "and/a/prefix/")
func splitBucketPrefix(location string, addition string) (bucket, prefix string) {
	if location == "" {
		return
	}
	location = strings.TrimPrefix(location, "/")
	v := strings.SplitN(location, "/", 2)
	bucket = v[0]
	if len(v) > 1 {
		prefix = v[1]
	}
	if addition != "" {
		prefix = path.Join(prefix, addition)
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}
	return
}

func (s *RESTServer) addRoutes() http.Handler {
	var routes = []struct {
		method  string
		route   string
		role    Role // RoleUnknown means no API key is needed to access
		handler httprouter.Handle
	}{
		// asset and bundle registration
		{"GET", "/registry", RoleMDOnly, s.RegistryListHandler},
		{"POST", "/registry", RoleWrite, s.RegistryAddHandler},
		{"GET", "/registry/:id", RoleMDOnly, s.RegistryGetHandler},
		{"DELETE", "/registry/:id", RoleWrite, s.RegistryDeleteHandler},
		{"POST", "/registry/:id/load", RoleWrite, s.RegistryLoadHandler},
		{"GET", "/asset/:id/bundles", RoleMDOnly, s.AssetBundlesHandler},

		// file resolution
		{"GET", "/file/*url", RoleRead, s.FileHandler},
		{"HEAD", "/file/*url", RoleMDOnly, s.FileHandler},
		{"GET", "/material/*url", RoleRead, s.MaterialHandler},

		// verification routes
		{"GET", "/verify", RoleRead, s.GetVerifyHandler},
		{"GET", "/verify/:id", RoleRead, s.GetVerifyIdHandler},

		// /admin/autoload (enable, disable, get status)
		{"GET", "/admin/autoload", RoleUnknown, s.GetAutoloadHandler},
		{"PUT", "/admin/autoload/:status", RoleAdmin, s.SetAutoloadHandler},

		// the read only container stuff
		{"GET", "/bundle/list/:prefix", RoleRead, s.BundleListPrefixHandler},
		{"GET", "/bundle/list/", RoleRead, s.BundleListHandler},
		{"GET", "/bundle/open/:key", RoleRead, s.BundleOpenHandler},

		// other
		{"GET", "/", RoleUnknown, WelcomeHandler},
		{"GET", "/stats", RoleUnknown, NotImplementedHandler},
		{"GET", "/debug/vars", RoleUnknown, VarHandler}, // standard route for expvars data
	}

	r := httprouter.New()
	for _, route := range routes {
		r.Handle(route.method,
			route.route,
			logWrapper(s.authzWrapper(route.handler, route.role)))
	}
	return r
}

// General route handlers and convinence functions

// VarHandler adapts the expvar default handler to the httprouter three parameter handler.
func VarHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	// this code is taken from the stdlib expvar package.
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	fmt.Fprintf(w, "{\n")
	first := true
	expvar.Do(func(kv expvar.KeyValue) {
		if !first {
			fmt.Fprintf(w, ",\n")
		}
		first = false
		fmt.Fprintf(w, "%q: %s", kv.Key, kv.Value)
	})
	fmt.Fprintf(w, "\n}\n")
}

// NotImplementedHandler will return a 501 not implemented error.
func NotImplementedHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	w.WriteHeader(http.StatusNotImplemented)
	fmt.Fprintf(w, "Not Implemented\n")
}

// writeHTMLorJSON will either return val as JSON or as rendered using the
// given template, depending on the request header "Accept-Encoding".
func writeHTMLorJSON(w http.ResponseWriter,
	r *http.Request,
	tmpl *template.Template,
	val interface{}) {

	if r.Header.Get("Accept-Encoding") == "application/json" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		json.NewEncoder(w).Encode(val)
		return
	}
	tmpl.Execute(w, val)
}

// authzWrapper returns a Handler which will first verify the user token as
// having at least the given Role. The user name is added as a parameter
// "username".
func (s *RESTServer) authzWrapper(handler httprouter.Handle, leastRole Role) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token := r.Header.Get("X-Api-Key")
		user, role, err := s.Validator.TokenValid(token)
		if err != nil {
			w.WriteHeader(500)
			fmt.Fprintln(w, err.Error())
			return
		}

		// is role valid?
		if role < leastRole {
			w.WriteHeader(401)
			fmt.Fprintln(w, "Forbidden")
			return
		}

		// remove any previous username
		for i := range ps {
			if ps[i].Key == "username" {
				ps[i].Value = user
				goto out
			}
		}
		// add a new username if none found
		ps = append(ps, httprouter.Param{Key: "username", Value: user})
	out:
		handler(w, r, ps)
	}
}

// logWrapper takes a handler and returns a handler which does the same thing,
// after first logging the request URL.
func logWrapper(handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		log.Println(r.Method, r.URL)
		handler(w, r, ps)
	}
}
