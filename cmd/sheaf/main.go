package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sheafkit/sheaf/asset"
	"github.com/sheafkit/sheaf/bundle"
	"github.com/sheafkit/sheaf/server"
)

// config mirrors the command line flags. Every setting may also be given
// in a TOML configuration file, and a setting in the file wins over its
// flag.
type config struct {
	Storage      string
	CacheDir     string   `toml:"cache_dir"`
	CacheSize    int64    `toml:"cache_size"`
	CacheTimeout duration `toml:"cache_timeout"`
	Mysql        string
	Port         string
	PProfPort    string `toml:"pprof_port"`
	Tokenfile    string
	AssetTable   string `toml:"asset_table"`
	MaxLoads     int    `toml:"max_loads"`
	VerifyRate   int64  `toml:"verify_rate"`
	NoVerify     bool   `toml:"no_verify"`
	NoAutoload   bool   `toml:"no_autoload"`
}

// duration lets TOML files give durations as strings, e.g. "72h".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

var (
	configFile   = flag.String("config-file", "", "path to a TOML configuration file")
	showVersion  = flag.Bool("version", false, "print the version and exit")
	storage      = flag.String("storage", "", "location of the pack containers. a path, an s3: location, or a mirror: location. memory if empty")
	cacheDir     = flag.String("cache-dir", "", "location of the file cache. no caching if empty")
	cacheSize    = flag.Int64("cache-size", 100, "maximum size of the file cache in MB")
	cacheTimeout = flag.String("cache-timeout", "", "expire cache entries after this duration instead of capping the size")
	mysql        = flag.String("mysql", "", "dial command for a MySQL database. an embedded database is used if empty")
	port         = flag.String("port", "14000", "port number to listen on")
	pprofPort    = flag.String("pprof-port", "", "port number for the pprof server. off if empty")
	tokenfile    = flag.String("tokenfile", "", "file listing the user tokens accepted by the API")
	assetTable   = flag.String("asset-table", "", "JSON asset table to register at startup")
	maxLoads     = flag.Int("max-loads", 0, "limit on containers being decoded at once")
	verifyRate   = flag.Int64("verify-rate", 0, "verifier read rate in MB/hour. 0 means no limit")
	noVerify     = flag.Bool("no-verify", false, "do not run the background verifier")
	noAutoload   = flag.Bool("no-autoload", false, "start with demand loading turned off")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Printf("sheaf version %s\n", server.Version)
		return
	}

	c := &config{
		Storage:    *storage,
		CacheDir:   *cacheDir,
		CacheSize:  *cacheSize,
		Mysql:      *mysql,
		Port:       *port,
		PProfPort:  *pprofPort,
		Tokenfile:  *tokenfile,
		AssetTable: *assetTable,
		MaxLoads:   *maxLoads,
		VerifyRate: *verifyRate,
		NoVerify:   *noVerify,
		NoAutoload: *noAutoload,
	}
	if *cacheTimeout != "" {
		var err error
		c.CacheTimeout.Duration, err = time.ParseDuration(*cacheTimeout)
		if err != nil {
			log.Fatalf("Error parsing cache-timeout: %s", err)
		}
	}
	if *configFile != "" {
		_, err := toml.DecodeFile(*configFile, c)
		if err != nil {
			log.Fatalf("Error reading %s: %s", *configFile, err)
		}
	}

	var validator server.TokenValidator
	if c.Tokenfile != "" {
		var err error
		validator, err = server.NewListValidatorFile(c.Tokenfile)
		if err != nil {
			log.Fatalf("Error reading %s: %s", c.Tokenfile, err)
		}
	}

	packs := parselocation(c.Storage, "packs")
	if packs == nil {
		os.Exit(1)
	}

	srv := &server.RESTServer{
		PortNumber:         c.Port,
		PProfPort:          c.PProfPort,
		Packs:              packs,
		MaxConcurrentLoads: c.MaxLoads,
		CacheDir:           c.CacheDir,
		CacheSize:          c.CacheSize * 1000000, // config is in MB
		CacheTimeout:       c.CacheTimeout.Duration,
		MySQL:              c.Mysql,
		Validator:          validator,
		VerifyRate:         c.VerifyRate,
		DisableVerify:      c.NoVerify,
		NoAutoload:         c.NoAutoload,
	}

	if c.AssetTable != "" {
		// register the table before serving, so resolution tie breaks
		// follow the table order
		srv.Assets = asset.NewLoadingRegistry(packs, c.MaxLoads)
		srv.Bundles = bundle.NewRegistry(srv.Assets)
		f, err := os.Open(c.AssetTable)
		if err != nil {
			log.Fatalf("Error reading %s: %s", c.AssetTable, err)
		}
		n, err := srv.Assets.LoadTable(f)
		f.Close()
		if err != nil {
			log.Fatalf("Error parsing %s: %s", c.AssetTable, err)
		}
		log.Printf("Registered %d assets from %s", n, c.AssetTable)
	}

	// stop the server on SIGINT or SIGTERM
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("Signal received, stopping")
		srv.Stop()
	}()

	err := srv.Run()
	if err != nil {
		log.Println(err)
	}
}
