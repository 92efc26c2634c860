package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/sheafkit/sheaf/asset"
	"github.com/sheafkit/sheaf/bundle"
	"github.com/sheafkit/sheaf/pack"
	"github.com/sheafkit/sheaf/store"
)

var (
	storeDir = flag.String("s", ".", "location of the storage directory")
	creator  = flag.String("creator", "sutil", "Creator name to use")
	usage    = `
sutil <command> <command arguments>

Possible commands:
    build <bundle id> <file/directory list>

    info <bundle id list>

    list

    resolve <asset table> <url list>

    verify <bundle id list>
`
)

func main() {
	flag.Parse()

	fmt.Printf("Using storage dir %s\n", *storeDir)
	s := store.NewFileSystem(*storeDir)

	args := flag.Args()

	if len(args) == 0 {
		fmt.Println(usage)
		return
	}

	switch args[0] {
	case "build":
		dobuild(s, args[1], args[2:])
	case "info":
		doinfo(s, args[1:])
	case "list":
		dolist(s)
	case "resolve":
		doresolve(s, args[1], args[2:])
	case "verify":
		doverify(s, args[1:])
	default:
		fmt.Println(usage)
	}
}

// dobuild packs the given files and directories into a new container for
// the bundle id. Members are named by their path as given, so build from
// the directory you want the names to be relative to.
func dobuild(s store.Store, id string, files []string) {
	w, err := pack.NewWriter(s, pack.Key(id), id)
	if err != nil {
		fmt.Println(err.Error())
		return
	}
	w.SetCreator(*creator)
	for _, name := range files {
		err := filepath.Walk(name, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				fmt.Println(err.Error())
				return nil
			}
			if strings.HasPrefix(info.Name(), ".") && len(info.Name()) > 1 {
				// skip hidden files and directories
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if info.IsDir() {
				return nil
			}
			fmt.Printf("Adding %s\n", path)
			return addfile(w, path)
		})
		if err != nil {
			fmt.Println(err)
			break
		}
	}
	err = w.Close()
	if err != nil {
		fmt.Println(err.Error())
	}
}

func addfile(w *pack.Writer, fname string) error {
	in, err := os.Open(fname)
	if err != nil {
		return err
	}
	defer in.Close()
	return w.Add(filepath.ToSlash(fname), in)
}

func doinfo(s store.ROStore, ids []string) {
	for _, id := range ids {
		r, err := pack.Open(s, pack.Key(id))
		if err != nil {
			fmt.Printf("%s: Error %s\n", id, err.Error())
			continue
		}
		printpack(r)
		r.Close()
	}
}

func printpack(r *pack.Resource) {
	m := r.Manifest()
	fmt.Println("Bundle:", m.ID)
	w := tabwriter.NewWriter(os.Stdout, 5, 1, 3, ' ', 0)
	fmt.Fprintf(w, "Created:\t%v\n", m.Created)
	fmt.Fprintf(w, "Creator:\t%s\n", m.Creator)
	fmt.Fprintf(w, "Members:\t%d\n", len(m.Entries))
	w.Flush()
	w = tabwriter.NewWriter(os.Stdout, 5, 1, 3, ' ', 0)
	fmt.Fprintf(w, "Size\tSHA256\tName\n")
	for _, e := range m.Entries {
		fmt.Fprintf(w, "%d\t%s\t%s\n", e.Size, e.SHA256, e.Name)
	}
	w.Flush()
}

func dolist(s store.ROStore) {
	c := s.List()
	for name := range c {
		fmt.Println(name)
	}
}

// doresolve registers the assets in the given table file and then resolves
// each url the way a server would, loading containers as needed.
func doresolve(s store.ROStore, table string, urls []string) {
	assets := asset.NewLoadingRegistry(s, 0)
	bundles := bundle.NewRegistry(assets)
	f, err := os.Open(table)
	if err != nil {
		fmt.Println(err.Error())
		return
	}
	n, err := assets.LoadTable(f)
	f.Close()
	if err != nil {
		fmt.Println(err.Error())
		return
	}
	fmt.Printf("Registered %d assets from %s\n", n, table)

	for _, u := range urls {
		ds := bundles.BundlesForURL(u)
		if len(ds) == 0 {
			fmt.Printf("%s: not covered by any bundle\n", u)
			continue
		}
		// load the first covering bundle, the same one resolution prefers
		err := assets.Load(ds[0].ID)
		if err != nil {
			fmt.Printf("%s: %s\n", u, err.Error())
			continue
		}
		bundles.LoadURL(u, func(h *pack.Handle, err error) {
			if err != nil {
				fmt.Printf("%s: %s\n", u, err.Error())
				return
			}
			fmt.Printf("%s: bundle %s member %s (%d bytes)\n", u, ds[0].ID, h.Name(), h.Size())
		})
	}
	bundles.Destroy()
	assets.Destroy()
}

func doverify(s store.ROStore, ids []string) {
	for _, id := range ids {
		nb, problems, err := pack.Verify(s, pack.Key(id), nil)
		if err != nil {
			fmt.Printf("%s: Error %s\n", id, err.Error())
			continue
		}
		if len(problems) == 0 {
			fmt.Printf("%s: ok, %d bytes read\n", id, nb)
			continue
		}
		for _, p := range problems {
			fmt.Printf("%s: %s\n", id, p)
		}
	}
}
