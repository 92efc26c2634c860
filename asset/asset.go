// Package asset keeps the catalog of loadable assets and tells everyone
// else about their comings and goings.
//
// Assets describe things: textures, models, fonts, and the bundle assets
// that name which other assets travel together inside one pack container.
// The Registry owns the asset lifecycle and emits typed events as assets
// are added, removed, and loaded. The bundle resolution registry builds
// its indices entirely from those events.
package asset

import (
	"fmt"
	"path"
	"strings"

	"github.com/sheafkit/sheaf/pack"
)

// Asset types the registry treats specially. Type is an open string, so
// hosts may register any other kinds they like.
const (
	TypeBundle = "bundle"
	TypeFont   = "font"
)

// An Asset is one entry in the registry.
//
// The URL is stored normalized (query string stripped). For a bundle
// asset it names the pack container; for everything else it names the
// file the asset's content comes from.
type Asset struct {
	ID   string
	Type string
	URL  string

	// Members lists the asset ids packed in this bundle's container.
	// Only meaningful when Type is TypeBundle.
	Members []string

	// Pages is the number of texture pages a font asset has. Fonts
	// occupy one URL per page. Zero means one page.
	Pages int

	// below are owned by the Registry and guarded by its lock
	seq      int // registration order
	loading  bool
	loaded   bool
	err      error
	resource *pack.Resource
}

// FileURLs returns the normalized URLs this asset occupies.
//
// Most assets occupy exactly their own URL. A font with N pages occupies
// N urls: page 0 keeps the base URL, and pages 1 through N-1 insert the
// page index into the file name before the extension, so "fonts/sans.json"
// yields "fonts/sans1.json", "fonts/sans2.json", and so on.
func (a *Asset) FileURLs() []string {
	if a.URL == "" {
		return nil
	}
	urls := []string{a.URL}
	if a.Type == TypeFont && a.Pages > 1 {
		ext := path.Ext(a.URL)
		base := strings.TrimSuffix(a.URL, ext)
		for i := 1; i < a.Pages; i++ {
			urls = append(urls, fmt.Sprintf("%s%d%s", base, i, ext))
		}
	}
	return urls
}

// StoreKey returns the store key of the pack container behind a bundle
// asset. Containers are stored flat, keyed by the file name of the
// bundle's URL.
func (a *Asset) StoreKey() string {
	return path.Base(a.URL)
}
