package asset

import (
	"testing"
)

func TestFileURLs(t *testing.T) {
	var table = []struct {
		asset Asset
		urls  []string
	}{
		{Asset{ID: "1", Type: "texture", URL: "textures/alpha.png"},
			[]string{"textures/alpha.png"}},
		{Asset{ID: "2", Type: TypeFont, URL: "fonts/sans.json", Pages: 1},
			[]string{"fonts/sans.json"}},
		{Asset{ID: "3", Type: TypeFont, URL: "fonts/sans.json", Pages: 3},
			[]string{"fonts/sans.json", "fonts/sans1.json", "fonts/sans2.json"}},
		{Asset{ID: "4", Type: TypeFont, URL: "fonts/noext", Pages: 2},
			[]string{"fonts/noext", "fonts/noext1"}},
		{Asset{ID: "5", Type: "script", URL: ""},
			nil},
	}
	for _, test := range table {
		urls := test.asset.FileURLs()
		if len(urls) != len(test.urls) {
			t.Errorf("FileURLs(%s) = %v, expected %v", test.asset.ID, urls, test.urls)
			continue
		}
		for i := range urls {
			if urls[i] != test.urls[i] {
				t.Errorf("FileURLs(%s)[%d] = %q, expected %q",
					test.asset.ID, i, urls[i], test.urls[i])
			}
		}
	}
}

func TestNormalizeURL(t *testing.T) {
	var table = []struct{ input, output string }{
		{"files/model.json", "files/model.json"},
		{"files/model.json?t=123456", "files/model.json"},
		{"files/model.json?t=1&rev=2", "files/model.json"},
		{"files/sp%20ace.png?x=1", "files/sp%20ace.png"},
		{"", ""},
	}
	for _, test := range table {
		if got := NormalizeURL(test.input); got != test.output {
			t.Errorf("NormalizeURL(%q) = %q, expected %q", test.input, got, test.output)
		}
	}
}

func TestDecodePath(t *testing.T) {
	var table = []struct{ input, output string }{
		{"files/model.json", "files/model.json"},
		{"files/sp%20ace.png", "files/sp ace.png"},
		{"files/100%.png", "files/100%.png"}, // undecodable stays as is
	}
	for _, test := range table {
		if got := DecodePath(test.input); got != test.output {
			t.Errorf("DecodePath(%q) = %q, expected %q", test.input, got, test.output)
		}
	}
}

func TestStoreKey(t *testing.T) {
	a := Asset{ID: "9", Type: TypeBundle, URL: "packs/level1.pack"}
	if k := a.StoreKey(); k != "level1.pack" {
		t.Errorf("StoreKey() = %q", k)
	}
}
