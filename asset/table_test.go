package asset

import (
	"strings"
	"testing"
)

const tableJSON = `{
	"assets": [
		{
			"id": 100,
			"type": "bundle",
			"file": {"url": "packs/level1.pack"},
			"data": {"assets": [101, "tex-железо", 103]}
		},
		{
			"id": 101,
			"type": "texture",
			"file": {"url": "textures/wall.png?t=99"}
		},
		{
			"id": 103,
			"type": "font",
			"file": {"url": "fonts/sans.json"},
			"data": {"info": {"maps": [{}, {}, {}]}}
		},
		{
			"id": "script-1",
			"type": "script",
			"url": "scripts/boot.js"
		}
	]
}`

func TestParseTable(t *testing.T) {
	assets, err := ParseTable(strings.NewReader(tableJSON))
	if err != nil {
		t.Fatalf("ParseTable: %s", err)
	}
	if len(assets) != 4 {
		t.Fatalf("Parsed %d assets, expected 4", len(assets))
	}

	b := assets[0]
	if b.ID != "100" || b.Type != TypeBundle || b.URL != "packs/level1.pack" {
		t.Errorf("bundle parsed as %#v", b)
	}
	if len(b.Members) != 3 || b.Members[0] != "101" || b.Members[1] != "tex-железо" || b.Members[2] != "103" {
		t.Errorf("bundle members %v", b.Members)
	}

	f := assets[2]
	if f.Type != TypeFont || f.Pages != 3 {
		t.Errorf("font parsed as %#v", f)
	}

	s := assets[3]
	if s.ID != "script-1" || s.URL != "scripts/boot.js" {
		t.Errorf("script parsed as %#v", s)
	}
}

func TestParseTableBareArray(t *testing.T) {
	assets, err := ParseTable(strings.NewReader(`[{"id": 1, "type": "texture", "file": {"url": "a.png"}}]`))
	if err != nil {
		t.Fatalf("ParseTable: %s", err)
	}
	if len(assets) != 1 || assets[0].ID != "1" {
		t.Errorf("Parsed %#v", assets)
	}
}

func TestParseTableBad(t *testing.T) {
	var table = []string{
		`{"noassets": true}`,
		`[{"type": "texture"}]`,
		`[{"id": 5}]`,
		`[{"id": 7, "type": "bundle", "data": {"assets": [true]}}]`,
		`not json`,
	}
	for _, bad := range table {
		_, err := ParseTable(strings.NewReader(bad))
		if err == nil {
			t.Errorf("ParseTable(%q) did not fail", bad)
		}
	}
}

func TestLoadTable(t *testing.T) {
	r := NewRegistry()
	n, err := r.LoadTable(strings.NewReader(tableJSON))
	if err != nil {
		t.Fatalf("LoadTable: %s", err)
	}
	if n != 4 {
		t.Errorf("LoadTable added %d assets", n)
	}
	a := r.Get("101")
	if a == nil {
		t.Fatal("asset 101 not registered")
	}
	// the url should have been normalized on the way in
	if a.URL != "textures/wall.png" {
		t.Errorf("asset 101 has URL %q", a.URL)
	}
}
