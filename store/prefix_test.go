package store

import (
	"sort"
	"testing"
)

func TestPrefixSmoke(t *testing.T) {
	var memorykeys = []string{
		"qwerty",
		"zabc",
		"zzed",
	}
	var prefixlists = []struct {
		input  string
		result []string
	}{
		{"", []string{"abc", "zed"}},
		{"a", []string{"abc"}},
		{"b", []string{}},
		{"z", []string{"zed"}},
	}
	m := NewMemory()
	ps := NewWithPrefix(m, "z")

	addToStore(t, ps, "abc", "text 1")
	addToStore(t, ps, "zed", "text 2")

	// and one directly to the memory store
	addToStore(t, m, "qwerty", "text 3")

	for _, test := range prefixlists {
		t.Logf("doing prefix '%s'", test.input)
		keys, err := ps.ListPrefix(test.input)
		if err != nil {
			t.Errorf("Received error %s", err.Error())
		}
		sort.Strings(keys)
		if !equalStrings(keys, test.result) {
			t.Errorf("Received keys %v", keys)
		}
	}

	keys, err := m.ListPrefix("")
	if err != nil {
		t.Errorf("Received error %s", err.Error())
	}
	sort.Strings(keys)
	if !equalStrings(keys, memorykeys) {
		t.Errorf("Received keys %v", keys)
	}
}

func addToStore(t *testing.T, s Store, key string, data string) {
	t.Logf("add(%s,%.10s)", key, data)
	w, err := s.Create(key)
	if err != nil {
		t.Fatalf("Couldn't make %s, %s", key, err.Error())
	}
	_, err = w.Write([]byte(data))
	if err != nil {
		t.Fatalf("Couldn't make %s, %s", key, err.Error())
	}
	err = w.Close()
	if err != nil {
		t.Fatalf("Couldn't make %s, %s", key, err.Error())
	}
}
