package util

import (
	"bytes"
	"strings"
	"testing"
)

func TestHashWriter(t *testing.T) {
	const input = "hello1 hello2 hello3 hello4 hello5abcdefghijklmnopqrstuvwxyz0123456789"
	const goalMD5 = "0101fc798d94a730b0f0bf1bd2cc1959"
	const goalSHA256 = "fef15edd82b33633582c723562d192fec2d2003df12d4aeac89df17c279a1658"

	var w = new(bytes.Buffer)
	hw := NewHashWriter(w)
	hw.Write([]byte(input))
	if s := hw.SumMD5(); s != goalMD5 {
		t.Fatalf("Got %s, expected %s", s, goalMD5)
	}
	if s := hw.SumSHA256(); s != goalSHA256 {
		t.Fatalf("Got %s, expected %s", s, goalSHA256)
	}
	if w.String() != input {
		t.Fatalf("Underlying writer received %q", w.String())
	}
	if !hw.CheckMD5("") || !hw.CheckSHA256("") {
		t.Fatalf("Empty goals should match")
	}
	if hw.CheckMD5("bad") {
		t.Fatalf("Bad goal matched")
	}
}

func TestVerifyStreamHash(t *testing.T) {
	const input = "hello1 hello2 hello3 hello4 hello5abcdefghijklmnopqrstuvwxyz0123456789"
	const goalMD5 = "0101fc798d94a730b0f0bf1bd2cc1959"
	const goalSHA256 = "fef15edd82b33633582c723562d192fec2d2003df12d4aeac89df17c279a1658"

	var table = []struct {
		md5, sha256 string
		ok          bool
	}{
		{goalMD5, goalSHA256, true},
		{goalMD5, "", true},
		{"", goalSHA256, true},
		{"", "", true},
		{goalMD5, "0000", false},
		{"0000", goalSHA256, false},
	}
	for _, test := range table {
		ok, err := VerifyStreamHash(strings.NewReader(input), test.md5, test.sha256)
		if err != nil {
			t.Fatalf("received error %s", err)
		}
		if ok != test.ok {
			t.Errorf("Verify(%q, %q) = %v, expected %v",
				test.md5, test.sha256, ok, test.ok)
		}
	}
}
