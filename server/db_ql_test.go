package server

import (
	"reflect"
	"testing"
)

func TestQlManifestCache(t *testing.T) {
	qc, err := NewQlCache("memory-cache")
	if err != nil {
		t.Fatalf("Received %s", err.Error())
	}

	members := []string{"textures/a.png", "models/b.obj"}
	qc.Set("qwe", members)
	result := qc.Lookup("qwe")
	if !reflect.DeepEqual(result, members) {
		t.Errorf("Received %v, expected %v", result, members)
	}
	result = qc.Lookup("not-there")
	if result != nil {
		t.Errorf("Received %v, expected nil", result)
	}
	qc.Delete("qwe")
	result = qc.Lookup("qwe")
	if result != nil {
		t.Errorf("Received %v after delete, expected nil", result)
	}
}

func TestQlVerify(t *testing.T) {
	qc, err := NewQlCache("memory-verify")
	if err != nil {
		t.Fatalf("Received %s", err.Error())
	}
	runVerifySequence(t, qc)
}
