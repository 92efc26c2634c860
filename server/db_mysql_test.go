// +build integration

package server

import (
	"flag"
	"reflect"
	"testing"
)

var dialmysql = flag.String("mysql", "/test", "Dial for mysql")

func TestMySQLManifestCache(t *testing.T) {
	ms, err := NewMysqlCache(*dialmysql)
	if err != nil {
		t.Fatalf("Received %s", err.Error())
	}

	members := []string{"textures/a.png", "models/b.obj"}
	ms.Set("qwe", members)
	result := ms.Lookup("qwe")
	if !reflect.DeepEqual(result, members) {
		t.Errorf("Received %v, expected %v", result, members)
	}
	ms.Delete("qwe")
	result = ms.Lookup("qwe")
	if result != nil {
		t.Errorf("Received %v after delete, expected nil", result)
	}
}

func TestMySQLVerify(t *testing.T) {
	ms, err := NewMysqlCache(*dialmysql)
	if err != nil {
		t.Fatalf("Received %s", err.Error())
	}
	runVerifySequence(t, ms)
}
