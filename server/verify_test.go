package server

import (
	"testing"
	"time"
)

func TestVerifyStatusValidation(t *testing.T) {
	var table = []struct {
		input string
		valid bool
	}{
		{"", true},
		{"ok", true},
		{"scheduled", true},
		{"error", true},
		{"mismatch", true},
		{"something", false},
		{"OK", false},
		{"mismatches", false},
	}

	for _, tab := range table {
		v, err := statusValidate(tab.input)
		if tab.valid && (err != nil || v != tab.input) {
			t.Errorf("Expected %s to be valid, Received (%s, %v)", tab.input, v, err)
		} else if !tab.valid && err == nil {
			t.Errorf("Expected %s to be invalid, Received (%s, %v)", tab.input, v, err)
		}
	}
}

func TestVerifyTimeValidation(t *testing.T) {
	var table = []struct {
		input  string
		valid  bool
		output time.Time
	}{
		{"", true, time.Time{}},
		{"*", true, time.Time{}},
		{"2017-10-01", true, time.Date(2017, time.October, 1, 0, 0, 0, 0, time.UTC)},
		{"2017-10", false, time.Time{}},
		{"2017", false, time.Time{}},
		{"2017-10-01T05:10:15Z", true, time.Date(2017, time.October, 1, 5, 10, 15, 0, time.UTC)},
		{"not a time", false, time.Time{}},
		{"Sep 5, 2017", false, time.Time{}},
	}

	for _, tab := range table {
		got, err := timeValidate(tab.input)
		if !tab.valid && err == nil {
			t.Errorf("For %s expected error", tab.input)
		}
		if tab.valid && (err != nil || !tab.output.Equal(got)) {
			t.Errorf("For %s expected %s, got %s %s", tab.input, tab.output, got, err)
		}
	}
}

// General tests against a VerifyDB interface
//
// The function names are not in the form TestXxxx since they are intended to
// be called from a test routine that has already created a VerifyDB to be
// tested. This lets us run them against different database backends.

func runVerifySequence(t *testing.T, vdb VerifyDB) {
	now := time.Now()
	nowPlusHour := now.Add(time.Hour)
	var z time.Time
	var table = []struct {
		command string
		v       Verify
		count   int
	}{
		{"NextVerify", Verify{}, 0}, // nothing to start with

		{"SetCheck", Verify{Bundle: "verify-seq-1", Scheduled: now}, 0},         // schedule a pass
		{"SetCheck", Verify{Bundle: "verify-seq-1", Scheduled: nowPlusHour}, 0}, // and a later one
		{"LookupCheck", Verify{Bundle: "verify-seq-1", Scheduled: now}, 0},      // earliest pending wins
		{"LookupCheck", Verify{Bundle: "verify-seq-2", Scheduled: z}, 0},        // nothing for this bundle
		{"NextVerify", Verify{Bundle: "verify-seq-1", Scheduled: now}, 0},       // first pass is due

		{"UpdateVerify", Verify{Bundle: "verify-seq-1", Status: "ok"}, 0}, // resolve the first pass
		{"LookupCheck", Verify{Bundle: "verify-seq-1", Scheduled: nowPlusHour}, 0},
		{"NextVerify", Verify{Scheduled: now}, 0},                                   // remaining pass is not due yet
		{"NextVerify", Verify{Bundle: "verify-seq-1", Scheduled: nowPlusHour}, 0},   // but is due in an hour
		{"UpdateVerify", Verify{Bundle: "verify-seq-2", Status: "ok", Notes: "spot check"}, 0}, // no pending pass, makes a resolved row
		{"LookupCheck", Verify{Bundle: "verify-seq-2", Scheduled: z}, 0},            // should ignore the "ok" record we made above

		{"GetVerify", Verify{Bundle: "verify-seq-1"}, 2},
		{"GetVerify", Verify{Bundle: "verify-seq-1", Status: "scheduled"}, 1},
		{"GetVerify", Verify{Bundle: "verify-seq-2", Status: "ok"}, 1},
	}

	for _, tab := range table {
		t.Logf("%v", tab)
		switch tab.command {
		case "NextVerify":
			id := vdb.NextVerify(tab.v.Scheduled.Add(1 * time.Minute))
			if id != tab.v.Bundle {
				t.Errorf("Expected %v, got %v", tab.v.Bundle, id)
			}
		case "LookupCheck":
			when, err := vdb.LookupCheck(tab.v.Bundle)
			if err != nil {
				t.Errorf("error %s", err.Error())
			} else if !within(when, tab.v.Scheduled, time.Second) {
				t.Errorf("Expected %v, got %v", tab.v.Scheduled, when)
			}
		case "SetCheck":
			err := vdb.SetCheck(tab.v.Bundle, tab.v.Scheduled)
			if err != nil {
				t.Errorf("SetCheck(%v) returned %s", tab.v, err)
			}
		case "UpdateVerify":
			err := vdb.UpdateVerify(tab.v.Bundle, tab.v.Status, tab.v.Notes)
			if err != nil {
				t.Errorf("UpdateVerify(%v) returned %s", tab.v, err)
			}
		case "GetVerify":
			records, err := vdb.GetVerify(z, z, tab.v.Bundle, tab.v.Status)
			if err != nil {
				t.Errorf("GetVerify(%v) returned %s", tab.v, err)
				continue
			}
			if len(records) != tab.count {
				t.Errorf("Expected %d records, got %d", tab.count, len(records))
				for i := range records {
					t.Logf("%v", records[i])
				}
			}
		}
	}

	// the time window uses the scheduled column
	records, err := vdb.GetVerify(now.Add(-time.Minute), now.Add(time.Minute), "verify-seq-1", "")
	if err != nil {
		t.Fatalf("GetVerify returned %s", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected 1 record, got %d", len(records))
	} else if records[0].Status != "ok" {
		t.Errorf("Expected status ok, got %v", records[0].Status)
	}
}

// are times `a` and `b` within duration `d` of each other?
func within(a, b time.Time, d time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= d
}
