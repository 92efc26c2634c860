package server

import (
	"log"
	"time"

	"github.com/BurntSushi/migration"
)

// A VerifyDB holds the verification ledger: one row for every planned and
// completed pass checking a stored container against its manifest. A
// bundle's history is the sequence of its resolved rows, and its future is
// the rows still marked "scheduled".
type VerifyDB interface {
	// NextVerify returns the id of the bundle with the earliest pending
	// verification dated before the cutoff, or "" if there is none.
	NextVerify(cutoff time.Time) string

	// UpdateVerify resolves the bundle's oldest pending verification
	// with the given status and notes. If the bundle has no pending
	// verification a resolved row is added, so ad hoc passes are
	// recorded too.
	UpdateVerify(id string, status string, notes string) error

	// SetCheck schedules a verification of the given bundle.
	SetCheck(id string, when time.Time) error

	// LookupCheck returns the time of the bundle's earliest pending
	// verification. A zero time means none is scheduled.
	LookupCheck(id string) (time.Time, error)

	// GetVerify returns ledger rows in scheduled order, filtered by the
	// arguments: rows dated inside [start, end] (zero times mean
	// unbounded), for the given bundle id ("" means every bundle), with
	// the given status ("" means any).
	GetVerify(start, end time.Time, id string, status string) ([]Verify, error)
}

// A Verify is one row of the verification ledger.
type Verify struct {
	ID        int64     `json:"id"`
	Bundle    string    `json:"bundle"`
	Scheduled time.Time `json:"scheduled_time"`
	Status    string    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
}

// we need to adapt the migration version functions to work with MySQL and QL
// This code is slightly modified from github.com/BurntSushi/migration

type dbVersion struct {
	// SQL to get the version of this db, returns one row and one column
	GetSQL string
	// SQL to insert a new version of this db. takes one parameter, the new
	// version
	SetSQL string
	// the SQL to create the version table for this db
	CreateSQL string
}

func (d dbVersion) Get(tx migration.LimitedTx) (int, error) {
	v, err := d.get(tx)
	if err != nil {
		// we assume error means there is no migration table
		log.Println(err.Error())
		return 0, nil
	}
	return v, nil
}

func (d dbVersion) Set(tx migration.LimitedTx, version int) error {
	if err := d.set(tx, version); err != nil {
		if err := d.createTable(tx); err != nil {
			return err
		}
		return d.set(tx, version)
	}
	return nil
}

func (d dbVersion) get(tx migration.LimitedTx) (int, error) {
	var version int
	r := tx.QueryRow(d.GetSQL)
	if err := r.Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

func (d dbVersion) set(tx migration.LimitedTx, version int) error {
	_, err := tx.Exec(d.SetSQL, version)
	return err
}

func (d dbVersion) createTable(tx migration.LimitedTx) error {
	_, err := tx.Exec(d.CreateSQL)
	if err == nil {
		err = d.set(tx, 0)
	}
	return err
}
