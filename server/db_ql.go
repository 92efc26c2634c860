package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/cznic/ql/driver"

	"github.com/sheafkit/sheaf/bundle"
)

// This file implements the manifest cache and the verification ledger on
// the QL embedded database. It is intended for development and for small
// single-node installs.

type qlCache struct {
	db *sql.DB
}

var _ bundle.ManifestCache = &qlCache{}
var _ VerifyDB = &qlCache{}

const qlBundleInit = `
	CREATE TABLE IF NOT EXISTS bundles (
		id string,
		updated time,
		nmembers int,
		members blob
	);
	CREATE INDEX IF NOT EXISTS bundlesid ON bundles (id);
`

const qlVerifyInit = `
	CREATE TABLE IF NOT EXISTS verify (
		bundle string,
		scheduled_time time,
		status string,
		notes string
	);
	CREATE INDEX IF NOT EXISTS verifybundle ON verify (bundle);
	CREATE INDEX IF NOT EXISTS verifytime ON verify (scheduled_time);
	CREATE INDEX IF NOT EXISTS verifystatus ON verify (status);
`

// NewQlCache makes a QL database cache. filename is the name of the file
// to save the database to. A filename beginning with "memory" keeps the
// database entirely in memory; distinct memory names are independent
// databases.
func NewQlCache(filename string) (*qlCache, error) {
	var db *sql.DB
	var err error
	if strings.HasPrefix(filename, "memory") {
		db, err = sql.Open("ql-mem", filename)
	} else {
		db, err = sql.Open("ql", filename)
	}
	if err == nil {
		_, err = performExec(db, qlBundleInit)
	}
	if err == nil {
		_, err = performExec(db, qlVerifyInit)
	}
	if err != nil {
		log.Printf("Open QL: %s", err.Error())
		return nil, err
	}
	return &qlCache{db: db}, nil
}

func (qc *qlCache) Lookup(id string) []string {
	const dbLookup = `SELECT members FROM bundles WHERE id == ?1 LIMIT 1`

	var value []byte
	err := qc.db.QueryRow(dbLookup, id).Scan(&value)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Printf("Manifest Cache QL: %s", err.Error())
		}
		return nil
	}
	var members []string
	err = json.Unmarshal(value, &members)
	if err != nil {
		return nil
	}
	return members
}

func (qc *qlCache) Set(id string, members []string) {
	const dbUpdate = `UPDATE bundles SET updated = ?2, nmembers = ?3, members = ?4 WHERE id == ?1`
	const dbInsert = `INSERT INTO bundles VALUES (?1, ?2, ?3, ?4)`
	value, err := json.Marshal(members)
	if err != nil {
		log.Printf("Manifest Cache QL: %s", err.Error())
		return
	}
	result, err := performExec(qc.db, dbUpdate, id, time.Now(), len(members), value)
	if err != nil {
		log.Printf("Manifest Cache QL: %s", err.Error())
		return
	}
	nrows, err := result.RowsAffected()
	if err != nil {
		log.Printf("Manifest Cache QL: %s", err.Error())
		return
	}
	if nrows == 0 {
		// record didn't exist. create it
		_, err = performExec(qc.db, dbInsert, id, time.Now(), len(members), value)
		if err != nil {
			log.Printf("Manifest Cache QL: %s", err.Error())
		}
	}
}

func (qc *qlCache) Delete(id string) {
	const dbDelete = `DELETE FROM bundles WHERE id == ?1`

	_, err := performExec(qc.db, dbDelete, id)
	if err != nil {
		log.Printf("Manifest Cache QL: %s", err.Error())
	}
}

func (qc *qlCache) NextVerify(cutoff time.Time) string {
	const query = `
		SELECT bundle, scheduled_time
		FROM verify
		WHERE status == "scheduled" AND scheduled_time <= ?1
		ORDER BY scheduled_time
		LIMIT 1;`

	var id string
	var when time.Time
	err := qc.db.QueryRow(query, cutoff).Scan(&id, &when)
	if err == sql.ErrNoRows {
		// no next record
		return ""
	} else if err != nil {
		log.Println("nextverify QL", err.Error())
		return ""
	}
	return id
}

func (qc *qlCache) UpdateVerify(id string, status string, notes string) error {
	const query = `
		UPDATE verify
		SET status = ?2, notes = ?3
		WHERE id() in
			(SELECT id from
				(SELECT id() as id, scheduled_time
				FROM verify
				WHERE bundle == ?1 and status == "scheduled"
				ORDER BY scheduled_time
				LIMIT 1))`

	result, err := performExec(qc.db, query, id, status, notes)
	if err != nil {
		return err
	}
	nrows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if nrows == 0 {
		// record didn't exist. create it
		const newquery = `INSERT INTO verify VALUES (?1,?2,?3,?4)`

		_, err = performExec(qc.db, newquery, id, time.Now(), status, notes)
	}
	return err
}

func (qc *qlCache) SetCheck(id string, when time.Time) error {
	const query = `INSERT INTO verify VALUES (?1,?2,?3,?4)`

	_, err := performExec(qc.db, query, id, when, "scheduled", "")
	return err
}

func (qc *qlCache) LookupCheck(id string) (time.Time, error) {
	const query = `
		SELECT scheduled_time
		FROM verify
		WHERE bundle == ?1 AND status == "scheduled"
		ORDER BY scheduled_time ASC
		LIMIT 1`

	var when time.Time
	err := qc.db.QueryRow(query, id).Scan(&when)
	if err == sql.ErrNoRows {
		err = nil
	}
	return when, err
}

func (qc *qlCache) GetVerify(start, end time.Time, id string, status string) ([]Verify, error) {
	query := `SELECT id(), bundle, scheduled_time, status, notes FROM verify`
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !start.IsZero() {
		add("scheduled_time >= ?%d", start)
	}
	if !end.IsZero() {
		add("scheduled_time <= ?%d", end)
	}
	if id != "" {
		add("bundle == ?%d", id)
	}
	if status != "" {
		add("status == ?%d", status)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY scheduled_time"

	rows, err := qc.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Verify
	for rows.Next() {
		var v Verify
		err = rows.Scan(&v.ID, &v.Bundle, &v.Scheduled, &v.Status, &v.Notes)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func performExec(db *sql.DB, query string, args ...interface{}) (sql.Result, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	var result sql.Result
	result, err = tx.Exec(query, args...)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	err = tx.Commit()
	return result, err
}
