package server

import (
	"database/sql"
	"encoding/json"
	"log"
	"strings"
	"time"

	// no _ in import mysql since we need mysql.NullTime
	"github.com/BurntSushi/migration"
	"github.com/go-sql-driver/mysql"

	"github.com/sheafkit/sheaf/bundle"
)

// This file implements the manifest cache and the verification ledger
// using MySQL as the backing store.

type msqlCache struct {
	db *sql.DB
}

var _ bundle.ManifestCache = &msqlCache{}
var _ VerifyDB = &msqlCache{}

// List of migrations to perform. Add new ones to the end.
// DO NOT change the order of items already in this list.
var mysqlMigrations = []migration.Migrator{
	mysqlschema1,
}

// Adapt the schema versioning for MySQL

var mysqlVersioning = dbVersion{
	GetSQL:    `SELECT max(version) FROM migration_version`,
	SetSQL:    `INSERT INTO migration_version (version, applied) VALUES (?, now())`,
	CreateSQL: `CREATE TABLE migration_version (version INTEGER, applied datetime)`,
}

// NewMysqlCache connects to a MySQL database and returns an item satisfying
// both the bundle.ManifestCache and VerifyDB interfaces.
func NewMysqlCache(dial string) (*msqlCache, error) {
	db, err := migration.OpenWith(
		"mysql",
		dial,
		mysqlMigrations,
		mysqlVersioning.Get,
		mysqlVersioning.Set)
	if err != nil {
		log.Printf("Open Mysql: %s", err.Error())
		return nil, err
	}
	return &msqlCache{db: db}, nil
}

func (ms *msqlCache) Lookup(id string) []string {
	const dbLookup = `SELECT members FROM bundles WHERE bundle = ? LIMIT 1`

	var value string
	err := ms.db.QueryRow(dbLookup, id).Scan(&value)
	if err != nil {
		if err != sql.ErrNoRows {
			// some kind of error...treat it as a miss
			log.Printf("Manifest Cache: %s", err.Error())
		}
		return nil
	}
	// unserialize the json string
	var members []string
	err = json.Unmarshal([]byte(value), &members)
	if err != nil {
		log.Printf("Manifest Cache: error in lookup: %s", err.Error())
		return nil
	}
	return members
}

func (ms *msqlCache) Set(id string, members []string) {
	value, err := json.Marshal(members)
	if err != nil {
		log.Printf("Manifest Cache: %s", err.Error())
		return
	}
	stmt := `INSERT INTO bundles (bundle, updated, nmembers, members) VALUES (?, ?, ?, ?) ON DUPLICATE KEY UPDATE updated=?, nmembers=?, members=?`

	_, err = ms.db.Exec(stmt, id, time.Now(), len(members), value, time.Now(), len(members), value)
	if err != nil {
		log.Printf("Manifest Cache: %s", err.Error())
		return
	}
}

func (ms *msqlCache) Delete(id string) {
	const stmt = `DELETE FROM bundles WHERE bundle = ?`

	_, err := ms.db.Exec(stmt, id)
	if err != nil {
		log.Printf("Manifest Cache: %s", err.Error())
	}
}

func (ms *msqlCache) NextVerify(cutoff time.Time) string {
	const query = `
		SELECT bundle
		FROM verify
		WHERE status = "scheduled" AND scheduled_time <= ?
		ORDER BY scheduled_time
		LIMIT 1`

	var id string
	err := ms.db.QueryRow(query, cutoff).Scan(&id)
	if err == sql.ErrNoRows {
		// no next record
		return ""
	} else if err != nil {
		log.Println("nextverify", err.Error())
		return ""
	}
	return id
}

func (ms *msqlCache) UpdateVerify(id string, status string, notes string) error {
	const query = `
		UPDATE verify
		SET status = ?, notes = ?
		WHERE bundle = ? and status = "scheduled"
		ORDER BY scheduled_time
		LIMIT 1`
	result, err := ms.db.Exec(query, status, notes, id)
	if err != nil {
		return err
	}
	nrows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if nrows == 0 {
		// record didn't exist. create it
		const newquery = `INSERT INTO verify (bundle, scheduled_time, status, notes) VALUES (?,?,?,?)`

		_, err = ms.db.Exec(newquery, id, time.Now(), status, notes)
	}
	return err
}

func (ms *msqlCache) SetCheck(id string, when time.Time) error {
	const query = `INSERT INTO verify (bundle, scheduled_time, status, notes) VALUES (?,?,?,?)`

	_, err := ms.db.Exec(query, id, when, "scheduled", "")
	return err
}

func (ms *msqlCache) LookupCheck(id string) (time.Time, error) {
	const query = `
		SELECT scheduled_time
		FROM verify
		WHERE bundle = ? AND status = "scheduled"
		ORDER BY scheduled_time
		LIMIT 1`

	var when mysql.NullTime
	err := ms.db.QueryRow(query, id).Scan(&when)
	if err == sql.ErrNoRows {
		err = nil
	}
	if when.Valid {
		return when.Time, err
	}
	return time.Time{}, err
}

func (ms *msqlCache) GetVerify(start, end time.Time, id string, status string) ([]Verify, error) {
	query := `SELECT id, bundle, scheduled_time, status, notes FROM verify`
	var conds []string
	var args []interface{}
	if !start.IsZero() {
		conds = append(conds, "scheduled_time >= ?")
		args = append(args, start)
	}
	if !end.IsZero() {
		conds = append(conds, "scheduled_time <= ?")
		args = append(args, end)
	}
	if id != "" {
		conds = append(conds, "bundle = ?")
		args = append(args, id)
	}
	if status != "" {
		conds = append(conds, "status = ?")
		args = append(args, status)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY scheduled_time"

	rows, err := ms.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []Verify
	for rows.Next() {
		var v Verify
		var when mysql.NullTime
		err = rows.Scan(&v.ID, &v.Bundle, &when, &v.Status, &v.Notes)
		if err != nil {
			return nil, err
		}
		if when.Valid {
			v.Scheduled = when.Time
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

// database migrations. each one is a go function. Add them to the
// list mysqlMigrations at top of this file for them to be run.

func mysqlschema1(tx migration.LimitedTx) error {
	var s = []string{
		`CREATE TABLE IF NOT EXISTS bundles (
		id int PRIMARY KEY AUTO_INCREMENT,
		bundle varchar(255),
		updated datetime,
		nmembers int,
		members LONGTEXT,
		UNIQUE INDEX bundles_bundle (bundle))`,

		`CREATE TABLE IF NOT EXISTS verify (
		id int PRIMARY KEY AUTO_INCREMENT,
		bundle varchar(255),
		scheduled_time datetime,
		status varchar(32),
		notes text,
		INDEX verify_bundle (bundle),
		INDEX verify_time (scheduled_time))`,
	}
	return execlist(tx, s)
}

// execlist exec's each item in the list, return if there is an error.
// Used to work around mysql driver not handling compound exec statements.
func execlist(tx migration.LimitedTx, stms []string) error {
	var err error
	for _, s := range stms {
		_, err = tx.Exec(s)
		if err != nil {
			break
		}
	}
	return err
}
