// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

// Package record mirrors operation records into a SQLite database, so a
// session's hardware traffic can be queried after the run.
package record

import (
	"database/sql"
	"path/filepath"

	// SQLite driver.
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/xid"

	"github.com/roadtest/go-roadtest/control"
)

const schema = `
CREATE TABLE IF NOT EXISTS ops (
	seq	INTEGER NOT NULL,
	session	TEXT NOT NULL,
	target	TEXT NOT NULL,
	method	TEXT NOT NULL,
	record	TEXT NOT NULL,
	PRIMARY KEY (session, seq)
)`

// Store appends operation records to a SQLite database. Records are
// buffered and written in batches; Flush or Close commits the remainder.
type Store struct {
	db      *sql.DB
	session string
	seq     int
	buf     []control.Call

	// BatchSize is the number of buffered records that triggers a flush.
	BatchSize int
}

// Open creates or opens the database at path and prepares the schema. An
// empty path names a fresh session database in dir.
func Open(dir, path string) (*Store, error) {
	session := xid.New().String()
	if path == "" {
		path = filepath.Join(dir, "roadtest_"+session+".sqlite3")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening record database")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating ops table")
	}
	return &Store{
		db:        db,
		session:   session,
		BatchSize: 64,
	}, nil
}

// Session returns the identifier tagging this store's records.
func (s *Store) Session() string {
	return s.session
}

// Record buffers one operation record.
func (s *Store) Record(c control.Call) error {
	s.buf = append(s.buf, c)
	if len(s.buf) >= s.BatchSize {
		return s.Flush()
	}
	return nil
}

// Flush commits all buffered records.
func (s *Store) Flush() error {
	if len(s.buf) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "starting record batch")
	}
	stmt, err := tx.Prepare(
		"INSERT INTO ops (seq, session, target, method, record) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "preparing record insert")
	}
	defer stmt.Close()
	for _, c := range s.buf {
		line, err := c.Encode()
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := stmt.Exec(s.seq, s.session, c.Target, c.Method, string(line)); err != nil {
			tx.Rollback()
			return errors.Wrap(err, "inserting record")
		}
		s.seq++
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing record batch")
	}
	s.buf = nil
	return nil
}

// Calls returns this session's records with the given method, in sequence
// order. An empty method matches everything.
func (s *Store) Calls(method string) ([]control.Call, error) {
	if err := s.Flush(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		"SELECT record FROM ops WHERE session = ? AND (? = '' OR method = ?) ORDER BY seq",
		s.session, method, method)
	if err != nil {
		return nil, errors.Wrap(err, "querying records")
	}
	defer rows.Close()

	var calls []control.Call
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, errors.Wrap(err, "scanning record")
		}
		c, err := control.ParseCall([]byte(line))
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	return calls, errors.Wrap(rows.Err(), "reading records")
}

// Close flushes buffered records and closes the database.
func (s *Store) Close() error {
	err := s.Flush()
	if cerr := s.db.Close(); err == nil {
		err = errors.Wrap(cerr, "closing record database")
	}
	return err
}
