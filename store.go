package main

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/blake2b"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversions (
	source    TEXT NOT NULL,
	output    TEXT NOT NULL,
	digest    TEXT NOT NULL,
	settings  TEXT NOT NULL,
	notes     INTEGER NOT NULL,
	rails     INTEGER NOT NULL,
	length_ms REAL NOT NULL,
	at        INTEGER NOT NULL,
	PRIMARY KEY (source, output)
);
CREATE TABLE IF NOT EXISTS failures (
	source TEXT NOT NULL,
	kind   TEXT NOT NULL,
	reason TEXT NOT NULL,
	at     INTEGER NOT NULL
);`

// Store remembers which sources were converted, from which content, and
// which failed.
type Store struct {
	db *sql.DB
}

func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers; a single connection avoids lock errors
	// between batch workers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init store %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Digest is the hex blake2b-256 of a source's content.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Fresh returns the recorded outputs of source when every one of them was
// produced from content with the given digest under the given settings. A
// source with no record, or with a record from other content or settings,
// yields nil.
func (s *Store) Fresh(source, digest, settings string) ([]string, error) {
	rows, err := s.db.Query(`SELECT output, digest, settings FROM conversions WHERE source = ? ORDER BY output`, source)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", source, err)
	}
	defer rows.Close()
	var outputs []string
	stale := false
	for rows.Next() {
		var output, d, set string
		if err := rows.Scan(&output, &d, &set); err != nil {
			return nil, err
		}
		stale = stale || d != digest || set != settings
		outputs = append(outputs, output)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if stale {
		return nil, nil
	}
	return outputs, nil
}

type Conversion struct {
	Source   string
	Output   string
	Digest   string
	Settings string
	Singles  int
	Rails    int
	LengthMS float64
}

// Replace makes cs the only record of source. Any other source that
// recorded one of the same outputs loses all its records, since that file
// no longer holds its map.
func (s *Store) Replace(source string, cs []Conversion) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
			err = fmt.Errorf("record %s: %w", source, err)
		}
	}()

	if _, err := tx.Exec(`DELETE FROM conversions WHERE source = ?`, source); err != nil {
		return err
	}
	now := time.Now().Unix()
	for _, c := range cs {
		if _, err := tx.Exec(
			`DELETE FROM conversions WHERE source IN (SELECT source FROM conversions WHERE output = ?)`,
			c.Output,
		); err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO conversions (source, output, digest, settings, notes, rails, length_ms, at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			source, c.Output, c.Digest, c.Settings, c.Singles, c.Rails, c.LengthMS, now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Fail logs a failed conversion of source.
func (s *Store) Fail(source string, reason error) error {
	_, err := s.db.Exec(
		`INSERT INTO failures (source, kind, reason, at) VALUES (?, ?, ?, ?)`,
		source, errorKind(reason), reason.Error(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record failure %s: %w", source, err)
	}
	return nil
}

type Failure struct {
	Source string
	Kind   string
	Reason string
}

// Failures lists recorded failures, newest first.
func (s *Store) Failures() ([]Failure, error) {
	rows, err := s.db.Query(`SELECT source, kind, reason FROM failures ORDER BY at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.Source, &f.Kind, &f.Reason); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Conversion looks up the record of one output.
func (s *Store) Conversion(source, output string) (*Conversion, error) {
	c := Conversion{Source: source, Output: output}
	err := s.db.QueryRow(
		`SELECT digest, settings, notes, rails, length_ms FROM conversions WHERE source = ? AND output = ?`,
		source, output,
	).Scan(&c.Digest, &c.Settings, &c.Singles, &c.Rails, &c.LengthMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
