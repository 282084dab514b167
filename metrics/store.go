package metrics

import (
	"database/sql"

	"github.com/grailbio/base/errors"
	_ "modernc.org/sqlite"
)

// Store is the append-only, single-writer persistence backend: two
// tables, one per command kind that records a row, opened once and
// written to only by the command bus's consumer goroutine.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if necessary) the SQLite-equivalent database
// at path and ensures its schema exists.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.E(err, "opening metrics store", path)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, errors.E(err, "setting WAL mode", path)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS basecalled_reads (
		read_id     TEXT,
		final_class TEXT,
		length      INTEGER,
		timestamp   TEXT
	)`); err != nil {
		db.Close()
		return nil, errors.E(err, "creating basecalled_reads table", path)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS classified_reads (
		read_id        TEXT,
		inferred_class TEXT,
		timestamp      TEXT
	)`); err != nil {
		db.Close()
		return nil, errors.E(err, "creating classified_reads table", path)
	}
	return &Store{db: db}, nil
}

// RecordBasecalledRead inserts one row into basecalled_reads. strataID
// may be empty, stored as a SQL NULL, when the read was never classified.
func (s *Store) RecordBasecalledRead(readID, strataID string, length int, timestamp string) error {
	_, err := s.db.Exec(
		"INSERT INTO basecalled_reads (read_id, final_class, length, timestamp) VALUES (?, ?, ?, ?)",
		readID, nullableString(strataID), length, timestamp,
	)
	if err != nil {
		return errors.E(err, "recording basecalled read", readID)
	}
	return nil
}

// RecordClassifiedRead inserts one row into classified_reads.
func (s *Store) RecordClassifiedRead(readID, strataID string, timestamp string) error {
	_, err := s.db.Exec(
		"INSERT INTO classified_reads (read_id, inferred_class, timestamp) VALUES (?, ?, ?)",
		readID, nullableString(strataID), timestamp,
	)
	if err != nil {
		return errors.E(err, "recording classified read", readID)
	}
	return nil
}

// Close closes the underlying database handle. Idempotent.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
