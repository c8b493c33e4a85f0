// Package store is the durable persistence layer for the modmail relay:
// threads, mirrored messages, per-thread status, scheduled closures, and
// staff alerts. One logical transaction domain, backed by SQLite.
package store

import (
	"database/sql"

	"github.com/gomodmail/modmail/dbopen"
)

// Store is the modmail relay's database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the relay's SQLite database at path, applies
// production-safe pragmas, and ensures the schema exists.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
