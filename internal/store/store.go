// Package store is the slasher's durable order store (component A): a
// single-writer SQLite database holding in-flight locked requests and the
// last processed block cursor. Every mutating call commits before
// returning, so a crash immediately after a call observes the write.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/nodeinfra/boundless/internal/svcerr"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const cursorKey = "last_block"

// ErrCursorRegression is returned by SetCursor when asked to move the
// cursor backwards, which would violate the monotonicity invariant.
var ErrCursorRegression = errors.New("store: cursor regression rejected")

// Order is a single in-flight locked request row.
type Order struct {
	RequestID     *big.Int
	ExpiresAt     uint64
	LockExpiresAt uint64
}

// Store is the durable order store. All operations are safe to call from a
// single goroutine; concurrent access from multiple goroutines is
// serialized with an internal mutex to match the single-writer design (the
// sqlite3 driver itself also refuses concurrent writers on one connection).
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies any outstanding migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on", path))
	if err != nil {
		return nil, svcerr.Database(err)
	}
	// A single writer connection mirrors the single-threaded supervisor:
	// SQLite serializes writers anyway, and this avoids "database is locked"
	// errors surfacing as spurious transient failures under WAL mode.
	db.SetMaxOpenConns(1)

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, svcerr.Database(err)
	}
	return &Store{db: db}, nil
}

func applyMigrations(db *sql.DB) error {
	source := migrate.EmbedFileSystemMigrationSource{FileSystem: migrationFS, Root: "migrations"}
	_, err := migrate.Exec(db, "sqlite3", source, migrate.Up)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts or overwrites the row for requestID. A re-emitted Locked
// event for the same request is benign: the latest values win.
func (s *Store) Add(requestID *big.Int, expiresAt, lockExpiresAt uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO orders (request_id, expires_at, lock_expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(request_id) DO UPDATE SET expires_at = excluded.expires_at, lock_expires_at = excluded.lock_expires_at`,
		requestID.String(), expiresAt, lockExpiresAt,
	)
	if err != nil {
		return svcerr.Database(err)
	}
	return nil
}

// Remove deletes the row for requestID. Missing rows are not an error.
func (s *Store) Remove(requestID *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM orders WHERE request_id = ?`, requestID.String())
	if err != nil {
		return svcerr.Database(err)
	}
	return nil
}

// Get returns the order row for requestID, or ok=false when unknown.
func (s *Store) Get(requestID *big.Int) (order Order, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT expires_at, lock_expires_at FROM orders WHERE request_id = ?`, requestID.String())
	var expiresAt, lockExpiresAt uint64
	if scanErr := row.Scan(&expiresAt, &lockExpiresAt); scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return Order{}, false, nil
		}
		return Order{}, false, svcerr.Database(scanErr)
	}
	return Order{RequestID: requestID, ExpiresAt: expiresAt, LockExpiresAt: lockExpiresAt}, true, nil
}

// DueBefore returns every request whose expires_at is <= ts, ordered
// ascending by expires_at then by request_id for reproducible tests.
func (s *Store) DueBefore(ts uint64) ([]*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT request_id, expires_at FROM orders WHERE expires_at <= ?`, ts)
	if err != nil {
		return nil, svcerr.Database(err)
	}
	defer rows.Close()

	type due struct {
		id        *big.Int
		expiresAt uint64
	}
	var all []due
	for rows.Next() {
		var raw string
		var expiresAt uint64
		if err := rows.Scan(&raw, &expiresAt); err != nil {
			return nil, svcerr.Database(err)
		}
		id, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, svcerr.Database(fmt.Errorf("store: corrupt request_id %q", raw))
		}
		all = append(all, due{id: id, expiresAt: expiresAt})
	}
	if err := rows.Err(); err != nil {
		return nil, svcerr.Database(err)
	}

	// request_id is a *big.Int stored as TEXT, so SQL ORDER BY would sort it
	// lexically; sort here to honour the documented ascending-expires_at,
	// ascending-request_id tie-break numerically.
	sort.Slice(all, func(i, j int) bool {
		if all[i].expiresAt != all[j].expiresAt {
			return all[i].expiresAt < all[j].expiresAt
		}
		return all[i].id.Cmp(all[j].id) < 0
	})

	ids := make([]*big.Int, len(all))
	for i, d := range all {
		ids[i] = d.id
	}
	return ids, nil
}

// GetCursor returns the last processed block, or ok=false if unset.
func (s *Store) GetCursor() (block uint64, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, cursorKey)
	var raw string
	if scanErr := row.Scan(&raw); scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, svcerr.Database(scanErr)
	}
	var value uint64
	if _, scanErr := fmt.Sscanf(raw, "%d", &value); scanErr != nil {
		return 0, false, svcerr.Database(fmt.Errorf("store: corrupt cursor %q", raw))
	}
	return value, true, nil
}

// SetCursor persists the last processed block. It rejects any value
// strictly less than the currently stored cursor.
func (s *Store) SetCursor(block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return svcerr.Database(err)
	}
	defer tx.Rollback()

	var raw string
	row := tx.QueryRow(`SELECT value FROM meta WHERE key = ?`, cursorKey)
	switch scanErr := row.Scan(&raw); {
	case scanErr == nil:
		var current uint64
		if _, sErr := fmt.Sscanf(raw, "%d", &current); sErr != nil {
			return svcerr.Database(fmt.Errorf("store: corrupt cursor %q", raw))
		}
		if block < current {
			return ErrCursorRegression
		}
	case errors.Is(scanErr, sql.ErrNoRows):
		// first write, nothing to compare against
	default:
		return svcerr.Database(scanErr)
	}

	if _, err := tx.Exec(
		`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		cursorKey, fmt.Sprintf("%d", block),
	); err != nil {
		return svcerr.Database(err)
	}
	if err := tx.Commit(); err != nil {
		return svcerr.Database(err)
	}
	return nil
}
