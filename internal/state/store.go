// Package state persists migration-lock metadata in a local SQLite
// database. It is the side channel migration tooling reads to discover
// which advisory lock ids are currently held, without needing a live
// connection to any shard.
package state

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // sqlite driver
)

//go:embed migrations/*.sql
var migrations embed.FS

// LockRecord is one persisted advisory-lock entry.
type LockRecord struct {
	ShardName  string
	LockID     int64
	Holder     string
	AcquiredAt time.Time
}

// Store is a SQLite-backed metadata store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates an unopened store.
func NewStore() *Store {
	return &Store{}
}

// Open opens the SQLite database at path. Use ":memory:" for tests.
func (s *Store) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping state database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs all pending schema migrations.
func (s *Store) Migrate() error {
	if s.db == nil {
		return fmt.Errorf("state database not opened")
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// RecordLock upserts the lock entry for a shard. Called just before the
// advisory lock is acquired so the id is discoverable even if the holder
// dies mid-migration.
func (s *Store) RecordLock(shardName string, lockID int64, holder string) error {
	if s.db == nil {
		return fmt.Errorf("state database not opened")
	}

	_, err := s.db.Exec(
		`INSERT INTO shard_locks (shard_name, lock_id, holder, acquired_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(shard_name) DO UPDATE SET
		   lock_id = excluded.lock_id,
		   holder = excluded.holder,
		   acquired_at = excluded.acquired_at`,
		shardName, lockID, holder, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record lock for %s: %w", shardName, err)
	}
	return nil
}

// ClearLock removes the lock entry for a shard.
func (s *Store) ClearLock(shardName string) error {
	if s.db == nil {
		return fmt.Errorf("state database not opened")
	}

	if _, err := s.db.Exec(`DELETE FROM shard_locks WHERE shard_name = ?`, shardName); err != nil {
		return fmt.Errorf("failed to clear lock for %s: %w", shardName, err)
	}
	return nil
}

// HeldLocks returns all persisted lock entries, oldest first.
func (s *Store) HeldLocks() ([]LockRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("state database not opened")
	}

	rows, err := s.db.Query(
		`SELECT shard_name, lock_id, holder, acquired_at FROM shard_locks ORDER BY acquired_at, shard_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query locks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []LockRecord
	for rows.Next() {
		var rec LockRecord
		if err := rows.Scan(&rec.ShardName, &rec.LockID, &rec.Holder, &rec.AcquiredAt); err != nil {
			return nil, fmt.Errorf("failed to scan lock record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lock records: %w", err)
	}
	return out, nil
}
