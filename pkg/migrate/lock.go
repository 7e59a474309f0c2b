// Package migrate coordinates schema migrations across shards using
// PostgreSQL advisory locks. Lock ids are derived from the shard's stable
// logical name rather than its physical database name, so mutual
// exclusion survives connection multiplexing and proxying.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"hash/crc32"
	"log/slog"

	"github.com/google/uuid"

	"github.com/leapstack-labs/leapshard/pkg/pool"
	"github.com/leapstack-labs/leapshard/pkg/shard"
)

// lockSalt spreads the crc32 space over the full advisory-lock range and
// keeps leapshard's lock ids away from other advisory-lock users on the
// same cluster.
const lockSalt = 2053462845

// replicaOptions are descriptor options that could route the lock
// connection to a secondary. Advisory locks are per server process, so a
// lock taken on a replica would not exclude anyone.
var replicaOptions = []string{"target_session_attrs", "replica", "prefer_standby"}

// LockAcquisitionFailedError reports that the advisory lock for a shard
// was held elsewhere. The lock connection has already been released.
type LockAcquisitionFailedError struct {
	Shard  string
	LockID int64
}

func (e *LockAcquisitionFailedError) Error() string {
	return fmt.Sprintf("failed to acquire migration lock %d for shard %s", e.LockID, e.Shard)
}

// LockID derives the advisory-lock key for a shard from its logical name.
// It is stable for a given name and, with overwhelming probability,
// distinct across names.
func LockID(s *shard.Shard) int64 {
	return lockSalt * int64(crc32.ChecksumIEEE([]byte(s.Name)))
}

// LockStore persists the currently held lock id so migration tooling can
// discover it without a live database connection.
type LockStore interface {
	RecordLock(shardName string, lockID int64, holder string) error
	ClearLock(shardName string) error
}

// Coordinator serializes migrations per shard.
type Coordinator struct {
	dialer pool.Dialer
	store  LockStore
	logger *slog.Logger
	holder string
}

// NewCoordinator creates a coordinator. A nil dialer selects the pgx
// dialer; a nil store disables the metadata side channel.
func NewCoordinator(dialer pool.Dialer, store LockStore, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if dialer == nil {
		dialer = &pool.PgxDialer{Logger: logger}
	}
	return &Coordinator{
		dialer: dialer,
		store:  store,
		logger: logger,
		holder: uuid.New().String(),
	}
}

// WithLock runs fn while holding the shard's migration advisory lock.
//
// The lock is taken on a dedicated, unpooled connection whose descriptor
// has replica-routing options stripped, and both the lock and the
// connection are released on every exit path. A held lock surfaces as
// LockAcquisitionFailedError; fn's error is returned as-is.
func (c *Coordinator) WithLock(ctx context.Context, s *shard.Shard, fn func(ctx context.Context, db *sql.DB) error) (err error) {
	lockID := LockID(s)

	db, err := c.dialer.Dial(ctx, primaryOnly(s))
	if err != nil {
		return &pool.ConnectionUnavailableError{Shard: s.ID, Category: s.Category, Err: err}
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if c.store != nil {
		if err := c.store.RecordLock(s.Name, lockID, c.holder); err != nil {
			return fmt.Errorf("failed to record lock id: %w", err)
		}
	}

	var acquired bool
	if err := db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired); err != nil {
		c.clearRecord(s)
		return fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	if !acquired {
		c.clearRecord(s)
		return &LockAcquisitionFailedError{Shard: s.Name, LockID: lockID}
	}

	c.logger.Debug("acquired migration lock",
		slog.String("shard", s.Name),
		slog.Int64("lock_id", lockID))

	defer func() {
		// Release is best effort: closing the dedicated connection drops
		// the lock server-side regardless.
		if _, uerr := db.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, lockID); uerr != nil {
			c.logger.Warn("failed to release migration lock",
				slog.String("shard", s.Name),
				slog.Int64("lock_id", lockID),
				slog.String("error", uerr.Error()))
		}
		c.clearRecord(s)
	}()

	return fn(ctx, db)
}

func (c *Coordinator) clearRecord(s *shard.Shard) {
	if c.store == nil {
		return
	}
	if err := c.store.ClearLock(s.Name); err != nil {
		c.logger.Warn("failed to clear lock record",
			slog.String("shard", s.Name),
			slog.String("error", err.Error()))
	}
}

// primaryOnly returns a copy of the shard whose descriptor cannot route
// to a secondary.
func primaryOnly(s *shard.Shard) *shard.Shard {
	if len(s.Descriptor.Options) == 0 {
		return s
	}

	cp := *s
	cp.Descriptor.Options = make(map[string]string, len(s.Descriptor.Options))
	for k, v := range s.Descriptor.Options {
		cp.Descriptor.Options[k] = v
	}
	for _, opt := range replicaOptions {
		delete(cp.Descriptor.Options, opt)
	}
	return &cp
}
