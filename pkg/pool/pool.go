// Package pool routes logical (shard, category) pairs to live database
// connections. Handles are cached per shard, category, and role, can be
// repointed to a different shard's database in place, and idle handles
// beyond the configured bounds are evicted on access.
//
// The pool surfaces transport failures verbatim as
// ConnectionUnavailableError values and never retries internally.
package pool

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/leapstack-labs/leapshard/pkg/shard"
)

// Role distinguishes connections within one (shard, category) pair.
type Role string

const (
	// RoleWriter connections go to the shard's primary.
	RoleWriter Role = "writer"

	// RoleReader connections may be served by a replica.
	RoleReader Role = "reader"
)

// Handle is a pooled live connection. Callers keep Handle references
// across repoints; the underlying database may change, the Handle never
// does.
type Handle struct {
	mu    sync.RWMutex
	db    *sql.DB
	shard *shard.Shard
}

// DB returns the current underlying connection. Once the pool evicts,
// releases, or closes the handle it returns nil; the pool does not track
// handles in use, so a caller holding one across evictions must fetch a
// fresh handle.
func (h *Handle) DB() *sql.DB {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.db
}

// Shard returns the shard the handle currently points at.
func (h *Handle) Shard() *shard.Shard {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.shard
}

// repoint swaps the underlying connection. Readers never observe a
// mid-repoint state: the swap happens under the write lock and the old
// connection is returned for the pool to close after the swap.
func (h *Handle) repoint(db *sql.DB, s *shard.Shard) *sql.DB {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.db
	h.db = db
	h.shard = s
	return old
}

func (h *Handle) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}

// Options configures a Pool.
type Options struct {
	// MaxIdle bounds how many handles are kept cached. Zero means 16.
	MaxIdle int

	// IdleTimeout evicts handles unused for this long. Zero means no
	// age-based eviction.
	IdleTimeout time.Duration

	// OnConnect fires after each new physical connection is established,
	// before the handle is returned. Hosts use it to install session
	// state or register the handle with their own bookkeeping.
	OnConnect func(ctx context.Context, h *Handle)

	// Logger defaults to a discard logger.
	Logger *slog.Logger
}

// Stats is a snapshot of pool activity counters.
type Stats struct {
	Hits      int64
	Dials     int64
	Repoints  int64
	Evictions int64
}

type poolKey struct {
	shard    shard.ID
	category shard.Category
	role     Role
}

type entry struct {
	handle   *Handle
	key      poolKey
	lastUsed time.Time
}

// Pool caches connection handles keyed by (shard, category, role).
type Pool struct {
	registry *shard.Registry
	dialer   Dialer
	opts     Options
	logger   *slog.Logger

	// mu guards only the entries map; dialing happens outside it and is
	// deduplicated per key by group, so a slow dial to one shard never
	// blocks lookups for another.
	mu      sync.Mutex
	entries map[poolKey]*entry
	group   singleflight.Group

	statsMu sync.Mutex
	stats   Stats

	now func() time.Time // test hook
}

// New creates a pool over the registry. A nil dialer selects PgxDialer.
func New(registry *shard.Registry, dialer Dialer, opts Options) *Pool {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if dialer == nil {
		dialer = &PgxDialer{Logger: logger}
	}
	if opts.MaxIdle == 0 {
		opts.MaxIdle = 16
	}
	return &Pool{
		registry: registry,
		dialer:   dialer,
		opts:     opts,
		logger:   logger,
		entries:  make(map[poolKey]*entry),
		now:      time.Now,
	}
}

// Get returns a writer handle for the shard and category. See GetRole.
func (p *Pool) Get(ctx context.Context, s *shard.Shard, category shard.Category) (*Handle, error) {
	return p.GetRole(ctx, s, category, RoleWriter)
}

// GetCurrent returns a writer handle for the shard current on ctx for
// the category, resolving activation context through the registry.
func (p *Pool) GetCurrent(ctx context.Context, category shard.Category) (*Handle, error) {
	s := p.registry.Current(ctx, category)
	if s == nil {
		return nil, &ConnectionUnavailableError{
			Category: category,
			Err:      fmt.Errorf("no shard registered for category %q", category),
		}
	}
	return p.Get(ctx, s, category)
}

// GetRole returns a cached healthy handle for (shard, category, role) or
// establishes one from the shard's descriptor. Dial failures surface as
// ConnectionUnavailableError; the caller owns retry policy.
func (p *Pool) GetRole(ctx context.Context, s *shard.Shard, category shard.Category, role Role) (*Handle, error) {
	if category == "" {
		category = shard.CategoryPrimary
	}
	key := poolKey{shard: s.ID, category: category, role: role}

	p.mu.Lock()
	p.evictIdleLocked()
	if e, ok := p.entries[key]; ok {
		e.lastUsed = p.now()
		p.mu.Unlock()
		p.count(func(st *Stats) { st.Hits++ })
		return e.handle, nil
	}
	p.mu.Unlock()

	// Dials for the same key collapse into one; concurrent callers share
	// the resulting handle.
	v, err, _ := p.group.Do(keyString(key), func() (any, error) {
		return p.dialAndCache(ctx, key, s, category, role)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

// dialAndCache establishes a connection for key and inserts it into the
// cache. It re-checks the cache first: a caller that missed the cache
// may reach its flight after an earlier flight for the same key has
// already completed and been forgotten, and dialing again would leak the
// cached entry's connection when overwritten.
func (p *Pool) dialAndCache(ctx context.Context, key poolKey, s *shard.Shard, category shard.Category, role Role) (*Handle, error) {
	p.mu.Lock()
	if e, ok := p.entries[key]; ok {
		e.lastUsed = p.now()
		p.mu.Unlock()
		p.count(func(st *Stats) { st.Hits++ })
		return e.handle, nil
	}
	p.mu.Unlock()

	db, err := p.dialer.Dial(ctx, s)
	if err != nil {
		return nil, &ConnectionUnavailableError{Shard: s.ID, Category: category, Err: err}
	}
	h := &Handle{db: db, shard: s}
	p.count(func(st *Stats) { st.Dials++ })

	p.mu.Lock()
	p.evictForCapacityLocked()
	p.entries[key] = &entry{handle: h, key: key, lastUsed: p.now()}
	p.mu.Unlock()

	p.logger.Debug("established shard connection",
		slog.String("shard", s.Name),
		slog.String("category", string(category)),
		slog.String("role", string(role)))

	if p.opts.OnConnect != nil {
		p.opts.OnConnect(ctx, h)
	}
	return h, nil
}

// Repoint redirects a handle to a new shard's database without
// invalidating caller references. It is used when a handle's last-known
// shard has drifted from the shard current on the context.
func (p *Pool) Repoint(ctx context.Context, h *Handle, s *shard.Shard) error {
	if h.Shard() != nil && h.Shard().ID == s.ID {
		return nil
	}

	db, err := p.dialer.Dial(ctx, s)
	if err != nil {
		return &ConnectionUnavailableError{Shard: s.ID, Category: s.Category, Err: err}
	}

	old := h.repoint(db, s)
	p.count(func(st *Stats) { st.Repoints++ })
	p.logger.Debug("repointed shard connection", slog.String("shard", s.Name))
	if old != nil {
		return old.Close()
	}
	return nil
}

// Release drops a handle from the cache and closes its connection. Used
// when the caller knows the connection is broken.
func (p *Pool) Release(h *Handle) error {
	p.mu.Lock()
	for key, e := range p.entries {
		if e.handle == h {
			delete(p.entries, key)
			break
		}
	}
	p.mu.Unlock()
	return h.close()
}

// Close evicts and closes every cached handle.
func (p *Pool) Close() error {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[poolKey]*entry)
	p.mu.Unlock()

	var firstErr error
	for _, e := range entries {
		if err := e.handle.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stats returns a snapshot of the activity counters.
func (p *Pool) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

// evictIdleLocked drops handles unused beyond the age bound. Caller
// holds p.mu.
func (p *Pool) evictIdleLocked() {
	if p.opts.IdleTimeout <= 0 {
		return
	}
	now := p.now()
	for key, e := range p.entries {
		if now.Sub(e.lastUsed) > p.opts.IdleTimeout {
			delete(p.entries, key)
			p.closeEvicted(e)
		}
	}
}

// evictForCapacityLocked makes room for one more entry by dropping the
// least recently used handles. Caller holds p.mu.
func (p *Pool) evictForCapacityLocked() {
	for len(p.entries) >= p.opts.MaxIdle {
		var oldest *entry
		for _, e := range p.entries {
			if oldest == nil || e.lastUsed.Before(oldest.lastUsed) {
				oldest = e
			}
		}
		if oldest == nil {
			return
		}
		delete(p.entries, oldest.key)
		p.closeEvicted(oldest)
	}
}

func (p *Pool) closeEvicted(e *entry) {
	p.count(func(st *Stats) { st.Evictions++ })
	p.logger.Debug("evicting idle shard connection", slog.Int64("shard", int64(e.key.shard)))
	_ = e.handle.close()
}

func (p *Pool) count(fn func(*Stats)) {
	p.statsMu.Lock()
	fn(&p.stats)
	p.statsMu.Unlock()
}

func keyString(k poolKey) string {
	return fmt.Sprintf("%d/%s/%s", k.shard, k.category, k.role)
}
