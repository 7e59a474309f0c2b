// Package shard provides the core routing primitives for a horizontally
// partitioned database: the shard registry, shard-scoped activation
// contexts, id translation between shard-local and globally unique forms,
// and partitioning of collections by destination shard.
//
// A shard is one independently addressable physical database holding a
// disjoint subset of the data. Every record has a home shard, fixed at
// creation time. Connection handling is in pkg/pool and cross-shard
// relation loading is in pkg/shard/assoc; both build on this package.
package shard

import (
	"sync"
)

// ID identifies a shard. IDs are positive integers, unique system-wide,
// except the reserved UnshardedID used for global reference data.
type ID int64

// UnshardedID is the id of the pseudo-shard holding global reference data
// that is not partitioned. It always exists in a Registry.
const UnshardedID ID = 0

// Category is a logical grouping of record kinds that share a
// connection-routing policy.
type Category string

// CategoryPrimary is the default category used when none is specified.
const CategoryPrimary Category = "primary"

// Descriptor is the opaque connection configuration for a shard's
// physical database. It mirrors a DSN without committing to one.
type Descriptor struct {
	Host     string            `koanf:"host"`
	Port     int               `koanf:"port"`
	Database string            `koanf:"database"`
	Username string            `koanf:"username"`
	Password string            `koanf:"password"`
	Options  map[string]string `koanf:"options"`
}

// Shard holds the metadata for one registered shard. Shards are immutable
// once registered; callers must not mutate a Shard obtained from a Registry.
type Shard struct {
	// ID is the unique shard id encoded into global ids.
	ID ID

	// Name is the stable logical name of the shard. Migration lock ids are
	// derived from it, so it must not change when the physical database is
	// moved or proxied.
	Name string

	// Category is the routing group this shard serves.
	Category Category

	// Descriptor describes how to reach the shard's database.
	Descriptor Descriptor
}

// Unsharded reports whether s is the pseudo-shard for global data.
func (s *Shard) Unsharded() bool {
	return s.ID == UnshardedID
}

// Registry holds the known shard topology. It is populated once at boot
// (or on a topology refresh) and read-mostly afterwards; concurrent reads
// are always safe.
type Registry struct {
	mu       sync.RWMutex
	byID     map[ID]*Shard
	order    []ID // registration order; the fixed iteration order
	defaults map[Category]ID
}

// NewRegistry creates a registry seeded with the unsharded pseudo-shard.
func NewRegistry() *Registry {
	r := &Registry{
		byID:     make(map[ID]*Shard),
		defaults: make(map[Category]ID),
	}
	r.byID[UnshardedID] = &Shard{ID: UnshardedID, Name: "unsharded", Category: CategoryPrimary}
	return r
}

// Register adds a shard to the registry. The first shard registered for a
// category becomes that category's default. Returns a DuplicateShardError
// if the id is already taken.
func (r *Registry) Register(s *Shard) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[s.ID]; ok {
		return &DuplicateShardError{ID: s.ID}
	}

	cp := *s
	if cp.Category == "" {
		cp.Category = CategoryPrimary
	}
	r.byID[cp.ID] = &cp
	r.order = append(r.order, cp.ID)

	if _, ok := r.defaults[cp.Category]; !ok {
		r.defaults[cp.Category] = cp.ID
	}
	return nil
}

// SetDefault marks a registered shard as the default for its category.
func (r *Registry) SetDefault(id ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return &UnknownShardError{ID: id}
	}
	r.defaults[s.Category] = id
	return nil
}

// Lookup returns the shard with the given id, or an UnknownShardError.
func (r *Registry) Lookup(id ID) (*Shard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, &UnknownShardError{ID: id}
	}
	return s, nil
}

// Default returns the default shard for a category. It returns nil only
// when no shard has been registered for the category, which is a boot
// ordering bug in the host application.
func (r *Registry) Default(category Category) *Shard {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if category == "" {
		category = CategoryPrimary
	}
	if id, ok := r.defaults[category]; ok {
		return r.byID[id]
	}
	return nil
}

// All returns a snapshot of the registered shards in registration order.
// The unsharded pseudo-shard is not included.
func (r *Registry) All() []*Shard {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Shard, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Count returns the number of registered shards, excluding the unsharded
// pseudo-shard.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Entity is implemented by records that know their home shard. The home
// shard is the shard that was current when the record was created and
// never changes for the life of the record.
type Entity interface {
	HomeShard() ID
}
