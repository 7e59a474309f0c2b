// Package assoc resolves record relations that span shards.
//
// Given a set of owner records whose foreign keys may point at rows on
// other shards, the loader groups owners by the shard the referenced rows
// live on and issues one batched lookup per shard, so traversing a
// relation over N owners spread across M shards costs M round trips.
package assoc

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/leapshard/pkg/shard"
)

// Relation describes the association being loaded.
type Relation struct {
	// KeyColumn is the foreign-key column name, used for diagnostics only;
	// the actual key values come from the loader's accessors.
	KeyColumn string

	// Collection selects has-many semantics: every matching row is
	// attributed to the owner, in query order. When false the relation is
	// singular and only the first match is kept.
	Collection bool

	// Multishard marks the key as potentially crossing shards. Keys of a
	// multishard relation are decoded as relative ids in the owner's home
	// shard context; otherwise the key is always local to the owner's
	// home shard.
	Multishard bool
}

// Loader batches cross-shard relation lookups. O is the owner record
// type, R the referenced record type. Accessors keep the loader free of
// any compile-time dependency on a host ORM's internals.
type Loader[O, R any] struct {
	Registry   *shard.Registry
	Translator *shard.Translator
	Logger     *slog.Logger

	// OwnerShard returns the owner's home shard.
	OwnerShard func(owner O) shard.ID

	// OwnerKey returns the raw foreign-key value stored on the owner.
	// Zero means the owner references nothing.
	OwnerKey func(owner O) int64

	// RecordShard returns a fetched row's home shard.
	RecordShard func(record R) shard.ID

	// RecordKey returns a fetched row's own (local) primary key.
	RecordKey func(record R) int64

	// Fetch issues one batched lookup on the given shard for the given
	// local ids. It is called with the shard activated on ctx. Result
	// order is preserved when attributing rows to owners.
	Fetch func(ctx context.Context, s *shard.Shard, localIDs []int64) ([]R, error)
}

// target is an owner's decoded reference: the shard the referenced row
// must live on, its local id there, and the unambiguous global form used
// for matching fetched rows back to owners.
type target struct {
	owner  int
	shard  shard.ID
	local  int64
	global int64
}

// Load resolves the relation for every owner. The result is aligned with
// owners: out[i] holds the rows referenced by owners[i]. Owners with a
// zero key get a nil slice.
//
// Matching is done on re-globalized keys, so two owners on different
// shards whose raw keys coincide only after naive merging are still
// attributed correctly. For singular relations with colliding keys only
// the first match in query order is kept and the rest are dropped; that
// mirrors long-standing host-framework behavior and is kept for
// compatibility rather than by preference.
func (l *Loader[O, R]) Load(ctx context.Context, owners []O, rel Relation) ([][]R, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	out := make([][]R, len(owners))

	targets := make([]target, 0, len(owners))
	for i, owner := range owners {
		key := l.OwnerKey(owner)
		if key == 0 {
			continue
		}

		home := l.OwnerShard(owner)
		var (
			dest  *shard.Shard
			local int64
			err   error
		)
		if rel.Multishard {
			dest, local, err = l.Translator.Resolve(key, home)
		} else {
			dest, err = l.Registry.Lookup(home)
			local = key
		}
		if err != nil {
			return nil, err
		}

		global, err := l.Translator.GlobalID(local, dest.ID)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target{owner: i, shard: dest.ID, local: local, global: global})
	}
	if len(targets) == 0 {
		return out, nil
	}

	err := shard.EachShard(ctx, l.Registry, targets, func(tg target) shard.ID { return tg.shard },
		func(ctx context.Context, s *shard.Shard, group []target) error {
			// One query per shard: dedupe keys but keep first-appearance order.
			seen := make(map[int64]struct{}, len(group))
			keys := make([]int64, 0, len(group))
			for _, tg := range group {
				if _, ok := seen[tg.local]; ok {
					continue
				}
				seen[tg.local] = struct{}{}
				keys = append(keys, tg.local)
			}

			logger.Debug("loading association batch",
				slog.String("column", rel.KeyColumn),
				slog.String("shard", s.Name),
				slog.Int("owners", len(group)),
				slog.Int("keys", len(keys)))

			rows, err := l.Fetch(ctx, s, keys)
			if err != nil {
				return err
			}

			for _, row := range rows {
				global, err := l.Translator.GlobalID(l.RecordKey(row), l.RecordShard(row))
				if err != nil {
					return err
				}
				for _, tg := range group {
					if tg.global != global {
						continue
					}
					if !rel.Collection && len(out[tg.owner]) > 0 {
						// Known edge case: a singular relation keeps the
						// first match and silently drops later ones.
						logger.Warn("dropping extra row for singular association",
							slog.String("column", rel.KeyColumn),
							slog.Int64("key", tg.local),
							slog.String("shard", s.Name))
						continue
					}
					out[tg.owner] = append(out[tg.owner], row)
				}
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}
