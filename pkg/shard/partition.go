package shard

import (
	"context"
)

// Classifier assigns an item to a destination shard.
type Classifier[T any] func(item T) ID

// Group is one partition of a collection: the destination shard and the
// items bound for it, in input order.
type Group[T any] struct {
	Shard *Shard
	Items []T
}

// Partition groups items by destination shard. Groups come back in
// registry iteration order regardless of input order, so downstream side
// effects are reproducible across runs for a given shard set.
//
// A nil classify falls back to each item's home shard when the item
// implements Entity; items without a home shard are routed to the shard
// current on ctx as a single group.
func Partition[T any](ctx context.Context, reg *Registry, items []T, classify Classifier[T]) ([]Group[T], error) {
	if len(items) == 0 {
		return nil, nil
	}

	if classify == nil {
		current := UnshardedID
		if s := reg.Current(ctx, CategoryPrimary); s != nil {
			current = s.ID
		}
		classify = func(item T) ID {
			if e, ok := any(item).(Entity); ok {
				return e.HomeShard()
			}
			return current
		}
	}

	byShard := make(map[ID][]T)
	for _, item := range items {
		id := classify(item)
		byShard[id] = append(byShard[id], item)
	}

	// Current-shard-only fast path: one group, no registry walk.
	if len(byShard) == 1 {
		for id, group := range byShard {
			s, err := reg.Lookup(id)
			if err != nil {
				return nil, err
			}
			return []Group[T]{{Shard: s, Items: group}}, nil
		}
	}

	groups := make([]Group[T], 0, len(byShard))
	if group, ok := byShard[UnshardedID]; ok {
		s, _ := reg.Lookup(UnshardedID)
		groups = append(groups, Group[T]{Shard: s, Items: group})
		delete(byShard, UnshardedID)
	}
	for _, s := range reg.All() {
		if group, ok := byShard[s.ID]; ok {
			groups = append(groups, Group[T]{Shard: s, Items: group})
			delete(byShard, s.ID)
		}
	}
	for id := range byShard {
		return nil, &UnknownShardError{ID: id}
	}
	return groups, nil
}

// EachShard partitions items and runs op once per destination shard with
// that shard activated, sequentially in registry order. Side-effect
// ordering is caller-visible and part of the contract; groups are never
// processed in parallel. Empty input performs zero activations.
//
// The shard current on ctx is not re-activated, so routing a collection
// to the current shard adds no context plumbing.
func EachShard[T any](ctx context.Context, reg *Registry, items []T, classify Classifier[T], op func(ctx context.Context, s *Shard, group []T) error) error {
	groups, err := Partition(ctx, reg, items, classify)
	if err != nil {
		return err
	}
	for _, g := range groups {
		gctx := ctx
		if cur := reg.Current(ctx, g.Shard.Category); cur == nil || cur.ID != g.Shard.ID {
			gctx = Activate(ctx, g.Shard)
		}
		if err := op(gctx, g.Shard, g.Items); err != nil {
			return err
		}
	}
	return nil
}

// ByShard is EachShard for operations that produce results. Per-group
// results are concatenated in registry order.
func ByShard[T, R any](ctx context.Context, reg *Registry, items []T, classify Classifier[T], op func(ctx context.Context, s *Shard, group []T) ([]R, error)) ([]R, error) {
	var out []R
	err := EachShard(ctx, reg, items, classify, func(ctx context.Context, s *Shard, group []T) error {
		res, err := op(ctx, s, group)
		if err != nil {
			return err
		}
		out = append(out, res...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
