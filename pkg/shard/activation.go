package shard

import (
	"context"
)

// Activation is the scoped act of making a shard "current" for a
// category. The current shard is carried on the context.Context of the
// call, never in package-level state, so two goroutines can never observe
// each other's activations.
//
// Each context carries a chain of frames, one stack per category.
// Because a derived context dies with its scope, the outer shard is
// restored on every exit path, including panics and cancellation.

// frame is one node of the per-context activation stack.
type frame struct {
	category Category
	shard    *Shard
	prev     *frame
}

type activationKey struct{}

// Activate returns a context with the shard current for its own category.
func Activate(ctx context.Context, s *Shard) context.Context {
	return ActivateCategory(ctx, s, s.Category)
}

// ActivateCategory returns a context with the shard current for the given
// category. Nesting is legal; the inner activation shadows the outer one
// until the derived context goes out of scope.
func ActivateCategory(ctx context.Context, s *Shard, category Category) context.Context {
	if category == "" {
		category = CategoryPrimary
	}
	prev, _ := ctx.Value(activationKey{}).(*frame)
	return context.WithValue(ctx, activationKey{}, &frame{
		category: category,
		shard:    s,
		prev:     prev,
	})
}

// On runs fn with the shard current for its category. The activation is
// confined to the context passed to fn.
func On(ctx context.Context, s *Shard, fn func(ctx context.Context) error) error {
	return fn(Activate(ctx, s))
}

// Current returns the shard current on ctx for the category, or the
// registry default when nothing has been activated.
func (r *Registry) Current(ctx context.Context, category Category) *Shard {
	if category == "" {
		category = CategoryPrimary
	}
	for f, _ := ctx.Value(activationKey{}).(*frame); f != nil; f = f.prev {
		if f.category == category {
			return f.shard
		}
	}
	return r.Default(category)
}

// Activated reports whether any shard has been explicitly activated on
// ctx for the category.
func Activated(ctx context.Context, category Category) bool {
	if category == "" {
		category = CategoryPrimary
	}
	for f, _ := ctx.Value(activationKey{}).(*frame); f != nil; f = f.prev {
		if f.category == category {
			return true
		}
	}
	return false
}
