package shard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivation_Current(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	// No activation falls back to the registry default.
	assert.Equal(t, ID(1), r.Current(ctx, CategoryPrimary).ID)
	assert.False(t, Activated(ctx, CategoryPrimary))

	two, err := r.Lookup(2)
	require.NoError(t, err)

	ctx2 := Activate(ctx, two)
	assert.Equal(t, ID(2), r.Current(ctx2, CategoryPrimary).ID)
	assert.True(t, Activated(ctx2, CategoryPrimary))

	// The original context is untouched.
	assert.Equal(t, ID(1), r.Current(ctx, CategoryPrimary).ID)
}

func TestActivation_Nesting(t *testing.T) {
	r := testRegistry(t)
	one, _ := r.Lookup(1)
	two, _ := r.Lookup(2)

	err := On(context.Background(), one, func(ctx context.Context) error {
		require.Equal(t, ID(1), r.Current(ctx, CategoryPrimary).ID)

		inner := On(ctx, two, func(ctx context.Context) error {
			require.Equal(t, ID(2), r.Current(ctx, CategoryPrimary).ID)
			return errors.New("boom")
		})
		require.EqualError(t, inner, "boom")

		// The outer shard is restored even though the inner scope failed.
		require.Equal(t, ID(1), r.Current(ctx, CategoryPrimary).ID)
		return nil
	})
	require.NoError(t, err)
}

func TestActivation_PerCategory(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Shard{ID: 1, Name: "p1", Category: CategoryPrimary}))
	require.NoError(t, r.Register(&Shard{ID: 10, Name: "a1", Category: "audit"}))
	require.NoError(t, r.Register(&Shard{ID: 11, Name: "a2", Category: "audit"}))

	audit2, _ := r.Lookup(11)
	ctx := Activate(context.Background(), audit2)

	// Activating an audit shard leaves the primary stack alone.
	assert.Equal(t, ID(11), r.Current(ctx, "audit").ID)
	assert.Equal(t, ID(1), r.Current(ctx, CategoryPrimary).ID)
}

func TestActivation_GoroutineIsolation(t *testing.T) {
	r := testRegistry(t)
	two, _ := r.Lookup(2)

	ctx := Activate(context.Background(), two)

	done := make(chan ID)
	go func() {
		// A goroutine with its own root context sees no activation.
		done <- r.Current(context.Background(), CategoryPrimary).ID
	}()
	assert.Equal(t, ID(1), <-done)
	assert.Equal(t, ID(2), r.Current(ctx, CategoryPrimary).ID)
}
