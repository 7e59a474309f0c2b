package shard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslator_GlobalLocalRoundTrip(t *testing.T) {
	r := testRegistry(t)
	tr := NewTranslator(r, 9)

	tests := []struct {
		name  string
		local int64
		home  ID
		want  int64
	}{
		{name: "small id shard one", local: 1, home: 1, want: 1000000001},
		{name: "shard two", local: 42, home: 2, want: 2000000042},
		{name: "max width", local: 999999999, home: 1, want: 1999999999},
		{name: "unsharded stays bare", local: 42, home: UnshardedID, want: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			global, err := tr.GlobalID(tt.local, tt.home)
			require.NoError(t, err)
			assert.Equal(t, tt.want, global)

			if tt.home == UnshardedID {
				// Unsharded globals are indistinguishable from locals.
				return
			}
			home, local, err := tr.LocalID(global)
			require.NoError(t, err)
			assert.Equal(t, tt.home, home.ID)
			assert.Equal(t, tt.local, local)
		})
	}
}

func TestTranslator_GlobalIDInvalid(t *testing.T) {
	r := testRegistry(t)
	tr := NewTranslator(r, 9)

	for _, local := range []int64{0, -5, 1000000000} {
		_, err := tr.GlobalID(local, 1)
		var invalid *InvalidLocalIDError
		require.ErrorAs(t, err, &invalid, "local id %d", local)
		assert.Equal(t, local, invalid.LocalID)
	}
}

func TestTranslator_LocalIDUnregisteredShard(t *testing.T) {
	r := testRegistry(t)
	tr := NewTranslator(r, 9)

	_, _, err := tr.LocalID(7000000042)
	var malformed *MalformedGlobalIDError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, ID(7), malformed.ShardID)
	assert.Equal(t, int64(7000000042), malformed.GlobalID)
}

func TestTranslator_RelativeID(t *testing.T) {
	r := testRegistry(t)
	tr := NewTranslator(r, 9)

	tests := []struct {
		name   string
		id     int64
		source ID
		target ID
		want   int64
	}{
		// Keys hop between a record's home shard and a foreign shard.
		{name: "global to home becomes local", id: 2000000042, source: 1, target: 2, want: 42},
		{name: "local leaving home becomes global", id: 42, source: 2, target: 1, want: 2000000042},
		{name: "local staying home stays local", id: 42, source: 2, target: 2, want: 42},
		{name: "global between foreign shards stays global", id: 2000000042, source: 1, target: 1, want: 2000000042},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tr.RelativeID(tt.id, tt.source, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			// Idempotence: re-applying and resolving lands on the same record.
			again, err := tr.RelativeID(got, tt.target, tt.target)
			require.NoError(t, err)
			homeA, localA, err := tr.Resolve(got, tt.target)
			require.NoError(t, err)
			homeB, localB, err := tr.Resolve(again, tt.target)
			require.NoError(t, err)
			assert.Equal(t, homeA.ID, homeB.ID)
			assert.Equal(t, localA, localB)
		})
	}
}

func TestTranslator_ResolveErrors(t *testing.T) {
	r := testRegistry(t)
	tr := NewTranslator(r, 9)

	_, _, err := tr.Resolve(0, 1)
	var invalid *InvalidLocalIDError
	require.ErrorAs(t, err, &invalid)

	_, _, err = tr.Resolve(42, 99)
	var unknown *UnknownShardError
	require.ErrorAs(t, err, &unknown)

	_, _, err = tr.Resolve(9000000001, 1)
	var malformed *MalformedGlobalIDError
	require.ErrorAs(t, err, &malformed)
}

func TestTranslator_DefaultWidth(t *testing.T) {
	r := testRegistry(t)
	tr := NewTranslator(r, 0)
	assert.Equal(t, DefaultIDWidth, tr.Width())

	global, err := tr.GlobalID(42, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(20000000000042), global)
}

func TestTranslator_WidthClamped(t *testing.T) {
	r := testRegistry(t)

	// 10^19 overflows int64; widths past MaxIDWidth must not produce a
	// wrapped modulus.
	for _, width := range []int{19, 25} {
		tr := NewTranslator(r, width)
		assert.Equal(t, MaxIDWidth, tr.Width(), "width %d", width)

		global, err := tr.GlobalID(42, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(2_000_000_000_000_000_042), global)

		home, local, err := tr.LocalID(global)
		require.NoError(t, err)
		assert.Equal(t, ID(2), home.ID)
		assert.Equal(t, int64(42), local)
	}
}
