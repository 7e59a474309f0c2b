package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	require.NoError(t, s.Open(":memory:"))
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate())
	return s
}

func TestStore_RecordAndClearLock(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.RecordLock("shard_one", 123456789, "holder-a"))

	locks, err := s.HeldLocks()
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, "shard_one", locks[0].ShardName)
	assert.Equal(t, int64(123456789), locks[0].LockID)
	assert.Equal(t, "holder-a", locks[0].Holder)
	assert.False(t, locks[0].AcquiredAt.IsZero())

	require.NoError(t, s.ClearLock("shard_one"))
	locks, err = s.HeldLocks()
	require.NoError(t, err)
	assert.Empty(t, locks)
}

func TestStore_RecordLockUpsert(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.RecordLock("shard_one", 1, "holder-a"))
	require.NoError(t, s.RecordLock("shard_one", 2, "holder-b"))

	locks, err := s.HeldLocks()
	require.NoError(t, err)
	require.Len(t, locks, 1, "re-recording replaces, never duplicates")
	assert.Equal(t, int64(2), locks[0].LockID)
	assert.Equal(t, "holder-b", locks[0].Holder)
}

func TestStore_NotOpened(t *testing.T) {
	s := NewStore()

	assert.Error(t, s.Migrate())
	assert.Error(t, s.RecordLock("x", 1, "h"))
	assert.Error(t, s.ClearLock("x"))
	_, err := s.HeldLocks()
	assert.Error(t, err)
	assert.NoError(t, s.Close(), "closing an unopened store is harmless")
}
