package pool

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapshard/internal/testutil"
	"github.com/leapstack-labs/leapshard/pkg/shard"
)

func testRegistry(t *testing.T) *shard.Registry {
	t.Helper()
	r := shard.NewRegistry()
	require.NoError(t, r.Register(&shard.Shard{ID: 1, Name: "shard_one"}))
	require.NoError(t, r.Register(&shard.Shard{ID: 2, Name: "shard_two"}))
	return r
}

// mockDialer hands out sqlmock databases and records every dial.
type mockDialer struct {
	t     *testing.T
	dials []shard.ID
	fail  map[shard.ID]error
}

func (d *mockDialer) Dial(_ context.Context, s *shard.Shard) (*sql.DB, error) {
	d.dials = append(d.dials, s.ID)
	if err, ok := d.fail[s.ID]; ok {
		return nil, err
	}
	db, mock, err := sqlmock.New()
	require.NoError(d.t, err)
	mock.ExpectClose()
	return db, nil
}

func newTestPool(t *testing.T, reg *shard.Registry, opts Options) (*Pool, *mockDialer) {
	t.Helper()
	dialer := &mockDialer{t: t, fail: map[shard.ID]error{}}
	if opts.Logger == nil {
		opts.Logger = testutil.NewTestLogger(t)
	}
	p := New(reg, dialer, opts)
	t.Cleanup(func() { _ = p.Close() })
	return p, dialer
}

func TestPool_GetCachesPerKey(t *testing.T) {
	reg := testRegistry(t)
	p, dialer := newTestPool(t, reg, Options{})
	ctx := context.Background()

	one, err := reg.Lookup(1)
	require.NoError(t, err)

	h1, err := p.Get(ctx, one, shard.CategoryPrimary)
	require.NoError(t, err)
	h2, err := p.Get(ctx, one, shard.CategoryPrimary)
	require.NoError(t, err)

	assert.Same(t, h1, h2, "second get hits the cache")
	assert.Len(t, dialer.dials, 1)

	// A different role dials its own connection.
	h3, err := p.GetRole(ctx, one, shard.CategoryPrimary, RoleReader)
	require.NoError(t, err)
	assert.NotSame(t, h1, h3)
	assert.Len(t, dialer.dials, 2)

	st := p.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(2), st.Dials)
}

func TestPool_LateFlightReusesCachedHandle(t *testing.T) {
	reg := testRegistry(t)
	p, dialer := newTestPool(t, reg, Options{})
	ctx := context.Background()

	one, err := reg.Lookup(1)
	require.NoError(t, err)

	h1, err := p.Get(ctx, one, shard.CategoryPrimary)
	require.NoError(t, err)

	// A caller that missed the cache can reach its dial after another
	// caller already populated the entry; the flight must return the
	// cached handle instead of dialing over it and leaking the first
	// connection.
	key := poolKey{shard: one.ID, category: shard.CategoryPrimary, role: RoleWriter}
	h2, err := p.dialAndCache(ctx, key, one, shard.CategoryPrimary, RoleWriter)
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Len(t, dialer.dials, 1, "no second physical connection")
	assert.Equal(t, int64(1), p.Stats().Hits)
}

func TestPool_DialFailure(t *testing.T) {
	reg := testRegistry(t)
	p, dialer := newTestPool(t, reg, Options{})
	dialer.fail[2] = assert.AnError

	two, err := reg.Lookup(2)
	require.NoError(t, err)

	_, err = p.Get(context.Background(), two, "audit")
	require.Error(t, err)

	var unavailable *ConnectionUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, shard.ID(2), unavailable.Shard)
	assert.Equal(t, shard.Category("audit"), unavailable.Category)
	assert.ErrorIs(t, err, assert.AnError, "underlying error surfaces verbatim")

	// A failed dial leaves nothing cached.
	delete(dialer.fail, 2)
	_, err = p.Get(context.Background(), two, "audit")
	require.NoError(t, err)
	assert.Len(t, dialer.dials, 2)
}

func TestPool_Repoint(t *testing.T) {
	reg := testRegistry(t)
	p, dialer := newTestPool(t, reg, Options{})
	ctx := context.Background()

	one, _ := reg.Lookup(1)
	two, _ := reg.Lookup(2)

	h, err := p.Get(ctx, one, shard.CategoryPrimary)
	require.NoError(t, err)
	oldDB := h.DB()

	require.NoError(t, p.Repoint(ctx, h, two))
	assert.Equal(t, shard.ID(2), h.Shard().ID, "handle now points at the new shard")
	assert.NotSame(t, oldDB, h.DB(), "underlying session was replaced")
	assert.Len(t, dialer.dials, 2)

	// Repointing to the shard it already serves is a no-op.
	require.NoError(t, p.Repoint(ctx, h, two))
	assert.Len(t, dialer.dials, 2)

	assert.Equal(t, int64(1), p.Stats().Repoints)
}

func TestPool_IdleEviction(t *testing.T) {
	reg := testRegistry(t)
	p, dialer := newTestPool(t, reg, Options{IdleTimeout: time.Minute})

	clock := time.Now()
	p.now = func() time.Time { return clock }

	one, _ := reg.Lookup(1)
	h, err := p.Get(context.Background(), one, shard.CategoryPrimary)
	require.NoError(t, err)

	// Idle beyond the timeout: the next access evicts and redials.
	clock = clock.Add(2 * time.Minute)
	_, err = p.Get(context.Background(), one, shard.CategoryPrimary)
	require.NoError(t, err)

	assert.Len(t, dialer.dials, 2)
	assert.Equal(t, int64(1), p.Stats().Evictions)

	// An evicted handle reports nil; holders must fetch a fresh one.
	assert.Nil(t, h.DB())
}

func TestPool_CapacityEviction(t *testing.T) {
	reg := shard.NewRegistry()
	for i := 1; i <= 3; i++ {
		require.NoError(t, reg.Register(&shard.Shard{ID: shard.ID(i), Name: "s"}))
	}
	p, _ := newTestPool(t, reg, Options{MaxIdle: 2})

	clock := time.Now()
	p.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	for i := 1; i <= 3; i++ {
		s, err := reg.Lookup(shard.ID(i))
		require.NoError(t, err)
		_, err = p.Get(context.Background(), s, shard.CategoryPrimary)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), p.Stats().Evictions, "oldest handle evicted at capacity")
}

func TestPool_GetCurrent(t *testing.T) {
	reg := testRegistry(t)
	p, _ := newTestPool(t, reg, Options{})

	// Without activation the registry default routes.
	h, err := p.GetCurrent(context.Background(), shard.CategoryPrimary)
	require.NoError(t, err)
	assert.Equal(t, shard.ID(1), h.Shard().ID)

	// Activation redirects to the activated shard.
	two, _ := reg.Lookup(2)
	h, err = p.GetCurrent(shard.Activate(context.Background(), two), shard.CategoryPrimary)
	require.NoError(t, err)
	assert.Equal(t, shard.ID(2), h.Shard().ID)

	// An unknown category has no default shard to route to.
	_, err = p.GetCurrent(context.Background(), "missing")
	var unavailable *ConnectionUnavailableError
	require.ErrorAs(t, err, &unavailable)
}

func TestPool_OnConnectHook(t *testing.T) {
	reg := testRegistry(t)

	var hooked []shard.ID
	p, _ := newTestPool(t, reg, Options{
		OnConnect: func(_ context.Context, h *Handle) {
			hooked = append(hooked, h.Shard().ID)
		},
	})

	one, _ := reg.Lookup(1)
	_, err := p.Get(context.Background(), one, shard.CategoryPrimary)
	require.NoError(t, err)
	_, err = p.Get(context.Background(), one, shard.CategoryPrimary)
	require.NoError(t, err)

	assert.Equal(t, []shard.ID{1}, hooked, "hook fires once per physical connection")
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name string
		desc shard.Descriptor
		want string
	}{
		{
			name: "defaults",
			desc: shard.Descriptor{Database: "app_shard_1"},
			want: "host=localhost port=5432 dbname=app_shard_1 sslmode=disable",
		},
		{
			name: "full descriptor",
			desc: shard.Descriptor{
				Host:     "db1.internal",
				Port:     6432,
				Database: "app_shard_1",
				Username: "app",
				Password: "hunter2",
				Options:  map[string]string{"sslmode": "require"},
			},
			want: "host=db1.internal port=6432 dbname=app_shard_1 sslmode=require user=app password=hunter2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildDSN(tt.desc))
		})
	}
}
