package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func exerciseLedger(t *testing.T, l ZReadingLedger) {
	t.Helper()
	ctx := context.Background()
	key := Key{StoreID: "main-store", TerminalID: "T1", Date: "2024-01-15"}

	ok, err := l.Reserve(ctx, key, "zr-1", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Reserve(ctx, key, "zr-2", time.Hour)
	require.NoError(t, err)
	require.False(t, ok)

	id, found, err := l.Lookup(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "zr-1", id)

	other := Key{StoreID: "main-store", TerminalID: "T2", Date: "2024-01-15"}
	ok, err = l.Reserve(ctx, other, "zr-3", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Release(ctx, key))
	ok, err = l.Reserve(ctx, key, "zr-4", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryLedger(t *testing.T) {
	exerciseLedger(t, NewMemoryLedger())
}

func TestMemoryLedgerExpires(t *testing.T) {
	l := NewMemoryLedger()
	now := time.Date(2024, 1, 15, 22, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	key := Key{StoreID: "s", Date: "2024-01-15"}

	ok, err := l.Reserve(context.Background(), key, "zr", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Hour)
	_, found, err := l.Lookup(context.Background(), key)
	require.NoError(t, err)
	require.False(t, found)
}

func TestRedisLedger(t *testing.T) {
	mr := miniredis.RunT(t)
	l := NewRedisLedger(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = l.Close() })
	require.NoError(t, l.Ping(context.Background()))

	exerciseLedger(t, l)
	require.True(t, mr.Exists("zreading:main-store:T1:2024-01-15"))
	require.Greater(t, mr.TTL("zreading:main-store:T2:2024-01-15"), time.Duration(0))
}

func TestKeyDefaultsTerminal(t *testing.T) {
	require.Equal(t, "zreading:s:all:2024-01-15", Key{StoreID: "s", Date: "2024-01-15"}.String())
}
