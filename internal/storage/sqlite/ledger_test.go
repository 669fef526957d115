package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/secavis-relay/internal/notice"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLedgerLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := openTestLedger(t)
	ref := notice.NewReference("1234567890123", "9876543210123")

	ok, err := l.Has(ctx, ref)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, l.Record(ctx, ref))
	require.ErrorIs(t, l.Record(ctx, ref), notice.ErrDuplicate)

	ok, err = l.Has(ctx, ref)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Release(ctx, ref))
	ok, err = l.Has(ctx, ref)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, l.Record(ctx, ref))
}

func TestLedgerPurgeAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := openTestLedger(t)
	refs := []notice.Reference{
		notice.NewReference("1111111111111", "2222222222222"),
		notice.NewReference("1111111111111", "3333333333333"),
	}
	for _, ref := range refs {
		require.NoError(t, l.Record(ctx, ref))
	}
	require.NoError(t, l.PurgeAll(ctx))
	for _, ref := range refs {
		ok, err := l.Has(ctx, ref)
		require.NoError(t, err)
		require.False(t, ok)
	}
	require.NoError(t, l.Ping(ctx))
}

func TestLedgerPersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	ref := notice.NewReference("1234567890123", "9876543210123")

	l, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, l.Record(ctx, ref))
	require.NoError(t, l.Close())

	l, err = Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	ok, err := l.Has(ctx, ref)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "")
	require.Error(t, err)
}
