package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/secavis-relay/internal/notice"
)

func TestLedgerRecordHasRelease(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := NewLedger()
	ref := notice.NewReference("1234567890123", "9876543210123")

	ok, err := l.Has(ctx, ref)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, l.Record(ctx, ref))
	ok, _ = l.Has(ctx, ref)
	require.True(t, ok)
	require.ErrorIs(t, l.Record(ctx, ref), notice.ErrDuplicate)
	require.Len(t, l.Records(), 1)

	require.NoError(t, l.Release(ctx, ref))
	ok, _ = l.Has(ctx, ref)
	require.False(t, ok)
}

func TestLedgerPurgeAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := NewLedger()
	require.NoError(t, l.Record(ctx, notice.NewReference("a", "1")))
	require.NoError(t, l.Record(ctx, notice.NewReference("b", "2")))
	require.NoError(t, l.PurgeAll(ctx))
	require.Empty(t, l.Records())
}

func TestLedgerRecordIsAtomic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := NewLedger()
	ref := notice.NewReference("1234567890123", "9876543210123")

	var wins, dups atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Record(ctx, ref)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, notice.ErrDuplicate):
				dups.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
	require.Equal(t, int32(31), dups.Load())
}
