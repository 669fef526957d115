package notice

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("outer: %w", &Error{Kind: KindForward, Op: "push", Err: errors.New("boom")})
	require.Equal(t, KindForward, KindOf(wrapped))
	require.Equal(t, KindDuplicate, KindOf(fmt.Errorf("insert: %w", ErrDuplicate)))
	require.Equal(t, KindNotFound, KindOf(ErrInvalidCredentials))
	require.Equal(t, KindUnknown, KindOf(errors.New("other")))
	require.Equal(t, KindUnknown, KindOf(nil))
	require.True(t, IsKind(Errorf(KindStore, "record", "db down: %d", 1), KindStore))
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	require.Equal(t, "retrieve: not_found", (&Error{Kind: KindNotFound, Op: "retrieve"}).Error())
	require.Equal(t, "retrieve: boom", (&Error{Kind: KindRetrieval, Op: "retrieve", Err: errors.New("boom")}).Error())
	require.Equal(t, "duplicate", KindDuplicate.String())
}
