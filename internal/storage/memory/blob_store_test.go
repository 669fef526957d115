package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte{0xff, 0xd8, 0xff}
	uri, err := store.PutObject(context.Background(), "captures/a/b/1.jpg", "image/jpeg", payload)
	require.NoError(t, err)
	require.Equal(t, "memory://captures/a/b/1.jpg", uri)

	payload[0] = 0x00
	got, ct, ok := store.Get("captures/a/b/1.jpg")
	require.True(t, ok)
	require.Equal(t, "image/jpeg", ct)
	require.Equal(t, byte(0xff), got[0])
	require.Equal(t, []string{"captures/a/b/1.jpg"}, store.Paths())
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().PutObject(context.Background(), " ", "image/jpeg", nil)
	require.Error(t, err)
}
