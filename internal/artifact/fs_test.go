package artifact

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	ref := "transcripts/job-1.json"
	require.NoError(t, store.Put(ctx, ref, strings.NewReader(`{"text":"hello"}`), "application/json"))

	exists, err := store.Exists(ctx, ref)
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := store.Get(ctx, ref)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, `{"text":"hello"}`, string(body))

	require.NoError(t, store.Delete(ctx, ref))
	exists, err = store.Exists(ctx, ref)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFSStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "media/a.wav", strings.NewReader("first"), ""))
	require.NoError(t, store.Put(ctx, "media/a.wav", strings.NewReader("second"), ""))

	rc, err := store.Get(ctx, "media/a.wav")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "second", string(body))
}

func TestFSStoreMissingRef(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(ctx, "nope/missing.json")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing ref is a no-op.
	assert.NoError(t, store.Delete(ctx, "nope/missing.json"))
}

func TestFSStoreRejectsEscapingRefs(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	for _, ref := range []string{"", "../outside.txt", "/etc/passwd", "a/../../b"} {
		_, err := store.Get(ctx, ref)
		assert.Error(t, err, "ref %q", ref)
	}
}

func TestFSStoreSignedURLUnsupported(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	url, err := store.SignedURL(context.Background(), "media/a.wav", 0)
	require.NoError(t, err)
	assert.Empty(t, url)
}
