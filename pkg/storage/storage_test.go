package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLocalPutGetDelete(t *testing.T) {
	store, err := NewLocal(t.TempDir(), zerolog.New(io.Discard))
	require.NoError(t, err)

	ref, err := store.Put(context.Background(), "uploads/abc_plan.pdf", strings.NewReader("contenido"))
	require.NoError(t, err)
	require.Equal(t, "uploads/abc_plan.pdf", ref)

	reader, err := store.Get(context.Background(), ref)
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
	require.Equal(t, "contenido", string(data))

	require.NoError(t, store.Delete(context.Background(), ref))
	_, err = store.Get(context.Background(), ref)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, store.Delete(context.Background(), ref), ErrNotFound)
}

func TestLocalNormalizesBackslashes(t *testing.T) {
	store, err := NewLocal(t.TempDir(), zerolog.New(io.Discard))
	require.NoError(t, err)

	ref, err := store.Put(context.Background(), `uploads\evaluacion\7_acta.pdf`, strings.NewReader("x"))
	require.NoError(t, err)
	require.Equal(t, "uploads/evaluacion/7_acta.pdf", ref)
}

func TestLocalRejectsPathEscape(t *testing.T) {
	store, err := NewLocal(t.TempDir(), zerolog.New(io.Discard))
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../outside.txt", strings.NewReader("x"))
	require.Error(t, err)
}

func TestMemoryRoundTrip(t *testing.T) {
	store := NewMemory()

	ref, err := store.Put(context.Background(), "uploads/a.txt", strings.NewReader("hola"))
	require.NoError(t, err)

	reader, err := store.Get(context.Background(), ref)
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Equal(t, "hola", string(data))
	require.Equal(t, 1, store.Len())

	require.NoError(t, store.Delete(context.Background(), ref))
	require.Equal(t, 0, store.Len())
	_, err = store.Get(context.Background(), ref)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPublicIDFromURL(t *testing.T) {
	id, ok := publicIDFromURL("https://res.cloudinary.com/demo/image/upload/v1700000000/evidia/uploads/abc-plan.pdf")
	require.True(t, ok)
	require.Equal(t, "evidia/uploads/abc-plan", id)

	_, ok = publicIDFromURL("https://example.com/no-upload-marker.pdf")
	require.False(t, ok)
}
