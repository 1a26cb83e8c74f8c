package writer

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/sfsgw/internal/content"
	"github.com/prn-tf/sfsgw/internal/domain"
	"github.com/prn-tf/sfsgw/internal/store"
	"github.com/prn-tf/sfsgw/internal/store/sqlite"
)

func newMultipartTestEnv(t *testing.T) (*content.Store, store.MultipartStore, store.ObjectStore) {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.NewDB(ctx, sqlite.Config{Path: ":memory:", MaxOpenConns: 1, BusyTimeout: 5000}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	stores := sqlite.NewStores(db)
	return content.New(t.TempDir()), stores.Multipart, stores.Objects
}

func TestPartWriter_HappyPath(t *testing.T) {
	cs, parts, _ := newMultipartTestEnv(t)
	ctx := context.Background()
	uploadID := uuid.New()

	w := NewPart(cs, parts, uploadID, 1)
	require.NoError(t, w.Prepare(ctx))
	require.NoError(t, w.Process(ctx, []byte("part-one-bytes"), 0))

	result, err := w.Complete(ctx, 14)
	require.NoError(t, err)
	require.Equal(t, int64(14), result.Size)
	require.NotEmpty(t, result.ETag)

	stored, err := parts.GetPart(ctx, uploadID.String(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(14), stored.Size)
}

func TestPartWriter_NonMonotonicOffsetClosesWriter(t *testing.T) {
	cs, parts, _ := newMultipartTestEnv(t)
	ctx := context.Background()
	uploadID := uuid.New()

	w := NewPart(cs, parts, uploadID, 1)
	require.NoError(t, w.Prepare(ctx))
	require.NoError(t, w.Process(ctx, []byte("hello"), 0))

	err := w.Process(ctx, []byte("bad"), 1)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	err = w.Process(ctx, []byte("more"), 5)
	require.ErrorIs(t, err, domain.ErrWriterClosed)
}

func TestPartWriter_Abort(t *testing.T) {
	cs, parts, _ := newMultipartTestEnv(t)
	ctx := context.Background()
	uploadID := uuid.New()

	w := NewPart(cs, parts, uploadID, 1)
	require.NoError(t, w.Prepare(ctx))
	require.NoError(t, w.Process(ctx, []byte("data"), 0))

	path := w.path
	w.Abort(ctx)

	_, ok := cs.Size(path)
	require.False(t, ok)

	_, err := parts.GetPart(ctx, uploadID.String(), 1)
	require.Error(t, err)
}

func TestCombiner_ConcatenatesPartsInOrder(t *testing.T) {
	cs, parts, objects := newMultipartTestEnv(t)
	ctx := context.Background()
	uploadID := uuid.New()

	for i, payload := range [][]byte{[]byte("hello-"), []byte("world")} {
		partNumber := i + 1
		w := NewPart(cs, parts, uploadID, partNumber)
		require.NoError(t, w.Prepare(ctx))
		require.NoError(t, w.Process(ctx, payload, 0))
		_, err := w.Complete(ctx, int64(len(payload)))
		require.NoError(t, err)
	}

	obj, err := objects.GetOrCreateObject(ctx, "bucket-1", "assembled.txt")
	require.NoError(t, err)

	combiner := NewCombiner(cs, objects, parts)
	version, etag, err := combiner.Combine(ctx, uploadID, []int{1, 2}, nil, obj.UUID, "final-v1")
	require.NoError(t, err)
	require.Equal(t, int64(11), version.Size)
	require.NotEmpty(t, etag)

	finalPath := cs.Path(obj.UUID, "final-v1")
	size, ok := cs.Size(finalPath)
	require.True(t, ok)
	require.Equal(t, int64(11), size)
}
