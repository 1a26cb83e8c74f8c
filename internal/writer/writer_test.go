package writer

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/sfsgw/internal/content"
	"github.com/prn-tf/sfsgw/internal/domain"
	"github.com/prn-tf/sfsgw/internal/store"
	"github.com/prn-tf/sfsgw/internal/store/sqlite"
)

// newWriterTestEnv wires a fresh in-memory metadata store and
// tempdir-rooted content store with one owner/bucket already seeded,
// for exercising the atomic writer end to end.
func newWriterTestEnv(t *testing.T) (*content.Store, store.ObjectStore, store.BucketStore, *domain.Bucket) {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.NewDB(ctx, sqlite.Config{Path: ":memory:", MaxOpenConns: 1, BusyTimeout: 5000}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	stores := sqlite.NewStores(db)

	owner := domain.NewUser("", "Owner", "owner@example.com")
	require.NoError(t, stores.Users.StoreUser(ctx, owner, 0))

	bucket := domain.NewBucket("", owner.ID, "test-bucket")
	require.NoError(t, stores.Buckets.StoreBucket(ctx, bucket, 0))

	return content.New(t.TempDir()), stores.Objects, stores.Buckets, bucket
}

func TestObjectWriter_HappyPath(t *testing.T) {
	cs, objects, buckets, bucket := newWriterTestEnv(t)
	ctx := context.Background()

	w := New(cs, objects, buckets, bucket.BucketID, "key.txt")
	require.NoError(t, w.Prepare(ctx))

	require.NoError(t, w.Process(ctx, []byte("hello "), 0))
	require.NoError(t, w.Process(ctx, []byte("world"), 6))

	result, err := w.Complete(ctx, CompleteOptions{AccountedSize: 11})
	require.NoError(t, err)
	require.False(t, result.Canceled)
	require.Equal(t, int64(11), result.Size)
	require.NotEmpty(t, result.ETag)

	// Committed row is user-visible with a fully-written content file
	// (testable property 1: COMMITTED row <-> file of exactly `size`
	// bytes).
	latest, err := objects.GetLatestCommittedVersion(ctx, bucket.BucketID, "key.txt")
	require.NoError(t, err)
	require.Equal(t, domain.ObjectStateCommitted, latest.State)
	require.Equal(t, int64(11), latest.Size)

	obj, err := objects.GetObject(ctx, bucket.BucketID, "key.txt")
	require.NoError(t, err)
	path := cs.Path(obj.UUID, latest.VersionID)
	size, ok := cs.Size(path)
	require.True(t, ok)
	require.Equal(t, int64(11), size)
}

// TestObjectWriter_NonMonotonicOffset covers testable property 4: a
// non-monotonic offset fails with InvalidArgument and the writer is
// no longer usable afterward.
func TestObjectWriter_NonMonotonicOffset(t *testing.T) {
	cs, objects, buckets, bucket := newWriterTestEnv(t)
	ctx := context.Background()

	w := New(cs, objects, buckets, bucket.BucketID, "key.txt")
	require.NoError(t, w.Prepare(ctx))
	require.NoError(t, w.Process(ctx, []byte("hello"), 0))

	err := w.Process(ctx, []byte("oops"), 2)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	// The writer failed and cleaned up; a further call reports closed.
	err = w.Process(ctx, []byte("more"), 5)
	require.ErrorIs(t, err, domain.ErrWriterClosed)

	_, err = objects.GetLatestCommittedVersion(ctx, bucket.BucketID, "key.txt")
	require.ErrorIs(t, err, domain.ErrVersionNotFound)
}

// TestObjectWriter_AbortBeforeComplete covers spec scenario S4: a
// writer is dropped after writing bytes but before Complete. The
// object row may exist (created during prepare) but no COMMITTED
// version exists and no content file remains.
func TestObjectWriter_AbortBeforeComplete(t *testing.T) {
	cs, objects, buckets, bucket := newWriterTestEnv(t)
	ctx := context.Background()

	w := New(cs, objects, buckets, bucket.BucketID, "key.txt")
	require.NoError(t, w.Prepare(ctx))
	require.NoError(t, w.Process(ctx, make([]byte, 100), 0))

	path := w.path
	w.Abort(ctx)

	_, err := objects.GetLatestCommittedVersion(ctx, bucket.BucketID, "key.txt")
	require.ErrorIs(t, err, domain.ErrVersionNotFound)

	_, ok := cs.Size(path)
	require.False(t, ok, "content file must be removed on abort")

	// The object row itself survives (it was created during prepare).
	_, err = objects.GetObject(ctx, bucket.BucketID, "key.txt")
	require.NoError(t, err)
}

// TestObjectWriter_IfMatchMismatchCancels covers spec scenario S5: an
// if_match precondition that doesn't match the current latest
// committed ETag cancels the write instead of erroring, and leaves the
// prior committed version untouched.
func TestObjectWriter_IfMatchMismatchCancels(t *testing.T) {
	cs, objects, buckets, bucket := newWriterTestEnv(t)
	ctx := context.Background()

	first := New(cs, objects, buckets, bucket.BucketID, "key.txt")
	require.NoError(t, first.Prepare(ctx))
	require.NoError(t, first.Process(ctx, []byte("v1"), 0))
	firstResult, err := first.Complete(ctx, CompleteOptions{AccountedSize: 2})
	require.NoError(t, err)

	second := New(cs, objects, buckets, bucket.BucketID, "key.txt")
	require.NoError(t, second.Prepare(ctx))
	require.NoError(t, second.Process(ctx, []byte("v2"), 0))

	result, err := second.Complete(ctx, CompleteOptions{AccountedSize: 2, IfMatch: "\"E0\""})
	require.NoError(t, err)
	require.True(t, result.Canceled)

	latest, err := objects.GetLatestCommittedVersion(ctx, bucket.BucketID, "key.txt")
	require.NoError(t, err)
	require.Equal(t, firstResult.ETag, latest.ETag, "latest version must still be the first commit")
}

func TestObjectWriter_AccountedSizeMismatch(t *testing.T) {
	cs, objects, buckets, bucket := newWriterTestEnv(t)
	ctx := context.Background()

	w := New(cs, objects, buckets, bucket.BucketID, "key.txt")
	require.NoError(t, w.Prepare(ctx))
	require.NoError(t, w.Process(ctx, []byte("hello"), 0))

	_, err := w.Complete(ctx, CompleteOptions{AccountedSize: 999})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = objects.GetLatestCommittedVersion(ctx, bucket.BucketID, "key.txt")
	require.ErrorIs(t, err, domain.ErrVersionNotFound)
}

func TestObjectWriter_ConcurrentWritersDistinctPaths(t *testing.T) {
	cs, objects, buckets, bucket := newWriterTestEnv(t)
	ctx := context.Background()

	w1 := New(cs, objects, buckets, bucket.BucketID, "key.txt")
	require.NoError(t, w1.Prepare(ctx))
	w2 := New(cs, objects, buckets, bucket.BucketID, "key.txt")
	require.NoError(t, w2.Prepare(ctx))

	require.NotEqual(t, w1.path, w2.path, "distinct concurrent writers to the same key must own distinct paths")

	require.NoError(t, w1.Process(ctx, []byte("from-1"), 0))
	require.NoError(t, w2.Process(ctx, []byte("from-2"), 0))

	r2, err := w2.Complete(ctx, CompleteOptions{AccountedSize: 6})
	require.NoError(t, err)
	r1, err := w1.Complete(ctx, CompleteOptions{AccountedSize: 6})
	require.NoError(t, err)

	// Whichever commit lands last determines "latest" (spec §5
	// ordering guarantee).
	latest, err := objects.GetLatestCommittedVersion(ctx, bucket.BucketID, "key.txt")
	require.NoError(t, err)
	require.Equal(t, r1.VersionID, latest.VersionID)
	_ = r2
}
