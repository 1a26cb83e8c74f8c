package gc

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/sfsgw/internal/catalog"
	"github.com/prn-tf/sfsgw/internal/content"
	"github.com/prn-tf/sfsgw/internal/domain"
	"github.com/prn-tf/sfsgw/internal/store"
	"github.com/prn-tf/sfsgw/internal/store/sqlite"
	"github.com/prn-tf/sfsgw/internal/writer"
)

// gcTestEnv wires a fresh in-memory metadata store, tempdir content
// store, and a bucket catalog so tests can drive the exact S1/S2
// scenario setup (two buckets, an object with several committed
// versions each) described in spec §8.
type gcTestEnv struct {
	ctx     context.Context
	db      *sqlite.DB
	content *content.Store
	stores  *store.Stores
	catalog *catalog.BucketCatalog
}

func newGCTestEnv(t *testing.T) *gcTestEnv {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.NewDB(ctx, sqlite.Config{Path: ":memory:", MaxOpenConns: 1, BusyTimeout: 5000}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	stores := sqlite.NewStores(db)
	cs := content.New(t.TempDir())
	cat := catalog.NewBucketCatalog(stores.Buckets, stores.Users, stores.Objects, nil, zerolog.Nop())

	return &gcTestEnv{ctx: ctx, db: db, content: cs, stores: stores, catalog: cat}
}

// putVersion writes and commits a new version of (bucketID, key) with
// the given payload, returning the committed version id.
func (e *gcTestEnv) putVersion(t *testing.T, bucketID, key string, payload []byte) *writer.Result {
	t.Helper()
	w := writer.New(e.content, e.stores.Objects, e.stores.Buckets, bucketID, key)
	require.NoError(t, w.Prepare(e.ctx))
	require.NoError(t, w.Process(e.ctx, payload, 0))
	result, err := w.Complete(e.ctx, writer.CompleteOptions{AccountedSize: int64(len(payload))})
	require.NoError(t, err)
	require.False(t, result.Canceled)
	return result
}

// seedS1 builds the exact fixture of spec scenario S1/S2: user1 owns
// b1 and b2; obj_1 in b1 gets three committed versions, obj_2 in b2
// gets two. Returns the two bucket rows.
func (e *gcTestEnv) seedS1(t *testing.T) (b1, b2 *domain.Bucket) {
	t.Helper()
	owner := domain.NewUser("user1", "User One", "user1@example.com")
	require.NoError(t, e.stores.Users.StoreUser(e.ctx, owner, 0))

	b1 = domain.NewBucket("", owner.ID, "b1")
	require.NoError(t, e.stores.Buckets.StoreBucket(e.ctx, b1, 0))
	b2 = domain.NewBucket("", owner.ID, "b2")
	require.NoError(t, e.stores.Buckets.StoreBucket(e.ctx, b2, 0))

	e.putVersion(t, b1.BucketID, "obj_1", []byte("v1"))
	e.putVersion(t, b1.BucketID, "obj_1", []byte("v2"))
	e.putVersion(t, b1.BucketID, "obj_1", []byte("v3"))

	e.putVersion(t, b2.BucketID, "obj_2", []byte("v4"))
	e.putVersion(t, b2.BucketID, "obj_2", []byte("v5"))

	return b1, b2
}

// TestGC_DeletedBucketReclaimed covers spec scenario S1.
func TestGC_DeletedBucketReclaimed(t *testing.T) {
	env := newGCTestEnv(t)
	root := t.TempDir()
	env.content = content.New(root)

	b1, b2 := env.seedS1(t)

	files, err := env.content.ListRegularFiles(root)
	require.NoError(t, err)
	require.Len(t, files, 5, "5 content files before deletion")

	require.NoError(t, env.catalog.RemoveBucket(env.ctx, b2.BucketID, b2.Name))

	collector := New(env.stores.Buckets, env.stores.Objects, env.content, nil, nil, zerolog.Nop(), Config{MaxObjs: 0})
	result, err := collector.Process(env.ctx)
	require.NoError(t, err)
	require.Zero(t, result.Errors)

	_, err = env.stores.Buckets.GetBucket(env.ctx, b2.BucketID)
	require.ErrorIs(t, err, domain.ErrBucketNotFound)

	_, err = env.stores.Objects.GetObject(env.ctx, b2.BucketID, "obj_2")
	require.ErrorIs(t, err, domain.ErrObjectNotFound)

	files, err = env.content.ListRegularFiles(root)
	require.NoError(t, err)
	require.Len(t, files, 3, "only b1's 3 content files remain")

	// b1 itself is untouched.
	_, err = env.stores.Buckets.GetBucket(env.ctx, b1.BucketID)
	require.NoError(t, err)
	obj1, err := env.stores.Objects.GetObject(env.ctx, b1.BucketID, "obj_1")
	require.NoError(t, err)
	versions, err := env.stores.Objects.ListVersions(env.ctx, obj1.UUID.String())
	require.NoError(t, err)
	require.Len(t, versions, 3)
}

// TestGC_RateLimit covers spec scenario S2: max_objs=1 bounds each
// Process() call to a single removal, and obj_2 remains reachable
// until its last version is actually reclaimed.
func TestGC_RateLimit(t *testing.T) {
	env := newGCTestEnv(t)
	root := t.TempDir()
	env.content = content.New(root)

	_, b2 := env.seedS1(t)
	require.NoError(t, env.catalog.RemoveBucket(env.ctx, b2.BucketID, b2.Name))

	collector := New(env.stores.Buckets, env.stores.Objects, env.content, nil, nil, zerolog.Nop(), Config{MaxObjs: 1})

	result, err := collector.Process(env.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.VersionsRemoved)

	files, err := env.content.ListRegularFiles(root)
	require.NoError(t, err)
	require.Len(t, files, 4, "exactly one content file reclaimed this tick")

	_, err = env.stores.Objects.GetObject(env.ctx, b2.BucketID, "obj_2")
	require.NoError(t, err, "obj_2 still reachable: not all its versions are gone yet")

	for i := 0; i < 3; i++ {
		_, err := collector.Process(env.ctx)
		require.NoError(t, err)
	}

	files, err = env.content.ListRegularFiles(root)
	require.NoError(t, err)
	require.Len(t, files, 3)

	_, err = env.stores.Objects.GetObject(env.ctx, b2.BucketID, "obj_2")
	require.ErrorIs(t, err, domain.ErrObjectNotFound, "obj_2 unreachable once all its versions are reclaimed")
}

// TestGC_Idempotence covers testable property 5: once a state is
// stable, running Process() repeatedly is a no-op.
func TestGC_Idempotence(t *testing.T) {
	env := newGCTestEnv(t)
	root := t.TempDir()
	env.content = content.New(root)

	_, b2 := env.seedS1(t)
	require.NoError(t, env.catalog.RemoveBucket(env.ctx, b2.BucketID, b2.Name))

	collector := New(env.stores.Buckets, env.stores.Objects, env.content, nil, nil, zerolog.Nop(), Config{MaxObjs: 0})
	_, err := collector.Process(env.ctx)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		result, err := collector.Process(env.ctx)
		require.NoError(t, err)
		require.Zero(t, result.VersionsRemoved)
		require.Zero(t, result.ObjectsRemoved)
		require.Zero(t, result.BucketsRemoved)
	}
}

// TestGC_SafetyLeavesLiveVersionsAlone covers testable property 6: GC
// never removes content for a version whose row is not DELETED, when
// its bucket is not tombstoned either.
func TestGC_SafetyLeavesLiveVersionsAlone(t *testing.T) {
	env := newGCTestEnv(t)
	root := t.TempDir()
	env.content = content.New(root)

	owner := domain.NewUser("user1", "User One", "user1@example.com")
	require.NoError(t, env.stores.Users.StoreUser(env.ctx, owner, 0))
	b := domain.NewBucket("", owner.ID, "live-bucket")
	require.NoError(t, env.stores.Buckets.StoreBucket(env.ctx, b, 0))

	env.putVersion(t, b.BucketID, "live-key", []byte("still here"))

	collector := New(env.stores.Buckets, env.stores.Objects, env.content, nil, nil, zerolog.Nop(), Config{MaxObjs: 0})
	result, err := collector.Process(env.ctx)
	require.NoError(t, err)
	require.Zero(t, result.VersionsRemoved)

	files, err := env.content.ListRegularFiles(root)
	require.NoError(t, err)
	require.Len(t, files, 1)

	v, err := env.stores.Objects.GetLatestCommittedVersion(env.ctx, b.BucketID, "live-key")
	require.NoError(t, err)
	require.Equal(t, domain.ObjectStateCommitted, v.State)
}

// TestGC_SuspendResume covers the supplemented S7-style scenario: a
// suspended collector skips its scheduled ticks but Process() remains
// directly callable.
func TestGC_SuspendResume(t *testing.T) {
	env := newGCTestEnv(t)
	root := t.TempDir()
	env.content = content.New(root)

	_, b2 := env.seedS1(t)
	require.NoError(t, env.catalog.RemoveBucket(env.ctx, b2.BucketID, b2.Name))

	collector := New(env.stores.Buckets, env.stores.Objects, env.content, nil, nil, zerolog.Nop(), Config{MaxObjs: 0})
	collector.Suspend()
	require.True(t, collector.Suspended())

	// A suspended collector's own internal tick is a no-op, but a
	// direct Process() call still steps one iteration.
	result, err := collector.Process(env.ctx)
	require.NoError(t, err)
	require.Equal(t, 3, result.VersionsRemoved)

	collector.Resume()
	require.False(t, collector.Suspended())
}
