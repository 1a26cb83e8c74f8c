package catalog

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/sfsgw/internal/domain"
	"github.com/prn-tf/sfsgw/internal/store"
	"github.com/prn-tf/sfsgw/internal/store/sqlite"
)

func newCatalogTestEnv(t *testing.T) *store.Stores {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.NewDB(ctx, sqlite.Config{Path: ":memory:", MaxOpenConns: 1, BusyTimeout: 5000}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlite.NewStores(db)
}

func TestBucketCatalog_CreateBucket_QuotaEnforced(t *testing.T) {
	stores := newCatalogTestEnv(t)
	ctx := context.Background()

	owner := domain.NewUser("", "Owner", "owner@example.com")
	owner.MaxBuckets = 1
	require.NoError(t, stores.Users.StoreUser(ctx, owner, 0))

	cat := NewBucketCatalog(stores.Buckets, stores.Users, stores.Objects, nil, zerolog.Nop())

	first := domain.NewBucket("", owner.ID, "first-bucket")
	require.NoError(t, cat.CreateBucket(ctx, first))

	second := domain.NewBucket("", owner.ID, "second-bucket")
	err := cat.CreateBucket(ctx, second)
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestBucketCatalog_CreateBucket_DuplicateNameRejected(t *testing.T) {
	stores := newCatalogTestEnv(t)
	ctx := context.Background()

	owner := domain.NewUser("", "Owner", "owner@example.com")
	require.NoError(t, stores.Users.StoreUser(ctx, owner, 0))

	cat := NewBucketCatalog(stores.Buckets, stores.Users, stores.Objects, nil, zerolog.Nop())

	b1 := domain.NewBucket("", owner.ID, "dup-name")
	require.NoError(t, cat.CreateBucket(ctx, b1))

	b2 := domain.NewBucket("", owner.ID, "dup-name")
	err := cat.CreateBucket(ctx, b2)
	require.ErrorIs(t, err, domain.ErrBucketAlreadyExists)
}

// TestBucketCatalog_RemoveBucket_CascadesDeleteMarkers covers the spec
// §3/S1 invariant: removing a bucket tombstones it and appends a
// delete-marker version to every object still inside, derived from
// each object's prior latest version id.
func TestBucketCatalog_RemoveBucket_CascadesDeleteMarkers(t *testing.T) {
	stores := newCatalogTestEnv(t)
	ctx := context.Background()

	owner := domain.NewUser("", "Owner", "owner@example.com")
	require.NoError(t, stores.Users.StoreUser(ctx, owner, 0))

	cat := NewBucketCatalog(stores.Buckets, stores.Users, stores.Objects, nil, zerolog.Nop())
	bucket := domain.NewBucket("", owner.ID, "to-delete")
	require.NoError(t, cat.CreateBucket(ctx, bucket))

	obj, err := stores.Objects.GetOrCreateObject(ctx, bucket.BucketID, "key.txt")
	require.NoError(t, err)
	v := domain.NewOpenVersion(obj.UUID.String(), "v1")
	require.NoError(t, stores.Objects.CreateVersion(ctx, v))
	v.State = domain.ObjectStateCommitted
	require.NoError(t, stores.Objects.UpdateVersion(ctx, v))

	require.NoError(t, cat.RemoveBucket(ctx, bucket.BucketID, bucket.Name))

	// RemoveBucket only tombstones the row; purging it is the garbage
	// collector's job once its objects are gone.
	got, err := stores.Buckets.GetBucket(ctx, bucket.BucketID)
	require.NoError(t, err)
	require.True(t, got.Deleted)

	versions, err := stores.Objects.ListVersions(ctx, obj.UUID.String())
	require.NoError(t, err)
	require.Len(t, versions, 2)

	var marker *domain.VersionedObject
	for _, vv := range versions {
		if vv.IsDeleteMarker() {
			marker = vv
		}
	}
	require.NotNil(t, marker, "a delete marker must have been appended")
	require.Equal(t, "v1-deleted", marker.VersionID)
	require.True(t, marker.IsCommitted())
}

func TestBucketCatalog_GetBucketByName_CacheMiss(t *testing.T) {
	stores := newCatalogTestEnv(t)
	ctx := context.Background()

	owner := domain.NewUser("", "Owner", "owner@example.com")
	require.NoError(t, stores.Users.StoreUser(ctx, owner, 0))

	cat := NewBucketCatalog(stores.Buckets, stores.Users, stores.Objects, nil, zerolog.Nop())
	bucket := domain.NewBucket("", owner.ID, "named-bucket")
	require.NoError(t, cat.CreateBucket(ctx, bucket))

	got, err := cat.GetBucketByName(ctx, "named-bucket")
	require.NoError(t, err)
	require.Equal(t, bucket.BucketID, got.BucketID)
}

func TestBucketCatalog_ListBucketsByOwner(t *testing.T) {
	stores := newCatalogTestEnv(t)
	ctx := context.Background()

	owner := domain.NewUser("", "Owner", "owner@example.com")
	require.NoError(t, stores.Users.StoreUser(ctx, owner, 0))

	cat := NewBucketCatalog(stores.Buckets, stores.Users, stores.Objects, nil, zerolog.Nop())
	require.NoError(t, cat.CreateBucket(ctx, domain.NewBucket("", owner.ID, "b1")))
	require.NoError(t, cat.CreateBucket(ctx, domain.NewBucket("", owner.ID, "b2")))

	list, err := cat.ListBucketsByOwner(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
}
