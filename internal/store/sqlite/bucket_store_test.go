package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/prn-tf/sfsgw/internal/domain"
)

func seedUser(t *testing.T, db *DB, id string) *domain.User {
	t.Helper()
	u := domain.NewUser(id, "Owner", "owner@example.com")
	require.NoError(t, NewUserStore(db).StoreUser(context.Background(), u, 0))
	return u
}

// TestStoreBucket_OptimisticConcurrencyConflict covers spec scenario
// S3 directly: bucket B loaded into two handles at version v; one
// store succeeds, the stale one returns Conflict and mutates nothing.
func TestStoreBucket_OptimisticConcurrencyConflict(t *testing.T) {
	db := newTestDB(t)
	owner := seedUser(t, db, "")
	buckets := NewBucketStore(db)
	ctx := context.Background()

	b := domain.NewBucket("", owner.ID, "my-bucket")
	require.NoError(t, buckets.StoreBucket(ctx, b, 0))
	require.Equal(t, int64(1), b.Version)

	handleA, err := buckets.GetBucket(ctx, b.BucketID)
	require.NoError(t, err)
	handleB, err := buckets.GetBucket(ctx, b.BucketID)
	require.NoError(t, err)

	handleA.ZoneGroup = "zone-a"
	require.NoError(t, buckets.StoreBucket(ctx, handleA, 1))

	handleB.ZoneGroup = "zone-b"
	err = buckets.StoreBucket(ctx, handleB, 1)
	require.ErrorIs(t, err, domain.ErrConflict)

	current, err := buckets.GetBucket(ctx, b.BucketID)
	require.NoError(t, err)
	require.Equal(t, "zone-a", current.ZoneGroup)
	require.Equal(t, int64(2), current.Version)
}

func TestBucketStore_MarkDeletedAndListDeleted(t *testing.T) {
	db := newTestDB(t)
	owner := seedUser(t, db, "")
	buckets := NewBucketStore(db)
	ctx := context.Background()

	b1 := domain.NewBucket("", owner.ID, "bucket-one")
	b2 := domain.NewBucket("", owner.ID, "bucket-two")
	require.NoError(t, buckets.StoreBucket(ctx, b1, 0))
	require.NoError(t, buckets.StoreBucket(ctx, b2, 0))

	require.NoError(t, buckets.MarkDeleted(ctx, b2.BucketID))

	deleted, err := buckets.ListDeletedBuckets(ctx, 100)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	require.Equal(t, b2.BucketID, deleted[0].BucketID)

	// A deleted bucket is invisible to GetBucketByName and by-owner listing.
	_, err = buckets.GetBucketByName(ctx, "bucket-two")
	require.ErrorIs(t, err, domain.ErrBucketNotFound)

	owned, err := buckets.ListBucketsByOwner(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	require.Equal(t, b1.BucketID, owned[0].BucketID)
}

func TestBucketStore_PurgeBucket(t *testing.T) {
	db := newTestDB(t)
	owner := seedUser(t, db, "")
	buckets := NewBucketStore(db)
	ctx := context.Background()

	b := domain.NewBucket("", owner.ID, "to-purge")
	require.NoError(t, buckets.StoreBucket(ctx, b, 0))
	require.NoError(t, buckets.PurgeBucket(ctx, b.BucketID))

	_, err := buckets.GetBucket(ctx, b.BucketID)
	require.ErrorIs(t, err, domain.ErrBucketNotFound)

	// idempotent
	require.NoError(t, buckets.PurgeBucket(ctx, b.BucketID))
}

func TestBucketStore_DuplicateNameRejected(t *testing.T) {
	db := newTestDB(t)
	owner := seedUser(t, db, "")
	buckets := NewBucketStore(db)
	ctx := context.Background()

	b1 := domain.NewBucket("", owner.ID, "dup-name")
	require.NoError(t, buckets.StoreBucket(ctx, b1, 0))

	b2 := domain.NewBucket("", owner.ID, "dup-name")
	err := buckets.StoreBucket(ctx, b2, 0)
	require.ErrorIs(t, err, domain.ErrBucketAlreadyExists)
}
