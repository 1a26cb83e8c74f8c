package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/sfsgw/internal/cache"
	"github.com/prn-tf/sfsgw/internal/domain"
	"github.com/prn-tf/sfsgw/internal/store"
)

// BucketCatalog exposes the spec §6 bucket operations
// (get/store/remove_bucket, list-by-owner) layered over
// store.BucketStore, adding name validation and the per-owner bucket
// quota a direct store_bucket call does not itself enforce. Grounded
// on the teacher's bucket_service.go CreateBucket flow (validate name,
// check for an existing bucket of the same name, default region),
// adapted to the spec's optimistic-concurrency store_bucket contract.
type BucketCatalog struct {
	buckets store.BucketStore
	users   store.UserStore
	objects store.ObjectStore
	cache   cache.Cache
	logger  zerolog.Logger
}

// NewBucketCatalog creates a BucketCatalog. c may be nil. objects may
// be nil, but RemoveBucket then skips the delete-marker cascade.
func NewBucketCatalog(buckets store.BucketStore, users store.UserStore, objects store.ObjectStore, c cache.Cache, logger zerolog.Logger) *BucketCatalog {
	return &BucketCatalog{buckets: buckets, users: users, objects: objects, cache: c, logger: logger.With().Str("component", "catalog.bucket").Logger()}
}

// CreateBucket validates the name, enforces the owner's bucket quota
// (spec §4.7's "quotas" note, User.MaxBuckets), and stores a brand-new
// bucket row (expectedVersion=0).
func (c *BucketCatalog) CreateBucket(ctx context.Context, bucket *domain.Bucket) error {
	if err := domain.ValidateBucketName(bucket.Name); err != nil {
		return err
	}
	if existing, err := c.buckets.GetBucketByName(ctx, bucket.Name); err == nil && existing != nil && !existing.Deleted {
		return domain.ErrBucketAlreadyExists
	}
	if err := c.checkQuota(ctx, bucket.OwnerID); err != nil {
		return err
	}
	if err := c.buckets.StoreBucket(ctx, bucket, 0); err != nil {
		return err
	}
	c.invalidate(ctx, bucket.Name)
	return nil
}

func (c *BucketCatalog) checkQuota(ctx context.Context, ownerID string) error {
	if c.users == nil {
		return nil
	}
	owner, err := c.users.GetUser(ctx, ownerID)
	if err != nil {
		return nil // owner is a collaborator concern; an unknown owner is not this catalog's call to block
	}
	if owner.MaxBuckets <= 0 {
		return nil
	}
	existing, err := c.buckets.ListBucketsByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	live := 0
	for _, b := range existing {
		if !b.Deleted {
			live++
		}
	}
	if live >= owner.MaxBuckets {
		return fmt.Errorf("%w: owner has reached its bucket limit of %d", domain.ErrConflict, owner.MaxBuckets)
	}
	return nil
}

// StoreBucket applies an update under optimistic concurrency.
func (c *BucketCatalog) StoreBucket(ctx context.Context, bucket *domain.Bucket, expectedVersion int64) error {
	if err := c.buckets.StoreBucket(ctx, bucket, expectedVersion); err != nil {
		return err
	}
	c.invalidate(ctx, bucket.Name)
	return nil
}

// GetBucket returns a bucket by id.
func (c *BucketCatalog) GetBucket(ctx context.Context, bucketID string) (*domain.Bucket, error) {
	return c.buckets.GetBucket(ctx, bucketID)
}

// GetBucketByName returns a bucket by its unique name, consulting the
// cache first — this is the hot path every request against a bucket's
// key-space resolves through.
func (c *BucketCatalog) GetBucketByName(ctx context.Context, name string) (*domain.Bucket, error) {
	if c.cache != nil {
		if raw, err := c.cache.Get(ctx, cache.Keys.BucketByName(name)); err == nil {
			var b domain.Bucket
			if jsonErr := json.Unmarshal(raw, &b); jsonErr == nil {
				return &b, nil
			}
		}
	}
	b, err := c.buckets.GetBucketByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if raw, err := json.Marshal(b); err == nil {
			_ = c.cache.Set(ctx, cache.Keys.BucketByName(name), raw, 5*time.Minute)
		}
	}
	return b, nil
}

// ListBucketsByOwner returns every bucket owned by ownerID, including
// ones already tombstoned for deletion (callers that care filter on
// Deleted).
func (c *BucketCatalog) ListBucketsByOwner(ctx context.Context, ownerID string) ([]*domain.Bucket, error) {
	return c.buckets.ListBucketsByOwner(ctx, ownerID)
}

// RemoveBucket marks a bucket deleted (spec §4.6 step 1): the bucket
// becomes invisible to new writes immediately, but its row and any
// objects it still has survive until the garbage collector cascades
// through them. The catalog does not check emptiness itself — the
// spec's GC cascade purges objects/versions first and only removes the
// bucket row once none remain, so a non-empty bucket can be tombstoned
// immediately and its contents reclaimed asynchronously.
//
// Per spec §3's invariant and scenario S1, marking a bucket deleted
// appends a synthetic delete-marker version to every object still in
// it, derived from that object's prior latest version id. This makes
// the object's last state explicitly "deleted" rather than leaving its
// last regular version looking live until GC gets to it.
func (c *BucketCatalog) RemoveBucket(ctx context.Context, bucketID, name string) error {
	if err := c.buckets.MarkDeleted(ctx, bucketID); err != nil {
		return err
	}
	c.invalidate(ctx, name)

	if c.objects == nil {
		return nil
	}
	objs, err := c.objects.ListObjectsInBucket(ctx, bucketID)
	if err != nil {
		return fmt.Errorf("list objects for delete-marker cascade: %w", err)
	}
	for _, obj := range objs {
		if err := c.appendDeleteMarker(ctx, obj); err != nil {
			return err
		}
	}
	return nil
}

// appendDeleteMarker inserts a synthetic DELETE_MARKER version for obj,
// deriving its version_id from the prior latest version's id (spec §3).
func (c *BucketCatalog) appendDeleteMarker(ctx context.Context, obj *domain.Object) error {
	objectID := obj.UUID.String()
	versions, err := c.objects.ListVersions(ctx, objectID)
	if err != nil {
		return fmt.Errorf("list versions for %s: %w", objectID, err)
	}

	priorVersionID := ""
	for _, v := range versions {
		if v.VersionID != "" {
			priorVersionID = v.VersionID
			break // ListVersions is newest-first; the first entry is the prior latest.
		}
	}

	versionID := priorVersionID + "-deleted"
	if priorVersionID == "" {
		versionID = "deleted"
	}
	marker := domain.NewDeleteMarkerVersion(objectID, versionID)
	if err := c.objects.CreateVersion(ctx, marker); err != nil {
		return fmt.Errorf("append delete marker for %s: %w", objectID, err)
	}
	return nil
}

func (c *BucketCatalog) invalidate(ctx context.Context, name string) {
	if c.cache != nil {
		_ = c.cache.Delete(ctx, cache.Keys.BucketByName(name))
	}
}
