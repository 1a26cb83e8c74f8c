// Package store defines the metadata-store interfaces (C1) used by the
// catalog, writer, and GC layers. Implementations live in sub-packages
// (sqlite is the primary, exercised backend; postgres is kept as an
// alternate backend behind the same shapes).
//
// Grounded on the teacher's internal/repository/interfaces.go, adapted
// from int64 auto-increment IDs to the spec's string/uuid identifiers
// and from the teacher's eager CRUD model to the spec's
// optimistic-concurrency store_user/store_bucket and cascading-GC
// query shapes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/prn-tf/sfsgw/internal/domain"
)

// ErrNotFound indicates the requested row was not found. Store
// implementations return a more specific domain error
// (domain.ErrUserNotFound, etc.) where one exists; this is the
// fallback for rows with no dedicated domain error.
var ErrNotFound = errors.New("not found")

// ListOptions contains common pagination options.
type ListOptions struct {
	Offset int
	Limit  int
}

// UserStore is the metadata store for catalog users (spec §3, C7).
type UserStore interface {
	// StoreUser creates or updates a user with optimistic concurrency
	// (spec §4.7, testable property 2). expectedVersion is the version
	// the caller last read; 0 means "this user does not exist yet".
	// On success user.Version is set to the newly stored version.
	// A mismatch between expectedVersion and the stored version
	// returns domain.ErrConflict and leaves the row untouched.
	StoreUser(ctx context.Context, user *domain.User, expectedVersion int64) error

	GetUser(ctx context.Context, id string) (*domain.User, error)
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context, opts ListOptions) ([]*domain.User, error)
}

// AccessKeyStore is the metadata store for API access keys.
type AccessKeyStore interface {
	Create(ctx context.Context, key *domain.AccessKey) error
	GetByAccessKeyID(ctx context.Context, accessKeyID string) (*domain.AccessKey, error)
	GetActiveByAccessKeyID(ctx context.Context, accessKeyID string) (*domain.AccessKey, error)
	ListByUserID(ctx context.Context, userID string) ([]*domain.AccessKey, error)
	UpdateLastUsed(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	DeleteByAccessKeyID(ctx context.Context, accessKeyID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// BucketStore is the metadata store for buckets (spec §3, C7).
type BucketStore interface {
	// StoreBucket creates or updates a bucket with optimistic
	// concurrency, mirroring StoreUser.
	StoreBucket(ctx context.Context, bucket *domain.Bucket, expectedVersion int64) error

	GetBucket(ctx context.Context, bucketID string) (*domain.Bucket, error)
	GetBucketByName(ctx context.Context, name string) (*domain.Bucket, error)
	ListBucketsByOwner(ctx context.Context, ownerID string) ([]*domain.Bucket, error)

	// MarkDeleted sets the bucket's tombstone (spec §4.6 step 1): the
	// bucket becomes invisible to new writes but its row and objects
	// survive until GC purges them.
	MarkDeleted(ctx context.Context, bucketID string) error

	// ListDeletedBuckets returns up to limit buckets with deleted=true,
	// for the GC cascade (spec §4.6).
	ListDeletedBuckets(ctx context.Context, limit int) ([]*domain.Bucket, error)

	// PurgeBucket hard-deletes a bucket row. Callers must ensure no
	// objects reference it first.
	PurgeBucket(ctx context.Context, bucketID string) error
}

// ObjectStore is the metadata store for objects and their versions
// (spec §3, C3/C6).
type ObjectStore interface {
	// GetOrCreateObject returns the Object row for (bucketID, name),
	// creating it if absent. Objects have no per-write-path version
	// concept of their own; all state lives in VersionedObject rows.
	GetOrCreateObject(ctx context.Context, bucketID, name string) (*domain.Object, error)

	GetObject(ctx context.Context, bucketID, name string) (*domain.Object, error)

	// ListObjectsInBucket returns every Object row in bucketID
	// regardless of its versions' states, for the bucket-deletion
	// delete-marker cascade (spec §3 invariant: "a delete-marker
	// insertion for object O appends a synthetic version... ") and the
	// GC object enumeration step (spec §4.6 step 2).
	ListObjectsInBucket(ctx context.Context, bucketID string) ([]*domain.Object, error)

	// ListObjectNames returns distinct object names in a bucket with an
	// at-least-one-non-deleted-version, ordered lexicographically, for
	// ListObjects-style enumeration.
	ListObjectNames(ctx context.Context, bucketID, prefix, startAfter string, limit int) ([]string, error)

	// CreateVersion inserts a new VersionedObject row and assigns its
	// auto-increment ID.
	CreateVersion(ctx context.Context, v *domain.VersionedObject) error

	GetVersion(ctx context.Context, objectID, versionID string) (*domain.VersionedObject, error)

	// GetLatestCommittedVersion returns the most recently committed,
	// non-deleted version of an object — the "current" version a
	// non-versioned GET/HEAD resolves to (spec §3).
	GetLatestCommittedVersion(ctx context.Context, bucketID, name string) (*domain.VersionedObject, error)

	// ListVersions returns every version of an object, newest first.
	ListVersions(ctx context.Context, objectID string) ([]*domain.VersionedObject, error)

	// UpdateVersion persists mutable fields of an existing version
	// (state, commit/delete/mtime, etag, checksum, size, attrs).
	UpdateVersion(ctx context.Context, v *domain.VersionedObject) error

	// ListDeletedVersions returns up to limit versions in the DELETED
	// state across all buckets, for GC (spec §4.6), honoring max_objs.
	ListDeletedVersions(ctx context.Context, limit int) ([]*domain.VersionedObject, error)

	// ListVersionsByBucket returns up to limit versions (any state)
	// belonging to objects in bucketID, used when cascading a deleted
	// bucket's objects into DELETED (spec §4.6 step 2).
	ListVersionsByBucket(ctx context.Context, bucketID string, limit int) ([]*domain.VersionedObject, error)

	// PurgeVersion hard-deletes a version row. Callers must unlink its
	// content file first (content-before-metadata ordering, spec §4.6).
	PurgeVersion(ctx context.Context, id int64) error

	// CountVersions returns the number of version rows remaining for
	// an object, used to decide whether the Object row itself can be
	// purged once it reaches zero.
	CountVersions(ctx context.Context, objectID string) (int, error)

	// PurgeObject hard-deletes an Object row with no remaining
	// versions.
	PurgeObject(ctx context.Context, objectID string) error

	// CountObjectsInBucket returns the number of Object rows remaining
	// in a bucket, used to decide when a deleted bucket can itself be
	// purged.
	CountObjectsInBucket(ctx context.Context, bucketID string) (int, error)
}

// MultipartStore is the metadata store for multipart uploads and
// their parts (spec §4.5, C5).
type MultipartStore interface {
	CreateUpload(ctx context.Context, upload *domain.MultipartUpload) error
	GetUpload(ctx context.Context, uploadID string) (*domain.MultipartUpload, error)
	ListUploads(ctx context.Context, bucketID string, opts ListOptions) ([]*domain.MultipartUpload, error)
	UpdateStatus(ctx context.Context, uploadID string, status domain.MultipartStatus) error
	DeleteUpload(ctx context.Context, uploadID string) error
	DeleteExpiredUploads(ctx context.Context, now time.Time) (int64, error)

	CreatePart(ctx context.Context, part *domain.UploadPart) error
	GetPart(ctx context.Context, uploadID string, partNumber int) (*domain.UploadPart, error)
	ListParts(ctx context.Context, uploadID string) ([]*domain.UploadPart, error)
	DeleteParts(ctx context.Context, uploadID string) error
	GetPartsForCompletion(ctx context.Context, uploadID string, partNumbers []int) ([]*domain.UploadPart, error)
}

// LifecycleStore persists the opaque lifecycle head/entry rows (spec
// §1, §3). Neither this core nor its store evaluates lifecycle rules.
type LifecycleStore interface {
	GetHead(ctx context.Context, bucketID string) (*domain.LCHead, error)
	PutHead(ctx context.Context, head *domain.LCHead) error
	DeleteHead(ctx context.Context, bucketID string) error

	ListEntries(ctx context.Context, bucketID string) ([]*domain.LCEntry, error)
	PutEntry(ctx context.Context, entry *domain.LCEntry) error
	DeleteEntry(ctx context.Context, bucketID, entryID string) error
}

// Health is satisfied by a concrete backend connection for health
// checks and lifecycle management (mirrors the teacher's
// repository.DatabaseHealth).
type Health interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

// Stores bundles every store interface a catalog/writer/GC component
// needs, handed out by a backend's constructor.
type Stores struct {
	Users      UserStore
	AccessKeys AccessKeyStore
	Buckets    BucketStore
	Objects    ObjectStore
	Multipart  MultipartStore
	Lifecycle  LifecycleStore
	DB         Health
}
