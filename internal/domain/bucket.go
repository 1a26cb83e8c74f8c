package domain

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// BucketFlag is a bitset of bucket-level flags (spec §3).
type BucketFlag uint32

const (
	// BucketFlagVersioned marks the bucket as having versioning enabled
	// (or previously enabled — see IsVersioningEverEnabled).
	BucketFlagVersioned BucketFlag = 1 << iota
	// BucketFlagVersioningSuspended marks versioning as paused after
	// having been enabled.
	BucketFlagVersioningSuspended
	// BucketFlagObjectLockEnabled marks object-lock (WORM) as active.
	BucketFlagObjectLockEnabled
)

// bucketNameRegex validates S3-compliant bucket names: 3-63 chars,
// lowercase letters, numbers, hyphens, periods; must start/end with
// letter or number.
var bucketNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// Bucket is the catalog's bucket entity (spec §3). bucket_id is the
// primary key; name is separately unique and indexed.
type Bucket struct {
	BucketID string `json:"bucket_id"`
	Name     string `json:"name"`
	Tenant   string `json:"tenant"`
	Marker   string `json:"marker"`
	OwnerID  string `json:"owner_id"`

	Flags     BucketFlag `json:"flags"`
	ZoneGroup string     `json:"zonegroup"`

	CreateTime    time.Time `json:"create_time"`
	PlacementName string    `json:"placement_name"`

	// Opaque blobs, round-tripped verbatim.
	Attrs            []byte `json:"bucket_attrs,omitempty"`
	ObjectLockConfig []byte `json:"object_lock,omitempty"`

	// Version is the optimistic-concurrency counter (spec §4.7).
	Version    int64  `json:"bucket_version"`
	VersionTag string `json:"bucket_version_tag"`

	// Deleted is the two-phase-delete tombstone (spec §3, §4.6):
	// once true, no new writes may target the bucket and its objects
	// await GC.
	Deleted bool `json:"deleted"`
}

// NewBucket creates a new Bucket with default values and no bucket_id
// assigned yet unless one is supplied.
func NewBucket(bucketID, ownerID, name string) *Bucket {
	if bucketID == "" {
		bucketID = uuid.NewString()
	}
	return &Bucket{
		BucketID:   bucketID,
		OwnerID:    ownerID,
		Name:       name,
		CreateTime: time.Now().UTC(),
	}
}

// IsVersioningEnabled returns true if versioning is currently active.
func (b *Bucket) IsVersioningEnabled() bool {
	return b.Flags&BucketFlagVersioned != 0 && b.Flags&BucketFlagVersioningSuspended == 0
}

// IsVersioningEverEnabled returns true if versioning was ever turned on.
func (b *Bucket) IsVersioningEverEnabled() bool {
	return b.Flags&BucketFlagVersioned != 0
}

// IsObjectLockEnabled returns true if object-lock (WORM) is active.
func (b *Bucket) IsObjectLockEnabled() bool {
	return b.Flags&BucketFlagObjectLockEnabled != 0
}

// ValidateBucketName checks if the bucket name follows S3 naming
// conventions.
func ValidateBucketName(name string) error {
	if len(name) < 3 || len(name) > 63 {
		return ErrBucketNameLength
	}
	if !bucketNameRegex.MatchString(name) {
		return ErrBucketNameFormat
	}
	if isIPAddress(name) {
		return ErrBucketNameIPFormat
	}
	return nil
}

func isIPAddress(s string) bool {
	ipRegex := regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
	return ipRegex.MatchString(s)
}
