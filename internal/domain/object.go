package domain

import (
	"time"

	"github.com/google/uuid"
)

// ObjectState is the state machine for a VersionedObject (spec §4.3):
//
//	        ┌── complete ──► COMMITTED ── delete ──► DELETED
//	OPEN ───┤                                           ▲
//	        └── failure / cancel ───────────────────────┘
type ObjectState int

const (
	ObjectStateOpen ObjectState = iota
	ObjectStateCommitted
	ObjectStateDeleted
)

func (s ObjectState) String() string {
	switch s {
	case ObjectStateOpen:
		return "OPEN"
	case ObjectStateCommitted:
		return "COMMITTED"
	case ObjectStateDeleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// VersionType distinguishes a regular version from a synthetic delete
// marker (spec §3).
type VersionType int

const (
	VersionTypeRegular VersionType = iota
	VersionTypeDeleteMarker
)

// Object is the spec's uuid-identified object entity (spec §3). The
// uuid gives a stable identity for the filesystem path independent of
// the user-facing name; a single Object may have many VersionedObject
// rows.
type Object struct {
	UUID     uuid.UUID `json:"uuid"`
	BucketID string    `json:"bucket_id"`
	Name     string    `json:"name"`
}

// NewObject allocates a fresh Object row for (bucketID, name).
func NewObject(bucketID, name string) *Object {
	return &Object{
		UUID:     uuid.New(),
		BucketID: bucketID,
		Name:     name,
	}
}

// VersionedObject is one immutable snapshot of an object's bytes plus
// metadata at one commit point (spec §3). Row definitions are plain
// records — in-memory instances are thin views over a row id; the
// metadata store is authoritative for all transitions (spec §4.3).
type VersionedObject struct {
	ID       int64  `json:"id"`
	ObjectID string `json:"object_id"` // Object.UUID, as string
	Checksum string `json:"checksum"`
	Size     int64  `json:"size"`

	CreateTime time.Time  `json:"create_time"`
	DeleteTime *time.Time `json:"delete_time,omitempty"`
	CommitTime *time.Time `json:"commit_time,omitempty"`
	MTime      *time.Time `json:"mtime,omitempty"`

	State     ObjectState `json:"object_state"`
	VersionID string      `json:"version_id"`
	ETag      string      `json:"etag"`
	Attrs     []byte      `json:"attrs,omitempty"`
	Type      VersionType `json:"version_type"`
}

// NewOpenVersion creates a VersionedObject row in the OPEN state with
// a freshly allocated version_id (spec §4.4 prepare step).
func NewOpenVersion(objectID string, versionID string) *VersionedObject {
	return &VersionedObject{
		ObjectID:   objectID,
		CreateTime: time.Now().UTC(),
		State:      ObjectStateOpen,
		VersionID:  versionID,
		Type:       VersionTypeRegular,
	}
}

// NewDeleteMarkerVersion creates a synthetic delete-marker version
// (spec §3: "a delete-marker insertion for object O appends a
// synthetic version whose id is derived from the prior latest
// version's id"). It is created directly in COMMITTED state — delete
// markers carry no content file and are never staged through a writer.
func NewDeleteMarkerVersion(objectID, versionID string) *VersionedObject {
	now := time.Now().UTC()
	return &VersionedObject{
		ObjectID:   objectID,
		CreateTime: now,
		CommitTime: &now,
		State:      ObjectStateCommitted,
		VersionID:  versionID,
		Type:       VersionTypeDeleteMarker,
	}
}

// IsDeleteMarker returns true if this version is a synthetic delete
// marker rather than regular content.
func (v *VersionedObject) IsDeleteMarker() bool {
	return v.Type == VersionTypeDeleteMarker
}

// IsCommitted returns true if the version is user-visible.
func (v *VersionedObject) IsCommitted() bool {
	return v.State == ObjectStateCommitted
}

// MarkDeleted transitions the version to DELETED, stamping delete_time.
// Used both by explicit delete and by writer failure/cancel cleanup
// (spec §4.4).
func (v *VersionedObject) MarkDeleted() {
	now := time.Now().UTC()
	v.State = ObjectStateDeleted
	v.DeleteTime = &now
}

// ObjectInfo is a read-oriented summary combining an Object and its
// latest committed VersionedObject, for list operations.
type ObjectInfo struct {
	Key          string    `json:"key"`
	VersionID    string    `json:"version_id"`
	IsLatest     bool      `json:"is_latest"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"last_modified"`
}
