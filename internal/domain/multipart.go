package domain

import (
	"time"

	"github.com/google/uuid"
)

// MultipartStatus represents the status of a multipart upload.
type MultipartStatus string

const (
	MultipartStatusInProgress MultipartStatus = "InProgress"
	MultipartStatusCompleted  MultipartStatus = "Completed"
	MultipartStatusAborted    MultipartStatus = "Aborted"
)

// MultipartUpload represents an in-progress multipart upload. The
// final assembled version is produced by the gateway's
// complete_multipart flow (spec §4.5), not by the part writer itself.
type MultipartUpload struct {
	ID          uuid.UUID       `json:"upload_id"`
	BucketID    string          `json:"bucket_id"`
	Key         string          `json:"key"`
	InitiatorID string          `json:"initiator_id"`
	Status      MultipartStatus `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	InitiatedAt time.Time       `json:"initiated_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// NewMultipartUpload creates a new MultipartUpload expiring after 7 days.
func NewMultipartUpload(bucketID, key, initiatorID string) *MultipartUpload {
	now := time.Now().UTC()
	return &MultipartUpload{
		ID:          uuid.New(),
		BucketID:    bucketID,
		Key:         key,
		InitiatorID: initiatorID,
		Status:      MultipartStatusInProgress,
		Metadata:    make(map[string]string),
		InitiatedAt: now,
		ExpiresAt:   now.Add(7 * 24 * time.Hour),
	}
}

// IsExpired returns true if the upload has expired.
func (m *MultipartUpload) IsExpired() bool {
	return time.Now().UTC().After(m.ExpiresAt)
}

// IsActive returns true if the upload is still in progress.
func (m *MultipartUpload) IsActive() bool {
	return m.Status == MultipartStatusInProgress && !m.IsExpired()
}

// UploadPart represents a single part of a multipart upload. Each part
// is written through its own Writer instance keyed by (upload_id,
// part_number) (spec §4.5); it carries a checksum rather than a
// content-hash storage key, matching the non-dedup content model.
type UploadPart struct {
	ID         int64     `json:"id"`
	UploadID   uuid.UUID `json:"upload_id"`
	PartNumber int       `json:"part_number"`
	Checksum   string    `json:"checksum"`
	Size       int64     `json:"size"`
	ETag       string    `json:"etag"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewUploadPart creates a new UploadPart record.
func NewUploadPart(uploadID uuid.UUID, partNumber int, checksum, etag string, size int64) *UploadPart {
	return &UploadPart{
		UploadID:   uploadID,
		PartNumber: partNumber,
		Checksum:   checksum,
		Size:       size,
		ETag:       etag,
		CreatedAt:  time.Now().UTC(),
	}
}

// ValidatePartNumber checks if the part number is valid (1-10000).
func ValidatePartNumber(partNumber int) error {
	if partNumber < 1 || partNumber > 10000 {
		return ErrInvalidPartNumber
	}
	return nil
}

// PartInfo is a summary of part information returned in list operations.
type PartInfo struct {
	PartNumber   int       `json:"part_number"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"last_modified"`
}

// CompletedPart identifies a part to combine in CompleteMultipartUpload.
type CompletedPart struct {
	PartNumber int    `json:"part_number"`
	ETag       string `json:"etag"`
}

// MultipartUploadInfo is a summary returned in ListMultipartUploads.
type MultipartUploadInfo struct {
	UploadID    string     `json:"upload_id"`
	Key         string     `json:"key"`
	Initiated   time.Time  `json:"initiated"`
	Initiator   *OwnerInfo `json:"initiator,omitempty"`
}

// OwnerInfo contains information about a resource owner.
type OwnerInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}
