package writer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/prn-tf/sfsgw/internal/content"
	"github.com/prn-tf/sfsgw/internal/domain"
	"github.com/prn-tf/sfsgw/internal/pkg/crypto"
	"github.com/prn-tf/sfsgw/internal/store"
)

// PartWriter implements the atomic writer contract for one multipart
// upload part, keyed by (upload_id, part_number) (spec §4.5, C5).
// Shares the prepare/process/complete shape of ObjectWriter per
// original_source/src/rgw/driver/sfs/writer.h's SFSMultipartWriter,
// but completes into an UploadPart row rather than a VersionedObject.
type PartWriter struct {
	content *content.Store
	parts   store.MultipartStore

	uploadID   uuid.UUID
	partNumber int

	handle       *content.Handle
	path         string
	hash         hash.Hash
	bytesWritten int64
	closed       bool
}

// NewPart creates a PartWriter for (uploadID, partNumber).
func NewPart(contentStore *content.Store, parts store.MultipartStore, uploadID uuid.UUID, partNumber int) *PartWriter {
	return &PartWriter{content: contentStore, parts: parts, uploadID: uploadID, partNumber: partNumber}
}

// Prepare opens the part's backing content file for append.
func (w *PartWriter) Prepare(ctx context.Context) error {
	w.path = w.content.PartPath(w.uploadID, w.partNumber)
	handle, err := w.content.OpenForAppend(w.path)
	if err != nil {
		return err
	}
	w.handle = handle
	w.hash = md5.New()
	return nil
}

// Process writes chunk at offset with the same monotonic-offset
// enforcement as ObjectWriter.Process.
func (w *PartWriter) Process(ctx context.Context, chunk []byte, offset int64) error {
	if w.closed {
		return domain.ErrWriterClosed
	}
	if offset != w.bytesWritten {
		w.abortLocked()
		return fmt.Errorf("%w: expected offset %d, got %d", domain.ErrInvalidArgument, w.bytesWritten, offset)
	}
	if err := w.handle.Write(offset, chunk); err != nil {
		w.abortLocked()
		return err
	}
	w.hash.Write(chunk)
	w.bytesWritten += int64(len(chunk))
	return nil
}

// Complete validates accounted_size, fsyncs the part file, and
// records the UploadPart row.
func (w *PartWriter) Complete(ctx context.Context, accountedSize int64) (*Result, error) {
	if w.closed {
		return nil, domain.ErrWriterClosed
	}
	defer func() { w.closed = true }()

	if accountedSize != w.bytesWritten {
		w.abortLocked()
		return nil, fmt.Errorf("%w: accounted size %d != written %d", domain.ErrInvalidArgument, accountedSize, w.bytesWritten)
	}
	if err := w.handle.Fsync(); err != nil {
		w.abortLocked()
		return nil, err
	}
	if err := w.handle.Close(); err != nil {
		w.abortLocked()
		return nil, err
	}

	checksum := hex.EncodeToString(w.hash.Sum(nil))
	etag := fmt.Sprintf("%q", checksum)

	part := domain.NewUploadPart(w.uploadID, w.partNumber, checksum, etag, w.bytesWritten)
	if err := w.parts.CreatePart(ctx, part); err != nil {
		return nil, err
	}

	return &Result{ETag: etag, Size: w.bytesWritten}, nil
}

func (w *PartWriter) abortLocked() {
	w.closed = true
	if w.handle != nil {
		_ = w.handle.Close()
	}
	if w.path != "" {
		_ = w.content.Unlink(w.path)
	}
}

// Abort removes the part's content file without recording a row.
func (w *PartWriter) Abort(ctx context.Context) {
	if w.closed {
		return
	}
	w.closed = true
	w.abortLocked()
}

// Combiner assembles completed parts into a final object version
// (spec §4.5 complete_multipart): content is concatenated
// sequentially into the version's own path and each part's composite
// MD5 feeds the multipart ETag.
type Combiner struct {
	content *content.Store
	objects store.ObjectStore
	parts   store.MultipartStore
}

// NewCombiner creates a Combiner.
func NewCombiner(contentStore *content.Store, objects store.ObjectStore, parts store.MultipartStore) *Combiner {
	return &Combiner{content: contentStore, objects: objects, parts: parts}
}

// Combine concatenates the named parts of uploadID, in order, into a
// freshly opened version file for (bucketID, key), and returns the
// VersionedObject row ready for a caller to mark COMMITTED alongside
// the multipart upload's own status transition.
func (c *Combiner) Combine(ctx context.Context, uploadID uuid.UUID, partNumbers []int, completedETags map[int]string, objectUUID uuid.UUID, versionID string) (*domain.VersionedObject, string, error) {
	uploadIDStr := uploadID.String()
	parts, err := c.parts.GetPartsForCompletion(ctx, uploadIDStr, partNumbers)
	if err != nil {
		return nil, "", err
	}

	for _, p := range parts {
		if completedETags != nil {
			if want, ok := completedETags[p.PartNumber]; ok && want != p.ETag {
				return nil, "", fmt.Errorf("%w: part %d etag mismatch", domain.ErrPartETagMismatch, p.PartNumber)
			}
		}
	}

	finalPath := c.content.Path(objectUUID, versionID)
	if err := c.content.EnsureParentDirs(finalPath); err != nil {
		return nil, "", err
	}
	out, err := os.OpenFile(finalPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("%w: create combined version file: %v", domain.ErrIOError, err)
	}
	defer out.Close()

	var totalSize int64
	var partMD5s [][]byte
	for _, p := range parts {
		partPath := c.content.PartPath(uploadID, p.PartNumber)
		if err := appendPart(out, partPath); err != nil {
			os.Remove(finalPath)
			return nil, "", err
		}
		totalSize += p.Size
		md5Bytes, decodeErr := hex.DecodeString(trimQuotes(p.ETag))
		if decodeErr == nil {
			partMD5s = append(partMD5s, md5Bytes)
		}
	}

	if err := out.Sync(); err != nil {
		os.Remove(finalPath)
		return nil, "", fmt.Errorf("%w: fsync combined version file: %v", domain.ErrIOError, err)
	}

	etag := crypto.ComputeMultipartETag(partMD5s)
	version := domain.NewOpenVersion(objectUUID.String(), versionID)
	version.Size = totalSize
	version.ETag = etag
	return version, etag, nil
}

func appendPart(out *os.File, partPath string) error {
	in, err := os.Open(partPath)
	if err != nil {
		return fmt.Errorf("%w: open part %s: %v", domain.ErrIOError, partPath, err)
	}
	defer in.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("%w: copy part %s: %v", domain.ErrIOError, partPath, err)
	}
	return nil
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
