// Package writer implements the atomic content writer contract (spec
// §4.4, §4.5; C4/C5): prepare/process/complete with fsync-before-commit
// and crash-safe DELETED-on-failure transitions.
//
// Grounded on original_source/src/rgw/driver/sfs/writer.h, whose
// SFSAtomicWriter and SFSMultipartWriter share this exact
// prepare/process/complete shape, and on the teacher's
// object_service.go/multipart_service.go call sites, which this
// package's Writer replaces with a staged writer instead of an eager
// single-call store.
package writer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"time"

	"github.com/google/uuid"

	"github.com/prn-tf/sfsgw/internal/content"
	"github.com/prn-tf/sfsgw/internal/domain"
	"github.com/prn-tf/sfsgw/internal/store"
)

// CompleteOptions carries the parameters of writer.complete (spec
// §4.4 step 3 / original writer.h's complete signature).
type CompleteOptions struct {
	// AccountedSize is the size the caller expects to have written;
	// mismatched against bytes actually written is an invalid argument.
	AccountedSize int64

	// ETag, when non-empty, is compared against the writer's own
	// computed ETag and rejected on mismatch (content integrity check).
	ETag string

	// SetMTime overrides the version's mtime; zero value uses now().
	SetMTime time.Time

	// Attrs is stored verbatim as the version's opaque attribute blob.
	Attrs []byte

	// IfMatch/IfNoneMatch implement the precondition checks of spec
	// §4.4 step 3 against the object's current latest committed ETag.
	// Empty strings mean "no precondition".
	IfMatch    string
	IfNoneMatch string
}

// Result is returned by a successful Complete.
type Result struct {
	ETag      string
	Size      int64
	VersionID string
	Canceled  bool
}

// ObjectWriter implements the atomic writer for a single object
// version (spec §4.4, C4).
type ObjectWriter struct {
	content *content.Store
	objects store.ObjectStore
	buckets store.BucketStore

	bucketID string
	objKey   string

	object  *domain.Object
	version *domain.VersionedObject
	handle  *content.Handle
	path    string

	hash         hash.Hash
	bytesWritten int64
	closed       bool
}

// New creates an ObjectWriter for (bucketID, key). Call Prepare before
// Process/Complete.
func New(contentStore *content.Store, objects store.ObjectStore, buckets store.BucketStore, bucketID, key string) *ObjectWriter {
	return &ObjectWriter{content: contentStore, objects: objects, buckets: buckets, bucketID: bucketID, objKey: key}
}

// Prepare allocates the Object row (if new), a fresh version_id, and
// the OPEN VersionedObject row, then opens the backing content file
// (spec §4.4 step 1).
func (w *ObjectWriter) Prepare(ctx context.Context) error {
	bucket, err := w.buckets.GetBucket(ctx, w.bucketID)
	if err != nil {
		return err
	}
	if bucket.Deleted {
		return fmt.Errorf("%w: bucket %s", domain.ErrBucketDeleted, w.bucketID)
	}

	obj, err := w.objects.GetOrCreateObject(ctx, w.bucketID, w.objKey)
	if err != nil {
		return err
	}
	w.object = obj

	versionID := uuid.NewString()
	version := domain.NewOpenVersion(obj.UUID.String(), versionID)
	if err := w.objects.CreateVersion(ctx, version); err != nil {
		return err
	}
	w.version = version

	w.path = w.content.Path(obj.UUID, versionID)
	handle, err := w.content.OpenForAppend(w.path)
	if err != nil {
		w.failVersion(ctx)
		return err
	}
	w.handle = handle
	w.hash = md5.New()
	return nil
}

// Process writes chunk at offset, enforcing monotonic offsets (spec
// §4.4 step 2, testable property 4). On any failure the version is
// transitioned to DELETED and the content file removed.
func (w *ObjectWriter) Process(ctx context.Context, chunk []byte, offset int64) error {
	if w.closed {
		return domain.ErrWriterClosed
	}
	if offset != w.bytesWritten {
		w.failAndCleanup(ctx)
		return fmt.Errorf("%w: expected offset %d, got %d", domain.ErrInvalidArgument, w.bytesWritten, offset)
	}
	if err := w.handle.Write(offset, chunk); err != nil {
		w.failAndCleanup(ctx)
		return err
	}
	w.hash.Write(chunk)
	w.bytesWritten += int64(len(chunk))
	return nil
}

// Complete validates accounted_size and any if_match/if_nomatch
// preconditions, fsyncs the content file, and transitions the version
// to COMMITTED (spec §4.4 step 3). A failed precondition returns
// Result.Canceled = true and transitions the version to DELETED rather
// than returning an error, mirroring writer.h's canceled out-parameter.
func (w *ObjectWriter) Complete(ctx context.Context, opts CompleteOptions) (*Result, error) {
	if w.closed {
		return nil, domain.ErrWriterClosed
	}
	defer func() { w.closed = true }()

	if opts.AccountedSize != w.bytesWritten {
		w.failAndCleanup(ctx)
		return nil, fmt.Errorf("%w: accounted size %d != written %d", domain.ErrInvalidArgument, opts.AccountedSize, w.bytesWritten)
	}

	computedETag := fmt.Sprintf("%q", hex.EncodeToString(w.hash.Sum(nil)))
	if opts.ETag != "" && opts.ETag != computedETag {
		w.failAndCleanup(ctx)
		return nil, fmt.Errorf("%w: etag mismatch", domain.ErrInvalidArgument)
	}

	if canceled, err := w.checkPreconditions(ctx, opts); err != nil {
		return nil, err
	} else if canceled {
		w.failAndCleanup(ctx)
		return &Result{Canceled: true}, nil
	}

	if err := w.handle.Fsync(); err != nil {
		w.failAndCleanup(ctx)
		return nil, err
	}
	if err := w.handle.Close(); err != nil {
		w.failAndCleanup(ctx)
		return nil, err
	}

	now := time.Now().UTC()
	mtime := now
	if !opts.SetMTime.IsZero() {
		mtime = opts.SetMTime
	}

	w.version.Size = w.bytesWritten
	w.version.Checksum = hex.EncodeToString(w.hash.Sum(nil))
	w.version.ETag = computedETag
	w.version.Attrs = opts.Attrs
	w.version.State = domain.ObjectStateCommitted
	w.version.CommitTime = &now
	w.version.MTime = &mtime

	if err := w.objects.UpdateVersion(ctx, w.version); err != nil {
		return nil, err
	}

	return &Result{ETag: computedETag, Size: w.bytesWritten, VersionID: w.version.VersionID}, nil
}

// checkPreconditions evaluates if_match/if_nomatch against the
// object's current latest committed ETag (spec §4.4 step 3).
func (w *ObjectWriter) checkPreconditions(ctx context.Context, opts CompleteOptions) (canceled bool, err error) {
	if opts.IfMatch == "" && opts.IfNoneMatch == "" {
		return false, nil
	}
	current, err := w.objects.GetLatestCommittedVersion(ctx, w.bucketID, w.objKey)
	if err != nil && err != domain.ErrVersionNotFound {
		return false, err
	}
	var currentETag string
	if current != nil {
		currentETag = current.ETag
	}

	if opts.IfMatch != "" && opts.IfMatch != currentETag {
		return true, nil
	}
	if opts.IfNoneMatch != "" && opts.IfNoneMatch == currentETag {
		return true, nil
	}
	return false, nil
}

// failAndCleanup transitions the version to DELETED and removes the
// partial content file, then closes the handle (spec §4.4: any
// process/complete failure leaves no live OPEN version or orphan file).
// Marks the writer closed so subsequent Process/Complete calls
// short-circuit to ErrWriterClosed instead of operating on a version
// that is already gone (spec §4.4 failure semantics: an io_failed
// writer never accepts further calls).
func (w *ObjectWriter) failAndCleanup(ctx context.Context) {
	w.closed = true
	if w.handle != nil {
		_ = w.handle.Close()
	}
	if w.path != "" {
		_ = w.content.Unlink(w.path)
	}
	w.failVersion(ctx)
}

func (w *ObjectWriter) failVersion(ctx context.Context) {
	if w.version == nil {
		return
	}
	w.version.MarkDeleted()
	_ = w.objects.UpdateVersion(ctx, w.version)
}

// Abort cancels an in-progress write, cleaning up exactly as a
// process/complete failure would (used by caller-initiated cancel,
// spec §4.4).
func (w *ObjectWriter) Abort(ctx context.Context) {
	if w.closed {
		return
	}
	w.closed = true
	w.failAndCleanup(ctx)
}
