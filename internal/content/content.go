// Package content implements the spec's content store (C2): a
// filesystem layout rooted at a data path, with UUID-derived path
// generation and atomic file creation/removal.
//
// Grounded on the teacher's internal/storage/path.go two-level
// hex-sharding shape, re-keyed off the object uuid + version_id
// instead of a content hash, and without the teacher's ref-counted
// dedup — every version here owns exactly one file.
package content

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/prn-tf/sfsgw/internal/domain"
)

// Store derives and manipulates on-disk paths for object versions
// rooted at a single data directory.
type Store struct {
	dataPath string
}

// New creates a content Store rooted at dataPath. dataPath must exist
// or be creatable by the caller before any writes occur.
func New(dataPath string) *Store {
	return &Store{dataPath: dataPath}
}

// Path derives the filesystem path for a version from its object uuid
// and version id (spec §4.2): the uuid is rendered as a hex string
// and split into a two-level directory prefix (first two hex digits,
// next two hex digits) followed by the remainder, suffixed with the
// version id.
func (s *Store) Path(objectUUID uuid.UUID, versionID string) string {
	h := hex.EncodeToString(objectUUID[:])
	level1, level2, rest := h[0:2], h[2:4], h[4:]
	filename := fmt.Sprintf("%s_%s", rest, versionID)
	return filepath.Join(s.dataPath, level1, level2, filename)
}

// PartPath derives the filesystem path for a multipart upload part,
// sharded the same way as Path but keyed by (upload_id, part_number)
// rather than (object uuid, version_id), since a part exists before
// any Object row does (spec §4.5).
func (s *Store) PartPath(uploadID uuid.UUID, partNumber int) string {
	h := hex.EncodeToString(uploadID[:])
	level1, level2, rest := h[0:2], h[2:4], h[4:]
	filename := fmt.Sprintf("%s_part%05d", rest, partNumber)
	return filepath.Join(s.dataPath, "multipart", level1, level2, filename)
}

// EnsureParentDirs creates the directory tree containing path, if
// missing.
func (s *Store) EnsureParentDirs(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: create parent dirs for %s: %v", domain.ErrIOError, path, err)
	}
	return nil
}

// Handle is an open content file positioned for monotonically
// increasing offset writes (spec §4.2 append-at-offset semantics).
type Handle struct {
	f            *os.File
	path         string
	highWatermark int64
}

// OpenForAppend opens path exclusively for write, creating parent
// directories as needed. The returned Handle enforces monotonic
// offsets on Write.
func (s *Store) OpenForAppend(path string) (*Handle, error) {
	if err := s.EnsureParentDirs(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s for write: %v", domain.ErrIOError, path, err)
	}
	return &Handle{f: f, path: path}, nil
}

// Write appends bytes at offset. Non-monotonic offsets (offset less
// than the current high watermark) are rejected with
// ErrInvalidArgument and no bytes are written (spec §4.4, testable
// property 4).
func (h *Handle) Write(offset int64, chunk []byte) error {
	if offset < h.highWatermark {
		return fmt.Errorf("%w: non-monotonic write offset %d < %d", domain.ErrInvalidArgument, offset, h.highWatermark)
	}
	n, err := h.f.WriteAt(chunk, offset)
	if err != nil {
		return fmt.Errorf("%w: write at offset %d: %v", domain.ErrIOError, offset, err)
	}
	h.highWatermark = offset + int64(n)
	return nil
}

// HighWatermark returns the number of bytes durably acknowledged so far.
func (h *Handle) HighWatermark() int64 {
	return h.highWatermark
}

// Fsync flushes the file's content and metadata to stable storage.
func (h *Handle) Fsync() error {
	if err := h.f.Sync(); err != nil {
		return fmt.Errorf("%w: fsync %s: %v", domain.ErrIOError, h.path, err)
	}
	return nil
}

// Close closes the underlying file descriptor without fsyncing.
func (h *Handle) Close() error {
	if err := h.f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", domain.ErrIOError, h.path, err)
	}
	return nil
}

// Path returns the path this handle was opened for.
func (h *Handle) Path() string {
	return h.path
}

// Unlink removes path. A missing file is tolerated (GC idempotence,
// spec §4.6 step 6).
func (s *Store) Unlink(path string) error {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: unlink %s: %v", domain.ErrIOError, path, err)
	}
	return nil
}

// Size returns the size in bytes of the regular file at path, or
// (0, false) if it does not exist or is not a regular file.
func (s *Store) Size(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return info.Size(), true
}

// ListRegularFiles walks root and returns paths of every regular file
// found, used by property tests asserting content-file counts.
func (s *Store) ListRegularFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: list files under %s: %v", domain.ErrIOError, root, err)
	}
	return out, nil
}
