package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prn-tf/sfsgw/internal/domain"
	"github.com/prn-tf/sfsgw/internal/store"
)

// multipartStore implements store.MultipartStore for SQLite (spec
// §4.5, C5). Grounded on the teacher's
// repository/sqlite multipart/part CRUD shape, adapted to string
// bucket/initiator IDs and a checksum column in place of a
// content-hash dedup key.
type multipartStore struct {
	db *DB
}

// NewMultipartStore creates a new SQLite multipart store.
func NewMultipartStore(db *DB) store.MultipartStore {
	return &multipartStore{db: db}
}

func (s *multipartStore) CreateUpload(ctx context.Context, upload *domain.MultipartUpload) error {
	metaJSON, err := json.Marshal(upload.Metadata)
	if err != nil {
		return fmt.Errorf("marshal upload metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO multipart_uploads (upload_id, bucket_id, object_key, initiator_id, status, metadata, initiated_at, expires_at)
		VALUES (?,?,?,?,?,?,?,?)
	`,
		upload.ID.String(), upload.BucketID, upload.Key, upload.InitiatorID, string(upload.Status),
		metaJSON, upload.InitiatedAt.Format(time.RFC3339), upload.ExpiresAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("create multipart upload: %w", err)
	}
	return nil
}

func (s *multipartStore) GetUpload(ctx context.Context, uploadID string) (*domain.MultipartUpload, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT upload_id, bucket_id, object_key, initiator_id, status, metadata, initiated_at, expires_at, completed_at
		FROM multipart_uploads WHERE upload_id = ?
	`, uploadID)
	return scanUpload(row)
}

func scanUpload(row *sql.Row) (*domain.MultipartUpload, error) {
	u := &domain.MultipartUpload{}
	var idStr, status string
	var metaJSON []byte
	var initiatedAt, expiresAt string
	var completedAt sql.NullString

	err := row.Scan(&idStr, &u.BucketID, &u.Key, &u.InitiatorID, &status, &metaJSON, &initiatedAt, &expiresAt, &completedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrMultipartUploadNotFound
		}
		return nil, fmt.Errorf("scan multipart upload: %w", err)
	}
	parsed, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse upload id: %w", err)
	}
	u.ID = parsed
	u.Status = domain.MultipartStatus(status)
	u.Metadata = map[string]string{}
	_ = json.Unmarshal(metaJSON, &u.Metadata)
	u.InitiatedAt, _ = time.Parse(time.RFC3339, initiatedAt)
	u.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
	u.CompletedAt = parseTimePtr(completedAt)
	return u, nil
}

func (s *multipartStore) ListUploads(ctx context.Context, bucketID string, opts store.ListOptions) ([]*domain.MultipartUpload, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT upload_id, bucket_id, object_key, initiator_id, status, metadata, initiated_at, expires_at, completed_at
		FROM multipart_uploads WHERE bucket_id = ? ORDER BY object_key, initiated_at LIMIT ? OFFSET ?
	`, bucketID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list multipart uploads: %w", err)
	}
	defer rows.Close()

	var out []*domain.MultipartUpload
	for rows.Next() {
		u := &domain.MultipartUpload{}
		var idStr, status string
		var metaJSON []byte
		var initiatedAt, expiresAt string
		var completedAt sql.NullString
		if err := rows.Scan(&idStr, &u.BucketID, &u.Key, &u.InitiatorID, &status, &metaJSON, &initiatedAt, &expiresAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan multipart upload: %w", err)
		}
		parsed, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse upload id: %w", err)
		}
		u.ID = parsed
		u.Status = domain.MultipartStatus(status)
		u.Metadata = map[string]string{}
		_ = json.Unmarshal(metaJSON, &u.Metadata)
		u.InitiatedAt, _ = time.Parse(time.RFC3339, initiatedAt)
		u.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
		u.CompletedAt = parseTimePtr(completedAt)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *multipartStore) UpdateStatus(ctx context.Context, uploadID string, status domain.MultipartStatus) error {
	var completedAt interface{}
	if status == domain.MultipartStatusCompleted || status == domain.MultipartStatusAborted {
		completedAt = time.Now().UTC().Format(time.RFC3339)
	}
	result, err := s.db.ExecContext(ctx, `UPDATE multipart_uploads SET status = ?, completed_at = ? WHERE upload_id = ?`, string(status), completedAt, uploadID)
	if err != nil {
		return fmt.Errorf("update multipart upload status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrMultipartUploadNotFound
	}
	return nil
}

func (s *multipartStore) DeleteUpload(ctx context.Context, uploadID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM multipart_uploads WHERE upload_id = ?`, uploadID)
	if err != nil {
		return fmt.Errorf("delete multipart upload: %w", err)
	}
	return nil
}

func (s *multipartStore) DeleteExpiredUploads(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM multipart_uploads WHERE expires_at < ? AND status = ?`, now.Format(time.RFC3339), string(domain.MultipartStatusInProgress))
	if err != nil {
		return 0, fmt.Errorf("delete expired multipart uploads: %w", err)
	}
	return result.RowsAffected()
}

func (s *multipartStore) CreatePart(ctx context.Context, part *domain.UploadPart) error {
	if part.CreatedAt.IsZero() {
		part.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO upload_parts (upload_id, part_number, checksum, size, etag, created_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(upload_id, part_number) DO UPDATE SET checksum=excluded.checksum, size=excluded.size, etag=excluded.etag, created_at=excluded.created_at
	`, part.UploadID.String(), part.PartNumber, part.Checksum, part.Size, part.ETag, part.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("create upload part: %w", err)
	}
	return nil
}

func (s *multipartStore) GetPart(ctx context.Context, uploadID string, partNumber int) (*domain.UploadPart, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, upload_id, part_number, checksum, size, etag, created_at
		FROM upload_parts WHERE upload_id = ? AND part_number = ?
	`, uploadID, partNumber)
	return scanPart(row)
}

func scanPart(row *sql.Row) (*domain.UploadPart, error) {
	p := &domain.UploadPart{}
	var idStr, createdAt string
	err := row.Scan(&p.ID, &idStr, &p.PartNumber, &p.Checksum, &p.Size, &p.ETag, &createdAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrPartNotFound
		}
		return nil, fmt.Errorf("scan upload part: %w", err)
	}
	parsed, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse upload id: %w", err)
	}
	p.UploadID = parsed
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return p, nil
}

func (s *multipartStore) ListParts(ctx context.Context, uploadID string) ([]*domain.UploadPart, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, upload_id, part_number, checksum, size, etag, created_at
		FROM upload_parts WHERE upload_id = ? ORDER BY part_number
	`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("list upload parts: %w", err)
	}
	defer rows.Close()
	return scanParts(rows)
}

func scanParts(rows *sql.Rows) ([]*domain.UploadPart, error) {
	var out []*domain.UploadPart
	for rows.Next() {
		p := &domain.UploadPart{}
		var idStr, createdAt string
		if err := rows.Scan(&p.ID, &idStr, &p.PartNumber, &p.Checksum, &p.Size, &p.ETag, &createdAt); err != nil {
			return nil, fmt.Errorf("scan upload part: %w", err)
		}
		parsed, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse upload id: %w", err)
		}
		p.UploadID = parsed
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *multipartStore) DeleteParts(ctx context.Context, uploadID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM upload_parts WHERE upload_id = ?`, uploadID)
	if err != nil {
		return fmt.Errorf("delete upload parts: %w", err)
	}
	return nil
}

func (s *multipartStore) GetPartsForCompletion(ctx context.Context, uploadID string, partNumbers []int) ([]*domain.UploadPart, error) {
	all, err := s.ListParts(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	byNumber := make(map[int]*domain.UploadPart, len(all))
	for _, p := range all {
		byNumber[p.PartNumber] = p
	}
	out := make([]*domain.UploadPart, 0, len(partNumbers))
	for _, n := range partNumbers {
		p, ok := byNumber[n]
		if !ok {
			return nil, fmt.Errorf("%w: part %d", domain.ErrPartNotFound, n)
		}
		out = append(out, p)
	}
	return out, nil
}

var _ store.MultipartStore = (*multipartStore)(nil)
