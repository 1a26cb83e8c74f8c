package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prn-tf/sfsgw/internal/domain"
	"github.com/prn-tf/sfsgw/internal/store"
)

// bucketStore implements store.BucketStore for SQLite. Grounded on
// the teacher's repository/sqlite/bucket_repo.go, adapted for string
// bucket/owner IDs, the bucket_version optimistic-concurrency pair,
// and the deleted tombstone the teacher's schema lacked.
type bucketStore struct {
	db *DB
}

// NewBucketStore creates a new SQLite bucket store.
func NewBucketStore(db *DB) store.BucketStore {
	return &bucketStore{db: db}
}

func (s *bucketStore) StoreBucket(ctx context.Context, bucket *domain.Bucket, expectedVersion int64) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var currentVersion sql.NullInt64
		err := tx.QueryRowContext(ctx, `SELECT bucket_version FROM buckets WHERE bucket_id = ?`, bucket.BucketID).Scan(&currentVersion)
		switch {
		case isNoRows(err):
			if expectedVersion != 0 {
				return fmt.Errorf("%w: bucket %s does not exist", domain.ErrConflict, bucket.BucketID)
			}
			if bucket.BucketID == "" {
				bucket.BucketID = uuid.NewString()
			}
			return s.insert(ctx, tx, bucket)
		case err != nil:
			return fmt.Errorf("read bucket version: %w", err)
		default:
			if currentVersion.Int64 != expectedVersion {
				return fmt.Errorf("%w: bucket %s version %d != expected %d", domain.ErrConflict, bucket.BucketID, currentVersion.Int64, expectedVersion)
			}
			return s.update(ctx, tx, bucket, currentVersion.Int64+1)
		}
	})
}

func (s *bucketStore) insert(ctx context.Context, tx *sql.Tx, b *domain.Bucket) error {
	if b.CreateTime.IsZero() {
		b.CreateTime = time.Now().UTC()
	}
	b.Version = 1

	_, err := tx.ExecContext(ctx, `
		INSERT INTO buckets (
			bucket_id, name, tenant, marker, owner_id, flags, zonegroup, create_time,
			placement_name, bucket_attrs, object_lock, bucket_version, bucket_version_tag, deleted
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		b.BucketID, b.Name, b.Tenant, b.Marker, b.OwnerID, uint32(b.Flags), b.ZoneGroup,
		b.CreateTime.Format(time.RFC3339), b.PlacementName, b.Attrs, b.ObjectLockConfig,
		b.Version, b.VersionTag, boolToInt(b.Deleted),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrBucketAlreadyExists, b.Name)
		}
		return fmt.Errorf("insert bucket: %w", err)
	}
	return nil
}

func (s *bucketStore) update(ctx context.Context, tx *sql.Tx, b *domain.Bucket, newVersion int64) error {
	b.Version = newVersion
	result, err := tx.ExecContext(ctx, `
		UPDATE buckets SET
			name=?, tenant=?, marker=?, owner_id=?, flags=?, zonegroup=?, placement_name=?,
			bucket_attrs=?, object_lock=?, bucket_version=?, bucket_version_tag=?, deleted=?
		WHERE bucket_id=?
	`,
		b.Name, b.Tenant, b.Marker, b.OwnerID, uint32(b.Flags), b.ZoneGroup, b.PlacementName,
		b.Attrs, b.ObjectLockConfig, b.Version, b.VersionTag, boolToInt(b.Deleted), b.BucketID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrBucketAlreadyExists, b.Name)
		}
		return fmt.Errorf("update bucket: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrBucketNotFound
	}
	return nil
}

func scanBucket(row *sql.Row) (*domain.Bucket, error) {
	b := &domain.Bucket{}
	var flags uint32
	var createTime string
	var deleted int

	err := row.Scan(
		&b.BucketID, &b.Name, &b.Tenant, &b.Marker, &b.OwnerID, &flags, &b.ZoneGroup,
		&createTime, &b.PlacementName, &b.Attrs, &b.ObjectLockConfig,
		&b.Version, &b.VersionTag, &deleted,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrBucketNotFound
		}
		return nil, fmt.Errorf("scan bucket: %w", err)
	}
	b.Flags = domain.BucketFlag(flags)
	b.CreateTime, _ = time.Parse(time.RFC3339, createTime)
	b.Deleted = intToBool(deleted)
	return b, nil
}

const bucketSelectColumns = `
	bucket_id, name, tenant, marker, owner_id, flags, zonegroup, create_time,
	placement_name, bucket_attrs, object_lock, bucket_version, bucket_version_tag, deleted
`

func (s *bucketStore) GetBucket(ctx context.Context, bucketID string) (*domain.Bucket, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bucketSelectColumns+` FROM buckets WHERE bucket_id = ?`, bucketID)
	return scanBucket(row)
}

func (s *bucketStore) GetBucketByName(ctx context.Context, name string) (*domain.Bucket, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bucketSelectColumns+` FROM buckets WHERE name = ? AND deleted = 0`, name)
	return scanBucket(row)
}

func (s *bucketStore) ListBucketsByOwner(ctx context.Context, ownerID string) ([]*domain.Bucket, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+bucketSelectColumns+` FROM buckets WHERE owner_id = ? AND deleted = 0 ORDER BY create_time`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	defer rows.Close()
	return scanBuckets(rows)
}

func (s *bucketStore) ListDeletedBuckets(ctx context.Context, limit int) ([]*domain.Bucket, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+bucketSelectColumns+` FROM buckets WHERE deleted = 1 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list deleted buckets: %w", err)
	}
	defer rows.Close()
	return scanBuckets(rows)
}

func scanBuckets(rows *sql.Rows) ([]*domain.Bucket, error) {
	var buckets []*domain.Bucket
	for rows.Next() {
		b := &domain.Bucket{}
		var flags uint32
		var createTime string
		var deleted int
		if err := rows.Scan(
			&b.BucketID, &b.Name, &b.Tenant, &b.Marker, &b.OwnerID, &flags, &b.ZoneGroup,
			&createTime, &b.PlacementName, &b.Attrs, &b.ObjectLockConfig,
			&b.Version, &b.VersionTag, &deleted,
		); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		b.Flags = domain.BucketFlag(flags)
		b.CreateTime, _ = time.Parse(time.RFC3339, createTime)
		b.Deleted = intToBool(deleted)
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buckets: %w", err)
	}
	return buckets, nil
}

func (s *bucketStore) MarkDeleted(ctx context.Context, bucketID string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE buckets SET deleted = 1 WHERE bucket_id = ?`, bucketID)
	if err != nil {
		return fmt.Errorf("mark bucket deleted: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrBucketNotFound
	}
	return nil
}

func (s *bucketStore) PurgeBucket(ctx context.Context, bucketID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM buckets WHERE bucket_id = ?`, bucketID)
	if err != nil {
		return fmt.Errorf("purge bucket: %w", err)
	}
	return nil
}

var _ store.BucketStore = (*bucketStore)(nil)
