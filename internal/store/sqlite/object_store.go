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

// objectStore implements store.ObjectStore for SQLite: the Object +
// VersionedObject tables (spec §3). Grounded on the shape of the
// teacher's repository/sqlite object/version CRUD, split into two
// tables per the spec's uuid-identified object model rather than the
// teacher's single versioned-row-per-object table.
type objectStore struct {
	db *DB
}

// NewObjectStore creates a new SQLite object store.
func NewObjectStore(db *DB) store.ObjectStore {
	return &objectStore{db: db}
}

func (s *objectStore) GetOrCreateObject(ctx context.Context, bucketID, name string) (*domain.Object, error) {
	obj, err := s.GetObject(ctx, bucketID, name)
	if err == nil {
		return obj, nil
	}
	if err != domain.ErrObjectNotFound {
		return nil, err
	}

	obj = domain.NewObject(bucketID, name)
	_, err = s.db.ExecContext(ctx, `INSERT INTO objects (uuid, bucket_id, name) VALUES (?,?,?)`,
		obj.UUID.String(), obj.BucketID, obj.Name)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the race with a concurrent creator; read theirs.
			return s.GetObject(ctx, bucketID, name)
		}
		return nil, fmt.Errorf("create object: %w", err)
	}
	return obj, nil
}

func (s *objectStore) GetObject(ctx context.Context, bucketID, name string) (*domain.Object, error) {
	row := s.db.QueryRowContext(ctx, `SELECT uuid, bucket_id, name FROM objects WHERE bucket_id = ? AND name = ?`, bucketID, name)
	return scanObject(row)
}

func scanObject(row *sql.Row) (*domain.Object, error) {
	obj := &domain.Object{}
	var uuidStr string
	if err := row.Scan(&uuidStr, &obj.BucketID, &obj.Name); err != nil {
		if isNoRows(err) {
			return nil, domain.ErrObjectNotFound
		}
		return nil, fmt.Errorf("scan object: %w", err)
	}
	parsed, err := uuid.Parse(uuidStr)
	if err != nil {
		return nil, fmt.Errorf("parse object uuid: %w", err)
	}
	obj.UUID = parsed
	return obj, nil
}

func (s *objectStore) ListObjectsInBucket(ctx context.Context, bucketID string) ([]*domain.Object, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uuid, bucket_id, name FROM objects WHERE bucket_id = ?`, bucketID)
	if err != nil {
		return nil, fmt.Errorf("list objects in bucket: %w", err)
	}
	defer rows.Close()

	var out []*domain.Object
	for rows.Next() {
		obj := &domain.Object{}
		var uuidStr string
		if err := rows.Scan(&uuidStr, &obj.BucketID, &obj.Name); err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		parsed, err := uuid.Parse(uuidStr)
		if err != nil {
			return nil, fmt.Errorf("parse object uuid: %w", err)
		}
		obj.UUID = parsed
		out = append(out, obj)
	}
	return out, rows.Err()
}

func (s *objectStore) ListObjectNames(ctx context.Context, bucketID, prefix, startAfter string, limit int) ([]string, error) {
	query := `
		SELECT DISTINCT o.name FROM objects o
		JOIN versioned_objects v ON v.object_id = o.uuid
		WHERE o.bucket_id = ? AND v.object_state = ? AND o.name LIKE ? ESCAPE '\' AND o.name > ?
		ORDER BY o.name LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, bucketID, int(domain.ObjectStateCommitted), likePrefix(prefix), startAfter, limit)
	if err != nil {
		return nil, fmt.Errorf("list object names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan object name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func likePrefix(prefix string) string {
	escaped := ""
	for _, r := range prefix {
		switch r {
		case '\\', '%', '_':
			escaped += `\` + string(r)
		default:
			escaped += string(r)
		}
	}
	return escaped + "%"
}

func (s *objectStore) CreateVersion(ctx context.Context, v *domain.VersionedObject) error {
	if v.CreateTime.IsZero() {
		v.CreateTime = time.Now().UTC()
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO versioned_objects (
			object_id, checksum, size, create_time, delete_time, commit_time, mtime,
			object_state, version_id, etag, attrs, version_type
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		v.ObjectID, v.Checksum, v.Size, v.CreateTime.Format(time.RFC3339Nano),
		formatTimePtr(v.DeleteTime), formatTimePtr(v.CommitTime), formatTimePtr(v.MTime),
		int(v.State), v.VersionID, v.ETag, v.Attrs, int(v.Type),
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("read inserted version id: %w", err)
	}
	v.ID = id
	return nil
}

func (s *objectStore) GetVersion(ctx context.Context, objectID, versionID string) (*domain.VersionedObject, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+versionSelectColumns+` FROM versioned_objects WHERE object_id = ? AND version_id = ?`, objectID, versionID)
	return scanVersion(row)
}

func (s *objectStore) GetLatestCommittedVersion(ctx context.Context, bucketID, name string) (*domain.VersionedObject, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+versionSelectColumns+` FROM versioned_objects v
		JOIN objects o ON o.uuid = v.object_id
		WHERE o.bucket_id = ? AND o.name = ? AND v.object_state = ?
		ORDER BY v.commit_time DESC, v.id DESC LIMIT 1
	`, bucketID, name, int(domain.ObjectStateCommitted))
	return scanVersion(row)
}

func (s *objectStore) ListVersions(ctx context.Context, objectID string) ([]*domain.VersionedObject, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+versionSelectColumns+` FROM versioned_objects WHERE object_id = ? ORDER BY id DESC`, objectID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()
	return scanVersions(rows)
}

func (s *objectStore) UpdateVersion(ctx context.Context, v *domain.VersionedObject) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE versioned_objects SET
			checksum=?, size=?, delete_time=?, commit_time=?, mtime=?, object_state=?, etag=?, attrs=?
		WHERE id=?
	`,
		v.Checksum, v.Size, formatTimePtr(v.DeleteTime), formatTimePtr(v.CommitTime),
		formatTimePtr(v.MTime), int(v.State), v.ETag, v.Attrs, v.ID,
	)
	if err != nil {
		return fmt.Errorf("update version: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrVersionNotFound
	}
	return nil
}

func (s *objectStore) ListDeletedVersions(ctx context.Context, limit int) ([]*domain.VersionedObject, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+versionSelectColumns+` FROM versioned_objects WHERE object_state = ? LIMIT ?`, int(domain.ObjectStateDeleted), limit)
	if err != nil {
		return nil, fmt.Errorf("list deleted versions: %w", err)
	}
	defer rows.Close()
	return scanVersions(rows)
}

func (s *objectStore) ListVersionsByBucket(ctx context.Context, bucketID string, limit int) ([]*domain.VersionedObject, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionSelectColumns+` FROM versioned_objects v
		JOIN objects o ON o.uuid = v.object_id
		WHERE o.bucket_id = ? LIMIT ?
	`, bucketID, limit)
	if err != nil {
		return nil, fmt.Errorf("list versions by bucket: %w", err)
	}
	defer rows.Close()
	return scanVersions(rows)
}

func (s *objectStore) PurgeVersion(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM versioned_objects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("purge version: %w", err)
	}
	return nil
}

func (s *objectStore) CountVersions(ctx context.Context, objectID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM versioned_objects WHERE object_id = ?`, objectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count versions: %w", err)
	}
	return n, nil
}

func (s *objectStore) PurgeObject(ctx context.Context, objectID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE uuid = ?`, objectID)
	if err != nil {
		return fmt.Errorf("purge object: %w", err)
	}
	return nil
}

func (s *objectStore) CountObjectsInBucket(ctx context.Context, bucketID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM objects WHERE bucket_id = ?`, bucketID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count objects in bucket: %w", err)
	}
	return n, nil
}

const versionSelectColumns = `
	id, object_id, checksum, size, create_time, delete_time, commit_time, mtime,
	object_state, version_id, etag, attrs, version_type
`

func scanVersion(row *sql.Row) (*domain.VersionedObject, error) {
	v := &domain.VersionedObject{}
	var createTime string
	var deleteTime, commitTime, mtime sql.NullString
	var state, vtype int

	err := row.Scan(
		&v.ID, &v.ObjectID, &v.Checksum, &v.Size, &createTime, &deleteTime, &commitTime, &mtime,
		&state, &v.VersionID, &v.ETag, &v.Attrs, &vtype,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrVersionNotFound
		}
		return nil, fmt.Errorf("scan version: %w", err)
	}
	applyVersionFields(v, createTime, deleteTime, commitTime, mtime, state, vtype)
	return v, nil
}

func scanVersions(rows *sql.Rows) ([]*domain.VersionedObject, error) {
	var out []*domain.VersionedObject
	for rows.Next() {
		v := &domain.VersionedObject{}
		var createTime string
		var deleteTime, commitTime, mtime sql.NullString
		var state, vtype int

		if err := rows.Scan(
			&v.ID, &v.ObjectID, &v.Checksum, &v.Size, &createTime, &deleteTime, &commitTime, &mtime,
			&state, &v.VersionID, &v.ETag, &v.Attrs, &vtype,
		); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		applyVersionFields(v, createTime, deleteTime, commitTime, mtime, state, vtype)
		out = append(out, v)
	}
	return out, rows.Err()
}

func applyVersionFields(v *domain.VersionedObject, createTime string, deleteTime, commitTime, mtime sql.NullString, state, vtype int) {
	v.CreateTime, _ = time.Parse(time.RFC3339Nano, createTime)
	v.DeleteTime = parseTimePtr(deleteTime)
	v.CommitTime = parseTimePtr(commitTime)
	v.MTime = parseTimePtr(mtime)
	v.State = domain.ObjectState(state)
	v.Type = domain.VersionType(vtype)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

var _ store.ObjectStore = (*objectStore)(nil)
