package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prn-tf/sfsgw/internal/domain"
	"github.com/prn-tf/sfsgw/internal/store"
)

// accessKeyStore implements store.AccessKeyStore for SQLite. Grounded
// on the teacher's repository/sqlite/accesskey_repo.go, adapted for
// string user IDs.
type accessKeyStore struct {
	db *DB
}

// NewAccessKeyStore creates a new SQLite access-key store.
func NewAccessKeyStore(db *DB) store.AccessKeyStore {
	return &accessKeyStore{db: db}
}

func (s *accessKeyStore) Create(ctx context.Context, key *domain.AccessKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO access_keys (key, encrypted_secret, description, status, expires_at, created_at, user_id)
		VALUES (?,?,?,?,?,?,?)
	`, key.AccessKeyID, key.EncryptedSecret, key.Description, string(key.Status),
		formatTimePtr(key.ExpiresAt), key.CreatedAt.Format(time.RFC3339), key.UserID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrInvalidAccessKeyID, key.AccessKeyID)
		}
		return fmt.Errorf("create access key: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("read inserted access key id: %w", err)
	}
	key.ID = id
	return nil
}

const accessKeySelectColumns = `id, key, encrypted_secret, description, status, expires_at, created_at, last_used_at, user_id`

func scanAccessKey(row *sql.Row) (*domain.AccessKey, error) {
	k := &domain.AccessKey{}
	var status, createdAt string
	var expiresAt, lastUsedAt sql.NullString

	err := row.Scan(&k.ID, &k.AccessKeyID, &k.EncryptedSecret, &k.Description, &status, &expiresAt, &createdAt, &lastUsedAt, &k.UserID)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrAccessKeyNotFound
		}
		return nil, fmt.Errorf("scan access key: %w", err)
	}
	k.Status = domain.AccessKeyStatus(status)
	k.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	k.ExpiresAt = parseTimePtr(expiresAt)
	k.LastUsedAt = parseTimePtr(lastUsedAt)
	return k, nil
}

func (s *accessKeyStore) GetByAccessKeyID(ctx context.Context, accessKeyID string) (*domain.AccessKey, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accessKeySelectColumns+` FROM access_keys WHERE key = ?`, accessKeyID)
	return scanAccessKey(row)
}

func (s *accessKeyStore) GetActiveByAccessKeyID(ctx context.Context, accessKeyID string) (*domain.AccessKey, error) {
	k, err := s.GetByAccessKeyID(ctx, accessKeyID)
	if err != nil {
		return nil, err
	}
	if !k.IsValid() {
		return nil, domain.ErrAccessKeyInactive
	}
	return k, nil
}

func (s *accessKeyStore) ListByUserID(ctx context.Context, userID string) ([]*domain.AccessKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accessKeySelectColumns+` FROM access_keys WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list access keys: %w", err)
	}
	defer rows.Close()

	var out []*domain.AccessKey
	for rows.Next() {
		k := &domain.AccessKey{}
		var status, createdAt string
		var expiresAt, lastUsedAt sql.NullString
		if err := rows.Scan(&k.ID, &k.AccessKeyID, &k.EncryptedSecret, &k.Description, &status, &expiresAt, &createdAt, &lastUsedAt, &k.UserID); err != nil {
			return nil, fmt.Errorf("scan access key: %w", err)
		}
		k.Status = domain.AccessKeyStatus(status)
		k.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		k.ExpiresAt = parseTimePtr(expiresAt)
		k.LastUsedAt = parseTimePtr(lastUsedAt)
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *accessKeyStore) UpdateLastUsed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE access_keys SET last_used_at = ? WHERE id = ?`, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("update access key last used: %w", err)
	}
	return nil
}

func (s *accessKeyStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM access_keys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete access key: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrAccessKeyNotFound
	}
	return nil
}

func (s *accessKeyStore) DeleteByAccessKeyID(ctx context.Context, accessKeyID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM access_keys WHERE key = ?`, accessKeyID)
	if err != nil {
		return fmt.Errorf("delete access key: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrAccessKeyNotFound
	}
	return nil
}

func (s *accessKeyStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM access_keys WHERE expires_at IS NOT NULL AND expires_at < ?`, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("delete expired access keys: %w", err)
	}
	return result.RowsAffected()
}

var _ store.AccessKeyStore = (*accessKeyStore)(nil)
