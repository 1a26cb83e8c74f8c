package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/prn-tf/sfsgw/internal/domain"
	"github.com/prn-tf/sfsgw/internal/store"
)

// accessKeyStore implements store.AccessKeyStore for PostgreSQL.
// Grounded on the sqlite backend's accesskey_store.go, simplified by
// pgx's native NULL/time.Time handling (no RFC3339 string round-trip).
type accessKeyStore struct {
	db *DB
}

// NewAccessKeyStore creates a new PostgreSQL access-key store.
func NewAccessKeyStore(db *DB) store.AccessKeyStore {
	return &accessKeyStore{db: db}
}

func (s *accessKeyStore) Create(ctx context.Context, key *domain.AccessKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	err := s.db.Pool.QueryRow(ctx, `
		INSERT INTO access_keys (key, encrypted_secret, description, status, expires_at, created_at, user_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, key.AccessKeyID, key.EncryptedSecret, key.Description, string(key.Status),
		key.ExpiresAt, key.CreatedAt, key.UserID).Scan(&key.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrInvalidAccessKeyID, key.AccessKeyID)
		}
		return fmt.Errorf("create access key: %w", err)
	}
	return nil
}

const accessKeySelectColumns = `id, key, encrypted_secret, description, status, expires_at, created_at, last_used_at, user_id`

func scanAccessKey(row interface {
	Scan(dest ...any) error
}) (*domain.AccessKey, error) {
	k := &domain.AccessKey{}
	var status string

	err := row.Scan(&k.ID, &k.AccessKeyID, &k.EncryptedSecret, &k.Description, &status, &k.ExpiresAt, &k.CreatedAt, &k.LastUsedAt, &k.UserID)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrAccessKeyNotFound
		}
		return nil, fmt.Errorf("scan access key: %w", err)
	}
	k.Status = domain.AccessKeyStatus(status)
	return k, nil
}

func (s *accessKeyStore) GetByAccessKeyID(ctx context.Context, accessKeyID string) (*domain.AccessKey, error) {
	row := s.db.Pool.QueryRow(ctx, `SELECT `+accessKeySelectColumns+` FROM access_keys WHERE key = $1`, accessKeyID)
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
	rows, err := s.db.Pool.Query(ctx, `SELECT `+accessKeySelectColumns+` FROM access_keys WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list access keys: %w", err)
	}
	defer rows.Close()

	var out []*domain.AccessKey
	for rows.Next() {
		k, err := scanAccessKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *accessKeyStore) UpdateLastUsed(ctx context.Context, id int64) error {
	_, err := s.db.Pool.Exec(ctx, `UPDATE access_keys SET last_used_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update access key last used: %w", err)
	}
	return nil
}

func (s *accessKeyStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM access_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete access key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccessKeyNotFound
	}
	return nil
}

func (s *accessKeyStore) DeleteByAccessKeyID(ctx context.Context, accessKeyID string) error {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM access_keys WHERE key = $1`, accessKeyID)
	if err != nil {
		return fmt.Errorf("delete access key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccessKeyNotFound
	}
	return nil
}

func (s *accessKeyStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM access_keys WHERE expires_at IS NOT NULL AND expires_at < $1`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired access keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ store.AccessKeyStore = (*accessKeyStore)(nil)
