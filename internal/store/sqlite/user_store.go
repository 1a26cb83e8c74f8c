package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prn-tf/sfsgw/internal/domain"
	"github.com/prn-tf/sfsgw/internal/store"
)

// userStore implements store.UserStore for SQLite. Grounded on the
// teacher's repository/sqlite/user_repo.go CRUD shape, adapted for
// string IDs and the spec's store_user optimistic-concurrency
// contract (spec §4.7, testable property 2).
type userStore struct {
	db *DB
}

// NewUserStore creates a new SQLite user store.
func NewUserStore(db *DB) store.UserStore {
	return &userStore{db: db}
}

func (s *userStore) StoreUser(ctx context.Context, user *domain.User, expectedVersion int64) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var currentVersion sql.NullInt64
		err := tx.QueryRowContext(ctx, `SELECT user_version FROM users WHERE id = ?`, user.ID).Scan(&currentVersion)
		switch {
		case isNoRows(err):
			if expectedVersion != 0 {
				return fmt.Errorf("%w: user %s does not exist", domain.ErrConflict, user.ID)
			}
			return s.insert(ctx, tx, user)
		case err != nil:
			return fmt.Errorf("read user version: %w", err)
		default:
			if currentVersion.Int64 != expectedVersion {
				return fmt.Errorf("%w: user %s version %d != expected %d", domain.ErrConflict, user.ID, currentVersion.Int64, expectedVersion)
			}
			return s.update(ctx, tx, user, currentVersion.Int64+1)
		}
	})
}

func (s *userStore) insert(ctx context.Context, tx *sql.Tx, user *domain.User) error {
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	user.Version = 1

	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (
			id, tenant, ns, display_name, email, access_keys, swift_keys, sub_users,
			caps, placement_tags, quota, temp_url_keys, mfa_ids, suspended, max_buckets,
			op_mask, system, admin, assumed_role_arn, user_attrs, password_hash,
			created_at, updated_at, user_version, user_version_tag
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		user.ID, user.Tenant, user.Namespace, user.DisplayName, user.Email,
		[]byte(user.AccessKeys), []byte(user.SwiftKeys), []byte(user.SubUsers),
		[]byte(user.Caps), []byte(user.PlacementTags), []byte(user.Quota),
		[]byte(user.TempURLKeys), []byte(user.MFAIDs), boolToInt(user.Suspended),
		user.MaxBuckets, user.OpMask, boolToInt(user.System), boolToInt(user.Admin),
		user.AssumedRoleARN, []byte(user.Attrs), user.PasswordHash,
		user.CreatedAt.Format(time.RFC3339), user.UpdatedAt.Format(time.RFC3339),
		user.Version, user.VersionTag,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrUserAlreadyExists, user.ID)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *userStore) update(ctx context.Context, tx *sql.Tx, user *domain.User, newVersion int64) error {
	user.UpdatedAt = time.Now().UTC()
	user.Version = newVersion

	result, err := tx.ExecContext(ctx, `
		UPDATE users SET
			tenant=?, ns=?, display_name=?, email=?, access_keys=?, swift_keys=?,
			sub_users=?, caps=?, placement_tags=?, quota=?, temp_url_keys=?, mfa_ids=?,
			suspended=?, max_buckets=?, op_mask=?, system=?, admin=?, assumed_role_arn=?,
			user_attrs=?, password_hash=?, updated_at=?, user_version=?, user_version_tag=?
		WHERE id=?
	`,
		user.Tenant, user.Namespace, user.DisplayName, user.Email,
		[]byte(user.AccessKeys), []byte(user.SwiftKeys), []byte(user.SubUsers),
		[]byte(user.Caps), []byte(user.PlacementTags), []byte(user.Quota),
		[]byte(user.TempURLKeys), []byte(user.MFAIDs), boolToInt(user.Suspended),
		user.MaxBuckets, user.OpMask, boolToInt(user.System), boolToInt(user.Admin),
		user.AssumedRoleARN, []byte(user.Attrs), user.PasswordHash,
		user.UpdatedAt.Format(time.RFC3339), user.Version, user.VersionTag,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *userStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant, ns, display_name, email, access_keys, swift_keys, sub_users,
			caps, placement_tags, quota, temp_url_keys, mfa_ids, suspended, max_buckets,
			op_mask, system, admin, assumed_role_arn, user_attrs, password_hash,
			created_at, updated_at, user_version, user_version_tag
		FROM users WHERE id = ?
	`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*domain.User, error) {
	u := &domain.User{}
	var accessKeys, swiftKeys, subUsers, caps, placementTags, quota, tempURLKeys, mfaIDs, attrs []byte
	var suspended, system, admin int
	var createdAt, updatedAt string

	err := row.Scan(
		&u.ID, &u.Tenant, &u.Namespace, &u.DisplayName, &u.Email,
		&accessKeys, &swiftKeys, &subUsers, &caps, &placementTags, &quota,
		&tempURLKeys, &mfaIDs, &suspended, &u.MaxBuckets, &u.OpMask, &system,
		&admin, &u.AssumedRoleARN, &attrs, &u.PasswordHash,
		&createdAt, &updatedAt, &u.Version, &u.VersionTag,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	u.AccessKeys, u.SwiftKeys, u.SubUsers = accessKeys, swiftKeys, subUsers
	u.Caps, u.PlacementTags, u.Quota = caps, placementTags, quota
	u.TempURLKeys, u.MFAIDs, u.Attrs = tempURLKeys, mfaIDs, attrs
	u.Suspended, u.System, u.Admin = intToBool(suspended), intToBool(system), intToBool(admin)
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return u, nil
}

func (s *userStore) DeleteUser(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *userStore) ListUsers(ctx context.Context, opts store.ListOptions) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant, ns, display_name, email, access_keys, swift_keys, sub_users,
			caps, placement_tags, quota, temp_url_keys, mfa_ids, suspended, max_buckets,
			op_mask, system, admin, assumed_role_arn, user_attrs, password_hash,
			created_at, updated_at, user_version, user_version_tag
		FROM users ORDER BY created_at DESC LIMIT ? OFFSET ?
	`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u := &domain.User{}
		var accessKeys, swiftKeys, subUsers, caps, placementTags, quota, tempURLKeys, mfaIDs, attrs []byte
		var suspended, system, admin int
		var createdAt, updatedAt string

		if err := rows.Scan(
			&u.ID, &u.Tenant, &u.Namespace, &u.DisplayName, &u.Email,
			&accessKeys, &swiftKeys, &subUsers, &caps, &placementTags, &quota,
			&tempURLKeys, &mfaIDs, &suspended, &u.MaxBuckets, &u.OpMask, &system,
			&admin, &u.AssumedRoleARN, &attrs, &u.PasswordHash,
			&createdAt, &updatedAt, &u.Version, &u.VersionTag,
		); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.AccessKeys, u.SwiftKeys, u.SubUsers = accessKeys, swiftKeys, subUsers
		u.Caps, u.PlacementTags, u.Quota = caps, placementTags, quota
		u.TempURLKeys, u.MFAIDs, u.Attrs = tempURLKeys, mfaIDs, attrs
		u.Suspended, u.System, u.Admin = intToBool(suspended), intToBool(system), intToBool(admin)
		u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

var _ store.UserStore = (*userStore)(nil)
