package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/sfsgw/internal/domain"
	"github.com/prn-tf/sfsgw/internal/store"
)

// userStore implements store.UserStore for PostgreSQL, translating the
// sqlite backend's StoreUser optimistic-concurrency contract (spec
// §4.7, testable property 2) from database/sql's `?` placeholders and
// string-formatted timestamps to pgx's `$n` placeholders and native
// time.Time/bool binding.
type userStore struct {
	db *DB
}

// NewUserStore creates a new PostgreSQL user store.
func NewUserStore(db *DB) store.UserStore {
	return &userStore{db: db}
}

func (s *userStore) StoreUser(ctx context.Context, user *domain.User, expectedVersion int64) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var currentVersion int64
		err := tx.QueryRow(ctx, `SELECT user_version FROM users WHERE id = $1`, user.ID).Scan(&currentVersion)
		switch {
		case isNoRows(err):
			if expectedVersion != 0 {
				return fmt.Errorf("%w: user %s does not exist", domain.ErrConflict, user.ID)
			}
			return s.insert(ctx, tx, user)
		case err != nil:
			return fmt.Errorf("read user version: %w", err)
		default:
			if currentVersion != expectedVersion {
				return fmt.Errorf("%w: user %s version %d != expected %d", domain.ErrConflict, user.ID, currentVersion, expectedVersion)
			}
			return s.update(ctx, tx, user, currentVersion+1)
		}
	})
}

func (s *userStore) insert(ctx context.Context, tx pgx.Tx, user *domain.User) error {
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	user.Version = 1

	_, err := tx.Exec(ctx, `
		INSERT INTO users (
			id, tenant, ns, display_name, email, access_keys, swift_keys, sub_users,
			caps, placement_tags, quota, temp_url_keys, mfa_ids, suspended, max_buckets,
			op_mask, system, admin, assumed_role_arn, user_attrs, password_hash,
			created_at, updated_at, user_version, user_version_tag
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
	`,
		user.ID, user.Tenant, user.Namespace, user.DisplayName, user.Email,
		[]byte(user.AccessKeys), []byte(user.SwiftKeys), []byte(user.SubUsers),
		[]byte(user.Caps), []byte(user.PlacementTags), []byte(user.Quota),
		[]byte(user.TempURLKeys), []byte(user.MFAIDs), user.Suspended,
		user.MaxBuckets, user.OpMask, user.System, user.Admin,
		user.AssumedRoleARN, []byte(user.Attrs), user.PasswordHash,
		user.CreatedAt, user.UpdatedAt, user.Version, user.VersionTag,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrUserAlreadyExists, user.ID)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *userStore) update(ctx context.Context, tx pgx.Tx, user *domain.User, newVersion int64) error {
	user.UpdatedAt = time.Now().UTC()
	user.Version = newVersion

	tag, err := tx.Exec(ctx, `
		UPDATE users SET
			tenant=$1, ns=$2, display_name=$3, email=$4, access_keys=$5, swift_keys=$6,
			sub_users=$7, caps=$8, placement_tags=$9, quota=$10, temp_url_keys=$11, mfa_ids=$12,
			suspended=$13, max_buckets=$14, op_mask=$15, system=$16, admin=$17, assumed_role_arn=$18,
			user_attrs=$19, password_hash=$20, updated_at=$21, user_version=$22, user_version_tag=$23
		WHERE id=$24
	`,
		user.Tenant, user.Namespace, user.DisplayName, user.Email,
		[]byte(user.AccessKeys), []byte(user.SwiftKeys), []byte(user.SubUsers),
		[]byte(user.Caps), []byte(user.PlacementTags), []byte(user.Quota),
		[]byte(user.TempURLKeys), []byte(user.MFAIDs), user.Suspended,
		user.MaxBuckets, user.OpMask, user.System, user.Admin,
		user.AssumedRoleARN, []byte(user.Attrs), user.PasswordHash,
		user.UpdatedAt, user.Version, user.VersionTag,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

const userColumns = `id, tenant, ns, display_name, email, access_keys, swift_keys, sub_users,
			caps, placement_tags, quota, temp_url_keys, mfa_ids, suspended, max_buckets,
			op_mask, system, admin, assumed_role_arn, user_attrs, password_hash,
			created_at, updated_at, user_version, user_version_tag`

func (s *userStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := s.db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*domain.User, error) {
	u := &domain.User{}
	var accessKeys, swiftKeys, subUsers, caps, placementTags, quota, tempURLKeys, mfaIDs, attrs []byte

	err := row.Scan(
		&u.ID, &u.Tenant, &u.Namespace, &u.DisplayName, &u.Email,
		&accessKeys, &swiftKeys, &subUsers, &caps, &placementTags, &quota,
		&tempURLKeys, &mfaIDs, &u.Suspended, &u.MaxBuckets, &u.OpMask, &u.System,
		&u.Admin, &u.AssumedRoleARN, &attrs, &u.PasswordHash,
		&u.CreatedAt, &u.UpdatedAt, &u.Version, &u.VersionTag,
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
	return u, nil
}

func (s *userStore) DeleteUser(ctx context.Context, id string) error {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *userStore) ListUsers(ctx context.Context, opts store.ListOptions) ([]*domain.User, error) {
	rows, err := s.db.Pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

var _ store.UserStore = (*userStore)(nil)
