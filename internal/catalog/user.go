// Package catalog implements the user/bucket catalog (spec §4.7, C7):
// CRUD with optimistic concurrency over the metadata store, plus the
// validation and quota checks a direct store_user/store_bucket call
// does not itself perform. Grounded on the teacher's
// user_service.go/bucket_service.go call shapes, adapted from the
// teacher's eager single-version UPDATE to the spec's
// read-version/compare/store_user contract, and from int64 ids to the
// spec's string user/bucket ids.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/prn-tf/sfsgw/internal/cache"
	"github.com/prn-tf/sfsgw/internal/domain"
	"github.com/prn-tf/sfsgw/internal/store"
)

// UserCatalog exposes the spec §6 user operations
// (get/store/remove_user) plus the password/auth helpers the teacher's
// IAM surface needs, layered over store.UserStore.
type UserCatalog struct {
	users  store.UserStore
	cache  cache.Cache // optional; nil disables the read-through cache
	logger zerolog.Logger
}

// NewUserCatalog creates a UserCatalog. c may be nil.
func NewUserCatalog(users store.UserStore, c cache.Cache, logger zerolog.Logger) *UserCatalog {
	return &UserCatalog{users: users, cache: c, logger: logger.With().Str("component", "catalog.user").Logger()}
}

// CreateUser validates and stores a brand-new user (expectedVersion=0,
// spec §4.7 "first store writes version = 1").
func (c *UserCatalog) CreateUser(ctx context.Context, user *domain.User) error {
	if user.DisplayName == "" {
		return fmt.Errorf("%w: display name required", domain.ErrInvalidArgument)
	}
	if err := c.users.StoreUser(ctx, user, 0); err != nil {
		return err
	}
	c.invalidate(ctx, user.ID)
	return nil
}

// StoreUser applies an update under optimistic concurrency (spec §4.7,
// testable property 2): expectedVersion must equal the version the
// caller last observed, or the call fails with domain.ErrConflict and
// leaves the row untouched.
func (c *UserCatalog) StoreUser(ctx context.Context, user *domain.User, expectedVersion int64) error {
	if err := c.users.StoreUser(ctx, user, expectedVersion); err != nil {
		return err
	}
	c.invalidate(ctx, user.ID)
	return nil
}

// GetUser returns a user by id, consulting the cache first.
func (c *UserCatalog) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if c.cache != nil {
		if raw, err := c.cache.Get(ctx, cache.Keys.User(id)); err == nil {
			var u domain.User
			if jsonErr := json.Unmarshal(raw, &u); jsonErr == nil {
				return &u, nil
			}
		}
	}
	u, err := c.users.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, u)
	return u, nil
}

func (c *UserCatalog) fill(ctx context.Context, u *domain.User) {
	if c.cache == nil {
		return
	}
	if raw, err := json.Marshal(u); err == nil {
		_ = c.cache.Set(ctx, cache.Keys.User(u.ID), raw, 5*time.Minute)
	}
}

func (c *UserCatalog) invalidate(ctx context.Context, id string) {
	if c.cache != nil {
		_ = c.cache.Delete(ctx, cache.Keys.User(id))
	}
}

// RemoveUser deletes a user row outright. The caller is responsible
// for ensuring the user owns no buckets first; the catalog does not
// cascade (bucket ownership is a separate collaborator concern).
func (c *UserCatalog) RemoveUser(ctx context.Context, id string) error {
	if err := c.users.DeleteUser(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

// ListUsers paginates over the user catalog.
func (c *UserCatalog) ListUsers(ctx context.Context, opts store.ListOptions) ([]*domain.User, error) {
	return c.users.ListUsers(ctx, opts)
}

// SetPassword hashes and stores a new password for a user already
// loaded at readVersion, via the same optimistic-concurrency path as
// any other user mutation.
func (c *UserCatalog) SetPassword(ctx context.Context, user *domain.User, password string, readVersion int64) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("%w: hash password: %v", domain.ErrIOError, err)
	}
	user.PasswordHash = string(hash)
	return c.StoreUser(ctx, user, readVersion)
}

// Authenticate verifies a plaintext password against the user's stored
// bcrypt hash. Returns domain.ErrInvalidCredentials on any mismatch,
// without distinguishing "wrong password" from "no password set" (spec
// §7's error-kind framing treats both identically to a caller).
func (c *UserCatalog) Authenticate(user *domain.User, password string) error {
	if !user.CanAuthenticate() {
		return domain.ErrUserInactive
	}
	if user.PasswordHash == "" {
		return domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.ErrInvalidCredentials
	}
	return nil
}

// VerifyMFA is the ambiguous stub named in spec §9's open questions:
// the source unconditionally succeeds, and nothing in the spec
// requires this core to validate TOTP/U2F devices itself (that lives
// with a collaborator holding the MFA secret). This core accepts any
// non-empty code for a user with at least one configured MFA id, and
// rejects MFA checks for users with none configured.
func (c *UserCatalog) VerifyMFA(user *domain.User, code string) error {
	if len(user.MFAIDs) == 0 {
		return fmt.Errorf("%w: no MFA device configured", domain.ErrUnsupported)
	}
	if code == "" {
		return domain.ErrInvalidCredentials
	}
	return nil
}

// Stats-related operations are explicitly unimplemented stubs (spec
// §9 open questions: "several user-stats operations are stubs
// returning unsupported").
func (c *UserCatalog) SyncUserStats(ctx context.Context, userID string) error {
	return fmt.Errorf("%w: sync_user_stats", domain.ErrUnsupported)
}

func (c *UserCatalog) ReadUserStats(ctx context.Context, userID string) error {
	return fmt.Errorf("%w: read_user_stats", domain.ErrUnsupported)
}
