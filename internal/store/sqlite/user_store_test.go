package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/prn-tf/sfsgw/internal/domain"
)

// TestStoreUser_OptimisticConcurrency covers spec scenario S3 /
// testable property 2: two concurrent store_user calls reading the
// same version race; exactly one succeeds, the other returns Conflict,
// and the losing caller's mutation never lands.
func TestStoreUser_OptimisticConcurrency(t *testing.T) {
	db := newTestDB(t)
	users := NewUserStore(db)
	ctx := context.Background()

	u := domain.NewUser("", "Alice", "alice@example.com")
	require.NoError(t, users.StoreUser(ctx, u, 0))
	require.Equal(t, int64(1), u.Version)

	// Two handles both observe version 1.
	handleA, err := users.GetUser(ctx, u.ID)
	require.NoError(t, err)
	handleB, err := users.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), handleA.Version)
	require.Equal(t, int64(1), handleB.Version)

	handleA.DisplayName = "Alice A"
	require.NoError(t, users.StoreUser(ctx, handleA, 1))
	require.Equal(t, int64(2), handleA.Version)

	handleB.DisplayName = "Alice B"
	err = users.StoreUser(ctx, handleB, 1)
	require.ErrorIs(t, err, domain.ErrConflict)

	// No mutation from the losing call landed.
	stored, err := users.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "Alice A", stored.DisplayName)
	require.Equal(t, int64(2), stored.Version)
}

func TestStoreUser_FirstStoreVersionOne(t *testing.T) {
	db := newTestDB(t)
	users := NewUserStore(db)
	ctx := context.Background()

	u := domain.NewUser("u-1", "Bob", "bob@example.com")
	require.NoError(t, users.StoreUser(ctx, u, 0))
	require.Equal(t, int64(1), u.Version)

	// Creating with a nonzero expected version when the row does not
	// yet exist is a conflict, not a silent create.
	other := domain.NewUser("u-2", "Carl", "carl@example.com")
	err := users.StoreUser(ctx, other, 5)
	require.ErrorIs(t, err, domain.ErrConflict)
	_, err = users.GetUser(ctx, "u-2")
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestGetUser_NotFound(t *testing.T) {
	db := newTestDB(t)
	users := NewUserStore(db)

	_, err := users.GetUser(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestDeleteUser(t *testing.T) {
	db := newTestDB(t)
	users := NewUserStore(db)
	ctx := context.Background()

	u := domain.NewUser("u-1", "Dana", "dana@example.com")
	require.NoError(t, users.StoreUser(ctx, u, 0))

	require.NoError(t, users.DeleteUser(ctx, u.ID))
	_, err := users.GetUser(ctx, u.ID)
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}
