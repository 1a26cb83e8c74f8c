package catalog

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/sfsgw/internal/domain"
)

func TestUserCatalog_CreateAndGetUser(t *testing.T) {
	stores := newCatalogTestEnv(t)
	ctx := context.Background()

	cat := NewUserCatalog(stores.Users, nil, zerolog.Nop())
	u := domain.NewUser("", "Jane Doe", "jane@example.com")
	require.NoError(t, cat.CreateUser(ctx, u))

	got, err := cat.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "Jane Doe", got.DisplayName)
}

func TestUserCatalog_CreateUser_RequiresDisplayName(t *testing.T) {
	stores := newCatalogTestEnv(t)
	ctx := context.Background()

	cat := NewUserCatalog(stores.Users, nil, zerolog.Nop())
	u := domain.NewUser("", "", "jane@example.com")
	err := cat.CreateUser(ctx, u)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestUserCatalog_SetPasswordAndAuthenticate(t *testing.T) {
	stores := newCatalogTestEnv(t)
	ctx := context.Background()

	cat := NewUserCatalog(stores.Users, nil, zerolog.Nop())
	u := domain.NewUser("", "Jane Doe", "jane@example.com")
	require.NoError(t, cat.CreateUser(ctx, u))

	require.NoError(t, cat.SetPassword(ctx, u, "correct-horse", u.Version))

	require.NoError(t, cat.Authenticate(u, "correct-horse"))
	require.ErrorIs(t, cat.Authenticate(u, "wrong-password"), domain.ErrInvalidCredentials)
}

func TestUserCatalog_StoreUser_OptimisticConcurrencyConflict(t *testing.T) {
	stores := newCatalogTestEnv(t)
	ctx := context.Background()

	cat := NewUserCatalog(stores.Users, nil, zerolog.Nop())
	u := domain.NewUser("", "Jane Doe", "jane@example.com")
	require.NoError(t, cat.CreateUser(ctx, u))
	staleVersion := u.Version

	u.DisplayName = "Jane Updated"
	require.NoError(t, cat.StoreUser(ctx, u, staleVersion))

	u2, err := cat.GetUser(ctx, u.ID)
	require.NoError(t, err)
	u2.DisplayName = "Conflicting Update"
	err = cat.StoreUser(ctx, u2, staleVersion)
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestUserCatalog_VerifyMFA(t *testing.T) {
	stores := newCatalogTestEnv(t)
	ctx := context.Background()

	cat := NewUserCatalog(stores.Users, nil, zerolog.Nop())
	u := domain.NewUser("", "Jane Doe", "jane@example.com")
	require.NoError(t, cat.CreateUser(ctx, u))

	err := cat.VerifyMFA(u, "123456")
	require.ErrorIs(t, err, domain.ErrUnsupported)

	u.MFAIDs = []byte(`["device-1"]`)
	require.NoError(t, cat.VerifyMFA(u, "123456"))
	require.ErrorIs(t, cat.VerifyMFA(u, ""), domain.ErrInvalidCredentials)
}

func TestUserCatalog_RemoveUser(t *testing.T) {
	stores := newCatalogTestEnv(t)
	ctx := context.Background()

	cat := NewUserCatalog(stores.Users, nil, zerolog.Nop())
	u := domain.NewUser("", "Jane Doe", "jane@example.com")
	require.NoError(t, cat.CreateUser(ctx, u))

	require.NoError(t, cat.RemoveUser(ctx, u.ID))

	_, err := cat.GetUser(ctx, u.ID)
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}
