package handler

import (
	"context"
	"fmt"

	"github.com/prn-tf/sfsgw/internal/auth"
	"github.com/prn-tf/sfsgw/internal/pkg/crypto"
	"github.com/prn-tf/sfsgw/internal/store"
)

// accessKeyAdapter satisfies auth.AccessKeyStore over the catalog's
// access-key store, decrypting the stored secret with encryptor. This
// is what lets the ops surface's mutating endpoints (GC suspend/resume
// /process) require the same catalog access keys as the rest of the
// system instead of being open to anyone who can reach the port.
type accessKeyAdapter struct {
	keys      store.AccessKeyStore
	encryptor *crypto.Encryptor
}

func newAccessKeyAdapter(keys store.AccessKeyStore, encryptor *crypto.Encryptor) *accessKeyAdapter {
	return &accessKeyAdapter{keys: keys, encryptor: encryptor}
}

// NewAccessKeyAdapter exposes the access-key adapter to callers wiring
// the auth middleware outside this package (cmd/sfsgw-server).
func NewAccessKeyAdapter(keys store.AccessKeyStore, encryptor *crypto.Encryptor) auth.AccessKeyStore {
	return newAccessKeyAdapter(keys, encryptor)
}

func (a *accessKeyAdapter) GetActiveAccessKey(ctx context.Context, accessKeyID string) (*auth.AccessKeyInfo, error) {
	key, err := a.keys.GetActiveByAccessKeyID(ctx, accessKeyID)
	if err != nil {
		return nil, err
	}
	secret, err := a.encryptor.DecryptString(key.EncryptedSecret)
	if err != nil {
		return nil, fmt.Errorf("decrypt access key secret: %w", err)
	}
	return &auth.AccessKeyInfo{
		AccessKeyID: key.AccessKeyID,
		SecretKey:   secret,
		// Username carries the owning user's string id; auth.AccessKeyInfo
		// predates this module's string user ids (it was grounded on an
		// int64-keyed teacher schema), so UserID is left zero and callers
		// needing the owner read Username instead.
		Username: key.UserID,
		IsActive: key.IsValid(),
		ExpiresAt: key.ExpiresAt,
	}, nil
}

func (a *accessKeyAdapter) UpdateLastUsed(ctx context.Context, accessKeyID string) error {
	key, err := a.keys.GetByAccessKeyID(ctx, accessKeyID)
	if err != nil {
		return err
	}
	return a.keys.UpdateLastUsed(ctx, key.ID)
}

var _ auth.AccessKeyStore = (*accessKeyAdapter)(nil)
