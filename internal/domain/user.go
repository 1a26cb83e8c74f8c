// Package domain contains the core business entities for the storage
// core: pure Go structs with no external dependencies, representing
// users, buckets, objects, versions and their state transitions.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// User is the catalog's user entity (spec §3). Most fields beyond the
// identity/auth basics are opaque to this core and are round-tripped
// as JSON blobs rather than normalized into columns or structs, since
// attribute/ACL/capability evaluation lives in a collaborator.
type User struct {
	ID          string `json:"id"`
	Tenant      string `json:"tenant"`
	Namespace   string `json:"ns"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`

	// PasswordHash is the bcrypt hash used by the ambient IAM surface.
	// Not part of the spec's hard core; kept for parity with the
	// teacher's auth stub.
	PasswordHash string `json:"-"`

	// Opaque blobs, round-tripped verbatim. nil means "not set".
	AccessKeys   json.RawMessage `json:"access_keys,omitempty"`
	SwiftKeys    json.RawMessage `json:"swift_keys,omitempty"`
	SubUsers     json.RawMessage `json:"sub_users,omitempty"`
	Caps         json.RawMessage `json:"caps,omitempty"`
	PlacementTags json.RawMessage `json:"placement_tags,omitempty"`
	Quota        json.RawMessage `json:"quota,omitempty"`
	TempURLKeys  json.RawMessage `json:"temp_url_keys,omitempty"`
	MFAIDs       json.RawMessage `json:"mfa_ids,omitempty"`
	Attrs        json.RawMessage `json:"user_attrs,omitempty"`

	Suspended      bool   `json:"suspended"`
	MaxBuckets     int    `json:"max_buckets"`
	OpMask         uint32 `json:"op_mask"`
	System         bool   `json:"system"`
	Admin          bool   `json:"admin"`
	AssumedRoleARN string `json:"assumed_role_arn"`

	// Version is the optimistic-concurrency counter (spec §3, §4.7).
	// First successful store writes Version = 1.
	Version    int64  `json:"user_version"`
	VersionTag string `json:"user_version_tag"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUser creates a new User with sensible defaults and no version yet
// (Version is assigned by the first successful catalog store).
func NewUser(id, displayName, email string) *User {
	now := time.Now().UTC()
	if id == "" {
		id = uuid.NewString()
	}
	return &User{
		ID:          id,
		DisplayName: displayName,
		Email:       email,
		MaxBuckets:  1000,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CanAuthenticate returns true if the user is allowed to authenticate.
func (u *User) CanAuthenticate() bool {
	return !u.Suspended
}
