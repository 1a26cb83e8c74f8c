package postgres

import "github.com/prn-tf/sfsgw/internal/store"

// Stores bundles the PostgreSQL-backed metadata stores. Unlike
// sqlite.Stores this does not cover buckets, objects, multipart
// uploads or lifecycle: the teacher never built Postgres repositories
// for those either, so this backend stays scoped to what it actually
// replaces (users and access keys), matching the DESIGN.md grounding
// for this package.
type Stores struct {
	Users      store.UserStore
	AccessKeys store.AccessKeyStore
	DB         *DB
}

// NewStores builds the PostgreSQL store bundle over an open DB.
func NewStores(db *DB) *Stores {
	return &Stores{
		Users:      NewUserStore(db),
		AccessKeys: NewAccessKeyStore(db),
		DB:         db,
	}
}
