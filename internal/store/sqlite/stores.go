package sqlite

import "github.com/prn-tf/sfsgw/internal/store"

// NewStores wires every SQLite store implementation against a shared
// connection, for handing to the catalog/writer/GC layers.
func NewStores(db *DB) *store.Stores {
	return &store.Stores{
		Users:      NewUserStore(db),
		AccessKeys: NewAccessKeyStore(db),
		Buckets:    NewBucketStore(db),
		Objects:    NewObjectStore(db),
		Multipart:  NewMultipartStore(db),
		Lifecycle:  NewLifecycleStore(db),
		DB:         db,
	}
}
