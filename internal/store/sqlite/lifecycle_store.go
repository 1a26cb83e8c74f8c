package sqlite

import (
	"context"
	"fmt"

	"github.com/prn-tf/sfsgw/internal/domain"
	"github.com/prn-tf/sfsgw/internal/store"
)

// lifecycleStore implements store.LifecycleStore for SQLite: the
// opaque lc_head/lc_entries rows (spec §1, §3). Neither this store nor
// any caller in this core interprets their contents.
type lifecycleStore struct {
	db *DB
}

// NewLifecycleStore creates a new SQLite lifecycle store.
func NewLifecycleStore(db *DB) store.LifecycleStore {
	return &lifecycleStore{db: db}
}

func (s *lifecycleStore) GetHead(ctx context.Context, bucketID string) (*domain.LCHead, error) {
	h := &domain.LCHead{BucketID: bucketID}
	err := s.db.QueryRowContext(ctx, `SELECT data FROM lc_head WHERE bucket_id = ?`, bucketID).Scan(&h.Data)
	if err != nil {
		if isNoRows(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get lifecycle head: %w", err)
	}
	return h, nil
}

func (s *lifecycleStore) PutHead(ctx context.Context, head *domain.LCHead) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lc_head (bucket_id, data) VALUES (?,?)
		ON CONFLICT(bucket_id) DO UPDATE SET data = excluded.data
	`, head.BucketID, head.Data)
	if err != nil {
		return fmt.Errorf("put lifecycle head: %w", err)
	}
	return nil
}

func (s *lifecycleStore) DeleteHead(ctx context.Context, bucketID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM lc_head WHERE bucket_id = ?`, bucketID)
	if err != nil {
		return fmt.Errorf("delete lifecycle head: %w", err)
	}
	return nil
}

func (s *lifecycleStore) ListEntries(ctx context.Context, bucketID string) ([]*domain.LCEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket_id, entry_id, data FROM lc_entries WHERE bucket_id = ?`, bucketID)
	if err != nil {
		return nil, fmt.Errorf("list lifecycle entries: %w", err)
	}
	defer rows.Close()

	var out []*domain.LCEntry
	for rows.Next() {
		e := &domain.LCEntry{}
		if err := rows.Scan(&e.BucketID, &e.EntryID, &e.Data); err != nil {
			return nil, fmt.Errorf("scan lifecycle entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *lifecycleStore) PutEntry(ctx context.Context, entry *domain.LCEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lc_entries (bucket_id, entry_id, data) VALUES (?,?,?)
		ON CONFLICT(bucket_id, entry_id) DO UPDATE SET data = excluded.data
	`, entry.BucketID, entry.EntryID, entry.Data)
	if err != nil {
		return fmt.Errorf("put lifecycle entry: %w", err)
	}
	return nil
}

func (s *lifecycleStore) DeleteEntry(ctx context.Context, bucketID, entryID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM lc_entries WHERE bucket_id = ? AND entry_id = ?`, bucketID, entryID)
	if err != nil {
		return fmt.Errorf("delete lifecycle entry: %w", err)
	}
	return nil
}

var _ store.LifecycleStore = (*lifecycleStore)(nil)
