package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/prn-tf/sfsgw/internal/domain"
)

func TestGetOrCreateObject_CreatesOnce(t *testing.T) {
	db := newTestDB(t)
	objects := NewObjectStore(db)
	ctx := context.Background()

	first, err := objects.GetOrCreateObject(ctx, "bucket-1", "key.txt")
	require.NoError(t, err)

	second, err := objects.GetOrCreateObject(ctx, "bucket-1", "key.txt")
	require.NoError(t, err)

	require.Equal(t, first.UUID, second.UUID, "same (bucket, name) must resolve to the same object uuid")
}

func TestCreateVersion_LatestCommitted(t *testing.T) {
	db := newTestDB(t)
	objects := NewObjectStore(db)
	ctx := context.Background()

	obj, err := objects.GetOrCreateObject(ctx, "bucket-1", "key.txt")
	require.NoError(t, err)
	objectID := obj.UUID.String()

	v1 := domain.NewOpenVersion(objectID, "v1")
	require.NoError(t, objects.CreateVersion(ctx, v1))
	v1.State = domain.ObjectStateCommitted
	v1.ETag = "e1"
	require.NoError(t, objects.UpdateVersion(ctx, v1))

	v2 := domain.NewOpenVersion(objectID, "v2")
	require.NoError(t, objects.CreateVersion(ctx, v2))
	v2.State = domain.ObjectStateCommitted
	v2.ETag = "e2"
	require.NoError(t, objects.UpdateVersion(ctx, v2))

	latest, err := objects.GetLatestCommittedVersion(ctx, "bucket-1", "key.txt")
	require.NoError(t, err)
	require.Equal(t, "e2", latest.ETag)
}

func TestGetLatestCommittedVersion_IgnoresOpenAndDeleted(t *testing.T) {
	db := newTestDB(t)
	objects := NewObjectStore(db)
	ctx := context.Background()

	obj, err := objects.GetOrCreateObject(ctx, "bucket-1", "key.txt")
	require.NoError(t, err)
	objectID := obj.UUID.String()

	committed := domain.NewOpenVersion(objectID, "v1")
	require.NoError(t, objects.CreateVersion(ctx, committed))
	committed.State = domain.ObjectStateCommitted
	committed.ETag = "e1"
	require.NoError(t, objects.UpdateVersion(ctx, committed))

	open := domain.NewOpenVersion(objectID, "v2")
	require.NoError(t, objects.CreateVersion(ctx, open)) // stays OPEN

	latest, err := objects.GetLatestCommittedVersion(ctx, "bucket-1", "key.txt")
	require.NoError(t, err)
	require.Equal(t, "e1", latest.ETag)
}

func TestUniqueIndex_ObjectIDVersionID(t *testing.T) {
	db := newTestDB(t)
	objects := NewObjectStore(db)
	ctx := context.Background()

	obj, err := objects.GetOrCreateObject(ctx, "bucket-1", "key.txt")
	require.NoError(t, err)
	objectID := obj.UUID.String()

	require.NoError(t, objects.CreateVersion(ctx, domain.NewOpenVersion(objectID, "dup")))
	err = objects.CreateVersion(ctx, domain.NewOpenVersion(objectID, "dup"))
	require.Error(t, err, "duplicate (object_id, version_id) must be rejected")
}

func TestCountAndPurgeVersionsAndObjects(t *testing.T) {
	db := newTestDB(t)
	objects := NewObjectStore(db)
	ctx := context.Background()

	obj, err := objects.GetOrCreateObject(ctx, "bucket-1", "key.txt")
	require.NoError(t, err)
	objectID := obj.UUID.String()

	v1 := domain.NewOpenVersion(objectID, "v1")
	require.NoError(t, objects.CreateVersion(ctx, v1))
	v2 := domain.NewOpenVersion(objectID, "v2")
	require.NoError(t, objects.CreateVersion(ctx, v2))

	n, err := objects.CountVersions(ctx, objectID)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, objects.PurgeVersion(ctx, v1.ID))
	n, err = objects.CountVersions(ctx, objectID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, objects.PurgeVersion(ctx, v2.ID))
	n, err = objects.CountVersions(ctx, objectID)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	countObjs, err := objects.CountObjectsInBucket(ctx, "bucket-1")
	require.NoError(t, err)
	require.Equal(t, 1, countObjs)

	require.NoError(t, objects.PurgeObject(ctx, objectID))
	countObjs, err = objects.CountObjectsInBucket(ctx, "bucket-1")
	require.NoError(t, err)
	require.Equal(t, 0, countObjs)
}

func TestListDeletedVersions(t *testing.T) {
	db := newTestDB(t)
	objects := NewObjectStore(db)
	ctx := context.Background()

	obj, err := objects.GetOrCreateObject(ctx, "bucket-1", "key.txt")
	require.NoError(t, err)
	objectID := obj.UUID.String()

	v := domain.NewOpenVersion(objectID, "v1")
	require.NoError(t, objects.CreateVersion(ctx, v))
	v.MarkDeleted()
	require.NoError(t, objects.UpdateVersion(ctx, v))

	deleted, err := objects.ListDeletedVersions(ctx, 100)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	require.Equal(t, v.ID, deleted[0].ID)
}
