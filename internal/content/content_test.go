package content

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestPath_Sharding(t *testing.T) {
	s := New("/data")
	id := uuid.New()

	h := hex.EncodeToString(id[:])
	want := filepath.Join("/data", h[0:2], h[2:4], fmt.Sprintf("%s_v1", h[4:]))

	require.Equal(t, want, s.Path(id, "v1"))
}

func TestPath_Injectivity(t *testing.T) {
	s := New("/data")
	a := uuid.New()
	b := uuid.New()

	require.NotEqual(t, s.Path(a, "v1"), s.Path(b, "v1"), "distinct uuids must map to distinct paths")
	require.NotEqual(t, s.Path(a, "v1"), s.Path(a, "v2"), "distinct version ids on the same uuid must map to distinct paths")
}

func TestOpenForAppend_CreatesParentDirs(t *testing.T) {
	s := New(t.TempDir())
	id := uuid.New()
	path := s.Path(id, "v1")

	h, err := s.OpenForAppend(path)
	require.NoError(t, err)
	defer h.Close()

	_, err = os.Stat(filepath.Dir(path))
	require.NoError(t, err)
}

func TestHandle_MonotonicWrite(t *testing.T) {
	s := New(t.TempDir())
	path := s.Path(uuid.New(), "v1")

	h, err := s.OpenForAppend(path)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Write(0, []byte("hello")))
	require.Equal(t, int64(5), h.HighWatermark())

	require.NoError(t, h.Write(5, []byte(" world")))
	require.Equal(t, int64(11), h.HighWatermark())

	err = h.Write(3, []byte("oops"))
	require.Error(t, err)
	require.ErrorContains(t, err, "non-monotonic")
	// high watermark is untouched by the rejected call
	require.Equal(t, int64(11), h.HighWatermark())
}

func TestStore_SizeAndUnlink(t *testing.T) {
	s := New(t.TempDir())
	path := s.Path(uuid.New(), "v1")

	h, err := s.OpenForAppend(path)
	require.NoError(t, err)
	require.NoError(t, h.Write(0, []byte("abcdef")))
	require.NoError(t, h.Fsync())
	require.NoError(t, h.Close())

	size, ok := s.Size(path)
	require.True(t, ok)
	require.Equal(t, int64(6), size)

	require.NoError(t, s.Unlink(path))
	_, ok = s.Size(path)
	require.False(t, ok)

	// unlinking a missing file is tolerated (GC idempotence)
	require.NoError(t, s.Unlink(path))
}

func TestListRegularFiles(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	paths := []string{s.Path(uuid.New(), "v1"), s.Path(uuid.New(), "v1"), s.Path(uuid.New(), "v1")}
	for _, p := range paths {
		h, err := s.OpenForAppend(p)
		require.NoError(t, err)
		require.NoError(t, h.Write(0, []byte("x")))
		require.NoError(t, h.Close())
	}

	files, err := s.ListRegularFiles(root)
	require.NoError(t, err)
	require.Len(t, files, 3)
}

func TestListRegularFiles_MissingRoot(t *testing.T) {
	s := New(t.TempDir())
	files, err := s.ListRegularFiles(filepath.Join(s.dataPath, "does-not-exist"))
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestPartPath_Injectivity(t *testing.T) {
	s := New("/data")
	id := uuid.New()
	require.NotEqual(t, s.PartPath(id, 1), s.PartPath(id, 2))
}
