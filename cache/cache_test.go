package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRead(t *testing.T) {
	store := NewStore(t.TempDir(), time.Hour)
	version := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	_, ok := store.Read("grounding", version)
	assert.False(t, ok)

	require.NoError(t, store.Write("grounding", version, "<p>hi</p>"))
	html, ok := store.Read("grounding", version)
	assert.True(t, ok)
	assert.Equal(t, "<p>hi</p>", html)

	_, ok = store.Read("grounding", version.Add(time.Second))
	assert.False(t, ok)
}

func TestPath_IsStable(t *testing.T) {
	store := NewStore("cache", time.Hour)
	version := time.Unix(1700000000, 0)

	assert.Equal(t, store.Path("a-post", version), store.Path("a-post", version))
	assert.NotEqual(t, store.Path("a-post", version), store.Path("b-post", version))
	assert.Equal(t, filepath.Join("cache", "blog"), filepath.Dir(store.Path("a-post", version)))
}

func TestClear(t *testing.T) {
	store := NewStore(t.TempDir(), time.Hour)
	v1 := time.Unix(1, 0)
	v2 := time.Unix(2, 0)

	require.NoError(t, store.Write("post", v1, "one"))
	require.NoError(t, store.Write("post", v2, "two"))
	require.NoError(t, store.Write("other", v1, "keep"))

	require.NoError(t, store.Clear("post", ""))

	_, ok := store.Read("post", v1)
	assert.False(t, ok)
	_, ok = store.Read("post", v2)
	assert.False(t, ok)
	_, ok = store.Read("other", v1)
	assert.True(t, ok)
}

func TestExpiry(t *testing.T) {
	store := NewStore(t.TempDir(), time.Minute)
	version := time.Unix(1, 0)
	require.NoError(t, store.Write("post", version, "old"))

	old := time.Now().Add(-2 * time.Minute)
	require.NoError(t, os.Chtimes(store.Path("post", version), old, old))

	_, ok := store.Read("post", version)
	assert.False(t, ok)

	require.NoError(t, store.ClearOld())
	_, err := os.Stat(store.Path("post", version))
	assert.True(t, os.IsNotExist(err))
}

func TestClearOld_ReportsRemoveFailures(t *testing.T) {
	store := NewStore(t.TempDir(), time.Minute)
	old := time.Now().Add(-2 * time.Minute)
	for _, slug := range []string{"stuck", "stale"} {
		require.NoError(t, store.Write(slug, time.Unix(1, 0), "old"))
		require.NoError(t, os.Chtimes(store.Path(slug, time.Unix(1, 0)), old, old))
	}

	denied := errors.New("permission denied")
	stuck := store.Path("stuck", time.Unix(1, 0))
	store.remove = func(path string) error {
		if path == stuck {
			return denied
		}
		return os.Remove(path)
	}

	err := store.ClearOld()
	assert.ErrorIs(t, err, denied)

	_, statErr := os.Stat(store.Path("stale", time.Unix(1, 0)))
	assert.True(t, os.IsNotExist(statErr), "sweep continues past a failed entry")
	_, statErr = os.Stat(stuck)
	assert.NoError(t, statErr)
}

func TestClearAll(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, time.Hour)
	require.NoError(t, store.Write("post", time.Unix(1, 0), "x"))

	require.NoError(t, store.ClearAll())
	_, err := os.Stat(filepath.Join(root, "blog"))
	assert.True(t, os.IsNotExist(err))
}
