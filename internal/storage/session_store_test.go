package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-analyzer/internal/constants"
)

func TestSessionStore_CreateAndRemove(t *testing.T) {
	store, err := NewSessionStore(filepath.Join(t.TempDir(), "temp_dbs"))
	require.NoError(t, err)

	dir, err := store.Create("abc")
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.FileExists(t, filepath.Join(dir, constants.SessionMarkerFile))
	assert.True(t, store.Exists("abc"))

	_, err = store.Create("abc")
	assert.ErrorIs(t, err, ErrSessionExists)

	require.NoError(t, store.Remove("abc"))
	assert.NoDirExists(t, dir)
	// 已删除的会话再次删除视为成功
	require.NoError(t, store.Remove("abc"))
}

func TestSessionStore_RejectsPathTraversal(t *testing.T) {
	store, err := NewSessionStore(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"", ".", "..", "../x", "a/b"} {
		_, err := store.Create(id)
		assert.Error(t, err, "id=%q", id)
	}
}

func TestSessionStore_EntriesUseMarkerTime(t *testing.T) {
	store, err := NewSessionStore(t.TempDir())
	require.NoError(t, err)

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return created }
	_, err = store.Create("old")
	require.NoError(t, err)

	// 没有标记文件的残留条目使用修改时间
	stray := filepath.Join(store.Root(), "stray.tmp")
	require.NoError(t, os.WriteFile(stray, []byte("x"), 0o644))
	mtime := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stray, mtime, mtime))

	entries, err := store.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byID := map[string]SessionEntry{}
	for _, e := range entries {
		byID[e.ID] = e
	}
	assert.True(t, byID["old"].IsDir)
	assert.True(t, byID["old"].CreatedAt.Equal(created))
	assert.False(t, byID["stray.tmp"].IsDir)
	assert.WithinDuration(t, mtime, byID["stray.tmp"].CreatedAt, time.Second)
}

func TestSessionStore_EntriesOnMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "gone")
	store, err := NewSessionStore(root)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(root))

	entries, err := store.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
