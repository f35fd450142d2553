package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSave(t *testing.T) {
	t.Run("writes under per-ticket directory", func(t *testing.T) {
		store := NewFSStore(t.TempDir())

		key, err := store.Save(context.Background(), 7, "crash.log", []byte("boom"))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(key, filepath.Join("ticket_7")+string(filepath.Separator)))
		assert.True(t, strings.HasSuffix(key, ".log"))
	})

	t.Run("stored bytes round-trip", func(t *testing.T) {
		base := t.TempDir()
		store := NewFSStore(base)

		key, err := store.Save(context.Background(), 1, "data.txt", []byte("hello"))
		require.NoError(t, err)

		content, err := os.ReadFile(filepath.Join(base, key))
		require.NoError(t, err)
		assert.Equal(t, "hello", string(content))
	})

	t.Run("hostile file names cannot escape", func(t *testing.T) {
		store := NewFSStore(t.TempDir())

		key, err := store.Save(context.Background(), 1, "../../etc/passwd", []byte("x"))
		require.NoError(t, err)
		assert.NotContains(t, key, "..")
	})

	t.Run("keys never collide", func(t *testing.T) {
		store := NewFSStore(t.TempDir())

		a, err := store.Save(context.Background(), 1, "same.txt", []byte("a"))
		require.NoError(t, err)
		b, err := store.Save(context.Background(), 1, "same.txt", []byte("b"))
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}

func TestSafeExtension(t *testing.T) {
	assert.Equal(t, ".png", safeExtension("photo.PNG"))
	assert.Equal(t, ".log", safeExtension("/tmp/../crash.log"))
	assert.Equal(t, "", safeExtension("archive.tar¡"))
	assert.Equal(t, "", safeExtension("no-extension"))
	assert.Equal(t, "", safeExtension("weird.reallylongextension"))
}
