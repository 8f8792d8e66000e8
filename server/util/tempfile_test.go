package util

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTempFilesWith(t *testing.T) {
	tf, err := NewTempFiles(filepath.Join(t.TempDir(), "scratch"))
	require.NoError(t, err)

	var seen string
	err = tf.With(".jpg", strings.NewReader("hello"), func(path string) error {
		seen = path
		b, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, "hello", string(b))
		require.Equal(t, 1, tf.Count())
		return nil
	})
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(seen, ".jpg"))
	require.Equal(t, 0, tf.Count())

	// The file is removed on the error path too
	boom := errors.New("boom")
	err = tf.With(".jpg", strings.NewReader("x"), func(path string) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, tf.Count())
}

func TestTempFilesUnique(t *testing.T) {
	tf, err := NewTempFiles(t.TempDir())
	require.NoError(t, err)
	names := map[string]bool{}
	for i := 0; i < 100; i++ {
		names[tf.Get(".png")] = true
	}
	require.Equal(t, 100, len(names))
}

func TestTempFilesCleanOld(t *testing.T) {
	tf, err := NewTempFiles(t.TempDir())
	require.NoError(t, err)
	old := tf.Get(".jpg")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0660))
	require.NoError(t, os.WriteFile(filepath.Join(tf.Root, "junk"), []byte("x"), 0660))
	tf.cleanOld(time.Now().Add(time.Hour))
	require.Equal(t, 0, tf.Count())
}
