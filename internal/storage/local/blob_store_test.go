package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/readlater-migrate/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "reports", "nested")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.ErrorContains(t, err, "not a directory")
	})
}

func TestPutObject(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "error_2024-01-01.csv", "text/csv", strings.NewReader("first"))
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(dir, "error_2024-01-01.csv"), uri)

	_, err = store.PutObject(context.Background(), "error_2024-01-01.csv", "text/csv", strings.NewReader("second"))
	require.NoError(t, err)
	content, err := os.ReadFile(filepath.Join(dir, "error_2024-01-01.csv"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(content), "same-day reports overwrite")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestPutObjectRejectsTraversal(t *testing.T) {
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../escape.csv", "", strings.NewReader("x"))
	assert.ErrorContains(t, err, "path traversal")

	_, err = store.PutObject(context.Background(), "  ", "", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestRelativeBaseDir(t *testing.T) {
	dir := t.TempDir()
	{
		dir := dir
		wd, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(dir))
		t.Cleanup(func() { _ = os.Chdir(wd) })
	}

	store, err := local.New(local.Config{BaseDir: "."})
	require.NoError(t, err)
	uri, err := store.PutObject(context.Background(), "report.csv", "", strings.NewReader("ok"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(uri, "report.csv"))
}
