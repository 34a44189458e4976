package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}

func TestPutWritesFileAndReturnsURI(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.Put(context.Background(), "archives/job-1.html", "text/html", []byte("<html></html>"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "file://"))

	data, err := os.ReadFile(filepath.Join(dir, "archives", "job-1.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(data))
}

func TestPutRejectsPathTraversal(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../escape.html", "text/html", []byte("nope"))
	require.Error(t, err)
}
