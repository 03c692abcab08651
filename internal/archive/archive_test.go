package archive

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchivePageWritesFile(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	path, err := store.ArchivePage(1, []byte("<html>listing</html>"))
	require.NoError(t, err)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<html>listing</html>", string(body))
	assert.Contains(t, path, "listing-0001.html")
}

func TestArchivePageRejectsBadPageNumber(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.ArchivePage(0, []byte("x"))
	require.Error(t, err)
}

func TestNewRequiresDirectory(t *testing.T) {
	t.Parallel()

	_, err := New("  ")
	require.Error(t, err)
}
