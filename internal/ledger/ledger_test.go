package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "downloaded_images.log"))
	set, err := l.Load(false)
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestLoadForceIgnoresFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "downloaded_images.log")
	require.NoError(t, os.WriteFile(path, []byte("a.png\nb.png\n"), 0o644))

	l := New(path)
	set, err := l.Load(true)
	require.NoError(t, err)
	assert.Empty(t, set)

	set, err = l.Load(false)
	require.NoError(t, err)
	assert.True(t, set.Has("a.png"))
	assert.True(t, set.Has("b.png"))
}

func TestAppendNeverRemovesOrDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "downloaded_images.log")
	l := New(path)

	require.NoError(t, l.Append([]string{"a.png", "b.png", "a.png"}))
	require.NoError(t, l.Append([]string{"b.png", "c.png"}))
	// A forced run re-downloads known names; they must not be appended again.
	require.NoError(t, l.Append([]string{"a.png", "c.png"}))

	assert.Equal(t, []string{"a.png", "b.png", "c.png"}, readLines(t, path))
}

func TestAppendKeepsPreexistingDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "downloaded_images.log")
	require.NoError(t, os.WriteFile(path, []byte("a.png\na.png\n"), 0o644))

	l := New(path)
	require.NoError(t, l.Append([]string{"b.png"}))
	assert.Equal(t, []string{"a.png", "a.png", "b.png"}, readLines(t, path))
}

func TestAppendEmptyDoesNotCreateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "downloaded_images.log")
	require.NoError(t, New(path).Append(nil))
	assert.NoFileExists(t, path)
}

func TestLoadUnreadableIsError(t *testing.T) {
	// A directory at the ledger path cannot be read as a file.
	path := t.TempDir()
	_, err := New(path).Load(false)
	assert.Error(t, err)
}
