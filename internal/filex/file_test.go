package filex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateWithDirs_CreatesMissingParents(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "a", "b", "out.bin")

	f, err := CreateWithDirs(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteString("x")
	require.NoError(t, err)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.False(t, fi.IsDir())
}

func TestCreateWithDirs_TruncatesExisting(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "out.bin")
	require.NoError(t, os.WriteFile(path, []byte("old content"), 0o660))

	f, err := CreateWithDirs(path)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Empty(t, b)
}

func TestCreateWithDirs_FailsWhenParentIsFile(t *testing.T) {
	tmp := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "a"), []byte("x"), 0o660))

	_, err := CreateWithDirs(filepath.Join(tmp, "a", "out.bin"))
	require.Error(t, err)
}
