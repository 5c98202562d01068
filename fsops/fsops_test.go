package fsops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrelsys/rexec/rerrors"
)

func TestWriteThenReadFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.txt")

	require.NoError(t, WriteFileBytes(p, []byte("hello"), false))
	got, err := ReadFileBytes(p)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))

	require.NoError(t, WriteFileBytes(p, []byte(" world"), true))
	got, err = ReadFileBytes(p)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(got))
}

func TestReadMissingFileIsNotFound(t *testing.T) {
	_, err := ReadFileBytes(filepath.Join(t.TempDir(), "missing"))
	e, ok := rerrors.As(err)
	require.True(t, ok)
	require.Equal(t, rerrors.NotFound, e.Kind)
}

func TestExistsReportsPresenceWithoutError(t *testing.T) {
	dir := t.TempDir()
	ok, err := Exists(dir)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Exists(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCreateDirRecursiveThenReadDir(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, CreateDir(nested, true))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "f.txt"), []byte("x"), 0o644))

	entries, err := ReadDir(dir, true, true)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		require.NotNil(t, e.Metadata)
	}
}

func TestRemoveForceIgnoresMissing(t *testing.T) {
	require.NoError(t, Remove(filepath.Join(t.TempDir(), "nope"), true))
}

func TestRemoveWithoutForceOnMissingFails(t *testing.T) {
	err := Remove(filepath.Join(t.TempDir(), "nope"), false)
	require.Error(t, err)
}

func TestCopyFileAndRename(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))

	require.NoError(t, Copy(src, dst))
	got, err := ReadFileBytes(dst)
	require.NoError(t, err)
	require.Equal(t, "data", string(got))

	moved := filepath.Join(dir, "moved.txt")
	require.NoError(t, Rename(dst, moved))
	ok, _ := Exists(dst)
	require.False(t, ok)
	ok, _ = Exists(moved)
	require.True(t, ok)
}

func TestMetadataReportsSizeAndKind(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(p, []byte("12345"), 0o644))

	st, err := Metadata(p, false, false)
	require.NoError(t, err)
	require.True(t, st.IsFile)
	require.False(t, st.IsDir)
	require.EqualValues(t, 5, st.Size)
}

func TestSetPermissionsChangesMode(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	require.NoError(t, SetPermissions(p, 0o600, SetPermissionsOptions{}))
	st, err := Metadata(p, false, false)
	require.NoError(t, err)
	require.EqualValues(t, 0o600, st.Mode)
}
