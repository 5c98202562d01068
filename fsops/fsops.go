// Package fsops implements the filesystem operation family of the handler
// boundary: read/write/append files, directory listing and
// creation, remove/copy/rename, existence checks, metadata, and permission
// changes. It has no direct katzenpost precursor, and reports failures
// through the shared rerrors taxonomy instead of bare os.PathError values.
package fsops

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kestrelsys/rexec/rerrors"
)

// classify maps a stdlib filesystem error to the shared taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case os.IsNotExist(err):
		return rerrors.Wrap(rerrors.NotFound, err)
	case os.IsPermission(err):
		return rerrors.Wrap(rerrors.PermissionDenied, err)
	case err == io.EOF:
		return rerrors.Wrap(rerrors.UnexpectedEof, err)
	default:
		return rerrors.Wrap(rerrors.Io, err)
	}
}

// ReadFileBytes reads path's full contents.
func ReadFileBytes(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, classify(err)
	}
	return b, nil
}

// WriteFileBytes writes (or appends to, if append is true) data at path.
func WriteFileBytes(path string, data []byte, append bool) error {
	flags := os.O_WRONLY | os.O_CREATE
	if append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return classify(err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return classify(err)
	}
	return nil
}

// Entry describes one directory entry, optionally enriched with metadata
//.
type Entry struct {
	Path     string
	IsDir    bool
	Metadata *Stat
}

// Stat is filesystem metadata for a single path.
type Stat struct {
	Path    string
	IsDir   bool
	IsFile  bool
	Symlink bool
	Size    uint64
	ModTime int64
	Mode    uint32
}

// ReadDir lists path's entries, optionally recursing into subdirectories
// and attaching metadata to each entry.
func ReadDir(path string, recursive, withMetadata bool) ([]Entry, error) {
	var entries []Entry

	walk := func(p string, d fs.DirEntry) error {
		var st *Stat
		if withMetadata {
			s, err := Metadata(p, false, false)
			if err != nil {
				return err
			}
			st = &s
		}
		entries = append(entries, Entry{Path: p, IsDir: d.IsDir(), Metadata: st})
		return nil
	}

	if !recursive {
		dirEntries, err := os.ReadDir(path)
		if err != nil {
			return nil, classify(err)
		}
		for _, d := range dirEntries {
			if err := walk(filepath.Join(path, d.Name()), d); err != nil {
				return nil, err
			}
		}
		return entries, nil
	}

	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == path {
			return nil
		}
		return walk(p, d)
	})
	if err != nil {
		return nil, classify(err)
	}
	return entries, nil
}

// CreateDir creates path, optionally creating parent directories.
func CreateDir(path string, recursive bool) error {
	var err error
	if recursive {
		err = os.MkdirAll(path, 0o755)
	} else {
		err = os.Mkdir(path, 0o755)
	}
	return classify(err)
}

// Remove deletes path; with force set, a missing path or non-empty
// directory does not error.
func Remove(path string, force bool) error {
	if force {
		if err := os.RemoveAll(path); err != nil {
			return classify(err)
		}
		return nil
	}
	if err := os.Remove(path); err != nil {
		return classify(err)
	}
	return nil
}

// Copy copies the file or directory tree at from to to.
func Copy(from, to string) error {
	info, err := os.Stat(from)
	if err != nil {
		return classify(err)
	}
	if info.IsDir() {
		return copyDir(from, to)
	}
	return copyFile(from, to, info.Mode())
}

func copyFile(from, to string, mode os.FileMode) error {
	src, err := os.Open(from)
	if err != nil {
		return classify(err)
	}
	defer src.Close()

	dst, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return classify(err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return classify(err)
	}
	return nil
}

func copyDir(from, to string) error {
	return filepath.WalkDir(from, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(from, p)
		if err != nil {
			return err
		}
		target := filepath.Join(to, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(p, target, info.Mode())
	})
}

// Rename moves from to to.
func Rename(from, to string) error {
	return classify(os.Rename(from, to))
}

// Exists reports whether path exists.
func Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, classify(err)
}

// Metadata stats path, optionally making path absolute and lexically clean
// (filepath.Abs; symlinks inside it are not resolved) and/or following a
// trailing symlink.
func Metadata(path string, canonicalize, followSymlinks bool) (Stat, error) {
	if canonicalize {
		abs, err := filepath.Abs(path)
		if err != nil {
			return Stat{}, classify(err)
		}
		path = abs
	}

	lst, err := os.Lstat(path)
	if err != nil {
		return Stat{}, classify(err)
	}
	isSymlink := lst.Mode()&os.ModeSymlink != 0

	info := lst
	if isSymlink && followSymlinks {
		resolved, err := os.Stat(path)
		if err != nil {
			return Stat{}, classify(err)
		}
		info = resolved
	}

	return Stat{
		Path:    path,
		IsDir:   info.IsDir(),
		IsFile:  info.Mode().IsRegular(),
		Symlink: isSymlink,
		Size:    uint64(info.Size()),
		ModTime: info.ModTime().Unix(),
		Mode:    uint32(info.Mode().Perm()),
	}, nil
}

// SetPermissionsOptions configures SetPermissions.
type SetPermissionsOptions struct {
	Recursive       bool
	FollowSymlinks  bool
	ExcludeSymlinks bool
}

// SetPermissions chmods path to mode, optionally recursing.
func SetPermissions(path string, mode os.FileMode, opt SetPermissionsOptions) error {
	if !opt.Recursive {
		return chmodOne(path, mode, opt)
	}
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return chmodOne(p, mode, opt)
	})
}

func chmodOne(path string, mode os.FileMode, opt SetPermissionsOptions) error {
	lst, err := os.Lstat(path)
	if err != nil {
		return classify(err)
	}
	isSymlink := lst.Mode()&os.ModeSymlink != 0
	if isSymlink {
		if opt.ExcludeSymlinks {
			return nil
		}
		if !opt.FollowSymlinks {
			// os.Chmod on most platforms already follows symlinks; without
			// an os.Lchmod equivalent in the standard library this is a
			// best-effort no-op for the non-follow case.
			return nil
		}
	}
	return classify(os.Chmod(path, mode))
}
