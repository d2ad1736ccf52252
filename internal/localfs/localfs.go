// Package localfs is the local filesystem collaborator spec.md §1 calls
// out as an external dependency of the shell: `get` writes into it, `put`
// reads from it, and `lcd` changes its working directory. It is backed by
// github.com/spf13/afero so tests can swap afero.OsFs for afero.MemMapFs
// without touching the real disk (SPEC_FULL.md's domain stack table).
package localfs

import (
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

// FS is the local filesystem collaborator. Cwd tracks the shell's local
// working directory independently of the process's actual working
// directory, so `lcd` never calls os.Chdir and so MemMapFs-backed tests
// don't depend on process state.
type FS struct {
	backing afero.Fs
	cwd     string
}

// New wraps backing (afero.NewOsFs() in production) rooted at cwd.
func New(backing afero.Fs, cwd string) *FS {
	return &FS{backing: backing, cwd: cwd}
}

// Cwd returns the current local working directory.
func (f *FS) Cwd() string { return f.cwd }

// Lcd changes the local working directory, verifying dir exists and is a
// directory before committing (mirrors the cwd_handle commit-on-success
// discipline session.Cd uses for the remote side).
func (f *FS) Lcd(dir string) error {
	target := f.resolve(dir)
	info, err := f.backing.Stat(target)
	if err != nil {
		return fmt.Errorf("lcd %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("lcd %s: not a directory", dir)
	}
	f.cwd = target
	return nil
}

// resolve joins a possibly-relative path against cwd.
func (f *FS) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(f.cwd, p))
}

// Create opens name (relative to cwd unless absolute) for writing,
// truncating or creating it, for use by `get`.
func (f *FS) Create(name string) (afero.File, error) {
	return f.backing.Create(f.resolve(name))
}

// Open opens name for reading, for use by `put`.
func (f *FS) Open(name string) (afero.File, error) {
	return f.backing.Open(f.resolve(name))
}

// Stat reports name's local metadata (relative to cwd unless absolute).
// Neither `get` nor `put` calls it.
func (f *FS) Stat(name string) (fs.FileInfo, error) {
	return f.backing.Stat(f.resolve(name))
}

// CopyFrom streams all of r into name (relative to cwd), truncating or
// creating the destination. `get` writes through Create directly rather
// than calling this.
func (f *FS) CopyFrom(name string, r io.Reader) (int64, error) {
	dst, err := f.Create(name)
	if err != nil {
		return 0, err
	}
	defer dst.Close()
	return io.Copy(dst, r)
}

// CopyTo streams name's full contents to w. `put` reads through Open
// directly rather than calling this.
func (f *FS) CopyTo(name string, w io.Writer) (int64, error) {
	src, err := f.Open(name)
	if err != nil {
		return 0, err
	}
	defer src.Close()
	return io.Copy(w, src)
}
