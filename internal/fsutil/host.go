package fsutil

import (
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// OS returns the host filesystem. Absolute paths address the host directly;
// relative paths resolve against the process working directory at call time.
func OS() billy.Filesystem {
	return hostFS{Filesystem: osfs.New("/")}
}

// hostFS rewrites every path to its absolute form before handing it to an
// osfs rooted at "/", which would otherwise treat relative names as children
// of the root.
type hostFS struct {
	billy.Filesystem
}

func abs(path string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	return filepath.Abs(path)
}

func (h hostFS) Create(filename string) (billy.File, error) {
	p, err := abs(filename)
	if err != nil {
		return nil, err
	}
	return h.Filesystem.Create(p)
}

func (h hostFS) Open(filename string) (billy.File, error) {
	p, err := abs(filename)
	if err != nil {
		return nil, err
	}
	return h.Filesystem.Open(p)
}

func (h hostFS) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	p, err := abs(filename)
	if err != nil {
		return nil, err
	}
	return h.Filesystem.OpenFile(p, flag, perm)
}

func (h hostFS) Stat(filename string) (os.FileInfo, error) {
	p, err := abs(filename)
	if err != nil {
		return nil, err
	}
	return h.Filesystem.Stat(p)
}

func (h hostFS) Lstat(filename string) (os.FileInfo, error) {
	p, err := abs(filename)
	if err != nil {
		return nil, err
	}
	return h.Filesystem.Lstat(p)
}

func (h hostFS) Rename(oldpath, newpath string) error {
	from, err := abs(oldpath)
	if err != nil {
		return err
	}
	to, err := abs(newpath)
	if err != nil {
		return err
	}
	return h.Filesystem.Rename(from, to)
}

func (h hostFS) Remove(filename string) error {
	p, err := abs(filename)
	if err != nil {
		return err
	}
	return h.Filesystem.Remove(p)
}

func (h hostFS) TempFile(dir, prefix string) (billy.File, error) {
	p, err := abs(dir)
	if err != nil {
		return nil, err
	}
	return h.Filesystem.TempFile(p, prefix)
}

func (h hostFS) ReadDir(path string) ([]os.FileInfo, error) {
	p, err := abs(path)
	if err != nil {
		return nil, err
	}
	return h.Filesystem.ReadDir(p)
}

func (h hostFS) MkdirAll(filename string, perm os.FileMode) error {
	p, err := abs(filename)
	if err != nil {
		return err
	}
	return h.Filesystem.MkdirAll(p, perm)
}

// Symlink keeps target as given; relative targets are relative to the link.
func (h hostFS) Symlink(target, link string) error {
	p, err := abs(link)
	if err != nil {
		return err
	}
	return h.Filesystem.Symlink(target, p)
}

func (h hostFS) Readlink(link string) (string, error) {
	p, err := abs(link)
	if err != nil {
		return "", err
	}
	return h.Filesystem.Readlink(p)
}

func (h hostFS) Chroot(path string) (billy.Filesystem, error) {
	p, err := abs(path)
	if err != nil {
		return nil, err
	}
	return h.Filesystem.Chroot(p)
}
