package fs

import (
	"io/fs"
	"os"
	"path/filepath"
)

// IsNotExist reports whether err is this package's distinguished "missing"
// error, the same way callers already use os.IsNotExist.
func IsNotExist(err error) bool {
	return os.IsNotExist(err)
}

// osFS is the real, disk-backed implementation of FS.
type osFS struct{}

// OS returns the filesystem backed by the host's actual disk.
func OS() FS { return osFS{} }

func (osFS) ReadFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (osFS) ReadDir(path string) (DirEntries, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return DirEntries{}, err
	}
	dir := NewDirEntries(path)
	for _, e := range entries {
		kind := FileEntry
		switch {
		case e.Type()&fs.ModeSymlink != 0:
			kind = SymlinkEntry
		case e.IsDir():
			kind = DirEntry
		}
		dir.Add(e.Name(), kind)
	}
	return dir, nil
}

func (osFS) Stat(path string) (Metadata, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if IsNotExist(err) {
			return Metadata{Kind: MissingEntry}, nil
		}
		return Metadata{}, err
	}
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return Metadata{}, err
		}
		return Metadata{Kind: SymlinkEntry, Symlink: target, ModTime: info.ModTime()}, nil
	case info.IsDir():
		return Metadata{Kind: DirEntry, ModTime: info.ModTime()}, nil
	default:
		return Metadata{Kind: FileEntry, ModTime: info.ModTime()}, nil
	}
}

func (osFS) EvalSymlinks(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if IsNotExist(err) {
			return path, nil
		}
		return "", err
	}
	return resolved, nil
}
