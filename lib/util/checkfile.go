package util

import (
	"os"
)

// PathKind classifies a filesystem path for the loaders.
type PathKind int

const (
	PathMissing PathKind = iota
	PathFile
	PathDir
	PathOther
)

// StatPath reports what fpath names. Symlinks are followed.
func StatPath(fpath string) PathKind {
	info, err := os.Stat(fpath)
	switch {
	case err != nil:
		return PathMissing
	case info.IsDir():
		return PathDir
	case info.Mode().IsRegular():
		return PathFile
	}
	return PathOther
}

// CheckFileExists reports whether fpath names an existing regular file.
func CheckFileExists(fpath string) bool { return StatPath(fpath) == PathFile }
