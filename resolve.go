package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

type PathKind int

const (
	PathNotFound PathKind = iota
	PathFile
	PathDirectory
	// PathUnsupported is an existing entry that is neither a regular file
	// nor a directory (socket, device, ...).
	PathUnsupported
)

func (k PathKind) String() string {
	switch k {
	case PathFile:
		return "file"
	case PathDirectory:
		return "directory"
	case PathUnsupported:
		return "unsupported"
	default:
		return "not found"
	}
}

// ResolvePath strips the double quotes shells and file managers wrap
// around pasted paths and classifies what is left.
func ResolvePath(raw string) (string, PathKind, error) {
	path := strings.Trim(raw, `"`)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return path, PathNotFound, nil
		}
		return path, PathNotFound, fmt.Errorf("stat %s: %w", path, err)
	}

	switch {
	case info.IsDir():
		return path, PathDirectory, nil
	case info.Mode().IsRegular():
		return path, PathFile, nil
	default:
		return path, PathUnsupported, nil
	}
}
