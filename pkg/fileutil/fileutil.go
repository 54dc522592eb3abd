// Package fileutil resolves program file names the way users type them:
// an exact path first, then the same name with any letter case.
package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ResolvePath returns p when it names an existing file. Otherwise it looks
// for a file in the same directory whose name matches the base name of p
// ignoring case, so "Hello.BF" finds "hello.bf" on case-sensitive systems.
func ResolvePath(p string) (string, error) {
	info, err := os.Stat(p)
	if err == nil {
		if info.IsDir() {
			return "", fmt.Errorf("%s is a directory", p)
		}
		return p, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	found, ferr := FindFileCaseInsensitive(filepath.Dir(p), filepath.Base(p))
	if ferr != nil {
		return "", fmt.Errorf("%w: %s", fs.ErrNotExist, p)
	}
	return found, nil
}

// FindFileCaseInsensitive searches dir for a regular file named filename,
// ignoring case, and returns its path.
//
// Example:
//
//	path, err := FindFileCaseInsensitive("/path/to/dir", "Hello.BF")
//	// finds "hello.bf", "HELLO.BF", "Hello.bf", ...
func FindFileCaseInsensitive(dir, filename string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	if name, ok := matchEntry(entries, filename); ok {
		return filepath.Join(dir, name), nil
	}
	return "", fmt.Errorf("file not found: %s (searched in %s)", filename, dir)
}

// FindFileCaseInsensitiveFS is FindFileCaseInsensitive over fsys
// (an embed.FS, os.DirFS or fstest.MapFS). The result uses forward slashes.
func FindFileCaseInsensitiveFS(fsys fs.FS, dir, filename string) (string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	if name, ok := matchEntry(entries, filename); ok {
		return path.Join(dir, name), nil
	}
	return "", fmt.Errorf("file not found: %s (searched in %s)", filename, dir)
}

func matchEntry(entries []fs.DirEntry, filename string) (string, bool) {
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(entry.Name(), filename) {
			return entry.Name(), true
		}
	}
	return "", false
}
