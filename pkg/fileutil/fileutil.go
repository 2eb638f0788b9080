package fileutil

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// FindFileCaseInsensitive searches dir for a file whose name matches filename
// ignoring case. MIDI collections copied from other platforms often mix
// "SONG.MID" and "song.mid".
//
// The returned error wraps fs.ErrNotExist when no entry matches.
func FindFileCaseInsensitive(dir, filename string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	name, err := matchEntry(entries, filename)
	if err != nil {
		return "", fmt.Errorf("%w (searched in %s)", err, dir)
	}
	return filepath.Join(dir, name), nil
}

// FindFileCaseInsensitiveFS is FindFileCaseInsensitive for an fs.FS.
func FindFileCaseInsensitiveFS(fsys fs.FS, dir, filename string) (string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	name, err := matchEntry(entries, filename)
	if err != nil {
		return "", fmt.Errorf("%w (searched in %s)", err, dir)
	}
	return path.Join(dir, name), nil
}

func matchEntry(entries []fs.DirEntry, filename string) (string, error) {
	want := strings.ToLower(filename)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(entry.Name()) == want {
			return entry.Name(), nil
		}
	}
	return "", fmt.Errorf("file not found: %s: %w", filename, fs.ErrNotExist)
}

// FindByExt returns the names of the files in dir whose extension matches ext
// ignoring case, sorted by name.
func FindByExt(fsys FileSystem, dir, ext string) ([]string, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	ext = strings.ToLower(ext)
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(path.Ext(entry.Name())) == ext {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
