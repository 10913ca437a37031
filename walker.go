package velum

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// walkFiles returns the root-relative paths of all regular files under root.
// Dot-prefixed files and directories are not part of the sync set; this also
// keeps the engine's own trash folder out of it. Entries that vanish mid-walk
// are skipped, the next pass re-derives state anyway.
func walkFiles(fsys afero.Fs, root string) ([]string, error) {
	var paths []string
	err := afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if path == root {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	return paths, err
}

// walkDirs returns root plus every non-hidden directory under it, the set of
// paths a recursive change watch must register.
func walkDirs(fsys afero.Fs, root string) ([]string, error) {
	dirs := []string{root}
	err := afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil || path == root {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs, err
}
