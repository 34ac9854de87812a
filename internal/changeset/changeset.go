// Package changeset discovers the files an agent created or modified by
// structurally comparing the original context against the final state of an
// isolated environment.
package changeset

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Detect returns the relative paths of files in modifiedDir that are new or
// changed compared to originalDir, skipping names in exclude at any depth.
// A missing or empty originalDir reports every file in modifiedDir as new.
// A path that is a file in one tree and a directory in the other is an
// error.
func Detect(originalDir, modifiedDir string, exclude map[string]struct{}) ([]string, error) {
	if originalDir != "" {
		if _, err := os.Stat(originalDir); err == nil {
			return compareDirs(originalDir, modifiedDir, ".", exclude)
		}
	}
	return allFiles(modifiedDir, exclude)
}

func compareDirs(originalDir, modifiedDir, rel string, exclude map[string]struct{}) ([]string, error) {
	origEntries, err := readDirSet(filepath.Join(originalDir, rel))
	if err != nil {
		return nil, err
	}
	modEntries, err := readDirSet(filepath.Join(modifiedDir, rel))
	if err != nil {
		return nil, err
	}

	var changed []string
	names := make([]string, 0, len(modEntries))
	for name := range modEntries {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, skip := exclude[name]; skip {
			continue
		}
		modEntry := modEntries[name]
		relPath := filepath.Join(rel, name)
		origEntry, inOriginal := origEntries[name]

		if !inOriginal {
			// New path; a new directory reports every file beneath it.
			if modEntry.IsDir() {
				sub, err := filesUnder(modifiedDir, relPath, exclude)
				if err != nil {
					return nil, err
				}
				changed = append(changed, sub...)
			} else {
				changed = append(changed, relPath)
			}
			continue
		}

		if origEntry.IsDir() != modEntry.IsDir() {
			return nil, fmt.Errorf("path %s is a %s in the original and a %s in the environment",
				relPath, kind(origEntry), kind(modEntry))
		}

		if modEntry.IsDir() {
			sub, err := compareDirs(originalDir, modifiedDir, relPath, exclude)
			if err != nil {
				return nil, err
			}
			changed = append(changed, sub...)
			continue
		}

		differs, err := filesDiffer(filepath.Join(originalDir, relPath), filepath.Join(modifiedDir, relPath))
		if err != nil {
			return nil, err
		}
		if differs {
			changed = append(changed, relPath)
		}
	}
	return changed, nil
}

// filesDiffer compares two regular files, checking size before content so
// equal-size trees are not re-read unnecessarily.
func filesDiffer(a, b string) (bool, error) {
	infoA, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	if infoA.Size() != infoB.Size() {
		return true, nil
	}

	dataA, err := os.ReadFile(a)
	if err != nil {
		return false, err
	}
	dataB, err := os.ReadFile(b)
	if err != nil {
		return false, err
	}
	return !bytes.Equal(dataA, dataB), nil
}

func allFiles(dir string, exclude map[string]struct{}) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("modified dir: %w", err)
	}
	return filesUnder(dir, ".", exclude)
}

// filesUnder lists every file below root/rel, relative to root, honoring
// exclusions at each level.
func filesUnder(root, rel string, exclude map[string]struct{}) ([]string, error) {
	var files []string
	start := filepath.Join(root, rel)
	err := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if _, skip := exclude[d.Name()]; skip {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		files = append(files, relPath)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func readDirSet(dir string) (map[string]fs.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	set := make(map[string]fs.DirEntry, len(entries))
	for _, entry := range entries {
		set[entry.Name()] = entry
	}
	return set, nil
}

func kind(e fs.DirEntry) string {
	if e.IsDir() {
		return "directory"
	}
	return "file"
}
