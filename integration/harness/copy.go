package harness

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

// CopyFixture copies a fixture tree into dst, creating dst as needed.
// Symlinks in fixtures are rejected.
func CopyFixture(t *testing.T, src, dst string) {
	t.Helper()
	if err := copyFixtureTree(src, dst); err != nil {
		t.Fatalf("copy fixture %s: %v", src, err)
	}
}

func copyFixtureTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("fixture %s is not a directory", src)
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return fmt.Errorf("fixture contains a symlink: %s", path)
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		fileInfo, err := d.Info()
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, fileInfo.Mode())
	})
}
