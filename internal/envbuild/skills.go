package envbuild

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const fetchTimeout = 30 * time.Second

var httpClient = &http.Client{Timeout: fetchTimeout}

// IsURL reports whether a skill reference is an HTTP(S) URL rather than a
// local path.
func IsURL(ref string) bool {
	parsed, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}

// NormalizeGitHubURL converts a GitHub blob URL to its raw-content form.
//
//	https://github.com/org/repo/blob/main/path/SKILL.md
//	-> https://raw.githubusercontent.com/org/repo/main/path/SKILL.md
//
// Non-GitHub URLs and non-blob GitHub URLs are returned unchanged.
func NormalizeGitHubURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host != "github.com" {
		return rawURL
	}
	parts := strings.Split(parsed.Path, "/")
	// Blob path shape: "", org, repo, "blob", ref, rest...
	if len(parts) >= 5 && parts[3] == "blob" {
		newPath := strings.Join(append(parts[:3], parts[4:]...), "/")
		return "https://raw.githubusercontent.com" + newPath
	}
	return rawURL
}

// FolderNameForURL derives the local folder a downloaded skill is stored
// under. The folder name is the path segment preceding the skill file; a
// skill at the root of a GitHub repository uses the repository name, and a
// root-level skill on any other host uses the hostname with dots replaced
// by dashes.
func FolderNameForURL(downloadURL string) string {
	parsed, err := url.Parse(downloadURL)
	if err != nil {
		return "downloaded-skill"
	}
	path := strings.TrimRight(parsed.Path, "/")

	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}

	if parsed.Host == "raw.githubusercontent.com" {
		// Raw URL shape: org/repo/ref/[path/to/skill/]SKILL.md. Four or
		// fewer segments means the skill sits at the repo root.
		if len(parts) <= 4 {
			if len(parts) >= 2 {
				return parts[1]
			}
			return "downloaded-skill"
		}
		return parts[len(parts)-2]
	}
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return strings.ReplaceAll(parsed.Host, ".", "-")
}

// downloadSkill fetches a remote SKILL.md into skillsDir under its derived
// folder name.
func downloadSkill(rawURL, skillsDir string) error {
	downloadURL := NormalizeGitHubURL(rawURL)
	dest := filepath.Join(skillsDir, FolderNameForURL(downloadURL), "SKILL.md")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create skill dir: %w", err)
	}

	resp, err := httpClient.Get(downloadURL)
	if err != nil {
		return fmt.Errorf("download skill from %s: %w", downloadURL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download skill from %s: status %s", downloadURL, resp.Status)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("download skill from %s: %w", downloadURL, err)
	}
	if err := os.WriteFile(dest, content, 0o644); err != nil {
		return fmt.Errorf("write skill: %w", err)
	}
	return nil
}

// copyLocalSkill copies a skill referenced by a repo-relative path. A folder
// reference copies the whole folder; a file reference is placed as SKILL.md
// under a folder named after its parent directory. Missing sources are
// skipped.
func copyLocalSkill(repoDir, skillPath, skillsDir string) error {
	src := filepath.Join(repoDir, skillPath)
	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat skill %s: %w", skillPath, err)
	}

	if info.IsDir() {
		return copyTree(src, filepath.Join(skillsDir, filepath.Base(src)))
	}
	dest := filepath.Join(skillsDir, filepath.Base(filepath.Dir(src)), "SKILL.md")
	return copyFile(src, dest)
}
