package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FindRun locates a run directory by ID. An empty ID selects the latest run;
// otherwise an exact directory name wins, then a unique substring match.
// Ambiguous or unmatched IDs list candidates in the error.
func (w *Workspace) FindRun(runID string) (string, error) {
	runs, err := listRuns(w.RunsDir)
	if err != nil {
		return "", err
	}

	if runID == "" {
		if len(runs) == 0 {
			return "", fmt.Errorf("no runs found in %s", w.RunsDir)
		}
		return filepath.Join(w.RunsDir, runs[0]), nil
	}

	exact := filepath.Join(w.RunsDir, runID)
	if info, err := os.Stat(exact); err == nil && info.IsDir() {
		return exact, nil
	}

	var matches []string
	for _, name := range runs {
		if strings.Contains(name, runID) {
			matches = append(matches, name)
		}
	}
	switch len(matches) {
	case 1:
		return filepath.Join(w.RunsDir, matches[0]), nil
	case 0:
		msg := fmt.Sprintf("no run matching %q", runID)
		if len(runs) > 0 {
			msg += "; recent runs:\n  " + strings.Join(head(runs, 5), "\n  ")
		}
		return "", fmt.Errorf("%s", msg)
	default:
		return "", fmt.Errorf("%q matches multiple runs:\n  %s", runID,
			strings.Join(head(matches, 10), "\n  "))
	}
}

// listRuns returns run directory names, newest first. Timestamped names sort
// chronologically, so reverse lexicographic order is newest-first.
func listRuns(runsDir string) ([]string, error) {
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read runs dir: %w", err)
	}
	var runs []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			runs = append(runs, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(runs)))
	return runs, nil
}

func head(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[:n]
}
