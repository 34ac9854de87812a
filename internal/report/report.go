// Package report renders a graded run into a markdown comparison report.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"skillbench/internal/grader"
)

// skillSetStats aggregates grades across scenarios for one skill set.
type skillSetStats struct {
	passed        int
	total         int
	scores        []int
	toolUsage     map[string]int
	skillsInvoked int
	skillsTotal   int
	hasSkillData  bool
}

func computeStats(results map[string]map[string]grader.Grade) map[string]*skillSetStats {
	stats := map[string]*skillSetStats{}
	for _, skillSets := range results {
		for name, g := range skillSets {
			s := stats[name]
			if s == nil {
				s = &skillSetStats{toolUsage: map[string]int{}}
				stats[name] = s
			}
			s.total++
			if g.Success != nil && *g.Success {
				s.passed++
			}
			if g.Score != nil {
				s.scores = append(s.scores, *g.Score)
			}
			if usage := strings.ToLower(g.ToolUsage); usage != "" {
				s.toolUsage[usage]++
			}
			if len(g.SkillsAvailable) > 0 {
				s.hasSkillData = true
				s.skillsTotal += len(g.SkillsAvailable)
				for _, skill := range g.SkillsAvailable {
					if contains(g.SkillsInvoked, skill) {
						s.skillsInvoked++
					}
				}
			}
		}
	}
	return stats
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

// Generate renders the markdown report for a run. Returns an error when the
// run has no grades yet.
func Generate(runDir string) (string, error) {
	grades, err := grader.LoadGrades(runDir)
	if err != nil {
		return "", err
	}
	if grades == nil || len(grades.Results) == 0 {
		return "", fmt.Errorf("no grades found in %s; grade the run first", runDir)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Eval Report: %s\n\n", filepath.Base(runDir))
	gradedAt := grades.GradedAt
	if gradedAt == "" {
		gradedAt = "Not yet"
	}
	fmt.Fprintf(&b, "Graded: %s\n", gradedAt)
	fmt.Fprintf(&b, "Grader: %s\n\n", grades.Grader)

	writeSummary(&b, grades.Results)
	writeByScenario(&b, grades.Results)
	return b.String(), nil
}

func writeSummary(b *strings.Builder, results map[string]map[string]grader.Grade) {
	b.WriteString("## Summary\n\n")
	b.WriteString("| Skill Set | Passed | Avg Score | Tool Usage | Skill Usage |\n")
	b.WriteString("|-----------|--------|-----------|------------|-------------|\n")

	stats := computeStats(results)
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		s := stats[name]
		pct := 0.0
		if s.total > 0 {
			pct = float64(s.passed) / float64(s.total) * 100
		}
		avg := 0.0
		if len(s.scores) > 0 {
			sum := 0
			for _, score := range s.scores {
				sum += score
			}
			avg = float64(sum) / float64(len(s.scores))
		}
		toolStr := fmt.Sprintf("%d✓ %d~ %d✗",
			s.toolUsage["appropriate"], s.toolUsage["partial"], s.toolUsage["inappropriate"])
		skillStr := "-"
		if s.hasSkillData && s.skillsTotal > 0 {
			skillPct := float64(s.skillsInvoked) / float64(s.skillsTotal) * 100
			skillStr = fmt.Sprintf("%.0f%% (%d/%d)", skillPct, s.skillsInvoked, s.skillsTotal)
		}
		fmt.Fprintf(b, "| %s | %d/%d (%.0f%%) | %.1f/5 | %s | %s |\n",
			name, s.passed, s.total, pct, avg, toolStr, skillStr)
	}
	b.WriteString("\n")
}

func writeByScenario(b *strings.Builder, results map[string]map[string]grader.Grade) {
	b.WriteString("## By Scenario\n\n")

	scenarios := make([]string, 0, len(results))
	for name := range results {
		scenarios = append(scenarios, name)
	}
	sort.Strings(scenarios)

	for _, scenarioName := range scenarios {
		fmt.Fprintf(b, "### %s\n\n", scenarioName)

		skillSets := results[scenarioName]
		names := make([]string, 0, len(skillSets))
		for name := range skillSets {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			g := skillSets[name]

			icon := "?"
			if g.Success != nil {
				if *g.Success {
					icon = "✓"
				} else {
					icon = "✗"
				}
			}
			line := fmt.Sprintf("- **%s**: %s", name, icon)
			if g.Score != nil {
				line += fmt.Sprintf(" (%d/5)", *g.Score)
			}
			if g.ToolUsage != "" {
				line += fmt.Sprintf(" [tools: %s]", g.ToolUsage)
			}
			if len(g.SkillsAvailable) > 0 {
				used := 0
				for _, skill := range g.SkillsAvailable {
					if contains(g.SkillsInvoked, skill) {
						used++
					}
				}
				skillPct := float64(used) / float64(len(g.SkillsAvailable)) * 100
				line += fmt.Sprintf(" [skills: %.0f%% (%d/%d)]", skillPct, used, len(g.SkillsAvailable))
			}
			if g.Notes != "" {
				line += " - " + g.Notes
			}
			b.WriteString(line + "\n")

			for _, skill := range g.SkillsAvailable {
				if contains(g.SkillsInvoked, skill) {
					fmt.Fprintf(b, "  - ✓ %s\n", skill)
				} else {
					fmt.Fprintf(b, "  - ✗ %s (not invoked)\n", skill)
				}
			}
		}
		b.WriteString("\n")
	}
}

// Save writes the report to reportsDir/<run-id>.md and returns the path.
func Save(runDir, reportsDir string) (string, error) {
	content, err := Generate(runDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(reportsDir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}
	path := filepath.Join(reportsDir, filepath.Base(runDir)+".md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
