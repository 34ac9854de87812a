// Package grader manages grades.yaml for a run: scaffolding it for human
// grading, and filling it in automatically via an external grader model.
package grader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Grade is the assessment of one (scenario, skill set) task. Nil pointer
// fields mean "not yet graded".
type Grade struct {
	Success   *bool          `yaml:"success" json:"success"`
	Score     *int           `yaml:"score" json:"score"`
	ToolUsage string         `yaml:"tool_usage,omitempty" json:"tool_usage,omitempty"`
	Criteria  map[string]any `yaml:"criteria" json:"criteria"`
	Notes     string         `yaml:"notes" json:"notes"`

	Observations string `yaml:"observations" json:"observations"`

	// Skill usage is computed from run metadata, never by the grader model.
	SkillsAvailable []string `yaml:"skills_available,omitempty" json:"skills_available,omitempty"`
	SkillsInvoked   []string `yaml:"skills_invoked,omitempty" json:"skills_invoked,omitempty"`
	SkillUsagePct   *float64 `yaml:"skill_usage_pct,omitempty" json:"skill_usage_pct,omitempty"`
}

// GradesFile is the full grades.yaml document for one run.
type GradesFile struct {
	GradedAt string                      `yaml:"graded_at"`
	Grader   string                      `yaml:"grader"`
	Results  map[string]map[string]Grade `yaml:"results"`
}

const gradesFileName = "grades.yaml"

// TaskDirs lists the (scenario, skill set) pairs present in a run directory,
// sorted. Hidden entries and plain files are skipped.
func TaskDirs(runDir string) ([][2]string, error) {
	scenarios, err := os.ReadDir(runDir)
	if err != nil {
		return nil, fmt.Errorf("read run dir: %w", err)
	}

	var pairs [][2]string
	for _, sc := range scenarios {
		if !sc.IsDir() || strings.HasPrefix(sc.Name(), ".") {
			continue
		}
		sets, err := os.ReadDir(filepath.Join(runDir, sc.Name()))
		if err != nil {
			return nil, fmt.Errorf("read scenario dir: %w", err)
		}
		for _, set := range sets {
			if !set.IsDir() || strings.HasPrefix(set.Name(), ".") {
				continue
			}
			pairs = append(pairs, [2]string{sc.Name(), set.Name()})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	return pairs, nil
}

// InitGradesFile scaffolds grades.yaml with an empty grade per task, for a
// human to fill in. An existing file is left untouched.
func InitGradesFile(runDir string) (string, error) {
	path := filepath.Join(runDir, gradesFileName)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	pairs, err := TaskDirs(runDir)
	if err != nil {
		return "", err
	}

	grades := &GradesFile{
		Grader:  "human",
		Results: map[string]map[string]Grade{},
	}
	for _, pair := range pairs {
		if grades.Results[pair[0]] == nil {
			grades.Results[pair[0]] = map[string]Grade{}
		}
		grades.Results[pair[0]][pair[1]] = Grade{Criteria: map[string]any{}}
	}

	if err := writeGrades(path, grades); err != nil {
		return "", err
	}
	return path, nil
}

// LoadGrades reads grades.yaml from a run directory. A missing file returns
// nil without error.
func LoadGrades(runDir string) (*GradesFile, error) {
	data, err := os.ReadFile(filepath.Join(runDir, gradesFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read grades: %w", err)
	}
	var grades GradesFile
	if err := yaml.Unmarshal(data, &grades); err != nil {
		return nil, fmt.Errorf("parse grades: %w", err)
	}
	return &grades, nil
}

// SaveGrades stamps the grading time and writes grades.yaml.
func SaveGrades(runDir string, grades *GradesFile) error {
	grades.GradedAt = time.Now().Format(time.RFC3339)
	return writeGrades(filepath.Join(runDir, gradesFileName), grades)
}

func writeGrades(path string, grades *GradesFile) error {
	data, err := yaml.Marshal(grades)
	if err != nil {
		return fmt.Errorf("marshal grades: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write grades: %w", err)
	}
	return nil
}
