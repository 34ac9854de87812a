package grader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AutoGrader grades task outputs by prompting an external model CLI.
type AutoGrader struct {
	// Command is the grader executable; "claude" when empty.
	Command string
}

const gradingInstructions = `You are grading the output of a coding agent run.

Respond with ONLY a JSON object in this exact shape:
{
  "success": true or false,
  "score": 1 to 5,
  "tool_usage": "appropriate" or "partial" or "inappropriate",
  "criteria": {"<criterion>": true or false, ...},
  "notes": "one or two sentences on the grade",
  "observations": "anything notable about how the agent worked"
}

Judge the output against the scenario description below. Score 5 means the
output fully solves the task; 1 means it made no useful progress.`

// BuildGradingPrompt assembles the grading prompt from the scenario
// definition and one task's recorded artifacts.
func BuildGradingPrompt(scenarioDir, outputDir string) (string, error) {
	output, err := os.ReadFile(filepath.Join(outputDir, "output.md"))
	if err != nil {
		return "", fmt.Errorf("read output: %w", err)
	}

	var b strings.Builder
	b.WriteString(gradingInstructions)
	b.WriteString("\n\n## Scenario\n\n")
	if desc, err := os.ReadFile(filepath.Join(scenarioDir, "scenario.md")); err == nil {
		b.Write(desc)
	}
	if prompt, err := os.ReadFile(filepath.Join(scenarioDir, "prompt.txt")); err == nil {
		b.WriteString("\n\n## Task Prompt\n\n")
		b.Write(prompt)
	}
	b.WriteString("\n\n## Agent Output\n\n")
	b.Write(output)
	if md, err := os.ReadFile(filepath.Join(outputDir, "metadata.yaml")); err == nil {
		b.WriteString("\n\n## Run Metadata\n\n```yaml\n")
		b.Write(md)
		b.WriteString("\n```\n")
	}
	if diff, err := os.ReadFile(filepath.Join(outputDir, "changes.diff")); err == nil {
		b.WriteString("\n\n## File Changes\n\n```diff\n")
		b.Write(diff)
		b.WriteString("\n```\n")
	}
	return b.String(), nil
}

// Call runs the grader model on a prompt and returns its raw response.
func (g *AutoGrader) Call(ctx context.Context, prompt string) (string, error) {
	command := g.Command
	if command == "" {
		command = "claude"
	}
	cmd := exec.CommandContext(ctx, command, "--print", "-p", prompt)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("call grader: %w", err)
	}
	return string(out), nil
}

// ParseGradeResponse extracts the JSON grade from a model response. The JSON
// may be bare or inside a fenced code block.
func ParseGradeResponse(response string) (Grade, error) {
	body := response
	if idx := strings.Index(body, "```"); idx >= 0 {
		body = body[idx+3:]
		body = strings.TrimPrefix(body, "json")
		if end := strings.Index(body, "```"); end >= 0 {
			body = body[:end]
		}
	}

	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return Grade{}, fmt.Errorf("no JSON object in grader response")
	}

	var grade Grade
	if err := json.Unmarshal([]byte(body[start:end+1]), &grade); err != nil {
		return Grade{}, fmt.Errorf("parse grader response: %w", err)
	}
	if grade.Criteria == nil {
		grade.Criteria = map[string]any{}
	}
	return grade, nil
}

// ComputeSkillUsage derives skill usage from a task's recorded metadata:
// which skills were available, which of those were invoked, and the
// percentage invoked. The percentage is nil when no skills were available.
func ComputeSkillUsage(metadataPath string) (available, invoked []string, pct *float64) {
	available = []string{}
	invoked = []string{}

	data, err := os.ReadFile(metadataPath)
	if err != nil {
		return available, invoked, nil
	}
	var md struct {
		SkillsAvailable []string `yaml:"skills_available"`
		SkillsInvoked   []string `yaml:"skills_invoked"`
	}
	if err := yaml.Unmarshal(data, &md); err != nil {
		return available, invoked, nil
	}

	available = append(available, md.SkillsAvailable...)
	seen := map[string]bool{}
	for _, s := range md.SkillsInvoked {
		if !seen[s] {
			seen[s] = true
			invoked = append(invoked, s)
		}
	}

	if len(available) == 0 {
		return available, invoked, nil
	}
	used := 0
	for _, s := range available {
		if seen[s] {
			used++
		}
	}
	p := float64(used) / float64(len(available)) * 100
	return available, invoked, &p
}

// ProgressFunc reports one graded task.
type ProgressFunc func(scenarioName, skillSetName string, grade Grade)

// AutoGradeRun grades every task in a run and writes grades.yaml with the
// grader recorded as "claude-auto". A task whose grading fails aborts the
// run; partial grades are not saved.
func (g *AutoGrader) AutoGradeRun(ctx context.Context, runDir, scenariosDir string, progress ProgressFunc) (*GradesFile, error) {
	pairs, err := TaskDirs(runDir)
	if err != nil {
		return nil, err
	}

	grades := &GradesFile{
		Grader:  "claude-auto",
		Results: map[string]map[string]Grade{},
	}
	for _, pair := range pairs {
		scenarioName, skillSetName := pair[0], pair[1]
		outputDir := filepath.Join(runDir, scenarioName, skillSetName)

		prompt, err := BuildGradingPrompt(filepath.Join(scenariosDir, scenarioName), outputDir)
		if err != nil {
			return nil, fmt.Errorf("grade %s/%s: %w", scenarioName, skillSetName, err)
		}
		response, err := g.Call(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("grade %s/%s: %w", scenarioName, skillSetName, err)
		}
		grade, err := ParseGradeResponse(response)
		if err != nil {
			return nil, fmt.Errorf("grade %s/%s: %w", scenarioName, skillSetName, err)
		}

		grade.SkillsAvailable, grade.SkillsInvoked, grade.SkillUsagePct =
			ComputeSkillUsage(filepath.Join(outputDir, "metadata.yaml"))

		if grades.Results[scenarioName] == nil {
			grades.Results[scenarioName] = map[string]Grade{}
		}
		grades.Results[scenarioName][skillSetName] = grade
		if progress != nil {
			progress(scenarioName, skillSetName, grade)
		}
	}

	if err := SaveGrades(runDir, grades); err != nil {
		return nil, err
	}
	return grades, nil
}
