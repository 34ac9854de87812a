package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"skillbench/internal/agent"
	"skillbench/internal/grader"
	"skillbench/internal/notify"
	"skillbench/internal/report"
	"skillbench/internal/runner"
	"skillbench/internal/scenario"
	"skillbench/internal/workspace"
)

const appName = "skillbench"

func main() {
	flag.String("workspace", "", "Path to evals workspace root (default: current directory)")
	flag.Bool("verbose", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s: A/B test skill variations against recorded scenarios\n\n", appName)
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [command] [flags]\n\n", appName)
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  run     Run scenarios against skill sets")
		fmt.Fprintln(os.Stderr, "  grade   Grade outputs from a run")
		fmt.Fprintln(os.Stderr, "  report  Generate a comparison report for a run")
		fmt.Fprintln(os.Stderr, "  review  Open HTML transcripts for review")
		fmt.Fprintln(os.Stderr, "  help    Show this help")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}

	workspacePath, verbose, remaining, err := extractGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	args := remaining
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		flag.Usage()
		return
	}

	switch args[0] {
	case "run":
		if err := runRun(args[1:], workspacePath, log); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "grade":
		if err := runGrade(args[1:], workspacePath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "report":
		if err := runReport(args[1:], workspacePath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "review":
		if err := runReview(args[1:], workspacePath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
}

func extractGlobalFlags(args []string) (string, bool, []string, error) {
	var workspacePath string
	var verbose bool
	remaining := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--workspace":
			if i+1 >= len(args) {
				return "", false, nil, fmt.Errorf("--workspace requires a value")
			}
			workspacePath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--workspace="):
			workspacePath = strings.TrimPrefix(arg, "--workspace=")
		case arg == "--verbose":
			verbose = true
		default:
			remaining = append(remaining, arg)
		}
	}
	return workspacePath, verbose, remaining, nil
}

func resolveWorkspace(workspacePath string) (*workspace.Workspace, error) {
	if strings.TrimSpace(workspacePath) == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		workspacePath = cwd
	}
	ws, err := workspace.Resolve(workspacePath)
	if err != nil {
		return nil, err
	}
	if err := ws.EnsureDirs(); err != nil {
		return nil, err
	}
	return ws, nil
}

func runRun(args []string, workspacePath string, log *slog.Logger) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	allScenarios := fs.Bool("all", false, "Run all scenarios")
	parallel := fs.Bool("parallel", false, "Run tasks in parallel")
	workers := fs.Int("workers", runner.DefaultWorkers, "Number of parallel workers")
	agentName := fs.String("agent", "claude", "Agent to run (claude or mock)")
	timeout := fs.Duration("timeout", agent.DefaultTimeout, "Total runtime budget per task")
	stallTimeout := fs.Duration("stall-timeout", agent.DefaultStallTimeout, "Kill a task after this long without output")
	notifyFlag := fs.Bool("notify", false, "Send a system notification when the run finishes")

	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}

	scenarios, err := selectScenarios(ws, fs.Arg(0), *allScenarios)
	if err != nil {
		return err
	}

	var ag agent.Agent
	switch *agentName {
	case "claude":
		ag = &agent.ClaudeAgent{}
	case "mock":
		ag = &agent.MockAgent{}
	default:
		return fmt.Errorf("unknown agent: %s", *agentName)
	}

	r := runner.New(ws, ag, log)
	r.Timeout = *timeout
	r.StallTimeout = *stallTimeout

	runDir, err := r.CreateRunDir()
	if err != nil {
		return err
	}
	fmt.Printf("Run directory: %s\n", runDir)

	var tasks []runner.Task
	for _, s := range scenarios {
		for _, set := range s.SkillSets {
			tasks = append(tasks, runner.Task{Scenario: s, SkillSet: set, RunDir: runDir})
		}
	}

	ctx := context.Background()
	total := len(tasks)
	completed, passed, failed := 0, 0, 0
	progress := func(task runner.Task, res runner.RunResult) {
		completed++
		icon := "✓"
		if res.Success {
			passed++
		} else {
			failed++
			icon = "✗"
		}
		fmt.Printf("  [%d/%d] %s/%s %s\n", completed, total, task.Scenario.Name, task.SkillSet.Name, icon)
		if !res.Success && res.Error != "" {
			fmt.Printf("        %s\n", res.Error)
		}
	}

	if *parallel {
		fmt.Printf("\nRunning %d tasks with %d workers...\n\n", total, *workers)
		r.RunParallel(ctx, tasks, *workers, progress)
	} else {
		fmt.Printf("\nRunning %d tasks...\n\n", total)
		r.RunAll(ctx, tasks, progress)
	}

	fmt.Printf("\nRun complete: %d passed, %d failed\n", passed, failed)
	fmt.Printf("Next: %s grade %s\n", appName, filepath.Base(runDir))

	if *notifyFlag {
		n := &notify.Notifier{Enabled: true}
		title, message := notify.FormatRunComplete(filepath.Base(runDir), passed, failed)
		if err := n.Send(title, message); err != nil {
			log.Warn("notification failed", "error", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", failed, total)
	}
	return nil
}

func selectScenarios(ws *workspace.Workspace, name string, all bool) ([]*scenario.Scenario, error) {
	if all {
		scenarios, err := scenario.LoadFromDir(ws.ScenariosDir)
		if err != nil {
			return nil, err
		}
		if len(scenarios) == 0 {
			return nil, fmt.Errorf("no scenarios found in %s", ws.ScenariosDir)
		}
		return scenarios, nil
	}
	if name == "" {
		return nil, fmt.Errorf("specify a scenario name or use --all")
	}
	s, err := scenario.Load(filepath.Join(ws.ScenariosDir, name))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", name, err)
	}
	return []*scenario.Scenario{s}, nil
}

func runGrade(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("grade", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	auto := fs.Bool("auto", false, "Auto-grade using the grader model")
	graderCmd := fs.String("grader-cmd", "", "Grader model command (default: claude)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}
	runDir, err := ws.FindRun(fs.Arg(0))
	if err != nil {
		return err
	}
	runID := filepath.Base(runDir)

	if *auto {
		fmt.Printf("Auto-grading run: %s\n\n", runID)

		g := &grader.AutoGrader{Command: *graderCmd}
		pairs, err := grader.TaskDirs(runDir)
		if err != nil {
			return err
		}
		total := len(pairs)
		current := 0
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(total+1)*5*time.Minute)
		defer cancel()

		_, err = g.AutoGradeRun(ctx, runDir, ws.ScenariosDir, func(scenarioName, skillSetName string, grade grader.Grade) {
			current++
			icon := "?"
			if grade.Success != nil {
				if *grade.Success {
					icon = "✓"
				} else {
					icon = "✗"
				}
			}
			score := "?"
			if grade.Score != nil {
				score = fmt.Sprintf("%d", *grade.Score)
			}
			fmt.Printf("  [%d/%d] %s/%s %s (score: %s)\n", current, total, scenarioName, skillSetName, icon, score)
		})
		if err != nil {
			return err
		}

		fmt.Printf("\nGrades saved to: %s\n", filepath.Join(runDir, "grades.yaml"))
		fmt.Printf("Run: %s report %s\n", appName, runID)
		return nil
	}

	gradesFile, err := grader.InitGradesFile(runDir)
	if err != nil {
		return err
	}
	fmt.Printf("Grades file: %s\n\nOutputs to review:\n", gradesFile)

	pairs, err := grader.TaskDirs(runDir)
	if err != nil {
		return err
	}
	lastScenario := ""
	for _, pair := range pairs {
		if pair[0] != lastScenario {
			fmt.Printf("\n  %s/\n", pair[0])
			lastScenario = pair[0]
		}
		fmt.Printf("    %s/output.md\n", pair[1])
	}
	fmt.Printf("\nEdit %s to record your grades.\n", gradesFile)
	fmt.Printf("Then run: %s report %s\n", appName, runID)
	return nil
}

func runReport(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}
	runDir, err := ws.FindRun(fs.Arg(0))
	if err != nil {
		return err
	}

	path, err := report.Save(runDir, ws.ReportsDir)
	if err != nil {
		return err
	}

	content, err := report.Generate(runDir)
	if err != nil {
		return err
	}
	fmt.Println(content)
	fmt.Printf("Saved to: %s\n", path)
	return nil
}

func runReview(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("review", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}
	runDir, err := ws.FindRun(fs.Arg(0))
	if err != nil {
		return err
	}

	transcripts, err := filepath.Glob(filepath.Join(runDir, "*", "*", "transcript", "index.html"))
	if err != nil {
		return err
	}
	if len(transcripts) == 0 {
		return fmt.Errorf("no transcripts found in %s", runDir)
	}
	sort.Strings(transcripts)

	fmt.Printf("Opening %d transcript(s)...\n", len(transcripts))
	for _, t := range transcripts {
		rel, err := filepath.Rel(runDir, t)
		if err != nil {
			rel = t
		}
		fmt.Printf("  %s\n", rel)
		if err := openBrowser("file://" + t); err != nil {
			return fmt.Errorf("open %s: %w", t, err)
		}
	}
	return nil
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
