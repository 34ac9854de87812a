package runner

import (
	"context"
	"fmt"
	"sync"
)

// DefaultWorkers bounds concurrent tasks in RunParallel.
const DefaultWorkers = 4

// ProgressFunc is called exactly once per task, as it completes. Calls are
// serialized.
type ProgressFunc func(Task, RunResult)

// RunAll executes tasks one at a time, in order.
func (r *Runner) RunAll(ctx context.Context, tasks []Task, progress ProgressFunc) []RunResult {
	results := make([]RunResult, 0, len(tasks))
	for _, task := range tasks {
		res := r.runTask(ctx, task)
		if progress != nil {
			progress(task, res)
		}
		results = append(results, res)
	}
	return results
}

// RunParallel executes tasks with at most workers running concurrently.
// A panicking task is contained and reported as a failed RunResult; the
// returned slice always has one result per task, in task order.
func (r *Runner) RunParallel(ctx context.Context, tasks []Task, workers int, progress ProgressFunc) []RunResult {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	results := make([]RunResult, len(tasks))
	sem := make(chan struct{}, workers)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task Task) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res := r.runTask(ctx, task)

			mu.Lock()
			results[i] = res
			if progress != nil {
				progress(task, res)
			}
			mu.Unlock()
		}(i, task)
	}

	wg.Wait()
	return results
}

// runTask runs one task, converting a panic into a failed result so a bad
// task cannot take down the batch.
func (r *Runner) runTask(ctx context.Context, task Task) (res RunResult) {
	defer func() {
		if p := recover(); p != nil {
			res = RunResult{
				ScenarioName:  task.Scenario.Name,
				SkillSetName:  task.SkillSet.Name,
				Error:         fmt.Sprintf("unexpected error: %v", p),
				SkillsInvoked: []string{},
				ToolsUsed:     []string{},
			}
		}
	}()
	return r.RunScenario(ctx, task.Scenario, task.SkillSet, task.RunDir)
}
