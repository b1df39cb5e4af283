package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/itep-ai/router/run"
	"github.com/itep-ai/router/worker"
)

// execute dispatches the current plan's tasks and merges the settled
// results into the run. Failures are contained at the task boundary; the
// run only fails early on cancellation.
func (r *Router) execute(ctx context.Context, rc *run.Context) {
	if rc.Plan == nil || len(rc.Plan.Tasks) == 0 {
		r.logger.Info(ctx, "nothing to execute", "run_id", rc.RunID)
		return
	}
	done := rc.ResultsByID()
	var settled []run.Task
	if rc.Plan.Strategy == run.StrategyParallel {
		settled = r.executeParallel(ctx, rc, done)
	} else {
		settled = r.executeSequential(ctx, rc, done)
	}
	rc.MergeResults(settled)
	for _, t := range settled {
		r.metrics.IncCounter("router.tasks", 1, "status", string(t.Status))
	}
}

// executeSequential runs tasks in plan order. Each task observes the
// settled state of every earlier task.
func (r *Router) executeSequential(ctx context.Context, rc *run.Context, done map[string]run.Task) []run.Task {
	var settled []run.Task
	for _, t := range rc.Plan.Tasks {
		if prior, ok := done[t.ID]; ok && prior.Status == run.TaskCompleted {
			continue
		}
		switch {
		case ctx.Err() != nil:
			t.Status = run.TaskFailed
			t.Error = "cancelled"
		case !run.DependenciesMet(t, done):
			t.Status = run.TaskFailed
			t.Error = "dependencies not met"
		default:
			t = r.dispatchTask(ctx, rc, t, done)
		}
		done[t.ID] = t
		settled = append(settled, t)
	}
	return settled
}

// executeParallel dispatches the ready frontier concurrently and waits for
// every dispatch to settle. The frontier is computed once per invocation;
// tasks unblocked by this round are picked up by a replan cycle. Tasks
// whose dependencies already failed settle immediately; tasks merely
// waiting on undispatched work stay pending.
func (r *Router) executeParallel(ctx context.Context, rc *run.Context, done map[string]run.Task) []run.Task {
	var frontier, blocked []run.Task
	for _, t := range rc.Plan.Tasks {
		if prior, ok := done[t.ID]; ok && prior.Status == run.TaskCompleted {
			continue
		}
		if run.DependenciesMet(t, done) {
			frontier = append(frontier, t)
		} else {
			blocked = append(blocked, t)
		}
	}
	r.logger.Debug(ctx, "dispatching frontier",
		"run_id", rc.RunID, "frontier", len(frontier), "blocked", len(blocked))

	results := make([]run.Task, len(frontier))
	var wg sync.WaitGroup
	for i, t := range frontier {
		wg.Add(1)
		go func(i int, t run.Task) {
			defer wg.Done()
			results[i] = r.dispatchTask(ctx, rc, t, done)
		}(i, t)
	}
	wg.Wait()

	settled := results
	settledByID := make(map[string]run.Task, len(settled))
	for _, t := range settled {
		settledByID[t.ID] = t
	}
	for _, t := range blocked {
		if failedDependency(t, done, settledByID) {
			t.Status = run.TaskFailed
			t.Error = "dependencies not met"
		}
		settled = append(settled, t)
	}
	return settled
}

// failedDependency reports whether any dependency of the task has settled
// as failed, making the task permanently unrunnable within this plan.
func failedDependency(t run.Task, done, settled map[string]run.Task) bool {
	for _, dep := range t.Dependencies {
		if d, ok := settled[dep]; ok && d.Status == run.TaskFailed {
			return true
		}
		if d, ok := done[dep]; ok && d.Status == run.TaskFailed {
			return true
		}
	}
	return false
}

// dispatchTask invokes the worker for one task under the per-task deadline
// and settles the task. It never panics and never returns an in-progress
// task.
func (r *Router) dispatchTask(ctx context.Context, rc *run.Context, t run.Task, done map[string]run.Task) (out run.Task) {
	out = t
	defer func() {
		if rec := recover(); rec != nil {
			out.Status = run.TaskFailed
			out.Result = ""
			out.Error = fmt.Sprintf("task panicked: %v", rec)
			r.logger.Error(ctx, "task dispatch panicked",
				"run_id", rc.RunID, "task_id", t.ID, "panic", fmt.Sprint(rec))
		}
	}()
	out.Status = run.TaskInProgress

	tctx, cancel := context.WithTimeout(ctx, r.taskTimeout)
	defer cancel()

	started := time.Now()
	text, err := r.worker.Invoke(tctx, worker.InvokeRequest{
		WorkerID: t.WorkerID,
		TaskID:   t.ID,
		ThreadID: rc.RunID,
		Text:     taskPayload(rc.OriginalRequest, t, done),
	})
	r.metrics.RecordTimer("router.task.duration", time.Since(started), "worker", t.WorkerID)
	if err != nil {
		out.Status = run.TaskFailed
		out.Error = classifyTaskError(ctx, err)
		r.logger.Warn(ctx, "task failed",
			"run_id", rc.RunID, "task_id", t.ID, "worker_id", t.WorkerID, "error", out.Error)
		return out
	}
	out.Status = run.TaskCompleted
	out.Result = text
	out.Error = ""
	r.logger.Debug(ctx, "task completed", "run_id", rc.RunID, "task_id", t.ID)
	return out
}

// classifyTaskError maps an invocation error to the task error string. A
// deadline on the task context reads as a timeout unless the whole run was
// cancelled.
func classifyTaskError(parent context.Context, err error) string {
	switch {
	case errors.Is(err, context.Canceled), parent.Err() != nil:
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "execution timed out"
	default:
		return err.Error()
	}
}

// taskPayload builds the textual payload sent to the worker: the original
// request, the task directive, and the results of direct dependencies.
func taskPayload(request string, t run.Task, done map[string]run.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original user request: %s\n\nYour specific task: %s\n", request, t.Description)
	var deps []run.Task
	for _, id := range t.Dependencies {
		if d, ok := done[id]; ok && d.Status == run.TaskCompleted && d.Result != "" {
			deps = append(deps, d)
		}
	}
	if len(deps) > 0 {
		b.WriteString("\nContext from completed prerequisite tasks:\n")
		for _, d := range deps {
			fmt.Fprintf(&b, "- %s:\n%s\n", d.Description, d.Result)
		}
	}
	return b.String()
}
