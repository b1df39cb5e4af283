package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/itep-ai/router/run"
)

// aggregate synthesizes the final user-facing response from the task
// results. When the LLM is unavailable the fallback is a deterministic
// concatenation, and any run with failed tasks carries a footer with the
// failure counts.
func (r *Router) aggregate(ctx context.Context, rc *run.Context) {
	var total, completed, failed int
	for _, t := range rc.TaskResults {
		total++
		switch t.Status {
		case run.TaskCompleted:
			completed++
		case run.TaskFailed:
			failed++
		}
	}

	var final string
	if total == 0 {
		final = emptyRunArtifact(rc)
	} else {
		text, err := r.complete(ctx, "aggregation", map[string]string{
			"request":   rc.OriginalRequest,
			"total":     strconv.Itoa(total),
			"completed": strconv.Itoa(completed),
			"failed":    strconv.Itoa(failed),
			"results":   renderResults(rc.TaskResults),
		})
		if err != nil || strings.TrimSpace(text) == "" {
			if err != nil {
				r.logger.Warn(ctx, "aggregator LLM call failed, using fallback",
					"run_id", rc.RunID, "error", err.Error())
			}
			final = fallbackArtifact(rc.TaskResults)
		} else {
			final = strings.TrimSpace(text)
		}
	}
	if failed > 0 {
		final += fmt.Sprintf("\n\nNote: %d of %d tasks failed.", failed, total)
	}
	rc.FinalResponse = final
	rc.AppendMessage("assistant", final)
	r.logger.Info(ctx, "response aggregated",
		"run_id", rc.RunID, "tasks", total, "failed", failed)
}

// emptyRunArtifact explains a run in which no work was performed, using
// the plan analysis when it names the cause.
func emptyRunArtifact(rc *run.Context) string {
	reason := "no tasks were executed"
	if rc.Plan != nil && rc.Plan.Analysis != "" {
		reason = rc.Plan.Analysis
	}
	return fmt.Sprintf("No work was performed for this request: %s.", reason)
}

// fallbackArtifact concatenates per-task outcomes when synthesis is not
// possible.
func fallbackArtifact(tasks []run.Task) string {
	var b strings.Builder
	b.WriteString("Here is what was done for your request:\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "\n### %s\n", t.Description)
		switch t.Status {
		case run.TaskCompleted:
			b.WriteString(t.Result)
			b.WriteString("\n")
		case run.TaskFailed:
			fmt.Fprintf(&b, "This step failed: %s\n", t.Error)
		default:
			b.WriteString("This step was not executed.\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
