package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/itep-ai/router/model"
	"github.com/itep-ai/router/run"
)

// analyze decides whether the accumulated results satisfy the request or
// another plan/execute cycle is needed. The replan budget is enforced
// deterministically before the LLM is consulted, and any LLM or parse
// failure reads as "sufficient" so partial results are presented instead
// of looping.
func (r *Router) analyze(ctx context.Context, rc *run.Context) {
	rc.NeedReplan = false
	rc.ReplanReason = ""
	if rc.ReplanCount >= rc.MaxReplans {
		r.logger.Info(ctx, "replan budget exhausted",
			"run_id", rc.RunID, "replan_count", rc.ReplanCount)
		return
	}

	text, err := r.complete(ctx, "analysis", map[string]string{
		"request":     rc.OriginalRequest,
		"results":     renderResults(rc.TaskResults),
		"attempt":     strconv.Itoa(rc.ReplanCount + 1),
		"max_replans": strconv.Itoa(rc.MaxReplans),
	})
	if err != nil {
		r.logger.Warn(ctx, "analyser LLM call failed, keeping results",
			"run_id", rc.RunID, "error", err.Error())
		return
	}
	var verdict struct {
		IsSufficient   bool   `json:"is_sufficient"`
		Reasoning      string `json:"reasoning"`
		ReplanStrategy string `json:"replan_strategy"`
	}
	if err := model.DecodeJSON(text, &verdict); err != nil {
		r.logger.Warn(ctx, "analyser output unparseable, keeping results",
			"run_id", rc.RunID, "error", err.Error())
		return
	}
	if verdict.IsSufficient || strings.TrimSpace(verdict.ReplanStrategy) == "" {
		r.logger.Debug(ctx, "results judged sufficient",
			"run_id", rc.RunID, "reasoning", verdict.Reasoning)
		return
	}
	rc.NeedReplan = true
	rc.ReplanReason = strings.TrimSpace(verdict.ReplanStrategy)
}

// renderResults formats task results for the analysis and aggregation
// prompts.
func renderResults(tasks []run.Task) string {
	if len(tasks) == 0 {
		return "(no tasks were executed)"
	}
	var b strings.Builder
	for _, t := range tasks {
		fmt.Fprintf(&b, "- [%s] %s (worker: %s)", t.Status, t.Description, t.WorkerName)
		switch t.Status {
		case run.TaskCompleted:
			fmt.Fprintf(&b, "\n  result: %s", t.Result)
		case run.TaskFailed:
			fmt.Fprintf(&b, "\n  error: %s", t.Error)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
