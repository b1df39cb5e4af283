package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/itep-ai/router/model"
	"github.com/itep-ai/router/registry"
	"github.com/itep-ai/router/run"
)

// planSchemaJSON constrains the planner LLM output before it is mapped
// into typed tasks. Dependencies accept strings and numbers because models
// sometimes emit ordinals instead of ids.
const planSchemaJSON = `{
	"type": "object",
	"required": ["strategy", "tasks"],
	"properties": {
		"analysis": {"type": "string"},
		"strategy": {"type": "string"},
		"tasks": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["description", "worker_id"],
				"properties": {
					"description": {"type": "string", "minLength": 1},
					"worker_id": {"type": "string", "minLength": 1},
					"worker_name": {"type": "string"},
					"dependencies": {
						"type": ["array", "null"],
						"items": {"type": ["string", "number"]}
					},
					"rationale": {"type": "string"}
				}
			}
		}
	}
}`

var planSchema = mustCompileSchema("plan.json", planSchemaJSON)

func mustCompileSchema(name, src string) *jsonschema.Schema {
	var doc any
	if err := json.Unmarshal([]byte(src), &doc); err != nil {
		panic(err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		panic(err)
	}
	schema, err := c.Compile(name)
	if err != nil {
		panic(err)
	}
	return schema
}

// planPayload is the raw shape produced by the planning prompt.
type planPayload struct {
	Analysis string `json:"analysis"`
	Strategy string `json:"strategy"`
	Tasks    []struct {
		Description  string `json:"description"`
		WorkerID     string `json:"worker_id"`
		WorkerName   string `json:"worker_name"`
		Dependencies []any  `json:"dependencies"`
		Rationale    string `json:"rationale"`
	} `json:"tasks"`
}

// plan produces the next Plan for the run from the current registry
// snapshot. Any failure yields an empty plan whose analysis explains what
// went wrong; the executor then has nothing to run and the analyser decides
// whether to retry or surrender.
func (r *Router) plan(ctx context.Context, rc *run.Context) {
	workers, err := r.registry.ListWorkers(ctx)
	if err != nil {
		// The registry contract reports outages as empty lists; an error
		// here is unexpected but handled the same way.
		r.logger.Warn(ctx, "list workers", "run_id", rc.RunID, "error", err.Error())
		workers = nil
	}
	if len(workers) == 0 {
		rc.Plan = emptyPlan("no workers available to handle this request")
		r.logger.Warn(ctx, "planning with empty registry", "run_id", rc.RunID)
		return
	}

	text, err := r.complete(ctx, "planning", map[string]string{
		"request":        rc.OriginalRequest,
		"workers":        renderWorkers(workers),
		"replan_context": renderReplanContext(rc),
	})
	if err != nil {
		rc.Plan = emptyPlan(fmt.Sprintf("planning failed: %v", err))
		r.logger.Error(ctx, "planner LLM call", "run_id", rc.RunID, "error", err.Error())
		return
	}

	var raw any
	if err := model.DecodeJSON(text, &raw); err != nil {
		rc.Plan = emptyPlan(fmt.Sprintf("planning failed: %v", err))
		return
	}
	if err := planSchema.Validate(raw); err != nil {
		rc.Plan = emptyPlan(fmt.Sprintf("planning failed: plan does not match expected shape: %v", err))
		return
	}
	var payload planPayload
	if err := model.DecodeJSON(text, &payload); err != nil {
		rc.Plan = emptyPlan(fmt.Sprintf("planning failed: %v", err))
		return
	}

	plan := r.buildPlan(ctx, rc, payload, workers)
	if len(plan.Tasks) == 0 && plan.Analysis == "" {
		plan.Analysis = "no plannable tasks survived worker matching"
	}
	rc.Plan = plan
	r.logger.Info(ctx, "plan created",
		"run_id", rc.RunID, "strategy", string(plan.Strategy), "tasks", len(plan.Tasks))
}

// buildPlan assigns locally unique task ids, drops tasks whose worker is
// not in the registry snapshot, and resolves dependency references.
func (r *Router) buildPlan(ctx context.Context, rc *run.Context, payload planPayload, workers []registry.Card) *run.Plan {
	known := make(map[string]registry.Card, len(workers))
	for _, w := range workers {
		known[w.WorkerID] = w
	}

	// First pass: keep tasks with known workers and assign ids. The
	// ordinal position within the raw payload is remembered so dependency
	// references by ordinal can still be resolved after drops.
	tasks := make([]run.Task, 0, len(payload.Tasks))
	rawDeps := make([][]any, 0, len(payload.Tasks))
	ordinalToID := make(map[int]string, len(payload.Tasks))
	for i, pt := range payload.Tasks {
		card, ok := known[pt.WorkerID]
		if !ok {
			r.logger.Warn(ctx, "dropping task for unknown worker",
				"run_id", rc.RunID, "worker_id", pt.WorkerID, "description", pt.Description)
			continue
		}
		name := pt.WorkerName
		if name == "" {
			name = card.Name
		}
		t := run.Task{
			ID:          "task_" + uuid.NewString()[:8],
			Description: pt.Description,
			WorkerID:    pt.WorkerID,
			WorkerName:  name,
			Rationale:   pt.Rationale,
			Status:      run.TaskPending,
		}
		ordinalToID[i] = t.ID
		tasks = append(tasks, t)
		rawDeps = append(rawDeps, pt.Dependencies)
	}

	// Second pass: resolve dependency references against the assigned ids.
	ids := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		ids[t.ID] = struct{}{}
	}
	for i := range tasks {
		for _, ref := range rawDeps[i] {
			dep, ok := resolveDependency(ref, ids, ordinalToID, len(payload.Tasks))
			if !ok || dep == tasks[i].ID {
				r.logger.Warn(ctx, "dropping unresolvable dependency",
					"run_id", rc.RunID, "task_id", tasks[i].ID, "reference", fmt.Sprint(ref))
				continue
			}
			tasks[i].Dependencies = append(tasks[i].Dependencies, dep)
		}
	}

	strategy := run.Strategy(strings.ToLower(strings.TrimSpace(payload.Strategy)))
	if strategy != run.StrategyParallel && strategy != run.StrategySequential {
		strategy = run.StrategySequential
	}
	plan := &run.Plan{
		Strategy:  strategy,
		Analysis:  payload.Analysis,
		Tasks:     tasks,
		CreatedAt: time.Now().UTC(),
	}
	if !plan.Acyclic() {
		// A cyclic plan can never make progress. Strip the dependencies
		// and fall back to sequential order rather than discarding the
		// work entirely.
		r.logger.Warn(ctx, "plan has cyclic dependencies, stripping them", "run_id", rc.RunID)
		for i := range plan.Tasks {
			plan.Tasks[i].Dependencies = nil
		}
		plan.Strategy = run.StrategySequential
	}
	return plan
}

// resolveDependency maps one raw dependency reference to an assigned task
// id. References may be assigned ids, or task ordinals as numbers or
// numeric strings. Ordinals are interpreted one-based first, then
// zero-based.
func resolveDependency(ref any, ids map[string]struct{}, ordinalToID map[int]string, total int) (string, bool) {
	var n int
	switch v := ref.(type) {
	case string:
		s := strings.TrimSpace(v)
		if _, ok := ids[s]; ok {
			return s, true
		}
		parsed, err := strconv.Atoi(strings.TrimPrefix(s, "task_"))
		if err != nil {
			return "", false
		}
		n = parsed
	case float64:
		n = int(v)
	default:
		return "", false
	}
	if n >= 1 && n <= total {
		if id, ok := ordinalToID[n-1]; ok {
			return id, true
		}
	}
	if n >= 0 && n < total {
		if id, ok := ordinalToID[n]; ok {
			return id, true
		}
	}
	return "", false
}

func emptyPlan(analysis string) *run.Plan {
	return &run.Plan{
		Strategy:  run.StrategySequential,
		Analysis:  analysis,
		CreatedAt: time.Now().UTC(),
	}
}

// renderWorkers formats the registry snapshot for the planning prompt.
func renderWorkers(workers []registry.Card) string {
	var b strings.Builder
	for _, w := range workers {
		fmt.Fprintf(&b, "- id: %s\n  name: %s\n  description: %s\n", w.WorkerID, w.Name, w.Description)
		if len(w.Capabilities) > 0 {
			fmt.Fprintf(&b, "  capabilities: %s\n", strings.Join(w.Capabilities, ", "))
		}
		if len(w.Skills) > 0 {
			fmt.Fprintf(&b, "  skills: %s\n", strings.Join(w.Skills, ", "))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderReplanContext summarizes the previous attempt for a replan. Empty
// on the first planning cycle.
func renderReplanContext(rc *run.Context) string {
	if rc.ReplanCount == 0 && rc.ReplanReason == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nTHIS IS A REPLAN.\n")
	if rc.ReplanReason != "" {
		fmt.Fprintf(&b, "Reason for replanning: %s\n", rc.ReplanReason)
	}
	if len(rc.TaskResults) > 0 {
		b.WriteString("Previous attempt results:\n")
		b.WriteString(renderResults(rc.TaskResults))
		b.WriteString("\n")
	}
	b.WriteString("Plan only the remaining or corrective work; do not repeat tasks that already completed.\n")
	return b.String()
}
