// Package router implements the orchestration state machine that turns a
// natural-language request into a plan of worker tasks, executes the plan,
// and synthesizes a final response. The flow is validate, plan, approval,
// execute, analyze, with a bounded loop back to planning when results are
// judged insufficient, then aggregate.
//
// The run context is persisted at every phase boundary so interactive runs
// can suspend at the approval gate and resume from the store.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/itep-ai/router/model"
	"github.com/itep-ai/router/prompt"
	"github.com/itep-ai/router/registry"
	"github.com/itep-ai/router/run"
	"github.com/itep-ai/router/telemetry"
	"github.com/itep-ai/router/worker"
)

// Default scope description used by the validator when the deployment does
// not override it.
const (
	defaultScope = `- Code review, static analysis and syntax validation
- Fixing code quality and SonarQube violations
- CI/CD pipeline diagnostics and build failures
- Test generation and coverage analysis
- Infrastructure provisioning and deployment tasks
- Documentation generation for code and APIs`

	defaultOutOfScope = `- General conversation and chit-chat
- Weather, news, sports or current events
- Personal, medical, legal or financial advice
- Topics unrelated to software engineering`
)

type (
	// Options configures a Router.
	Options struct {
		// Model invokes the LLM for the validate, plan, analyze and
		// aggregate phases. Required.
		Model model.Client
		// Registry enumerates available workers. Required.
		Registry registry.Client
		// Worker dispatches tasks to remote workers. Required.
		Worker worker.Caller
		// Store persists run state across phase boundaries. Required.
		Store run.Store
		// Prompts overrides the embedded prompt catalog.
		Prompts *prompt.Catalog
		// Logger defaults to the clue-backed logger.
		Logger telemetry.Logger
		// Metrics defaults to no-op.
		Metrics telemetry.Metrics
		// Scope and OutOfScope describe the platform domain for the
		// validator. Defaults cover the IT engineering platform.
		Scope      string
		OutOfScope string
		// MaxReplans is the default replan budget for new runs. Default 2.
		MaxReplans int
		// TaskTimeout bounds each worker invocation. Default 300s.
		TaskTimeout time.Duration
		// LLMTimeout bounds each model call. Default 60s.
		LLMTimeout time.Duration
		// RunDeadline bounds a whole driver cycle. Zero disables it.
		RunDeadline time.Duration
	}

	// Router drives runs through the orchestration state machine.
	Router struct {
		model       model.Client
		registry    registry.Client
		worker      worker.Caller
		store       run.Store
		prompts     *prompt.Catalog
		logger      telemetry.Logger
		metrics     telemetry.Metrics
		scope       string
		outOfScope  string
		maxReplans  int
		taskTimeout time.Duration
		llmTimeout  time.Duration
		runDeadline time.Duration
	}

	// StartRequest is an inbound orchestration request. The last message is
	// the current user prompt.
	StartRequest struct {
		Messages []run.Message
		Mode     run.Mode
		// MaxReplans overrides the router default when non-nil.
		MaxReplans *int
	}

	// Result is the outcome of driving a run as far as it can go. When
	// Suspended is true the run is awaiting an approval answer and must be
	// resumed with Resume.
	Result struct {
		RunID             string       `json:"run_id"`
		Status            run.Status   `json:"status"`
		FinalResponse     string       `json:"final_response,omitempty"`
		AgentsUsed        []string     `json:"agents_used,omitempty"`
		ExecutionStrategy run.Strategy `json:"execution_strategy,omitempty"`
		Suspended         bool         `json:"suspended,omitempty"`
		ApprovalRequest   string       `json:"approval_request,omitempty"`
	}
)

// ErrRunNotSuspended is returned by Resume when the run is not awaiting an
// approval answer.
var ErrRunNotSuspended = errors.New("router: run is not awaiting approval")

// New constructs a Router.
func New(opts Options) (*Router, error) {
	if opts.Model == nil {
		return nil, errors.New("router: model client is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("router: registry client is required")
	}
	if opts.Worker == nil {
		return nil, errors.New("router: worker caller is required")
	}
	if opts.Store == nil {
		return nil, errors.New("router: run store is required")
	}
	r := &Router{
		model:       opts.Model,
		registry:    opts.Registry,
		worker:      opts.Worker,
		store:       opts.Store,
		prompts:     opts.Prompts,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		scope:       opts.Scope,
		outOfScope:  opts.OutOfScope,
		maxReplans:  opts.MaxReplans,
		taskTimeout: opts.TaskTimeout,
		llmTimeout:  opts.LLMTimeout,
		runDeadline: opts.RunDeadline,
	}
	if r.prompts == nil {
		r.prompts = prompt.MustDefault()
	}
	if r.logger == nil {
		r.logger = telemetry.NewClueLogger()
	}
	if r.metrics == nil {
		r.metrics = telemetry.NoopMetrics{}
	}
	if r.scope == "" {
		r.scope = defaultScope
	}
	if r.outOfScope == "" {
		r.outOfScope = defaultOutOfScope
	}
	if r.maxReplans == 0 {
		r.maxReplans = 2
	}
	if r.maxReplans < 0 {
		r.maxReplans = 0
	}
	if r.taskTimeout <= 0 {
		r.taskTimeout = 300 * time.Second
	}
	if r.llmTimeout <= 0 {
		r.llmTimeout = 60 * time.Second
	}
	return r, nil
}

// Start creates a run for the request and drives it until it finishes or
// suspends at the approval gate.
func (r *Router) Start(ctx context.Context, req StartRequest) (*Result, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("router: at least one message is required")
	}
	request := req.Messages[len(req.Messages)-1].Content
	if request == "" {
		return nil, errors.New("router: last message has no content")
	}
	maxReplans := r.maxReplans
	if req.MaxReplans != nil {
		maxReplans = *req.MaxReplans
		if maxReplans < 0 {
			maxReplans = 0
		}
	}
	rc := run.New(request, req.Mode, maxReplans)
	if len(req.Messages) > 1 {
		rc.Messages = append([]run.Message(nil), req.Messages...)
	}
	r.logger.Info(ctx, "run started",
		"run_id", rc.RunID, "mode", string(rc.Mode), "max_replans", rc.MaxReplans)
	return r.drive(ctx, rc)
}

// Resume continues a run suspended at the approval gate. The answer is
// interpreted as approval, rejection, or a free-text modification request.
func (r *Router) Resume(ctx context.Context, runID, answer string) (*Result, error) {
	rc, err := r.store.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	if rc.Terminal() {
		return r.result(rc), nil
	}
	if rc.Status != run.StatusAwaitingApproval {
		return nil, fmt.Errorf("%w: run %s has status %s", ErrRunNotSuspended, runID, rc.Status)
	}
	rc.AppendMessage("user", answer)
	switch decision, reason := interpretAnswer(answer); decision {
	case decisionApprove:
		rc.Status = run.StatusExecuting
		r.logger.Info(ctx, "plan approved", "run_id", rc.RunID)
	default:
		// Rejection and modification both return to planning with the
		// reason carried as replan context, bounded by the replan budget.
		rc.ReplanReason = reason
		if rc.ReplanCount >= rc.MaxReplans {
			r.logger.Warn(ctx, "replan budget exhausted at approval gate",
				"run_id", rc.RunID, "replan_count", rc.ReplanCount)
			rc.Status = run.StatusAnalyzed
		} else {
			rc.ReplanCount++
			rc.Status = run.StatusValidated
			r.logger.Info(ctx, "plan sent back for replanning",
				"run_id", rc.RunID, "reason", reason, "replan_count", rc.ReplanCount)
		}
	}
	return r.drive(ctx, rc)
}

// Load returns the stored state of a run.
func (r *Router) Load(ctx context.Context, runID string) (*run.Context, error) {
	return r.store.Load(ctx, runID)
}

// drive advances the run one phase at a time until it reaches a terminal
// status or suspends. The run context is persisted at every phase boundary.
func (r *Router) drive(ctx context.Context, rc *run.Context) (*Result, error) {
	if r.runDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.runDeadline)
		defer cancel()
	}
	started := time.Now()
	for !rc.Terminal() {
		if err := ctx.Err(); err != nil {
			return r.fail(ctx, rc, "run cancelled"), nil
		}
		switch rc.Status {
		case run.StatusPending:
			r.validate(ctx, rc)

		case run.StatusValidated:
			r.plan(ctx, rc)
			rc.Status = run.StatusPlanned

		case run.StatusPlanned:
			if suspended := r.approve(ctx, rc); suspended {
				if err := r.save(ctx, rc); err != nil {
					// Interactive resume depends on the snapshot; without it
					// the run cannot continue.
					r.fail(ctx, rc, "run state could not be persisted")
					return nil, fmt.Errorf("router: persist suspended run %s: %w", rc.RunID, err)
				}
				return r.result(rc), nil
			}

		case run.StatusAwaitingApproval:
			// Reachable when a stored run is driven again without an
			// answer; suspend again.
			return r.result(rc), nil

		case run.StatusExecuting:
			r.execute(ctx, rc)
			if err := ctx.Err(); err != nil {
				return r.fail(ctx, rc, "run cancelled"), nil
			}
			r.saveQuiet(ctx, rc)
			r.analyze(ctx, rc)
			if rc.NeedReplan && rc.ReplanCount < rc.MaxReplans {
				rc.ReplanCount++
				rc.NeedReplan = false
				rc.Status = run.StatusValidated
				r.logger.Info(ctx, "replanning",
					"run_id", rc.RunID, "reason", rc.ReplanReason, "replan_count", rc.ReplanCount)
			} else {
				rc.NeedReplan = false
				rc.Status = run.StatusAnalyzed
			}

		case run.StatusAnalyzed:
			r.aggregate(ctx, rc)
			rc.Status = run.StatusAggregated

		case run.StatusAggregated:
			rc.Status = run.StatusDone

		default:
			r.fail(ctx, rc, fmt.Sprintf("run entered unknown status %q", rc.Status))
			return nil, fmt.Errorf("router: run %s entered unknown status %q", rc.RunID, rc.Status)
		}
		rc.UpdatedAt = time.Now().UTC()
		r.saveQuiet(ctx, rc)
	}
	r.metrics.IncCounter("router.runs", 1, "status", string(rc.Status))
	r.metrics.RecordTimer("router.run.duration", time.Since(started), "status", string(rc.Status))
	r.logger.Info(ctx, "run finished",
		"run_id", rc.RunID, "status", string(rc.Status), "replan_count", rc.ReplanCount)
	return r.result(rc), nil
}

// fail freezes the run as failed with the given reason as its final
// response.
func (r *Router) fail(ctx context.Context, rc *run.Context, reason string) *Result {
	rc.Status = run.StatusFailed
	if rc.FinalResponse == "" {
		rc.FinalResponse = reason
	}
	rc.UpdatedAt = time.Now().UTC()
	// Persist with a fresh context since the run context is likely
	// cancelled.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	r.saveQuiet(saveCtx, rc)
	r.metrics.IncCounter("router.runs", 1, "status", string(rc.Status))
	r.logger.Warn(ctx, "run failed", "run_id", rc.RunID, "reason", reason)
	return r.result(rc)
}

func (r *Router) result(rc *run.Context) *Result {
	res := &Result{
		RunID:         rc.RunID,
		Status:        rc.Status,
		FinalResponse: rc.FinalResponse,
		AgentsUsed:    rc.AgentsUsed(),
	}
	if rc.Plan != nil {
		res.ExecutionStrategy = rc.Plan.Strategy
	}
	if rc.Status == run.StatusAwaitingApproval {
		res.Suspended = true
		for i := len(rc.Messages) - 1; i >= 0; i-- {
			if rc.Messages[i].Role == "assistant" {
				res.ApprovalRequest = rc.Messages[i].Content
				break
			}
		}
	}
	return res
}

func (r *Router) save(ctx context.Context, rc *run.Context) error {
	return r.store.Save(ctx, rc)
}

// saveQuiet persists the run and logs instead of failing; the in-memory
// state remains authoritative for the rest of the driver cycle.
func (r *Router) saveQuiet(ctx context.Context, rc *run.Context) {
	if err := r.store.Save(ctx, rc); err != nil {
		r.logger.Error(ctx, "persist run state", "run_id", rc.RunID, "error", err.Error())
	}
}

// complete renders the named prompt with vars and invokes the model with
// the prompt's system message and temperature, bounded by the LLM timeout.
func (r *Router) complete(ctx context.Context, name string, vars map[string]string) (string, error) {
	user, err := r.prompts.Render(name, vars)
	if err != nil {
		return "", err
	}
	cctx, cancel := context.WithTimeout(ctx, r.llmTimeout)
	defer cancel()
	started := time.Now()
	resp, err := r.model.Complete(cctx, model.Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: r.prompts.System(name)},
			{Role: model.RoleUser, Content: user},
		},
		Temperature: r.prompts.Temperature(name),
	})
	r.metrics.RecordTimer("router.llm.duration", time.Since(started), "prompt", name)
	if err != nil {
		r.metrics.IncCounter("router.llm.errors", 1, "prompt", name)
		return "", err
	}
	return resp.Text, nil
}
