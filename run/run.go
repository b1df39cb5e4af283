// Package run defines the state carried by a single router run: the run
// context, the typed plan DAG, and the per-task execution records. The
// router driver is the only writer; stores persist and restore snapshots
// across suspend/resume points.
package run

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Mode selects how much human involvement a run requires before executing
// a plan.
type Mode string

const (
	// ModeAuto executes plans without approval.
	ModeAuto Mode = "auto"
	// ModeInteractive suspends the run until an external caller approves,
	// rejects, or amends the plan.
	ModeInteractive Mode = "interactive"
	// ModeReview renders the plan into the message log and auto-approves.
	ModeReview Mode = "review"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending          Status = "pending"
	StatusValidated        Status = "validated"
	StatusRejected         Status = "rejected"
	StatusPlanned          Status = "planned"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusExecuting        Status = "executing"
	StatusAnalyzed         Status = "analyzed"
	StatusAggregated       Status = "aggregated"
	StatusDone             Status = "done"
	StatusFailed           Status = "failed"
)

// TaskStatus is the lifecycle state of a single task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Strategy selects how the executor dispatches the tasks of a plan.
type Strategy string

const (
	// StrategyParallel dispatches the ready frontier concurrently.
	StrategyParallel Strategy = "parallel"
	// StrategySequential dispatches tasks one at a time in plan order.
	StrategySequential Strategy = "sequential"
)

type (
	// Task is a single unit of work targeted at one worker. Result is set
	// iff the task completed; Error is set iff it failed.
	Task struct {
		ID           string     `json:"task_id" bson:"task_id"`
		Description  string     `json:"description" bson:"description"`
		WorkerID     string     `json:"worker_id" bson:"worker_id"`
		WorkerName   string     `json:"worker_name" bson:"worker_name"`
		Dependencies []string   `json:"dependencies,omitempty" bson:"dependencies,omitempty"`
		Rationale    string     `json:"rationale,omitempty" bson:"rationale,omitempty"`
		Status       TaskStatus `json:"status" bson:"status"`
		Result       string     `json:"result,omitempty" bson:"result,omitempty"`
		Error        string     `json:"error,omitempty" bson:"error,omitempty"`
	}

	// Plan is the immutable task DAG produced by one planner invocation.
	// Replanning creates a new Plan rather than mutating the old one.
	Plan struct {
		Strategy  Strategy  `json:"strategy" bson:"strategy"`
		Analysis  string    `json:"analysis" bson:"analysis"`
		Tasks     []Task    `json:"tasks" bson:"tasks"`
		CreatedAt time.Time `json:"created_at" bson:"created_at"`
	}

	// Validation records the scope classification verdict for a request.
	Validation struct {
		Valid  bool   `json:"valid" bson:"valid"`
		Reason string `json:"reason,omitempty" bson:"reason,omitempty"`
	}

	// Message is one entry in the run conversation log.
	Message struct {
		Role    string `json:"role" bson:"role"`
		Content string `json:"content" bson:"content"`
	}

	// Context is the full state of one router run. It is mutated only by
	// the driver between phases and persisted at every phase boundary.
	Context struct {
		RunID           string      `json:"run_id" bson:"run_id"`
		OriginalRequest string      `json:"original_request" bson:"original_request"`
		Mode            Mode        `json:"mode" bson:"mode"`
		MaxReplans      int         `json:"max_replans" bson:"max_replans"`
		ReplanCount     int         `json:"replan_count" bson:"replan_count"`
		Status          Status      `json:"status" bson:"status"`
		Validation      *Validation `json:"validation,omitempty" bson:"validation,omitempty"`
		Plan            *Plan       `json:"plan,omitempty" bson:"plan,omitempty"`
		TaskResults     []Task      `json:"task_results,omitempty" bson:"task_results,omitempty"`
		NeedReplan      bool        `json:"need_replan,omitempty" bson:"need_replan,omitempty"`
		ReplanReason    string      `json:"replan_reason,omitempty" bson:"replan_reason,omitempty"`
		FinalResponse   string      `json:"final_response,omitempty" bson:"final_response,omitempty"`
		Messages        []Message   `json:"messages,omitempty" bson:"messages,omitempty"`
		CreatedAt       time.Time   `json:"created_at" bson:"created_at"`
		UpdatedAt       time.Time   `json:"updated_at" bson:"updated_at"`
	}
)

// New constructs a pending run context for the given request. The last
// message is taken verbatim as the original request.
func New(request string, mode Mode, maxReplans int) *Context {
	if mode == "" {
		mode = ModeAuto
	}
	if maxReplans < 0 {
		maxReplans = 0
	}
	now := time.Now().UTC()
	return &Context{
		RunID:           uuid.NewString(),
		OriginalRequest: request,
		Mode:            mode,
		MaxReplans:      maxReplans,
		Status:          StatusPending,
		Messages:        []Message{{Role: "user", Content: request}},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// AppendMessage records a conversation message on the run.
func (c *Context) AppendMessage(role, content string) {
	c.Messages = append(c.Messages, Message{Role: role, Content: content})
}

// Terminal reports whether the run reached a frozen state.
func (c *Context) Terminal() bool {
	return c.Status == StatusDone || c.Status == StatusFailed || c.Status == StatusRejected
}

// AgentsUsed returns the sorted unique names of workers that completed at
// least one task in this run.
func (c *Context) AgentsUsed() []string {
	seen := make(map[string]struct{})
	for _, t := range c.TaskResults {
		if t.Status == TaskCompleted && t.WorkerName != "" {
			seen[t.WorkerName] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ResultsByID indexes the accumulated task results by task id. Later
// entries win on id collision so re-executed tasks supersede stale ones.
func (c *Context) ResultsByID() map[string]Task {
	m := make(map[string]Task, len(c.TaskResults))
	for _, t := range c.TaskResults {
		m[t.ID] = t
	}
	return m
}

// MergeResults appends newly settled tasks to the accumulated results,
// replacing any prior entry with the same id.
func (c *Context) MergeResults(settled []Task) {
	if len(settled) == 0 {
		return
	}
	index := make(map[string]int, len(c.TaskResults))
	for i, t := range c.TaskResults {
		index[t.ID] = i
	}
	for _, t := range settled {
		if i, ok := index[t.ID]; ok {
			c.TaskResults[i] = t
			continue
		}
		index[t.ID] = len(c.TaskResults)
		c.TaskResults = append(c.TaskResults, t)
	}
}

// TaskByID returns the plan task with the given id.
func (p *Plan) TaskByID(id string) (Task, bool) {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// Acyclic reports whether the dependency graph of the plan has no cycles.
// Unknown dependency references are ignored; they fail tasks at execution
// time instead.
func (p *Plan) Acyclic() bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(p.Tasks))
	adj := make(map[string][]string, len(p.Tasks))
	for _, t := range p.Tasks {
		adj[t.ID] = t.Dependencies
	}
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, dep := range adj[id] {
			if _, known := adj[dep]; !known {
				continue
			}
			switch color[dep] {
			case gray:
				return false
			case white:
				if !visit(dep) {
					return false
				}
			}
		}
		color[id] = black
		return true
	}
	for _, t := range p.Tasks {
		if color[t.ID] == white {
			if !visit(t.ID) {
				return false
			}
		}
	}
	return true
}

// DependenciesMet reports whether every dependency of the task is present
// in done with status completed.
func DependenciesMet(t Task, done map[string]Task) bool {
	for _, dep := range t.Dependencies {
		d, ok := done[dep]
		if !ok || d.Status != TaskCompleted {
			return false
		}
	}
	return true
}
