package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/itep-ai/router/run"
)

type decision int

const (
	decisionApprove decision = iota
	decisionReject
	decisionModify
)

// approve runs the approval gate for a freshly planned run. It returns
// true when the run must suspend awaiting an external answer.
func (r *Router) approve(ctx context.Context, rc *run.Context) (suspended bool) {
	switch rc.Mode {
	case run.ModeReview:
		// Render the plan into the conversation for the record, then
		// proceed without waiting.
		rc.AppendMessage("assistant", renderPlan(rc.Plan))
		rc.Status = run.StatusExecuting
		return false

	case run.ModeInteractive:
		rc.AppendMessage("assistant", approvalRequest(rc.Plan))
		rc.Status = run.StatusAwaitingApproval
		r.logger.Info(ctx, "run suspended awaiting approval", "run_id", rc.RunID)
		return true

	default:
		rc.Status = run.StatusExecuting
		return false
	}
}

// interpretAnswer classifies a resume answer. Anything that is neither an
// approval nor a rejection keyword is treated as a free-text modification
// request; an empty answer approves.
func interpretAnswer(answer string) (decision, string) {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "", "yes", "y", "approve", "approved":
		return decisionApprove, ""
	case "no", "n", "reject", "rejected":
		return decisionReject, "user rejected the plan"
	default:
		return decisionModify, strings.TrimSpace(answer)
	}
}

// renderPlan formats a plan for human review.
func renderPlan(p *run.Plan) string {
	var b strings.Builder
	b.WriteString("Proposed execution plan")
	fmt.Fprintf(&b, " (%s):\n", p.Strategy)
	if p.Analysis != "" {
		fmt.Fprintf(&b, "%s\n", p.Analysis)
	}
	if len(p.Tasks) == 0 {
		b.WriteString("No tasks planned.")
		return b.String()
	}
	for i, t := range p.Tasks {
		fmt.Fprintf(&b, "%d. %s (worker: %s)", i+1, t.Description, t.WorkerName)
		if len(t.Dependencies) > 0 {
			fmt.Fprintf(&b, " [after: %s]", strings.Join(t.Dependencies, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func approvalRequest(p *run.Plan) string {
	return renderPlan(p) + "\n\nReply \"yes\" to approve, \"no\" to reject, or describe what to change."
}
