package router

import (
	"context"
	"fmt"

	"github.com/itep-ai/router/model"
	"github.com/itep-ai/router/run"
)

// validate classifies the request as in-scope or out-of-scope. Any LLM or
// parse failure is treated as out-of-scope so the gate fails closed.
func (r *Router) validate(ctx context.Context, rc *run.Context) {
	text, err := r.complete(ctx, "validation", map[string]string{
		"request":      rc.OriginalRequest,
		"scope":        r.scope,
		"out_of_scope": r.outOfScope,
	})
	if err != nil {
		r.reject(ctx, rc, fmt.Sprintf("validation error: %v", err))
		return
	}

	var verdict struct {
		IsValid   bool   `json:"is_valid"`
		Reasoning string `json:"reasoning"`
	}
	if err := model.DecodeJSON(text, &verdict); err != nil {
		r.reject(ctx, rc, fmt.Sprintf("validation error: %v", err))
		return
	}
	rc.Validation = &run.Validation{Valid: verdict.IsValid, Reason: verdict.Reasoning}
	if !verdict.IsValid {
		r.reject(ctx, rc, verdict.Reasoning)
		return
	}
	rc.Status = run.StatusValidated
	r.logger.Debug(ctx, "request validated", "run_id", rc.RunID)
}

// reject freezes the run with a rejection artifact that names the in-scope
// domains so the user knows what the platform can do.
func (r *Router) reject(ctx context.Context, rc *run.Context, reason string) {
	rc.Validation = &run.Validation{Valid: false, Reason: reason}
	rc.FinalResponse = rejectionArtifact(reason, r.scope)
	rc.AppendMessage("assistant", rc.FinalResponse)
	rc.Status = run.StatusRejected
	r.metrics.IncCounter("router.rejections", 1)
	r.logger.Info(ctx, "request rejected", "run_id", rc.RunID, "reason", reason)
}

func rejectionArtifact(reason, scope string) string {
	return fmt.Sprintf(
		"I'm unable to help with that request. %s\n\nThis platform handles:\n%s",
		reason, scope)
}
