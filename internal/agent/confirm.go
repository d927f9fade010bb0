package agent

import (
	"context"
	"log/slog"

	"github.com/samsaffron/term-agent/internal/tools"
)

// RejectedMessage is the tool result error reported when the operator
// declines a call.
const RejectedMessage = "Operation cancelled by user"

// Decision answers one ConfirmationRequest.
type Decision struct {
	ToolCallID string
	Approved   bool
	// RememberForSession pre-approves the call's category for the rest of
	// the session. Only meaningful when Approved.
	RememberForSession bool
	// Feedback is optional text passed back to the model on rejection.
	Feedback string
}

// Approve builds an approving decision.
func Approve(toolCallID string, remember bool) Decision {
	return Decision{ToolCallID: toolCallID, Approved: true, RememberForSession: remember}
}

// Reject builds a rejecting decision.
func Reject(toolCallID, feedback string) Decision {
	return Decision{ToolCallID: toolCallID, Feedback: feedback}
}

// rejectedResult is the failed result recorded for a declined call.
func rejectedResult(feedback string) tools.Result {
	res := tools.Failure("%s", RejectedMessage)
	if feedback != "" {
		res.Output = "User feedback: " + feedback
	}
	return res
}

// waitForDecision blocks until a decision for id arrives. Decisions for other
// ids are ignored. A closed decision channel rejects the call.
func waitForDecision(ctx context.Context, id string, decisions <-chan Decision, cancel *CancelFlag) (Decision, error) {
	for {
		select {
		case d, ok := <-decisions:
			if !ok {
				return Reject(id, ""), nil
			}
			if d.ToolCallID != id {
				slog.Debug("ignoring unmatched confirmation decision", "want", id, "got", d.ToolCallID)
				continue
			}
			return d, nil
		case <-cancel.Done():
			return Decision{}, ErrCancelled
		case <-ctx.Done():
			return Decision{}, ctx.Err()
		}
	}
}
