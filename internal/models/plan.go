package models

import "time"

// SuggestRequest asks for event candidates matching a free-text instruction.
// Now defaults to the current time in the requested timezone.
type SuggestRequest struct {
	Instruction string     `json:"instruction"`
	Now         *time.Time `json:"now,omitempty"`
	Timezone    string     `json:"timezone,omitempty"`
}

// SuggestResponse carries the repaired candidates and the trace identifier
// that links them to a later commit.
type SuggestResponse struct {
	Candidates []*Event `json:"candidates"`
	TraceID    string   `json:"trace_id"`
}

// DecisionKind is the operator's verdict on a single candidate.
type DecisionKind string

const (
	DecisionCreate DecisionKind = "create"
	DecisionUpdate DecisionKind = "update"
	DecisionSkip   DecisionKind = "skip"
)

// CommitDecision pairs a verdict with an optional free-text reason.
type CommitDecision struct {
	Kind   DecisionKind `json:"kind"`
	Reason string       `json:"reason,omitempty"`
}

// CommitPlanItem is one event together with what to do with it.
type CommitPlanItem struct {
	Event    *Event         `json:"event"`
	Decision CommitDecision `json:"decision"`
}

// CommitPlan is the ordered, operator-approved list of items to apply,
// echoing the trace identifier from the suggestion that produced it.
type CommitPlan struct {
	Items   []CommitPlanItem `json:"items"`
	TraceID string           `json:"trace_id"`
}

// CommitResult aggregates per-item outcomes. Errors holds one message per
// failed item in plan order; a failed item counts toward no bucket.
type CommitResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
	TraceID string   `json:"trace_id"`
}
