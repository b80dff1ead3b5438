package model

// Decision is the engine's verdict for one expense.
type Decision string

// Decisions.
const (
	// DecisionApprove posts the expense to the accounting system automatically.
	DecisionApprove Decision = "APPROVE"
	// DecisionEscalate queues the expense for human review.
	DecisionEscalate Decision = "ESCALATE"
	// DecisionReimbursement marks an expense with no corporate-ledger charge;
	// it was very likely paid with personal funds.
	DecisionReimbursement Decision = "REIMBURSEMENT"
	// DecisionError marks an unrecoverable downstream failure needing
	// engineering attention rather than business judgment.
	DecisionError Decision = "ERROR"
)

// Outcome is a decision plus the confidence arithmetic behind it.
//
// Cause joins the reconciliation-taxonomy sentinels behind the deductions so
// callers can errors.Is a non-approval; it is nil when no taxonomy condition
// fired. Reasons are the full human-readable list, taxonomy or not.
type Outcome struct {
	Decision   Decision
	Reasons    []string
	Cause      error
	Confidence int
}

// AdvisorySeverity grades a problem reported by the optional advisory signal.
type AdvisorySeverity string

// Advisory severities.
const (
	AdvisoryNone   AdvisorySeverity = "none"
	AdvisoryWarn   AdvisorySeverity = "warn"
	AdvisorySevere AdvisorySeverity = "severe"
)

// Assessment is the advisory signal's narrow output contract.
type Assessment struct {
	Severity AdvisorySeverity
	Notes    string
}
