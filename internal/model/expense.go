// Package model defines the core domain models used throughout the application.
package model

import (
	"fmt"
	"time"
)

// ExpenseStatus tracks where an expense record sits in the processing queue.
type ExpenseStatus string

// Expense queue states.
const (
	ExpensePending    ExpenseStatus = "pending"
	ExpenseProcessing ExpenseStatus = "processing"
	ExpenseMatched    ExpenseStatus = "matched"
	ExpensePosted     ExpenseStatus = "posted"
	ExpenseFlagged    ExpenseStatus = "flagged"
	ExpenseError      ExpenseStatus = "error"
)

// IsTerminal reports whether the status requires no further automatic work.
func (s ExpenseStatus) IsTerminal() bool {
	switch s {
	case ExpensePosted, ExpenseFlagged, ExpenseError:
		return true
	default:
		return false
	}
}

// Valid reports whether the status is one of the known queue states.
func (s ExpenseStatus) Valid() bool {
	switch s {
	case ExpensePending, ExpenseProcessing, ExpenseMatched, ExpensePosted, ExpenseFlagged, ExpenseError:
		return true
	default:
		return false
	}
}

// JurisdictionUnspecified is the sentinel tag upstream systems send when the
// submitter picked no jurisdiction. It always resolves to the configured home
// jurisdiction rather than staying ambiguous.
const JurisdictionUnspecified = "unspecified"

// ExpenseRecord is one employee-submitted claim moving through the queue.
//
// The claim ID is issued by the upstream expense system and is the idempotency
// key for intake. Records are never deleted; they end in posted, flagged, or
// error.
type ExpenseRecord struct {
	ClaimDate       time.Time
	ClaimedAt       *time.Time
	PostedAt        *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ClaimID         string
	Payee           string
	Category        string
	JurisdictionTag string
	Instrument      string
	ReceiptRef      string
	Status          ExpenseStatus
	LastError       string
	FlagReason      string
	CandidateID     string
	LedgerReference string
	Amount          float64
	AttemptCount    int
	Confidence      int
	EventRelated    bool
	HumanApproved   bool
}

// Validate checks the fields intake requires before a record can be queued.
func (e *ExpenseRecord) Validate() error {
	if e.ClaimID == "" {
		return fmt.Errorf("expense record missing claim id")
	}
	if e.ClaimDate.IsZero() {
		return fmt.Errorf("expense record %s missing claim date", e.ClaimID)
	}
	if e.Amount <= 0 {
		return fmt.Errorf("expense record %s has non-positive amount %.2f", e.ClaimID, e.Amount)
	}
	if e.Payee == "" {
		return fmt.Errorf("expense record %s missing payee", e.ClaimID)
	}
	return nil
}

// HasReceipt reports whether a receipt handle was stored at intake. Its
// absence is a decision-blocking condition, never an ingest error.
func (e *ExpenseRecord) HasReceipt() bool {
	return e.ReceiptRef != ""
}
