package model

import "time"

// AuditEntry is one append-only log row written per terminal decision.
//
// Entries are write-once; they exist for debugging and for downstream
// learning systems, never for replay.
type AuditEntry struct {
	CreatedAt       time.Time
	ID              string
	ClaimID         string
	Decision        Decision
	Category        string
	Jurisdiction    string
	CandidateID     string
	LedgerReference string
	Reason          string
	Confidence      int
}
