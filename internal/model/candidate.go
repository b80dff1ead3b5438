package model

import "time"

// CandidateStatus tracks whether a ledger row is still available for matching.
type CandidateStatus string

// Ledger candidate states.
const (
	CandidateUnmatched     CandidateStatus = "unmatched"
	CandidateMatched       CandidateStatus = "matched"
	CandidateExcluded      CandidateStatus = "excluded"
	CandidateOrphanPosted  CandidateStatus = "orphan_processed"
	CandidatePendingReview CandidateStatus = "pending_review"
)

// LedgerCandidate is one row from the corporate-card transaction feed.
//
// Candidates are imported in bulk out of band. A candidate becomes matched
// only as a side effect of exactly one expense record reaching matched or
// posted; after that its status is frozen.
type LedgerCandidate struct {
	TxnDate            time.Time
	MatchedAt          *time.Time
	OrphanProcessedAt  *time.Time
	CreatedAt          time.Time
	ID                 string
	Description        string
	Source             string
	Status             CandidateStatus
	MatchedClaimID     string
	OrphanCategory     string
	OrphanJurisdiction string
	Amount             float64
}
