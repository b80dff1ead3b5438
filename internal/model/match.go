package model

import "time"

// MatchType names the rule that paired an expense with a ledger candidate.
type MatchType string

// Match types, strongest first.
const (
	MatchExact        MatchType = "exact"
	MatchAmountDate   MatchType = "amount_date_match"
	MatchAmountPayee  MatchType = "amount_merchant_match"
	MatchAmountOnly   MatchType = "amount_only_match"
	MatchTipInclusive MatchType = "tip_inclusive"
	MatchNone         MatchType = "no_match"
)

// CandidateScore is one scored pairing of an expense against a candidate.
type CandidateScore struct {
	Candidate     LedgerCandidate
	Type          MatchType
	CorrectedDate time.Time
	Score         int
	DateCorrected bool
}

// MatchResult is the matcher's verdict for a single expense.
//
// Best is nil when no candidate scored above zero. Ranked holds every scoring
// candidate ordered best-first so a human reviewer can see the runners-up.
type MatchResult struct {
	Best    *CandidateScore
	Ranked  []CandidateScore
	Checked int
}

// Found reports whether any candidate scored.
func (r *MatchResult) Found() bool {
	return r.Best != nil
}
