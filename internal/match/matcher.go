// Package match pairs expense records against unmatched ledger candidates
// and scores each pairing deterministically.
package match

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pennywhistle/tally-ho/internal/model"
)

// CandidateSource is the slice of storage the matcher needs.
type CandidateSource interface {
	GetCandidatesInWindow(ctx context.Context, source string, start, end time.Time) ([]model.LedgerCandidate, error)
}

// Config holds the matching windows and tolerances.
type Config struct {
	// DateWindowDays bounds the automatic search around the claim date.
	DateWindowDays int
	// AssistWindowDays is the wider window used when a human will review
	// the ranked list.
	AssistWindowDays int
	// AmountTolerance is the absolute difference treated as an exact
	// amount match.
	AmountTolerance float64
}

// DefaultConfig returns the default matching configuration.
func DefaultConfig() Config {
	return Config{
		DateWindowDays:   3,
		AssistWindowDays: 7,
		AmountTolerance:  0.01,
	}
}

// Matcher scores ledger candidates for an expense. Scoring is pure: identical
// inputs always produce the same best match and score.
type Matcher struct {
	source CandidateSource
	cfg    Config
}

// New creates a matcher over the given candidate source.
func New(source CandidateSource, cfg Config) *Matcher {
	if cfg.DateWindowDays <= 0 {
		cfg.DateWindowDays = DefaultConfig().DateWindowDays
	}
	if cfg.AssistWindowDays < cfg.DateWindowDays {
		cfg.AssistWindowDays = cfg.DateWindowDays
	}
	if cfg.AmountTolerance <= 0 {
		cfg.AmountTolerance = DefaultConfig().AmountTolerance
	}
	return &Matcher{source: source, cfg: cfg}
}

// FindCandidates retrieves and scores candidates within the automatic window.
// When nothing scores, it retries once with the claim's day and month swapped
// to rescue feed rows whose dates crossed a DD/MM boundary upstream.
func (m *Matcher) FindCandidates(ctx context.Context, expense *model.ExpenseRecord) (model.MatchResult, error) {
	result, err := m.findInWindow(ctx, expense, expense.ClaimDate, m.cfg.DateWindowDays, false)
	if err != nil {
		return model.MatchResult{}, err
	}
	if result.Found() {
		return result, nil
	}

	inverted, ok := invertDate(expense.ClaimDate)
	if !ok {
		return result, nil
	}

	rescued, err := m.findInWindow(ctx, expense, inverted, m.cfg.DateWindowDays, true)
	if err != nil {
		return model.MatchResult{}, err
	}
	rescued.Checked += result.Checked
	return rescued, nil
}

// Rank retrieves and scores candidates within the wider assist window and
// returns the full ranked list for human review. Ties are never dropped.
func (m *Matcher) Rank(ctx context.Context, expense *model.ExpenseRecord) (model.MatchResult, error) {
	return m.findInWindow(ctx, expense, expense.ClaimDate, m.cfg.AssistWindowDays, false)
}

func (m *Matcher) findInWindow(ctx context.Context, expense *model.ExpenseRecord, around time.Time, windowDays int, inverted bool) (model.MatchResult, error) {
	start := around.AddDate(0, 0, -windowDays)
	end := around.AddDate(0, 0, windowDays)

	candidates, err := m.source.GetCandidatesInWindow(ctx, expense.Instrument, start, end)
	if err != nil {
		return model.MatchResult{}, fmt.Errorf("failed to retrieve ledger candidates: %w", err)
	}

	result := model.MatchResult{Checked: len(candidates)}

	for _, c := range candidates {
		score, matchType := m.score(expense, &c, around)
		if score == 0 {
			continue
		}
		cs := model.CandidateScore{
			Candidate: c,
			Score:     score,
			Type:      matchType,
		}
		if inverted {
			cs.DateCorrected = true
			cs.CorrectedDate = around
		}
		result.Ranked = append(result.Ranked, cs)
	}

	if len(result.Ranked) == 0 {
		return result, nil
	}

	// Highest score first; exact ties prefer the earliest transaction,
	// then the lowest id so ordering stays deterministic.
	sort.Slice(result.Ranked, func(i, j int) bool {
		a, b := result.Ranked[i], result.Ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Candidate.TxnDate.Equal(b.Candidate.TxnDate) {
			return a.Candidate.TxnDate.Before(b.Candidate.TxnDate)
		}
		return a.Candidate.ID < b.Candidate.ID
	})

	result.Best = &result.Ranked[0]
	return result, nil
}

// score implements the scoring table. 100 is best; 0 means not a candidate.
func (m *Matcher) score(expense *model.ExpenseRecord, c *model.LedgerCandidate, claimDate time.Time) (int, model.MatchType) {
	amountExact := math.Abs(c.Amount-expense.Amount) <= m.cfg.AmountTolerance
	dateExact := sameDay(c.TxnDate, claimDate)
	overlap := TokensOverlap(expense.Payee, c.Description)

	switch {
	case amountExact && dateExact && overlap:
		return 100, model.MatchExact
	case amountExact && dateExact:
		return 90, model.MatchAmountDate
	case amountExact && overlap:
		return 80, model.MatchAmountPayee
	case amountExact:
		return 70, model.MatchAmountOnly
	}

	// Tip-inclusive heuristic: for meal categories a charge 18-25% above
	// the claim is a plausible gratuity on the claimed subtotal.
	if expense.Amount > 0 && isMealCategory(expense.Category) {
		ratio := c.Amount / expense.Amount
		if ratio >= 1.18 && ratio <= 1.25 {
			return 75, model.MatchTipInclusive
		}
	}

	return 0, model.MatchNone
}

// TokensOverlap reports whether any word of length >= 4 from one text appears
// as a case-insensitive substring of the other. Word-level matching is
// deliberately more permissive than a prefix comparison: bank descriptions
// wrap the merchant name in card numbers and processor boilerplate.
func TokensOverlap(payee, description string) bool {
	if payee == "" || description == "" {
		return false
	}

	payeeUpper := strings.ToUpper(payee)
	descUpper := strings.ToUpper(description)

	for _, word := range tokenize(payeeUpper) {
		if strings.Contains(descUpper, word) {
			return true
		}
	}
	for _, word := range tokenize(descUpper) {
		if strings.Contains(payeeUpper, word) {
			return true
		}
	}
	return false
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 4 {
			words = append(words, f)
		}
	}
	return words
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func isMealCategory(category string) bool {
	c := strings.ToLower(category)
	for _, kw := range []string{"meal", "food", "dining", "restaurant", "catering"} {
		if strings.Contains(c, kw) {
			return true
		}
	}
	return false
}

// invertDate swaps the day and month of a date, the classic DD/MM vs MM/DD
// confusion. It only applies when the day could be a valid month and the swap
// actually changes the date.
func invertDate(d time.Time) (time.Time, bool) {
	if d.Day() > 12 || d.Day() == int(d.Month()) {
		return time.Time{}, false
	}
	return time.Date(d.Year(), time.Month(d.Day()), int(d.Month()), 0, 0, 0, 0, d.Location()), true
}
