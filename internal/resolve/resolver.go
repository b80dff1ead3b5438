// Package resolve determines an expense's jurisdiction and category through
// ordered waterfalls of resolution sources.
package resolve

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pennywhistle/tally-ho/internal/model"
	"github.com/pennywhistle/tally-ho/internal/service"
)

// RuleSource is the slice of storage the resolver needs.
type RuleSource interface {
	GetMatchingRule(ctx context.Context, payee string) (*model.MerchantRule, error)
	IncrementRuleUseCount(ctx context.Context, pattern string) error
}

// CostOfServiceSuffix marks categories that belong to the cost-of-service
// set; event-related batches are expected to resolve into it.
const CostOfServiceSuffix = "- COS"

// eventBufferDays widens the event lookup window so travel days on either
// side of a scheduled event still attribute to its jurisdiction.
const eventBufferDays = 2

// Resolver walks the jurisdiction and category waterfalls. Each step is a
// pure function tried in priority order; the first hit wins and later steps
// are never consulted.
type Resolver struct {
	rules            RuleSource
	events           service.EventLookup
	homeJurisdiction string
}

// New creates a resolver. events may be nil when no jurisdiction board is
// configured; that step of the waterfall is then skipped.
func New(rules RuleSource, events service.EventLookup, homeJurisdiction string) *Resolver {
	return &Resolver{
		rules:            rules,
		events:           events,
		homeJurisdiction: homeJurisdiction,
	}
}

// jurisdictionStep is one rung of the waterfall. It returns the jurisdiction
// and its source, or ("", SourceNone) to fall through.
type jurisdictionStep func(ctx context.Context, expense *model.ExpenseRecord, candidate *model.LedgerCandidate, rule *model.MerchantRule) (string, model.ResolutionSource)

// Resolve determines jurisdiction and category for an expense, consulting the
// matched candidate's description only as a last resort. It never silently
// defaults: an unresolvable value comes back empty with SourceNone.
func (r *Resolver) Resolve(ctx context.Context, expense *model.ExpenseRecord, candidate *model.LedgerCandidate) (model.Resolution, error) {
	resolution := model.Resolution{
		JurisdictionSource: model.SourceNone,
		CategorySource:     model.SourceNone,
	}

	// The merchant rule feeds both waterfalls; fetch it once.
	rule, err := r.lookupRule(ctx, expense.Payee)
	if err != nil {
		return resolution, err
	}

	steps := []jurisdictionStep{
		r.fromExplicitTag,
		r.fromEventLookup,
		r.fromMerchantRule,
		r.fromDescription,
	}
	for _, step := range steps {
		if jurisdiction, source := step(ctx, expense, candidate, rule); source != model.SourceNone {
			resolution.Jurisdiction = jurisdiction
			resolution.JurisdictionSource = source
			break
		}
	}

	switch {
	case expense.Category != "":
		resolution.Category = expense.Category
		resolution.CategorySource = model.SourceExplicitTag
	case rule != nil && rule.Category != "":
		resolution.Category = rule.Category
		resolution.CategorySource = model.SourceMerchantRule
	}

	if rule != nil && (resolution.CategorySource == model.SourceMerchantRule ||
		resolution.JurisdictionSource == model.SourceMerchantRule) {
		// Advisory only; a failed counter bump never fails resolution.
		if incErr := r.rules.IncrementRuleUseCount(ctx, rule.Pattern); incErr != nil {
			slog.Warn("Failed to increment rule use count",
				"pattern", rule.Pattern,
				"error", incErr)
		}
	}

	// An event-related expense that resolved outside the cost-of-service
	// category set is suspicious; the mismatch reduces confidence downstream
	// but never hard-fails here.
	if expense.EventRelated && resolution.CategoryResolved() && !IsCostOfService(resolution.Category) {
		resolution.CategoryMismatch = true
	}

	return resolution, nil
}

func (r *Resolver) lookupRule(ctx context.Context, payee string) (*model.MerchantRule, error) {
	if r.rules == nil || payee == "" {
		return nil, nil
	}
	return r.rules.GetMatchingRule(ctx, payee)
}

func (r *Resolver) fromExplicitTag(_ context.Context, expense *model.ExpenseRecord, _ *model.LedgerCandidate, _ *model.MerchantRule) (string, model.ResolutionSource) {
	tag := strings.TrimSpace(expense.JurisdictionTag)
	if tag == "" {
		return "", model.SourceNone
	}

	// The "unspecified" sentinel always means the home jurisdiction.
	if strings.EqualFold(tag, model.JurisdictionUnspecified) || strings.EqualFold(tag, "other") {
		return r.homeJurisdiction, model.SourceExplicitTag
	}

	if code := FromTag(tag); code != "" {
		return code, model.SourceExplicitTag
	}
	return "", model.SourceNone
}

func (r *Resolver) fromEventLookup(ctx context.Context, expense *model.ExpenseRecord, _ *model.LedgerCandidate, _ *model.MerchantRule) (string, model.ResolutionSource) {
	if r.events == nil || !expense.EventRelated {
		return "", model.SourceNone
	}

	start, end := EventWindow(expense.ClaimDate)

	jurisdiction, err := r.events.JurisdictionForDateRange(ctx, start, end)
	if err != nil {
		slog.Warn("Event jurisdiction lookup failed",
			"claim_id", expense.ClaimID,
			"error", err)
		return "", model.SourceNone
	}
	if jurisdiction == "" {
		return "", model.SourceNone
	}
	return jurisdiction, model.SourceEventLookup
}

func (r *Resolver) fromMerchantRule(_ context.Context, _ *model.ExpenseRecord, _ *model.LedgerCandidate, rule *model.MerchantRule) (string, model.ResolutionSource) {
	if rule == nil || rule.Jurisdiction == "" {
		return "", model.SourceNone
	}
	return rule.Jurisdiction, model.SourceMerchantRule
}

func (r *Resolver) fromDescription(_ context.Context, _ *model.ExpenseRecord, candidate *model.LedgerCandidate, _ *model.MerchantRule) (string, model.ResolutionSource) {
	if candidate == nil {
		return "", model.SourceNone
	}
	if code := ParseJurisdiction(candidate.Description); code != "" {
		return code, model.SourceDescriptionText
	}
	return "", model.SourceNone
}

// IsCostOfService reports whether a category belongs to the cost-of-service
// set.
func IsCostOfService(category string) bool {
	return strings.HasSuffix(strings.TrimSpace(category), CostOfServiceSuffix)
}

// EventWindow returns the date range the resolver would hand to the event
// lookup for a claim date. Exported for the orphan pass, which shares it.
func EventWindow(claimDate time.Time) (time.Time, time.Time) {
	return claimDate.AddDate(0, 0, -eventBufferDays), claimDate.AddDate(0, 0, eventBufferDays)
}
