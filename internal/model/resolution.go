package model

// ResolutionSource names the waterfall step that produced a value.
type ResolutionSource string

// Resolution sources in waterfall priority order.
const (
	SourceExplicitTag     ResolutionSource = "explicit_tag"
	SourceEventLookup     ResolutionSource = "event_lookup"
	SourceMerchantRule    ResolutionSource = "merchant_rule"
	SourceDescriptionText ResolutionSource = "description_text"
	SourceNone            ResolutionSource = "none"
)

// Authoritative reports whether the source is strong enough to carry full
// confidence. Text-parsing a bank description is a last resort and costs
// confidence downstream.
func (s ResolutionSource) Authoritative() bool {
	switch s {
	case SourceExplicitTag, SourceEventLookup, SourceMerchantRule:
		return true
	default:
		return false
	}
}

// Resolution is the resolver's combined jurisdiction and category verdict.
//
// Jurisdiction and Category are empty when their source is SourceNone; the
// resolver never silently defaults.
type Resolution struct {
	Jurisdiction       string
	JurisdictionSource ResolutionSource
	Category           string
	CategorySource     ResolutionSource
	CategoryMismatch   bool
}

// JurisdictionResolved reports whether any waterfall step produced a jurisdiction.
func (r Resolution) JurisdictionResolved() bool {
	return r.JurisdictionSource != SourceNone && r.Jurisdiction != ""
}

// CategoryResolved reports whether any waterfall step produced a category.
func (r Resolution) CategoryResolved() bool {
	return r.CategorySource != SourceNone && r.Category != ""
}
