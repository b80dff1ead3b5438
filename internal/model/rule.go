package model

import (
	"strings"
	"time"
)

// MerchantRule maps a merchant pattern to default category and jurisdiction.
//
// Rules are reference data maintained outside the core. The use count is
// advisory: it feeds downstream learning and is never correctness-critical.
type MerchantRule struct {
	LastUsed     time.Time
	Pattern      string
	Category     string
	Jurisdiction string
	Note         string
	UseCount     int
}

// Matches reports whether the rule's pattern appears in the payee text,
// case-insensitively.
func (r *MerchantRule) Matches(payee string) bool {
	if r.Pattern == "" || payee == "" {
		return false
	}
	return strings.Contains(strings.ToUpper(payee), strings.ToUpper(r.Pattern))
}
