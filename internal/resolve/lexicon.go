package resolve

import "strings"

// jurisdictionNames maps each jurisdiction code the organization operates in
// to its full name. The lexicon drives both tag extraction and the last-resort
// description parse.
var jurisdictionNames = map[string]string{
	"CA": "CALIFORNIA",
	"TX": "TEXAS",
	"CO": "COLORADO",
	"WA": "WASHINGTON",
	"NJ": "NEW JERSEY",
	"FL": "FLORIDA",
	"MT": "MONTANA",
	"NC": "NORTH CAROLINA",
}

// orderedCodes keeps lexicon scans deterministic.
var orderedCodes = []string{"CA", "CO", "FL", "MT", "NC", "NJ", "TX", "WA"}

// ParseJurisdiction scans free text for a jurisdiction code or name. Codes
// match only as whole tokens: "SANTA ROSA CA" resolves to CA, but the "OR"
// inside "STORE" never matches anything. Returns "" when nothing matches.
func ParseJurisdiction(text string) string {
	if text == "" {
		return ""
	}
	upper := strings.ToUpper(text)
	tokens := tokenizeLetters(upper)
	joined := " " + strings.Join(tokens, " ") + " "

	for _, code := range orderedCodes {
		if strings.Contains(joined, " "+jurisdictionNames[code]+" ") {
			return code
		}
	}
	for _, code := range orderedCodes {
		for _, tok := range tokens {
			if tok == code {
				return code
			}
		}
	}
	return ""
}

// FromTag extracts a jurisdiction code from an explicit tag such as
// "California - CA", a bare code, or a full name. Returns "" when the tag
// names no known jurisdiction.
func FromTag(tag string) string {
	trimmed := strings.TrimSpace(tag)
	if trimmed == "" {
		return ""
	}

	// "Name - CC" format carries the code directly.
	if idx := strings.LastIndex(trimmed, " - "); idx >= 0 {
		code := strings.ToUpper(strings.TrimSpace(trimmed[idx+3:]))
		if len(code) == 2 && isAlpha(code) {
			return code
		}
	}

	upper := strings.ToUpper(trimmed)
	if len(upper) == 2 && isAlpha(upper) {
		if _, ok := jurisdictionNames[upper]; ok {
			return upper
		}
		return upper
	}

	return ParseJurisdiction(trimmed)
}

func tokenizeLetters(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r < 'A' || r > 'Z'
	})
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
