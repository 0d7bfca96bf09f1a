package lineitems

import "strings"

// ValidateSKU checks a candidate in a fixed order: blacklist, then digit
// presence, then the SKU patterns. It returns the name of the first
// matching pattern, or the reason for rejection. The verdict depends only
// on the candidate string.
func (e *Extractor) ValidateSKU(candidate string) (pattern string, reason RejectReason, ok bool) {
	upper := strings.ToUpper(candidate)
	for _, b := range e.blacklist {
		if strings.Contains(upper, b) {
			return "", ReasonBlacklisted, false
		}
	}
	if !strings.ContainsAny(candidate, "0123456789") {
		return "", ReasonNoDigits, false
	}
	for _, p := range e.cfg.SKUPatterns {
		if p.Re.MatchString(candidate) {
			return p.Name, "", true
		}
	}
	return "", ReasonPatternMismatch, false
}

var defaultExtractor = New(Config{})

// ValidateSKU validates a candidate with the default configuration.
func ValidateSKU(candidate string) (pattern string, reason RejectReason, ok bool) {
	return defaultExtractor.ValidateSKU(candidate)
}
