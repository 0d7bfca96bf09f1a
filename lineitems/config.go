package lineitems

import "regexp"

// SKUPattern is one accepted vendor SKU shape.
type SKUPattern struct {
	Name string
	Re   *regexp.Regexp
}

// Config controls what the extractor accepts and where it stops.
type Config struct {
	// Blacklist holds substrings that disqualify a candidate,
	// compared case-insensitively.
	Blacklist []string
	// SKUPatterns are tried in order; a candidate must match at least one.
	SKUPatterns []SKUPattern
	// StopPatterns end the scan of a page.
	StopPatterns []*regexp.Regexp
	// SkipPatterns mark boilerplate rows that are passed over.
	SkipPatterns []*regexp.Regexp
	// MaxQuantity is the largest integer the proximity heuristic treats
	// as a quantity. Values read from a QTY column are not bounded.
	MaxQuantity int
}

// DefaultBlacklist are marketplace and tax words that show up in the SKU
// column of some templates but are never SKUs.
var DefaultBlacklist = []string{
	"FLIPKART", "AMAZON", "MEESHO", "INVOICE", "GSTIN",
	"IGST", "CGST", "SGST", "HSN", "IMEI", "COURIER", "AWB",
}

// DefaultSKUPatterns accepts hyphenated seller SKUs, letter-prefixed
// codes and underscore-joined SKUs.
var DefaultSKUPatterns = []SKUPattern{
	{"hyphenated", regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]+(?:-[A-Za-z0-9]+)+$`)},
	{"alnum_code", regexp.MustCompile(`^[A-Z]{2,}[0-9]{3,}[A-Z0-9]*$`)},
	{"underscore", regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*(?:_[A-Za-z0-9]+)+$`)},
}

// DefaultStopPatterns mark the start of the invoice half of a combined page.
var DefaultStopPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bTAX\s+INVOICE\b`),
	regexp.MustCompile(`(?i)\bINVOICE\s+DETAILS\b`),
	regexp.MustCompile(`(?i)\bBilling\s+Address\b`),
}

// DefaultSkipPatterns match table boilerplate.
var DefaultSkipPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bSKU\s*ID\b`),
	regexp.MustCompile(`(?i)\bHandling\s+Fee\b`),
	regexp.MustCompile(`(?i)^\s*(?:grand\s+)?total\b`),
	regexp.MustCompile(`(?i)\bSr\.?\s*No\b`),
	regexp.MustCompile(`(?i)\bIMEI\b`),
}

// DefaultMaxQuantity bounds the integers considered proximity quantities.
const DefaultMaxQuantity = 99

// DefaultConfig returns a copy of the default configuration.
func DefaultConfig() Config {
	return Config{
		Blacklist:    append([]string(nil), DefaultBlacklist...),
		SKUPatterns:  append([]SKUPattern(nil), DefaultSKUPatterns...),
		StopPatterns: append([]*regexp.Regexp(nil), DefaultStopPatterns...),
		SkipPatterns: append([]*regexp.Regexp(nil), DefaultSkipPatterns...),
		MaxQuantity:  DefaultMaxQuantity,
	}
}

// withDefaults fills nil fields. An explicitly empty, non-nil slice is
// kept so callers can switch a rule set off.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Blacklist == nil {
		c.Blacklist = d.Blacklist
	}
	if c.SKUPatterns == nil {
		c.SKUPatterns = d.SKUPatterns
	}
	if c.StopPatterns == nil {
		c.StopPatterns = d.StopPatterns
	}
	if c.SkipPatterns == nil {
		c.SkipPatterns = d.SkipPatterns
	}
	if c.MaxQuantity <= 0 {
		c.MaxQuantity = d.MaxQuantity
	}
	return c
}

// CompilePatterns compiles named SKU patterns, as read from a config file.
func CompilePatterns(named map[string]string, order []string) ([]SKUPattern, error) {
	out := make([]SKUPattern, 0, len(order))
	for _, name := range order {
		re, err := regexp.Compile(named[name])
		if err != nil {
			return nil, err
		}
		out = append(out, SKUPattern{Name: name, Re: re})
	}
	return out, nil
}
