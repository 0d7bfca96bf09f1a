package fields

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// amountValue matches an optional currency marker followed by a number
// with optional thousands separators and up to two decimals.
const amountValue = `(?:₹|Rs\.?|INR)?\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`

// MoneyExtractor is an Extractor whose value is parsed as a decimal amount.
type MoneyExtractor struct {
	Extractor
}

// Extract returns the first labeled amount that parses as a decimal.
func (m MoneyExtractor) Extract(text string) Field {
	f := m.Extractor.Extract(text)
	if !f.Found() {
		return f
	}
	amt, err := ParseAmount(f.Value)
	if err != nil {
		return Missing()
	}
	f.Value = amt.StringFixed(2)
	f.Amount = &amt
	return f
}

// ParseAmount strips currency markers and thousands separators and
// parses the remainder as a decimal.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	for _, p := range []string{"₹", "Rs.", "Rs", "INR"} {
		s = strings.TrimPrefix(s, p)
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	return decimal.NewFromString(s)
}

func isAmount(s string) bool {
	_, err := ParseAmount(s)
	return err == nil
}

// GrandTotal: explicit grand/invoice total labels, then a bare "Total".
var GrandTotal = MoneyExtractor{Extractor{
	Name: "grand_total",
	Strategies: []Strategy{
		{"grand_total", regexp.MustCompile(`(?i)(?:Grand\s*Total|Invoice\s*Total|Total\s*Amount|Amount\s*Payable)[:\s]*` + amountValue), High},
		{"total", regexp.MustCompile(`(?i)\bTotal[:\s]+` + amountValue), Medium},
	},
	Accept: isAmount,
}}

// Subtotal: "Sub Total" / "Subtotal", then "Taxable Value".
var Subtotal = MoneyExtractor{Extractor{
	Name: "subtotal",
	Strategies: []Strategy{
		{"subtotal", regexp.MustCompile(`(?i)Sub\s*-?\s*Total[:\s]*` + amountValue), High},
		{"taxable_value", regexp.MustCompile(`(?i)(?:Total\s*)?Taxable\s*(?:Value|Amount)[:\s]*` + amountValue), Medium},
	},
	Accept: isAmount,
}}

// TaxTotal: "Total Tax" / "Tax Amount", then a single IGST/GST line.
var TaxTotal = MoneyExtractor{Extractor{
	Name: "tax_total",
	Strategies: []Strategy{
		{"total_tax", regexp.MustCompile(`(?i)(?:Total\s*Tax|Tax\s*Amount)[:\s]*` + amountValue), High},
		{"gst_line", regexp.MustCompile(`(?i)\b(?:IGST|GST)\b(?:\s*@?\s*\d{1,2}(?:\.\d+)?\s*%)?[:\s]+` + amountValue), Low},
	},
	Accept: isAmount,
}}
