package fields

import (
	"regexp"
	"strings"
)

// idValue is the shape of an alphanumeric document identifier.
const idValue = `([A-Z0-9][A-Z0-9\-/]*)`

// dateValue covers DD-MM-YYYY, DD/MM/YY, DD.MM.YYYY, ISO dates and
// "12 Mar 2024" style dates.
const dateValue = `(\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}|\d{4}-\d{2}-\d{2}|\d{1,2}[-\s][A-Za-z]{3,9}[-\s,]+\d{4})`

// InvoiceNumber: "Invoice No" → "Invoice Number" → bare "Invoice X" with
// at least six characters → "Tax Invoice X".
var InvoiceNumber = Extractor{
	Name: "invoice_number",
	Strategies: []Strategy{
		{"invoice_no", regexp.MustCompile(`(?i)Invoice\s*No\.?[:\s#]+` + idValue), High},
		{"invoice_number", regexp.MustCompile(`(?i)Invoice\s*Number[:\s#]+` + idValue), High},
		{"invoice_bare", regexp.MustCompile(`(?i)Invoice[:\s#]+([A-Z0-9][A-Z0-9\-/]{5,})`), Medium},
		{"tax_invoice", regexp.MustCompile(`(?i)Tax\s*Invoice[:\s#]+` + idValue), Low},
	},
	Normalize: strings.ToUpper,
	Accept:    hasDigit,
}

// InvoiceDate: "Invoice Date" → "Date" → any bare date.
var InvoiceDate = Extractor{
	Name: "invoice_date",
	Strategies: []Strategy{
		{"invoice_date", regexp.MustCompile(`(?i)Invoice\s*Date[:\s]+` + dateValue), High},
		{"date_label", regexp.MustCompile(`(?i)Date[:\s]+` + dateValue), Medium},
		{"bare_date", regexp.MustCompile(dateValue), Low},
	},
	Normalize: NormalizeDate,
}

// OrderID: marketplace formats first (Amazon, Flipkart), then a labeled
// generic identifier.
var OrderID = Extractor{
	Name: "order_id",
	Strategies: []Strategy{
		{"amazon", regexp.MustCompile(`\b(\d{3}-\d{7}-\d{7})\b`), High},
		{"flipkart", regexp.MustCompile(`(?i)\b(OD\d{15,})\b`), High},
		{"order_label", regexp.MustCompile(`(?i)Order\s*(?:ID|#)[:\s#]+` + idValue), Medium},
	},
	Normalize: strings.ToUpper,
	Accept:    hasDigit,
}

const gstinShape = `(\d{2}[A-Z]{5}\d{4}[A-Z][0-9A-Z]{3})`

// GSTIN: labeled registration number, then any 15-character GSTIN shape.
var GSTIN = Extractor{
	Name: "gstin",
	Strategies: []Strategy{
		{"gstin_label", regexp.MustCompile(`(?i)GST(?:IN|\s*Registration)?\s*(?:No\.?|Number)?[:\s]+` + gstinShape), High},
		{"gstin_shape", regexp.MustCompile(`(?i)\b` + gstinShape + `\b`), Medium},
	},
	Normalize: strings.ToUpper,
}

// TrackingID: labeled AWB/tracking number, then the Flipkart
// FMPC/FMPP tracking shape.
var TrackingID = Extractor{
	Name: "tracking_id",
	Strategies: []Strategy{
		{"tracking_label", regexp.MustCompile(`(?i)(?:AWB|Tracking)\s*(?:ID|No\.?|Number)?[:\s#]+([A-Z0-9]{8,})`), High},
		{"flipkart_tracking", regexp.MustCompile(`(?i)\b(FMP[CP]\d{9,})\b`), Medium},
	},
	Normalize: strings.ToUpper,
	Accept:    hasDigit,
}

var codRe = regexp.MustCompile(`(?i)^(?:COD|cash\s*on\s*delivery)$`)

// PaymentType: labeled payment mode, then a bare COD/PREPAID marker.
var PaymentType = Extractor{
	Name: "payment_type",
	Strategies: []Strategy{
		{"payment_label", regexp.MustCompile(`(?i)Payment\s*(?:Mode|Type|Method)?[:\s]+(COD|Prepaid|Cash\s*on\s*Delivery)`), High},
		{"payment_bare", regexp.MustCompile(`(?i)\b(COD|PREPAID|Cash\s*on\s*Delivery)\b`), Medium},
	},
	Normalize: func(s string) string {
		if codRe.MatchString(strings.TrimSpace(s)) {
			return "COD"
		}
		return "PREPAID"
	},
}

var (
	dmyRe   = regexp.MustCompile(`^(\d{1,2})[-/.](\d{1,2})[-/.](\d{4})$`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeDate rewrites DD-MM-YYYY and DD/MM/YYYY (and DD.MM.YYYY) to
// YYYY-MM-DD. Dates whose last group is not a four-digit year are
// returned unchanged.
func NormalizeDate(s string) string {
	s = spaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
	m := dmyRe.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	return m[3] + "-" + pad2(m[2]) + "-" + pad2(m[1])
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
