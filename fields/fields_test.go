package fields

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/orderdoc/layout"
)

func TestInvoiceNumber(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		want     string
		conf     Confidence
		source   Source
		strategy string
	}{
		{"invoice no", "Invoice No: FATTN2024001", "FATTN2024001", High, SourcePrimary, "invoice_no"},
		{"invoice no dotted", "Invoice No.: ka-2024/118", "KA-2024/118", High, SourcePrimary, "invoice_no"},
		{"invoice number", "Invoice Number : IN2024X77", "IN2024X77", High, SourceFallback, "invoice_number"},
		{"bare invoice", "Invoice # FA12345678", "FA12345678", Medium, SourceFallback, "invoice_bare"},
		{"details is not a number", "Invoice Details Invoice Number: Q77881", "Q77881", High, SourceFallback, "invoice_number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := InvoiceNumber.Extract(tt.text)
			assert.Equal(t, tt.want, f.Value)
			assert.Equal(t, tt.conf, f.Confidence)
			assert.Equal(t, tt.source, f.Source)
			assert.Equal(t, tt.strategy, f.Strategy)
			assert.NotEmpty(t, f.TokensMatched)
		})
	}
}

func TestInvoiceNumberMissing(t *testing.T) {
	f := InvoiceNumber.Extract("Order Id: OD123456789012345 Ship To: Pune")
	assert.False(t, f.Found())
	assert.Equal(t, Low, f.Confidence)

	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"value":null`)
	assert.Contains(t, string(data), `"confidence":"low"`)
	assert.Contains(t, string(data), `"tokens_matched":[]`)
}

func TestFieldJSONWithValue(t *testing.T) {
	f := InvoiceNumber.Extract("Invoice No: FATTN2024001")
	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"value":"FATTN2024001"`)
	assert.Contains(t, string(data), `"source":"primary"`)
}

func TestFirstStrategyWins(t *testing.T) {
	// Both the specific and generic patterns match; precedence decides.
	f := InvoiceNumber.Extract("Tax Invoice: ZZ9999999 Invoice No: AB1234")
	assert.Equal(t, "AB1234", f.Value)
	assert.Equal(t, "invoice_no", f.Strategy)
}

func TestInvoiceDate(t *testing.T) {
	tests := []struct {
		text string
		want string
		conf Confidence
	}{
		{"Invoice Date: 12-03-2024", "2024-03-12", High},
		{"Invoice Date : 5/7/2023", "2023-07-05", High},
		{"Order Date: 01.12.2024", "2024-12-01", Medium},
		{"printed 09/10/24 by system", "09/10/24", Low},
		{"Invoice Date: 2024-01-31", "2024-01-31", High},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			f := InvoiceDate.Extract(tt.text)
			assert.Equal(t, tt.want, f.Value)
			assert.Equal(t, tt.conf, f.Confidence)
		})
	}
	assert.False(t, InvoiceDate.Extract("no dates here").Found())
}

func TestNormalizeDate(t *testing.T) {
	assert.Equal(t, "2024-03-12", NormalizeDate("12-03-2024"))
	assert.Equal(t, "2024-03-02", NormalizeDate("2/3/2024"))
	assert.Equal(t, "12-03-24", NormalizeDate("12-03-24"))
	assert.Equal(t, "12 Mar 2024", NormalizeDate("12  Mar 2024"))
}

func TestOrderID(t *testing.T) {
	tests := []struct {
		text     string
		want     string
		strategy string
		conf     Confidence
	}{
		{"Order Id: OD123456789012345 SKU ID", "OD123456789012345", "flipkart", High},
		{"Order Number: 408-1234567-7654321", "408-1234567-7654321", "amazon", High},
		{"Order ID: MSH99812", "MSH99812", "order_label", Medium},
		{"Order # 77123", "77123", "order_label", Medium},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			f := OrderID.Extract(tt.text)
			assert.Equal(t, tt.want, f.Value)
			assert.Equal(t, tt.strategy, f.Strategy)
			assert.Equal(t, tt.conf, f.Confidence)
		})
	}
}

func TestGSTIN(t *testing.T) {
	f := GSTIN.Extract("Seller GSTIN: 29ABCDE1234F1Z5")
	assert.Equal(t, "29ABCDE1234F1Z5", f.Value)
	assert.Equal(t, High, f.Confidence)

	f = GSTIN.Extract("registered 27AAACR5055K1Z7 Mumbai")
	assert.Equal(t, "27AAACR5055K1Z7", f.Value)
	assert.Equal(t, Medium, f.Confidence)
	assert.Equal(t, SourceFallback, f.Source)

	assert.False(t, GSTIN.Extract("GSTIN: pending").Found())
}

func TestTrackingAndPayment(t *testing.T) {
	assert.Equal(t, "FMPP1234567890", TrackingID.Extract("AWB No: FMPP1234567890").Value)
	assert.Equal(t, "FMPC9876543210", TrackingID.Extract("courier ekart FMPC9876543210").Value)

	f := PaymentType.Extract("Payment Mode: Cash on Delivery")
	assert.Equal(t, "COD", f.Value)
	assert.Equal(t, High, f.Confidence)

	f = PaymentType.Extract("PREPAID - DO NOT COLLECT CASH")
	assert.Equal(t, "PREPAID", f.Value)
	assert.Equal(t, Medium, f.Confidence)
}

func TestMoney(t *testing.T) {
	f := GrandTotal.Extract("Sub Total 1,000.00 Grand Total: ₹ 1,180.50")
	require.True(t, f.Found())
	assert.Equal(t, "1180.50", f.Value)
	require.NotNil(t, f.Amount)
	assert.Equal(t, "1180.5", f.Amount.String())
	assert.Equal(t, High, f.Confidence)

	f = GrandTotal.Extract("Total: Rs. 2,499")
	assert.Equal(t, "2499.00", f.Value)
	assert.Equal(t, Medium, f.Confidence)

	assert.Equal(t, "1000.00", Subtotal.Extract("Sub Total 1,000.00").Value)
	assert.Equal(t, "180.00", TaxTotal.Extract("Total Tax: INR 180").Value)
	assert.Equal(t, "45.76", TaxTotal.Extract("IGST 18% 45.76").Value)

	assert.False(t, GrandTotal.Extract("no money").Found())
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount("Rs. 12,34,567.89")
	require.NoError(t, err)
	assert.Equal(t, "1234567.89", d.String())

	_, err = ParseAmount("abc")
	assert.Error(t, err)
}

func rowsOf(lines ...string) []layout.Row {
	var tokens []layout.Token
	y := 800.0
	for _, l := range lines {
		tokens = append(tokens, layout.Token{Text: l, X: 20, Y: y, Width: 200, Height: 10})
		y -= 20
	}
	return layout.GroupIntoRows(tokens, 5)
}

func TestAddress(t *testing.T) {
	rows := rowsOf(
		"Order Id: OD123456789012345",
		"Ship To: Asha Verma",
		"12 MG Road",
		"Pune 411001",
		"Invoice No: FA1234567",
	)
	f := Address(rows, ShipTo, 5)
	assert.Equal(t, "Asha Verma, 12 MG Road, Pune 411001", f.Value)
	assert.Equal(t, High, f.Confidence)

	f = Address(rows, ShipTo, 2)
	assert.Equal(t, "Asha Verma, 12 MG Road", f.Value)

	assert.False(t, Address(rows, BillTo, 5).Found())
}

func TestAddressSingleLine(t *testing.T) {
	rows := rowsOf("Billing Address:", "Flat 4, Lake View", "GSTIN: 29ABCDE1234F1Z5")
	f := Address(rows, BillTo, 0)
	assert.Equal(t, "Flat 4, Lake View", f.Value)
	assert.Equal(t, Medium, f.Confidence)
}

func TestQuantityLabel(t *testing.T) {
	n, label, ok := QuantityLabel("KURTA-RED-M Qty: 3 Rs 499")
	require.True(t, ok)
	assert.Equal(t, 3, n)
	assert.Equal(t, "Qty: 3", label)

	n, _, ok = QuantityLabel("Quantity 12")
	assert.True(t, ok)
	assert.Equal(t, 12, n)

	_, _, ok = QuantityLabel("Qty: 0")
	assert.False(t, ok)
	_, _, ok = QuantityLabel("no label")
	assert.False(t, ok)
}

func TestPlaceholder(t *testing.T) {
	f := Placeholder()
	assert.Equal(t, SourceOCRPlaceholder, f.Source)
	assert.Equal(t, Low, f.Confidence)
	assert.False(t, f.Found())
}
