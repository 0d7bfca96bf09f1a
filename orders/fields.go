package orders

import (
	"github.com/brunobiangulo/orderdoc/fields"
	"github.com/brunobiangulo/orderdoc/layout"
)

// Fields are the scalar header fields of a page or document.
type Fields struct {
	OrderID       fields.Field `json:"order_id"`
	InvoiceNumber fields.Field `json:"invoice_number"`
	InvoiceDate   fields.Field `json:"invoice_date"`
	GSTIN         fields.Field `json:"gstin"`
	TrackingID    fields.Field `json:"tracking_id"`
	PaymentType   fields.Field `json:"payment_type"`
	Subtotal      fields.Field `json:"subtotal"`
	TaxTotal      fields.Field `json:"tax_total"`
	GrandTotal    fields.Field `json:"grand_total"`
	BillTo        fields.Field `json:"bill_to"`
	ShipTo        fields.Field `json:"ship_to"`
}

func (f *Fields) all() []*fields.Field {
	return []*fields.Field{
		&f.OrderID, &f.InvoiceNumber, &f.InvoiceDate, &f.GSTIN, &f.TrackingID,
		&f.PaymentType, &f.Subtotal, &f.TaxTotal, &f.GrandTotal, &f.BillTo, &f.ShipTo,
	}
}

func (p *Parser) extractFields(text string, rows []layout.Row) Fields {
	return Fields{
		OrderID:       fields.OrderID.Extract(text),
		InvoiceNumber: fields.InvoiceNumber.Extract(text),
		InvoiceDate:   fields.InvoiceDate.Extract(text),
		GSTIN:         fields.GSTIN.Extract(text),
		TrackingID:    fields.TrackingID.Extract(text),
		PaymentType:   fields.PaymentType.Extract(text),
		Subtotal:      fields.Subtotal.Extract(text),
		TaxTotal:      fields.TaxTotal.Extract(text),
		GrandTotal:    fields.GrandTotal.Extract(text),
		BillTo:        fields.Address(rows, fields.BillTo, p.cfg.AddressLines),
		ShipTo:        fields.Address(rows, fields.ShipTo, p.cfg.AddressLines),
	}
}

// ByName indexes the fields by their JSON name.
func (f Fields) ByName() map[string]fields.Field {
	return map[string]fields.Field{
		"order_id":       f.OrderID,
		"invoice_number": f.InvoiceNumber,
		"invoice_date":   f.InvoiceDate,
		"gstin":          f.GSTIN,
		"tracking_id":    f.TrackingID,
		"payment_type":   f.PaymentType,
		"subtotal":       f.Subtotal,
		"tax_total":      f.TaxTotal,
		"grand_total":    f.GrandTotal,
		"bill_to":        f.BillTo,
		"ship_to":        f.ShipTo,
	}
}

func placeholderFields() Fields {
	var f Fields
	for _, p := range f.all() {
		*p = fields.Placeholder()
	}
	return f
}

// mergeFields picks, per field, the first high-confidence value across
// pages, else the first value found. A field found nowhere stays missing,
// or a placeholder when every page lacked a text layer.
func mergeFields(pages []PageResult) Fields {
	var out Fields
	dst := out.all()
	for i := range dst {
		*dst[i] = fields.Missing()
	}
	if len(pages) == 0 {
		return out
	}

	allPlaceholder := true
	for _, pr := range pages {
		if pr.Fields.OrderID.Source != fields.SourceOCRPlaceholder {
			allPlaceholder = false
			break
		}
	}
	if allPlaceholder {
		return placeholderFields()
	}

	for i := range dst {
		var first *fields.Field
		for j := range pages {
			f := pages[j].Fields.all()[i]
			if !f.Found() {
				continue
			}
			if f.Confidence == fields.High {
				first = f
				break
			}
			if first == nil {
				first = f
			}
		}
		if first != nil {
			*dst[i] = *first
		}
	}
	return out
}
