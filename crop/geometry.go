// Package crop splits a combined shipping-label and invoice page into two
// standalone single-page documents.
package crop

import (
	"errors"
	"fmt"
	"math"
)

// ErrDegenerateBox is returned when a split would produce an output box
// with zero or negative width or height.
var ErrDegenerateBox = errors.New("crop: degenerate box")

// Role names an output half of a page.
type Role string

const (
	RoleLabel   Role = "label"
	RoleInvoice Role = "invoice"
)

// Box is a rectangle in page space, origin bottom-left.
type Box struct {
	Left   float64 `json:"left"`
	Bottom float64 `json:"bottom"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
}

func (b Box) Width() float64  { return b.Right - b.Left }
func (b Box) Height() float64 { return b.Top - b.Bottom }

// Size returns the box's extent.
func (b Box) Size() Size { return Size{Width: b.Width(), Height: b.Height()} }

// Valid reports whether the box has positive area.
func (b Box) Valid() bool { return b.Width() > 0 && b.Height() > 0 }

// Overlaps reports whether two boxes share interior area. Boxes that only
// touch along an edge do not overlap.
func (b Box) Overlaps(o Box) bool {
	return b.Left < o.Right && o.Left < b.Right && b.Bottom < o.Top && o.Bottom < b.Top
}

// String renders the box as "[llx lly urx ury]".
func (b Box) String() string {
	return fmt.Sprintf("[%s %s %s %s]", num(b.Left), num(b.Bottom), num(b.Right), num(b.Top))
}

// Size is a page or target extent in points.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Label4x6 is a 4x6 inch thermal label in points.
var Label4x6 = Size{Width: 288, Height: 432}

// A4 in points.
var A4 = Size{Width: 595.28, Height: 841.89}

// Output describes one output document cut from a source page.
type Output struct {
	Role       Role  `json:"role"`
	Box        Box   `json:"box"`
	TargetSize *Size `json:"target_size,omitempty"`
}

// Spec partitions one source page into outputs.
type Spec struct {
	SplitRatio float64  `json:"split_ratio"`
	Outputs    []Output `json:"outputs"`
}

// Output returns the output with the given role.
func (s Spec) Output(role Role) (Output, bool) {
	for _, o := range s.Outputs {
		if o.Role == role {
			return o, true
		}
	}
	return Output{}, false
}

// SplitPage cuts a page horizontally at height*splitRatio. The ratio is
// the invoice's share measured from the bottom: the invoice gets
// [0, splitY] and the label gets [splitY, height]. Both heights sum to
// the page height and the boxes share only the split edge.
func SplitPage(geom Size, splitRatio float64) (label, invoice Box, err error) {
	if geom.Width <= 0 || geom.Height <= 0 || math.IsNaN(splitRatio) {
		return Box{}, Box{}, fmt.Errorf("%w: page %sx%s", ErrDegenerateBox, num(geom.Width), num(geom.Height))
	}
	splitY := geom.Height * splitRatio
	label = Box{Left: 0, Bottom: splitY, Right: geom.Width, Top: geom.Height}
	invoice = Box{Left: 0, Bottom: 0, Right: geom.Width, Top: splitY}
	if !label.Valid() || !invoice.Valid() {
		return Box{}, Box{}, fmt.Errorf("%w: split ratio %v", ErrDegenerateBox, splitRatio)
	}
	return label, invoice, nil
}

// NewSpec builds the label/invoice spec for a page. A nil target keeps
// that output at the cropped box's native scale.
func NewSpec(geom Size, splitRatio float64, labelTarget, invoiceTarget *Size) (Spec, error) {
	label, invoice, err := SplitPage(geom, splitRatio)
	if err != nil {
		return Spec{}, err
	}
	for _, t := range []*Size{labelTarget, invoiceTarget} {
		if t != nil && (t.Width <= 0 || t.Height <= 0) {
			return Spec{}, fmt.Errorf("%w: target %sx%s", ErrDegenerateBox, num(t.Width), num(t.Height))
		}
	}
	return Spec{
		SplitRatio: splitRatio,
		Outputs: []Output{
			{Role: RoleLabel, Box: label, TargetSize: labelTarget},
			{Role: RoleInvoice, Box: invoice, TargetSize: invoiceTarget},
		},
	}, nil
}

// Placement positions scaled content on a target page.
type Placement struct {
	Scale   float64 `json:"scale"`
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
}

// FitAndCenter scales src uniformly to fit inside target and centers it.
func FitAndCenter(src, target Size) Placement {
	if src.Width <= 0 || src.Height <= 0 {
		return Placement{Scale: 1}
	}
	scale := math.Min(target.Width/src.Width, target.Height/src.Height)
	return Placement{
		Scale:   scale,
		OffsetX: (target.Width - src.Width*scale) / 2,
		OffsetY: (target.Height - src.Height*scale) / 2,
	}
}

func num(f float64) string {
	return fmt.Sprintf("%.2f", f)
}
