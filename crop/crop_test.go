package crop

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/orderdoc/internal/pdftest"
)

func TestSplitPage(t *testing.T) {
	label, invoice, err := SplitPage(Size{Width: 600, Height: 1000}, 0.45)
	require.NoError(t, err)
	assert.Equal(t, Box{Left: 0, Bottom: 0, Right: 600, Top: 450}, invoice)
	assert.Equal(t, Box{Left: 0, Bottom: 450, Right: 600, Top: 1000}, label)
}

func TestSplitCompleteness(t *testing.T) {
	for _, h := range []float64{1000, 841.89, 792, 432.5} {
		for _, r := range []float64{0.1, 0.4, 0.45, 0.5, 0.9} {
			label, invoice, err := SplitPage(Size{Width: 595, Height: h}, r)
			require.NoError(t, err)
			assert.InDelta(t, h, label.Height()+invoice.Height(), 1e-9)
			assert.Equal(t, label.Bottom, invoice.Top)
			assert.False(t, label.Overlaps(invoice))
		}
	}
}

func TestSplitDegenerate(t *testing.T) {
	tests := []struct {
		name  string
		geom  Size
		ratio float64
	}{
		{"zero ratio", Size{600, 1000}, 0},
		{"full ratio", Size{600, 1000}, 1},
		{"negative ratio", Size{600, 1000}, -0.2},
		{"ratio above one", Size{600, 1000}, 1.3},
		{"zero height", Size{600, 0}, 0.45},
		{"zero width", Size{0, 1000}, 0.45},
		{"nan", Size{600, 1000}, math.NaN()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := SplitPage(tt.geom, tt.ratio)
			assert.True(t, errors.Is(err, ErrDegenerateBox), "got %v", err)
		})
	}
}

func TestNewSpec(t *testing.T) {
	spec, err := NewSpec(Size{600, 1000}, 0.45, &Label4x6, nil)
	require.NoError(t, err)
	require.Len(t, spec.Outputs, 2)

	label, ok := spec.Output(RoleLabel)
	require.True(t, ok)
	assert.Equal(t, 450.0, label.Box.Bottom)
	require.NotNil(t, label.TargetSize)
	assert.Equal(t, Label4x6, *label.TargetSize)

	invoice, ok := spec.Output(RoleInvoice)
	require.True(t, ok)
	assert.Nil(t, invoice.TargetSize)

	_, err = NewSpec(Size{600, 1000}, 0.45, &Size{Width: 0, Height: 10}, nil)
	assert.ErrorIs(t, err, ErrDegenerateBox)
}

func TestFitAndCenter(t *testing.T) {
	// 600x550 label area onto a 288x432 label: width bound.
	p := FitAndCenter(Size{600, 550}, Label4x6)
	assert.InDelta(t, 0.48, p.Scale, 1e-9)
	assert.InDelta(t, 0, p.OffsetX, 1e-9)
	assert.InDelta(t, (432-550*0.48)/2, p.OffsetY, 1e-9)

	// Tall source: height bound, centered horizontally.
	p = FitAndCenter(Size{100, 864}, Label4x6)
	assert.InDelta(t, 0.5, p.Scale, 1e-9)
	assert.InDelta(t, (288-50)/2.0, p.OffsetX, 1e-9)
	assert.InDelta(t, 0, p.OffsetY, 1e-9)

	assert.Equal(t, Placement{Scale: 1}, FitAndCenter(Size{}, Label4x6))
}

func TestBoxString(t *testing.T) {
	assert.Equal(t, "[0.00 450.00 600.00 1000.00]", Box{0, 450, 600, 1000}.String())
}

func twoPagePDF() []byte {
	page := func(id string) pdftest.Page {
		return pdftest.Page{Width: 600, Height: 1000, Texts: []pdftest.Text{
			{X: 40, Y: 900, S: "Ship To " + id},
			{X: 40, Y: 200, S: "Tax Invoice " + id},
		}}
	}
	return pdftest.Build(page("A"), page("B"))
}

func TestCropDocument(t *testing.T) {
	c := NewCropper()
	outs, err := c.CropDocument(context.Background(), bytes.NewReader(twoPagePDF()), Options{SplitRatio: 0.45})
	require.NoError(t, err)
	require.Len(t, outs, 2)
	for i, o := range outs {
		assert.Equal(t, i+1, o.PageNumber)
		assert.True(t, bytes.HasPrefix(o.Label, []byte("%PDF")))
		assert.True(t, bytes.HasPrefix(o.Invoice, []byte("%PDF")))
	}

	labels, err := c.Combine(outs, RoleLabel)
	require.NoError(t, err)
	n, err := c.PageCount(bytes.NewReader(labels))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// labelPage has text at the bottom and top of the label half (split at
// 450) and one line in the invoice half.
func labelPage() []byte {
	return pdftest.Build(pdftest.Page{Width: 600, Height: 1000, Texts: []pdftest.Text{
		{X: 40, Y: 980, S: "LABELTOP"},
		{X: 40, Y: 470, S: "LABELBOTTOM"},
		{X: 40, Y: 200, S: "INVOICEROW"},
	}})
}

type placedLine struct{ x, y float64 }

// readPage returns page 1's media box, whether it has a crop box, and the
// position of each text line as drawn after the content transform.
func readPage(t *testing.T, data []byte) ([]float64, bool, map[string]placedLine) {
	t.Helper()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	p := r.Page(1)

	mb := p.V.Key("MediaBox")
	box := make([]float64, mb.Len())
	for i := range box {
		box[i] = mb.Index(i).Float64()
	}

	lines := make(map[string]placedLine)
	var cur strings.Builder
	var at placedLine
	flush := func() {
		if cur.Len() > 0 {
			lines[cur.String()] = at
			cur.Reset()
		}
	}
	for _, tx := range p.Content().Text {
		if cur.Len() == 0 || math.Abs(tx.Y-at.y) > 0.01 {
			flush()
			at = placedLine{x: tx.X, y: tx.Y}
		}
		cur.WriteString(tx.S)
	}
	flush()
	return box, !p.V.Key("CropBox").IsNull(), lines
}

func TestCropDocumentNativeScale(t *testing.T) {
	outs, err := NewCropper().CropDocument(context.Background(), bytes.NewReader(labelPage()), Options{SplitRatio: 0.45})
	require.NoError(t, err)
	require.Len(t, outs, 1)

	box, hasCrop, lines := readPage(t, outs[0].Label)
	assert.Equal(t, []float64{0, 0, 600, 550}, box)
	assert.False(t, hasCrop)
	assert.InDelta(t, 20, lines["LABELBOTTOM"].y, 0.01)
	assert.InDelta(t, 530, lines["LABELTOP"].y, 0.01)
	assert.InDelta(t, 40, lines["LABELTOP"].x, 0.01)
	// Still in the content stream, but below the media box.
	assert.Less(t, lines["INVOICEROW"].y, 0.0)

	box, hasCrop, lines = readPage(t, outs[0].Invoice)
	assert.Equal(t, []float64{0, 0, 600, 450}, box)
	assert.False(t, hasCrop)
	assert.InDelta(t, 200, lines["INVOICEROW"].y, 0.01)
	assert.Greater(t, lines["LABELBOTTOM"].y, 450.0)
}

func TestCropDocumentResize(t *testing.T) {
	outs, err := NewCropper().CropDocument(context.Background(), bytes.NewReader(labelPage()), Options{
		SplitRatio: 0.45,
		LabelSize:  &Label4x6,
	})
	require.NoError(t, err)
	require.Len(t, outs, 1)

	box, hasCrop, lines := readPage(t, outs[0].Label)
	assert.Equal(t, []float64{0, 0, 288, 432}, box)
	assert.False(t, hasCrop)

	// 600x550 onto 288x432: scale 0.48, centered vertically at 84.
	p := FitAndCenter(Size{600, 550}, Label4x6)
	for name, srcY := range map[string]float64{"LABELBOTTOM": 470, "LABELTOP": 980} {
		l, ok := lines[name]
		require.True(t, ok, name)
		assert.InDelta(t, p.OffsetY+(srcY-450)*p.Scale, l.y, 0.01, name)
		assert.InDelta(t, 40*p.Scale, l.x, 0.01, name)
		assert.True(t, l.y > 0 && l.y < 432, "%s at y=%v is off the page", name, l.y)
	}

	// The invoice keeps native scale.
	box, _, _ = readPage(t, outs[0].Invoice)
	assert.Equal(t, []float64{0, 0, 600, 450}, box)
}

func TestCropDocumentPageSelection(t *testing.T) {
	outs, err := NewCropper().CropDocument(context.Background(), bytes.NewReader(twoPagePDF()), Options{
		SplitRatio: 0.45,
		Pages:      []int{2},
	})
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, 2, outs[0].PageNumber)

	_, _, lines := readPage(t, outs[0].Label)
	assert.Contains(t, lines, "Ship To B")
}

func TestCropDocumentErrors(t *testing.T) {
	c := NewCropper()

	_, err := c.CropDocument(context.Background(), bytes.NewReader(twoPagePDF()), Options{SplitRatio: 1})
	assert.ErrorIs(t, err, ErrDegenerateBox)

	_, err = c.CropDocument(context.Background(), bytes.NewReader(twoPagePDF()), Options{SplitRatio: 0.45, Pages: []int{3}})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outs, err := c.CropDocument(ctx, bytes.NewReader(twoPagePDF()), Options{SplitRatio: 0.45})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, outs)

	_, err = c.Combine(nil, RoleLabel)
	assert.Error(t, err)
}
