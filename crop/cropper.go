package crop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Options selects how a document is cut.
type Options struct {
	// SplitRatio is the invoice's share of the page height, from the bottom.
	SplitRatio float64 `json:"split_ratio" yaml:"split_ratio"`
	// LabelSize and InvoiceSize, when set, rescale the output to that page
	// size with uniform fit-and-center. Nil keeps native scale.
	LabelSize   *Size `json:"label_size,omitempty" yaml:"label_size,omitempty"`
	InvoiceSize *Size `json:"invoice_size,omitempty" yaml:"invoice_size,omitempty"`
	// Pages restricts cropping to these 1-based page numbers. Empty means all.
	Pages []int `json:"pages,omitempty" yaml:"pages,omitempty"`
}

// PageOutput holds the two standalone documents cut from one page. Each
// document's content stream is the whole source page clipped to its half,
// so a text extractor that ignores clipping paths still sees the other
// half's text, placed outside the media box.
type PageOutput struct {
	PageNumber int    `json:"page_number"`
	Label      []byte `json:"-"`
	Invoice    []byte `json:"-"`
}

// Bytes returns the document for role.
func (p PageOutput) Bytes(role Role) []byte {
	if role == RoleInvoice {
		return p.Invoice
	}
	return p.Label
}

// Cropper cuts PDF pages with pdfcpu. The zero value is not usable; call
// NewCropper.
type Cropper struct {
	conf *model.Configuration
}

// NewCropper returns a Cropper using pdfcpu's relaxed validation, which
// tolerates the slightly malformed files some marketplaces emit.
func NewCropper() *Cropper {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Cropper{conf: conf}
}

// CropDocument cuts every selected page of the PDF in rs into a label and
// an invoice document. Cancellation is checked between pages; outputs
// finished before cancellation are returned together with ctx.Err().
func (c *Cropper) CropDocument(ctx context.Context, rs io.ReadSeeker, opts Options) ([]PageOutput, error) {
	src, err := io.ReadAll(rs)
	if err != nil {
		return nil, fmt.Errorf("crop: read source: %w", err)
	}
	dims, err := api.PageDims(bytes.NewReader(src), c.config(model.LISTINFO))
	if err != nil {
		return nil, fmt.Errorf("crop: page dims: %w", err)
	}

	pages := opts.Pages
	if len(pages) == 0 {
		pages = make([]int, len(dims))
		for i := range dims {
			pages[i] = i + 1
		}
	}

	var out []PageOutput
	for _, nr := range pages {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if nr < 1 || nr > len(dims) {
			return out, fmt.Errorf("crop: page %d out of range (document has %d)", nr, len(dims))
		}
		geom := Size{Width: dims[nr-1].Width, Height: dims[nr-1].Height}
		spec, err := NewSpec(geom, opts.SplitRatio, opts.LabelSize, opts.InvoiceSize)
		if err != nil {
			return out, fmt.Errorf("page %d: %w", nr, err)
		}
		po, err := c.cropPage(src, nr, spec)
		if err != nil {
			return out, fmt.Errorf("page %d: %w", nr, err)
		}
		out = append(out, po)
		slog.Debug("crop: page done", "page", nr, "label_bytes", len(po.Label), "invoice_bytes", len(po.Invoice))
	}
	return out, nil
}

func (c *Cropper) cropPage(src []byte, nr int, spec Spec) (PageOutput, error) {
	var single bytes.Buffer
	if err := api.Trim(bytes.NewReader(src), &single, []string{strconv.Itoa(nr)}, c.config(model.TRIM)); err != nil {
		return PageOutput{}, fmt.Errorf("crop: extract page: %w", err)
	}

	po := PageOutput{PageNumber: nr}
	for _, o := range spec.Outputs {
		data, err := c.cut(single.Bytes(), o)
		if err != nil {
			return PageOutput{}, fmt.Errorf("crop: %s: %w", o.Role, err)
		}
		if o.Role == RoleInvoice {
			po.Invoice = data
		} else {
			po.Label = data
		}
	}
	return po, nil
}

// cut turns a single-page document into the output page for o: the box's
// content is scaled by FitAndCenter onto a [0 0 w h] media box, where w h is
// the target size or the box's own size, and clipped to the box.
func (c *Cropper) cut(page []byte, o Output) ([]byte, error) {
	conf := c.config(model.RESIZE)
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(page), conf)
	if err != nil {
		return nil, err
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, err
	}
	if err := place(ctx, 1, o); err != nil {
		return nil, err
	}
	ctx.EnsureVersionForWriting()

	var buf bytes.Buffer
	if err := api.Write(ctx, &buf, conf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// place rewrites page nr of ctx in place.
func place(ctx *model.Context, nr int, o Output) error {
	d, _, _, err := ctx.PageDict(nr, false)
	if err != nil {
		return err
	}

	src := o.Box.Size()
	target := src
	if o.TargetSize != nil {
		target = *o.TargetSize
	}
	p := FitAndCenter(src, target)

	content, err := ctx.PageContent(d)
	if err != nil && !errors.Is(err, model.ErrNoContent) {
		return err
	}

	var bb bytes.Buffer
	fmt.Fprintf(&bb, "q %s %s %s %s re W n %s 0 0 %s %s %s cm\n",
		pdfNum(p.OffsetX), pdfNum(p.OffsetY), pdfNum(src.Width*p.Scale), pdfNum(src.Height*p.Scale),
		pdfNum(p.Scale), pdfNum(p.Scale),
		pdfNum(p.OffsetX-o.Box.Left*p.Scale), pdfNum(p.OffsetY-o.Box.Bottom*p.Scale))
	bb.Write(content)
	bb.WriteString("\nQ\n")

	sd, err := ctx.NewStreamDictForBuf(bb.Bytes())
	if err != nil {
		return err
	}
	if err := sd.Encode(); err != nil {
		return err
	}
	ir, err := ctx.IndRefForNewObject(*sd)
	if err != nil {
		return err
	}
	d["Contents"] = *ir

	d.Update("MediaBox", types.NewNumberArray(0, 0, target.Width, target.Height))
	for _, k := range []string{"CropBox", "TrimBox", "BleedBox", "ArtBox"} {
		d.Delete(k)
	}
	return nil
}

// config returns a private copy of the base configuration; pdfcpu's api
// functions write the command into the configuration they are given.
func (c *Cropper) config(cmd model.CommandMode) *model.Configuration {
	conf := *c.conf
	conf.Cmd = cmd
	return &conf
}

func pdfNum(f float64) string {
	return strconv.FormatFloat(f, 'f', 5, 64)
}

// Combine concatenates the role's document from every output into one
// multi-page document, in slice order.
func (c *Cropper) Combine(outputs []PageOutput, role Role) ([]byte, error) {
	if len(outputs) == 0 {
		return nil, fmt.Errorf("crop: nothing to combine")
	}
	rsc := make([]io.ReadSeeker, 0, len(outputs))
	for _, o := range outputs {
		data := o.Bytes(role)
		if len(data) == 0 {
			return nil, fmt.Errorf("crop: page %d has no %s output", o.PageNumber, role)
		}
		rsc = append(rsc, bytes.NewReader(data))
	}
	if len(rsc) == 1 {
		return outputs[0].Bytes(role), nil
	}
	var buf bytes.Buffer
	if err := api.MergeRaw(rsc, &buf, false, c.config(model.MERGECREATE)); err != nil {
		return nil, fmt.Errorf("crop: merge %s: %w", role, err)
	}
	return buf.Bytes(), nil
}

// PageCount returns the number of pages in a PDF.
func (c *Cropper) PageCount(rs io.ReadSeeker) (int, error) {
	return api.PageCount(rs, c.config(model.LISTINFO))
}
