// Package watermark renders a traceable copy of a PDF: every page is
// re-embedded unchanged and overlaid with a tiled, diagonal, low-opacity
// text mark naming the viewer.
package watermark

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
	"github.com/jung-kurt/gofpdf/contrib/gofpdi"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

type Error string

func (e Error) Error() string {
	return string(e)
}

var (
	ErrInvalidDocument  = Error("input is not a well-formed PDF document")
	ErrDocumentTooLarge = Error("document exceeds the watermark rendering limits")
)

const (
	fontFamily  = "Helvetica"
	fontSize    = 18.0
	opacity     = 0.1
	angle       = 45.0
	minStepSize = 100.0
)

// Renderer is stateless and safe for concurrent use. Limits bound the work a
// single request may cause; zero values disable the respective cap.
type Renderer struct {
	MaxPages int
	MaxBytes int64
}

func NewRenderer(maxPages int, maxBytes int64) *Renderer {
	return &Renderer{MaxPages: maxPages, MaxBytes: maxBytes}
}

// Render returns a new PDF with the same pages as input, each overlaid with
// the tiled watermark text. Page order, count and sizes are preserved.
func (r *Renderer) Render(ctx context.Context, input []byte, text string) (out []byte, err error) {
	if r.MaxBytes > 0 && int64(len(input)) > r.MaxBytes {
		return nil, ErrDocumentTooLarge
	}

	pdfCtx, err := api.ReadContext(bytes.NewReader(input), model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := api.ValidateContext(pdfCtx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	pageCount := pdfCtx.PageCount
	if pageCount == 0 {
		return nil, ErrInvalidDocument
	}
	if r.MaxPages > 0 && pageCount > r.MaxPages {
		return nil, ErrDocumentTooLarge
	}
	dims, err := pdfCtx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	// The page importer panics on parse errors instead of returning them.
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = fmt.Errorf("%w: %v", ErrInvalidDocument, rec)
		}
	}()

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: dims[0].Width, Ht: dims[0].Height},
	})
	pdf.SetAutoPageBreak(false, 0)

	importer := gofpdi.NewImporter()
	var rs io.ReadSeeker = bytes.NewReader(input)

	for page := 1; page <= pageCount; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		width := dims[page-1].Width
		height := dims[page-1].Height

		tpl := importer.ImportPageFromStream(pdf, &rs, page, "/MediaBox")
		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: width, Ht: height})
		importer.UseImportedTemplate(pdf, tpl, 0, 0, width, height)

		overlayTiles(pdf, width, height, text)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write watermarked pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// overlayTiles draws the watermark grid over one page. The step and the +2
// tile counts guarantee full coverage including partial tiles at the edges,
// whatever the page size.
func overlayTiles(pdf *gofpdf.Fpdf, width, height float64, text string) {
	step := TileStep()
	numX := TileCount(width, step)
	numY := TileCount(height, step)

	pdf.SetFont(fontFamily, "", fontSize)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetAlpha(opacity, "Normal")

	for x := 0; x < numX; x++ {
		for y := 0; y < numY; y++ {
			tx := float64(x-1) * step
			ty := height - float64(y-1)*step
			pdf.TransformBegin()
			pdf.TransformTranslate(tx, ty)
			pdf.TransformRotate(angle, 0, 0)
			pdf.Text(0, 0, text)
			pdf.TransformEnd()
		}
	}

	pdf.SetAlpha(1, "Normal")
}

// TileStep is the watermark grid pitch in page units.
func TileStep() float64 {
	step := fontSize * 4
	if step < minStepSize {
		step = minStepSize
	}
	return step
}

// TileCount is the number of tiles along one axis for a page dimension.
func TileCount(dimension, step float64) int {
	return int(dimension/step) + 2
}

// PageInfo reports page count and per-page media box sizes of a PDF.
func PageInfo(input []byte) (int, [][2]float64, error) {
	pdfCtx, err := api.ReadContext(bytes.NewReader(input), model.NewDefaultConfiguration())
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	dims, err := pdfCtx.PageDims()
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	sizes := make([][2]float64, len(dims))
	for i, d := range dims {
		sizes[i] = [2]float64{d.Width, d.Height}
	}
	return pdfCtx.PageCount, sizes, nil
}
