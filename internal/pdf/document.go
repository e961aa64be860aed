package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"sync"

	"github.com/Lllllllleong/pdfpageservice/internal/models"
	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"
)

// Document is an open PDF. It is safe for sequential use only.
type Document struct {
	doc     *fitz.Document
	data    []byte
	dpi     float64
	quality int
	log     zerolog.Logger

	closeOnce sync.Once
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return d.doc.NumPage()
}

// RenderPage rasterizes page (1-based) and streams it as JPEG. The stream must be closed.
func (d *Document) RenderPage(ctx context.Context, page int) (io.ReadCloser, error) {
	if page < 1 || page > d.PageCount() {
		return nil, fmt.Errorf("page %d out of range 1-%d", page, d.PageCount())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := d.doc.ImageDPI(page-1, d.dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to rasterize page %d: %w", page, err)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(jpeg.Encode(pw, img, &jpeg.Options{Quality: d.quality}))
	}()
	return pr, nil
}

// Outline returns the document outline, or nil when it has none. Bookmarks are read with pdfcpu,
// which keeps text styling; MuPDF's table of contents is used when pdfcpu cannot parse them.
func (d *Document) Outline() ([]models.OutlineItem, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	bookmarks, err := api.Bookmarks(bytes.NewReader(d.data), conf)
	if err == nil {
		return convertBookmarks(bookmarks), nil
	}
	d.log.Debug().Err(err).Msg("Falling back to MuPDF outline")

	toc, tocErr := d.doc.ToC()
	if tocErr != nil {
		// MuPDF reports a document without an outline as an error.
		return nil, nil
	}
	return outlineFromToC(toc), nil
}

// PageLabels returns a label for every page, or nil when the document defines none.
func (d *Document) PageLabels() ([]string, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(d.data), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read document structure: %w", err)
	}
	ranges, err := readLabelRanges(ctx.XRefTable)
	if err != nil {
		return nil, err
	}
	if len(ranges) == 0 {
		return nil, nil
	}
	return expandLabels(ranges, d.PageCount()), nil
}

// Close releases the MuPDF document.
func (d *Document) Close() error {
	var err error
	d.closeOnce.Do(func() {
		err = d.doc.Close()
		d.data = nil
	})
	return err
}
