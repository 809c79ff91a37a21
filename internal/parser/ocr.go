package parser

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"strings"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/sync/errgroup"

	"github.com/andrestor94/pliegos-ai/internal/doctree"
)

// Rasterizer opens a PDF for page rendering.
type Rasterizer interface {
	Open(data []byte) (RasterDoc, error)
}

// RasterDoc renders pages of an open PDF. Pages are 1-based.
type RasterDoc interface {
	NumPages() int
	PagePNG(page int, dpi float64) ([]byte, error)
	Close() error
}

// FitzRasterizer renders pages with MuPDF.
type FitzRasterizer struct{}

func (FitzRasterizer) Open(data []byte) (RasterDoc, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf for rendering: %w", err)
	}
	return fitzDoc{doc: doc}, nil
}

type fitzDoc struct {
	doc *fitz.Document
}

func (d fitzDoc) NumPages() int { return d.doc.NumPage() }

func (d fitzDoc) PagePNG(page int, dpi float64) ([]byte, error) {
	img, err := d.doc.ImageDPI(page-1, dpi)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode page %d: %w", page, err)
	}
	return buf.Bytes(), nil
}

func (d fitzDoc) Close() error { return d.doc.Close() }

// ocrPDF builds the page list for a scan-dominant PDF. Pages whose native
// text is under the floor are rendered and transcribed concurrently; any
// failure leaves a placeholder for that page only.
func (e *Extractor) ocrPDF(ctx context.Context, data []byte, native []string, log *slog.Logger) doctree.Document {
	rd, err := e.raster.Open(data)
	if err != nil {
		log.Warn("pdf rendering unavailable", "error", err)
		return e.ocrPages(ctx, nil, native, log)
	}
	defer rd.Close()
	return e.ocrPages(ctx, rd, native, log)
}

// ocrPages transcribes pages of an open raster. A nil raster yields
// placeholders for every page below the native floor.
func (e *Extractor) ocrPages(ctx context.Context, raster RasterDoc, native []string, log *slog.Logger) doctree.Document {
	doc := doctree.Document{Labelled: e.cfg.PageLabels}

	total := len(native)
	if raster != nil && raster.NumPages() > total {
		total = raster.NumPages()
	}
	limit := total
	if limit > e.cfg.OCRMaxPages {
		limit = e.cfg.OCRMaxPages
	}

	pages := make([]doctree.Page, limit)
	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)

	for i := 0; i < limit; i++ {
		n := i + 1
		text := ""
		if i < len(native) {
			text = strings.TrimSpace(native[i])
		}
		if len([]rune(text)) >= e.cfg.OCRMinChars && text != "" {
			pages[i] = doctree.Page{Number: n, Text: text, Origin: doctree.OriginNative}
			continue
		}
		if raster == nil || e.ocr == nil {
			pages[i] = doctree.Page{Number: n, Text: doctree.NoOCRText, Origin: doctree.OriginPlaceholder}
			continue
		}

		g.Go(func() error {
			pages[i] = e.ocrPage(ctx, raster, n, log)
			return nil
		})
	}
	g.Wait()

	doc.Pages = pages
	if total > limit {
		doc.Notices = append(doc.Notices, fmt.Sprintf(
			"[NOTICE: OCR limited to the first %d of %d pages; %d pages were not processed]",
			limit, total, total-limit))
	}
	return doc
}

func (e *Extractor) ocrPage(ctx context.Context, raster RasterDoc, n int, log *slog.Logger) doctree.Page {
	img, err := raster.PagePNG(n, e.cfg.DPI)
	if err != nil {
		log.Warn("ocr page render failed", "page", n, "error", err)
		return doctree.Page{Number: n, Text: doctree.NoOCRText, Origin: doctree.OriginPlaceholder}
	}
	text, err := e.ocr.Transcribe(ctx, img, n)
	if err != nil || strings.TrimSpace(text) == "" {
		log.Warn("ocr page failed", "page", n, "error", err)
		return doctree.Page{Number: n, Text: doctree.NoOCRText, Origin: doctree.OriginPlaceholder}
	}
	return doctree.Page{Number: n, Text: strings.TrimSpace(text), Origin: doctree.OriginOCR}
}
