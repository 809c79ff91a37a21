package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/andrestor94/pliegos-ai/internal/doctree"
)

// PageLoader returns the native text layer of each PDF page, in order.
type PageLoader interface {
	NativePages(ctx context.Context, data []byte) ([]string, error)
}

// PDFPageLoader reads text with ledongthuc/pdf and, when that fails, with
// the pdftotext binary.
type PDFPageLoader struct {
	Fallback bool
	Runner   Runner
}

func (l *PDFPageLoader) NativePages(ctx context.Context, data []byte) ([]string, error) {
	pages, err := readPDFPages(data)
	if err == nil {
		return pages, nil
	}
	if !l.Fallback || l.Runner == nil {
		return nil, err
	}
	pages, ferr := l.pdftotext(ctx, data)
	if ferr != nil {
		return nil, fmt.Errorf("extract pdf text: %w (pdftotext: %v)", err, ferr)
	}
	return pages, nil
}

func readPDFPages(data []byte) (pages []string, err error) {
	// The library panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	numPages := reader.NumPage()
	pages = make([]string, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages[i-1] = text
	}
	return pages, nil
}

func (l *PDFPageLoader) pdftotext(ctx context.Context, data []byte) ([]string, error) {
	tmp, err := os.CreateTemp("", "pliegos-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	out, errb, err := l.Runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", "-eol", "unix", tmpPath, "-")
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w: %s", err, truncate(string(errb), 200))
	}
	// pdftotext separates pages with form feeds and ends with one.
	pages := strings.Split(strings.TrimSuffix(string(out), "\f"), "\f")
	return pages, nil
}

func (e *Extractor) extractPDF(ctx context.Context, data []byte, log *slog.Logger) (doctree.Document, error) {
	native, err := e.pages.NativePages(ctx, data)
	if err != nil {
		return e.ocrUnreadablePDF(ctx, data, err, log)
	}

	total := 0
	for _, p := range native {
		total += len([]rune(strings.TrimSpace(p)))
	}

	doc := doctree.Document{Labelled: e.cfg.PageLabels}
	if total >= e.cfg.ScanThresholdChars {
		for i, p := range native {
			doc.Pages = append(doc.Pages, doctree.Page{Number: i + 1, Text: strings.TrimSpace(p), Origin: doctree.OriginNative})
		}
		return doc, nil
	}

	log.Info("pdf looks scanned, using OCR path", "native_chars", total, "pages", len(native))
	return e.ocrPDF(ctx, data, native, log), nil
}

// ocrUnreadablePDF handles a PDF without a readable text layer. It has no
// native characters, so every page goes through OCR when the rasterizer
// can open the file. Otherwise the error stands and Extract decodes raw.
func (e *Extractor) ocrUnreadablePDF(ctx context.Context, data []byte, textErr error, log *slog.Logger) (doctree.Document, error) {
	rd, err := e.raster.Open(data)
	if err != nil {
		return doctree.Document{}, fmt.Errorf("%w (render: %v)", textErr, err)
	}
	defer rd.Close()
	if rd.NumPages() == 0 {
		return doctree.Document{}, fmt.Errorf("%w (render: no pages)", textErr)
	}

	log.Warn("pdf text layer unreadable, using OCR path", "error", textErr, "pages", rd.NumPages())
	doc := e.ocrPages(ctx, rd, nil, log)
	doc.Degraded = true
	return doc, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
