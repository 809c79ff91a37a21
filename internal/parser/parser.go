// Package parser turns uploaded files into page-structured text. Extraction
// never fails: unreadable input degrades to a lossy decode.
package parser

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/andrestor94/pliegos-ai/internal/config"
	"github.com/andrestor94/pliegos-ai/internal/doctree"
)

// ErrUnsupported marks input no dedicated extractor can read. It is logged,
// never returned from Extract.
var ErrUnsupported = errors.New("unsupported document")

// SourceFile is one uploaded file.
type SourceFile struct {
	Name string
	MIME string
	Data []byte
}

// Kind is the detected document family.
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindDOCX  Kind = "docx"
	KindDOC   Kind = "doc"
	KindImage Kind = "image"
	KindRTF   Kind = "rtf"
	KindHTML  Kind = "html"
	KindCSV   Kind = "csv"
	KindText  Kind = "text"
)

// SupportedExtensions lists extensions with a dedicated extractor. Anything
// else is decoded as text.
var SupportedExtensions = map[string]Kind{
	".pdf":  KindPDF,
	".docx": KindDOCX,
	".doc":  KindDOC,
	".png":  KindImage,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".webp": KindImage,
	".gif":  KindImage,
	".bmp":  KindImage,
	".tif":  KindImage,
	".tiff": KindImage,
	".rtf":  KindRTF,
	".html": KindHTML,
	".htm":  KindHTML,
	".csv":  KindCSV,
	".txt":  KindText,
}

// IsSupportedExtension checks if a file extension has a dedicated extractor.
func IsSupportedExtension(filename string) bool {
	_, ok := SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Detect picks a Kind from the extension, then the declared MIME type, then
// the leading bytes.
func Detect(f SourceFile) Kind {
	if k, ok := SupportedExtensions[strings.ToLower(filepath.Ext(f.Name))]; ok {
		return k
	}
	mime := strings.ToLower(f.MIME)
	switch {
	case mime == "application/pdf":
		return KindPDF
	case strings.Contains(mime, "wordprocessingml"):
		return KindDOCX
	case mime == "application/msword":
		return KindDOC
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case strings.Contains(mime, "rtf"):
		return KindRTF
	case mime == "text/html":
		return KindHTML
	case mime == "text/csv":
		return KindCSV
	}

	switch {
	case bytes.HasPrefix(f.Data, []byte("%PDF-")):
		return KindPDF
	case bytes.HasPrefix(f.Data, []byte("PK\x03\x04")) && bytes.Contains(f.Data, []byte("word/")):
		return KindDOCX
	case bytes.HasPrefix(f.Data, []byte(`{\rtf`)):
		return KindRTF
	}
	sniffed := http.DetectContentType(f.Data)
	switch {
	case strings.HasPrefix(sniffed, "image/"):
		return KindImage
	case strings.HasPrefix(sniffed, "text/html"):
		return KindHTML
	}
	return KindText
}

// Config controls PDF and OCR behavior.
type Config struct {
	ScanThresholdChars int     // Native total below this routes the PDF through OCR.
	OCRMinChars        int     // Per-page native floor inside the OCR path.
	OCRMaxPages        int     // Pages considered by the OCR path.
	DPI                float64 // Raster resolution for OCR.
	Concurrency        int     // Parallel OCR calls.
	PageLabels         bool    // Emit [PAGE N] markers for PDFs.
	FallbackPdftotext  bool
}

// ConfigFrom projects extractor settings out of the service config.
func ConfigFrom(cfg config.Config) Config {
	return Config{
		ScanThresholdChars: cfg.PDFScanThresholdChars,
		OCRMinChars:        cfg.OCRMinChars,
		OCRMaxPages:        cfg.OCRMaxPages,
		DPI:                cfg.OCRDPI,
		Concurrency:        cfg.OCRConcurrency,
		PageLabels:         cfg.PDFPageLabels,
		FallbackPdftotext:  cfg.PDFFallbackPdftotext,
	}
}

// Transcriber OCRs one PNG page image.
type Transcriber interface {
	Transcribe(ctx context.Context, png []byte, page int) (string, error)
}

// Extractor dispatches files to the per-format extractors.
type Extractor struct {
	cfg    Config
	pages  PageLoader
	raster Rasterizer
	ocr    Transcriber
	log    *slog.Logger
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithPageLoader replaces the native PDF text loader.
func WithPageLoader(l PageLoader) Option { return func(e *Extractor) { e.pages = l } }

// WithRasterizer replaces the PDF page renderer used for OCR.
func WithRasterizer(r Rasterizer) Option { return func(e *Extractor) { e.raster = r } }

func NewExtractor(cfg Config, ocr Transcriber, log *slog.Logger, opts ...Option) *Extractor {
	if cfg.ScanThresholdChars <= 0 {
		cfg.ScanThresholdChars = 500
	}
	if cfg.OCRMaxPages <= 0 {
		cfg.OCRMaxPages = 40
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 200
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if log == nil {
		log = slog.Default()
	}
	e := &Extractor{
		cfg:    cfg,
		ocr:    ocr,
		log:    log,
		raster: FitzRasterizer{},
	}
	e.pages = &PDFPageLoader{Fallback: cfg.FallbackPdftotext, Runner: ExecRunner{Log: log}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the document text for f. It never fails; the worst case
// is a lossy UTF-8 decode flagged as Degraded.
func (e *Extractor) Extract(ctx context.Context, f SourceFile) doctree.Document {
	kind := Detect(f)
	log := e.log.With("file", f.Name, "kind", kind, "bytes", len(f.Data))

	var (
		doc doctree.Document
		err error
	)
	switch kind {
	case KindPDF:
		doc, err = e.extractPDF(ctx, f.Data, log)
	case KindDOCX:
		doc, err = extractDOCX(f.Data)
	case KindDOC:
		doc = singlePage(printableRuns(f.Data), doctree.OriginNative)
		doc.Degraded = true
	case KindImage:
		doc, err = e.extractImage(ctx, f.Data)
	case KindRTF:
		doc = singlePage(StripRTF(decodeLossy(f.Data)), doctree.OriginNative)
	case KindHTML:
		doc, err = extractHTML(f.Data)
	case KindCSV:
		doc, err = extractCSV(f.Data)
	default:
		doc = singlePage(decodeLossy(f.Data), doctree.OriginNative)
	}

	if err != nil {
		log.Warn("extraction degraded to raw decode", "error", err)
		doc = singlePage(decodeLossy(f.Data), doctree.OriginNative)
		doc.Degraded = true
	}
	doc.Name = f.Name

	log.Info("extracted", "pages", len(doc.Pages), "chars", doc.CharCount(), "degraded", doc.Degraded)
	return doc
}

func singlePage(text string, origin doctree.Origin) doctree.Document {
	return doctree.Document{Pages: []doctree.Page{{Number: 1, Text: text, Origin: origin}}}
}
