package parser

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/andrestor94/pliegos-ai/internal/doctree"
)

// toPNG decodes the first frame of any registered image format and
// re-encodes it as PNG.
func toPNG(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrUnsupported, err)
	}
	if format == "png" {
		return data, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// extractImage OCRs a single image regardless of any embedded text.
// Failures produce a placeholder page, never an error.
func (e *Extractor) extractImage(ctx context.Context, data []byte) (doctree.Document, error) {
	placeholder := singlePage(doctree.NoOCRText, doctree.OriginPlaceholder)
	placeholder.Degraded = true

	img, err := toPNG(data)
	if err != nil {
		e.log.Warn("image conversion failed", "error", err)
		return placeholder, nil
	}
	if e.ocr == nil {
		return placeholder, nil
	}
	text, err := e.ocr.Transcribe(ctx, img, 1)
	if err != nil || strings.TrimSpace(text) == "" {
		e.log.Warn("image ocr failed", "error", err)
		return placeholder, nil
	}
	return singlePage(strings.TrimSpace(text), doctree.OriginOCR), nil
}
