package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/andrestor94/pliegos-ai/internal/doctree"
)

// extractDOCX returns body paragraphs in document order followed by every
// table row, cells joined by " | ".
func extractDOCX(data []byte) (doc doctree.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("docx reader panic: %v", r)
		}
	}()

	d, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return doctree.Document{}, fmt.Errorf("parse docx: %w", err)
	}

	var paragraphs, rows []string
	for _, item := range d.Document.Body.Items {
		switch v := item.(type) {
		case *docx.Paragraph:
			if text := docxParagraphText(v); text != "" {
				paragraphs = append(paragraphs, text)
			}
		case *docx.Table:
			rows = append(rows, docxTableRows(v)...)
		}
	}

	text := strings.Join(paragraphs, "\n\n")
	if len(rows) > 0 {
		if text != "" {
			text += "\n\n"
		}
		text += strings.Join(rows, "\n")
	}
	return singlePage(text, doctree.OriginNative), nil
}

func docxTableRows(t *docx.Table) []string {
	var rows []string
	for _, row := range t.TableRows {
		var cells []string
		for _, cell := range row.TableCells {
			var parts []string
			for _, p := range cell.Paragraphs {
				if text := docxParagraphText(p); text != "" {
					parts = append(parts, text)
				}
			}
			cells = append(cells, strings.Join(parts, " "))
			for _, nested := range cell.Tables {
				rows = append(rows, docxTableRows(nested)...)
			}
		}
		if strings.TrimSpace(strings.Join(cells, "")) != "" {
			rows = append(rows, strings.Join(cells, " | "))
		}
	}
	return rows
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		switch c := child.(type) {
		case *docx.Run:
			writeRun(&buf, c)
		case *docx.Hyperlink:
			writeRun(&buf, &c.Run)
		}
	}
	return strings.TrimSpace(buf.String())
}

func writeRun(buf *strings.Builder, run *docx.Run) {
	for _, rc := range run.Children {
		switch t := rc.(type) {
		case *docx.Text:
			buf.WriteString(t.Text)
		case *docx.Tab:
			buf.WriteByte('\t')
		}
	}
}
