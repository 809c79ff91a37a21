package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/andrestor94/pliegos-ai/internal/doctree"
)

// extractCSV renders price schedules and item lists exported as CSV. Each
// data row becomes one line of "header: value" pairs so amounts keep their
// column names.
func extractCSV(data []byte) (doctree.Document, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return doctree.Document{}, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return singlePage("", doctree.OriginNative), nil
	}

	headers := records[0]
	var text strings.Builder
	text.WriteString(strings.Join(headers, " | "))
	for _, row := range records[1:] {
		var cells []string
		for j, cell := range row {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if j < len(headers) && strings.TrimSpace(headers[j]) != "" {
				cells = append(cells, strings.TrimSpace(headers[j])+": "+cell)
			} else {
				cells = append(cells, cell)
			}
		}
		if len(cells) > 0 {
			text.WriteString("\n")
			text.WriteString(strings.Join(cells, ", "))
		}
	}
	return singlePage(text.String(), doctree.OriginNative), nil
}
