package report

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/go-pdf/fpdf"
)

// RenderConfig controls the PDF layout.
type RenderConfig struct {
	TemplateImage string // optional PNG/JPEG drawn behind every page
	Title         string // used when Render gets an empty title
	Author        string
	Accent        [3]int // header band and section lines
}

// Layout in millimetres.
const (
	marginX      = 18.0
	headerBand   = 18.0
	marginTop    = headerBand + 10
	marginBottom = 18.0
	lineHeight   = 5.2
	sectionGap   = 3.0
	blankGap     = 2.6
	bodySize     = 10.0
	sectionSize  = 11.5
	fontFamily   = "Helvetica"
)

// Renderer lays formatted report text out on A4 pages.
type Renderer struct {
	cfg    RenderConfig
	bg     []byte
	bgType string
}

// NewRenderer loads the template image once. A configured image that cannot
// be read or is not PNG/JPEG is an error.
func NewRenderer(cfg RenderConfig) (*Renderer, error) {
	if cfg.Title == "" {
		cfg.Title = "Tender Analysis Report"
	}
	if cfg.Accent == [3]int{} {
		cfg.Accent = [3]int{31, 56, 100}
	}
	r := &Renderer{cfg: cfg}
	if cfg.TemplateImage == "" {
		return r, nil
	}
	data, err := os.ReadFile(cfg.TemplateImage)
	if err != nil {
		return nil, fmt.Errorf("read template image: %w", err)
	}
	switch http.DetectContentType(data) {
	case "image/png":
		r.bgType = "PNG"
	case "image/jpeg":
		r.bgType = "JPG"
	default:
		return nil, fmt.Errorf("template image %s: only PNG and JPEG are supported", cfg.TemplateImage)
	}
	r.bg = data
	return r, nil
}

// Render returns the PDF bytes for already formatted text.
func (r *Renderer) Render(title, formatted string) ([]byte, error) {
	pdf, err := r.build(title, formatted)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) build(title, formatted string) (*fpdf.Fpdf, error) {
	if strings.TrimSpace(title) == "" {
		title = r.cfg.Title
	}
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(marginX, marginTop, marginX)
	pdf.SetAutoPageBreak(false, marginBottom)
	pdf.SetTitle(title, true)
	pdf.SetCreator("pliegos-ai", true)
	if r.cfg.Author != "" {
		pdf.SetAuthor(r.cfg.Author, true)
	}
	pdf.AliasNbPages("")

	const bgName = "template"
	bgOpts := fpdf.ImageOptions{ImageType: r.bgType}
	if r.bg != nil {
		pdf.RegisterImageOptionsReader(bgName, bgOpts, bytes.NewReader(r.bg))
	}

	pageW, pageH := pdf.GetPageSize()
	accent := r.cfg.Accent

	pdf.SetHeaderFunc(func() {
		if r.bg != nil {
			pdf.ImageOptions(bgName, 0, 0, pageW, pageH, false, bgOpts, 0, "")
		}
		pdf.SetFillColor(accent[0], accent[1], accent[2])
		pdf.Rect(0, 0, pageW, headerBand, "F")
		pdf.SetFont(fontFamily, "B", 13)
		pdf.SetTextColor(255, 255, 255)
		pdf.SetXY(marginX, 0)
		pdf.CellFormat(pageW-2*marginX, headerBand, fitLine(pdf, tr(title), pageW-2*marginX), "", 0, "LM", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
		pdf.SetXY(marginX, marginTop)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-marginBottom + 6)
		pdf.SetFont(fontFamily, "I", 8)
		pdf.SetTextColor(110, 110, 110)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	})

	pdf.AddPage()
	width := pageW - 2*marginX
	limit := pageH - marginBottom

	// advance starts a new page when h more millimetres do not fit.
	advance := func(h float64) {
		if pdf.GetY()+h > limit {
			pdf.AddPage()
		}
	}

	for _, raw := range strings.Split(formatted, "\n") {
		line := strings.TrimRight(raw, " \t\r")
		if strings.TrimSpace(line) == "" {
			if pdf.GetY() > marginTop {
				pdf.SetY(pdf.GetY() + blankGap)
			}
			continue
		}

		section := IsSectionLine(line)
		if section {
			pdf.SetFont(fontFamily, "B", sectionSize)
			pdf.SetTextColor(accent[0], accent[1], accent[2])
			advance(sectionGap + 2*lineHeight)
			if pdf.GetY() > marginTop {
				pdf.SetY(pdf.GetY() + sectionGap)
			}
		} else {
			pdf.SetFont(fontFamily, "", bodySize)
			pdf.SetTextColor(0, 0, 0)
		}

		trimmed := strings.TrimLeft(line, " ")
		indent := float64(len(line)-len(trimmed)) * 1.6
		for _, l := range wrap(pdf, tr, trimmed, width-indent-2) {
			advance(lineHeight)
			pdf.SetX(marginX + indent)
			pdf.CellFormat(width-indent, lineHeight, l, "", 1, "L", false, 0, "")
		}
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return pdf, nil
}

// wrap breaks s into translated lines no wider than w at the current font.
// Words wider than a full line are split by character.
func wrap(pdf *fpdf.Fpdf, tr func(string) string, s string, w float64) []string {
	var (
		lines []string
		cur   string
	)
	for _, word := range strings.Fields(s) {
		next := word
		if cur != "" {
			next = cur + " " + word
		}
		if pdf.GetStringWidth(tr(next)) <= w {
			cur = next
			continue
		}
		if cur != "" {
			lines = append(lines, tr(cur))
			cur = ""
		}
		for pdf.GetStringWidth(tr(word)) > w && utf8.RuneCountInString(word) > 1 {
			head := splitToWidth(pdf, tr, word, w)
			lines = append(lines, tr(head))
			word = word[len(head):]
		}
		cur = word
	}
	if cur != "" {
		lines = append(lines, tr(cur))
	}
	return lines
}

// splitToWidth returns the longest prefix of word, at least one character,
// that fits in w.
func splitToWidth(pdf *fpdf.Fpdf, tr func(string) string, word string, w float64) string {
	end := 0
	for i, r := range word {
		next := i + utf8.RuneLen(r)
		if end > 0 && pdf.GetStringWidth(tr(word[:next])) > w {
			break
		}
		end = next
	}
	return word[:end]
}

// fitLine truncates an already translated single line to width w.
func fitLine(pdf *fpdf.Fpdf, s string, w float64) string {
	if pdf.GetStringWidth(s) <= w {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > w {
		s = s[:len(s)-1]
	}
	return s + "..."
}
