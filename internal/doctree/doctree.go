package doctree

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Origin records how a page's text was obtained.
type Origin string

const (
	OriginNative      Origin = "native"
	OriginOCR         Origin = "ocr"
	OriginPlaceholder Origin = "placeholder"
)

// NoOCRText stands in for a page whose OCR call failed.
const NoOCRText = "(no OCR text)"

// Page is one page of extracted text. Numbers are 1-based and contiguous.
type Page struct {
	Number int
	Text   string
	Origin Origin
}

// Document is the extracted text of one submitted file.
type Document struct {
	Name     string   // Original filename
	Pages    []Page   // In page order
	Notices  []string // Appended after the last page, e.g. truncation notices
	Labelled bool     // Pages are emitted with [PAGE N] markers
	Degraded bool     // Extraction fell back to a lossy path
}

// PageMarker matches a page label and captures the page number.
var PageMarker = regexp.MustCompile(`\[PAGE (\d+)\]`)

// AnnexMarker matches an annex header and captures the annex index.
var AnnexMarker = regexp.MustCompile(`(?m)^===== ANNEX (\d+): .* =====$`)

// PageLabel returns the marker placed before page n.
func PageLabel(n int) string {
	return fmt.Sprintf("[PAGE %d]", n)
}

// AnnexHeader returns the marker placed before annex i.
func AnnexHeader(i int, title string) string {
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		title = fmt.Sprintf("document %d", i)
	}
	return fmt.Sprintf("===== ANNEX %d: %s =====", i, title)
}

// Text joins the pages, with [PAGE N] markers when the document is
// labelled, followed by any notices.
func (d Document) Text() string {
	var parts []string
	for _, p := range d.Pages {
		body := strings.TrimSpace(p.Text)
		if d.Labelled {
			if body == "" {
				parts = append(parts, PageLabel(p.Number))
			} else {
				parts = append(parts, PageLabel(p.Number)+"\n"+body)
			}
			continue
		}
		if body != "" {
			parts = append(parts, body)
		}
	}
	parts = append(parts, d.Notices...)
	return strings.Join(parts, "\n\n")
}

// CharCount is the number of characters across all pages.
func (d Document) CharCount() int {
	n := 0
	for _, p := range d.Pages {
		n += len([]rune(strings.TrimSpace(p.Text)))
	}
	return n
}

// Cite renders a page citation. Multi-annex runs always name the annex.
func Cite(pos Position, multiAnnex bool) string {
	if multiAnnex && pos.Annex > 0 {
		return fmt.Sprintf("[Annex %d, p. %d]", pos.Annex, pos.Page)
	}
	return fmt.Sprintf("[p. %d]", pos.Page)
}

// Annex is a document in submission order within a multi-file run.
type Annex struct {
	Index int // 1-based
	Title string
}

// Combine concatenates documents into one annotated text. A single document
// is returned without an annex header; with two or more each is preceded by
// its ANNEX header in submission order.
func Combine(docs []Document) (string, []Annex) {
	annexes := make([]Annex, 0, len(docs))
	for i, d := range docs {
		annexes = append(annexes, Annex{Index: i + 1, Title: d.Name})
	}
	if len(docs) == 1 {
		return docs[0].Text(), annexes
	}

	var parts []string
	for i, d := range docs {
		parts = append(parts, AnnexHeader(i+1, d.Name)+"\n"+d.Text())
	}
	return strings.Join(parts, "\n\n"), annexes
}

// Chunk is a contiguous window of a combined text. Start and End are rune
// offsets into the source.
type Chunk struct {
	Index      int
	Text       string
	Start      int
	End        int
	StartPage  int // Page in effect at Start (1 when no marker precedes it)
	StartAnnex int // Annex in effect at Start (0 for single-document input)
}

// Position is a page/annex location inside a combined text.
type Position struct {
	Page  int
	Annex int
}

// Locator resolves byte offsets to the nearest preceding page and annex
// markers.
type Locator struct {
	pages   []mark
	annexes []mark
}

type mark struct {
	offset int
	value  int
}

// NewLocator indexes every page and annex marker in text.
func NewLocator(text string) *Locator {
	return &Locator{
		pages:   findMarks(PageMarker, text),
		annexes: findMarks(AnnexMarker, text),
	}
}

func findMarks(re *regexp.Regexp, text string) []mark {
	var out []mark
	for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
		n, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			continue
		}
		out = append(out, mark{offset: m[0], value: n})
	}
	return out
}

// At returns the position in effect at byte offset off. Page defaults to 1
// and Annex to 0 when no marker precedes off. A page marker that belongs to
// an earlier annex does not carry over into the next one.
func (l *Locator) At(off int) Position {
	pos := Position{Page: 1}
	annexOff := -1
	if m, ok := last(l.annexes, off); ok {
		pos.Annex = m.value
		annexOff = m.offset
	}
	if m, ok := last(l.pages, off); ok && m.offset > annexOff {
		pos.Page = m.value
	}
	return pos
}

// last returns the final mark at or before off.
func last(marks []mark, off int) (mark, bool) {
	lo, hi := 0, len(marks)
	for lo < hi {
		mid := (lo + hi) / 2
		if marks[mid].offset <= off {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return mark{}, false
	}
	return marks[lo-1], true
}
