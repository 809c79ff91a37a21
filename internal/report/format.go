// Package report turns the markdown report into presentation text and
// renders it as a PDF.
package report

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

var blankRuns = regexp.MustCompile(`\n(?:[ \t]*\n){2,}`)

// Format converts report markdown into plain presentation text: headings
// become upper-case lines, list items get bullets or numbers, emphasis is
// dropped, links keep their target in parentheses and table rows are joined
// with " | ".
func Format(markdown string) string {
	src := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(src))

	f := &formatter{src: src}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		f.block(n, "")
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(f.b.String(), "\n\n"))
}

type formatter struct {
	src []byte
	b   strings.Builder
}

func (f *formatter) line(indent, s string) {
	for _, l := range strings.Split(s, "\n") {
		f.b.WriteString(indent)
		f.b.WriteString(strings.TrimRight(l, " \t"))
		f.b.WriteByte('\n')
	}
}

func (f *formatter) blank() { f.b.WriteByte('\n') }

func topLevel(n ast.Node) bool {
	p := n.Parent()
	return p == nil || p.Kind() == ast.KindDocument
}

func (f *formatter) block(n ast.Node, indent string) {
	switch n := n.(type) {
	case *ast.Heading:
		f.blank()
		f.line(indent, strings.ToUpper(strings.TrimSpace(f.inline(n))))
		f.blank()

	case *ast.Paragraph, *ast.TextBlock:
		f.line(indent, strings.TrimSpace(f.inline(n)))
		if topLevel(n) {
			f.blank()
		}

	case *ast.List:
		num := n.Start
		for item := n.FirstChild(); item != nil; item = item.NextSibling() {
			marker := "• "
			if n.IsOrdered() {
				marker = fmt.Sprintf("%d. ", num)
				num++
			}
			f.listItem(item, indent, marker)
		}
		if topLevel(n) {
			f.blank()
		}

	case *extast.Table:
		for row := n.FirstChild(); row != nil; row = row.NextSibling() {
			var cells []string
			for c := row.FirstChild(); c != nil; c = c.NextSibling() {
				cells = append(cells, strings.TrimSpace(f.inline(c)))
			}
			f.line(indent, strings.Join(cells, " | "))
		}
		f.blank()

	case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			f.line(indent+"    ", strings.TrimRight(string(seg.Value(f.src)), "\r\n"))
		}
		f.blank()

	case *ast.Blockquote:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			f.block(c, indent+"  ")
		}
		f.blank()

	case *ast.ThematicBreak:
		f.blank()

	default:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			f.block(c, indent)
		}
	}
}

// listItem writes the first text block after the marker and indents
// everything else under it.
func (f *formatter) listItem(item ast.Node, indent, marker string) {
	pad := indent + strings.Repeat(" ", utf8.RuneCountInString(marker))
	c := item.FirstChild()
	if c == nil {
		f.line(indent, strings.TrimSpace(marker))
		return
	}
	if c.Kind() == ast.KindParagraph || c.Kind() == ast.KindTextBlock {
		lines := strings.Split(strings.TrimSpace(f.inline(c)), "\n")
		f.line(indent, marker+lines[0])
		for _, l := range lines[1:] {
			f.line(pad, l)
		}
		c = c.NextSibling()
	} else {
		f.line(indent, strings.TrimSpace(marker))
	}
	for ; c != nil; c = c.NextSibling() {
		f.block(c, pad)
	}
}

func (f *formatter) inline(n ast.Node) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			b.Write(c.Segment.Value(f.src))
			switch {
			case c.HardLineBreak():
				b.WriteByte('\n')
			case c.SoftLineBreak():
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(c.Value)
		case *ast.Link:
			label := f.inline(c)
			dest := string(c.Destination)
			if dest == "" || dest == label {
				b.WriteString(label)
			} else {
				fmt.Fprintf(&b, "%s (%s)", label, dest)
			}
		case *ast.AutoLink:
			b.Write(c.URL(f.src))
		case *ast.RawHTML:
		default:
			b.WriteString(f.inline(c))
		}
	}
	return b.String()
}

const maxSectionRunes = 80

var orderedPrefix = regexp.MustCompile(`^\d+[.)]\s`)

// IsSectionLine reports whether a formatted line reads as a heading: it ends
// with a colon, or it is a short upper-case or Title Case line.
func IsSectionLine(line string) bool {
	l := strings.TrimSpace(line)
	n := utf8.RuneCountInString(l)
	if n == 0 || n > maxSectionRunes || line != strings.TrimLeft(line, " \t") {
		return false
	}
	if strings.HasPrefix(l, "•") || orderedPrefix.MatchString(l) {
		return false
	}
	if strings.HasSuffix(l, ":") {
		return true
	}
	if !strings.ContainsFunc(l, unicode.IsLetter) {
		return false
	}
	if strings.ToUpper(l) == l {
		return true
	}
	return isTitleCase(l)
}

func isTitleCase(l string) bool {
	last, _ := utf8.DecodeLastRuneInString(l)
	if strings.ContainsRune(".,;!?)]", last) {
		return false
	}
	words := strings.Fields(l)
	if len(words) > 8 {
		return false
	}
	for _, w := range words {
		r, _ := utf8.DecodeRuneInString(w)
		if utf8.RuneCountInString(w) >= 4 && unicode.IsLetter(r) && !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}
