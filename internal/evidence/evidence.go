// Package evidence mines tender text for known fields and renders the hits
// as cited hints for prompts and repair passes.
package evidence

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/andrestor94/pliegos-ai/internal/doctree"
)

// Hit is one pattern match with its surrounding text.
type Hit struct {
	Field   string
	Label   string
	Page    int
	Annex   int
	Offset  int // byte offset of the match in the mined text
	Snippet string
}

// Mine runs each field's patterns over text. Patterns are tried in
// declaration order and their matches taken in text order, skipping offsets
// already reported for the field, until maxPerField hits are collected.
// radius is the snippet context in characters on each side of the match.
func Mine(text string, fields []Field, maxPerField, radius int) []Hit {
	if maxPerField <= 0 || text == "" {
		return nil
	}
	loc := doctree.NewLocator(text)

	var hits []Hit
	for _, f := range fields {
		seen := make(map[int]bool)
		n := 0
	patterns:
		for _, re := range f.Patterns {
			for _, m := range re.FindAllStringIndex(text, -1) {
				if n >= maxPerField {
					break patterns
				}
				if seen[m[0]] {
					continue
				}
				seen[m[0]] = true
				pos := loc.At(m[0])
				hits = append(hits, Hit{
					Field:   f.Key,
					Label:   f.Label,
					Page:    pos.Page,
					Annex:   pos.Annex,
					Offset:  m[0],
					Snippet: snippet(text, m[0], m[1], radius),
				})
				n++
			}
		}
	}
	return hits
}

var markerNoise = regexp.MustCompile(`\[PAGE \d+\]|===== ANNEX \d+: [^\n]* =====`)

// snippet returns the match with up to radius runes of context on each side,
// whitespace collapsed and markers removed.
func snippet(text string, start, end, radius int) string {
	from := start
	for i := 0; i < radius && from > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:from])
		from -= size
	}
	to := end
	for i := 0; i < radius && to < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[to:])
		to += size
	}

	s := markerNoise.ReplaceAllString(text[from:to], " ")
	s = strings.Join(strings.Fields(s), " ")
	if from > 0 {
		s = "..." + s
	}
	if to < len(text) {
		s += "..."
	}
	return s
}

// Fold lowercases s and strips diacritics so "Garantía" and "GARANTIA"
// compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// cleanLabel strips list and emphasis markup around a report label.
func cleanLabel(label string) string {
	label = strings.TrimSpace(label)
	label = strings.TrimLeft(label, "-*•#> \t")
	label = strings.ReplaceAll(label, "**", "")
	label = strings.ReplaceAll(label, "__", "")
	return strings.TrimSpace(strings.TrimRight(label, ": \t*"))
}

// Lookup resolves a label as written in a report to its catalog field. The
// longest label or alias found as a whole-word run wins.
func Lookup(label string) (Field, bool) {
	words := foldWords(cleanLabel(label))
	if len(words) == 0 {
		return Field{}, false
	}
	padded := " " + strings.Join(words, " ") + " "
	var (
		best    Field
		bestLen int
	)
	for _, f := range Catalog {
		for _, alias := range append([]string{f.Label}, f.Aliases...) {
			a := strings.Join(foldWords(alias), " ")
			if a != "" && strings.Contains(padded, " "+a+" ") && len(a) > bestLen {
				best, bestLen = f, len(a)
			}
		}
	}
	return best, bestLen > 0
}

func foldWords(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ForLabel returns the catalog field for label, or an ad-hoc field whose
// single pattern matches the label's words in order, ignoring accents and
// case.
func ForLabel(label string) Field {
	if f, ok := Lookup(label); ok {
		return f
	}
	clean := cleanLabel(label)
	words := foldWords(clean)
	f := Field{Key: "label:" + strings.Join(words, "_"), Label: clean}
	if len(words) == 0 {
		return f
	}
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = accentInsensitive(w)
	}
	f.Patterns = []*regexp.Regexp{regexp.MustCompile(`(?i)` + strings.Join(parts, `\W+`))}
	return f
}

var accentClasses = map[rune]string{
	'a': "[aá]", 'e': "[eé]", 'i': "[ií]", 'o': "[oó]", 'u': "[uúü]", 'n': "[nñ]",
}

func accentInsensitive(word string) string {
	var b strings.Builder
	for _, r := range word {
		if class, ok := accentClasses[r]; ok {
			b.WriteString(class)
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(r)))
	}
	return b.String()
}

// HintLines renders each hit as one cited bullet.
func HintLines(hits []Hit, multiAnnex bool) []string {
	lines := make([]string, len(hits))
	for i, h := range hits {
		cite := doctree.Cite(doctree.Position{Page: h.Page, Annex: h.Annex}, multiAnnex)
		lines[i] = fmt.Sprintf("- %s %s: %q", h.Label, cite, h.Snippet)
	}
	return lines
}

// FormatHints renders hits as a prompt block. Empty when there are none.
func FormatHints(hits []Hit, multiAnnex bool) string {
	if len(hits) == 0 {
		return ""
	}
	return "Evidence located in the source text (verbatim excerpts, cite as shown):\n" +
		strings.Join(HintLines(hits, multiAnnex), "\n")
}
