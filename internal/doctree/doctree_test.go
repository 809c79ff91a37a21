package doctree

import (
	"strings"
	"testing"
)

func TestDocument_TextLabelled(t *testing.T) {
	d := Document{
		Name: "pliego.pdf",
		Pages: []Page{
			{Number: 1, Text: "Objeto de la licitación"},
			{Number: 2, Text: "  "},
			{Number: 3, Text: "Garantía de oferta"},
		},
		Notices: []string{"[NOTICE: truncated]"},
	}

	d.Labelled = true
	got := d.Text()
	want := "[PAGE 1]\nObjeto de la licitación\n\n[PAGE 2]\n\n[PAGE 3]\nGarantía de oferta\n\n[NOTICE: truncated]"
	if got != want {
		t.Errorf("labelled Text() =\n%q\nwant\n%q", got, want)
	}

	d.Labelled = false
	got = d.Text()
	want = "Objeto de la licitación\n\nGarantía de oferta\n\n[NOTICE: truncated]"
	if got != want {
		t.Errorf("unlabelled Text() =\n%q\nwant\n%q", got, want)
	}
}

func TestCombine_SingleDocumentHasNoAnnexHeader(t *testing.T) {
	text, annexes := Combine([]Document{{Name: "a.pdf", Pages: []Page{{Number: 1, Text: "uno"}}}})
	if strings.Contains(text, "ANNEX") {
		t.Errorf("single document should not carry an annex header: %q", text)
	}
	if len(annexes) != 1 || annexes[0].Index != 1 {
		t.Errorf("annexes = %+v", annexes)
	}
}

func TestCombine_MultipleDocumentsInOrder(t *testing.T) {
	docs := []Document{
		{Name: "pliego.pdf", Pages: []Page{{Number: 1, Text: "uno"}}},
		{Name: "anexo técnico.docx", Pages: []Page{{Number: 1, Text: "dos"}}},
	}
	text, annexes := Combine(docs)

	matches := AnnexMarker.FindAllStringSubmatch(text, -1)
	if len(matches) != 2 {
		t.Fatalf("expected 2 annex markers, got %d in %q", len(matches), text)
	}
	if matches[0][1] != "1" || matches[1][1] != "2" {
		t.Errorf("annex order = %s,%s", matches[0][1], matches[1][1])
	}
	if annexes[1].Title != "anexo técnico.docx" {
		t.Errorf("annex title = %q", annexes[1].Title)
	}
}

func TestLocator_At(t *testing.T) {
	text := "intro\n[PAGE 1]\nfoo\n[PAGE 2]\nbar\n===== ANNEX 2: b.pdf =====\nno marker yet\n[PAGE 7]\nbaz"
	loc := NewLocator(text)

	tests := []struct {
		needle    string
		wantPage  int
		wantAnnex int
	}{
		{"intro", 1, 0},
		{"foo", 1, 0},
		{"bar", 2, 0},
		{"no marker yet", 1, 2},
		{"baz", 7, 2},
	}
	for _, tt := range tests {
		pos := loc.At(strings.Index(text, tt.needle))
		if pos.Page != tt.wantPage || pos.Annex != tt.wantAnnex {
			t.Errorf("At(%q) = %+v, want page %d annex %d", tt.needle, pos, tt.wantPage, tt.wantAnnex)
		}
	}
}

func TestCite(t *testing.T) {
	tests := []struct {
		pos   Position
		multi bool
		want  string
	}{
		{Position{Page: 3}, false, "[p. 3]"},
		{Position{Page: 3, Annex: 2}, false, "[p. 3]"},
		{Position{Page: 3, Annex: 2}, true, "[Annex 2, p. 3]"},
		{Position{Page: 1}, true, "[p. 1]"},
	}
	for _, tt := range tests {
		if got := Cite(tt.pos, tt.multi); got != tt.want {
			t.Errorf("Cite(%+v, %v) = %q, want %q", tt.pos, tt.multi, got, tt.want)
		}
	}
}
