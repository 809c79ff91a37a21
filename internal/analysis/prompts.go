package analysis

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// Prompts holds the text/template sources for every model call the
// orchestrator makes. Wording is deployment configuration; the orchestrator
// only depends on the data each template receives.
type Prompts struct {
	System      string
	Master      string
	Notes       string
	Synthesis   string
	GapFill     string
	AnnexMap    string
	KeySections string
}

const defaultSystem = `You are a senior public procurement analyst. You read tender documents (pliegos de bases y condiciones, annexes, circulars) and write precise, well structured reports for bidders. You never invent data: when a value is not in the documents you write NOT SPECIFIED.`

const citationRule = `{{if .MultiAnnex}}Cite every fact with its source as [Annex k, p. N], using the annex numbers listed above.{{else}}Cite every fact with its source page as [p. N].{{end}}`

const annexListing = `{{if .MultiAnnex}}Documents analyzed together:
{{range .Annexes}}- Annex {{.Index}}: {{.Title}}
{{end}}{{end}}`

const skeleton = `Structure the report with exactly these markdown sections, in this order:
{{range .Sections}}## {{.}}
{{end}}Inside each section use "- Label: value" bullets. Write {{.Placeholder}} for any field the documents do not state.`

const defaultMaster = `Analyze the following tender documentation and write the complete report.
` + annexListing + `
` + skeleton + `
` + citationRule + `
Do not add introductions, disclaimers or comments about the length of the input.
{{if .Hints}}
{{.Hints}}
{{end}}
----- DOCUMENTS -----
{{.Text}}`

const defaultNotes = `You are reading part {{.Part}} of {{.Total}} of a tender documentation.
` + annexListing + `
Write compact bullet notes with every relevant fact in this part: parties, purpose, procedure, dates and deadlines, guarantees and percentages, budget, payment, currency, price redetermination, requirements, penalties, and anything a bidder must not miss.
{{if .MultiAnnex}}Cite every note as [Annex k, p. N]. This part starts in annex {{.StartAnnex}}, page {{.StartPage}}.{{else}}Cite every note as [p. N]. This part starts on page {{.StartPage}}.{{end}}
Only write notes; do not write a report.
----- PART {{.Part}} -----
{{.Text}}`

const defaultSynthesis = `Below are notes taken from every part of a tender documentation. Merge them into one complete report: remove duplicates, resolve contradictions in favor of the most specific source and keep all citations.
` + annexListing + `
` + skeleton + `
` + citationRule + `
Do not mention the notes, the parts or that the input was split.
{{if .Hints}}
{{.Hints}}
{{end}}
----- NOTES -----
{{.Notes}}`

const defaultGapFill = `The report below marks some fields as {{.Placeholder}}, but the source documents contain evidence for them:
{{range .Missing}}
* {{.Label}}
{{.Evidence}}
{{end}}
Return the full report with those fields filled in from the evidence, with citations. Change nothing else: keep every section, heading, bullet and citation as it is. Leave {{.Placeholder}} where the evidence does not state the value.
----- REPORT -----
{{.Draft}}`

const defaultAnnexMap = `Rewrite only the "{{.Heading}}" section of a tender report. It must list every one of these documents, one bullet each, with a one-line description of what it contains:
{{range .Annexes}}- Annex {{.Index}}: {{.Title}}
{{end}}
Return only the section, starting with the line "## {{.Heading}}".
Current section:
{{.Section}}`

const defaultKeySections = `The following sections of a tender report still have {{.Placeholder}} values:

{{.Sections}}

Evidence found in the source documents:
{{.Evidence}}

Return only these sections, with the same headings, completing every value the evidence supports and citing it. Keep {{.Placeholder}} where the evidence is silent.`

// DefaultPrompts returns the built-in templates.
func DefaultPrompts() Prompts {
	return Prompts{
		System:      defaultSystem,
		Master:      defaultMaster,
		Notes:       defaultNotes,
		Synthesis:   defaultSynthesis,
		GapFill:     defaultGapFill,
		AnnexMap:    defaultAnnexMap,
		KeySections: defaultKeySections,
	}
}

// LoadPrompts starts from the defaults and replaces every template whose
// <name>.tmpl file exists in dir. Names: system, master, notes, synthesis,
// gapfill, annexmap, keysections. An empty dir returns the defaults.
func LoadPrompts(dir string) (Prompts, error) {
	p := DefaultPrompts()
	if dir == "" {
		return p, nil
	}
	for name, dst := range p.fields() {
		data, err := os.ReadFile(filepath.Join(dir, name+".tmpl"))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Prompts{}, fmt.Errorf("read prompt %s: %w", name, err)
		}
		*dst = string(data)
	}
	return p, nil
}

func (p *Prompts) fields() map[string]*string {
	return map[string]*string{
		"system":      &p.System,
		"master":      &p.Master,
		"notes":       &p.Notes,
		"synthesis":   &p.Synthesis,
		"gapfill":     &p.GapFill,
		"annexmap":    &p.AnnexMap,
		"keysections": &p.KeySections,
	}
}

type templates struct {
	master, notes, synthesis, gapFill, annexMap, keySections *template.Template
}

func compile(p Prompts) (*templates, error) {
	var t templates
	for _, c := range []struct {
		name string
		src  string
		dst  **template.Template
	}{
		{"master", p.Master, &t.master},
		{"notes", p.Notes, &t.notes},
		{"synthesis", p.Synthesis, &t.synthesis},
		{"gapfill", p.GapFill, &t.gapFill},
		{"annexmap", p.AnnexMap, &t.annexMap},
		{"keysections", p.KeySections, &t.keySections},
	} {
		tmpl, err := template.New(c.name).Option("missingkey=error").Parse(c.src)
		if err != nil {
			return nil, fmt.Errorf("parse prompt %s: %w", c.name, err)
		}
		*c.dst = tmpl
	}
	return &t, nil
}

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", t.Name(), err)
	}
	return b.String(), nil
}
