package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/andrestor94/pliegos-ai/internal/doctree"
	"github.com/andrestor94/pliegos-ai/internal/evidence"
)

// Step is one link of the repair chain. Apply only runs when Trigger holds
// for the current draft; a step whose Apply fails leaves the draft as it
// was.
type Step struct {
	Name    string
	Trigger func(draft string, in Input) bool
	Apply   func(ctx context.Context, draft string, in Input) (string, error)
}

// repairChain builds the fixed step order. Disabled steps never trigger.
func (o *Orchestrator) repairChain() []Step {
	never := func(string, Input) bool { return false }
	steps := []Step{
		{
			Name:    "citations",
			Trigger: func(d string, in Input) bool { return NormalizeCitations(d, in.MultiAnnex()) != d },
			Apply: func(_ context.Context, d string, in Input) (string, error) {
				return NormalizeCitations(d, in.MultiAnnex()), nil
			},
		},
		{
			Name:    "meta",
			Trigger: func(d string, _ Input) bool { return HasMetaCommentary(d) },
			Apply: func(_ context.Context, d string, _ Input) (string, error) {
				return StripMetaCommentary(d), nil
			},
		},
		{Name: "gapfill", Trigger: o.gapFillNeeded, Apply: o.gapFill},
		{Name: "annexmap", Trigger: o.annexMapNeeded, Apply: o.repairAnnexMap},
		{Name: "keysections", Trigger: o.keySectionsNeeded, Apply: o.repairKeySections},
	}
	if !o.cfg.SecondPass {
		steps[2].Trigger = never
	}
	if !o.cfg.StrictAnnexMap {
		steps[3].Trigger = never
	}
	if !o.cfg.StrictKeySections {
		steps[4].Trigger = never
	}
	return steps
}

func (o *Orchestrator) repair(ctx context.Context, draft string, in Input, log *slog.Logger) (string, []string) {
	var applied []string
	for _, s := range o.steps {
		if !s.Trigger(draft, in) {
			continue
		}
		out, err := s.Apply(ctx, draft, in)
		if err != nil {
			log.Warn("repair step skipped", "step", s.Name, "error", err)
			continue
		}
		if out != draft {
			applied = append(applied, s.Name)
			draft = out
		}
	}
	return draft, applied
}

// Citations

var (
	pageCiteBody = `(?:pp?\.|p[áa]g(?:ina|s)?\.?)\s*(\d+(?:\s*[-–]\s*\d+)?)`
	annexCite    = regexp.MustCompile(`\[\s*(?:Annex|Anexo)\s+\d+\s*,\s*` + pageCiteBody + `\s*\]`)
	spanishCite  = regexp.MustCompile(`\[\s*Anexo\s+(\d+)\s*,\s*` + pageCiteBody + `\s*\]`)
)

// NormalizeCitations rewrites annex citations to page-only ones for
// single-annex runs. Multi-annex runs keep the annex and only get the
// canonical spelling.
func NormalizeCitations(draft string, multiAnnex bool) string {
	if multiAnnex {
		return spanishCite.ReplaceAllString(draft, "[Annex $1, p. $2]")
	}
	return annexCite.ReplaceAllString(draft, "[p. $1]")
}

// Meta-commentary

// metaPatterns match notes about the generation itself. Each one is
// anchored to the writer ("this report", "límites de tokens") so contract
// wording such as "prórroga por extensión" or "informes parciales" survives.
var metaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bthis\s+(?:is\s+(?:only\s+)?a\s+partial\s+(?:report|analysis)|(?:report|analysis)\s+is\s+(?:only\s+)?partial|partial\s+(?:report|analysis))\b`),
	regexp.MustCompile(`(?i)\b(?:este|el\s+presente)\s+(?:es\s+(?:solo\s+)?un\s+)?(?:informe|an[aá]lisis)\s+(?:es\s+)?parcial\b`),
	regexp.MustCompile(`(?i)\b(?:due\s+to|because\s+of)\s+(?:the\s+)?(?:length|token|output|space)\s+(?:limits?|constraints?)\b`),
	regexp.MustCompile(`(?i)\b(?:por|debido\s+a)\s+(?:(?:los|el)\s+)?l[ií]mites?\s+de\s+(?:longitud|extensi[oó]n|tokens|espacio|salida)\b`),
	regexp.MustCompile(`(?i)^\s*[(\[]?(?:continued|to\s+be\s+continued|continuar[aá])[.)\]…]*\s*$`),
	regexp.MustCompile(`(?i)\bI\s+(?:will|'ll|can)\s+continue\b`),
	regexp.MustCompile(`(?i)\bbased\s+on\s+the\s+(?:notes|parts|fragments|excerpts)\s+provided\b`),
	regexp.MustCompile(`(?i)\bas\s+an\s+AI\b`),
}

var blankRuns = regexp.MustCompile(`\n(?:[ \t]*\n){2,}`)

func isMetaLine(line string) bool {
	for _, re := range metaPatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// HasMetaCommentary reports whether any line leaks notes about the
// generation itself.
func HasMetaCommentary(draft string) bool {
	for _, line := range strings.Split(draft, "\n") {
		if isMetaLine(line) {
			return true
		}
	}
	return false
}

// StripMetaCommentary drops leaked lines and the blank runs they leave.
func StripMetaCommentary(draft string) string {
	var kept []string
	for _, line := range strings.Split(draft, "\n") {
		if !isMetaLine(line) {
			kept = append(kept, line)
		}
	}
	out := blankRuns.ReplaceAllString(strings.Join(kept, "\n"), "\n\n")
	return strings.TrimSpace(out)
}

// Placeholder detection

var placeholderRe = regexp.MustCompile(`(?i)\bNOT\s+SPECIFIED\b|\bNO\s+ESPECIFICAD[OA]S?\b`)

// HasPlaceholder reports whether s marks any field as unspecified.
func HasPlaceholder(s string) bool { return placeholderRe.MatchString(s) }

// labelOf returns the field label of a line holding a placeholder.
func labelOf(line string) string {
	loc := placeholderRe.FindStringIndex(line)
	if loc == nil {
		return ""
	}
	before := line[:loc[0]]
	if strings.Contains(before, "|") {
		for _, cell := range strings.Split(before, "|") {
			if c := strings.TrimSpace(cell); c != "" {
				before = c
				break
			}
		}
	} else if i := strings.LastIndex(before, ":"); i >= 0 {
		before = before[:i]
	}
	if i := strings.LastIndexAny(before, ";"); i >= 0 {
		before = before[i+1:]
	}
	before = strings.ReplaceAll(before, "**", "")
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(before), "-*•:|#_ \t"))
}

// Gap-fill

type gapField struct {
	Label    string
	Evidence string
}

type gapFillData struct {
	Draft       string
	Missing     []gapField
	Placeholder string
}

// missingWithEvidence lists placeholder fields the source text has matches
// for, one entry per resolved field.
func (o *Orchestrator) missingWithEvidence(draft string, in Input) []gapField {
	seen := make(map[string]bool)
	var out []gapField
	for _, line := range strings.Split(draft, "\n") {
		label := labelOf(line)
		if label == "" {
			continue
		}
		f := evidence.ForLabel(label)
		if seen[f.Key] || len(f.Patterns) == 0 {
			continue
		}
		seen[f.Key] = true
		hits := evidence.Mine(in.Text, []evidence.Field{f}, o.cfg.EvidenceMaxHits, o.cfg.EvidenceSnippetChars)
		if len(hits) == 0 {
			continue
		}
		out = append(out, gapField{Label: label, Evidence: strings.Join(evidence.HintLines(hits, in.MultiAnnex()), "\n")})
	}
	return out
}

func (o *Orchestrator) gapFillNeeded(draft string, in Input) bool {
	return HasPlaceholder(draft) && len(o.missingWithEvidence(draft, in)) > 0
}

// minGapFillRatio guards against answers that dropped most of the report.
const minGapFillRatio = 0.6

func (o *Orchestrator) gapFill(ctx context.Context, draft string, in Input) (string, error) {
	missing := o.missingWithEvidence(draft, in)
	if len(missing) == 0 {
		return draft, nil
	}
	prompt, err := render(o.tmpl.gapFill, gapFillData{Draft: draft, Missing: missing, Placeholder: Placeholder})
	if err != nil {
		return "", err
	}
	out, err := o.complete(ctx, o.cfg.AnalysisModel, prompt, o.cfg.RepairMaxTokens)
	if err != nil {
		return "", fmt.Errorf("gap-fill: %w", err)
	}
	if float64(utf8.RuneCountInString(out)) < minGapFillRatio*float64(utf8.RuneCountInString(draft)) {
		return "", errors.New("gap-fill answer is much shorter than the draft")
	}
	return out, nil
}

// Sections

var headingLine = regexp.MustCompile(`^[ \t]*(?:#{1,6}[ \t]+(.+?)|\*\*([^*]+?)\*\*:?)[ \t]*#*[ \t]*$`)

type section struct {
	Title     string
	Start     int // heading line
	BodyStart int
	End       int // next heading or end of text
}

func parseSections(text string) []section {
	var out []section
	off := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		bare := strings.TrimRight(line, "\r\n")
		if m := headingLine.FindStringSubmatch(bare); m != nil {
			title := m[1]
			if title == "" {
				title = m[2]
			}
			if n := len(out); n > 0 {
				out[n-1].End = off
			}
			out = append(out, section{Title: strings.TrimSpace(title), Start: off, BodyStart: off + len(line), End: len(text)})
		}
		off += len(line)
	}
	return out
}

var sectionAliases = map[string][]string{
	SectionAnnexMap:   {"annex map", "mapa de anexos", "documents analyzed", "annexes"},
	SectionGuarantees: {"guarantees", "garantias"},
	SectionKeyDates:   {"key dates", "fechas clave", "plazos y fechas", "cronograma"},
}

var sectionNumbering = regexp.MustCompile(`^\d+(?:\.\d+)*[.)]?\s+`)

func sectionMatches(title, name string) bool {
	t := strings.Join(strings.Fields(evidence.Fold(sectionNumbering.ReplaceAllString(strings.TrimRight(title, ": "), ""))), " ")
	for _, alias := range append([]string{strings.ToLower(name)}, sectionAliases[name]...) {
		if t == alias || strings.HasPrefix(t, alias+" ") {
			return true
		}
	}
	return false
}

func findSection(text, name string) (section, bool) {
	for _, s := range parseSections(text) {
		if sectionMatches(s.Title, name) {
			return s, true
		}
	}
	return section{}, false
}

// replaceSection swaps sec for repl, or inserts repl before the
// observations section (or at the end) when the section did not exist.
func replaceSection(draft string, sec section, found bool, repl string) string {
	repl = strings.TrimSpace(repl)
	var before, after string
	switch {
	case found:
		before, after = draft[:sec.Start], draft[sec.End:]
	default:
		if obs, ok := findSection(draft, SectionObservations); ok {
			before, after = draft[:obs.Start], draft[obs.Start:]
		} else {
			before = draft
		}
	}
	parts := []string{strings.TrimSpace(before), repl, strings.TrimSpace(after)}
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

// extractSection returns the named section from a model answer, adding the
// heading when the model only returned the body.
func extractSection(answer, name string) string {
	if sec, ok := findSection(answer, name); ok {
		return strings.TrimSpace(answer[sec.Start:sec.End])
	}
	if len(parseSections(answer)) > 0 {
		return ""
	}
	return "## " + name + "\n" + strings.TrimSpace(answer)
}

// Annex map

var annexRef = regexp.MustCompile(`(?i)\b(?:annex|anexo)\s+(\d+)`)

func missingAnnexes(draft string, annexes []doctree.Annex) []doctree.Annex {
	listed := make(map[int]bool)
	if sec, ok := findSection(draft, SectionAnnexMap); ok {
		for _, m := range annexRef.FindAllStringSubmatch(draft[sec.BodyStart:sec.End], -1) {
			if n, err := strconv.Atoi(m[1]); err == nil {
				listed[n] = true
			}
		}
	}
	var missing []doctree.Annex
	for _, a := range annexes {
		if !listed[a.Index] {
			missing = append(missing, a)
		}
	}
	return missing
}

func (o *Orchestrator) annexMapNeeded(draft string, in Input) bool {
	return in.MultiAnnex() && len(missingAnnexes(draft, in.Annexes)) > 0
}

type annexMapData struct {
	Heading string
	Annexes []doctree.Annex
	Section string
}

// repairAnnexMap regenerates the annex map with the exact annex list. Any
// annex the answer still leaves out is appended as a bare entry.
func (o *Orchestrator) repairAnnexMap(ctx context.Context, draft string, in Input) (string, error) {
	sec, found := findSection(draft, SectionAnnexMap)
	current := "(section missing)"
	if found {
		current = strings.TrimSpace(draft[sec.Start:sec.End])
	}
	prompt, err := render(o.tmpl.annexMap, annexMapData{Heading: SectionAnnexMap, Annexes: in.Annexes, Section: current})
	if err != nil {
		return "", err
	}
	out, err := o.complete(ctx, o.cfg.AnalysisModel, prompt, o.cfg.RepairMaxTokens)
	if err != nil {
		return "", fmt.Errorf("annex map: %w", err)
	}
	repl := extractSection(out, SectionAnnexMap)
	if repl == "" {
		return "", errors.New("annex map answer has no annex map section")
	}
	for _, a := range missingAnnexes(repl, in.Annexes) {
		repl += fmt.Sprintf("\n- Annex %d: %s", a.Index, a.Title)
	}
	return replaceSection(draft, sec, found, repl), nil
}

// Key sections

var keySections = []string{SectionGuarantees, SectionKeyDates}

// pendingKeySections returns the key sections that still hold placeholders,
// in draft order.
func pendingKeySections(draft string) []section {
	var out []section
	for _, s := range parseSections(draft) {
		for _, name := range keySections {
			if sectionMatches(s.Title, name) && HasPlaceholder(draft[s.BodyStart:s.End]) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

func (o *Orchestrator) keyEvidence(in Input) []evidence.Hit {
	return evidence.Mine(in.Text, evidence.InSections(keySections...), o.cfg.EvidenceMaxHits, o.cfg.EvidenceSnippetChars)
}

func (o *Orchestrator) keySectionsNeeded(draft string, in Input) bool {
	return len(pendingKeySections(draft)) > 0 && len(o.keyEvidence(in)) > 0
}

type keySectionsData struct {
	Sections    string
	Evidence    string
	Placeholder string
}

// repairKeySections asks for the pending key sections only and splices each
// returned section back in place.
func (o *Orchestrator) repairKeySections(ctx context.Context, draft string, in Input) (string, error) {
	pending := pendingKeySections(draft)
	hits := o.keyEvidence(in)
	if len(pending) == 0 || len(hits) == 0 {
		return draft, nil
	}
	var current []string
	for _, s := range pending {
		current = append(current, strings.TrimSpace(draft[s.Start:s.End]))
	}
	prompt, err := render(o.tmpl.keySections, keySectionsData{
		Sections:    strings.Join(current, "\n\n"),
		Evidence:    strings.Join(evidence.HintLines(hits, in.MultiAnnex()), "\n"),
		Placeholder: Placeholder,
	})
	if err != nil {
		return "", err
	}
	out, err := o.complete(ctx, o.cfg.AnalysisModel, prompt, o.cfg.RepairMaxTokens)
	if err != nil {
		return "", fmt.Errorf("key sections: %w", err)
	}

	replaced := 0
	for _, name := range keySections {
		sec, ok := findSection(draft, name)
		if !ok || !HasPlaceholder(draft[sec.BodyStart:sec.End]) {
			continue
		}
		ans, ok := findSection(out, name)
		if !ok {
			continue
		}
		draft = replaceSection(draft, sec, true, out[ans.Start:ans.End])
		replaced++
	}
	if replaced == 0 {
		return "", errors.New("key sections answer has none of the requested sections")
	}
	return draft, nil
}
