// Package analysis turns combined tender text into a cited report: it picks
// a single-pass or notes-then-synthesis strategy and runs a repair chain over
// the draft.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/andrestor94/pliegos-ai/internal/chunker"
	"github.com/andrestor94/pliegos-ai/internal/config"
	"github.com/andrestor94/pliegos-ai/internal/doctree"
	"github.com/andrestor94/pliegos-ai/internal/evidence"
	"github.com/andrestor94/pliegos-ai/internal/llm"
)

// State is a step of an analysis run.
type State string

const (
	StateSinglePass State = "SINGLE_PASS"
	StateNotes      State = "TWO_STAGE_NOTES"
	StateSynthesis  State = "TWO_STAGE_SYNTHESIS"
	StateRepair     State = "REPAIR"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// ErrorMarker prefixes the report text of a failed run.
const ErrorMarker = "[ANALYSIS FAILED]"

// Placeholder is the literal the report uses for fields the documents do
// not state.
const Placeholder = "NOT SPECIFIED"

// Report section headings, in order.
const (
	SectionGeneral      = evidence.SectionGeneral
	SectionKeyDates     = evidence.SectionKeyDates
	SectionGuarantees   = evidence.SectionGuarantees
	SectionBudget       = evidence.SectionBudget
	SectionRequirements = evidence.SectionRequirements
	SectionPenalties    = evidence.SectionPenalties
	SectionAnnexMap     = "Annex map"
	SectionObservations = "Observations"
)

// Sections returns the report skeleton. The annex map only exists for
// multi-annex runs.
func Sections(multiAnnex bool) []string {
	s := []string{SectionGeneral, SectionKeyDates, SectionGuarantees, SectionBudget, SectionRequirements, SectionPenalties}
	if multiAnnex {
		s = append(s, SectionAnnexMap)
	}
	return append(s, SectionObservations)
}

// Config holds the orchestrator's thresholds, budgets and toggles.
type Config struct {
	AnalysisModel  string
	SynthesisModel string

	MaxOutputTokens int
	NotesMaxTokens  int
	RepairMaxTokens int

	SinglePassMaxChars           int
	MultiAnnexSinglePassMaxChars int
	MultiAnnexTwoStageMinChars   int // 0 disables the floor

	Chunk            chunker.Config
	NotesConcurrency int

	EvidenceMaxHits      int
	EvidenceSnippetChars int

	RegexHints        bool
	SecondPass        bool
	StrictAnnexMap    bool
	StrictKeySections bool
}

// ConfigFrom projects the orchestrator settings out of the service config.
func ConfigFrom(cfg config.Config) Config {
	return Config{
		AnalysisModel:                cfg.AnalysisModel,
		SynthesisModel:               cfg.SynthesisModel,
		MaxOutputTokens:              cfg.MaxOutputTokens,
		NotesMaxTokens:               cfg.NotesMaxTokens,
		RepairMaxTokens:              cfg.RepairMaxTokens,
		SinglePassMaxChars:           cfg.SinglePassMaxChars,
		MultiAnnexSinglePassMaxChars: cfg.MultiAnnexSinglePassMaxChars,
		MultiAnnexTwoStageMinChars:   cfg.MultiAnnexTwoStageMinChars,
		Chunk:                        chunker.Config{TargetParts: cfg.TargetParts, BaseChars: cfg.ChunkBaseChars},
		NotesConcurrency:             cfg.NotesConcurrency,
		EvidenceMaxHits:              cfg.EvidenceMaxHits,
		EvidenceSnippetChars:         cfg.EvidenceSnippetChars,
		RegexHints:                   cfg.RegexHints,
		SecondPass:                   cfg.SecondPass,
		StrictAnnexMap:               cfg.StrictAnnexMap,
		StrictKeySections:            cfg.StrictKeySections,
	}
}

// Input is the combined text of one run and the annexes it was built from.
type Input struct {
	Text    string
	Annexes []doctree.Annex
}

// MultiAnnex reports whether the text carries annex headers.
func (in Input) MultiAnnex() bool { return len(in.Annexes) > 1 }

// Result is the outcome of Analyze. Report always holds something a caller
// can show: the final report, or ErrorMarker followed by the reason.
type Result struct {
	Report   string
	States   []State
	Strategy State // StateSinglePass or StateNotes
	Chunks   int
	Hits     []evidence.Hit
	Repairs  []string // repair steps that changed the draft
	Err      error
}

// Failed reports whether the run ended in StateFailed.
func (r Result) Failed() bool {
	return len(r.States) > 0 && r.States[len(r.States)-1] == StateFailed
}

// Orchestrator runs analyses. It is safe for concurrent use; every run owns
// its own state.
type Orchestrator struct {
	gw      llm.Completer
	cfg     Config
	prompts Prompts
	tmpl    *templates
	steps   []Step
	log     *slog.Logger
}

func New(gw llm.Completer, cfg Config, prompts Prompts, log *slog.Logger) (*Orchestrator, error) {
	if cfg.SynthesisModel == "" {
		cfg.SynthesisModel = cfg.AnalysisModel
	}
	if cfg.NotesConcurrency <= 0 {
		cfg.NotesConcurrency = 4
	}
	if cfg.EvidenceMaxHits <= 0 {
		cfg.EvidenceMaxHits = 3
	}
	if cfg.EvidenceSnippetChars <= 0 {
		cfg.EvidenceSnippetChars = 90
	}
	if log == nil {
		log = slog.Default()
	}
	tmpl, err := compile(prompts)
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{gw: gw, cfg: cfg, prompts: prompts, tmpl: tmpl, log: log}
	o.steps = o.repairChain()
	return o, nil
}

// Strategy returns the entry state for a text of the given shape. Lengths
// are counted in characters.
func (o *Orchestrator) Strategy(text string, multiAnnex bool) State {
	n := utf8.RuneCountInString(text)
	if multiAnnex {
		if o.cfg.MultiAnnexTwoStageMinChars > 0 && n >= o.cfg.MultiAnnexTwoStageMinChars {
			return StateNotes
		}
		if n > o.cfg.MultiAnnexSinglePassMaxChars {
			return StateNotes
		}
		return StateSinglePass
	}
	if n > o.cfg.SinglePassMaxChars {
		return StateNotes
	}
	return StateSinglePass
}

// Analyze produces the report for in. It never returns an error: failures
// of the mandatory generation call end in StateFailed with the reason in
// Report and Err.
func (o *Orchestrator) Analyze(ctx context.Context, in Input) Result {
	start := time.Now()
	multi := in.MultiAnnex()
	res := Result{Strategy: o.Strategy(in.Text, multi)}
	log := o.log.With("annexes", len(in.Annexes), "chars", utf8.RuneCountInString(in.Text),
		"est_tokens", chunker.EstimateTokens(in.Text), "strategy", res.Strategy)

	var hints string
	if o.cfg.RegexHints {
		res.Hits = evidence.Mine(in.Text, evidence.Catalog, o.cfg.EvidenceMaxHits, o.cfg.EvidenceSnippetChars)
		hints = evidence.FormatHints(res.Hits, multi)
	}

	var (
		draft string
		err   error
	)
	switch res.Strategy {
	case StateSinglePass:
		res.States = append(res.States, StateSinglePass)
		draft, err = o.singlePass(ctx, in, hints)
	default:
		res.States = append(res.States, StateNotes)
		var notes string
		notes, res.Chunks, err = o.notes(ctx, in, log)
		if err == nil {
			res.States = append(res.States, StateSynthesis)
			draft, err = o.synthesize(ctx, in, notes, hints)
		}
	}
	if err != nil {
		log.Error("analysis failed", "state", res.States[len(res.States)-1], "error", err)
		res.States = append(res.States, StateFailed)
		res.Err = err
		res.Report = fmt.Sprintf("%s %v", ErrorMarker, err)
		return res
	}

	res.States = append(res.States, StateRepair)
	res.Report, res.Repairs = o.repair(ctx, draft, in, log)
	res.States = append(res.States, StateDone)

	log.Info("analysis done",
		"chunks", res.Chunks,
		"hits", len(res.Hits),
		"repairs", strings.Join(res.Repairs, ","),
		"elapsed_ms", time.Since(start).Milliseconds())
	return res
}

// Repair runs the repair chain over an existing draft.
func (o *Orchestrator) Repair(ctx context.Context, draft string, in Input) string {
	out, _ := o.repair(ctx, draft, in, o.log)
	return out
}

type masterData struct {
	Text        string
	Notes       string
	Hints       string
	Annexes     []doctree.Annex
	MultiAnnex  bool
	Sections    []string
	Placeholder string
}

func (o *Orchestrator) baseData(in Input, hints string) masterData {
	return masterData{
		Hints:       hints,
		Annexes:     in.Annexes,
		MultiAnnex:  in.MultiAnnex(),
		Sections:    Sections(in.MultiAnnex()),
		Placeholder: Placeholder,
	}
}

func (o *Orchestrator) singlePass(ctx context.Context, in Input, hints string) (string, error) {
	data := o.baseData(in, hints)
	data.Text = in.Text
	prompt, err := render(o.tmpl.master, data)
	if err != nil {
		return "", err
	}
	out, err := o.complete(ctx, o.cfg.AnalysisModel, prompt, o.cfg.MaxOutputTokens)
	if err != nil {
		return "", fmt.Errorf("single pass: %w", err)
	}
	return out, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, in Input, notes, hints string) (string, error) {
	data := o.baseData(in, hints)
	data.Notes = notes
	prompt, err := render(o.tmpl.synthesis, data)
	if err != nil {
		return "", err
	}
	out, err := o.complete(ctx, o.cfg.SynthesisModel, prompt, o.cfg.MaxOutputTokens)
	if err != nil {
		return "", fmt.Errorf("synthesis: %w", err)
	}
	return out, nil
}

// complete sends one system+user exchange through the gateway. The gateway
// strips wrapping fences and retries answers left empty by that.
func (o *Orchestrator) complete(ctx context.Context, model, prompt string, maxTokens int) (string, error) {
	return o.gw.Complete(ctx, llm.Request{
		Model: model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: o.prompts.System},
			{Role: llm.RoleUser, Content: prompt},
		},
		MaxOutputTokens: maxTokens,
	})
}
