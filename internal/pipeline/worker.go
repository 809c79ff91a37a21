package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andrestor94/pliegos-ai/internal/analysis"
	"github.com/andrestor94/pliegos-ai/internal/doctree"
	"github.com/andrestor94/pliegos-ai/internal/history"
	"github.com/andrestor94/pliegos-ai/internal/parser"
	"github.com/andrestor94/pliegos-ai/internal/report"
)

var (
	// ErrNoFiles is returned when a run gets no input files.
	ErrNoFiles = errors.New("no files to analyze")
	// ErrNoText is returned when no file yielded any text.
	ErrNoText = errors.New("no extractable text in the submitted files")
)

// Extractor turns one uploaded file into text.
type Extractor interface {
	Extract(ctx context.Context, f parser.SourceFile) doctree.Document
}

// Analyzer produces the report for a combined text.
type Analyzer interface {
	Analyze(ctx context.Context, in analysis.Input) analysis.Result
}

// Renderer lays out formatted report text as a PDF.
type Renderer interface {
	Render(title, formatted string) ([]byte, error)
}

// Archive stores finished runs.
type Archive interface {
	Save(ctx context.Context, r *history.Record) error
	LatestByHash(ctx context.Context, hash string) (*history.Record, error)
}

// Outcome is the result of one run.
type Outcome struct {
	ReportID    string   `json:"report_id,omitempty"`
	Name        string   `json:"name"`
	Report      string   `json:"-"`
	PDFPath     string   `json:"pdf_path"`
	Strategy    string   `json:"strategy"`
	States      []string `json:"states"`
	Repairs     []string `json:"repairs"`
	Chunks      int      `json:"chunks"`
	Annexes     int      `json:"annexes"`
	Degraded    []string `json:"degraded_files,omitempty"`
	Failed      bool     `json:"failed"`
	Reused      bool     `json:"reused,omitempty"`
	ContentHash string   `json:"content_hash"`
	ElapsedMS   int64    `json:"elapsed_ms"`
}

// RunOptions names the output of a run and reports its progress.
type RunOptions struct {
	Name  string // output file stem; derived from the first file when empty
	Title string // PDF title; the renderer default when empty

	OnStatus   func(status JobStatus, phase string)
	OnFileDone func(name string)
}

func (o RunOptions) status(s JobStatus, phase string) {
	if o.OnStatus != nil {
		o.OnStatus(s, phase)
	}
}

// Worker runs the full pipeline for one set of files:
// extract, combine, analyze, format, render, write, archive.
type Worker struct {
	extractor Extractor
	analyzer  Analyzer
	renderer  Renderer
	archive   Archive // may be nil
	outDir    string
	reuse     bool
	log       *slog.Logger
}

func NewWorker(ex Extractor, an Analyzer, rd Renderer, archive Archive, outDir string, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		extractor: ex,
		analyzer:  an,
		renderer:  rd,
		archive:   archive,
		outDir:    outDir,
		log:       log,
	}
}

// WithReuse makes Run return the newest stored report for an unchanged
// combined text instead of analyzing it again.
func (w *Worker) WithReuse(on bool) *Worker {
	w.reuse = on
	return w
}

// Run processes files in submission order. Analysis failures are not errors:
// the outcome is marked Failed and its report carries the error marker. Run
// errors only when there is nothing to analyze or the output cannot be
// produced.
func (w *Worker) Run(ctx context.Context, files []parser.SourceFile, opts RunOptions) (*Outcome, error) {
	start := time.Now()
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	name := opts.Name
	if strings.TrimSpace(name) == "" {
		name = defaultName(files[0].Name)
	}
	log := w.log.With("name", name, "files", len(files))

	// Phase 1: Extract
	opts.status(StatusExtracting, "extracting")
	docs := make([]doctree.Document, 0, len(files))
	out := &Outcome{Name: name, Annexes: len(files)}
	for _, f := range files {
		doc := w.extractor.Extract(ctx, f)
		if doc.Name == "" {
			doc.Name = f.Name
		}
		if doc.Degraded {
			log.Warn("extraction degraded", "file", f.Name)
			out.Degraded = append(out.Degraded, f.Name)
		}
		docs = append(docs, doc)
		if opts.OnFileDone != nil {
			opts.OnFileDone(f.Name)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !hasText(docs) {
		return nil, ErrNoText
	}

	text, annexes := doctree.Combine(docs)
	out.ContentHash = ContentHashHex([]byte(text))

	// Phase 1.5: Reuse check
	if w.reuse && w.archive != nil {
		if prev, ok := w.reusable(ctx, out.ContentHash, log); ok {
			log.Info("reusing stored report", "report_id", prev.ID)
			return fromRecord(prev, time.Since(start)), nil
		}
	}

	// Phase 2: Analyze
	opts.status(StatusAnalyzing, "analyzing")
	res := w.analyzer.Analyze(ctx, analysis.Input{Text: text, Annexes: annexes})
	out.Report = res.Report
	out.Strategy = string(res.Strategy)
	out.States = stateNames(res.States)
	out.Repairs = res.Repairs
	out.Chunks = res.Chunks
	out.Failed = res.Failed()
	if out.Failed {
		log.Error("analysis failed", "error", res.Err)
	}

	// Phase 3: Render
	opts.status(StatusRendering, "rendering")
	pdf, err := w.renderer.Render(opts.Title, report.Format(res.Report))
	if err != nil {
		return out, fmt.Errorf("render: %w", err)
	}
	out.PDFPath, err = report.WriteAtomic(w.outDir, name+".pdf", pdf)
	if err != nil {
		return out, fmt.Errorf("write report: %w", err)
	}
	out.ElapsedMS = time.Since(start).Milliseconds()

	// Phase 4: Archive
	if w.archive != nil {
		rec := &history.Record{
			Name:        name,
			Title:       opts.Title,
			Files:       fileNames(files),
			Strategy:    out.Strategy,
			States:      out.States,
			Repairs:     out.Repairs,
			Chunks:      out.Chunks,
			Failed:      out.Failed,
			ContentHash: out.ContentHash,
			Report:      out.Report,
			PDFPath:     out.PDFPath,
			ElapsedMS:   out.ElapsedMS,
		}
		if err := w.archive.Save(ctx, rec); err != nil {
			log.Warn("history write failed", "error", err)
		} else {
			out.ReportID = rec.ID
		}
	}

	log.Info("run complete",
		"pdf", out.PDFPath,
		"strategy", out.Strategy,
		"failed", out.Failed,
		"elapsed_ms", out.ElapsedMS)
	return out, nil
}

func (w *Worker) reusable(ctx context.Context, hash string, log *slog.Logger) (*history.Record, bool) {
	prev, err := w.archive.LatestByHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, history.ErrNotFound) {
			log.Warn("reuse lookup failed, proceeding", "error", err)
		}
		return nil, false
	}
	if _, err := os.Stat(prev.PDFPath); err != nil {
		return nil, false
	}
	return prev, true
}

func fromRecord(r *history.Record, elapsed time.Duration) *Outcome {
	return &Outcome{
		ReportID:    r.ID,
		Name:        r.Name,
		Report:      r.Report,
		PDFPath:     r.PDFPath,
		Strategy:    r.Strategy,
		States:      r.States,
		Repairs:     r.Repairs,
		Chunks:      r.Chunks,
		Annexes:     len(r.Files),
		Reused:      true,
		ContentHash: r.ContentHash,
		ElapsedMS:   elapsed.Milliseconds(),
	}
}

// hasText reports whether any page holds real text. OCR placeholders do
// not count.
func hasText(docs []doctree.Document) bool {
	for _, d := range docs {
		for _, p := range d.Pages {
			if p.Origin != doctree.OriginPlaceholder && strings.TrimSpace(p.Text) != "" {
				return true
			}
		}
	}
	return false
}

func defaultName(filename string) string {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = "pliego"
	}
	return stem + "-analysis"
}

func fileNames(files []parser.SourceFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
}

func stateNames(states []analysis.State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}
