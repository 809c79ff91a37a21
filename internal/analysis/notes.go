package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/andrestor94/pliegos-ai/internal/chunker"
	"github.com/andrestor94/pliegos-ai/internal/doctree"
)

// ErrAllNotesFailed is returned when no chunk produced notes.
var ErrAllNotesFailed = errors.New("note generation failed for every part")

type notesData struct {
	Part       int
	Total      int
	Text       string
	StartPage  int
	StartAnnex int
	MultiAnnex bool
	Annexes    []doctree.Annex
}

// notes segments the text and asks for notes on every chunk concurrently.
// Results are placed by chunk index; a failed chunk leaves a placeholder
// note and does not cancel its siblings.
func (o *Orchestrator) notes(ctx context.Context, in Input, log *slog.Logger) (string, int, error) {
	chunks := chunker.Segment(in.Text, o.cfg.Chunk)
	if len(chunks) == 0 {
		return "", 0, fmt.Errorf("notes: %w", ErrAllNotesFailed)
	}
	log.Info("generating notes", "chunks", len(chunks), "concurrency", o.cfg.NotesConcurrency)

	results := make([]string, len(chunks))
	var failed atomic.Int32

	var g errgroup.Group
	g.SetLimit(o.cfg.NotesConcurrency)
	for i, c := range chunks {
		g.Go(func() error {
			text, err := o.chunkNotes(ctx, c, len(chunks), in)
			if err != nil {
				failed.Add(1)
				log.Warn("chunk notes failed", "chunk", i+1, "start_page", c.StartPage, "error", err)
				results[i] = fmt.Sprintf("(notes unavailable for part %d of %d)", i+1, len(chunks))
				return nil
			}
			results[i] = text
			return nil
		})
	}
	g.Wait()

	if int(failed.Load()) == len(chunks) {
		return "", len(chunks), fmt.Errorf("notes: %w", ErrAllNotesFailed)
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "### Part %d of %d\n%s", i+1, len(chunks), r)
	}
	return b.String(), len(chunks), nil
}

func (o *Orchestrator) chunkNotes(ctx context.Context, c doctree.Chunk, total int, in Input) (string, error) {
	prompt, err := render(o.tmpl.notes, notesData{
		Part:       c.Index + 1,
		Total:      total,
		Text:       c.Text,
		StartPage:  c.StartPage,
		StartAnnex: c.StartAnnex,
		MultiAnnex: in.MultiAnnex(),
		Annexes:    in.Annexes,
	})
	if err != nil {
		return "", err
	}
	return o.complete(ctx, o.cfg.AnalysisModel, prompt, o.cfg.NotesMaxTokens)
}
