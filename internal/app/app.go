// Package app assembles the analysis pipeline from the service config.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/andrestor94/pliegos-ai/internal/analysis"
	"github.com/andrestor94/pliegos-ai/internal/config"
	"github.com/andrestor94/pliegos-ai/internal/history"
	"github.com/andrestor94/pliegos-ai/internal/llm"
	"github.com/andrestor94/pliegos-ai/internal/parser"
	"github.com/andrestor94/pliegos-ai/internal/pipeline"
	"github.com/andrestor94/pliegos-ai/internal/report"
)

// App holds the wired pipeline and what must be released on shutdown.
type App struct {
	Worker  *pipeline.Worker
	History *history.Store
	Stats   *llm.Stats

	closers []func()
}

// New builds the provider, gateway, extractor, orchestrator, renderer and
// history store. The config must already be validated.
func New(cfg config.Config, log *slog.Logger) (*App, error) {
	a := &App{Stats: llm.NewStats(time.Hour)}

	var provider llm.Provider
	switch cfg.Provider {
	case "anthropic":
		p := llm.NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, cfg.LLMTimeout)
		a.closers = append(a.closers, p.Close)
		provider = p
	default:
		p := llm.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.LLMTimeout)
		a.closers = append(a.closers, p.Close)
		provider = p
	}
	gw := llm.NewGateway(provider, llm.GatewayConfigFrom(cfg), a.Stats, log)

	vision := llm.NewVisionTranscriber(gw, cfg.VisionModel, cfg.OCRMaxTokens)
	extractor := parser.NewExtractor(parser.ConfigFrom(cfg), vision, log)

	prompts, err := analysis.LoadPrompts(cfg.PromptsDir)
	if err != nil {
		a.Close()
		return nil, err
	}
	orch, err := analysis.New(gw, analysis.ConfigFrom(cfg), prompts, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("building orchestrator: %w", err)
	}

	renderer, err := report.NewRenderer(report.RenderConfig{
		TemplateImage: cfg.TemplateImage,
		Title:         cfg.ReportTitle,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("building renderer: %w", err)
	}

	var archive pipeline.Archive
	if cfg.HistoryDB != "" {
		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("opening history: %w", err)
		}
		a.History = store
		a.closers = append(a.closers, func() {
			if err := store.Close(); err != nil {
				log.Warn("closing history", "error", err)
			}
		})
		archive = store
	}

	a.Worker = pipeline.NewWorker(extractor, orch, renderer, archive, cfg.OutputDir, log).
		WithReuse(cfg.ReuseReports)
	return a, nil
}

// Close releases clients and the history database, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
