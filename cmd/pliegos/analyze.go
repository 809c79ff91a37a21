package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/andrestor94/pliegos-ai/internal/app"
	"github.com/andrestor94/pliegos-ai/internal/parser"
	"github.com/andrestor94/pliegos-ai/internal/pipeline"
)

var (
	analyzeOut   string
	analyzeName  string
	analyzeTitle string
	analyzeText  bool
	analyzeJSON  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE...",
	Short: "Analyze one tender and its annexes",
	Long: `Analyzes the given files as one tender, in the order given: the first
file is annex 1. Writes the PDF report and prints its path.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeOut, "out", "o", "", "output directory (default OUTPUT_DIR)")
	analyzeCmd.Flags().StringVarP(&analyzeName, "name", "n", "", "output file name without extension")
	analyzeCmd.Flags().StringVar(&analyzeTitle, "title", "", "title printed in the PDF header")
	analyzeCmd.Flags().BoolVar(&analyzeText, "text", false, "print the report text instead of the PDF path")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the run outcome as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if analyzeOut != "" {
		cfg.OutputDir = analyzeOut
	}

	files, err := readSources(args)
	if err != nil {
		return err
	}

	log := newLogger()
	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out, err := a.Worker.Run(ctx, files, pipeline.RunOptions{
		Name:  analyzeName,
		Title: analyzeTitle,
		OnStatus: func(_ pipeline.JobStatus, phase string) {
			log.Info("phase", "phase", phase)
		},
	})
	if errors.Is(err, pipeline.ErrNoText) {
		return fmt.Errorf("%w: scanned files need a working vision model", err)
	}
	if err != nil {
		return err
	}

	switch {
	case analyzeJSON:
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal outcome: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	case analyzeText:
		fmt.Fprintln(cmd.OutOrStdout(), out.Report)
	default:
		fmt.Fprintln(cmd.OutOrStdout(), out.PDFPath)
	}
	if out.Failed {
		return errors.New("analysis failed; the PDF holds the error report")
	}
	return nil
}

func readSources(paths []string) ([]parser.SourceFile, error) {
	files := make([]parser.SourceFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		files = append(files, parser.SourceFile{
			Name: filepath.Base(p),
			MIME: http.DetectContentType(data),
			Data: data,
		})
	}
	return files, nil
}
