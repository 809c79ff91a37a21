package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andrestor94/pliegos-ai/internal/config"
	"github.com/andrestor94/pliegos-ai/internal/history"
)

var (
	reportsLimit int
	reportsJSON  bool
)

var reportsCmd = &cobra.Command{
	Use:   "reports [ID]",
	Short: "List stored analyses, or print one report",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReports,
}

func init() {
	reportsCmd.Flags().IntVarP(&reportsLimit, "limit", "l", 20, "maximum number of reports to list")
	reportsCmd.Flags().BoolVar(&reportsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(reportsCmd)
}

func runReports(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.HistoryDB == "" {
		return errors.New("HISTORY_DB is not set")
	}
	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if len(args) == 1 {
		rec, err := store.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if reportsJSON {
			return printJSON(cmd, rec)
		}
		fmt.Fprintln(cmd.OutOrStdout(), rec.Report)
		return nil
	}

	list, err := store.List(ctx, reportsLimit)
	if err != nil {
		return err
	}
	if reportsJSON {
		return printJSON(cmd, list)
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No reports found.")
		return nil
	}
	for i := range list {
		r := &list[i]
		status := "ok"
		if r.Failed {
			status = "FAILED"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %-6s  %-20s  %s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04"), r.ID, status, r.Strategy, r.Name)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
