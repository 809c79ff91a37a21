package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrestor94/pliegos-ai/internal/history"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		reportsJSON = false
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	assert.True(t, names["analyze"])
	assert.True(t, names["reports"])
}

func TestAnalyze_RequiresFiles(t *testing.T) {
	_, err := execute(t, "analyze")
	assert.Error(t, err)
}

func TestReadSources(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "pliego.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4\n"), 0o644))
	txt := filepath.Join(dir, "anexo.txt")
	require.NoError(t, os.WriteFile(txt, []byte("plazo de entrega"), 0o644))

	files, err := readSources([]string{pdf, txt})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "pliego.pdf", files[0].Name)
	assert.Equal(t, "application/pdf", files[0].MIME)
	assert.Equal(t, "anexo.txt", files[1].Name)

	_, err = readSources([]string{filepath.Join(dir, "missing.pdf")})
	assert.Error(t, err)
}

func TestReports_ListAndShow(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	t.Setenv("HISTORY_DB", db)

	store, err := history.Open(db)
	require.NoError(t, err)
	rec := &history.Record{Name: "licitacion-7", Strategy: "SINGLE_PASS", Report: "## Guarantees\n- 1%"}
	require.NoError(t, store.Save(context.Background(), rec))
	require.NoError(t, store.Close())

	out, err := execute(t, "reports")
	require.NoError(t, err)
	assert.Contains(t, out, rec.ID)
	assert.Contains(t, out, "licitacion-7")

	out, err = execute(t, "reports", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "## Guarantees\n- 1%\n", out)

	_, err = execute(t, "reports", "missing")
	assert.ErrorIs(t, err, history.ErrNotFound)
}
