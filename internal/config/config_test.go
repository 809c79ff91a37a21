package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := Load()
	if cfg.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", cfg.Provider)
	}
	if cfg.PDFScanThresholdChars != 500 {
		t.Errorf("PDFScanThresholdChars = %d, want 500", cfg.PDFScanThresholdChars)
	}
	if cfg.SynthesisModel != cfg.AnalysisModel {
		t.Errorf("SynthesisModel = %q, want it to follow AnalysisModel %q", cfg.SynthesisModel, cfg.AnalysisModel)
	}
	if cfg.Temperature != nil {
		t.Errorf("Temperature = %v, want nil when unset", *cfg.Temperature)
	}
	if !cfg.PDFPageLabels || !cfg.SecondPass || !cfg.StrictAnnexMap {
		t.Error("expected labels, second pass and strict annex map enabled by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MODEL_ANALYSIS", "gpt-4.1")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("OCR_CONCURRENCY", "8")
	t.Setenv("JOB_TTL", "30m")
	t.Setenv("FAST_MODE", "true")
	t.Setenv("LLM_PROVIDER", "Anthropic")

	cfg := Load()
	if cfg.AnalysisModel != "gpt-4.1" || cfg.SynthesisModel != "gpt-4.1" {
		t.Errorf("models = %q/%q", cfg.AnalysisModel, cfg.SynthesisModel)
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0.2 {
		t.Errorf("Temperature = %v, want 0.2", cfg.Temperature)
	}
	if cfg.OCRConcurrency != 8 {
		t.Errorf("OCRConcurrency = %d, want 8", cfg.OCRConcurrency)
	}
	if cfg.JobTTL != 30*time.Minute {
		t.Errorf("JobTTL = %v, want 30m", cfg.JobTTL)
	}
	if !cfg.FastMode {
		t.Error("FastMode = false, want true")
	}
	if cfg.Provider != "anthropic" {
		t.Errorf("Provider = %q, want anthropic", cfg.Provider)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("TARGET_PARTS", "-3")
	t.Setenv("NOTES_CONCURRENCY", "lots")
	t.Setenv("OCR_DPI", "0")

	cfg := Load()
	if cfg.TargetParts != 6 {
		t.Errorf("TargetParts = %d, want 6", cfg.TargetParts)
	}
	if cfg.NotesConcurrency != 4 {
		t.Errorf("NotesConcurrency = %d, want 4", cfg.NotesConcurrency)
	}
	if cfg.OCRDPI != 200 {
		t.Errorf("OCRDPI = %v, want 200", cfg.OCRDPI)
	}
}

func TestValidate(t *testing.T) {
	hot := 3.0
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"openai ok", func(c *Config) { c.OpenAIAPIKey = "k" }, false},
		{"openai missing key", func(c *Config) {}, true},
		{"anthropic ok", func(c *Config) { c.Provider = "anthropic"; c.AnthropicAPIKey = "k" }, false},
		{"unknown provider", func(c *Config) { c.Provider = "bard"; c.OpenAIAPIKey = "k" }, true},
		{"temperature out of range", func(c *Config) { c.OpenAIAPIKey = "k"; c.Temperature = &hot }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateServer_RequiresAPIKey(t *testing.T) {
	cfg := Default()
	cfg.OpenAIAPIKey = "k"
	if err := cfg.ValidateServer(); err == nil {
		t.Fatal("expected error without PLIEGOS_API_KEY")
	}
	cfg.APIKey = "secret"
	if err := cfg.ValidateServer(); err != nil {
		t.Fatalf("ValidateServer() = %v", err)
	}
}
