package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Completion providers
	Provider         string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	AnthropicAPIKey  string
	AnthropicBaseURL string

	// Models
	AnalysisModel  string
	SynthesisModel string
	VisionModel    string
	FallbackModel  string

	// Gateway
	LLMTimeout          time.Duration
	LLMMaxRetries       int
	LLMRatePerSec       float64
	LLMRateBurst        int
	Temperature         *float64
	FastMode            bool
	FastMinOutputTokens int

	// Output budgets (tokens)
	MaxOutputTokens int
	NotesMaxTokens  int
	RepairMaxTokens int
	OCRMaxTokens    int

	// Strategy thresholds (characters)
	SinglePassMaxChars           int
	MultiAnnexSinglePassMaxChars int
	MultiAnnexTwoStageMinChars   int
	ChunkBaseChars               int
	TargetParts                  int
	NotesConcurrency             int

	// OCR
	PDFScanThresholdChars int
	OCRMinChars           int
	OCRMaxPages           int
	OCRDPI                float64
	OCRConcurrency        int
	PDFPageLabels         bool
	PDFFallbackPdftotext  bool

	// Evidence mining
	EvidenceMaxHits      int
	EvidenceSnippetChars int

	// Repair toggles
	RegexHints        bool
	SecondPass        bool
	StrictAnnexMap    bool
	StrictKeySections bool

	// Output
	OutputDir     string
	TemplateImage string
	ReportTitle   string
	HistoryDB     string
	PromptsDir    string
	ReuseReports  bool // serve the stored report when the combined text is unchanged

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes     int64
	MaxFilesPerRequest int

	// Job state
	JobTTL time.Duration
}

// Load reads an optional .env file and then the environment. Values that
// fail to parse or fall out of range are replaced by their defaults.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("PLIEGOS_API_KEY"),

		Provider:         strings.ToLower(envOr("LLM_PROVIDER", "openai")),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicBaseURL: os.Getenv("ANTHROPIC_BASE_URL"),

		AnalysisModel: envOr("MODEL_ANALYSIS", "gpt-4o"),
		VisionModel:   envOr("MODEL_VISION", "gpt-4o-mini"),
		FallbackModel: envOr("MODEL_FALLBACK", "gpt-4o-mini"),

		LLMTimeout:          envDuration("LLM_TIMEOUT", 180*time.Second),
		LLMMaxRetries:       envInt("LLM_MAX_RETRIES", 3),
		LLMRatePerSec:       envFloat("LLM_RATE_PER_SEC", 0),
		LLMRateBurst:        envInt("LLM_RATE_BURST", 2),
		Temperature:         envFloatPtr("LLM_TEMPERATURE"),
		FastMode:            envBool("FAST_MODE", false),
		FastMinOutputTokens: envInt("FAST_MIN_OUTPUT_TOKENS", 1500),

		MaxOutputTokens: envInt("MAX_OUTPUT_TOKENS", 8000),
		NotesMaxTokens:  envInt("NOTES_MAX_TOKENS", 1800),
		RepairMaxTokens: envInt("REPAIR_MAX_TOKENS", 6000),
		OCRMaxTokens:    envInt("OCR_MAX_TOKENS", 3000),

		SinglePassMaxChars:           envInt("SINGLE_PASS_MAX_CHARS", 60000),
		MultiAnnexSinglePassMaxChars: envInt("MULTI_ANNEX_SINGLE_PASS_MAX_CHARS", 140000),
		MultiAnnexTwoStageMinChars:   envInt("MULTI_ANNEX_TWO_STAGE_MIN_CHARS", 100000),
		ChunkBaseChars:               envInt("CHUNK_BASE_CHARS", 12000),
		TargetParts:                  envInt("TARGET_PARTS", 6),
		NotesConcurrency:             envInt("NOTES_CONCURRENCY", 4),

		PDFScanThresholdChars: envInt("PDF_SCAN_THRESHOLD_CHARS", 500),
		OCRMinChars:           envInt("OCR_MIN_CHARS", 40),
		OCRMaxPages:           envInt("OCR_MAX_PAGES", 40),
		OCRDPI:                envFloat("OCR_DPI", 200),
		OCRConcurrency:        envInt("OCR_CONCURRENCY", 4),
		PDFPageLabels:         envBool("PDF_PAGE_LABELS", true),
		PDFFallbackPdftotext:  envBool("PDF_FALLBACK_PDFTOTEXT", true),

		EvidenceMaxHits:      envInt("EVIDENCE_MAX_HITS", 3),
		EvidenceSnippetChars: envInt("EVIDENCE_SNIPPET_CHARS", 90),

		RegexHints:        envBool("REGEX_HINTS", true),
		SecondPass:        envBool("SECOND_PASS", true),
		StrictAnnexMap:    envBool("STRICT_ANNEX_MAP", true),
		StrictKeySections: envBool("STRICT_KEY_SECTIONS", true),

		OutputDir:     envOr("OUTPUT_DIR", "./reports"),
		TemplateImage: os.Getenv("TEMPLATE_IMAGE"),
		ReportTitle:   envOr("REPORT_TITLE", "Tender Analysis Report"),
		HistoryDB:     envOr("HISTORY_DB", "./pliegos.db"),
		PromptsDir:    os.Getenv("PROMPTS_DIR"),
		ReuseReports:  envBool("REUSE_REPORTS", false),

		WorkerCount:  envInt("WORKER_COUNT", 2),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 50),

		MaxUploadBytes:     envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB
		MaxFilesPerRequest: envInt("MAX_FILES_PER_REQUEST", 10),

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),
	}
	cfg.SynthesisModel = envOr("MODEL_SYNTHESIS", cfg.AnalysisModel)

	cfg.applyDefaults()
	return cfg
}

// Default returns the configuration Load would produce from an empty
// environment.
func Default() Config {
	cfg := Config{
		Port:                       "8090",
		Provider:                   "openai",
		AnalysisModel:              "gpt-4o",
		SynthesisModel:             "gpt-4o",
		VisionModel:                "gpt-4o-mini",
		FallbackModel:              "gpt-4o-mini",
		MultiAnnexTwoStageMinChars: 100000,
		OCRMinChars:                40,
		PDFPageLabels:              true,
		PDFFallbackPdftotext:       true,
		RegexHints:                 true,
		SecondPass:                 true,
		StrictAnnexMap:             true,
		StrictKeySections:          true,
		OutputDir:                  "./reports",
		ReportTitle:                "Tender Analysis Report",
		HistoryDB:                  "./pliegos.db",
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = 180 * time.Second
	}
	if c.LLMMaxRetries <= 0 {
		c.LLMMaxRetries = 3
	}
	if c.LLMRatePerSec < 0 {
		c.LLMRatePerSec = 0
	}
	if c.LLMRateBurst <= 0 {
		c.LLMRateBurst = 2
	}
	if c.FastMinOutputTokens <= 0 {
		c.FastMinOutputTokens = 1500
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = 8000
	}
	if c.NotesMaxTokens <= 0 {
		c.NotesMaxTokens = 1800
	}
	if c.RepairMaxTokens <= 0 {
		c.RepairMaxTokens = 6000
	}
	if c.OCRMaxTokens <= 0 {
		c.OCRMaxTokens = 3000
	}
	if c.SinglePassMaxChars <= 0 {
		c.SinglePassMaxChars = 60000
	}
	if c.MultiAnnexSinglePassMaxChars <= 0 {
		c.MultiAnnexSinglePassMaxChars = 140000
	}
	if c.MultiAnnexTwoStageMinChars < 0 {
		c.MultiAnnexTwoStageMinChars = 0
	}
	if c.ChunkBaseChars <= 0 {
		c.ChunkBaseChars = 12000
	}
	if c.TargetParts <= 0 {
		c.TargetParts = 6
	}
	if c.NotesConcurrency <= 0 {
		c.NotesConcurrency = 4
	}
	if c.PDFScanThresholdChars <= 0 {
		c.PDFScanThresholdChars = 500
	}
	if c.OCRMinChars < 0 {
		c.OCRMinChars = 40
	}
	if c.OCRMaxPages <= 0 {
		c.OCRMaxPages = 40
	}
	if c.OCRDPI <= 0 {
		c.OCRDPI = 200
	}
	if c.OCRConcurrency <= 0 {
		c.OCRConcurrency = 4
	}
	if c.EvidenceMaxHits <= 0 {
		c.EvidenceMaxHits = 3
	}
	if c.EvidenceSnippetChars <= 0 {
		c.EvidenceSnippetChars = 90
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 2
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 50
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 52428800
	}
	if c.MaxFilesPerRequest <= 0 {
		c.MaxFilesPerRequest = 10
	}
	if c.JobTTL <= 0 {
		c.JobTTL = 1 * time.Hour
	}
}

// Validate checks the settings every entry point needs. The HTTP server
// additionally requires APIKey, see ValidateServer.
func (c Config) Validate() error {
	switch c.Provider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider %q", c.Provider)
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for provider %q", c.Provider)
		}
	default:
		return fmt.Errorf("LLM_PROVIDER must be openai or anthropic, got %q", c.Provider)
	}
	if c.AnalysisModel == "" {
		return fmt.Errorf("MODEL_ANALYSIS is required")
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("LLM_TEMPERATURE must be within [0, 2], got %v", *c.Temperature)
	}
	return nil
}

func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return fmt.Errorf("PLIEGOS_API_KEY is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envFloatPtr returns nil when the key is unset or unparsable.
func envFloatPtr(key string) *float64 {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
