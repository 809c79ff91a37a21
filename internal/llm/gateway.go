package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/andrestor94/pliegos-ai/internal/config"
)

// GatewayConfig controls retry, fallback and sampling policy.
type GatewayConfig struct {
	FallbackModel       string
	MaxRetries          int      // attempts per model
	RatePerSec          float64  // 0 disables rate limiting
	RateBurst           int
	Temperature         *float64 // override applied outside fast mode
	FastMode            bool
	FastMinOutputTokens int
}

// GatewayConfigFrom projects the gateway settings out of the service config.
func GatewayConfigFrom(cfg config.Config) GatewayConfig {
	return GatewayConfig{
		FallbackModel:       cfg.FallbackModel,
		MaxRetries:          cfg.LLMMaxRetries,
		RatePerSec:          cfg.LLMRatePerSec,
		RateBurst:           cfg.LLMRateBurst,
		Temperature:         cfg.Temperature,
		FastMode:            cfg.FastMode,
		FastMinOutputTokens: cfg.FastMinOutputTokens,
	}
}

// Gateway is the single entry point for completions. It retries each
// candidate model, then falls back to the configured fallback model.
type Gateway struct {
	provider Provider
	cfg      GatewayConfig
	limiter  *rate.Limiter
	stats    *Stats
	log      *slog.Logger
	backoff  func(attempt int) time.Duration
}

func NewGateway(provider Provider, cfg GatewayConfig, stats *Stats, log *slog.Logger) *Gateway {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = MaxRetries
	}
	if cfg.FastMinOutputTokens <= 0 {
		cfg.FastMinOutputTokens = 1500
	}
	if log == nil {
		log = slog.Default()
	}
	g := &Gateway{
		provider: provider,
		cfg:      cfg,
		stats:    stats,
		log:      log,
		backoff:  Backoff,
	}
	if cfg.RatePerSec > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return g
}

// WithBackoff replaces the delay schedule between attempts.
func (g *Gateway) WithBackoff(fn func(attempt int) time.Duration) *Gateway {
	g.backoff = fn
	return g
}

// Stats returns the latency tracker, which may be nil.
func (g *Gateway) Stats() *Stats {
	return g.stats
}

// Complete runs req against req.Model and then the fallback model, up to
// MaxRetries attempts each. It returns a *GenerationError once every attempt
// has failed.
func (g *Gateway) Complete(ctx context.Context, req Request) (string, error) {
	req = g.applyPolicy(req)
	reqID := uuid.NewString()
	log := g.log.With("req_id", reqID, "input_chars", req.InputChars(), "max_tokens", req.MaxOutputTokens)

	models := []string{req.Model}
	if fb := g.cfg.FallbackModel; fb != "" && fb != req.Model {
		models = append(models, fb)
	}

	attempts := 0
	var lastErr error
	for mi, model := range models {
		call := req
		call.Model = model

		for attempt := 0; attempt < g.cfg.MaxRetries; attempt++ {
			if g.limiter != nil {
				if err := g.limiter.Wait(ctx); err != nil {
					return "", &GenerationError{Models: models, Attempts: attempts, Err: err}
				}
			}

			attempts++
			start := time.Now()
			out, err := g.provider.Complete(ctx, call)
			elapsed := time.Since(start).Milliseconds()
			if err == nil {
				if out = stripFences(out); out == "" {
					err = ErrEmptyCompletion
				}
			}
			if err == nil {
				g.stats.Record(model, elapsed, false)
				log.Debug("completion ok", "model", model, "attempt", attempt+1, "elapsed_ms", elapsed, "output_chars", len(out))
				return out, nil
			}
			g.stats.Record(model, elapsed, true)
			lastErr = err

			if ctx.Err() != nil {
				return "", &GenerationError{Models: models, Attempts: attempts, Err: ctx.Err()}
			}
			log.Warn("completion attempt failed", "model", model, "attempt", attempt+1, "elapsed_ms", elapsed, "error", err)

			if !IsRetryable(err) {
				break
			}
			lastAttempt := attempt == g.cfg.MaxRetries-1 && mi == len(models)-1
			if lastAttempt {
				break
			}
			if attempt < g.cfg.MaxRetries-1 {
				if err := sleepCtx(ctx, g.backoff(attempt)); err != nil {
					return "", &GenerationError{Models: models, Attempts: attempts, Err: err}
				}
			}
		}
		if mi < len(models)-1 {
			log.Warn("falling back to next model", "from", model, "to", models[mi+1])
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no attempts made")
	}
	log.Error("completion exhausted", "models", models, "attempts", attempts, "error", lastErr)
	return "", &GenerationError{Models: models, Attempts: attempts, Err: lastErr}
}

// applyPolicy applies fast mode or the configured temperature override.
// Fast mode leaves the budget of image requests alone since their input is
// not text. The override only fills in a temperature the caller left unset.
func (g *Gateway) applyPolicy(req Request) Request {
	if g.cfg.FastMode {
		zero := 0.0
		req.Temperature = &zero
		if req.HasImage() {
			return req
		}
		budget := req.InputChars() / 4
		if budget < g.cfg.FastMinOutputTokens {
			budget = g.cfg.FastMinOutputTokens
		}
		if req.MaxOutputTokens <= 0 || budget < req.MaxOutputTokens {
			req.MaxOutputTokens = budget
		}
		return req
	}
	if g.cfg.Temperature != nil && req.Temperature == nil {
		t := *g.cfg.Temperature
		req.Temperature = &t
	}
	return req
}

// stripFences removes a markdown code fence wrapped around the whole answer.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	idx := strings.Index(s, "\n")
	if idx == -1 {
		return ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s[idx+1:]), "```")
	return strings.TrimSpace(s)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
