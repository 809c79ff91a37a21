package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	mu    sync.Mutex
	calls []Request
	reply func(n int, req Request) (string, error)
}

func (p *scriptedProvider) Complete(_ context.Context, req Request) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	n := len(p.calls)
	p.mu.Unlock()
	return p.reply(n, req)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(p Provider, cfg GatewayConfig) *Gateway {
	return NewGateway(p, cfg, NewStats(time.Hour), quietLogger()).
		WithBackoff(func(int) time.Duration { return 0 })
}

func TestGateway_SucceedsFirstAttempt(t *testing.T) {
	p := &scriptedProvider{reply: func(int, Request) (string, error) { return "informe", nil }}
	gw := newTestGateway(p, GatewayConfig{FallbackModel: "mini", MaxRetries: 3})

	out, err := gw.Complete(context.Background(), Request{Model: "big", MaxOutputTokens: 100})
	require.NoError(t, err)
	assert.Equal(t, "informe", out)
	assert.Len(t, p.calls, 1)
	assert.Equal(t, 1, gw.Stats().Snapshot().Count)
}

func TestGateway_EmptyResponseIsRetried(t *testing.T) {
	p := &scriptedProvider{reply: func(n int, _ Request) (string, error) {
		if n < 3 {
			return "", ErrEmptyCompletion
		}
		return "ok", nil
	}}
	gw := newTestGateway(p, GatewayConfig{MaxRetries: 3})

	out, err := gw.Complete(context.Background(), Request{Model: "big"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Len(t, p.calls, 3)
}

func TestGateway_StripsFencesAndRetriesFenceOnly(t *testing.T) {
	p := &scriptedProvider{reply: func(n int, _ Request) (string, error) {
		if n == 1 {
			return "```\n  \n```", nil
		}
		return "```markdown\n## Guarantees\n- Bid guarantee: 1%\n```", nil
	}}
	gw := newTestGateway(p, GatewayConfig{MaxRetries: 3})

	out, err := gw.Complete(context.Background(), Request{Model: "big"})
	require.NoError(t, err)
	assert.Equal(t, "## Guarantees\n- Bid guarantee: 1%", out)
	assert.Len(t, p.calls, 2)
	assert.Equal(t, 1, gw.Stats().Snapshot().Failures)
}

func TestGateway_FallsBackAfterRetries(t *testing.T) {
	p := &scriptedProvider{reply: func(_ int, req Request) (string, error) {
		if req.Model == "big" {
			return "", &StatusError{Provider: "test", StatusCode: 503, Message: "overloaded"}
		}
		return "from fallback", nil
	}}
	gw := newTestGateway(p, GatewayConfig{FallbackModel: "mini", MaxRetries: 2})

	out, err := gw.Complete(context.Background(), Request{Model: "big"})
	require.NoError(t, err)
	assert.Equal(t, "from fallback", out)
	require.Len(t, p.calls, 3)
	assert.Equal(t, "big", p.calls[0].Model)
	assert.Equal(t, "big", p.calls[1].Model)
	assert.Equal(t, "mini", p.calls[2].Model)
}

func TestGateway_NonRetryableSkipsToFallback(t *testing.T) {
	p := &scriptedProvider{reply: func(_ int, req Request) (string, error) {
		if req.Model == "big" {
			return "", &StatusError{Provider: "test", StatusCode: 400, Message: "bad request"}
		}
		return "ok", nil
	}}
	gw := newTestGateway(p, GatewayConfig{FallbackModel: "mini", MaxRetries: 3})

	_, err := gw.Complete(context.Background(), Request{Model: "big"})
	require.NoError(t, err)
	assert.Len(t, p.calls, 2)
}

func TestGateway_ExhaustedReturnsGenerationError(t *testing.T) {
	boom := errors.New("connection reset")
	p := &scriptedProvider{reply: func(int, Request) (string, error) { return "", boom }}
	gw := newTestGateway(p, GatewayConfig{FallbackModel: "mini", MaxRetries: 2})

	_, err := gw.Complete(context.Background(), Request{Model: "big"})
	require.Error(t, err)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, 4, genErr.Attempts)
	assert.Equal(t, []string{"big", "mini"}, genErr.Models)
	assert.ErrorIs(t, err, boom)
}

func TestGateway_FallbackSameAsPrimaryNotRepeated(t *testing.T) {
	p := &scriptedProvider{reply: func(int, Request) (string, error) { return "", ErrEmptyCompletion }}
	gw := newTestGateway(p, GatewayConfig{FallbackModel: "big", MaxRetries: 2})

	_, err := gw.Complete(context.Background(), Request{Model: "big"})
	require.Error(t, err)
	assert.Len(t, p.calls, 2)
}

func TestGateway_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &scriptedProvider{reply: func(int, Request) (string, error) {
		cancel()
		return "", context.Canceled
	}}
	gw := newTestGateway(p, GatewayConfig{FallbackModel: "mini", MaxRetries: 3})

	_, err := gw.Complete(ctx, Request{Model: "big"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, p.calls, 1)
}

func TestGateway_FastModeClampsBudgetAndTemperature(t *testing.T) {
	p := &scriptedProvider{reply: func(int, Request) (string, error) { return "ok", nil }}
	gw := newTestGateway(p, GatewayConfig{FastMode: true, FastMinOutputTokens: 1500})

	hot := 0.9
	_, err := gw.Complete(context.Background(), Request{
		Model:           "big",
		Messages:        []Message{{Role: RoleUser, Content: "breve"}},
		MaxOutputTokens: 8000,
		Temperature:     &hot,
	})
	require.NoError(t, err)

	got := p.calls[0]
	require.NotNil(t, got.Temperature)
	assert.Equal(t, 0.0, *got.Temperature)
	assert.Equal(t, 1500, got.MaxOutputTokens)
}

func TestGateway_FastModeKeepsSmallerRequestedBudget(t *testing.T) {
	p := &scriptedProvider{reply: func(int, Request) (string, error) { return "ok", nil }}
	gw := newTestGateway(p, GatewayConfig{FastMode: true, FastMinOutputTokens: 1500})

	_, err := gw.Complete(context.Background(), Request{Model: "big", MaxOutputTokens: 500})
	require.NoError(t, err)
	assert.Equal(t, 500, p.calls[0].MaxOutputTokens)
}

func TestGateway_FastModeLeavesImageBudget(t *testing.T) {
	p := &scriptedProvider{reply: func(int, Request) (string, error) { return "texto", nil }}
	gw := newTestGateway(p, GatewayConfig{FastMode: true, FastMinOutputTokens: 1500})

	_, err := gw.Complete(context.Background(), Request{
		Model:           "vision",
		Messages:        []Message{{Role: RoleUser, Content: "Page 1.", Image: []byte{0x89, 'P', 'N', 'G'}}},
		MaxOutputTokens: 3000,
	})
	require.NoError(t, err)
	assert.Equal(t, 3000, p.calls[0].MaxOutputTokens)
	require.NotNil(t, p.calls[0].Temperature)
	assert.Equal(t, 0.0, *p.calls[0].Temperature)
}

func TestGateway_TemperatureOverrideKeepsExplicitValue(t *testing.T) {
	p := &scriptedProvider{reply: func(int, Request) (string, error) { return "ok", nil }}
	override := 0.7
	gw := newTestGateway(p, GatewayConfig{Temperature: &override})

	zero := 0.0
	_, err := gw.Complete(context.Background(), Request{Model: "vision", Temperature: &zero})
	require.NoError(t, err)
	require.NotNil(t, p.calls[0].Temperature)
	assert.Equal(t, 0.0, *p.calls[0].Temperature)
}

func TestGateway_TemperatureOverride(t *testing.T) {
	p := &scriptedProvider{reply: func(int, Request) (string, error) { return "ok", nil }}
	override := 0.3
	gw := newTestGateway(p, GatewayConfig{Temperature: &override})

	_, err := gw.Complete(context.Background(), Request{Model: "big", MaxOutputTokens: 8000})
	require.NoError(t, err)
	require.NotNil(t, p.calls[0].Temperature)
	assert.Equal(t, 0.3, *p.calls[0].Temperature)
	assert.Equal(t, 8000, p.calls[0].MaxOutputTokens)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.True(t, IsRetryable(ErrEmptyCompletion))
	assert.True(t, IsRetryable(&StatusError{StatusCode: 429}))
	assert.True(t, IsRetryable(&StatusError{StatusCode: 502}))
	assert.False(t, IsRetryable(&StatusError{StatusCode: 401}))
}

func TestBackoffBounds(t *testing.T) {
	for attempt := 0; attempt < 8; attempt++ {
		d := Backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 45*time.Second)
	}
}
