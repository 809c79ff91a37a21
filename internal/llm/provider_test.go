package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicProvider_Complete(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"Informe "},{"type":"text","text":"final"}]}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("secret", srv.URL, 5*time.Second)
	defer p.Close()

	temp := 0.2
	out, err := p.Complete(context.Background(), Request{
		Model: "claude-test",
		Messages: []Message{
			{Role: RoleSystem, Content: "sys"},
			{Role: RoleUser, Content: "page", Image: []byte{0x89, 'P', 'N', 'G'}},
		},
		MaxOutputTokens: 300,
		Temperature:     &temp,
	})
	require.NoError(t, err)
	assert.Equal(t, "Informe final", out)

	assert.Equal(t, "sys", got.System)
	assert.Equal(t, 300, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	require.Len(t, got.Messages[0].Content, 2)
	assert.Equal(t, "image", got.Messages[0].Content[0].Type)
	assert.Equal(t, "image/png", got.Messages[0].Content[0].Source.MediaType)
	assert.Equal(t, "page", got.Messages[0].Content[1].Text)
}

func TestAnthropicProvider_StatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("secret", srv.URL, 5*time.Second)
	_, err := p.Complete(context.Background(), Request{Model: "m", Messages: []Message{{Role: RoleUser, Content: "x"}}})

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 429, statusErr.StatusCode)
	assert.True(t, IsRetryable(err))
}

func TestAnthropicProvider_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("secret", srv.URL, 5*time.Second)
	_, err := p.Complete(context.Background(), Request{Model: "m", Messages: []Message{{Role: RoleUser, Content: "x"}}})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestOpenAIProvider_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-test","choices":[{"index":0,"message":{"role":"assistant","content":"hola"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", srv.URL+"/v1", 5*time.Second)
	defer p.Close()

	zero := 0.0
	out, err := p.Complete(context.Background(), Request{
		Model:           "gpt-test",
		Messages:        []Message{{Role: RoleUser, Content: "transcribe", Image: []byte("png")}},
		MaxOutputTokens: 200,
		Temperature:     &zero,
	})
	require.NoError(t, err)
	assert.Equal(t, "hola", out)

	assert.Equal(t, "gpt-test", got["model"])
	assert.Contains(t, got, "temperature", "zero temperature must still be sent")
	msgs := got["messages"].([]any)
	parts := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	imagePart := parts[1].(map[string]any)
	assert.Equal(t, "image_url", imagePart["type"])
}

func TestOpenAIProvider_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", srv.URL+"/v1", 5*time.Second)
	_, err := p.Complete(context.Background(), Request{Model: "m", Messages: []Message{{Role: RoleUser, Content: "x"}}})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestOpenAIProvider_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", srv.URL+"/v1", 5*time.Second)
	_, err := p.Complete(context.Background(), Request{Model: "m", Messages: []Message{{Role: RoleUser, Content: "x"}}})

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 401, statusErr.StatusCode)
	assert.False(t, IsRetryable(err))
}

type recordingCompleter struct {
	req Request
}

func (r *recordingCompleter) Complete(_ context.Context, req Request) (string, error) {
	r.req = req
	return "  Licitación Pública N° 12/2024\n", nil
}

func TestVisionTranscriber(t *testing.T) {
	rc := &recordingCompleter{}
	v := NewVisionTranscriber(rc, "vision-model", 0)

	out, err := v.Transcribe(context.Background(), []byte("png"), 3)
	require.NoError(t, err)
	assert.Equal(t, "Licitación Pública N° 12/2024", out)
	assert.Equal(t, "vision-model", rc.req.Model)
	assert.Equal(t, 3000, rc.req.MaxOutputTokens)
	require.Len(t, rc.req.Messages, 2)
	assert.Equal(t, []byte("png"), rc.req.Messages[1].Image)
}
