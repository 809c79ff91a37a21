// Package llm talks to chat-completion providers. The Gateway wraps a
// Provider with retries, model fallback, rate limiting and fast mode.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn. Image, when set, holds PNG bytes sent alongside
// Content to vision-capable models.
type Message struct {
	Role    Role
	Content string
	Image   []byte
}

// Request is a single completion call.
type Request struct {
	Model           string
	Messages        []Message
	MaxOutputTokens int
	Temperature     *float64 // nil leaves the provider default
}

// InputChars counts the text characters across all messages.
func (r Request) InputChars() int {
	n := 0
	for _, m := range r.Messages {
		n += len([]rune(m.Content))
	}
	return n
}

// HasImage reports whether any message carries an image.
func (r Request) HasImage() bool {
	for _, m := range r.Messages {
		if len(m.Image) > 0 {
			return true
		}
	}
	return false
}

// Provider performs one completion attempt against a backend.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ErrEmptyCompletion is returned when the backend answers with no choices
// or only whitespace.
var ErrEmptyCompletion = errors.New("empty completion")

// StatusError is an HTTP failure reported by a provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s api status %d: %s", e.Provider, e.StatusCode, truncate(e.Message, 200))
}

// Retryable reports whether the status is transient (rate limit, timeout or
// server side).
func (e *StatusError) Retryable() bool {
	switch {
	case e.StatusCode == 408, e.StatusCode == 409, e.StatusCode == 429:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// GenerationError is returned once retries on every candidate model are
// exhausted.
type GenerationError struct {
	Models   []string
	Attempts int
	Err      error // last underlying error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed after %d attempts on %s: %v",
		e.Attempts, strings.Join(e.Models, ", "), e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
