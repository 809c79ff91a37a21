package llm

import (
	"context"
	"fmt"
	"strings"
)

const transcribeInstruction = `Transcribe all text visible in this page image literally and in reading order.
Keep the original language, numbers, dates and amounts exactly as written.
Render tables as rows with cells separated by " | ".
Do not summarize, translate, interpret or add commentary. If the page has no legible text, answer with an empty line.`

// Completer is the subset of Gateway that callers depend on.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// VisionTranscriber OCRs page images through a vision-capable model.
type VisionTranscriber struct {
	gw        Completer
	model     string
	maxTokens int
}

func NewVisionTranscriber(gw Completer, model string, maxTokens int) *VisionTranscriber {
	if maxTokens <= 0 {
		maxTokens = 3000
	}
	return &VisionTranscriber{gw: gw, model: model, maxTokens: maxTokens}
}

// Transcribe returns the literal text of a PNG page image.
func (v *VisionTranscriber) Transcribe(ctx context.Context, png []byte, page int) (string, error) {
	zero := 0.0
	out, err := v.gw.Complete(ctx, Request{
		Model: v.model,
		Messages: []Message{
			{Role: RoleSystem, Content: "You are a meticulous OCR engine for tender documents."},
			{Role: RoleUser, Content: fmt.Sprintf("Page %d.\n%s", page, transcribeInstruction), Image: png},
		},
		MaxOutputTokens: v.maxTokens,
		Temperature:     &zero,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe page %d: %w", page, err)
	}
	return strings.TrimSpace(out), nil
}
