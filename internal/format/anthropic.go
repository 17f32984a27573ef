package format

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/thotenn/aicarousel/internal/upstream"
)

// AnthropicTranslator adapts an internal chunk sequence to the
// Anthropic Messages wire format: a fixed SSE event sequence for
// streaming, and a single Message object for non-streaming.
type AnthropicTranslator struct {
	logger *zap.Logger
}

func NewAnthropicTranslator(logger *zap.Logger) *AnthropicTranslator {
	return &AnthropicTranslator{logger: logger}
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicTextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessage struct {
	ID           string                `json:"id"`
	Type         string                `json:"type"`
	Role         string                `json:"role"`
	Model        string                `json:"model"`
	Content      []anthropicTextBlock  `json:"content"`
	StopReason   *string               `json:"stop_reason"`
	StopSequence *string               `json:"stop_sequence"`
	Usage        anthropicUsage        `json:"usage"`
}

// WriteStream drains stream to w as the Anthropic message_start →
// content_block_start → content_block_delta* → content_block_stop →
// message_delta → message_stop event sequence.
func (t *AnthropicTranslator) WriteStream(w http.ResponseWriter, model string, stream <-chan upstream.Chunk) error {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("format: response writer does not support streaming")
	}

	id := newMessageID()
	t.writeEvent(w, flusher, "message_start", map[string]any{
		"message": anthropicMessage{
			ID: id, Type: "message", Role: "assistant", Model: model,
			Content: []anthropicTextBlock{}, StopReason: nil, StopSequence: nil,
			Usage: anthropicUsage{InputTokens: 0, OutputTokens: 0},
		},
	})
	t.writeEvent(w, flusher, "content_block_start", map[string]any{
		"index":         0,
		"content_block": anthropicTextBlock{Type: "text", Text: ""},
	})

	outputTokens := 0
	for chunk := range stream {
		if chunk.Err != nil {
			t.logger.Error("upstream stream error", zap.Error(chunk.Err))
			t.writeEvent(w, flusher, "error", map[string]any{
				"type": "error", "error": map[string]any{"type": "upstream_error", "message": chunk.Err.Error()},
			})
			return chunk.Err
		}
		if chunk.Content == "" {
			continue
		}
		outputTokens += estimateTokens(chunk.Content)
		t.writeEvent(w, flusher, "content_block_delta", map[string]any{
			"index": 0,
			"delta": map[string]any{"type": "text_delta", "text": chunk.Content},
		})
	}

	t.writeEvent(w, flusher, "content_block_stop", map[string]any{"index": 0})
	t.writeEvent(w, flusher, "message_delta", map[string]any{
		"delta": map[string]any{"stop_reason": "end_turn", "stop_sequence": nil},
		"usage": map[string]any{"output_tokens": outputTokens},
	})
	t.writeEvent(w, flusher, "message_stop", map[string]any{})
	return nil
}

func (t *AnthropicTranslator) writeEvent(w http.ResponseWriter, flusher http.Flusher, name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		t.logger.Error("marshal SSE event", zap.Error(err))
		return
	}
	w.Write([]byte("event: " + name + "\n"))
	w.Write([]byte("data: "))
	w.Write(data)
	w.Write([]byte("\n\n"))
	flusher.Flush()
}

// Collect drains stream into a single non-streaming Message object.
func (t *AnthropicTranslator) Collect(model string, stream <-chan upstream.Chunk) (*anthropicMessage, error) {
	var content string
	for chunk := range stream {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		content += chunk.Content
	}

	stopReason := "end_turn"
	tokens := estimateTokens(content)
	return &anthropicMessage{
		ID: newMessageID(), Type: "message", Role: "assistant", Model: model,
		Content:    []anthropicTextBlock{{Type: "text", Text: content}},
		StopReason: &stopReason, StopSequence: nil,
		Usage: anthropicUsage{InputTokens: 0, OutputTokens: tokens},
	}, nil
}

// WriteError writes an Anthropic-style JSON error envelope.
func (t *AnthropicTranslator) WriteError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"type":  "error",
		"error": map[string]any{"type": kind, "message": message},
	})
}
