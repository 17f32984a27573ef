package format

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/thotenn/aicarousel/internal/upstream"
)

// OpenAITranslator adapts an internal chunk sequence to the
// OpenAI chat-completions wire format, streaming and non-streaming,
// with a flusher-driven `data: <json>\n\n` SSE loop and `[DONE]`
// terminator.
type OpenAITranslator struct {
	logger *zap.Logger
}

func NewOpenAITranslator(logger *zap.Logger) *OpenAITranslator {
	return &OpenAITranslator{logger: logger}
}

type openAIDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type openAIStreamChoice struct {
	Index        int          `json:"index"`
	Delta        *openAIDelta `json:"delta"`
	FinishReason *string      `json:"finish_reason"`
}

type openAIStreamChunk struct {
	ID      string               `json:"id"`
	Object  string               `json:"object"`
	Created int64                `json:"created"`
	Model   string               `json:"model"`
	Choices []openAIStreamChoice `json:"choices"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChoice struct {
	Index        int           `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAICompletion struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
}

var finishStop = "stop"

// WriteStream drains stream to w as OpenAI SSE frames. It returns once
// the stream closes or ctx-driven cancellation stops delivery upstream.
func (t *OpenAITranslator) WriteStream(w http.ResponseWriter, model string, stream <-chan upstream.Chunk) error {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("format: response writer does not support streaming")
	}

	id := newCompletionID()
	created := time.Now().Unix()
	first := true

	for chunk := range stream {
		if chunk.Err != nil {
			t.logger.Error("upstream stream error", zap.Error(chunk.Err))
			t.writeErrorFrame(w, flusher, chunk.Err.Error())
			return chunk.Err
		}

		delta := &openAIDelta{Content: chunk.Content}
		if first {
			delta.Role = "assistant"
			first = false
		}
		t.writeFrame(w, flusher, openAIStreamChunk{
			ID: id, Object: "chat.completion.chunk", Created: created, Model: model,
			Choices: []openAIStreamChoice{{Index: 0, Delta: delta, FinishReason: nil}},
		})
	}

	t.writeFrame(w, flusher, openAIStreamChunk{
		ID: id, Object: "chat.completion.chunk", Created: created, Model: model,
		Choices: []openAIStreamChoice{{Index: 0, Delta: &openAIDelta{}, FinishReason: &finishStop}},
	})
	w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
	return nil
}

func (t *OpenAITranslator) writeFrame(w http.ResponseWriter, flusher http.Flusher, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		t.logger.Error("marshal SSE frame", zap.Error(err))
		return
	}
	w.Write([]byte("data: "))
	w.Write(data)
	w.Write([]byte("\n\n"))
	flusher.Flush()
}

func (t *OpenAITranslator) writeErrorFrame(w http.ResponseWriter, flusher http.Flusher, message string) {
	payload, _ := json.Marshal(map[string]any{"error": map[string]any{"message": message, "type": "upstream_error"}})
	w.Write([]byte("data: "))
	w.Write(payload)
	w.Write([]byte("\n\n"))
	flusher.Flush()
}

// Collect drains stream into a single non-streaming completion object.
func (t *OpenAITranslator) Collect(model string, stream <-chan upstream.Chunk) (*openAICompletion, error) {
	var content string
	for chunk := range stream {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		content += chunk.Content
	}

	tokens := estimateTokens(content)
	return &openAICompletion{
		ID: newCompletionID(), Object: "chat.completion", Created: time.Now().Unix(), Model: model,
		Choices: []openAIChoice{{Index: 0, Message: openAIMessage{Role: "assistant", Content: content}, FinishReason: "stop"}},
		Usage:   openAIUsage{PromptTokens: 0, CompletionTokens: tokens, TotalTokens: tokens},
	}, nil
}

// WriteError writes an OpenAI-style JSON error envelope.
func (t *OpenAITranslator) WriteError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": message, "type": kind, "param": nil, "code": kind},
	})
}
