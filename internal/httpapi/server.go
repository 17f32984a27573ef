// Package httpapi wires the gateway's HTTP surface: route registration,
// request decoding, and response shaping for both wire formats. Routing
// uses a net/http.ServeMux with method-prefixed patterns
// ("POST /v1/chat/completions").
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/thotenn/aicarousel/internal/chatmsg"
	"github.com/thotenn/aicarousel/internal/dispatch"
	"github.com/thotenn/aicarousel/internal/format"
	"github.com/thotenn/aicarousel/internal/gwerror"
	"github.com/thotenn/aicarousel/internal/httpauth"
)

const serviceName = "aicarousel"

// Deps collects everything the HTTP surface needs to build routes.
type Deps struct {
	Handler   *dispatch.ChatHandler
	Auth      httpauth.Middleware
	OpenAI    *format.OpenAITranslator
	Anthropic *format.AnthropicTranslator
	Logger    *zap.Logger
}

// NewMux builds the gateway's complete route table.
func NewMux(deps Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /v1/models", handleListModels)
	mux.HandleFunc("GET /v1/models/{id}", handleGetModel)

	mux.Handle("POST /v1/chat/completions", deps.Auth(http.HandlerFunc(deps.handleChatCompletions)))
	mux.Handle("POST /v1/messages", deps.Auth(http.HandlerFunc(deps.handleMessages)))
	mux.Handle("POST /v1/messages/count_tokens", deps.Auth(http.HandlerFunc(deps.handleCountTokens)))
	mux.Handle("POST /chat", deps.Auth(http.HandlerFunc(deps.handleRawChat)))

	return Chain(mux,
		Recovery(deps.Logger),
		RequestLogger(deps.Logger),
		RequestID(),
		SecurityHeaders(),
		CORS(),
	)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": serviceName})
}

func handleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": serviceName, "object": "model", "owned_by": serviceName, "created": time.Now().Unix()},
		},
	})
}

func handleGetModel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "object": "model", "owned_by": serviceName})
}

func (d *Deps) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req format.OpenAIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		d.OpenAI.WriteError(w, http.StatusBadRequest, string(gwerror.KindInvalidRequest), "malformed JSON body")
		return
	}
	if len(req.Messages) == 0 {
		d.OpenAI.WriteError(w, http.StatusBadRequest, string(gwerror.KindInvalidRequest), "messages is required")
		return
	}

	messages := req.ToChatMessages()
	result, err := d.Handler.Dispatch(r.Context(), messages)
	if err != nil {
		d.writeOpenAIDispatchError(w, err)
		return
	}

	if !req.Stream {
		completion, err := d.OpenAI.Collect(result.Model, result.Stream)
		if err != nil {
			d.OpenAI.WriteError(w, http.StatusServiceUnavailable, string(gwerror.KindAllFailed), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, completion)
		return
	}

	if err := d.OpenAI.WriteStream(w, result.Model, result.Stream); err != nil {
		d.Logger.Error("stream write failed", zap.Error(err))
	}
}

func (d *Deps) handleMessages(w http.ResponseWriter, r *http.Request) {
	var req format.AnthropicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		d.Anthropic.WriteError(w, http.StatusBadRequest, "invalid_request_error", "malformed JSON body")
		return
	}

	messages, err := req.ToChatMessages()
	if err != nil {
		d.Anthropic.WriteError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	if len(messages) == 0 {
		d.Anthropic.WriteError(w, http.StatusBadRequest, "invalid_request_error", "messages is required")
		return
	}

	result, err := d.Handler.Dispatch(r.Context(), messages)
	if err != nil {
		d.writeAnthropicDispatchError(w, err)
		return
	}

	if !req.Stream {
		msg, err := d.Anthropic.Collect(result.Model, result.Stream)
		if err != nil {
			d.Anthropic.WriteError(w, http.StatusServiceUnavailable, "api_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, msg)
		return
	}

	if err := d.Anthropic.WriteStream(w, result.Model, result.Stream); err != nil {
		d.Logger.Error("stream write failed", zap.Error(err))
	}
}

func (d *Deps) handleCountTokens(w http.ResponseWriter, r *http.Request) {
	var req format.AnthropicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		d.Anthropic.WriteError(w, http.StatusBadRequest, "invalid_request_error", "malformed JSON body")
		return
	}

	messages, err := req.ToChatMessages()
	if err != nil {
		d.Anthropic.WriteError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	totalChars := 0
	for _, m := range messages {
		totalChars += len(m.Content)
	}
	inputTokens := (totalChars + 3) / 4
	writeJSON(w, http.StatusOK, map[string]int{"input_tokens": inputTokens})
}

// handleRawChat serves the unframed raw-text/event-stream endpoint: a
// plain JSON array of ChatMessage in, a stream of raw text chunks out
// with no SSE envelope or [DONE] marker.
func (d *Deps) handleRawChat(w http.ResponseWriter, r *http.Request) {
	var messages []chatmsg.Message
	if err := json.NewDecoder(r.Body).Decode(&messages); err != nil || len(messages) == 0 {
		http.Error(w, `{"error":{"message":"messages must be a non-empty JSON array"}}`, http.StatusBadRequest)
		return
	}

	result, err := d.Handler.Dispatch(r.Context(), messages)
	if err != nil {
		d.writeOpenAIDispatchError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":{"message":"streaming not supported"}}`, http.StatusInternalServerError)
		return
	}
	for chunk := range result.Stream {
		if chunk.Err != nil {
			d.Logger.Error("raw chat stream error", zap.Error(chunk.Err))
			return
		}
		w.Write([]byte(chunk.Content))
		flusher.Flush()
	}
}

func (d *Deps) writeOpenAIDispatchError(w http.ResponseWriter, err error) {
	kind, status, message := classifyDispatchError(err)
	d.OpenAI.WriteError(w, status, kind, message)
}

func (d *Deps) writeAnthropicDispatchError(w http.ResponseWriter, err error) {
	kind, status, message := classifyDispatchError(err)
	d.Anthropic.WriteError(w, status, anthropicErrorType(kind), message)
}

func classifyDispatchError(err error) (kind string, status int, message string) {
	if gwErr, ok := err.(*gwerror.Error); ok {
		return string(gwErr.Kind), gwerror.HTTPStatus(gwErr.Kind), gwErr.Message
	}
	return string(gwerror.KindInternal), http.StatusInternalServerError, "Internal server error"
}

func anthropicErrorType(kind string) string {
	switch kind {
	case string(gwerror.KindInvalidRequest):
		return "invalid_request_error"
	case string(gwerror.KindAuthentication):
		return "authentication_error"
	default:
		return "api_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
