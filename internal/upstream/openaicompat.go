package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/thotenn/aicarousel/internal/chatmsg"
	"github.com/thotenn/aicarousel/internal/tlsutil"
)

// OpenAICompatConfig configures an adapter for any OpenAI-wire-compatible
// chat-completions endpoint (Cerebras, Groq, OpenRouter, a local
// Ollama/LM Studio instance, ...).
type OpenAICompatConfig struct {
	ProviderName string
	APIKey       string // may be empty for an unauthenticated local endpoint
	BaseURL      string
	Model        string
	EndpointPath string // defaults to "/v1/chat/completions"
	Timeout      time.Duration
}

// OpenAICompatAdapter implements Adapter against an OpenAI-wire-compatible
// /chat/completions endpoint with stream:true.
type OpenAICompatAdapter struct {
	cfg    OpenAICompatConfig
	client *http.Client
	logger *zap.Logger
}

func NewOpenAICompatAdapter(cfg OpenAICompatConfig, logger *zap.Logger) *OpenAICompatAdapter {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAICompatAdapter{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger,
	}
}

type openAICompatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAICompatRequest struct {
	Model    string                `json:"model"`
	Messages []openAICompatMessage `json:"messages"`
	Stream   bool                  `json:"stream"`
}

type openAICompatStreamDelta struct {
	Content string `json:"content"`
}

type openAICompatStreamChoice struct {
	Delta openAICompatStreamDelta `json:"delta"`
}

type openAICompatStreamFrame struct {
	Choices []openAICompatStreamChoice `json:"choices"`
}

func (a *OpenAICompatAdapter) endpoint() string {
	return strings.TrimRight(a.cfg.BaseURL, "/") + a.cfg.EndpointPath
}

func (a *OpenAICompatAdapter) buildHeaders(req *http.Request) {
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
}

// Chat posts a streaming chat-completions request and returns a
// channel of text-delta Chunks.
func (a *OpenAICompatAdapter) Chat(ctx context.Context, messages []chatmsg.Message) (<-chan Chunk, error) {
	wireMessages := make([]openAICompatMessage, 0, len(messages))
	for _, m := range messages {
		wireMessages = append(wireMessages, openAICompatMessage{Role: string(m.Role), Content: m.Content})
	}

	payload, err := json.Marshal(openAICompatRequest{
		Model:    a.cfg.Model,
		Messages: wireMessages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("upstream: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	a.buildHeaders(httpReq)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream: %s: %w", a.cfg.ProviderName, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := readErrorMessage(resp.Body)
		return nil, fmt.Errorf("upstream: %s: status=%d %s", a.cfg.ProviderName, resp.StatusCode, msg)
	}

	return streamOpenAICompatSSE(ctx, resp.Body), nil
}

// streamOpenAICompatSSE reads an OpenAI-style SSE body line by line,
// emitting one Chunk per "data:" frame and terminating at "[DONE]" or
// EOF. The goroutine owns body and always closes it.
func streamOpenAICompatSSE(ctx context.Context, body io.ReadCloser) <-chan Chunk {
	ch := make(chan Chunk)
	go func() {
		defer body.Close()
		defer close(ch)

		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					select {
					case <-ctx.Done():
					case ch <- Chunk{Err: err}:
					}
				}
				return
			}

			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var frame openAICompatStreamFrame
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				select {
				case <-ctx.Done():
				case ch <- Chunk{Err: fmt.Errorf("upstream: decode SSE frame: %w", err)}:
				}
				return
			}

			for _, choice := range frame.Choices {
				select {
				case <-ctx.Done():
					return
				case ch <- Chunk{Content: choice.Delta.Content}:
				}
			}
		}
	}()
	return ch
}

func readErrorMessage(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(body) == 0 {
		return ""
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return string(body)
}
