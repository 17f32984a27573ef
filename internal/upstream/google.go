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

// GoogleConfig configures an adapter for Gemini's generativelanguage
// API, which authenticates via an "x-goog-api-key" header and splits
// the system prompt into a dedicated field separate from the turn list.
type GoogleConfig struct {
	ProviderName string
	APIKey       string
	BaseURL      string // defaults to https://generativelanguage.googleapis.com
	Model        string
	Timeout      time.Duration
}

// GoogleAdapter implements Adapter against Gemini's
// streamGenerateContent endpoint.
type GoogleAdapter struct {
	cfg    GoogleConfig
	client *http.Client
	logger *zap.Logger
}

func NewGoogleAdapter(cfg GoogleConfig, logger *zap.Logger) *GoogleAdapter {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoogleAdapter{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger,
	}
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiStreamFrame struct {
	Candidates []geminiCandidate `json:"candidates"`
}

// convertToGeminiContents extracts the system message into its own
// field, the way Gemini's wire format requires, translating
// "assistant" to Gemini's "model" role for the remaining turns.
func convertToGeminiContents(messages []chatmsg.Message) (*geminiContent, []geminiContent) {
	var systemInstruction *geminiContent
	contents := make([]geminiContent, 0, len(messages))

	for _, m := range messages {
		if m.Role == chatmsg.RoleSystem {
			systemInstruction = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
			continue
		}

		role := string(m.Role)
		if role == string(chatmsg.RoleAssistant) {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	return systemInstruction, contents
}

func (a *GoogleAdapter) endpoint() string {
	return fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent",
		strings.TrimRight(a.cfg.BaseURL, "/"), a.cfg.Model)
}

func (a *GoogleAdapter) Chat(ctx context.Context, messages []chatmsg.Message) (<-chan Chunk, error) {
	systemInstruction, contents := convertToGeminiContents(messages)

	payload, err := json.Marshal(geminiRequest{
		Contents:          contents,
		SystemInstruction: systemInstruction,
	})
	if err != nil {
		return nil, fmt.Errorf("upstream: marshal gemini request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", a.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream: %s: %w", a.cfg.ProviderName, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := readErrorMessage(resp.Body)
		return nil, fmt.Errorf("upstream: %s: status=%d %s", a.cfg.ProviderName, resp.StatusCode, msg)
	}

	return streamGeminiLines(ctx, resp.Body), nil
}

// streamGeminiLines reads Gemini's newline-delimited JSON response
// objects (not SSE "data:" framing) and emits one Chunk per candidate,
// with that candidate's text parts concatenated.
func streamGeminiLines(ctx context.Context, body io.ReadCloser) <-chan Chunk {
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
			line = strings.TrimPrefix(line, "data:")
			line = strings.TrimSpace(line)
			if line == "" || line == "[" || line == "]" || line == "," {
				continue
			}
			line = strings.TrimSuffix(line, ",")

			var frame geminiStreamFrame
			if err := json.Unmarshal([]byte(line), &frame); err != nil {
				continue
			}

			for _, candidate := range frame.Candidates {
				var text strings.Builder
				for _, part := range candidate.Content.Parts {
					text.WriteString(part.Text)
				}
				select {
				case <-ctx.Done():
					return
				case ch <- Chunk{Content: text.String()}:
				}
			}
		}
	}()
	return ch
}
