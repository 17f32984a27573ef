package format

import (
	"encoding/json"
	"strings"

	"github.com/thotenn/aicarousel/internal/chatmsg"
	"github.com/thotenn/aicarousel/internal/gwerror"
)

// AnthropicRequest is the inbound wire shape for /v1/messages: content
// fields may be a plain string or a list of content blocks, and a
// top-level system field of either shape is folded into the message
// list as a leading system message.
type AnthropicRequest struct {
	Model     string          `json:"model"`
	Messages  []anthropicIn   `json:"messages"`
	System    json.RawMessage `json:"system,omitempty"`
	MaxTokens *int            `json:"max_tokens"`
	Stream    bool            `json:"stream"`
}

type anthropicIn struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// flattenContent accepts either a JSON string or a list of content
// blocks and returns the text of type="text" blocks joined by "\n".
func flattenContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}

	var blocks []anthropicContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", gwerror.Invalid("content must be a string or a list of content blocks")
	}

	texts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == "text" {
			texts = append(texts, b.Text)
		}
	}
	return strings.Join(texts, "\n"), nil
}

// ToChatMessages normalizes an AnthropicRequest into the gateway's
// internal message list. MaxTokens is validated as required but never
// propagated to an upstream.
func (r *AnthropicRequest) ToChatMessages() ([]chatmsg.Message, error) {
	if r.MaxTokens == nil {
		return nil, gwerror.Invalid("max_tokens is required")
	}

	var messages []chatmsg.Message

	if len(r.System) > 0 {
		systemText, err := flattenContent(r.System)
		if err != nil {
			return nil, err
		}
		if systemText != "" {
			messages = append(messages, chatmsg.NewSystemMessage(systemText))
		}
	}

	for _, m := range r.Messages {
		text, err := flattenContent(m.Content)
		if err != nil {
			return nil, err
		}
		messages = append(messages, chatmsg.Message{Role: chatmsg.Role(m.Role), Content: text})
	}

	return messages, nil
}

// OpenAIRequest is the inbound wire shape for /v1/chat/completions:
// messages pass through unchanged aside from role preservation.
type OpenAIRequest struct {
	Model    string             `json:"model"`
	Messages []openAIMessageIn  `json:"messages"`
	Stream   bool               `json:"stream"`
}

type openAIMessageIn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (r *OpenAIRequest) ToChatMessages() []chatmsg.Message {
	messages := make([]chatmsg.Message, len(r.Messages))
	for i, m := range r.Messages {
		messages[i] = chatmsg.Message{Role: chatmsg.Role(m.Role), Content: m.Content}
	}
	return messages
}
