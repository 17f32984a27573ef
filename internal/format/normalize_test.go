package format

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maxTokens(n int) *int { return &n }

func TestAnthropicRequest_ToChatMessages_RequiresMaxTokens(t *testing.T) {
	req := &AnthropicRequest{Messages: []anthropicIn{{Role: "user", Content: json.RawMessage(`"hi"`)}}}
	_, err := req.ToChatMessages()
	require.Error(t, err)
}

func TestAnthropicRequest_ToChatMessages_FlattensStringContent(t *testing.T) {
	req := &AnthropicRequest{
		MaxTokens: maxTokens(100),
		Messages:  []anthropicIn{{Role: "user", Content: json.RawMessage(`"hello"`)}},
	}
	msgs, err := req.ToChatMessages()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
}

func TestAnthropicRequest_ToChatMessages_FlattensBlockContentAndSystem(t *testing.T) {
	req := &AnthropicRequest{
		MaxTokens: maxTokens(100),
		System:    json.RawMessage(`"be nice"`),
		Messages: []anthropicIn{
			{Role: "user", Content: json.RawMessage(`[{"type":"text","text":"line1"},{"type":"text","text":"line2"},{"type":"image","text":"ignored"}]`)},
		},
	}
	msgs, err := req.ToChatMessages()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", string(msgs[0].Role))
	assert.Equal(t, "be nice", msgs[0].Content)
	assert.Equal(t, "line1\nline2", msgs[1].Content)
}

func TestOpenAIRequest_ToChatMessages_PassesThrough(t *testing.T) {
	req := &OpenAIRequest{Messages: []openAIMessageIn{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "hi"},
	}}
	msgs := req.ToChatMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "sys", msgs[0].Content)
	assert.Equal(t, "hi", msgs[1].Content)
}
