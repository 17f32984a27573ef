package format

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thotenn/aicarousel/internal/upstream"
)

func TestAnthropicTranslator_WriteStream_EmitsFullEventSequence(t *testing.T) {
	tr := NewAnthropicTranslator(zap.NewNop())
	rec := httptest.NewRecorder()

	err := tr.WriteStream(rec, "claude-test", chunkStream(
		upstream.Chunk{Content: "Hel"},
		upstream.Chunk{Content: "lo"},
	))
	require.NoError(t, err)

	body := rec.Body.String()
	for _, want := range []string{
		"event: message_start",
		"event: content_block_start",
		"event: content_block_delta",
		"event: content_block_stop",
		"event: message_delta",
		"event: message_stop",
	} {
		assert.Contains(t, body, want)
	}
	assert.Equal(t, 2, strings.Count(body, "event: content_block_delta"))
}

func TestAnthropicTranslator_WriteStream_SkipsEmptyChunks(t *testing.T) {
	tr := NewAnthropicTranslator(zap.NewNop())
	rec := httptest.NewRecorder()

	require.NoError(t, tr.WriteStream(rec, "claude-test", chunkStream(
		upstream.Chunk{Content: ""},
		upstream.Chunk{Content: "x"},
	)))

	assert.Equal(t, 1, strings.Count(rec.Body.String(), "event: content_block_delta"))
}

func TestAnthropicTranslator_Collect_ReturnsEndTurn(t *testing.T) {
	tr := NewAnthropicTranslator(zap.NewNop())
	msg, err := tr.Collect("claude-test", chunkStream(upstream.Chunk{Content: "hi"}))
	require.NoError(t, err)
	require.Len(t, msg.Content, 1)
	assert.Equal(t, "hi", msg.Content[0].Text)
	assert.Equal(t, "end_turn", *msg.StopReason)
}
