package format

import (
	"bufio"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thotenn/aicarousel/internal/upstream"
)

func chunkStream(items ...upstream.Chunk) <-chan upstream.Chunk {
	ch := make(chan upstream.Chunk, len(items))
	for _, it := range items {
		ch <- it
	}
	close(ch)
	return ch
}

func TestOpenAITranslator_WriteStream_EmitsRoleOnFirstFrameOnly(t *testing.T) {
	tr := NewOpenAITranslator(zap.NewNop())
	rec := httptest.NewRecorder()

	err := tr.WriteStream(rec, "gpt-test", chunkStream(
		upstream.Chunk{Content: "Hel"},
		upstream.Chunk{Content: "lo"},
	))
	require.NoError(t, err)

	body := rec.Body.String()
	assert.Contains(t, body, `"role":"assistant"`)
	assert.Contains(t, body, `"content":"Hel"`)
	assert.Contains(t, body, `"content":"lo"`)
	assert.Contains(t, body, `"finish_reason":"stop"`)
	assert.True(t, strings.HasSuffix(strings.TrimRight(body, "\n"), "data: [DONE]"))
}

func TestOpenAITranslator_Collect_EstimatesTokens(t *testing.T) {
	tr := NewOpenAITranslator(zap.NewNop())
	completion, err := tr.Collect("gpt-test", chunkStream(
		upstream.Chunk{Content: "Hello"},
		upstream.Chunk{Content: " world"},
	))
	require.NoError(t, err)
	assert.Equal(t, "Hello world", completion.Choices[0].Message.Content)
	assert.Equal(t, "assistant", completion.Choices[0].Message.Role)
	assert.Equal(t, (len("Hello world")+3)/4, completion.Usage.CompletionTokens)
	assert.Equal(t, 0, completion.Usage.PromptTokens)
}

func TestOpenAITranslator_Collect_PropagatesUpstreamError(t *testing.T) {
	tr := NewOpenAITranslator(zap.NewNop())
	_, err := tr.Collect("gpt-test", chunkStream(
		upstream.Chunk{Content: "partial"},
		upstream.Chunk{Err: assertErr{}},
	))
	require.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestOpenAITranslator_countsSSEFrames(t *testing.T) {
	tr := NewOpenAITranslator(zap.NewNop())
	rec := httptest.NewRecorder()
	require.NoError(t, tr.WriteStream(rec, "m", chunkStream(upstream.Chunk{Content: "a"})))

	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	dataLines := 0
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "data: ") {
			dataLines++
		}
	}
	// one content frame + one terminal finish_reason frame + [DONE]
	assert.Equal(t, 3, dataLines)
}
