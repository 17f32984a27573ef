package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/thotenn/aicarousel/internal/chatmsg"
	"github.com/thotenn/aicarousel/internal/dispatch"
	"github.com/thotenn/aicarousel/internal/format"
	"github.com/thotenn/aicarousel/internal/httpauth"
	"github.com/thotenn/aicarousel/internal/modelsconfig"
	"github.com/thotenn/aicarousel/internal/providerstore"
	"github.com/thotenn/aicarousel/internal/registry"
	"github.com/thotenn/aicarousel/internal/upstream"
)

type echoAdapter struct{ reply string }

func (a *echoAdapter) Chat(ctx context.Context, messages []chatmsg.Message) (<-chan upstream.Chunk, error) {
	ch := make(chan upstream.Chunk, 1)
	ch <- upstream.Chunk{Content: a.reply}
	close(ch)
	return ch, nil
}

func newTestDeps(t *testing.T) (Deps, string) {
	t.Helper()
	t.Setenv("PROVA_KEY", "present")

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&providerstore.ProviderSettingRecord{}, &providerstore.CredentialRecord{}))

	settings := providerstore.NewProviderSettingsStore(db)
	credentials := providerstore.NewCredentialStore(db)
	plaintext, _, err := credentials.Create("ci")
	require.NoError(t, err)

	store := modelsconfig.NewStore(filepath.Join(t.TempDir(), "models.json"))
	require.NoError(t, store.Save(modelsconfig.Snapshot{
		"prova": {Default: "m1", Models: []string{"m1"}},
	}))

	descriptors := []registry.ProviderDescriptor{{Key: "prova", Name: "Prova", APIKeyEnvName: "PROVA_KEY"}}
	reg := registry.New(descriptors, settings, store)

	build := func(providerKey, model string) (upstream.Adapter, error) {
		return &echoAdapter{reply: "hello"}, nil
	}

	logger := zap.NewNop()
	handler := dispatch.New(reg, build, logger)

	return Deps{
		Handler:   handler,
		Auth:      httpauth.New(credentials, logger),
		OpenAI:    format.NewOpenAITranslator(logger),
		Anthropic: format.NewAnthropicTranslator(logger),
		Logger:    logger,
	}, plaintext
}

func TestServer_Health(t *testing.T) {
	deps, _ := newTestDeps(t)
	mux := NewMux(deps)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestServer_ListModels_IsPublic(t *testing.T) {
	deps, _ := newTestDeps(t)
	mux := NewMux(deps)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"object":"list"`)
}

func TestServer_ChatCompletions_RequiresAuth(t *testing.T) {
	deps, _ := newTestDeps(t)
	mux := NewMux(deps)

	body, _ := json.Marshal(map[string]any{"messages": []map[string]string{{"role": "user", "content": "hi"}}})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body)))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_ChatCompletions_NonStreamingSuccess(t *testing.T) {
	deps, apiKey := newTestDeps(t)
	mux := NewMux(deps)

	body, _ := json.Marshal(map[string]any{"messages": []map[string]string{{"role": "user", "content": "hi"}}})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+apiKey)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hello")
}

func TestServer_Messages_MissingMaxTokensIs400(t *testing.T) {
	deps, apiKey := newTestDeps(t)
	mux := NewMux(deps)

	body, _ := json.Marshal(map[string]any{"messages": []map[string]string{{"role": "user", "content": "hi"}}})
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+apiKey)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"error"`)
}

func TestServer_CountTokens(t *testing.T) {
	deps, apiKey := newTestDeps(t)
	mux := NewMux(deps)

	body, _ := json.Marshal(map[string]any{
		"max_tokens": 100,
		"messages":   []map[string]string{{"role": "user", "content": "hello world"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/messages/count_tokens", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+apiKey)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, (len("hello world")+3)/4, out["input_tokens"])
}

func TestServer_CORSHeaderPresentOnEveryResponse(t *testing.T) {
	deps, _ := newTestDeps(t)
	mux := NewMux(deps)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_OptionsPreflightReturnsNoContent(t *testing.T) {
	deps, _ := newTestDeps(t)
	mux := NewMux(deps)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/v1/chat/completions", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
