package upstream

import "go.uber.org/zap"

// LocalHTTPConfig configures an adapter for a loopback/LAN OpenAI-wire
// compatible server (Ollama, LM Studio, vLLM's OpenAI front end) that
// typically requires no API key.
type LocalHTTPConfig struct {
	ProviderName string
	BaseURL      string
	Model        string
	APIKey       string // optional; most local servers ignore it
}

// NewLocalHTTPAdapter wraps the OpenAI-compatible adapter for a local
// endpoint. It is the same wire protocol as OpenAICompatAdapter; the
// distinct constructor exists so callers don't have to reason about
// auth requirements when wiring a loopback provider.
func NewLocalHTTPAdapter(cfg LocalHTTPConfig, logger *zap.Logger) *OpenAICompatAdapter {
	return NewOpenAICompatAdapter(OpenAICompatConfig{
		ProviderName: cfg.ProviderName,
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		Model:        cfg.Model,
	}, logger)
}
