// Package dispatch implements the gateway's fallback algorithm: pick a
// provider by round robin, fall back across its configured models, then
// across the next provider, validating the first chunk before handing a
// stream back to the caller. Selection state is guarded by an atomic
// cursor, with zap logging on every decision.
package dispatch

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/thotenn/aicarousel/internal/chatmsg"
	"github.com/thotenn/aicarousel/internal/gwerror"
	"github.com/thotenn/aicarousel/internal/registry"
	"github.com/thotenn/aicarousel/internal/upstream"
)

var errEmptyUpstreamStream = errors.New("upstream stream ended before any chunk")

// ChatResult is a validated stream plus the provider/model that served
// it. It is returned only once its first chunk has been observed.
type ChatResult struct {
	Stream      <-chan upstream.Chunk
	ServiceName string
	Model       string
	ProviderKey string
}

// ChatHandler is the dispatch core: it owns the single round-robin
// cursor shared across every request.
type ChatHandler struct {
	registry *registry.Registry
	build    upstream.Builder
	logger   *zap.Logger

	nextIndex atomic.Int64
}

func New(reg *registry.Registry, build upstream.Builder, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{registry: reg, build: build, logger: logger}
}

// Dispatch runs the fallback algorithm and returns a validated
// ChatResult, or a *gwerror.Error of kind KindNoProviders /
// KindAllFailed.
func (h *ChatHandler) Dispatch(ctx context.Context, messages []chatmsg.Message) (*ChatResult, error) {
	actives, err := h.registry.ListActive()
	if err != nil {
		h.logger.Error("list active providers failed", zap.Error(err))
		return nil, gwerror.Internal("")
	}
	if len(actives) == 0 {
		return nil, gwerror.NoProviders()
	}

	n := len(actives)
	start := int(h.nextIndex.Load() % int64(n))
	if start < 0 {
		start += n
	}

	var lastErr error
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		p := actives[idx]

		result, err := h.tryProvider(ctx, p, messages)
		if result != nil {
			h.nextIndex.Store(int64((idx + 1) % n))
			return result, nil
		}
		if err != nil {
			lastErr = err
			h.logger.Warn("provider attempt failed",
				zap.String("provider", p.Key), zap.Error(err))
		}
	}
	return nil, gwerror.AllFailed(lastErr)
}

// tryProvider walks a provider's model list: the default model first,
// then the rest in configured order if fallback is enabled.
func (h *ChatHandler) tryProvider(ctx context.Context, p registry.ActiveProvider, messages []chatmsg.Message) (*ChatResult, error) {
	models := []string{p.DefaultModel}
	if p.EnableFallback {
		for _, m := range p.Models {
			if m != p.DefaultModel {
				models = append(models, m)
			}
		}
	}

	var lastErr error
	for _, model := range models {
		adapter, err := h.build(p.Key, model)
		if err != nil {
			lastErr = err
			if !p.EnableFallback {
				break
			}
			continue
		}

		result, err := h.tryModel(ctx, adapter, p, model, messages)
		if result != nil {
			return result, nil
		}
		if err != nil {
			lastErr = err
		}
		if !p.EnableFallback {
			break
		}
	}
	return nil, lastErr
}

// tryModel calls the adapter and validates the first chunk before
// returning a stream: an immediately-closed or immediately-erroring
// upstream is treated as a failed attempt, not a result.
func (h *ChatHandler) tryModel(ctx context.Context, adapter upstream.Adapter, p registry.ActiveProvider, model string, messages []chatmsg.Message) (*ChatResult, error) {
	stream, err := adapter.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}

	first, ok := <-stream
	if !ok {
		return nil, errEmptyUpstreamStream
	}
	if first.Err != nil {
		return nil, first.Err
	}

	out := make(chan upstream.Chunk, 1)
	out <- first
	go func() {
		defer close(out)
		for chunk := range stream {
			out <- chunk
		}
	}()

	return &ChatResult{
		Stream:      out,
		ServiceName: p.Name,
		Model:       model,
		ProviderKey: p.Key,
	}, nil
}
