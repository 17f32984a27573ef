// Package upstream hides vendor-specific chat-completion APIs behind a
// single Adapter shape.
package upstream

import (
	"context"

	"github.com/thotenn/aicarousel/internal/chatmsg"
)

// Chunk is one item of a lazy upstream text sequence. Err is set on
// the terminal item only; no further items follow it.
type Chunk struct {
	Content string
	Err     error
}

// Adapter is a single (provider, model) upstream binding. Chat starts
// the request and returns a channel of Chunks; closing the channel
// with no trailing Err signals a clean end of stream.
type Adapter interface {
	Chat(ctx context.Context, messages []chatmsg.Message) (<-chan Chunk, error)
}

// Builder constructs an Adapter for one (providerKey, model) pair.
// The gateway's Builder (buildAdapter in cmd/aicarousel) picks the
// concrete adapter by provider kind.
type Builder func(providerKey, model string) (Adapter, error)
