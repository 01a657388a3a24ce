// Package live manages bidirectional streaming sessions with hosted
// speech translation models.
//
// A session is a single owned handle with an explicit lifecycle:
// construct with New, Connect, stream audio in and messages out, Close.
// Provider implementations translate their wire protocols into the
// Message variant type, so everything above this package is testable
// without a network or audio stack.
package live

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Common errors returned by streams.
var (
	ErrNotConnected  = errors.New("live: stream not connected")
	ErrAlreadyOpen   = errors.New("live: stream already connected")
	ErrMissingAPIKey = errors.New("live: missing API key")
	ErrClosed        = errors.New("live: stream closed")
)

// Stream is a bidirectional live translation session.
type Stream interface {
	// Connect dials the provider and configures the session.
	// It must be called exactly once before any send.
	Connect(ctx context.Context) error

	// SendAudio queues a PCM16 chunk for transmission. sampleRate is
	// the rate the chunk was actually captured at; it is reported to
	// the remote side per chunk. Sends never block on the network:
	// when the outbound queue is full the oldest chunk is dropped.
	SendAudio(pcm []byte, sampleRate int) error

	// SendText injects a text turn into the session, where the
	// provider supports it.
	SendText(text string) error

	// Messages returns the inbound message channel. It is closed
	// when the stream ends, after a final error message if the
	// session failed.
	Messages() <-chan Message

	// DroppedOutbound reports how many outbound chunks were dropped
	// because the send queue was full.
	DroppedOutbound() int64

	// Close tears the session down. It is idempotent and safe to
	// call on a stream that never connected.
	Close() error
}

// Factory creates a Stream from a Config.
type Factory func(cfg Config) (Stream, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register installs a provider factory. Bundled providers call this
// from init().
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// New creates a Stream for the provider named in cfg.
func New(cfg Config) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registryMu.RLock()
	f, ok := registry[cfg.Provider]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("live: unknown provider %q (registered: %v)", cfg.Provider, Providers())
	}
	return f(cfg)
}

// Providers returns the registered provider names, sorted.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
