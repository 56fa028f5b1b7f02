// Package llm holds provider.Client implementations. Vendor API clients are wired in
// through Registry; EchoClient serves development and tests.
package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/promptlab/backend/internal/domain/provider"
)

// EchoClient answers every completion with the last user message. Token counts are
// whitespace-separated words, which is close enough for metering in development.
type EchoClient struct{}

// NewEchoClient creates an EchoClient
func NewEchoClient() *EchoClient {
	return &EchoClient{}
}

func (EchoClient) Complete(ctx context.Context, req provider.CompletionRequest) (provider.Completion, error) {
	if err := ctx.Err(); err != nil {
		return provider.Completion{}, err
	}
	var input int64
	var last string
	for _, m := range req.Messages {
		input += CountTokens(m.Content)
		if m.Role == "user" {
			last = m.Content
		}
	}
	text := last
	if req.MaxTokens > 0 {
		text = truncateWords(text, req.MaxTokens)
	}
	return provider.Completion{
		Text:         text,
		InputTokens:  input,
		OutputTokens: CountTokens(text),
	}, nil
}

// CountTokens approximates a token count by words
func CountTokens(s string) int64 {
	return int64(len(strings.Fields(s)))
}

func truncateWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ")
}

// Registry routes completion requests to the client registered for their provider
type Registry struct {
	mu       sync.RWMutex
	clients  map[provider.Name]provider.Client
	fallback provider.Client
}

// NewRegistry creates a registry. fallback serves providers with no registered client
// and may be nil.
func NewRegistry(fallback provider.Client) *Registry {
	return &Registry{clients: make(map[provider.Name]provider.Client), fallback: fallback}
}

// Register sets the client for a provider
func (r *Registry) Register(name provider.Name, c provider.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = c
}

func (r *Registry) Complete(ctx context.Context, req provider.CompletionRequest) (provider.Completion, error) {
	r.mu.RLock()
	c, ok := r.clients[req.Provider]
	r.mu.RUnlock()
	if !ok {
		c = r.fallback
	}
	if c == nil {
		return provider.Completion{}, fmt.Errorf("no client configured for provider %s", req.Provider)
	}
	return c.Complete(ctx, req)
}
