package provider

import "context"

// Message is one chat turn sent to a provider
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a provider-neutral completion call
type CompletionRequest struct {
	Provider  Name
	Model     string
	APIKey    string
	Messages  []Message
	MaxTokens int
	Params    map[string]any
}

// Completion is a provider-neutral completion result
type Completion struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Client calls a provider. Wire formats of the vendor APIs live behind this interface.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}
