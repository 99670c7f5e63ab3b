// Package ai defines the external AI collaborator contracts consumed by the
// debate orchestrator, together with their concrete adapters: text
// generation (OpenAI-compatible), knowledge retrieval (Weaviate), and the
// conversation-context service (REST).
//
// The orchestrator depends only on the interfaces in this file; adapters are
// wired in at process start. Every call is expected to honor its context and
// to be bounded by a per-call timeout applied by the adapter.
package ai

import "context"

// Message is one conversation message exchanged with the generation and
// context services.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes one generation call. Provider selects the
// backing service when the adapter fronts several (e.g. OpenAI-compatible
// gateways); Model, Temperature, and MaxTokens come from the acting
// participant's configuration.
type CompletionRequest struct {
	Provider    string
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

// CompletionResult is the outcome of a successful generation call.
type CompletionResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Completer generates text from a prompt. Implementations must retry
// transient failures internally with bounded exponential backoff; an error
// from Complete means the call is exhausted and the enclosing operation
// should fail.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
}

// Snippet is one knowledge-retrieval hit.
type Snippet struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Knowledge retrieves snippets relevant to a query from a knowledge base.
// Failures are degradable: callers log and continue without augmentation.
type Knowledge interface {
	Search(ctx context.Context, knowledgeBase, query string, maxResults int) ([]Snippet, error)
}

// ContextStore is the external conversation-context service. It assembles
// token-bounded windows over prior messages. All operations are best-effort
// from the orchestrator's point of view: a debate without a context handle
// is still fully usable.
type ContextStore interface {
	// CreateContext registers a namespace for a debate and returns its handle.
	CreateContext(ctx context.Context, org, namespace, name string, initial []Message) (string, error)
	// AppendToContext adds messages to an existing context.
	AppendToContext(ctx context.Context, handle string, messages []Message) error
	// GetContextWindow returns a token-bounded slice of prior conversation.
	GetContextWindow(ctx context.Context, handle string, maxTokens int, strategy string) ([]Message, error)
}
