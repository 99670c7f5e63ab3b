// Package ai – Weaviate knowledge adapter.
//
// This file implements the Knowledge contract with a Weaviate nearText
// GraphQL query. The knowledge-base id maps to a Weaviate class name;
// snippet scores come from the returned certainty.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
)

// WeaviateKnowledge is a Knowledge implementation backed by a Weaviate
// instance. Content is expected under a "content" text property on the
// target class.
type WeaviateKnowledge struct {
	client *weaviate.Client

	// CallTimeout bounds each search call.
	CallTimeout time.Duration
}

// NewWeaviateKnowledge constructs an adapter for a Weaviate endpoint, e.g.
// host "weaviate:8080" with scheme "http".
func NewWeaviateKnowledge(host, scheme string) (*WeaviateKnowledge, error) {
	client, err := weaviate.NewClient(weaviate.Config{Host: host, Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("weaviate client: %w", err)
	}
	return &WeaviateKnowledge{client: client, CallTimeout: 10 * time.Second}, nil
}

// Search runs a nearText query against the class named by knowledgeBase and
// returns up to maxResults snippets with their certainty scores.
func (w *WeaviateKnowledge) Search(ctx context.Context, knowledgeBase, query string, maxResults int) ([]Snippet, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	callCtx := ctx
	if w.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, w.CallTimeout)
		defer cancel()
	}

	nearText := w.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	result, err := w.client.GraphQL().Get().
		WithClassName(knowledgeBase).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(maxResults).
		Do(callCtx)
	if err != nil {
		return nil, fmt.Errorf("knowledge search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("knowledge search: %s", result.Errors[0].Message)
	}

	// Weaviate hands back dynamically shaped JSON; round-trip it into the
	// expected structure.
	raw, err := json.Marshal(result.Data)
	if err != nil {
		return nil, fmt.Errorf("decode knowledge response: %w", err)
	}
	var parsed struct {
		Get map[string][]struct {
			Content    string `json:"content"`
			Additional struct {
				Certainty float64 `json:"certainty"`
			} `json:"_additional"`
		} `json:"Get"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode knowledge response: %w", err)
	}

	var out []Snippet
	for _, hit := range parsed.Get[knowledgeBase] {
		out = append(out, Snippet{Content: hit.Content, Score: hit.Additional.Certainty})
	}
	return out, nil
}
