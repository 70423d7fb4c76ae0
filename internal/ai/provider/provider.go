// Package provider is the model-response producer: it turns an API key, an
// ordered message list and a model id into either a single completion string
// or a stream of text chunks.
//
// Both provider clients concatenate their per-chunk deltas internally, so
// onText always receives the cumulative text so far.
package provider

import (
	"context"
	"errors"
	"strings"
)

// TurnMessage is one {role, content} pair of the outbound request.
type TurnMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Producer yields a completion for a message list. Stream invokes onText for
// every chunk with the cumulative text and returns the final text.
// Transport and auth errors come back on the error return.
type Producer interface {
	Stream(ctx context.Context, apiKey, model string, msgs []TurnMessage, onText func(cumulative string)) (string, error)
	Complete(ctx context.Context, apiKey, model string, msgs []TurnMessage) (string, error)
}

// New returns a Producer that dispatches on the catalog's provider kind for
// the requested model and applies the model's preprocessing first.
func New(catalog *Catalog) Producer {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &dispatcher{catalog: catalog}
}

type dispatcher struct {
	catalog *Catalog
}

func (d *dispatcher) resolve(apiKey, model string, msgs []TurnMessage) (Producer, ModelInfo, []TurnMessage, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ModelInfo{}, nil, errors.New("missing api key")
	}
	if strings.TrimSpace(model) == "" {
		return nil, ModelInfo{}, nil, errors.New("missing model")
	}

	info := d.catalog.Lookup(model)
	msgs = Preprocess(msgs, info)

	switch info.Provider {
	case ProviderAnthropic:
		return &anthropicProducer{}, info, msgs, nil
	default:
		return &openAIProducer{baseURL: info.BaseURL}, info, msgs, nil
	}
}

func (d *dispatcher) Stream(ctx context.Context, apiKey, model string, msgs []TurnMessage, onText func(string)) (string, error) {
	p, _, prepared, err := d.resolve(apiKey, model, msgs)
	if err != nil {
		return "", err
	}
	return p.Stream(ctx, apiKey, model, prepared, onText)
}

func (d *dispatcher) Complete(ctx context.Context, apiKey, model string, msgs []TurnMessage) (string, error) {
	p, _, prepared, err := d.resolve(apiKey, model, msgs)
	if err != nil {
		return "", err
	}
	return p.Complete(ctx, apiKey, model, prepared)
}
