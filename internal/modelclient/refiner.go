package modelclient

import "context"

// Refiner adapts a ResilientClient to summarize.ModelRefiner, so the
// summariser depends only on that narrow interface and never on this
// package's richer Request/Response/Provider shapes.
type Refiner struct {
	client      *ResilientClient
	model       string
	temperature float64
	maxTokens   int
}

// NewRefiner builds a Refiner bound to one model and generation config.
func NewRefiner(client *ResilientClient, model string, temperature float64, maxTokens int) *Refiner {
	return &Refiner{client: client, model: model, temperature: temperature, maxTokens: maxTokens}
}

// Refine implements summarize.ModelRefiner by calling through the
// resilient client and returning the raw content string as bytes — the
// summariser parses it as a Revision JSON document.
func (r *Refiner) Refine(ctx context.Context, systemPrompt, userPrompt string) ([]byte, error) {
	resp, err := r.client.Complete(ctx, Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Model:        r.model,
		Temperature:  r.temperature,
		MaxTokens:    r.maxTokens,
	})
	if err != nil {
		return nil, err
	}
	return []byte(resp.Content), nil
}
