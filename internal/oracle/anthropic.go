package oracle

import (
	"context"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"
)

// Anthropic is an Oracle backed by the Anthropic messages API.
type Anthropic struct {
	client      *anthropic.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewAnthropic creates an Anthropic adapter.
func NewAnthropic(apiKey, model, baseURL string, temperature float32, maxTokens int) *Anthropic {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	return &Anthropic{
		client:      anthropic.NewClient(apiKey, opts...),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// Ask implements Oracle. The messages API has no JSON mode, so req.JSON only
// adds an instruction to the system prompt.
func (a *Anthropic) Ask(ctx context.Context, req Request) (string, error) {
	system := req.System
	if req.JSON {
		system += "\nRespond with a single JSON object and nothing else."
	}
	temp := a.temperature

	resp, err := a.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:  anthropic.Model(a.model),
		System: system,
		Messages: []anthropic.Message{
			{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(req.Prompt)},
			},
		},
		MaxTokens:   pick(req.MaxTokens, a.maxTokens),
		Temperature: &temp,
	})
	if err != nil {
		return "", err
	}
	for _, c := range resp.Content {
		if c.Text != nil {
			return *c.Text, nil
		}
	}
	return "", fmt.Errorf("anthropic: no text content")
}
