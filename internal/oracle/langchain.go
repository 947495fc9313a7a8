package oracle

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// DefaultOllamaURL is the OpenAI-compatible endpoint of a local Ollama.
const DefaultOllamaURL = "http://localhost:11434/v1"

// LangChain is an Oracle backed by any langchaingo model. It serves local
// OpenAI-compatible runtimes such as Ollama.
type LangChain struct {
	model       llms.Model
	temperature float64
	maxTokens   int
}

// NewLangChain wraps an existing langchaingo model.
func NewLangChain(model llms.Model, temperature float64, maxTokens int) *LangChain {
	return &LangChain{model: model, temperature: temperature, maxTokens: maxTokens}
}

// NewOllama connects to a local OpenAI-compatible runtime at baseURL.
func NewOllama(model, baseURL string, temperature float64, maxTokens int) (*LangChain, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	client, err := lcopenai.New(
		lcopenai.WithBaseURL(baseURL),
		lcopenai.WithToken("none"),
		lcopenai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("ollama client: %w", err)
	}
	return NewLangChain(client, temperature, maxTokens), nil
}

// Ask implements Oracle.
func (l *LangChain) Ask(ctx context.Context, req Request) (string, error) {
	var content []llms.MessageContent
	if req.System != "" {
		content = append(content, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(req.System)},
		})
	}
	content = append(content, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(req.Prompt)},
	})

	opts := []llms.CallOption{
		llms.WithTemperature(l.temperature),
		llms.WithMaxTokens(pick(req.MaxTokens, l.maxTokens)),
	}
	if req.JSON {
		opts = append(opts, llms.WithJSONMode())
	}

	resp, err := l.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("langchain: no choices")
	}
	return resp.Choices[0].Content, nil
}
