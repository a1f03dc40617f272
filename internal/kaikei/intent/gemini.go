package intent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiConfig holds the settings for the Gemini classifier.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Gemini classifies text through an eino chat model backed by the Gemini API.
type Gemini struct {
	model model.BaseChatModel
}

// NewGemini builds the genai client and wraps it in an eino chat model.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("intent: create gemini client: %w", err)
	}

	name := cfg.Model
	if name == "" {
		name = defaultGeminiModel
	}
	temperature := float32(0)
	maxTokens := 200
	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       name,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("intent: create gemini chat model: %w", err)
	}
	return &Gemini{model: cm}, nil
}

// NewGeminiWithModel wraps an existing eino chat model.
func NewGeminiWithModel(m model.BaseChatModel) *Gemini {
	return &Gemini{model: m}
}

// Classify implements Classifier.
func (g *Gemini) Classify(ctx context.Context, text string) (Result, error) {
	msg, err := g.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(text),
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if msg == nil {
		return Result{}, fmt.Errorf("%w: empty response", ErrMalformedOutput)
	}
	return decodeClassification(msg.Content)
}
