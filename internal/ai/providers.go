package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/option"
)

// providerResponse is the JSON contract both providers are instructed to
// return.
type providerResponse struct {
	ConfidenceScore float64 `json:"confidence_score"`
	Reasoning       string  `json:"reasoning"`
}

// =============================================================================
// OPENAI (PRIMARY)
// =============================================================================

const openAIModel = "gpt-4o-mini"

// OpenAIProvider analyzes reports with the OpenAI chat API in JSON mode.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates the primary provider.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey)}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// Analyze implements Provider.
func (p *OpenAIProvider) Analyze(ctx context.Context, systemPrompt, userPrompt string) (*Result, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: openAIModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
		MaxTokens:   200,
	})
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	var parsed providerResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return nil, fmt.Errorf("parsing openai response: %w", err)
	}
	return &Result{Score: parsed.ConfidenceScore, Reasoning: parsed.Reasoning}, nil
}

// =============================================================================
// GEMINI (FALLBACK)
// =============================================================================

const geminiModel = "gemini-2.0-flash-exp"

// GeminiProvider analyzes reports with the Gemini API using a structured
// response schema.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates the fallback provider.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("initializing gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return "gemini" }

// Analyze implements Provider.
func (p *GeminiProvider) Analyze(ctx context.Context, systemPrompt, userPrompt string) (*Result, error) {
	model := p.client.GenerativeModel(geminiModel)
	model.SetTemperature(0.3)
	model.SetMaxOutputTokens(200)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = &genai.Schema{
		Type:     genai.TypeObject,
		Required: []string{"confidence_score", "reasoning"},
		Properties: map[string]*genai.Schema{
			"confidence_score": {
				Type:        genai.TypeNumber,
				Description: "Confidence score between 0.0 and 1.0",
			},
			"reasoning": {
				Type:        genai.TypeString,
				Description: "Brief explanation of the confidence score",
			},
		},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(systemPrompt+"\n\n"+userPrompt))
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return nil, fmt.Errorf("gemini returned non-text part")
	}

	var parsed providerResponse
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("parsing gemini response: %w", err)
	}
	return &Result{Score: parsed.ConfidenceScore, Reasoning: parsed.Reasoning}, nil
}
