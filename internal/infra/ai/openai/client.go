package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/receipt-pipeline/internal/domain/ai"
	domain "github.com/bryanwahyu/receipt-pipeline/internal/domain/receipts"
	"github.com/bryanwahyu/receipt-pipeline/internal/infra/ai/prompt"
)

const (
	maxTokens    = 2048
	defaultModel = openai.GPT4o
	// near-deterministic critique
	critiqueTemperature = 0.1
)

type Client struct {
	*openai.Client
	Model string
}

func NewClient(apiKey, model string) *Client {
	return &Client{Client: openai.NewClient(apiKey), Model: model}
}

// NewClientWithBaseURL points the client at an OpenAI-compatible endpoint.
func NewClientWithBaseURL(apiKey, baseURL, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}
}

func (c *Client) model() string {
	if c.Model == "" {
		return defaultModel
	}
	return c.Model
}

func (c *Client) newRequest(messages []openai.ChatCompletionMessage) openai.ChatCompletionRequest {
	model := c.model()
	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: messages,
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if isReasoningModel(model) {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}
	return req
}

// Critique implements ai.Critic with one JSON-mode chat completion.
func (c *Client) Critique(ctx context.Context, in domain.ReflectionRequest) (domain.ReflectionResult, error) {
	user, err := prompt.GetReflectionUserPrompt(in.ValidationRules, in.DataPayload)
	if err != nil {
		return domain.ReflectionResult{}, err
	}
	req := c.newRequest([]openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: prompt.GetReflectionSystemPrompt()},
		{Role: openai.ChatMessageRoleUser, Content: user},
	})
	// reasoning models reject a custom temperature
	if !isReasoningModel(req.Model) {
		req.Temperature = critiqueTemperature
	}

	content, err := c.complete(ctx, req)
	if err != nil {
		return domain.ReflectionResult{}, err
	}
	var out domain.ReflectionResult
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return domain.ReflectionResult{}, fmt.Errorf("%w: invalid critique JSON: %v", ai.ErrUpstream, err)
	}
	return out, nil
}

// Extract implements receipts.Extractor by sending the image to a vision model.
func (c *Client) Extract(ctx context.Context, doc domain.Document) (domain.Draft, error) {
	if !strings.HasPrefix(doc.ContentType, "image/") {
		return nil, fmt.Errorf("%w: vision extraction cannot read %q", domain.ErrUnsupportedDocument, doc.ContentType)
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", doc.ContentType, base64.StdEncoding.EncodeToString(doc.Data))

	req := c.newRequest([]openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: prompt.GetExtractionSystemPrompt()},
		{Role: openai.ChatMessageRoleUser, MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt.GetExtractionUserPrompt(doc.Name)},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL,
				Detail: openai.ImageURLDetailAuto,
			}},
		}},
	})

	content, err := c.complete(ctx, req)
	if err != nil {
		return nil, err
	}
	var draft domain.Draft
	if err := json.Unmarshal([]byte(content), &draft); err != nil {
		return nil, fmt.Errorf("%w: invalid extraction JSON: %v", ai.ErrUpstream, err)
	}
	return draft, nil
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: %v", ai.ErrQuotaExceeded, err)
		}
		return "", fmt.Errorf("%w: failed to create chat completion: %v", ai.ErrUpstream, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ai.ErrUpstream)
	}
	return resp.Choices[0].Message.Content, nil
}

func isReasoningModel(model string) bool {
	return strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5")
}
