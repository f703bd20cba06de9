// Package gemini implements llm.Client on top of Google Gemini.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/worktab/worktab-api/internal/llm"
	"google.golang.org/genai"
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "gemini-2.0-flash"

// Provider adapts a GeminiClient to llm.Client.
type Provider struct {
	client    GeminiClient
	model     string
	maxTokens int
}

var _ llm.Client = (*Provider)(nil)

// New creates a provider.
func New(client GeminiClient, model string, maxTokens int) *Provider {
	if model == "" {
		model = DefaultModel
	}
	return &Provider{client: client, model: model, maxTokens: maxTokens}
}

// Complete sends the conversation to Gemini with the system prompt as the
// system instruction.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Reply, error) {
	maxTokens := p.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(req.System)},
		}
	}
	if maxTokens > 0 {
		config.MaxOutputTokens = int32(maxTokens)
	}

	resp, err := p.client.GenerateContent(ctx, p.model, toContents(req.Messages), config)
	if err != nil {
		return nil, mapError(err)
	}
	return fromResponse(resp, p.model)
}

func toContents(messages []llm.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
		})
	}
	return contents
}

func fromResponse(resp *genai.GenerateContentResponse, model string) (*llm.Reply, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, llm.ErrInvalidResponse
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return nil, llm.ErrInvalidResponse
	}

	reply := &llm.Reply{Text: text.String(), Model: model}
	if usage := resp.UsageMetadata; usage != nil {
		reply.Usage = llm.Usage{
			InputTokens:  int(usage.PromptTokenCount),
			OutputTokens: int(usage.CandidatesTokenCount),
		}
	}
	return reply, nil
}

// mapError converts SDK API errors into llm.StatusError so that the
// assistant maps them the same way as any other provider.
func mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &llm.StatusError{StatusCode: apiErr.Code, Body: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &llm.StatusError{StatusCode: apiErrPtr.Code, Body: apiErrPtr.Message}
	}
	return fmt.Errorf("call gemini: %w", err)
}
