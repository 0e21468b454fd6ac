package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	domai "github.com/veritas-audit/auditflow/internal/domain/ai"
	"github.com/veritas-audit/auditflow/internal/domain/executions"
	"github.com/veritas-audit/auditflow/internal/domain/questions"
	"github.com/veritas-audit/auditflow/internal/domain/tools"
	"github.com/veritas-audit/auditflow/internal/infra/ai/prompt"
)

const maxTokens = 2048

// Client satisfies both the classifier contract (ai.Analyzer) and the
// collection agent contract (executions.Agent) against the OpenAI API. One
// client is constructed at startup and shared.
type Client struct {
	*openai.Client
	Model string
}

func NewClient(apiKey, model string) *Client {
	return &Client{Client: openai.NewClient(apiKey), Model: model}
}

// analysisReply mirrors the JSON the classification prompt requests.
// toolSuggestion may be a single tool id or a list.
type analysisReply struct {
	ToolSuggestion  tools.Selection `json:"toolSuggestion"`
	AIPrompt        string          `json:"aiPrompt"`
	ConnectorReason string          `json:"connectorReason"`
	Category        string          `json:"category"`
	Subcategory     string          `json:"subcategory"`
}

// Analyze classifies one question via a JSON-mode chat completion. Callers
// recover from errors with the fixed fallback analysis; this method only
// reports them.
func (c *Client) Analyze(ctx context.Context, q questions.Question) (domai.Analysis, error) {
	content, err := c.complete(ctx, prompt.AnalysisSystem(), prompt.AnalysisUser(q))
	if err != nil {
		return domai.Analysis{}, err
	}

	var reply analysisReply
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		return domai.Analysis{}, fmt.Errorf("parse analysis reply: %w", err)
	}
	if reply.ToolSuggestion.IsZero() {
		// The model answered but skipped the vocabulary; default rather
		// than fail the question.
		reply.ToolSuggestion = tools.NewSelection(tools.SQLServer)
	}
	if strings.TrimSpace(reply.AIPrompt) == "" {
		reply.AIPrompt = fmt.Sprintf("Collect data to answer: %s", q.Text)
	}
	return domai.Analysis{
		AIPrompt:        reply.AIPrompt,
		ToolSuggestion:  reply.ToolSuggestion,
		ConnectorReason: reply.ConnectorReason,
		Category:        reply.Category,
		Subcategory:     reply.Subcategory,
	}, nil
}

// Collect runs one data-collection call against the resolved connector and
// returns the raw payload for normalization.
func (c *Client) Collect(ctx context.Context, req executions.CollectionRequest) (string, error) {
	return c.complete(ctx,
		prompt.CollectionSystem(req.ToolType, req.Connector),
		prompt.CollectionUser(req.Question, req.Prompt),
	)
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	model := c.Model
	if model == "" {
		model = "gpt-4o"
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: %v", domai.ErrQuotaExceeded, err)
		}
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
