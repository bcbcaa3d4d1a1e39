package ai

import (
	"context"
	"fmt"

	"NetShaper/internal/config"
	"NetShaper/internal/model"

	"github.com/sashabaranov/go-openai"
)

const systemPrompt = `You are a network QoS operations assistant. You receive
an alert report from a hierarchical traffic shaper: per-policy drop counters,
drop rates and SLA states. Assess the likely cause (undersized burst
parameters, oversubscribed committed rates, misconfigured RED thresholds or
genuine overload) and suggest concrete next steps. Answer in markdown.`

// ReportAnalyzer asks an OpenAI-compatible endpoint to assess alert reports.
// It implements the model.Analyzer interface.
type ReportAnalyzer struct {
	cfg    *config.AIConfig
	client *openai.Client
}

// NewReportAnalyzer creates a new instance of ReportAnalyzer.
func NewReportAnalyzer(cfg *config.AIConfig) (model.Analyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("AI API key is not configured")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &ReportAnalyzer{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

// AnalyzeReport sends the report to the configured model and returns its
// assessment.
func (a *ReportAnalyzer) AnalyzeReport(ctx context.Context, input string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: input},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
