package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jwebster45206/npc-engine/pkg/chat"
)

const (
	DefaultAnthropicModel     = "claude-3-5-haiku-latest"
	DefaultAnthropicMaxTokens = 1024
)

// AnthropicService implements LLMService for Anthropic Claude
type AnthropicService struct {
	client           anthropic.Client
	modelName        string
	backendModelName string
	logger           *slog.Logger
}

var _ LLMService = (*AnthropicService)(nil)

// NewAnthropicService creates a Claude-backed service. backendModelName, when
// set, is used for extraction calls instead of modelName.
func NewAnthropicService(apiKey string, modelName string, backendModelName string, logger *slog.Logger, opts ...option.RequestOption) *AnthropicService {
	if modelName == "" {
		modelName = DefaultAnthropicModel
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicService{
		client:           anthropic.NewClient(reqOpts...),
		modelName:        modelName,
		backendModelName: backendModelName,
		logger:           logger,
	}
}

// splitChatMessages extracts and combines all system messages into a single system prompt
// and returns the remaining non-system messages
func (a *AnthropicService) splitChatMessages(messages []chat.ChatMessage) (string, []anthropic.MessageParam) {
	var systemParts []string
	var conversation []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case chat.ChatRoleSystem:
			systemParts = append(systemParts, msg.Content)
		case chat.ChatRoleAgent:
			conversation = append(conversation, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			conversation = append(conversation, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	return strings.Join(systemParts, "\n\n"), conversation
}

func (a *AnthropicService) Chat(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}

	systemPrompt, conversation := a.splitChatMessages(messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.modelName),
		MaxTokens: DefaultAnthropicMaxTokens,
		Messages:  conversation,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("claude API error: %w", err)
	}

	var responseText string
	for _, block := range resp.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}

	a.logger.Debug("Claude chat completion",
		"model", a.modelName,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens)

	return &chat.ChatResponse{
		Message: responseText,
	}, nil
}

func (a *AnthropicService) Extract(ctx context.Context, description string) (json.RawMessage, error) {
	modelToUse := a.modelName
	if a.backendModelName != "" {
		modelToUse = a.backendModelName
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelToUse),
		MaxTokens: DefaultAnthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(description)),
		},
		Tools: []anthropic.ToolUnionParam{
			{OfTool: &anthropic.ToolParam{
				Name:        ExtractionToolName,
				Description: anthropic.String(ExtractionToolDescription),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: ExtractionProperties(),
					Required:   ExtractionRequired,
				},
			}},
		},
		ToolChoice: anthropic.ToolChoiceParamOfTool(ExtractionToolName),
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("claude API error: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == ExtractionToolName {
			return block.Input, nil
		}
	}
	return nil, fmt.Errorf("no %s tool call in response", ExtractionToolName)
}
