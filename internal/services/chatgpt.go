package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jwebster45206/npc-engine/pkg/chat"
)

const (
	chatGPTBaseURL      = "https://api.openai.com/v1"
	DefaultChatGPTModel = "gpt-4o-mini"
)

// ChatGPTService implements LLMService for OpenAI's chat completions API and
// any endpoint compatible with it (ASI:One, Venice, local gateways).
type ChatGPTService struct {
	apiKey           string
	baseURL          string
	modelName        string
	backendModelName string
	httpClient       *http.Client
}

var _ LLMService = (*ChatGPTService)(nil)

// ChatGPTTool is a function tool definition
type ChatGPTTool struct {
	Type     string              `json:"type"` // always "function"
	Function ChatGPTToolFunction `json:"function"`
}

type ChatGPTToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ChatGPTToolChoice forces a specific function
type ChatGPTToolChoice struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

// ChatGPTRequest represents the request structure for chat completions
type ChatGPTRequest struct {
	Model       string             `json:"model"`
	Messages    []chat.ChatMessage `json:"messages"`
	Tools       []ChatGPTTool      `json:"tools,omitempty"`
	ToolChoice  *ChatGPTToolChoice `json:"tool_choice,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
}

type ChatGPTToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// ChatGPTChoice represents a single choice in the response
type ChatGPTChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role      string            `json:"role"`
		Content   string            `json:"content"`
		Refusal   string            `json:"refusal,omitempty"`
		ToolCalls []ChatGPTToolCall `json:"tool_calls,omitempty"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// ChatGPTResponse represents the response structure for chat completions
type ChatGPTResponse struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	Created int64           `json:"created"`
	Model   string          `json:"model"`
	Choices []ChatGPTChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// NewChatGPTService creates a new chat completions service. An empty baseURL
// targets OpenAI.
func NewChatGPTService(apiKey string, baseURL string, modelName string, backendModelName string) *ChatGPTService {
	if baseURL == "" {
		baseURL = chatGPTBaseURL
	}
	if modelName == "" {
		modelName = DefaultChatGPTModel
	}
	return &ChatGPTService{
		apiKey:           apiKey,
		baseURL:          strings.TrimRight(baseURL, "/"),
		modelName:        modelName,
		backendModelName: backendModelName,
		httpClient: &http.Client{
			Timeout: 90 * time.Second, // ChatGPT can be slower than other APIs
		},
	}
}

// Chat generates a chat response
func (c *ChatGPTService) Chat(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}

	choice, err := c.complete(ctx, ChatGPTRequest{
		Model:       c.modelName,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   300,
	})
	if err != nil {
		return nil, err
	}

	if choice.Message.Refusal != "" {
		return nil, fmt.Errorf("model refused to respond: %s", choice.Message.Refusal)
	}

	return &chat.ChatResponse{
		Message: choice.Message.Content,
	}, nil
}

// Extract forces the setup_npc function and returns its arguments
func (c *ChatGPTService) Extract(ctx context.Context, description string) (json.RawMessage, error) {
	model := c.modelName
	if c.backendModelName != "" {
		model = c.backendModelName
	}

	toolChoice := &ChatGPTToolChoice{Type: "function"}
	toolChoice.Function.Name = ExtractionToolName

	choice, err := c.complete(ctx, ChatGPTRequest{
		Model: model,
		Messages: []chat.ChatMessage{
			{Role: chat.ChatRoleUser, Content: description},
		},
		Tools: []ChatGPTTool{{
			Type: "function",
			Function: ChatGPTToolFunction{
				Name:        ExtractionToolName,
				Description: ExtractionToolDescription,
				Parameters:  ExtractionSchema(),
			},
		}},
		ToolChoice: toolChoice,
	})
	if err != nil {
		return nil, err
	}

	for _, call := range choice.Message.ToolCalls {
		if call.Function.Name == ExtractionToolName {
			return json.RawMessage(call.Function.Arguments), nil
		}
	}
	return nil, fmt.Errorf("no %s tool call in response", ExtractionToolName)
}

func (c *ChatGPTService) complete(ctx context.Context, request ChatGPTRequest) (*ChatGPTChoice, error) {
	reqBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var chatGPTResp ChatGPTResponse
	if err := json.Unmarshal(body, &chatGPTResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if chatGPTResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", chatGPTResp.Error.Message)
	}

	if len(chatGPTResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from API")
	}

	return &chatGPTResp.Choices[0], nil
}
