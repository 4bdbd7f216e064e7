package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jwebster45206/npc-engine/pkg/chat"
)

// MockLLMAPI is a mock implementation of LLMService for testing
type MockLLMAPI struct {
	ExtractFunc func(ctx context.Context, description string) (json.RawMessage, error)
	ChatFunc    func(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error)

	// Track calls for testing
	ExtractCalls []string
	ChatCalls    []ChatCall

	mu sync.Mutex // protects all fields above
}

type ChatCall struct {
	Messages []chat.ChatMessage
}

var _ LLMService = (*MockLLMAPI)(nil)

// NewMockLLMAPI creates a new mock LLM service
func NewMockLLMAPI() *MockLLMAPI {
	return &MockLLMAPI{
		ExtractCalls: make([]string, 0),
		ChatCalls:    make([]ChatCall, 0),
	}
}

// Extract mocks the forced setup_npc call
func (m *MockLLMAPI) Extract(ctx context.Context, description string) (json.RawMessage, error) {
	m.mu.Lock()
	m.ExtractCalls = append(m.ExtractCalls, description)
	fn := m.ExtractFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, description)
	}

	// Default behavior - a neutral persona
	return json.RawMessage(`{"personality":"calm and polite"}`), nil
}

// Chat mocks response generation
func (m *MockLLMAPI) Chat(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
	m.mu.Lock()
	m.ChatCalls = append(m.ChatCalls, ChatCall{Messages: messages})
	fn := m.ChatFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages)
	}

	return &chat.ChatResponse{
		Message: "Mock response",
	}, nil
}

// ExtractCallCount returns the number of Extract calls so far
func (m *MockLLMAPI) ExtractCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ExtractCalls)
}

// ChatCallCount returns the number of Chat calls so far
func (m *MockLLMAPI) ChatCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ChatCalls)
}

// LastChatCall returns the most recent Chat call
func (m *MockLLMAPI) LastChatCall() (ChatCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ChatCalls) == 0 {
		return ChatCall{}, false
	}
	return m.ChatCalls[len(m.ChatCalls)-1], true
}

// Reset clears all call tracking
func (m *MockLLMAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExtractCalls = make([]string, 0)
	m.ChatCalls = make([]ChatCall, 0)
}

// SetExtractResponse makes Extract return the given JSON arguments
func (m *MockLLMAPI) SetExtractResponse(args string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExtractFunc = func(ctx context.Context, description string) (json.RawMessage, error) {
		return json.RawMessage(args), nil
	}
}

// SetExtractError sets up the mock to return an error on Extract
func (m *MockLLMAPI) SetExtractError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExtractFunc = func(ctx context.Context, description string) (json.RawMessage, error) {
		return nil, err
	}
}

// SetChatResponse makes Chat return message
func (m *MockLLMAPI) SetChatResponse(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChatFunc = func(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
		return &chat.ChatResponse{Message: message}, nil
	}
}

// SetChatError sets up the mock to return an error on Chat
func (m *MockLLMAPI) SetChatError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChatFunc = func(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
		return nil, err
	}
}
