package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jwebster45206/npc-engine/pkg/chat"
)

func TestNewChatGPTService_Defaults(t *testing.T) {
	service := NewChatGPTService("key", "", "", "")

	if service.baseURL != chatGPTBaseURL {
		t.Errorf("Expected base URL %s, got %s", chatGPTBaseURL, service.baseURL)
	}
	if service.modelName != DefaultChatGPTModel {
		t.Errorf("Expected model %s, got %s", DefaultChatGPTModel, service.modelName)
	}
	if service.httpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}
}

func TestChatGPTService_Extract(t *testing.T) {
	var got ChatGPTRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "c1",
			"choices": [{
				"index": 0,
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1", "type": "function",
						"function": {"name": "setup_npc", "arguments": "{\"personality\":\"cheerful\",\"npc_name\":\"Mira\"}"}
					}]
				},
				"finish_reason": "tool_calls"
			}]
		}`))
	}))
	defer srv.Close()

	service := NewChatGPTService("key", srv.URL+"/v1/", "asi1-mini", "gpt-oss-20b")
	args, err := service.Extract(context.Background(), "A cheerful halfling innkeeper named Mira")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(args, &parsed); err != nil {
		t.Fatalf("arguments are not JSON: %v", err)
	}
	if parsed["npc_name"] != "Mira" {
		t.Errorf("Expected npc_name Mira, got %v", parsed["npc_name"])
	}

	if got.Model != "gpt-oss-20b" {
		t.Errorf("Expected extraction model gpt-oss-20b, got %s", got.Model)
	}
	if got.ToolChoice == nil || got.ToolChoice.Function.Name != ExtractionToolName {
		t.Errorf("Expected forced tool choice %s, got %+v", ExtractionToolName, got.ToolChoice)
	}
	if len(got.Tools) != 1 || got.Tools[0].Function.Name != ExtractionToolName {
		t.Errorf("Expected single setup_npc tool, got %+v", got.Tools)
	}
}

func TestChatGPTService_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"Welcome to the Prancing Pony!"}}]}`))
	}))
	defer srv.Close()

	service := NewChatGPTService("key", srv.URL, "asi1-mini", "")
	resp, err := service.Chat(context.Background(), []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: "You are Mira."},
		{Role: chat.ChatRoleUser, Content: "Hello"},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Message != "Welcome to the Prancing Pony!" {
		t.Errorf("unexpected message %q", resp.Message)
	}
}

func TestChatGPTService_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`},
		{"api error body", http.StatusOK, `{"error":{"message":"overloaded"}}`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
		{"refusal", http.StatusOK, `{"choices":[{"message":{"refusal":"no"}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			service := NewChatGPTService("key", srv.URL, "", "")
			if _, err := service.Chat(context.Background(), []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: "hi"}}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestChatGPTService_ExtractWithoutToolCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"plain text"}}]}`))
	}))
	defer srv.Close()

	service := NewChatGPTService("key", srv.URL, "", "")
	if _, err := service.Extract(context.Background(), "desc"); err == nil {
		t.Error("expected error when no tool call is returned")
	}
}
