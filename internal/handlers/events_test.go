package handlers

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/npc-engine/internal/services/events"
)

func TestEventsHandler_BadRequests(t *testing.T) {
	handler := NewEventsHandler(nil, testLogger())

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"wrong method", http.MethodPost, "/v1/events/npc/npc-gerald", http.StatusMethodNotAllowed},
		{"missing id", http.MethodGet, "/v1/events/npc/", http.StatusBadRequest},
		{"nested path", http.MethodGet, "/v1/events/npc/a/b", http.StatusBadRequest},
		{"wrong prefix", http.MethodGet, "/v1/events/game/x", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))
			if rr.Code != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, rr.Code)
			}
		})
	}
}

func TestEventsHandler_StreamsPublishedEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	srv := httptest.NewServer(NewEventsHandler(rdb, testLogger()))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events/npc/npc-gerald", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Expected text/event-stream, got %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	if line := readLine(t, reader); line != "event: connected" {
		t.Fatalf("Expected connected event, got %q", line)
	}

	broadcaster := events.NewBroadcaster(rdb, testLogger())
	if err := broadcaster.PublishSetupCompleted(ctx, "npc-gerald", "env-1", "Gerald"); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	for {
		line := readLine(t, reader)
		if line == "event: setup.completed" {
			data := readLine(t, reader)
			if !strings.Contains(data, `"npc_name":"Gerald"`) {
				t.Errorf("Unexpected event data %q", data)
			}
			return
		}
	}
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("Failed to read stream: %v", err)
	}
	return strings.TrimRight(line, "\n")
}
