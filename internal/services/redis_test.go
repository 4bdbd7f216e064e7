package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedisService(t *testing.T) (*RedisService, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	redisService, err := NewRedisService("redis://"+mr.Addr(), logger)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create redis service: %v", err)
	}

	t.Cleanup(func() {
		_ = redisService.Close()
		mr.Close()
	})
	return redisService, mr
}

func TestRedisService_Basic(t *testing.T) {
	redisService, _ := setupTestRedisService(t)
	ctx := context.Background()

	if err := redisService.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	key := "npc-state:npc-gerald"
	value := `{"phase":"READY"}`

	if err := redisService.Set(ctx, key, value, time.Minute); err != nil {
		t.Fatalf("Failed to set key: %v", err)
	}

	retrievedValue, err := redisService.Get(ctx, key)
	if err != nil {
		t.Fatalf("Failed to get key: %v", err)
	}
	if retrievedValue != value {
		t.Errorf("Expected '%s', got '%s'", value, retrievedValue)
	}

	exists, err := redisService.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Failed to check if key exists: %v", err)
	}
	if !exists {
		t.Error("Key should exist")
	}

	if err := redisService.Del(ctx, key); err != nil {
		t.Fatalf("Failed to delete key: %v", err)
	}

	exists, err = redisService.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Failed to check if key exists after deletion: %v", err)
	}
	if exists {
		t.Error("Key should not exist after deletion")
	}

	// Get on non-existent key
	retrievedValue, err = redisService.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get on non-existent key should not return error: %v", err)
	}
	if retrievedValue != "" {
		t.Errorf("Expected empty string for non-existent key, got '%s'", retrievedValue)
	}
}

func TestRedisService_WaitForConnection(t *testing.T) {
	t.Run("successful connection", func(t *testing.T) {
		redisService, _ := setupTestRedisService(t)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := redisService.WaitForConnection(ctx); err != nil {
			t.Errorf("Expected connection, got %v", err)
		}
	})

	t.Run("connection timeout", func(t *testing.T) {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("Failed to start miniredis: %v", err)
		}
		addr := mr.Addr()
		mr.Close()

		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		redisService, err := NewRedisService("redis://"+addr, logger)
		if err != nil {
			t.Fatalf("Failed to create redis service: %v", err)
		}
		defer func() { _ = redisService.Close() }()

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		if err := redisService.WaitForConnection(ctx); err == nil {
			t.Error("Expected timeout error, got nil")
		}
	})
}

func TestNewRedisService_InvalidURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := NewRedisService("not a url", logger); err == nil {
		t.Error("Expected error for invalid URL")
	}
}
