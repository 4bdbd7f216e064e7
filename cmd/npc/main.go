package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jwebster45206/npc-engine/internal/agent"
	"github.com/jwebster45206/npc-engine/internal/config"
	"github.com/jwebster45206/npc-engine/internal/conversation"
	"github.com/jwebster45206/npc-engine/internal/generator"
	"github.com/jwebster45206/npc-engine/internal/handlers"
	"github.com/jwebster45206/npc-engine/internal/logger"
	"github.com/jwebster45206/npc-engine/internal/memory"
	"github.com/jwebster45206/npc-engine/internal/persona"
	"github.com/jwebster45206/npc-engine/internal/services"
	"github.com/jwebster45206/npc-engine/internal/services/events"
	"github.com/jwebster45206/npc-engine/internal/services/queue"
	"github.com/jwebster45206/npc-engine/internal/storage"
	"github.com/jwebster45206/npc-engine/internal/vectorstore"
	"github.com/jwebster45206/npc-engine/pkg/textfilter"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.WithNPC(logger.Setup(cfg), cfg.NPCAddress)

	log.Info("Starting NPC agent",
		"environment", cfg.Environment,
		"npc_name", cfg.NPCName,
		"llm_provider", cfg.LLMProvider,
		"embedder", cfg.Embedder)

	// Redis: cache for health, queue client for the mailbox and locks
	cache, err := services.NewRedisService(cfg.RedisURL, log)
	if err != nil {
		log.Error("Invalid Redis configuration", "error", err)
		os.Exit(1)
	}
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := cache.WaitForConnection(waitCtx); err != nil {
		waitCancel()
		log.Error("Redis unavailable", "error", err)
		os.Exit(1)
	}
	waitCancel()
	defer func() {
		if err := cache.Close(); err != nil {
			logger.WithError(log, err).Error("Error closing cache")
		}
	}()

	queueClient := queue.NewClientWithRedis(cache.GetClient(), log)
	mailbox := queue.NewMailbox(queueClient)
	log.Info("Queue service initialized successfully")

	// Vector store
	embed, err := vectorstore.NewEmbeddingFunc(vectorstore.EmbeddingOptions{
		Kind:      cfg.Embedder,
		Model:     cfg.EmbeddingModel,
		OpenAIKey: cfg.OpenAIAPIKey,
		OllamaURL: cfg.OllamaURL,
	})
	if err != nil {
		log.Error("Failed to create embedding function", "error", err)
		os.Exit(1)
	}
	var vectors *vectorstore.ChromemStore
	if cfg.VectorDBPath != "" {
		vectors, err = vectorstore.NewPersistent(cfg.VectorDBPath, embed, log)
	} else {
		vectors, err = vectorstore.NewInMemory(embed, log)
		log.Warn("VECTOR_DB_PATH not set; using an empty in-memory vector store")
	}
	if err != nil {
		log.Error("Failed to open vector store", "error", err)
		os.Exit(1)
	}
	for _, name := range vectorstore.Collections {
		n, _ := vectors.Count(name)
		log.Info("Vector collection ready", "collection", name, "documents", n)
	}

	// LLM
	var llmService services.LLMService
	switch strings.ToLower(cfg.LLMProvider) {
	case "anthropic":
		llmService = services.NewAnthropicService(cfg.AnthropicAPIKey, cfg.ModelName, cfg.ExtractionModelName, log)
		log.Info("Using Anthropic LLM provider")
	case "chatgpt":
		llmService = services.NewChatGPTService(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ModelName, cfg.ExtractionModelName)
		log.Info("Using OpenAI-compatible LLM provider", "base_url", cfg.OpenAIBaseURL)
	case "mock":
		llmService = services.NewMockLLMAPI()
		log.Warn("Using mock LLM provider")
	default:
		log.Error("Invalid LLM provider specified", "provider", cfg.LLMProvider, "supported", []string{"anthropic", "chatgpt", "mock"})
		os.Exit(1)
	}

	// Conversation
	bootstrapper := persona.NewBootstrapper(llmService, vectors, cfg.NPCName, cfg.LLMTimeout, log).
		WithCache(cache, cfg.ExtractionCacheTTL)
	responder := generator.New(llmService, memory.NewStore(vectors, log), cfg.LLMTimeout, log).
		WithFilter(textfilter.New(cfg.ContentRating))

	controller := conversation.NewController(cfg.NPCAddress, conversation.Dependencies{
		Bootstrapper: bootstrapper,
		Generator:    responder,
		Storage:      storage.NewRedisStorage(cache.GetClient(), log),
		Sender:       mailbox,
		Events:       events.NewBroadcaster(cache.GetClient(), log),
	}, cfg.LockPlayer, log)

	a := agent.New(cfg.NPCAddress, mailbox, controller, cache.GetClient(), log)

	// HTTP: health and event stream
	mux := http.NewServeMux()
	mux.Handle("/health", handlers.NewHealthHandler(cache, vectors, controller, mailbox, log))
	mux.Handle("/v1/events/npc/", handlers.NewEventsHandler(cache.GetClient(), log))
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the event stream is long-lived
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	agentErr := make(chan error, 1)
	go func() {
		agentErr <- a.Start()
	}()

	log.Info("NPC agent started, waiting for messages", "inbox", cfg.NPCAddress)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-quit:
		log.Info("Shutdown signal received")
		a.Stop()
	case err := <-agentErr:
		if err != nil {
			log.Error("Agent stopped", "error", err)
			exitCode = 1
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("NPC agent exited")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
