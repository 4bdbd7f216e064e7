package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/jwebster45206/npc-engine/internal/config"
	"github.com/jwebster45206/npc-engine/internal/player"
	"github.com/jwebster45206/npc-engine/internal/services/queue"
)

func main() {
	cfg, err := config.LoadPlayer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// The TUI owns the terminal, so logs are discarded unless LOG_FILE is set
	var out io.Writer = io.Discard
	if path := os.Getenv("LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not open log file: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()
		out = f
	}
	log := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: cfg.LogLevel}))

	queueClient, err := queue.NewClient(cfg.RedisURL, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not connect to Redis at %s: %v\nTry: docker-compose up -d\n", cfg.RedisURL, err)
		os.Exit(1)
	}
	defer func() { _ = queueClient.Close() }()

	address := cfg.PlayerAddress
	if address == "" {
		address = "player-" + uuid.NewString()[:8]
	}

	client := player.NewClient(address, cfg.NPCAddress, queue.NewMailbox(queueClient), cfg.ReplyTimeout, log)

	p := tea.NewProgram(NewConsoleUI(client),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}
