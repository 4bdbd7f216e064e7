package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/jwebster45206/npc-engine/internal/config"
	"github.com/jwebster45206/npc-engine/internal/player"
	"github.com/jwebster45206/npc-engine/internal/services/queue"
	"github.com/jwebster45206/npc-engine/pkg/protocol"
)

func main() {
	cfg, err := config.LoadPlayer()
	if err != nil {
		log.Fatal(err)
	}

	npc := flag.String("npc", cfg.NPCAddress, "NPC address")
	from := flag.String("from", cfg.PlayerAddress, "player address (random when empty)")
	setup := flag.Bool("setup", false, "send the text as a setup description")
	chatMode := flag.Bool("chat", false, "send as an acknowledged chat message")
	race := flag.String("race", "", "setup hint: race")
	class := flag.String("class", "", "setup hint: class")
	level := flag.Int("level", 0, "setup hint: level")
	background := flag.String("background", "", "setup hint: background")
	flag.Parse()

	text := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if text == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [-npc addr] [-setup [-race ..]] [-chat] <text>\n", os.Args[0])
		os.Exit(1)
	}

	logHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})
	log := slog.New(logHandler)

	queueClient, err := queue.NewClient(cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() { _ = queueClient.Close() }()

	address := *from
	if address == "" {
		address = "player-" + uuid.NewString()[:8]
	}
	client := player.NewClient(address, *npc, queue.NewMailbox(queueClient), cfg.ReplyTimeout, log)

	ctx := context.Background()
	var reply string
	switch {
	case *setup:
		msg := protocol.SetupMessage{
			Description: text,
			Race:        *race,
			Class:       *class,
			Background:  *background,
		}
		if *level > 0 {
			msg.Level = level
		}
		reply, err = client.Setup(ctx, msg)
	case *chatMode:
		reply, err = client.SendChat(ctx, text)
	default:
		reply, err = client.Send(ctx, text)
	}
	if err != nil {
		log.Error("Exchange failed", "error", err)
		os.Exit(1)
	}

	fmt.Println(reply)
}
