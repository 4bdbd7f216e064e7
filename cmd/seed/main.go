package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jwebster45206/npc-engine/internal/config"
	"github.com/jwebster45206/npc-engine/internal/logger"
	"github.com/jwebster45206/npc-engine/internal/vectorstore"
)

func main() {
	cfg, err := config.LoadSeed()
	if err != nil {
		log.Fatal(err)
	}

	dbPath := flag.String("db", cfg.VectorDBPath, "vector database directory (default $VECTOR_DB_PATH)")
	templates := flag.String("templates", "", "character templates JSON file")
	dialogue := flag.String("dialogue", "", "dialogue transcript JSON file or directory of them")
	check := flag.Bool("check", false, "parse and embed into memory only; write nothing")
	flag.Parse()

	log := logger.Setup(cfg)

	if *templates == "" && *dialogue == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [-db dir] [-templates file.json] [-dialogue path] [-check]\n", os.Args[0])
		os.Exit(1)
	}
	if !*check && *dbPath == "" {
		fmt.Fprintln(os.Stderr, "A database directory is required: pass -db or set VECTOR_DB_PATH")
		os.Exit(1)
	}

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

	var store *vectorstore.ChromemStore
	if *check {
		store, err = vectorstore.NewInMemory(embed, log)
	} else {
		store, err = vectorstore.NewPersistent(*dbPath, embed, log)
	}
	if err != nil {
		log.Error("Failed to open vector store", "error", err)
		os.Exit(1)
	}

	report, err := seed(context.Background(), store, *templates, *dialogue, log)
	if err != nil {
		log.Error("Seeding failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Templates: %d\nDialogue turns: %d (%d files)\n", report.templates, report.turns, report.files)
	if *check {
		fmt.Println("Data files are valid!")
	}
}

type seedReport struct {
	templates int
	turns     int
	files     int
}

// seed loads the templates file and every dialogue file into store.
func seed(ctx context.Context, store vectorstore.Store, templatesPath, dialoguePath string, log *slog.Logger) (seedReport, error) {
	var report seedReport

	if templatesPath != "" {
		n, err := loadFile(templatesPath, func(f *os.File) (int, error) {
			return vectorstore.LoadTemplates(ctx, store, f)
		})
		if err != nil {
			return report, err
		}
		report.templates = n
		log.Info("Loaded character templates", "file", templatesPath, "count", n)
	}

	if dialoguePath != "" {
		files, err := dialogueFiles(dialoguePath)
		if err != nil {
			return report, err
		}
		for _, path := range files {
			prefix := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			n, err := loadFile(path, func(f *os.File) (int, error) {
				return vectorstore.LoadDialogue(ctx, store, f, prefix)
			})
			if err != nil {
				return report, err
			}
			report.turns += n
			report.files++
			log.Info("Loaded dialogue", "file", path, "turns", n)
		}
	}

	return report, nil
}

func loadFile(path string, load func(*os.File) (int, error)) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	n, err := load(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// dialogueFiles expands a directory into its sorted *.json files.
func dialogueFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	files, err := filepath.Glob(filepath.Join(path, "*.json"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .json files in %s", path)
	}
	sort.Strings(files)
	return files, nil
}
