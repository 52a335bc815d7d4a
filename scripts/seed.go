// Seed script for creating demo data in Mnemo.
// Run with: go run ./scripts/seed.go
//
// Stop mnemod first; the data directory is single-writer.
package main

import (
	"context"
	"fmt"
	"log"

	"go.uber.org/zap"

	"github.com/mnemo-dev/mnemo/internal/config"
	"github.com/mnemo-dev/mnemo/internal/domain"
	"github.com/mnemo-dev/mnemo/internal/embedding"
	"github.com/mnemo-dev/mnemo/internal/service"
	"github.com/mnemo-dev/mnemo/internal/store"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := zap.NewNop()

	st, err := store.Open(config.DataDir(), logger)
	if err != nil {
		log.Fatalf("Failed to open store at %s: %v", config.DataDir(), err)
	}
	defer st.Close()

	fmt.Printf("Opened store at %s\n", config.DataDir())

	embedder := embedding.NewLazy(config.EmbeddingDim(), func() (embedding.Client, error) {
		return embedding.NewClient(embedding.Config{
			Provider:  config.EmbeddingProvider(),
			Dim:       config.EmbeddingDim(),
			APIKey:    config.OpenAIAPIKey(),
			OllamaURL: config.OllamaURL(),
			Model:     config.EmbeddingModel(),
		})
	})

	ctx := context.Background()
	index := service.NewVectorIndex(config.EmbeddingDim(), st)
	bus := service.NewBus(config.EventBufferSize(), logger)
	memories := service.NewMemoryService(st, index, embedder, bus, logger)
	if err := memories.RebuildVectorIndex(ctx); err != nil {
		log.Fatalf("Failed to rebuild vector index: %v", err)
	}

	seeds := []domain.Memory{
		{Type: domain.MemoryTypeSemantic, Content: "User prefers dark mode for all interfaces"},
		{Type: domain.MemoryTypeSemantic, Content: "User is a backend engineer working mostly in Go"},
		{Type: domain.MemoryTypeSemantic, Content: "User likes short, direct answers without preamble"},
		{Type: domain.MemoryTypeProcedural, Content: "Always run the staging smoke test before deploying to production"},
		{Type: domain.MemoryTypeProcedural, Content: "Use bun install instead of npm install in this repo"},
		{Type: domain.MemoryTypeEpisodic, Content: "The deploy on Friday failed because the auth token had expired"},
	}

	created := 0
	for i := range seeds {
		m := seeds[i]
		m.Source = domain.SourceExplicit
		saved, reinforced, err := memories.CreateOrReinforce(ctx, &m, 0)
		if err != nil {
			log.Fatalf("Failed to seed memory %q: %v", m.Content, err)
		}
		if reinforced {
			fmt.Printf("  exists  [%s] %s\n", saved.Type, saved.Title)
			continue
		}
		created++
		fmt.Printf("  created [%s] %s\n", saved.Type, saved.Title)
	}

	fmt.Printf("\nSeeded %d memories (%d already present)\n", created, len(seeds)-created)
	fmt.Println("\nTry it:")
	fmt.Println("  go run ./cmd/mnemod")
	fmt.Println(`  curl -s localhost:8080/v1/retrieve -d '{"query":"how do I deploy"}'`)
}
