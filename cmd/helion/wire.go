package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/nugget/helion/internal/agent"
	"github.com/nugget/helion/internal/checkpoint"
	"github.com/nugget/helion/internal/config"
	"github.com/nugget/helion/internal/database"
	"github.com/nugget/helion/internal/embeddings"
	"github.com/nugget/helion/internal/events"
	"github.com/nugget/helion/internal/llm"
	"github.com/nugget/helion/internal/memory"
	"github.com/nugget/helion/internal/prompts"
	"github.com/nugget/helion/internal/search"
	"github.com/nugget/helion/internal/tools"
	"github.com/nugget/helion/internal/weather"
)

// app holds everything a subcommand needs to run turns.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	db          *sql.DB
	checkpoints *checkpoint.Store
	memories    *memory.Store      // nil when memory is disabled
	embedder    *embeddings.Client // nil when memory is disabled
	client      llm.Client
	registry    *tools.Registry
	bus         *events.Bus
	scheduler   *agent.Scheduler
}

// newApp opens the database and wires the agent from cfg. Close the
// returned app to release the database.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	dbPath := filepath.Join(cfg.DataDir, "helion.db")
	db, err := database.Open(cfg.Database.Driver, dbPath)
	if err != nil {
		return nil, err
	}
	logger.Info("database opened", "path", dbPath, "driver", cfg.Database.Driver)

	a := &app{cfg: cfg, logger: logger, db: db, bus: events.New()}

	a.checkpoints, err = checkpoint.NewStore(db, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("checkpoint store: %w", err)
	}

	if cfg.Memory.Enabled {
		a.memories, err = memory.NewStore(db, logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("memory store: %w", err)
		}
		a.embedder = embeddings.New(embeddings.Config{
			BaseURL: cfg.Embeddings.BaseURL,
			Model:   cfg.Embeddings.Model,
		})
		logger.Info("semantic memory enabled", "embedding_model", cfg.Embeddings.Model, "max_per_user", cfg.Memory.MaxPerUser)
	}

	a.registry, err = buildRegistry(cfg, a.memories, a.embedder, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	a.client, err = createLLMClient(ctx, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	gen := llm.BindTools(a.client, cfg.Models.Default, a.registry.Catalog(),
		llm.WithTemperature(cfg.Models.Temperature),
		llm.WithMaxTokens(cfg.Models.MaxTokens),
	)

	a.scheduler = agent.NewScheduler(
		agent.NewReasoningStep(gen, prompts.Options{
			Template:     cfg.Agent.Template,
			HistoryLimit: cfg.Agent.HistoryLimit,
		}, logger),
		agent.NewToolStep(a.registry, cfg.Agent.MaxParallelTools, logger),
		a.checkpoints,
		agent.Config{
			MaxIterations: cfg.Agent.MaxIterations,
			MaxDuration:   cfg.Agent.MaxDuration,
		},
		logger,
	)
	a.scheduler.SetEventBus(a.bus)

	logger.Info("agent ready",
		"model", cfg.Models.Default,
		"provider", cfg.ProviderFor(cfg.Models.Default),
		"template", cfg.Agent.Template,
		"tools", a.registry.Names(),
	)
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// buildRegistry registers the tools enabled by cfg. Order matters only
// for the catalog shown to the model.
func buildRegistry(cfg *config.Config, mem *memory.Store, emb memory.Embedder, logger *slog.Logger) (*tools.Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reg := tools.NewRegistry(logger)
	var list []*tools.Tool

	if mem != nil && emb != nil {
		list = append(list,
			memory.StoreTool(mem, emb, memory.ToolOptions{MaxPerUser: cfg.Memory.MaxPerUser, Logger: logger}),
			memory.RetrieveTool(mem, emb),
		)
	}

	if cfg.Search.Configured() {
		mgr := search.NewManager(cfg.Search.Default)
		if cfg.Search.SearXNG.URL != "" {
			mgr.Register(search.NewSearXNG(cfg.Search.SearXNG.URL))
		}
		if cfg.Search.Brave.APIKey != "" {
			mgr.Register(search.NewBrave(cfg.Search.Brave.APIKey, ""))
		}
		if cfg.Search.Firecrawl.APIKey != "" {
			mgr.Register(search.NewFirecrawl(cfg.Search.Firecrawl.APIKey, cfg.Search.Firecrawl.BaseURL))
		}
		logger.Info("web search enabled", "primary", mgr.Primary(), "providers", mgr.Providers())
		list = append(list, search.Tool(mgr, cfg.Search.MaxResults))
	}

	list = append(list, tools.DateTimeTool(time.Now))

	var provider weather.Provider = weather.Canned{}
	if cfg.Weather.Provider == "open-meteo" {
		provider = weather.NewOpenMeteo(cfg.Weather.BaseURL)
	}
	list = append(list, weather.Tool(provider))

	for _, t := range list {
		if err := reg.Register(t); err != nil {
			return nil, fmt.Errorf("register tool %s: %w", t.Name, err)
		}
	}
	return reg, nil
}

// createLLMClient builds a multi-provider client. Each configured model
// is routed to its provider; unlisted models fall through to Ollama.
func createLLMClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llm.Client, error) {
	ollama := llm.NewOllamaClient(cfg.Ollama.URL, logger)
	multi := llm.NewMultiClient(ollama)
	multi.AddProvider("ollama", ollama)

	if cfg.OpenAI.APIKey != "" {
		multi.AddProvider("openai", llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, logger))
	}
	if cfg.Anthropic.APIKey != "" {
		multi.AddProvider("anthropic", llm.NewAnthropicClient(cfg.Anthropic.APIKey, "", logger))
	}
	if cfg.Gemini.APIKey != "" {
		gemini, err := llm.NewGeminiClient(ctx, cfg.Gemini.APIKey, logger)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		multi.AddProvider("gemini", gemini)
	}

	for _, m := range cfg.Models.Available {
		multi.AddModel(m.Name, m.Provider)
	}
	return multi, nil
}
