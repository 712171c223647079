package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/FadiShak3r/rag-system/internal/adapter/gemini"
	"github.com/FadiShak3r/rag-system/internal/adapter/openai"
	wstore "github.com/FadiShak3r/rag-system/internal/adapter/weaviate"
	"github.com/FadiShak3r/rag-system/internal/config"
	"github.com/FadiShak3r/rag-system/internal/embed"
	"github.com/FadiShak3r/rag-system/internal/retrieval"
)

type VectorStore interface {
	Upsert(ctx context.Context, entries []wstore.Entry) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	Search(ctx context.Context, queryVector []float32, limit int) ([]retrieval.SearchResult, error)
	EnsureSchema(ctx context.Context) error
}

type Dependencies struct {
	DB          *sql.DB
	VectorStore VectorStore
	Embedder    embed.Embedder
	Generator   retrieval.Generator
	NSQProducer *nsq.Producer

	closers []func() error
}

// Close releases the provider clients, the NSQ producer and the database
// connection, in reverse construction order.
func (d *Dependencies) Close() {
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			slog.Warn("failed to close dependency", "error", err)
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			slog.Warn("failed to close db", "error", err)
		}
	}
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	// Database
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.PingContext(ctx); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1)
		time.Sleep(retryDelay)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Migrations (run history table)
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("migration up error: %w", err)
	}

	// Weaviate
	wCfg := weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme}
	wClient, err := weaviate.NewClient(wCfg)
	if err != nil {
		return nil, fmt.Errorf("weaviate client error: %w", err)
	}
	vecStore := wstore.NewStore(wClient)

	if err := EnsureSchemaWithRetry(ctx, vecStore, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		return nil, fmt.Errorf("weaviate schema error: %w", err)
	}

	deps := &Dependencies{DB: db, VectorStore: vecStore}

	// Embedding and chat provider
	if err := bootstrapProvider(ctx, cfg, deps); err != nil {
		return nil, err
	}

	// NSQ producer, only when an nsqd address is configured
	if cfg.NSQDHost != "" {
		producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
		if err != nil {
			return nil, fmt.Errorf("nsq producer error: %w", err)
		}
		deps.NSQProducer = producer
	}

	return deps, nil
}

func bootstrapProvider(ctx context.Context, cfg *config.Config, deps *Dependencies) error {
	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when EMBEDDING_PROVIDER=openai")
		}
		clientCfg := goopenai.DefaultConfig(cfg.OpenAIAPIKey)
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.EmbedTimeout()}
		client := goopenai.NewClientWithConfig(clientCfg)

		deps.Embedder = openai.NewEmbedderWithClient(client, cfg.EmbeddingModel)
		deps.Generator = openai.NewGeneratorWithClient(client, cfg.ChatModel)

	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when EMBEDDING_PROVIDER=gemini")
		}
		// Model names from config are OpenAI defaults unless explicitly
		// set to Gemini ones; fall back to the adapter defaults otherwise.
		embModel := cfg.EmbeddingModel
		if !strings.HasPrefix(embModel, "gemini") {
			embModel = ""
		}
		chatModel := cfg.ChatModel
		if !strings.HasPrefix(chatModel, "gemini") {
			chatModel = ""
		}

		embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, embModel)
		if err != nil {
			return fmt.Errorf("gemini embedder error: %w", err)
		}
		generator, err := gemini.NewGenerator(ctx, cfg.GeminiAPIKey, chatModel)
		if err != nil {
			return fmt.Errorf("gemini generator error: %w", err)
		}

		deps.Embedder = embedder
		deps.Generator = generator
		deps.closers = append(deps.closers, embedder.Close, generator.Close)

	default:
		return fmt.Errorf("unknown EMBEDDING_PROVIDER %q", cfg.EmbeddingProvider)
	}
	return nil
}

// EnsureSchemaWithRetry waits out a Weaviate instance that is still starting.
func EnsureSchemaWithRetry(ctx context.Context, store VectorStore, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = store.EnsureSchema(ctx); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}
