package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"ragsys"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"ragsys"`

	// Source table to index. SourceKeyColumn must be the table's primary key;
	// chunk ids are derived from it.
	SourceTable     string `envconfig:"SOURCE_TABLE" default:"products"`
	SourceKeyColumn string `envconfig:"SOURCE_KEY_COLUMN" default:"id"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	EmbeddingProvider string `envconfig:"EMBEDDING_PROVIDER" default:"openai"`
	OpenAIAPIKey      string `envconfig:"OPENAI_API_KEY"`
	GeminiAPIKey      string `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel    string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	ChatModel         string `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`

	// Indexing tunables
	BatchSize         int     `envconfig:"BATCH_SIZE" default:"10"`
	BatchDelaySeconds float64 `envconfig:"BATCH_DELAY_SECONDS" default:"1.0"`
	MaxRetries        int     `envconfig:"MAX_RETRIES" default:"5"`
	ChunkMaxChars     int     `envconfig:"CHUNK_MAX_CHARS" default:"4000"`
	ChunkOverlapChars int     `envconfig:"CHUNK_OVERLAP_CHARS" default:"800"`

	// Scheduler: "HH:MM" wall-clock time, local timezone
	SyncTime string `envconfig:"SYNC_TIME" default:"02:00"`

	// Per-call network timeouts
	ExtractTimeoutSeconds int `envconfig:"EXTRACT_TIMEOUT_SECONDS" default:"120"`
	EmbedTimeoutSeconds   int `envconfig:"EMBED_TIMEOUT_SECONDS" default:"60"`
	UpsertTimeoutSeconds  int `envconfig:"UPSERT_TIMEOUT_SECONDS" default:"120"`

	// NSQ event publishing is optional; leave NSQD_HOST empty to disable
	NSQDHost string `envconfig:"NSQD_HOST"`

	ServerPort    int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath  string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	RetrievalTopK int    `envconfig:"RETRIEVAL_TOP_K" default:"10"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars may come from the shell instead, so load errors are ignored.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.SourceTable == "" {
		return fmt.Errorf("%w: SOURCE_TABLE", ErrMissingRequired)
	}
	if c.SourceKeyColumn == "" {
		return fmt.Errorf("%w: SOURCE_KEY_COLUMN", ErrMissingRequired)
	}
	switch c.EmbeddingProvider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown EMBEDDING_PROVIDER %q (want openai or gemini)", c.EmbeddingProvider)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be >= 1, got %d", c.BatchSize)
	}
	if _, _, err := ParseSyncTime(c.SyncTime); err != nil {
		return err
	}
	return nil
}

// ParseSyncTime validates a "HH:MM" wall-clock time.
func ParseSyncTime(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid SYNC_TIME %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

func (c *Config) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelaySeconds * float64(time.Second))
}

func (c *Config) ExtractTimeout() time.Duration {
	return time.Duration(c.ExtractTimeoutSeconds) * time.Second
}

func (c *Config) EmbedTimeout() time.Duration {
	return time.Duration(c.EmbedTimeoutSeconds) * time.Second
}

func (c *Config) UpsertTimeout() time.Duration {
	return time.Duration(c.UpsertTimeoutSeconds) * time.Second
}
