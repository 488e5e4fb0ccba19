package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the counseling backend.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Search    SearchConfig    `mapstructure:"search"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	RAG       RAGConfig       `mapstructure:"rag"`
	Sessions  SessionsConfig  `mapstructure:"sessions"`
	Databases DatabasesConfig `mapstructure:"databases"`
	Queue     QueueConfig     `mapstructure:"queue"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Listen    string `mapstructure:"listen"`
	Debug     bool   `mapstructure:"debug"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// ProvidersConfig configures the generation/embedding providers.
type ProvidersConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig configures the OpenAI-compatible provider.
type OpenAIConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	CompletionModel string        `mapstructure:"completion_model"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	EmbedBatchSize  int           `mapstructure:"embed_batch_size"`
	MaxRetries      int           `mapstructure:"max_retries"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// SearchConfig configures the external document search service. Each logical
// index carries its own site scope so one provider can serve both.
type SearchConfig struct {
	Provider string              `mapstructure:"provider"` // brave | serper
	APIKey   string              `mapstructure:"api_key"`
	PageSize int                 `mapstructure:"page_size"`
	Indices  map[string][]string `mapstructure:"indices"` // logical index -> site filters
}

// FetchConfig configures the content fetcher.
type FetchConfig struct {
	Type     string        `mapstructure:"type"` // http | chromedp
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxChars int           `mapstructure:"max_chars"`
	Denylist []string      `mapstructure:"denylist"`
}

// RAGConfig tunes the retrieval pipeline.
type RAGConfig struct {
	ChunkSize       int           `mapstructure:"chunk_size"`
	ChunkOverlap    int           `mapstructure:"chunk_overlap"`
	MaxChunksPerURL int           `mapstructure:"max_chunks_per_url"`
	MaxURLs         int           `mapstructure:"max_urls"`
	TopK            int           `mapstructure:"top_k"`
	ContentTTL      time.Duration `mapstructure:"content_ttl"`
	GraphTTL        time.Duration `mapstructure:"graph_ttl"`
}

// SessionsConfig tunes session lifecycle behaviour.
type SessionsConfig struct {
	MaxTurns      int `mapstructure:"max_turns"`
	QuestionCount int `mapstructure:"question_count"`
}

// DatabasesConfig groups storage backends.
type DatabasesConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a connection string, preferring an explicit URL.
func (p PostgresConfig) DSN() (string, error) {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (databases.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Addr returns host:port for the go-redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("databases.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("databases.redis.port required")
	}
	return nil
}

// QueueConfig configures the Redis Streams task queue.
type QueueConfig struct {
	TaskStream string `mapstructure:"task_stream"`
	Group      string `mapstructure:"group"`
	Consumer   string `mapstructure:"consumer"`
	MaxLen     int64  `mapstructure:"max_len"`
}

// LoadConfig loads config from file with env overrides (GUCHI_*).
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("general.listen", ":10080")
	viper.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("providers.openai.completion_model", "gpt-4o-mini")
	viper.SetDefault("providers.openai.embedding_model", "text-embedding-3-small")
	viper.SetDefault("providers.openai.embed_batch_size", 96)
	viper.SetDefault("providers.openai.max_retries", 3)
	viper.SetDefault("providers.openai.timeout", 30*time.Second)
	viper.SetDefault("search.provider", "serper")
	viper.SetDefault("search.page_size", 5)
	viper.SetDefault("fetch.type", "http")
	viper.SetDefault("fetch.timeout", 15*time.Second)
	viper.SetDefault("fetch.max_chars", 20000)
	viper.SetDefault("rag.chunk_size", 1000)
	viper.SetDefault("rag.chunk_overlap", 200)
	viper.SetDefault("rag.max_chunks_per_url", 20)
	viper.SetDefault("rag.max_urls", 5)
	viper.SetDefault("rag.top_k", 3)
	viper.SetDefault("rag.content_ttl", 7*24*time.Hour)
	viper.SetDefault("rag.graph_ttl", 24*time.Hour)
	viper.SetDefault("sessions.max_turns", 3)
	viper.SetDefault("sessions.question_count", 5)
	viper.SetDefault("queue.task_stream", "guchi:tasks")
	viper.SetDefault("queue.group", "workers")
	viper.SetDefault("queue.consumer", "worker-1")
	viper.SetDefault("queue.max_len", 10000)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("GUCHI")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// config file is optional; env + defaults are enough for workers
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
