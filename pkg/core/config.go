package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Vector index variants selectable by configuration.
const (
	// VectorIndexFlat selects the in-process exact flat index.
	VectorIndexFlat = "flat"

	// VectorIndexStore delegates similarity search to the durable store.
	VectorIndexStore = "store"
)

// Config contains the complete configuration for a Brain instance.
//
// It covers the embedding dimension, working-set and cache bounds, the
// vector index variant, the durable-store backend, and the AI service.
//
// Example:
//
//	config := &core.Config{
//	    Dimension:       1536,
//	    MaxActiveOwners: 100,
//	    VectorIndex:     core.VectorIndexFlat,
//	    Storage: core.StorageConfig{
//	        Provider: "sqlite",
//	        SQLite:   core.SQLiteConfig{DBPath: "./brain.db"},
//	    },
//	    AI: core.AIConfig{APIKey: "sk-or-..."},
//	}
type Config struct {
	// Dimension is the embedding dimension, fixed per store instance.
	Dimension int `json:"dimension"`

	// MaxActiveOwners bounds the number of owner working sets resident at
	// once; the least recently active owner is evicted beyond it.
	MaxActiveOwners int `json:"max_active_owners"`

	// SemanticCacheSize bounds the query-result cache.
	SemanticCacheSize int `json:"semantic_cache_size"`

	// MetadataCacheSize bounds the metadata cache.
	MetadataCacheSize int `json:"metadata_cache_size"`

	// VectorIndex selects the index variant ("flat" or "store").
	VectorIndex string `json:"vector_index"`

	// DefaultTopK is the result count used when a query does not set one.
	DefaultTopK int `json:"default_top_k"`

	// Storage contains durable-store configuration.
	Storage StorageConfig `json:"storage"`

	// AI contains AI service configuration.
	AI AIConfig `json:"ai"`
}

// StorageConfig contains configuration for the durable store.
//
// Supported providers: sqlite, postgres, mysql.
type StorageConfig struct {
	// Provider is the backend name (sqlite, postgres, mysql).
	Provider string `json:"provider"`

	// Table is the table name used by every backend.
	Table string `json:"table,omitempty"`

	// SQLite contains sqlite-specific settings.
	SQLite SQLiteConfig `json:"sqlite,omitempty"`

	// Postgres contains postgres-specific settings.
	Postgres PostgresConfig `json:"postgres,omitempty"`

	// MySQL contains mysql-specific settings.
	MySQL MySQLConfig `json:"mysql,omitempty"`
}

// SQLiteConfig contains configuration for the sqlite backend.
type SQLiteConfig struct {
	// DBPath is the database file path.
	DBPath string `json:"db_path"`
}

// PostgresConfig contains configuration for the postgres backend.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode,omitempty"`
}

// MySQLConfig contains configuration for the mysql backend.
type MySQLConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
}

// AIConfig contains configuration for the external AI service.
//
// The service speaks an OpenAI-compatible API; BaseURL defaults to
// OpenRouter. An empty APIKey runs the engine offline: every AI call
// returns its documented fallback value.
type AIConfig struct {
	// APIKey authenticates against the AI service.
	APIKey string `json:"api_key"`

	// BaseURL is the API base URL.
	BaseURL string `json:"base_url,omitempty"`

	// ChatModel is the model for summarization, refinement, and synthesis.
	ChatModel string `json:"chat_model,omitempty"`

	// EmbeddingModel is the model for text vectorization.
	EmbeddingModel string `json:"embedding_model,omitempty"`

	// Timeout bounds each individual AI call.
	Timeout time.Duration `json:"timeout,omitempty"`

	// RequestsPerSecond throttles outbound AI calls. Zero disables it.
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// It first attempts to load a .env file (searching upward from the
// current directory), then reads:
//   - EMBEDDING_DIMENSION (default 1536)
//   - MAX_ACTIVE_USERS (default 100)
//   - SEMANTIC_CACHE_SIZE (default 500)
//   - METADATA_CACHE_SIZE (default 5000)
//   - VECTOR_INDEX (flat or store, default flat)
//   - DEFAULT_TOP_K (default 5)
//   - DATABASE_PROVIDER (sqlite, postgres, mysql; default sqlite)
//   - SQLITE_PATH / POSTGRES_* / MYSQL_* depending on the provider
//   - AI_API_KEY, AI_BASE_URL, AI_CHAT_MODEL, AI_EMBEDDING_MODEL
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnv() (*Config, error) {
	if envPath, found := FindEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	dimension, _ := strconv.Atoi(getEnvOrDefault("EMBEDDING_DIMENSION", "1536"))
	maxOwners, _ := strconv.Atoi(getEnvOrDefault("MAX_ACTIVE_USERS", "100"))
	semanticSize, _ := strconv.Atoi(getEnvOrDefault("SEMANTIC_CACHE_SIZE", "500"))
	metadataSize, _ := strconv.Atoi(getEnvOrDefault("METADATA_CACHE_SIZE", "5000"))
	topK, _ := strconv.Atoi(getEnvOrDefault("DEFAULT_TOP_K", "5"))

	provider := getEnvOrDefault("DATABASE_PROVIDER", "sqlite")
	storageCfg := StorageConfig{
		Provider: provider,
		Table:    getEnvOrDefault("MEMORIES_TABLE", "memories"),
	}

	switch provider {
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		storageCfg.Postgres = PostgresConfig{
			Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			Port:     port,
			User:     getEnvOrDefault("POSTGRES_USER", "postgres"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DBName:   getEnvOrDefault("POSTGRES_DATABASE", "newbrain"),
			SSLMode:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))
		storageCfg.MySQL = MySQLConfig{
			Host:     getEnvOrDefault("MYSQL_HOST", "127.0.0.1"),
			Port:     port,
			User:     getEnvOrDefault("MYSQL_USER", "root"),
			Password: os.Getenv("MYSQL_PASSWORD"),
			DBName:   getEnvOrDefault("MYSQL_DATABASE", "newbrain"),
		}
	default:
		storageCfg.SQLite = SQLiteConfig{
			DBPath: getEnvOrDefault("SQLITE_PATH", "./newbrain.db"),
		}
	}

	rps, _ := strconv.ParseFloat(getEnvOrDefault("AI_REQUESTS_PER_SECOND", "0"), 64)

	return &Config{
		Dimension:         dimension,
		MaxActiveOwners:   maxOwners,
		SemanticCacheSize: semanticSize,
		MetadataCacheSize: metadataSize,
		VectorIndex:       getEnvOrDefault("VECTOR_INDEX", VectorIndexFlat),
		DefaultTopK:       topK,
		Storage:           storageCfg,
		AI: AIConfig{
			APIKey:            os.Getenv("AI_API_KEY"),
			BaseURL:           getEnvOrDefault("AI_BASE_URL", "https://openrouter.ai/api/v1"),
			ChatModel:         os.Getenv("AI_CHAT_MODEL"),
			EmbeddingModel:    os.Getenv("AI_EMBEDDING_MODEL"),
			RequestsPerSecond: rps,
		},
	}, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	return &config, nil
}

// Validate validates the configuration.
//
// The embedding dimension must be positive, the vector index variant
// must be known, and the storage provider must be specified.
func (c *Config) Validate() error {
	if c.Dimension <= 0 {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	if c.VectorIndex != "" && c.VectorIndex != VectorIndexFlat && c.VectorIndex != VectorIndexStore {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	if c.Storage.Provider == "" {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search checks the current directory first, then walks up to 5
// directory levels, returning the first file found.
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
