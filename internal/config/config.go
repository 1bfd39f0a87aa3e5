// Package config provides configuration loading and structs for the bunko server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	LLM       LLMConfig       `yaml:"llm"`
	Summary   SummaryConfig   `yaml:"summary"`
	History   HistoryConfig   `yaml:"history"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// MaxUploadBytes limits multipart uploads.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// StorageConfig holds paths for the database and the catalog index.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// IngestConfig holds extraction and chunking settings.
type IngestConfig struct {
	ChunkTargetChars  int      `yaml:"chunk_target_chars"`
	ChunkOverlapChars int      `yaml:"chunk_overlap_chars"`
	MaxPages          int      `yaml:"max_pages"`
	Extensions        []string `yaml:"extensions"`
}

// RetrievalConfig holds the default retrieval budgets. Character budgets count runes.
type RetrievalConfig struct {
	TopK                 int     `yaml:"top_k"`
	MinScore             float64 `yaml:"min_score"`
	MaxChunkChars        int     `yaml:"max_chunk_chars"`
	MaxTotalChars        int     `yaml:"max_total_chars"`
	CitationChars        int     `yaml:"citation_chars"`
	CompareMaxChunkChars int     `yaml:"compare_max_chunk_chars"`
}

// LLMConfig selects and configures the text generation backend.
type LLMConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "mock".
	Provider          string        `yaml:"provider"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxTokens         int           `yaml:"max_tokens"`
	RetryMaxTokens    int           `yaml:"retry_max_tokens"`
	CompareMaxTokens  int           `yaml:"compare_max_tokens"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// SummaryConfig holds map-reduce summarization settings.
type SummaryConfig struct {
	MapChunkChars   int           `yaml:"map_chunk_chars"`
	BatchSize       int           `yaml:"batch_size"`
	Concurrency     int           `yaml:"concurrency"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	CacheMaxEntries int           `yaml:"cache_max_entries"`
	MaxSelected     int           `yaml:"max_selected"`
	MapMaxTokens    int           `yaml:"map_max_tokens"`
	MaxTokens       int           `yaml:"max_tokens"`
}

// HistoryConfig holds conversation history settings.
type HistoryConfig struct {
	// Backend is "memory" or "redis".
	Backend          string        `yaml:"backend"`
	RedisAddr        string        `yaml:"redis_addr"`
	RedisPassword    string        `yaml:"redis_password"`
	RedisDB          int           `yaml:"redis_db"`
	MaxMessages      int           `yaml:"max_messages"`
	MaxConversations int           `yaml:"max_conversations"`
	TTL              time.Duration `yaml:"ttl"`
}

// WatchConfig holds inbox directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Addr returns the HTTP listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Environment variables consulted by ApplyEnv.
const (
	EnvAPIKey       = "BUNKO_LLM_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvBaseURL      = "BUNKO_LLM_BASE_URL"
	EnvModel        = "BUNKO_LLM_MODEL"
	EnvRedisAddr    = "BUNKO_REDIS_ADDR"
)

// ApplyEnv fills unset LLM and history settings from the environment, so secrets
// can live in a .env file instead of the config.
func ApplyEnv(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = firstEnv(EnvAPIKey, EnvOpenAIAPIKey)
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" && cfg.History.RedisAddr == "" {
		cfg.History.RedisAddr = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
