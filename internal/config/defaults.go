package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 64 << 20
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/bunko/data/db/bunko.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/bunko/data/indices/catalog"
	}

	if cfg.Ingest.ChunkTargetChars == 0 {
		cfg.Ingest.ChunkTargetChars = 1200
	}
	if cfg.Ingest.ChunkOverlapChars == 0 {
		cfg.Ingest.ChunkOverlapChars = 150
	}
	if cfg.Ingest.MaxPages == 0 {
		cfg.Ingest.MaxPages = 400
	}
	if cfg.Ingest.Extensions == nil {
		cfg.Ingest.Extensions = []string{".pdf", ".txt", ".md", ".docx", ".odt", ".rtf", ".xlsx", ".pptx", ".odp", ".ods"}
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.MaxChunkChars == 0 {
		cfg.Retrieval.MaxChunkChars = 1400
	}
	if cfg.Retrieval.MaxTotalChars == 0 {
		cfg.Retrieval.MaxTotalChars = 9000
	}
	if cfg.Retrieval.CitationChars == 0 {
		cfg.Retrieval.CitationChars = 240
	}
	if cfg.Retrieval.CompareMaxChunkChars == 0 {
		cfg.Retrieval.CompareMaxChunkChars = 900
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 120 * time.Second
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 800
	}
	if cfg.LLM.RetryMaxTokens == 0 {
		cfg.LLM.RetryMaxTokens = 500
	}
	if cfg.LLM.CompareMaxTokens == 0 {
		cfg.LLM.CompareMaxTokens = 1000
	}

	if cfg.Summary.MapChunkChars == 0 {
		cfg.Summary.MapChunkChars = 1800
	}
	if cfg.Summary.BatchSize == 0 {
		cfg.Summary.BatchSize = 4
	}
	if cfg.Summary.Concurrency == 0 {
		cfg.Summary.Concurrency = 2
	}
	if cfg.Summary.CacheTTL == 0 {
		cfg.Summary.CacheTTL = time.Hour
	}
	if cfg.Summary.CacheMaxEntries == 0 {
		cfg.Summary.CacheMaxEntries = 500
	}
	if cfg.Summary.MaxSelected == 0 {
		cfg.Summary.MaxSelected = 20
	}
	if cfg.Summary.MapMaxTokens == 0 {
		cfg.Summary.MapMaxTokens = 700
	}
	if cfg.Summary.MaxTokens == 0 {
		cfg.Summary.MaxTokens = 1200
	}

	if cfg.History.Backend == "" {
		cfg.History.Backend = "memory"
	}
	if cfg.History.MaxMessages == 0 {
		cfg.History.MaxMessages = 20
	}
	if cfg.History.MaxConversations == 0 {
		cfg.History.MaxConversations = 1000
	}
	if cfg.History.TTL == 0 {
		cfg.History.TTL = 7 * 24 * time.Hour
	}

	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
