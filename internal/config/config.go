package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port         int              `json:"port"`
	Database     DatabaseConfig   `json:"database"`
	LogConfig    logger.LogConfig `json:"log_config"`
	FileStore    FileStoreConfig  `json:"file_store"`
	AI           AIConfig         `json:"ai"`
	Crawler      CrawlerConfig    `json:"crawler"`
	Retrieval    RetrievalConfig  `json:"retrieval"`
	Ingest       IngestConfig     `json:"ingest"`
	CORSAllow    []string         `json:"cors_allow"`
	BackfillCron string           `json:"backfill_cron"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type AIConfig struct {
	Provider       string      `json:"provider"`
	Model          string      `json:"model"`
	EmbedModel     string      `json:"embed_model"`
	EmbedDimension int         `json:"embed_dimension"`
	Data           interface{} `json:"data"`
}

type CrawlerConfig struct {
	UserAgent       string `json:"user_agent"`
	DelayMillis     int    `json:"delay_millis"`
	DefaultMaxPages int    `json:"default_max_pages"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
}

// RetrievalConfig exposes the retrieval tuning knobs. The defaults mirror the
// values the pipeline was tuned with; none of them are known to be optimal.
type RetrievalConfig struct {
	MinScore       float64 `json:"min_score"`
	StrongScore    float64 `json:"strong_score"`
	NoveltyRatio   float64 `json:"novelty_ratio"`
	SelectionFloor int     `json:"selection_floor"`
	ContextBudget  int     `json:"context_budget"`
	LightBudget    int     `json:"light_budget"`
	TopKPerSearch  int     `json:"top_k_per_search"`
	MaxSources     int     `json:"max_sources"`
}

type IngestConfig struct {
	ChunkSize        int `json:"chunk_size"`
	TableBatchRows   int `json:"table_batch_rows"`
	BatchConcurrency int `json:"batch_concurrency"`
	BatchPauseMillis int `json:"batch_pause_millis"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.AI.Provider == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.Model == "" {
		return nil, fmt.Errorf("ai.model is required")
	}
	if cfg.AI.EmbedModel == "" {
		return nil, fmt.Errorf("ai.embed_model is required")
	}
	if cfg.AI.EmbedDimension == 0 {
		// must match the vector column width in the chunk migration
		cfg.AI.EmbedDimension = 768
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
		cfg.FileStore.Data = map[string]interface{}{"dir": "./uploads"}
	}
	applyCrawlerDefaults(&cfg.Crawler)
	applyRetrievalDefaults(&cfg.Retrieval)
	applyIngestDefaults(&cfg.Ingest)
	if cfg.BackfillCron == "" {
		cfg.BackfillCron = "*/10 * * * *"
	}
	return &cfg, nil
}

func applyCrawlerDefaults(c *CrawlerConfig) {
	if c.UserAgent == "" {
		c.UserAgent = "chatstack-crawler/1.0 (+https://github.com/chatstack/chatstack)"
	}
	if c.DelayMillis == 0 {
		c.DelayMillis = 1000
	}
	if c.DefaultMaxPages == 0 {
		c.DefaultMaxPages = 30
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 20
	}
}

func applyRetrievalDefaults(r *RetrievalConfig) {
	if r.MinScore == 0 {
		r.MinScore = 0.3
	}
	if r.StrongScore == 0 {
		r.StrongScore = 0.5
	}
	if r.NoveltyRatio == 0 {
		r.NoveltyRatio = 0.3
	}
	if r.SelectionFloor == 0 {
		r.SelectionFloor = 5
	}
	if r.ContextBudget == 0 {
		r.ContextBudget = 15
	}
	if r.LightBudget == 0 {
		r.LightBudget = 8
	}
	if r.TopKPerSearch == 0 {
		r.TopKPerSearch = 8
	}
	if r.MaxSources == 0 {
		r.MaxSources = 5
	}
}

func applyIngestDefaults(i *IngestConfig) {
	if i.ChunkSize == 0 {
		i.ChunkSize = 1200
	}
	if i.TableBatchRows == 0 {
		i.TableBatchRows = 100
	}
	if i.BatchConcurrency == 0 {
		i.BatchConcurrency = 10
	}
	if i.BatchPauseMillis == 0 {
		i.BatchPauseMillis = 500
	}
}
