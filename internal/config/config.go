package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"

	"github.com/xxxsen/mailrag/internal/model"
	appErr "github.com/xxxsen/mailrag/internal/pkg/errors"
)

const (
	StalenessNever     = "never"
	StalenessWatermark = "watermark"
)

type Config struct {
	Port      int              `json:"port"`
	LogConfig logger.LogConfig `json:"log_config"`
	Mailbox   MailboxConfig    `json:"mailbox"`
	FileStore FileStoreConfig  `json:"file_store"`
	AI        AIConfig         `json:"ai"`
	Chunk     ChunkConfig      `json:"chunk"`
	Index     IndexConfig      `json:"index"`
	Classes   []ClassConfig    `json:"classes"`
	RateLimit int              `json:"rate_limit_ms"`
	CORS      []string         `json:"cors_origins"`
}

type MailboxConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type StoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type FileStoreConfig struct {
	Local  StoreConfig  `json:"local"`
	Remote *StoreConfig `json:"remote"`
}

type ProviderConfig struct {
	Name     string      `json:"name"`
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type AIConfig struct {
	Embedders     []ProviderConfig `json:"embedders"`
	Generators    []ProviderConfig `json:"generators"`
	Timeout       int              `json:"timeout"`
	CacheSize     int              `json:"cache_size"`
	CacheTTL      int              `json:"cache_ttl"`
	PersistCache  bool             `json:"persist_cache"`
	MaxInputChars int              `json:"max_input_chars"`
}

type ChunkConfig struct {
	Size    int `json:"size"`
	Overlap int `json:"overlap"`
}

type IndexConfig struct {
	Staleness string `json:"staleness"`
	Workers   int    `json:"workers"`
	TopK      int    `json:"top_k"`
}

type ClassConfig struct {
	model.DocumentClass
	SyncCron   string `json:"sync_cron"`
	MirrorCron string `json:"mirror_cron"`
	IndexCron  string `json:"index_cron"`
}

func DefaultClasses() []ClassConfig {
	return []ClassConfig{
		{
			DocumentClass: model.DocumentClass{
				Name:      "po_dump",
				Subject:   "PO Order",
				Extension: ".xlsx",
				Prefix:    "po_dumps/",
				IndexKey:  "indexes/po_dump.idx",
				Limit:     10,
			},
		},
		{
			DocumentClass: model.DocumentClass{
				Name:      "proforma_invoice",
				Subject:   "Proforma Invoice",
				Extension: ".pdf",
				Prefix:    "proforma_invoice/",
				IndexKey:  "indexes/proforma_invoice.idx",
				Limit:     10,
			},
		},
	}
}

// Load reads a JSON config file. Variables from an optional .env file in the
// working directory are loaded first and ${VAR} references in the file are expanded.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(raw))
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader([]byte(expanded)))
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrConfig, err)
	}
	return &cfg, nil
}

func (cfg *Config) normalize() error {
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.FileStore.Local.Type == "" {
		cfg.FileStore.Local.Type = "local"
	}
	if cfg.FileStore.Local.Data == nil {
		return fmt.Errorf("file_store.local.data is required")
	}
	if cfg.FileStore.Remote != nil && cfg.FileStore.Remote.Type == "" {
		return fmt.Errorf("file_store.remote.type is required when remote is set")
	}
	if cfg.Mailbox.Type == "" {
		return fmt.Errorf("mailbox.type is required")
	}
	if len(cfg.AI.Embedders) == 0 {
		return fmt.Errorf("ai.embedders is required")
	}
	if len(cfg.AI.Generators) == 0 {
		return fmt.Errorf("ai.generators is required")
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 120
	}
	if cfg.Chunk.Size == 0 {
		cfg.Chunk.Size = 500
	}
	if cfg.Chunk.Overlap == 0 {
		cfg.Chunk.Overlap = 50
	}
	if cfg.Chunk.Overlap < 0 || cfg.Chunk.Overlap >= cfg.Chunk.Size {
		return fmt.Errorf("chunk.overlap must be in [0, chunk.size)")
	}
	switch cfg.Index.Staleness {
	case "":
		cfg.Index.Staleness = StalenessNever
	case StalenessNever, StalenessWatermark:
	default:
		return fmt.Errorf("index.staleness must be never or watermark")
	}
	if cfg.Index.TopK == 0 {
		cfg.Index.TopK = 4
	}
	if len(cfg.Classes) == 0 {
		cfg.Classes = DefaultClasses()
	}
	seen := make(map[string]bool, len(cfg.Classes))
	for i := range cfg.Classes {
		c := &cfg.Classes[i]
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return fmt.Errorf("classes[%d].name is required", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate class: %s", c.Name)
		}
		seen[c.Name] = true
		if c.Subject == "" || c.Extension == "" {
			return fmt.Errorf("class %s: subject and extension are required", c.Name)
		}
		if c.Prefix == "" {
			c.Prefix = c.Name + "/"
		}
		if !strings.HasSuffix(c.Prefix, "/") {
			c.Prefix += "/"
		}
		if c.IndexKey == "" {
			c.IndexKey = "indexes/" + c.Name + ".idx"
		}
		if c.Limit <= 0 {
			c.Limit = 10
		}
	}
	return nil
}

func (cfg *Config) DocumentClasses() []model.DocumentClass {
	out := make([]model.DocumentClass, 0, len(cfg.Classes))
	for _, c := range cfg.Classes {
		out = append(out, c.DocumentClass)
	}
	return out
}
