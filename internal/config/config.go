// Package config holds the casefile configuration and loads it through
// viper: flags, then CASEFILE_* environment, then the config file, then
// defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ppiankov/casefile/internal/coa"
	"github.com/ppiankov/casefile/internal/conflict"
	"github.com/ppiankov/casefile/internal/corpus"
	"github.com/ppiankov/casefile/internal/llm"
)

// Config is the complete configuration
type Config struct {
	LLM     llm.Config    `yaml:"llm" mapstructure:"llm"`
	CoA     coa.Config    `yaml:"coa" mapstructure:"coa"`
	Router  RouterConfig  `yaml:"router" mapstructure:"router"`
	Graph   GraphConfig   `yaml:"graph" mapstructure:"graph"`
	Corpus  corpus.Config `yaml:"corpus" mapstructure:"corpus"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	State   StateConfig   `yaml:"state" mapstructure:"state"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Report  ReportConfig  `yaml:"report" mapstructure:"report"`
}

type RouterConfig struct {
	// SingleWordOverlap lets one shared word link two names
	SingleWordOverlap bool `yaml:"single_word_overlap" mapstructure:"single_word_overlap"`
}

type GraphConfig struct {
	Path            string `yaml:"path" mapstructure:"path"`
	conflict.Config `yaml:",inline" mapstructure:",squash"`
}

type ExtractConfig struct {
	MaxChars    int           `yaml:"max_chars" mapstructure:"max_chars"`
	Concurrency int           `yaml:"concurrency" mapstructure:"concurrency"`
	CacheDir    string        `yaml:"cache_dir" mapstructure:"cache_dir"`
	CacheTTL    time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// State backends
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

type StateConfig struct {
	Backend   string `yaml:"backend" mapstructure:"backend"`
	Path      string `yaml:"path" mapstructure:"path"`
	RedisAddr string `yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`
	RedisKey  string `yaml:"redis_key,omitempty" mapstructure:"redis_key"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`

	// StreamChunk is the fragment size for graph answers on the
	// progress channel
	StreamChunk int `yaml:"stream_chunk" mapstructure:"stream_chunk"`

	// DocsDir keeps uploaded files for re-extraction
	DocsDir string `yaml:"docs_dir" mapstructure:"docs_dir"`
}

type ReportConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// Default returns the built-in defaults
func Default() Config {
	return Config{
		LLM: llm.DefaultConfig(),
		CoA: coa.Config{
			Workers:          coa.DefaultWorkers,
			QueryExpansion:   true,
			HistoryTurnLimit: coa.DefaultHistoryTurnLimit,
		},
		Router: RouterConfig{SingleWordOverlap: true},
		Graph: GraphConfig{
			Path: "extracted_data.json",
			Config: conflict.Config{
				Semantic:   true,
				ClaimLimit: conflict.DefaultClaimLimit,
			},
		},
		Corpus: corpus.DefaultConfig(),
		Extract: ExtractConfig{
			MaxChars:    50000,
			Concurrency: 4,
			CacheDir:    ".casefile/cache",
			CacheTTL:    7 * 24 * time.Hour,
		},
		State: StateConfig{
			Backend:  BackendFile,
			Path:     ".state.json",
			RedisKey: "casefile:state",
		},
		Server: ServerConfig{
			Addr:        ":8000",
			StreamChunk: 50,
			DocsDir:     "data/docs",
		},
		Report: ReportConfig{Path: "report.md"},
	}
}

// SetDefaults registers every default with v, so environment variables
// are seen for keys the config file does not mention
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.requests_per_second", d.LLM.RequestsPerSecond)
	v.SetDefault("llm.burst", d.LLM.Burst)
	v.SetDefault("llm.http_proxy", d.LLM.HTTPProxy)
	v.SetDefault("llm.https_proxy", d.LLM.HTTPSProxy)
	v.SetDefault("llm.no_proxy", d.LLM.NoProxy)

	v.SetDefault("coa.workers", d.CoA.Workers)
	v.SetDefault("coa.query_expansion", d.CoA.QueryExpansion)
	v.SetDefault("coa.history_turn_limit", d.CoA.HistoryTurnLimit)
	v.SetDefault("coa.model", d.CoA.Model)

	v.SetDefault("router.single_word_overlap", d.Router.SingleWordOverlap)

	v.SetDefault("graph.path", d.Graph.Path)
	v.SetDefault("graph.semantic_conflicts", d.Graph.Semantic)
	v.SetDefault("graph.semantic_claim_limit", d.Graph.ClaimLimit)

	v.SetDefault("corpus.store_name", d.Corpus.StoreName)
	v.SetDefault("corpus.poll_attempts", d.Corpus.PollAttempts)
	v.SetDefault("corpus.poll_interval", d.Corpus.PollInterval)

	v.SetDefault("extract.max_chars", d.Extract.MaxChars)
	v.SetDefault("extract.concurrency", d.Extract.Concurrency)
	v.SetDefault("extract.cache_dir", d.Extract.CacheDir)
	v.SetDefault("extract.cache_ttl", d.Extract.CacheTTL)

	v.SetDefault("state.backend", d.State.Backend)
	v.SetDefault("state.path", d.State.Path)
	v.SetDefault("state.redis_addr", d.State.RedisAddr)
	v.SetDefault("state.redis_key", d.State.RedisKey)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.stream_chunk", d.Server.StreamChunk)
	v.SetDefault("server.docs_dir", d.Server.DocsDir)

	v.SetDefault("report.path", d.Report.Path)
}

// BindEnv makes CASEFILE_<SECTION>_<KEY> override any key, and maps the
// vendor variables onto the llm section
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("CASEFILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm.base_url", "CASEFILE_LLM_BASE_URL", "OLLAMA_BASE_URL")
}

// Load decodes v into a Config, fills the API key from the vendor
// variable matching the provider and validates the result
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = vendorKey(cfg.LLM.Provider)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func vendorKey(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic", "claude":
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return ""
}

// Validate rejects settings no component can run with
func (c Config) Validate() error {
	var errs []error
	if c.CoA.Workers < 1 {
		errs = append(errs, fmt.Errorf("coa.workers must be at least 1, got %d", c.CoA.Workers))
	}
	if c.CoA.HistoryTurnLimit < 1 {
		errs = append(errs, fmt.Errorf("coa.history_turn_limit must be at least 1, got %d", c.CoA.HistoryTurnLimit))
	}
	if c.Server.StreamChunk < 1 {
		errs = append(errs, fmt.Errorf("server.stream_chunk must be at least 1, got %d", c.Server.StreamChunk))
	}
	if c.Extract.MaxChars < 1 {
		errs = append(errs, fmt.Errorf("extract.max_chars must be at least 1, got %d", c.Extract.MaxChars))
	}
	if c.Extract.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("extract.concurrency must be at least 1, got %d", c.Extract.Concurrency))
	}
	if c.Corpus.PollAttempts < 1 {
		errs = append(errs, fmt.Errorf("corpus.poll_attempts must be at least 1, got %d", c.Corpus.PollAttempts))
	}
	switch c.State.Backend {
	case BackendFile:
		if c.State.Path == "" {
			errs = append(errs, errors.New("state.path is required for the file backend"))
		}
	case BackendRedis:
		if c.State.RedisAddr == "" {
			errs = append(errs, errors.New("state.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown state backend %q (supported: file, redis)", c.State.Backend))
	}
	if c.Graph.Path == "" {
		errs = append(errs, errors.New("graph.path is required"))
	}
	return errors.Join(errs...)
}
