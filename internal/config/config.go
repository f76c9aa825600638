package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ProjectConfigName is the per-directory configuration file.
const ProjectConfigName = ".foldrank.yaml"

// Config represents the complete foldrank configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Resilience ResilienceConfig `yaml:"resilience" json:"resilience"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// SearchConfig configures hybrid ranking.
// Weights are configurable via:
//  1. User config (~/.config/foldrank/config.yaml) - personal defaults
//  2. Project config (.foldrank.yaml) - per-vault tuning
//  3. Env vars (FOLDRANK_KEYWORD_WEIGHT, FOLDRANK_EMBEDDING_WEIGHT) - highest priority
type SearchConfig struct {
	// KeywordWeight is the weight of the normalized BM25 score (0.0-1.0).
	// Must sum to 1.0 with EmbeddingWeight.
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`

	// EmbeddingWeight is the weight of the normalized cosine similarity (0.0-1.0).
	EmbeddingWeight float64 `yaml:"embedding_weight" json:"embedding_weight"`

	// Fusion is "weighted" (default) or "rrf".
	Fusion string `yaml:"fusion" json:"fusion"`

	// RRFConstant is k for rrf fusion. Default: 60.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// NormalizationFloor is the minimum divisor when normalizing scores.
	// 0 maps the best score to 1; 1 never scales scores up.
	NormalizationFloor float64 `yaml:"normalization_floor" json:"normalization_floor"`

	// BM25Backend is "memory" (default), "bleve" or "sqlite".
	BM25Backend string  `yaml:"bm25_backend" json:"bm25_backend"`
	BM25K1      float64 `yaml:"bm25_k1" json:"bm25_k1"`
	BM25B       float64 `yaml:"bm25_b" json:"bm25_b"`

	// IndexCacheSize is the number of candidate sets kept indexed.
	IndexCacheSize int `yaml:"index_cache_size" json:"index_cache_size"`

	DefaultTopK int `yaml:"default_top_k" json:"default_top_k"`
	TagTopK     int `yaml:"tag_top_k" json:"tag_top_k"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "openai", "ollama" or "static".
	Provider string `yaml:"provider" json:"provider"`

	// Model overrides the provider default.
	Model string `yaml:"model" json:"model"`

	OpenAIBaseURL string `yaml:"openai_base_url" json:"openai_base_url"`
	OllamaHost    string `yaml:"ollama_host" json:"ollama_host"`

	// OpenAIAPIKey is only read from OPENAI_API_KEY, never from files.
	OpenAIAPIKey string `yaml:"-" json:"-"`

	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	CacheSize int           `yaml:"cache_size" json:"cache_size"`
	BatchSize int           `yaml:"batch_size" json:"batch_size"`
}

// ResilienceConfig configures retries and the circuit breaker around the
// embedding provider. Disabled by default.
type ResilienceConfig struct {
	Enabled             bool          `yaml:"enabled" json:"enabled"`
	MaxRetries          int           `yaml:"max_retries" json:"max_retries"`
	InitialBackoff      time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff          time.Duration `yaml:"max_backoff" json:"max_backoff"`
	BreakerFailureRatio float64       `yaml:"breaker_failure_ratio" json:"breaker_failure_ratio"`
	BreakerMinRequests  int           `yaml:"breaker_min_requests" json:"breaker_min_requests"`
	BreakerOpenTimeout  time.Duration `yaml:"breaker_open_timeout" json:"breaker_open_timeout"`
	RateLimitRPS        float64       `yaml:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst      int           `yaml:"rate_limit_burst" json:"rate_limit_burst"`
}

// ServerConfig configures the MCP server and logging.
type ServerConfig struct {
	// Transport is "stdio" or "http".
	Transport string `yaml:"transport" json:"transport"`

	// Addr is the listen address for the http transport.
	Addr string `yaml:"addr" json:"addr"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// LogFile enables file logging when set.
	LogFile string `yaml:"log_file" json:"log_file"`

	// MetricsAddr serves /metrics when set (e.g. ":9090").
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			KeywordWeight:      0.3,
			EmbeddingWeight:    0.7,
			Fusion:             "weighted",
			RRFConstant:        60,
			NormalizationFloor: 0,
			BM25Backend:        "memory",
			BM25K1:             1.5,
			BM25B:              0.75,
			IndexCacheSize:     64,
			DefaultTopK:        2,
			TagTopK:            3,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "ollama",
			Model:     "", // Empty uses the provider default
			Timeout:   30 * time.Second,
			CacheSize: 4096,
			BatchSize: 256,
		},
		Resilience: ResilienceConfig{
			Enabled:             false,
			MaxRetries:          3,
			InitialBackoff:      500 * time.Millisecond,
			MaxBackoff:          8 * time.Second,
			BreakerFailureRatio: 0.5,
			BreakerMinRequests:  5,
			BreakerOpenTimeout:  30 * time.Second,
			RateLimitRPS:        0,
			RateLimitBurst:      1,
		},
		Server: ServerConfig{
			Transport: "stdio",
			Addr:      "127.0.0.1:8765",
			LogLevel:  "info",
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/foldrank/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/foldrank/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "foldrank", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "foldrank", "config.yaml")
	}
	return filepath.Join(home, ".config", "foldrank", "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// ProjectConfigPath returns the project config file in dir, preferring
// .foldrank.yaml over .foldrank.yml. The .yaml path is returned when neither
// exists.
func ProjectConfigPath(dir string) string {
	yamlPath := filepath.Join(dir, ProjectConfigName)
	if fileExists(yamlPath) {
		return yamlPath
	}
	ymlPath := filepath.Join(dir, ".foldrank.yml")
	if fileExists(ymlPath) {
		return ymlPath
	}
	return yamlPath
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	var parsed Config
	if err := readYAML(configPath, &parsed); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return &parsed, nil
}

// Load loads configuration for the given directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/foldrank/config.yaml)
//  3. Project config (.foldrank.yaml in dir)
//  4. .env file in dir
//  5. Environment variables (FOLDRANK_*, OPENAI_API_KEY)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	env, err := newEnvLookup(filepath.Join(dir, ".env"))
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnvOverrides(env); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile merges the project config in dir, if any.
func (c *Config) loadFromFile(dir string) error {
	path := ProjectConfigPath(dir)
	if !fileExists(path) {
		return nil
	}

	var parsed Config
	if err := readYAML(path, &parsed); err != nil {
		return err
	}
	c.mergeWith(&parsed)
	return nil
}

func readYAML(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Note: a zero weight is only reachable through env vars, so files merge non-zero values
	s, o := &c.Search, other.Search
	if o.KeywordWeight != 0 {
		s.KeywordWeight = o.KeywordWeight
	}
	if o.EmbeddingWeight != 0 {
		s.EmbeddingWeight = o.EmbeddingWeight
	}
	if o.Fusion != "" {
		s.Fusion = o.Fusion
	}
	if o.RRFConstant != 0 {
		s.RRFConstant = o.RRFConstant
	}
	if o.NormalizationFloor != 0 {
		s.NormalizationFloor = o.NormalizationFloor
	}
	if o.BM25Backend != "" {
		s.BM25Backend = o.BM25Backend
	}
	if o.BM25K1 != 0 {
		s.BM25K1 = o.BM25K1
	}
	if o.BM25B != 0 {
		s.BM25B = o.BM25B
	}
	if o.IndexCacheSize != 0 {
		s.IndexCacheSize = o.IndexCacheSize
	}
	if o.DefaultTopK != 0 {
		s.DefaultTopK = o.DefaultTopK
	}
	if o.TagTopK != 0 {
		s.TagTopK = o.TagTopK
	}

	e, oe := &c.Embeddings, other.Embeddings
	if oe.Provider != "" {
		e.Provider = oe.Provider
	}
	if oe.Model != "" {
		e.Model = oe.Model
	}
	if oe.OpenAIBaseURL != "" {
		e.OpenAIBaseURL = oe.OpenAIBaseURL
	}
	if oe.OllamaHost != "" {
		e.OllamaHost = oe.OllamaHost
	}
	if oe.Timeout != 0 {
		e.Timeout = oe.Timeout
	}
	if oe.CacheSize != 0 {
		e.CacheSize = oe.CacheSize
	}
	if oe.BatchSize != 0 {
		e.BatchSize = oe.BatchSize
	}

	r, or := &c.Resilience, other.Resilience
	if or.Enabled {
		r.Enabled = true
	}
	if or.MaxRetries != 0 {
		r.MaxRetries = or.MaxRetries
	}
	if or.InitialBackoff != 0 {
		r.InitialBackoff = or.InitialBackoff
	}
	if or.MaxBackoff != 0 {
		r.MaxBackoff = or.MaxBackoff
	}
	if or.BreakerFailureRatio != 0 {
		r.BreakerFailureRatio = or.BreakerFailureRatio
	}
	if or.BreakerMinRequests != 0 {
		r.BreakerMinRequests = or.BreakerMinRequests
	}
	if or.BreakerOpenTimeout != 0 {
		r.BreakerOpenTimeout = or.BreakerOpenTimeout
	}
	if or.RateLimitRPS != 0 {
		r.RateLimitRPS = or.RateLimitRPS
	}
	if or.RateLimitBurst != 0 {
		r.RateLimitBurst = or.RateLimitBurst
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.LogFile != "" {
		c.Server.LogFile = other.Server.LogFile
	}
	if other.Server.MetricsAddr != "" {
		c.Server.MetricsAddr = other.Server.MetricsAddr
	}
}

// envLookup reads process env first, then values from a .env file. An empty
// process variable counts as unset.
type envLookup func(key string) string

func newEnvLookup(dotenvPath string) (envLookup, error) {
	fileVals := map[string]string{}
	if fileExists(dotenvPath) {
		vals, err := godotenv.Read(dotenvPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", dotenvPath, err)
		}
		fileVals = vals
	}
	return func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fileVals[key]
	}, nil
}

// applyEnvOverrides applies FOLDRANK_* overrides. Unlike files, env vars may
// set a weight to exactly zero. Malformed numbers are rejected.
func (c *Config) applyEnvOverrides(env envLookup) error {
	floats := []struct {
		key string
		dst *float64
	}{
		{"FOLDRANK_KEYWORD_WEIGHT", &c.Search.KeywordWeight},
		{"FOLDRANK_EMBEDDING_WEIGHT", &c.Search.EmbeddingWeight},
		{"FOLDRANK_NORMALIZATION_FLOOR", &c.Search.NormalizationFloor},
		{"FOLDRANK_RATE_LIMIT_RPS", &c.Resilience.RateLimitRPS},
	}
	for _, f := range floats {
		if v := env(f.key); v != "" {
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fmt.Errorf("%s: %w", f.key, err)
			}
			*f.dst = parsed
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"FOLDRANK_RRF_CONSTANT", &c.Search.RRFConstant},
		{"FOLDRANK_INDEX_CACHE_SIZE", &c.Search.IndexCacheSize},
		{"FOLDRANK_TOP_K", &c.Search.DefaultTopK},
		{"FOLDRANK_EMBEDDINGS_CACHE_SIZE", &c.Embeddings.CacheSize},
		{"FOLDRANK_MAX_RETRIES", &c.Resilience.MaxRetries},
	}
	for _, f := range ints {
		if v := env(f.key); v != "" {
			parsed, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", f.key, err)
			}
			*f.dst = parsed
		}
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"FOLDRANK_FUSION", &c.Search.Fusion},
		{"FOLDRANK_BM25_BACKEND", &c.Search.BM25Backend},
		{"FOLDRANK_EMBEDDINGS_PROVIDER", &c.Embeddings.Provider},
		{"FOLDRANK_EMBEDDINGS_MODEL", &c.Embeddings.Model},
		{"FOLDRANK_OPENAI_BASE_URL", &c.Embeddings.OpenAIBaseURL},
		{"FOLDRANK_OLLAMA_HOST", &c.Embeddings.OllamaHost},
		{"OPENAI_API_KEY", &c.Embeddings.OpenAIAPIKey},
		{"FOLDRANK_TRANSPORT", &c.Server.Transport},
		{"FOLDRANK_ADDR", &c.Server.Addr},
		{"FOLDRANK_LOG_LEVEL", &c.Server.LogLevel},
		{"FOLDRANK_LOG_FILE", &c.Server.LogFile},
		{"FOLDRANK_METRICS_ADDR", &c.Server.MetricsAddr},
	}
	for _, f := range strs {
		if v := env(f.key); v != "" {
			*f.dst = strings.TrimSpace(v)
		}
	}

	if v := env("FOLDRANK_EMBEDDINGS_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("FOLDRANK_EMBEDDINGS_TIMEOUT: %w", err)
		}
		c.Embeddings.Timeout = d
	}
	if v := env("FOLDRANK_RESILIENCE_ENABLED"); v != "" {
		c.Resilience.Enabled = strings.EqualFold(v, "true") || v == "1"
	}

	return nil
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	s := c.Search
	if s.KeywordWeight < 0 || s.KeywordWeight > 1 {
		return fmt.Errorf("keyword_weight must be between 0 and 1, got %f", s.KeywordWeight)
	}
	if s.EmbeddingWeight < 0 || s.EmbeddingWeight > 1 {
		return fmt.Errorf("embedding_weight must be between 0 and 1, got %f", s.EmbeddingWeight)
	}
	sum := s.KeywordWeight + s.EmbeddingWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("keyword_weight + embedding_weight must equal 1.0, got %.2f", sum)
	}

	switch strings.ToLower(s.Fusion) {
	case "weighted", "rrf":
	default:
		return fmt.Errorf("search.fusion must be 'weighted' or 'rrf', got %s", s.Fusion)
	}
	if s.RRFConstant <= 0 {
		return fmt.Errorf("rrf_constant must be positive, got %d", s.RRFConstant)
	}
	if s.NormalizationFloor < 0 || math.IsNaN(s.NormalizationFloor) {
		return fmt.Errorf("normalization_floor must be non-negative, got %f", s.NormalizationFloor)
	}

	validBackends := map[string]bool{"memory": true, "bleve": true, "sqlite": true}
	if !validBackends[strings.ToLower(s.BM25Backend)] {
		return fmt.Errorf("search.bm25_backend must be 'memory', 'bleve' or 'sqlite', got %s", s.BM25Backend)
	}
	if s.BM25K1 <= 0 {
		return fmt.Errorf("bm25_k1 must be positive, got %f", s.BM25K1)
	}
	if s.BM25B < 0 || s.BM25B > 1 {
		return fmt.Errorf("bm25_b must be between 0 and 1, got %f", s.BM25B)
	}
	if s.IndexCacheSize <= 0 {
		return fmt.Errorf("index_cache_size must be positive, got %d", s.IndexCacheSize)
	}
	if s.DefaultTopK <= 0 || s.TagTopK <= 0 {
		return fmt.Errorf("default_top_k and tag_top_k must be positive, got %d and %d", s.DefaultTopK, s.TagTopK)
	}

	e := c.Embeddings
	validProviders := map[string]bool{"openai": true, "ollama": true, "static": true}
	if !validProviders[strings.ToLower(e.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'openai', 'ollama' or 'static', got %s", e.Provider)
	}
	if e.Timeout <= 0 {
		return fmt.Errorf("embeddings.timeout must be positive, got %s", e.Timeout)
	}
	if e.CacheSize < 0 {
		return fmt.Errorf("embeddings.cache_size must be non-negative, got %d", e.CacheSize)
	}
	if e.BatchSize <= 0 || e.BatchSize > 2048 {
		return fmt.Errorf("embeddings.batch_size must be between 1 and 2048, got %d", e.BatchSize)
	}

	r := c.Resilience
	if r.MaxRetries < 0 {
		return fmt.Errorf("resilience.max_retries must be non-negative, got %d", r.MaxRetries)
	}
	if r.BreakerFailureRatio <= 0 || r.BreakerFailureRatio > 1 {
		return fmt.Errorf("resilience.breaker_failure_ratio must be in (0, 1], got %f", r.BreakerFailureRatio)
	}
	if r.BreakerMinRequests < 0 || r.RateLimitRPS < 0 || r.RateLimitBurst < 0 {
		return fmt.Errorf("resilience limits must be non-negative")
	}

	validTransports := map[string]bool{"stdio": true, "http": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'http', got %s", c.Server.Transport)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
