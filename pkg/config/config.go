// Package config loads and validates service configuration. Every option is
// enumerated here; unknown config-file keys and unknown TALENTMESH_* env
// vars are rejected at startup.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Environment names.
const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// DatabaseConfig contains vector store connection settings.
type DatabaseConfig struct {
	Host         string `mapstructure:"host" validate:"required"`
	Port         int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	User         string `mapstructure:"user" validate:"required"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name" validate:"required"`
	SSLMode      string `mapstructure:"ssl_mode" validate:"oneof=disable require verify-ca verify-full"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"min=1"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"min=0"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

// DSN builds the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// CacheConfig contains Redis settings and per-namespace TTLs.
type CacheConfig struct {
	Address              string        `mapstructure:"address" validate:"required"`
	Password             string        `mapstructure:"password"`
	DB                   int           `mapstructure:"db" validate:"min=0"`
	UseTLS               bool          `mapstructure:"use_tls"`
	DialTimeout          time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	CompressionThreshold int           `mapstructure:"compression_threshold" validate:"min=0"`

	EmbedTTL    time.Duration `mapstructure:"embed_ttl"`
	HybridTTL   time.Duration `mapstructure:"hybrid_ttl"`
	RerankTTL   time.Duration `mapstructure:"rerank_ttl"`
	EvidenceTTL time.Duration `mapstructure:"evidence_ttl"`
	MsgsTTL     time.Duration `mapstructure:"msgs_ttl"`

	LocalEmbedEntries int `mapstructure:"local_embed_entries" validate:"min=0"`
}

// OpenAIConfig configures the OpenAI-compatible HTTP providers. Model is the
// embedding model; RerankModel is the chat model the rerank fallback uses.
type OpenAIConfig struct {
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	Model       string `mapstructure:"model"`
	RerankModel string `mapstructure:"rerank_model"`
}

// BedrockConfig configures the AWS Bedrock provider.
type BedrockConfig struct {
	Region         string `mapstructure:"region"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	RerankModel    string `mapstructure:"rerank_model"`
}

// EmbeddingConfig selects and tunes the embedding provider chain.
type EmbeddingConfig struct {
	Provider          string        `mapstructure:"provider" validate:"required,oneof=primary secondary local"`
	Dimensions        int           `mapstructure:"dimensions" validate:"required,min=1"`
	MaxTextLength     int           `mapstructure:"max_text_length" validate:"min=1"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	CircuitFailures   int           `mapstructure:"circuit_failures" validate:"min=1"`
	CircuitCooldown   time.Duration `mapstructure:"circuit_cooldown"`
	OpenAI            OpenAIConfig  `mapstructure:"openai"`
	Bedrock           BedrockConfig `mapstructure:"bedrock"`
	EmbedServiceURL   string        `mapstructure:"embed_service_url"`
}

// RerankConfig tunes stage 3 and the rerank service.
type RerankConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	URL             string        `mapstructure:"url"`
	SLA             time.Duration `mapstructure:"sla"`
	Timeout         time.Duration `mapstructure:"timeout"`
	CircuitFailures int           `mapstructure:"circuit_failures" validate:"min=1"`
	CircuitCooldown time.Duration `mapstructure:"circuit_cooldown"`
	Model           string        `mapstructure:"model"`
	MaxDocs         int           `mapstructure:"max_docs" validate:"min=1,max=200"`
}

// MLConfig tunes the trajectory client and shadow mode.
type MLConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	URL             string        `mapstructure:"url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	ShadowMode      bool          `mapstructure:"shadow_mode"`
	CircuitFailures int           `mapstructure:"circuit_failures" validate:"min=1"`
	CircuitCooldown time.Duration `mapstructure:"circuit_cooldown"`
}

// SearchConfig tunes the pipeline.
type SearchConfig struct {
	CachePurge     bool          `mapstructure:"cache_purge"`
	WeightsVersion string        `mapstructure:"weights_version" validate:"required"`
	PerMethodLimit int           `mapstructure:"per_method_limit" validate:"min=1"`
	Stage2Keep     int           `mapstructure:"stage2_keep" validate:"min=1"`
	Stage3Keep     int           `mapstructure:"stage3_keep" validate:"min=1,max=50"`
	ScoringWorkers int           `mapstructure:"scoring_workers" validate:"min=1"`
	EmbedTimeout   time.Duration `mapstructure:"embed_timeout"`
	RecallTimeout  time.Duration `mapstructure:"recall_timeout"`
	ScoringTimeout time.Duration `mapstructure:"scoring_timeout"`

	// Role-type classifier rules. A JD matching any manager keyword and no
	// IC keyword is scored with the manager weights table.
	ManagerKeywords []string `mapstructure:"manager_keywords" validate:"min=1"`
	ICKeywords      []string `mapstructure:"ic_keywords" validate:"min=1"`
}

// RateLimitConfig holds per-tenant admission limits.
type RateLimitConfig struct {
	HybridRPS   float64 `mapstructure:"hybrid_rps" validate:"min=0"`
	RerankRPS   float64 `mapstructure:"rerank_rps" validate:"min=0"`
	TenantBurst int     `mapstructure:"tenant_burst" validate:"min=1"`
}

// HeaderConfig names the gateway identity headers.
type HeaderConfig struct {
	Tenant    string `mapstructure:"tenant" validate:"required"`
	RequestID string `mapstructure:"request_id" validate:"required"`
	TraceID   string `mapstructure:"trace_id" validate:"required"`
	UserID    string `mapstructure:"user_id" validate:"required"`
}

// Config is the complete service configuration.
type Config struct {
	Environment string `mapstructure:"environment" validate:"required,oneof=development test staging production"`
	Port        int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	LogLevel    string `mapstructure:"log_level"`

	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Rerank    RerankConfig    `mapstructure:"rerank"`
	ML        MLConfig        `mapstructure:"ml"`
	Search    SearchConfig    `mapstructure:"search"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Headers   HeaderConfig    `mapstructure:"headers"`
}

// envBindings maps config keys to their documented environment variables.
var envBindings = map[string]string{
	"environment": "ENVIRONMENT",
	"port":        "PORT",
	"log_level":   "LOG_LEVEL",

	"database.host":           "DATABASE_HOST",
	"database.port":           "DATABASE_PORT",
	"database.user":           "DATABASE_USER",
	"database.password":       "DATABASE_PASSWORD",
	"database.name":           "DATABASE_NAME",
	"database.ssl_mode":       "DATABASE_SSL_MODE",
	"database.max_open_conns": "DATABASE_MAX_OPEN_CONNS",
	"database.max_idle_conns": "DATABASE_MAX_IDLE_CONNS",
	"database.auto_migrate":   "ENABLE_AUTO_MIGRATE",

	"cache.address":               "REDIS_ADDR",
	"cache.password":              "REDIS_PASSWORD",
	"cache.db":                    "REDIS_DB",
	"cache.use_tls":               "REDIS_USE_TLS",
	"cache.compression_threshold": "CACHE_COMPRESSION_THRESHOLD",

	"embedding.provider":                "EMBEDDING_PROVIDER",
	"embedding.dimensions":              "EMBEDDING_DIMENSIONS",
	"embedding.circuit_failures":        "EMBEDDING_CIRCUIT_FAILURES",
	"embedding.circuit_cooldown":        "EMBEDDING_CIRCUIT_COOLDOWN_MS",
	"embedding.openai.api_key":          "OPENAI_API_KEY",
	"embedding.openai.base_url":         "OPENAI_BASE_URL",
	"embedding.openai.model":            "OPENAI_EMBEDDING_MODEL",
	"embedding.openai.rerank_model":     "OPENAI_RERANK_MODEL",
	"embedding.bedrock.region":          "BEDROCK_REGION",
	"embedding.bedrock.embedding_model": "BEDROCK_EMBEDDING_MODEL",
	"embedding.bedrock.rerank_model":    "BEDROCK_RERANK_MODEL",
	"embedding.embed_service_url":       "EMBED_SERVICE_URL",

	"rerank.enabled":          "ENABLE_RERANK",
	"rerank.url":              "RERANK_URL",
	"rerank.sla":              "RERANK_SLA_MS",
	"rerank.timeout":          "RERANK_TIMEOUT_MS",
	"rerank.circuit_failures": "RERANK_CIRCUIT_FAILURES",
	"rerank.circuit_cooldown": "RERANK_CIRCUIT_COOLDOWN_MS",

	"ml.enabled":     "ML_TRAJECTORY_ENABLED",
	"ml.url":         "ML_TRAJECTORY_URL",
	"ml.timeout":     "ML_TRAJECTORY_TIMEOUT_MS",
	"ml.shadow_mode": "SHADOW_MODE_ENABLED",

	"search.cache_purge":     "SEARCH_CACHE_PURGE",
	"search.weights_version": "WEIGHTS_VERSION",

	"rate_limit.hybrid_rps":   "HYBRID_RPS",
	"rate_limit.rerank_rps":   "RERANK_RPS",
	"rate_limit.tenant_burst": "TENANT_BURST",
}

// msKeys are env-bound durations expressed as bare milliseconds.
var msKeys = map[string]bool{
	"rerank.sla":                 true,
	"rerank.timeout":             true,
	"ml.timeout":                 true,
	"embedding.circuit_cooldown": true,
	"rerank.circuit_cooldown":    true,
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", EnvDevelopment)
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "talentmesh")
	v.SetDefault("database.name", "talentmesh")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.dial_timeout", 5*time.Second)
	v.SetDefault("cache.read_timeout", 3*time.Second)
	v.SetDefault("cache.write_timeout", 3*time.Second)
	v.SetDefault("cache.compression_threshold", 1024)
	v.SetDefault("cache.embed_ttl", 24*time.Hour)
	v.SetDefault("cache.hybrid_ttl", 10*time.Minute)
	v.SetDefault("cache.rerank_ttl", time.Hour)
	v.SetDefault("cache.evidence_ttl", time.Hour)
	v.SetDefault("cache.msgs_ttl", 5*time.Minute)
	v.SetDefault("cache.local_embed_entries", 512)

	v.SetDefault("embedding.provider", "primary")
	v.SetDefault("embedding.dimensions", 768)
	v.SetDefault("embedding.max_text_length", 8192)
	v.SetDefault("embedding.request_timeout", 150*time.Millisecond)
	v.SetDefault("embedding.circuit_failures", 5)
	v.SetDefault("embedding.circuit_cooldown", 30*time.Second)
	v.SetDefault("embedding.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.openai.model", "text-embedding-3-small")
	v.SetDefault("embedding.openai.rerank_model", "gpt-4o-mini")
	v.SetDefault("embedding.bedrock.region", "us-east-1")
	v.SetDefault("embedding.bedrock.embedding_model", "amazon.titan-embed-text-v2:0")
	v.SetDefault("embedding.bedrock.rerank_model", "anthropic.claude-3-haiku-20240307-v1:0")
	v.SetDefault("embedding.embed_service_url", "http://localhost:8081")

	v.SetDefault("rerank.enabled", true)
	v.SetDefault("rerank.url", "http://localhost:8083")
	v.SetDefault("rerank.sla", 350*time.Millisecond)
	v.SetDefault("rerank.timeout", 350*time.Millisecond)
	v.SetDefault("rerank.circuit_failures", 5)
	v.SetDefault("rerank.circuit_cooldown", 30*time.Second)
	v.SetDefault("rerank.max_docs", 50)

	v.SetDefault("ml.enabled", false)
	v.SetDefault("ml.url", "http://localhost:8084")
	v.SetDefault("ml.timeout", 100*time.Millisecond)
	v.SetDefault("ml.shadow_mode", true)
	v.SetDefault("ml.circuit_failures", 5)
	v.SetDefault("ml.circuit_cooldown", 30*time.Second)

	v.SetDefault("search.cache_purge", false)
	v.SetDefault("search.weights_version", "wv-2024-09")
	v.SetDefault("search.per_method_limit", 300)
	v.SetDefault("search.stage2_keep", 100)
	v.SetDefault("search.stage3_keep", 50)
	v.SetDefault("search.scoring_workers", 8)
	v.SetDefault("search.embed_timeout", 150*time.Millisecond)
	v.SetDefault("search.recall_timeout", 300*time.Millisecond)
	v.SetDefault("search.scoring_timeout", 200*time.Millisecond)
	v.SetDefault("search.manager_keywords", []string{
		"engineering manager", "direct reports", "people management",
		"manage a team", "lead a team of", "head of", "director of",
		"hiring and mentoring", "performance reviews",
	})
	v.SetDefault("search.ic_keywords", []string{
		"hands-on", "individual contributor", "write code", "ship code",
		"staff engineer", "senior engineer", "implementation",
	})

	v.SetDefault("rate_limit.hybrid_rps", 10.0)
	v.SetDefault("rate_limit.rerank_rps", 5.0)
	v.SetDefault("rate_limit.tenant_burst", 20)

	v.SetDefault("headers.tenant", "x-tenant-id")
	v.SetDefault("headers.request_id", "x-request-id")
	v.SetDefault("headers.trace_id", "x-trace-id")
	v.SetDefault("headers.user_id", "x-user-id")
}

// Load reads configuration from the optional file named by CONFIG_FILE, the
// documented environment variables, and TALENTMESH_-prefixed overrides, then
// validates the result.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TALENTMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)

	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := rejectUnknownEnv(); err != nil {
		return nil, err
	}

	normalizeMillisecondKeys(v)

	var cfg Config
	decodeStrict := func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
	if err := v.Unmarshal(&cfg, decodeStrict); err != nil {
		return nil, fmt.Errorf("unknown or invalid configuration keys: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalizeMillisecondKeys converts bare integer values on *_MS-documented
// keys into durations so both "350" (ms) and "350ms" parse.
func normalizeMillisecondKeys(v *viper.Viper) {
	for key := range msKeys {
		raw := strings.TrimSpace(v.GetString(key))
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err == nil {
			continue
		}
		if ms := v.GetInt64(key); ms > 0 {
			v.Set(key, (time.Duration(ms) * time.Millisecond).String())
		}
	}
}

// rejectUnknownEnv fails startup when a TALENTMESH_* variable does not match
// any known configuration key.
func rejectUnknownEnv() error {
	known := make(map[string]bool, len(envBindings))
	for key := range envBindings {
		known["TALENTMESH_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))] = true
	}
	// Keys without direct documented env names are still addressable with
	// the prefix.
	for _, key := range allConfigKeys() {
		known["TALENTMESH_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))] = true
	}

	var unknown []string
	for _, kv := range os.Environ() {
		name := strings.SplitN(kv, "=", 2)[0]
		if !strings.HasPrefix(name, "TALENTMESH_") {
			continue
		}
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown configuration keys: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// allConfigKeys enumerates every valid dotted config key.
func allConfigKeys() []string {
	v := viper.New()
	setDefaults(v)
	return v.AllKeys()
}

// Validate checks structural validity plus the cross-field rules that tags
// cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Embedding.Provider == "local" && c.Environment != EnvDevelopment && c.Environment != EnvTest {
		return fmt.Errorf("embedding provider %q is forbidden in %s", c.Embedding.Provider, c.Environment)
	}
	return nil
}

// IsDevelopment reports whether the environment is development or test.
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment || c.Environment == EnvTest
}
