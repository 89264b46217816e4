package common

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/rogo/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment" yaml:"environment"` // "development" or "production" - controls test URL validation
	Server      ServerConfig    `toml:"server" yaml:"server"`
	Storage     StorageConfig   `toml:"storage" yaml:"storage"`
	Logging     LoggingConfig   `toml:"logging" yaml:"logging"`
	Chat        ChatConfig      `toml:"chat" yaml:"chat"`
	Chunking    ChunkingConfig  `toml:"chunking" yaml:"chunking"`
	Providers   ProvidersConfig `toml:"providers" yaml:"providers"`
	Fetcher     FetcherConfig   `toml:"fetcher" yaml:"fetcher"`
	Sessions    SessionsConfig  `toml:"sessions" yaml:"sessions"`
	WebSocket   WebSocketConfig `toml:"websocket" yaml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port" yaml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host" yaml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger" yaml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" yaml:"path"`                         // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup" yaml:"reset_on_startup"` // Delete database on startup for clean test runs
	GCSchedule     string `toml:"gc_schedule" yaml:"gc_schedule"`           // Cron schedule for value-log garbage collection
}

type LoggingConfig struct {
	Level         string   `toml:"level" yaml:"level"`                     // "debug", "info", "warn", "error"
	Output        []string `toml:"output" yaml:"output"`                   // "stdout", "file"
	TimeFormat    string   `toml:"time_format" yaml:"time_format"`         // Time format for logs (default: "15:04:05")
	MinEventLevel string   `toml:"min_event_level" yaml:"min_event_level"` // Minimum log level to stream to connected clients
}

// ChatConfig controls answer assembly behavior
type ChatConfig struct {
	Persona    string `toml:"persona" yaml:"persona"`                      // Assistant persona name used in prompts
	TopK       int    `toml:"top_k" yaml:"top_k" validate:"min=1"`         // Chunks retrieved per question
	MaxSources int    `toml:"max_sources" yaml:"max_sources" validate:"min=0"` // Sources cited per answer
}

// ChunkingConfig controls document splitting
type ChunkingConfig struct {
	Size    int `toml:"size" yaml:"size" validate:"gt=0"`       // Target chunk size in characters
	Overlap int `toml:"overlap" yaml:"overlap" validate:"gte=0"` // Characters shared between adjacent chunks
}

// ProvidersConfig selects and tunes the AI providers
type ProvidersConfig struct {
	Default           string       `toml:"default" yaml:"default" validate:"oneof=openai gemini claude"`
	RequestTimeout    string       `toml:"request_timeout" yaml:"request_timeout"`           // Per-call timeout as duration string (default: "30s")
	RequestsPerMinute int          `toml:"requests_per_minute" yaml:"requests_per_minute"`   // Provider rate limit (default: 60)
	MaxRetries        int          `toml:"max_retries" yaml:"max_retries" validate:"gte=0"`  // Retries on 429/5xx responses
	Temperature       float64      `toml:"temperature" yaml:"temperature" validate:"gte=0,lte=1"`
	OpenAI            OpenAIConfig `toml:"openai" yaml:"openai"`
	Gemini            GeminiConfig `toml:"gemini" yaml:"gemini"`
	Claude            ClaudeConfig `toml:"claude" yaml:"claude"`
}

// OpenAIConfig contains OpenAI API configuration
type OpenAIConfig struct {
	APIKey         string `toml:"api_key" yaml:"api_key"`
	BaseURL        string `toml:"base_url" yaml:"base_url"`               // Override for proxies and compatible endpoints
	Model          string `toml:"model" yaml:"model"`                     // Chat model (default: "gpt-4o-mini")
	EmbeddingModel string `toml:"embedding_model" yaml:"embedding_model"` // Embedding model (default: "text-embedding-3-small")
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey               string `toml:"api_key" yaml:"api_key"`
	Model                string `toml:"model" yaml:"model"`                                   // Chat model (default: "gemini-2.5-flash")
	EmbeddingModel       string `toml:"embedding_model" yaml:"embedding_model"`               // Embedding model (default: "models/embedding-001")
	OutputDimensionality int    `toml:"output_dimensionality" yaml:"output_dimensionality"`   // Embedding vector size (default: 768)
}

// ClaudeConfig contains Anthropic Claude API configuration. Claude has no
// embedding endpoint, so GoogleAPIKey supplies the Gemini key used for
// embeddings when Claude is the active provider.
type ClaudeConfig struct {
	APIKey       string `toml:"api_key" yaml:"api_key"`
	GoogleAPIKey string `toml:"google_api_key" yaml:"google_api_key"`
	Model        string `toml:"model" yaml:"model"`           // Chat model (default: "claude-sonnet-4-5")
	MaxTokens    int    `toml:"max_tokens" yaml:"max_tokens"` // Maximum tokens in response (default: 2048)
}

// FetcherConfig contains page retrieval configuration
type FetcherConfig struct {
	Timeout     string `toml:"timeout" yaml:"timeout"`           // HTTP request timeout as duration string (default: "30s")
	UserAgent   string `toml:"user_agent" yaml:"user_agent"`     // User agent sent with fetches
	RenderMode  string `toml:"render_mode" yaml:"render_mode"`   // "http" or "browser" (headless Chrome)
	CacheTTL    string `toml:"cache_ttl" yaml:"cache_ttl"`       // Page cache freshness window (default: "1h")
	GitHubToken string `toml:"github_token" yaml:"github_token"` // Optional token for GitHub README fetches
	MaxBodySize int    `toml:"max_body_size" yaml:"max_body_size"` // Maximum response body size in bytes
	PurgeSchedule string `toml:"purge_schedule" yaml:"purge_schedule"` // Cron schedule for expired page cleanup
}

// SessionsConfig contains chat session lifecycle configuration
type SessionsConfig struct {
	TTL           string `toml:"ttl" yaml:"ttl"`                       // Idle lifetime before a session is swept (default: "2h")
	SweepSchedule string `toml:"sweep_schedule" yaml:"sweep_schedule"` // Cron schedule for the idle sweep
}

// WebSocketConfig contains configuration for WebSocket log streaming
type WebSocketConfig struct {
	MinLevel        string   `toml:"min_level" yaml:"min_level"`               // Minimum log level to broadcast
	ExcludePatterns []string `toml:"exclude_patterns" yaml:"exclude_patterns"` // Log message patterns to exclude from broadcasting
	LogInterval     string   `toml:"log_interval" yaml:"log_interval"`         // Minimum interval between log batches per client
}

// NewDefaultConfig creates a configuration with default values.
// Only user-facing settings are exposed in rogo.toml; everything here can be
// overridden by file, environment, then flags.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:       "./data/rogo",
				GCSchedule: "15 * * * *", // Hourly value-log GC
			},
		},
		Logging: LoggingConfig{
			Level:         "info",
			Output:        []string{"stdout", "file"},
			TimeFormat:    "15:04:05",
			MinEventLevel: "info",
		},
		Chat: ChatConfig{
			Persona:    "BotPenguin",
			TopK:       3,
			MaxSources: 3,
		},
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
		},
		Providers: ProvidersConfig{
			Default:           "openai",
			RequestTimeout:    "30s",
			RequestsPerMinute: 60,
			MaxRetries:        2,
			Temperature:       0.3,
			OpenAI: OpenAIConfig{
				BaseURL:        "https://api.openai.com/v1",
				Model:          "gpt-4o-mini",
				EmbeddingModel: "text-embedding-3-small",
			},
			Gemini: GeminiConfig{
				Model:                "gemini-2.5-flash",
				EmbeddingModel:       "models/embedding-001",
				OutputDimensionality: 768,
			},
			Claude: ClaudeConfig{
				Model:     "claude-sonnet-4-5",
				MaxTokens: 2048,
			},
		},
		Fetcher: FetcherConfig{
			Timeout:       "30s",
			UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RenderMode:    "http",
			CacheTTL:      "1h",
			MaxBodySize:   10 * 1024 * 1024, // 10MB
			PurgeSchedule: "45 * * * *",     // Hourly expired page cleanup
		},
		Sessions: SessionsConfig{
			TTL:           "2h",
			SweepSchedule: "*/5 * * * *",
		},
		WebSocket: WebSocketConfig{
			MinLevel: "info",
			ExcludePatterns: []string{
				"WebSocket client connected",
				"WebSocket client disconnected",
				"HTTP request",
				"HTTP response",
			},
			LogInterval: "250ms",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files. Later files override
// earlier files; environment variables override every file. TOML is the
// primary format, YAML is accepted by extension.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, config)
		default:
			err = toml.Unmarshal(data, config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: ROGO_ENV, fallback: GO_ENV)
	if env := os.Getenv("ROGO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("ROGO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("ROGO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("ROGO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if reset := os.Getenv("ROGO_BADGER_RESET_ON_STARTUP"); reset != "" {
		if r, err := strconv.ParseBool(reset); err == nil {
			config.Storage.Badger.ResetOnStartup = r
		}
	}

	// Logging configuration
	if level := os.Getenv("ROGO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("ROGO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
	if minEventLevel := os.Getenv("ROGO_LOG_MIN_EVENT_LEVEL"); minEventLevel != "" {
		config.Logging.MinEventLevel = minEventLevel
	}

	// Chat configuration
	if persona := os.Getenv("ROGO_CHAT_PERSONA"); persona != "" {
		config.Chat.Persona = persona
	}
	if topK := os.Getenv("ROGO_CHAT_TOP_K"); topK != "" {
		if k, err := strconv.Atoi(topK); err == nil {
			config.Chat.TopK = k
		}
	}
	if maxSources := os.Getenv("ROGO_CHAT_MAX_SOURCES"); maxSources != "" {
		if ms, err := strconv.Atoi(maxSources); err == nil {
			config.Chat.MaxSources = ms
		}
	}

	// Chunking configuration
	if size := os.Getenv("ROGO_CHUNKING_SIZE"); size != "" {
		if s, err := strconv.Atoi(size); err == nil {
			config.Chunking.Size = s
		}
	}
	if overlap := os.Getenv("ROGO_CHUNKING_OVERLAP"); overlap != "" {
		if o, err := strconv.Atoi(overlap); err == nil {
			config.Chunking.Overlap = o
		}
	}

	// Provider configuration
	if provider := os.Getenv("ROGO_PROVIDERS_DEFAULT"); provider != "" {
		config.Providers.Default = provider
	}
	if timeout := os.Getenv("ROGO_PROVIDERS_REQUEST_TIMEOUT"); timeout != "" {
		if _, err := time.ParseDuration(timeout); err == nil {
			config.Providers.RequestTimeout = timeout
		}
	}
	if rpm := os.Getenv("ROGO_PROVIDERS_REQUESTS_PER_MINUTE"); rpm != "" {
		if r, err := strconv.Atoi(rpm); err == nil {
			config.Providers.RequestsPerMinute = r
		}
	}
	if retries := os.Getenv("ROGO_PROVIDERS_MAX_RETRIES"); retries != "" {
		if r, err := strconv.Atoi(retries); err == nil {
			config.Providers.MaxRetries = r
		}
	}
	if temperature := os.Getenv("ROGO_PROVIDERS_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 64); err == nil {
			config.Providers.Temperature = t
		}
	}

	// OpenAI configuration (ROGO_ prefix takes priority over the vendor var)
	if apiKey := os.Getenv("ROGO_OPENAI_API_KEY"); apiKey != "" {
		config.Providers.OpenAI.APIKey = apiKey
	} else if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.Providers.OpenAI.APIKey = apiKey
	}
	if baseURL := os.Getenv("ROGO_OPENAI_BASE_URL"); baseURL != "" {
		config.Providers.OpenAI.BaseURL = baseURL
	}
	if model := os.Getenv("ROGO_OPENAI_MODEL"); model != "" {
		config.Providers.OpenAI.Model = model
	}
	if embeddingModel := os.Getenv("ROGO_OPENAI_EMBEDDING_MODEL"); embeddingModel != "" {
		config.Providers.OpenAI.EmbeddingModel = embeddingModel
	}

	// Gemini configuration
	if apiKey := os.Getenv("ROGO_GEMINI_API_KEY"); apiKey != "" {
		config.Providers.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Providers.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("GOOGLE_API_KEY"); apiKey != "" {
		config.Providers.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("ROGO_GEMINI_MODEL"); model != "" {
		config.Providers.Gemini.Model = model
	}
	if embeddingModel := os.Getenv("ROGO_GEMINI_EMBEDDING_MODEL"); embeddingModel != "" {
		config.Providers.Gemini.EmbeddingModel = embeddingModel
	}

	// Claude configuration
	if apiKey := os.Getenv("ROGO_CLAUDE_API_KEY"); apiKey != "" {
		config.Providers.Claude.APIKey = apiKey
	} else if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Providers.Claude.APIKey = apiKey
	}
	if googleKey := os.Getenv("ROGO_CLAUDE_GOOGLE_API_KEY"); googleKey != "" {
		config.Providers.Claude.GoogleAPIKey = googleKey
	}
	if model := os.Getenv("ROGO_CLAUDE_MODEL"); model != "" {
		config.Providers.Claude.Model = model
	}
	if maxTokens := os.Getenv("ROGO_CLAUDE_MAX_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil {
			config.Providers.Claude.MaxTokens = mt
		}
	}

	// Fetcher configuration
	if timeout := os.Getenv("ROGO_FETCHER_TIMEOUT"); timeout != "" {
		if _, err := time.ParseDuration(timeout); err == nil {
			config.Fetcher.Timeout = timeout
		}
	}
	if userAgent := os.Getenv("ROGO_FETCHER_USER_AGENT"); userAgent != "" {
		config.Fetcher.UserAgent = userAgent
	}
	if renderMode := os.Getenv("ROGO_FETCHER_RENDER_MODE"); renderMode != "" {
		config.Fetcher.RenderMode = renderMode
	}
	if cacheTTL := os.Getenv("ROGO_FETCHER_CACHE_TTL"); cacheTTL != "" {
		if _, err := time.ParseDuration(cacheTTL); err == nil {
			config.Fetcher.CacheTTL = cacheTTL
		}
	}
	if token := os.Getenv("ROGO_GITHUB_TOKEN"); token != "" {
		config.Fetcher.GitHubToken = token
	} else if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		config.Fetcher.GitHubToken = token
	}
	if maxBodySize := os.Getenv("ROGO_FETCHER_MAX_BODY_SIZE"); maxBodySize != "" {
		if mbs, err := strconv.Atoi(maxBodySize); err == nil {
			config.Fetcher.MaxBodySize = mbs
		}
	}

	// Sessions configuration
	if ttl := os.Getenv("ROGO_SESSIONS_TTL"); ttl != "" {
		if _, err := time.ParseDuration(ttl); err == nil {
			config.Sessions.TTL = ttl
		}
	}
	if schedule := os.Getenv("ROGO_SESSIONS_SWEEP_SCHEDULE"); schedule != "" {
		config.Sessions.SweepSchedule = schedule
	}

	// WebSocket configuration
	if minLevel := os.Getenv("ROGO_WEBSOCKET_MIN_LEVEL"); minLevel != "" {
		config.WebSocket.MinLevel = minLevel
	}
	if excludePatterns := os.Getenv("ROGO_WEBSOCKET_EXCLUDE_PATTERNS"); excludePatterns != "" {
		patterns := []string{}
		for _, p := range strings.Split(excludePatterns, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				patterns = append(patterns, trimmed)
			}
		}
		if len(patterns) > 0 {
			config.WebSocket.ExcludePatterns = patterns
		}
	}
	if interval := os.Getenv("ROGO_WEBSOCKET_LOG_INTERVAL"); interval != "" {
		if _, err := time.ParseDuration(interval); err == nil {
			config.WebSocket.LogInterval = interval
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks the loaded configuration for usable values.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("invalid configuration: chunking overlap (%d) must be smaller than size (%d)", c.Chunking.Overlap, c.Chunking.Size)
	}
	return nil
}

// Timeout returns the parsed provider request timeout, defaulting to 30s.
func (p *ProvidersConfig) Timeout() time.Duration {
	if d, err := time.ParseDuration(p.RequestTimeout); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}

// FetchTimeout returns the parsed fetcher timeout, defaulting to 30s.
func (f *FetcherConfig) FetchTimeout() time.Duration {
	if d, err := time.ParseDuration(f.Timeout); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}

// PageCacheTTL returns the parsed cache TTL, defaulting to 1h.
func (f *FetcherConfig) PageCacheTTL() time.Duration {
	if d, err := time.ParseDuration(f.CacheTTL); err == nil && d > 0 {
		return d
	}
	return time.Hour
}

// IdleTTL returns the parsed session lifetime, defaulting to 2h.
func (s *SessionsConfig) IdleTTL() time.Duration {
	if d, err := time.ParseDuration(s.TTL); err == nil && d > 0 {
		return d
	}
	return 2 * time.Hour
}

// ResolveAPIKey resolves an API key by name with environment variable priority
// Resolution order: environment variables -> KV store -> config fallback -> error
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	// Environment variables have highest priority; ROGO_ names first, then
	// the vendor's conventional variable.
	keyToEnvMapping := map[string][]string{
		"openai_api_key":    {"ROGO_OPENAI_API_KEY", "OPENAI_API_KEY"},
		"gemini_api_key":    {"ROGO_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"google_api_key":    {"ROGO_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"claude_api_key":    {"ROGO_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"anthropic_api_key": {"ROGO_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"github_token":      {"ROGO_GITHUB_TOKEN", "GITHUB_TOKEN"},
	}

	if envVarNames, hasMappedEnv := keyToEnvMapping[name]; hasMappedEnv {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	// KV store holds keys saved through the API (medium priority)
	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	// Fallback to config value (lowest priority)
	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// AllowTestURLs returns true if test URLs (localhost, 127.0.0.1, etc.) are allowed.
// Test URLs are only allowed in development mode.
func (c *Config) AllowTestURLs() bool {
	return !c.IsProduction()
}
