package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// LLM providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderStub   = "stub"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration

	// Spatial context store.
	DatabaseURL    string
	DBTimeout      time.Duration
	SVIReleaseYear int

	// Mapbox geocoding configuration.
	MapboxToken         string
	MapboxTimeout       time.Duration
	MapboxCacheSize     int
	ReverseGeocodeLimit int

	// Hourly forecast.
	WeatherAPIKey    string
	WeatherBaseURL   string
	WeatherTimeout   time.Duration
	MaxForecastHours int

	// Language model and embeddings.
	LLMProvider           string
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	GeminiAPIKey          string
	GeminiBaseURL         string
	ChatModel             string
	EmbeddingModel        string
	LLMTimeout            time.Duration
	GenerationTemperature float64
	EmbeddingCachePath    string
	EmbeddingCacheSize    int

	// Filtering defaults.
	DefaultMaxEvents    int
	DefaultSVIThreshold float64
	RecentYears         int

	LocationConcurrency int
	RetryMaxElapsed     time.Duration

	// Result sinks. Both are optional.
	KafkaBrokers    []string
	KafkaAuditTopic string
	AuditEnabled    bool
	ReportBucket    string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3UseSSL        bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	p := &parser{}
	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		RequestTimeout:  p.duration("REQUEST_TIMEOUT", "90s"),

		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DBTimeout:      p.duration("DB_TIMEOUT", "10s"),
		SVIReleaseYear: p.integer("SVI_RELEASE_YEAR", 2022, 2000),

		MapboxToken:         os.Getenv("MAPBOX_TOKEN"),
		MapboxTimeout:       p.duration("MAPBOX_TIMEOUT", "5s"),
		MapboxCacheSize:     p.integer("MAPBOX_CACHE_SIZE", 1000, 1),
		ReverseGeocodeLimit: p.integer("REVERSE_GEOCODE_LIMIT", 5, 0),

		WeatherAPIKey:    os.Getenv("WEATHER_API_KEY"),
		WeatherBaseURL:   sharedcfg.EnvOrDefault("WEATHER_BASE_URL", "https://weather.googleapis.com/v1"),
		WeatherTimeout:   p.duration("WEATHER_TIMEOUT", "10s"),
		MaxForecastHours: p.integer("MAX_FORECAST_HOURS", 240, 1),

		LLMProvider:           strings.ToLower(sharedcfg.EnvOrDefault("LLM_PROVIDER", ProviderOpenAI)),
		OpenAIAPIKey:          os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:         os.Getenv("OPENAI_BASE_URL"),
		GeminiAPIKey:          os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:         os.Getenv("GEMINI_BASE_URL"),
		ChatModel:             os.Getenv("CHAT_MODEL"),
		EmbeddingModel:        os.Getenv("EMBEDDING_MODEL"),
		LLMTimeout:            p.duration("LLM_TIMEOUT", "60s"),
		GenerationTemperature: p.float("GENERATION_TEMPERATURE", 0.2, 0, 2),
		EmbeddingCachePath:    os.Getenv("EMBEDDING_CACHE_PATH"),
		EmbeddingCacheSize:    p.integer("EMBEDDING_CACHE_SIZE", 512, 1),

		DefaultMaxEvents:    p.integer("DEFAULT_MAX_EVENTS", 10, 0),
		DefaultSVIThreshold: p.float("DEFAULT_SVI_THRESHOLD", 0.3, 0, 1),
		RecentYears:         p.integer("RECENT_YEARS", 10, 1),

		LocationConcurrency: p.integer("LOCATION_CONCURRENCY", 4, 1),
		RetryMaxElapsed:     p.duration("RETRY_MAX_ELAPSED", "10s"),

		KafkaBrokers:    sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaAuditTopic: sharedcfg.EnvOrDefault("KAFKA_AUDIT_TOPIC", "flood-ask-results"),
		AuditEnabled:    p.boolean("AUDIT_ENABLED", false),
		ReportBucket:    os.Getenv("REPORT_BUCKET"),
		S3Endpoint:      os.Getenv("S3_ENDPOINT"),
		S3AccessKey:     os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:     os.Getenv("S3_SECRET_KEY"),
		S3UseSSL:        p.boolean("S3_USE_SSL", true),
	}
	if p.err != nil {
		return nil, p.err
	}

	if cfg.ChatModel == "" {
		cfg.ChatModel = defaultChatModel(cfg.LLMProvider)
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = defaultEmbeddingModel(cfg.LLMProvider)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY is required when LLM_PROVIDER is openai")
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY is required when LLM_PROVIDER is gemini")
		}
	case ProviderStub:
	default:
		return fmt.Errorf("invalid LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.AuditEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("AUDIT_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if c.ReportBucket != "" && c.S3Endpoint == "" {
		return errors.New("REPORT_BUCKET is set but S3_ENDPOINT is not set")
	}
	return nil
}

// StoreEnabled reports whether a spatial store is configured.
func (c *Config) StoreEnabled() bool { return c.DatabaseURL != "" }

// GeocoderEnabled reports whether Mapbox geocoding is configured.
func (c *Config) GeocoderEnabled() bool { return c.MapboxToken != "" }

// ForecastEnabled reports whether the weather API is configured.
func (c *Config) ForecastEnabled() bool { return c.WeatherAPIKey != "" }

// ReportsEnabled reports whether reports are uploaded to object storage.
func (c *Config) ReportsEnabled() bool { return c.ReportBucket != "" }

func defaultChatModel(provider string) string {
	if provider == ProviderGemini {
		return "gemini-2.5-flash"
	}
	return "gpt-4o"
}

func defaultEmbeddingModel(provider string) string {
	if provider == ProviderGemini {
		return "gemini-embedding-001"
	}
	return "text-embedding-3-large"
}

// parser collects the first parse error so Load can read every key in one pass.
type parser struct {
	err error
}

func (p *parser) fail(key string) {
	if p.err == nil {
		p.err = errors.New("invalid " + key)
	}
}

func (p *parser) duration(key, def string) time.Duration {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		p.fail(key)
		return 0
	}
	return d
}

func (p *parser) integer(key string, def, minimum int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minimum {
		p.fail(key)
		return def
	}
	return n
}

func (p *parser) float(key string, def, lo, hi float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < lo || f > hi {
		p.fail(key)
		return def
	}
	return f
}

func (p *parser) boolean(key string, def bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(key)
		return def
	}
	return b
}
