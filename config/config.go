package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Fetch     FetchConfig
	Render    RenderConfig
	Audit     AuditConfig
	Aggregate AggregateConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Store     StoreConfig
	Log       LogConfig
	Scoring   Scoring
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance used by the render fallback.
type BrowserConfig struct {
	// Enabled toggles the render fallback. Without a browser the engine
	// audits static HTML only.
	Enabled bool // default: true

	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent renders).
	MaxPages int // default: 4

	// DefaultProxy is the default proxy URL for all requests.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string
}

// FetchConfig controls the static page fetcher.
type FetchConfig struct {
	// Timeout is the per-request deadline.
	Timeout time.Duration // default: 15s

	// MaxRetries is the number of retries after the first attempt for
	// transient failures.
	MaxRetries int // default: 3

	// BackoffBase is the first retry delay; each retry doubles it.
	BackoffBase time.Duration // default: 500ms

	// MaxBodyBytes caps the response body size.
	MaxBodyBytes int64 // default: 10 MB

	// DomainRPS and DomainBurst bound requests per retailer domain.
	DomainRPS   float64 // default: 1
	DomainBurst int     // default: 2
}

// RenderConfig controls the JavaScript render fallback.
type RenderConfig struct {
	// Timeout is the deadline for one render (navigation + settle + extract).
	Timeout time.Duration // default: 30s

	// SettleTimeout bounds the wait for network idle / DOM stability.
	SettleTimeout time.Duration // default: 10s

	// Stealth injects anti-bot-detection evasions before navigation.
	Stealth bool // default: true

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string

	// MaxPageUses is how many renders a browser tab serves before it is
	// closed and replaced. 0 reuses tabs until shutdown.
	MaxPageUses int // default: 25
}

// AuditConfig controls batch processing.
type AuditConfig struct {
	// Concurrency is the number of URLs audited in parallel.
	Concurrency int // default: 8

	// MaxBatchSize is the largest batch accepted by the API.
	MaxBatchSize int // default: 500
}

// AggregateConfig controls domain-level composition.
type AggregateConfig struct {
	// ShareOfAnswerFile is a CSV of externally measured share-of-answer
	// values (key/domain/brand, value/score/soa, optional category).
	ShareOfAnswerFile string

	// CategoryWeighted averages per-category composites instead of pooling
	// every record of a domain.
	CategoryWeighted bool // default: false
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting of the API.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// CacheConfig controls the policy-page verdict cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached policy pages.
	MaxEntries int // default: 1000

	// TTL is how long a policy page verdict is reused.
	TTL time.Duration // default: 1h
}

// StoreConfig controls audit record persistence.
type StoreConfig struct {
	// Path is the SQLite database file. Empty disables persistence.
	Path string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
// SHELFSCAN_WEIGHTS_FILE, when set, overrides the default scoring table.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: envOr("SHELFSCAN_HOST", "0.0.0.0"),
			Port: envIntOr("SHELFSCAN_PORT", 8080),
			Mode: envOr("SHELFSCAN_MODE", "release"),
		},
		Browser: BrowserConfig{
			Enabled:      envBoolOr("SHELFSCAN_RENDER", true),
			Headless:     envBoolOr("SHELFSCAN_HEADLESS", true),
			MaxPages:     envIntOr("SHELFSCAN_MAX_PAGES", 4),
			DefaultProxy: os.Getenv("SHELFSCAN_PROXY"),
			NoSandbox:    envBoolOr("SHELFSCAN_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("SHELFSCAN_BROWSER_BIN"),
		},
		Fetch: FetchConfig{
			Timeout:      envDurationOr("SHELFSCAN_FETCH_TIMEOUT", 15*time.Second),
			MaxRetries:   envIntOr("SHELFSCAN_FETCH_RETRIES", 3),
			BackoffBase:  envDurationOr("SHELFSCAN_FETCH_BACKOFF", 500*time.Millisecond),
			MaxBodyBytes: int64(envIntOr("SHELFSCAN_MAX_BODY_BYTES", 10<<20)),
			DomainRPS:    envFloatOr("SHELFSCAN_DOMAIN_RPS", 1.0),
			DomainBurst:  envIntOr("SHELFSCAN_DOMAIN_BURST", 2),
		},
		Render: RenderConfig{
			Timeout:       envDurationOr("SHELFSCAN_RENDER_TIMEOUT", 30*time.Second),
			SettleTimeout: envDurationOr("SHELFSCAN_RENDER_SETTLE", 10*time.Second),
			Stealth:       envBoolOr("SHELFSCAN_STEALTH", true),
			BlockedResourceTypes: envSliceOr("SHELFSCAN_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
			MaxPageUses: envIntOr("SHELFSCAN_RENDER_PAGE_USES", 25),
		},
		Audit: AuditConfig{
			Concurrency:  envIntOr("SHELFSCAN_CONCURRENCY", 8),
			MaxBatchSize: envIntOr("SHELFSCAN_MAX_BATCH", 500),
		},
		Aggregate: AggregateConfig{
			ShareOfAnswerFile: os.Getenv("SHELFSCAN_SOA_FILE"),
			CategoryWeighted:  envBoolOr("SHELFSCAN_CATEGORY_WEIGHTED", false),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("SHELFSCAN_AUTH_ENABLED", true),
			APIKeys: envSliceOr("SHELFSCAN_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("SHELFSCAN_RATE_RPS", 5.0),
			Burst:             envIntOr("SHELFSCAN_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("SHELFSCAN_CACHE_MAX_ENTRIES", 1000),
			TTL:        envDurationOr("SHELFSCAN_CACHE_TTL", time.Hour),
		},
		Store: StoreConfig{
			Path: os.Getenv("SHELFSCAN_DB_PATH"),
		},
		Log: LogConfig{
			Level:  envOr("SHELFSCAN_LOG_LEVEL", "info"),
			Format: envOr("SHELFSCAN_LOG_FORMAT", "json"),
		},
		Scoring: DefaultScoring(),
	}

	if path := os.Getenv("SHELFSCAN_WEIGHTS_FILE"); path != "" {
		scoring, err := LoadScoringFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Scoring = scoring
	}
	if keywords := envSliceOr("SHELFSCAN_POLICY_KEYWORDS", nil); len(keywords) > 0 {
		cfg.Scoring.PolicyKeywords = keywords
	}
	if err := cfg.Scoring.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
