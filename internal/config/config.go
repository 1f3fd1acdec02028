// Package config loads notedesk configuration from CLI flags, environment
// variables and an optional .env file, validates it, and fills defaults.
//
// CLI flags control which external services are mocked (--no-email, --no-s3, --no-ai, --test).
// Environment variables provide secrets and service endpoints.
package config

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kuitang/notedesk/internal/ratelimit"
)

const (
	defaultS3Region   = "auto"
	defaultAIBaseURL  = "https://api.groq.com/openai/v1"
	defaultAIModel    = "llama-3.1-8b-instant"
	defaultListenAddr = ":3001"
)

// DefaultClientOrigins are allowed when no CLIENT_URL(S)/CORS_ORIGINS is set.
var DefaultClientOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}

// Flags holds CLI flag values.
type Flags struct {
	NoEmail bool
	NoS3    bool
	NoAI    bool
	Addr    string
	// TrustProxy forces Config.TrustProxy on; otherwise TRUSTED_PROXY decides.
	TrustProxy bool
}

// Config holds all application configuration.
type Config struct {
	// Server settings
	ListenAddr string
	BaseURL    string
	LogLevel   string
	// TrustProxy takes the client IP from X-Forwarded-For. Only safe behind
	// a proxy that overwrites the header.
	TrustProxy bool

	// Browser clients allowed by CORS; entries may contain '*' wildcards.
	ClientOrigins []string
	// ClientURL is where password reset links point.
	ClientURL string

	// Database
	DatabasePath    string
	DatabaseKey     string        // optional, 64 hex characters; enables SQLCipher encryption
	SessionDuration time.Duration // How long sessions remain valid

	RateLimitConfig ratelimit.Config

	// Mock service flags (controlled by CLI flags, not env vars)
	NoEmail bool
	NoS3    bool
	NoAI    bool

	// Resend Email
	ResendAPIKey    string
	ResendFromEmail string

	// S3-compatible image storage
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
	AWSBucketName      string // BUCKET_NAME
	AWSPublicURL       string // S3_PUBLIC_URL

	// OpenAI-compatible chat completions (Groq by default)
	AIAPIKey  string
	AIBaseURL string
	AIModel   string
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// LoadDotEnv loads .env into the process environment. A missing file is not an error;
// existing variables are never overridden.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ParseFlags registers and parses the mock flags, --test, --trust-proxy and --addr.
func ParseFlags() Flags {
	var f Flags
	var testMode bool
	flag.BoolVar(&f.NoEmail, "no-email", false, "Use mock email service (logs emails, writes outbox)")
	flag.BoolVar(&f.NoS3, "no-s3", false, "Use in-memory S3 for note and task images")
	flag.BoolVar(&f.NoAI, "no-ai", false, "Use local AI assistant instead of the chat completions API")
	flag.BoolVar(&testMode, "test", false, "Shorthand for --no-email --no-s3 --no-ai")
	flag.BoolVar(&f.TrustProxy, "trust-proxy", false, "Take client IPs from X-Forwarded-For (overrides TRUSTED_PROXY env var)")
	flag.StringVar(&f.Addr, "addr", "", "Listen address (default :3001, overrides LISTEN_ADDR env var)")
	flag.Parse()

	if testMode {
		f.NoEmail = true
		f.NoS3 = true
		f.NoAI = true
	}
	return f
}

// LoadConfig loads configuration from environment variables and CLI flag values.
func LoadConfig(flags Flags) (*Config, error) {
	cfg := &Config{
		NoEmail: flags.NoEmail,
		NoS3:    flags.NoS3,
		NoAI:    flags.NoAI,
	}

	cfg.ListenAddr = getEnvOrDefault("LISTEN_ADDR", defaultListenAddr)
	if flags.Addr != "" {
		cfg.ListenAddr = flags.Addr
	}
	cfg.BaseURL = strings.TrimRight(getEnvOrDefault("BASE_URL", "http://localhost"+cfg.ListenAddr), "/")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.TrustProxy = flags.TrustProxy || parseBoolOrDefault("TRUSTED_PROXY", false)

	cfg.ClientOrigins = parseOrigins(os.Getenv("CLIENT_URL"), os.Getenv("CLIENT_URLS"), os.Getenv("CORS_ORIGINS"))
	if len(cfg.ClientOrigins) == 0 {
		cfg.ClientOrigins = append([]string(nil), DefaultClientOrigins...)
	}
	cfg.ClientURL = strings.TrimRight(getEnvOrDefault("CLIENT_URL", DefaultClientOrigins[0]), "/")

	cfg.DatabasePath = getEnvOrDefault("DATABASE_PATH", "./data/notedesk.db")
	cfg.DatabaseKey = getEnvOrDefault("DATABASE_KEY", "")
	cfg.SessionDuration = parseDurationOrDefault("SESSION_DURATION", 7*24*time.Hour)

	cfg.RateLimitConfig = ratelimit.Config{
		UserRPS:         parseFloat64OrDefault("RATE_LIMIT_RPS", ratelimit.DefaultConfig.UserRPS),
		UserBurst:       parseIntOrDefault("RATE_LIMIT_BURST", ratelimit.DefaultConfig.UserBurst),
		AnonRPS:         parseFloat64OrDefault("RATE_LIMIT_AUTH_RPS", ratelimit.DefaultConfig.AnonRPS),
		AnonBurst:       parseIntOrDefault("RATE_LIMIT_AUTH_BURST", ratelimit.DefaultConfig.AnonBurst),
		CleanupInterval: parseDurationOrDefault("RATE_LIMIT_CLEANUP_INTERVAL", time.Hour),
	}

	cfg.ResendAPIKey = getEnvOrDefault("RESEND_API_KEY", "")
	cfg.ResendFromEmail = getEnvOrDefault("RESEND_FROM_EMAIL", "noreply@notedesk.app")

	cfg.AWSEndpointS3 = getEnvOrDefault("AWS_ENDPOINT_URL_S3", "")
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultS3Region)
	cfg.AWSAccessKeyID = getEnvOrDefault("AWS_ACCESS_KEY_ID", "")
	cfg.AWSSecretAccessKey = getEnvOrDefault("AWS_SECRET_ACCESS_KEY", "")
	cfg.AWSBucketName = getEnvOrDefault("BUCKET_NAME", "")
	cfg.AWSPublicURL = getEnvOrDefault("S3_PUBLIC_URL", "")
	if cfg.AWSPublicURL == "" && cfg.AWSEndpointS3 != "" && cfg.AWSBucketName != "" {
		cfg.AWSPublicURL = strings.TrimRight(cfg.AWSEndpointS3, "/") + "/" + cfg.AWSBucketName
	}

	cfg.AIAPIKey = getEnvOrDefault("AI_API_KEY", getEnvOrDefault("GROQ_API_KEY", ""))
	cfg.AIBaseURL = getEnvOrDefault("AI_BASE_URL", defaultAIBaseURL)
	cfg.AIModel = getEnvOrDefault("AI_MODEL", defaultAIModel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
// When a service is not mocked, its secrets are required.
func (c *Config) Validate() error {
	var errs []string

	if !c.NoEmail && c.ResendAPIKey == "" {
		errs = append(errs, "RESEND_API_KEY is required (set env var or use --no-email)")
	}

	if !c.NoS3 {
		if c.AWSEndpointS3 == "" {
			errs = append(errs, "AWS_ENDPOINT_URL_S3 is required (set env var or use --no-s3)")
		}
		if c.AWSBucketName == "" {
			errs = append(errs, "BUCKET_NAME is required (set env var or use --no-s3)")
		}
		if c.AWSAccessKeyID == "" {
			errs = append(errs, "AWS_ACCESS_KEY_ID is required (set env var or use --no-s3)")
		}
		if c.AWSSecretAccessKey == "" {
			errs = append(errs, "AWS_SECRET_ACCESS_KEY is required (set env var or use --no-s3)")
		}
	}

	if !c.NoAI && c.AIAPIKey == "" {
		errs = append(errs, "AI_API_KEY (or GROQ_API_KEY) is required (set env var or use --no-ai)")
	}

	if c.DatabasePath == "" {
		errs = append(errs, "DATABASE_PATH must not be empty")
	}
	if c.DatabaseKey != "" {
		if _, err := hex.DecodeString(c.DatabaseKey); err != nil || len(c.DatabaseKey) != 64 {
			errs = append(errs, "DATABASE_KEY must be 64 hex characters (generate with: openssl rand -hex 32)")
		}
	}

	if c.SessionDuration <= 0 {
		errs = append(errs, "SESSION_DURATION must be positive")
	}
	if c.RateLimitConfig.UserRPS <= 0 {
		errs = append(errs, "RATE_LIMIT_RPS must be positive")
	}
	if c.RateLimitConfig.UserBurst <= 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be positive")
	}
	if c.RateLimitConfig.AnonRPS <= 0 {
		errs = append(errs, "RATE_LIMIT_AUTH_RPS must be positive")
	}
	if c.RateLimitConfig.AnonBurst <= 0 {
		errs = append(errs, "RATE_LIMIT_AUTH_BURST must be positive")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// IsDevelopment returns true if any mock services are enabled.
func (c *Config) IsDevelopment() bool {
	return c.NoEmail || c.NoS3 || c.NoAI
}

// RequireSecureCookies returns false for localhost development URLs.
func (c *Config) RequireSecureCookies() bool {
	return !strings.HasPrefix(c.BaseURL, "http://localhost") &&
		!strings.HasPrefix(c.BaseURL, "http://127.0.0.1")
}

// PrintStartupSummary prints a human-readable summary of the configuration to stderr.
func (c *Config) PrintStartupSummary() {
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "notedesk server starting...")

	if c.NoEmail {
		fmt.Fprintln(os.Stderr, "  Email:    Mock (--no-email)")
	} else {
		fmt.Fprintf(os.Stderr, "  Email:    Resend (real, from: %s)\n", c.ResendFromEmail)
	}

	if c.NoS3 {
		fmt.Fprintln(os.Stderr, "  Images:   Mock S3 (--no-s3)")
	} else {
		fmt.Fprintf(os.Stderr, "  Images:   S3 (real, endpoint: %s)\n", c.AWSEndpointS3)
	}

	if c.NoAI {
		fmt.Fprintln(os.Stderr, "  AI:       Local (--no-ai)")
	} else {
		fmt.Fprintf(os.Stderr, "  AI:       %s (model: %s)\n", c.AIBaseURL, c.AIModel)
	}

	if c.DatabaseKey != "" {
		fmt.Fprintf(os.Stderr, "  Database: %s (encrypted)\n", c.DatabasePath)
	} else {
		fmt.Fprintf(os.Stderr, "  Database: %s\n", c.DatabasePath)
	}

	fmt.Fprintf(os.Stderr, "  Listen:   %s\n", c.ListenAddr)
	fmt.Fprintf(os.Stderr, "  Base:     %s\n", c.BaseURL)
	fmt.Fprintf(os.Stderr, "  Origins:  %s\n", strings.Join(c.ClientOrigins, ", "))
	fmt.Fprintln(os.Stderr, "")
}

// parseOrigins merges comma-separated origin lists, dropping blanks, trailing
// slashes, and duplicates while keeping first-seen order.
func parseOrigins(lists ...string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, raw := range strings.Split(list, ",") {
			origin := strings.TrimRight(strings.TrimSpace(raw), "/")
			if origin == "" || seen[origin] {
				continue
			}
			seen[origin] = true
			out = append(out, origin)
		}
	}
	return out
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// MustLoadConfig loads configuration and panics if validation fails.
func MustLoadConfig(flags Flags) *Config {
	cfg, err := LoadConfig(flags)
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			panic(fmt.Sprintf("Configuration validation failed:\n  - %s", strings.Join(validationErr.Errors, "\n  - ")))
		}
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	return cfg
}
