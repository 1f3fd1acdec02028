package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/kuitang/notedesk/internal/ratelimit"
)

func validTestConfig() Config {
	return Config{
		NoEmail:         true,
		NoS3:            true,
		NoAI:            true,
		DatabasePath:    "./data/test.db",
		SessionDuration: time.Hour,
		RateLimitConfig: ratelimit.DefaultConfig,
	}
}

func TestValidate_TestModeMinimalConfigPasses(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid test-mode config, got error: %v", err)
	}
}

func TestValidate_RequiresServiceSecretsWhenNotMocked(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.NoEmail = false
	cfg.NoS3 = false
	cfg.NoAI = false

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error when real services are enabled without secrets")
	}
	msg := err.Error()
	for _, expected := range []string{
		"RESEND_API_KEY",
		"AWS_ENDPOINT_URL_S3",
		"BUCKET_NAME",
		"AI_API_KEY",
	} {
		if !strings.Contains(msg, expected) {
			t.Fatalf("expected validation error to mention %q, got: %v", expected, err)
		}
	}
}

func testValidate_RejectsMalformedDatabaseKey(t *rapid.T) {
	cfg := validTestConfig()
	if rapid.Bool().Draw(t, "wrong_length") {
		cfg.DatabaseKey = strings.Repeat("a", rapid.IntRange(1, 63).Draw(t, "key_len"))
	} else {
		cfg.DatabaseKey = strings.Repeat("z", 64)
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for malformed DATABASE_KEY")
	}
	if !strings.Contains(err.Error(), "DATABASE_KEY") {
		t.Fatalf("expected error mentioning DATABASE_KEY, got: %v", err)
	}
}

func TestValidate_RejectsMalformedDatabaseKey(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testValidate_RejectsMalformedDatabaseKey)
}

func TestValidate_AcceptsHexDatabaseKey(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.DatabaseKey = strings.Repeat("0f", 32)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadConfig_ReadsOriginsAndDefaults(t *testing.T) {
	t.Setenv("CLIENT_URL", "https://app.example.com/")
	t.Setenv("CLIENT_URLS", "https://a.example.com, https://app.example.com")
	t.Setenv("CORS_ORIGINS", "https://*.vercel.app")
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("AI_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "gsk_test")

	cfg, err := LoadConfig(Flags{NoEmail: true, NoS3: true})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := []string{"https://app.example.com", "https://a.example.com", "https://*.vercel.app"}
	if strings.Join(cfg.ClientOrigins, "|") != strings.Join(want, "|") {
		t.Fatalf("ClientOrigins = %v, want %v", cfg.ClientOrigins, want)
	}
	if cfg.ClientURL != "https://app.example.com" {
		t.Fatalf("ClientURL = %q", cfg.ClientURL)
	}
	if cfg.AIAPIKey != "gsk_test" {
		t.Fatalf("AIAPIKey fallback to GROQ_API_KEY failed: %q", cfg.AIAPIKey)
	}
	if cfg.AIModel != defaultAIModel || cfg.ListenAddr != defaultListenAddr {
		t.Fatalf("defaults not applied: model=%q addr=%q", cfg.AIModel, cfg.ListenAddr)
	}
}

func TestLoadConfig_AddrFlagOverridesEnv(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	cfg, err := LoadConfig(Flags{NoEmail: true, NoS3: true, NoAI: true, Addr: ":4000"})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenAddr != ":4000" {
		t.Fatalf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.BaseURL != "http://localhost:4000" && os.Getenv("BASE_URL") == "" {
		t.Fatalf("BaseURL = %q", cfg.BaseURL)
	}
}

func TestLoadConfig_TrustProxyOffUnlessConfigured(t *testing.T) {
	t.Setenv("TRUSTED_PROXY", "")
	cfg, err := LoadConfig(Flags{NoEmail: true, NoS3: true, NoAI: true})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.TrustProxy {
		t.Fatal("TrustProxy on by default")
	}

	t.Setenv("TRUSTED_PROXY", "true")
	if cfg, _ = LoadConfig(Flags{NoEmail: true, NoS3: true, NoAI: true}); !cfg.TrustProxy {
		t.Fatal("TRUSTED_PROXY=true ignored")
	}

	t.Setenv("TRUSTED_PROXY", "maybe")
	if cfg, _ = LoadConfig(Flags{NoEmail: true, NoS3: true, NoAI: true, TrustProxy: true}); !cfg.TrustProxy {
		t.Fatal("--trust-proxy ignored")
	}
}

func TestLoadDotEnv_MissingFileIsNotAnError(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("LoadDotEnv on missing file: %v", err)
	}
}

func TestLoadDotEnv_DoesNotOverrideExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("CFG_DOTENV_A=from-file\nCFG_DOTENV_B=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CFG_DOTENV_A", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("CFG_DOTENV_B") })

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("CFG_DOTENV_A"); got != "from-env" {
		t.Fatalf("existing var overridden: %q", got)
	}
	if got := os.Getenv("CFG_DOTENV_B"); got != "from-file" {
		t.Fatalf("file var not loaded: %q", got)
	}
}

func TestHelperParsers_DefaultOnBadInput(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "not-an-int")
	t.Setenv("CFG_TEST_FLOAT", "not-a-float")
	t.Setenv("CFG_TEST_DUR", "not-a-duration")
	t.Setenv("CFG_TEST_BOOL", "not-a-bool")
	if got := parseBoolOrDefault("CFG_TEST_BOOL", true); !got {
		t.Fatal("parseBoolOrDefault fallback mismatch: got=false want=true")
	}
	if got := parseIntOrDefault("CFG_TEST_INT", 7); got != 7 {
		t.Fatalf("parseIntOrDefault fallback mismatch: got=%d want=7", got)
	}
	if got := parseFloat64OrDefault("CFG_TEST_FLOAT", 3.5); got != 3.5 {
		t.Fatalf("parseFloat64OrDefault fallback mismatch: got=%v want=3.5", got)
	}
	if got := parseDurationOrDefault("CFG_TEST_DUR", 2*time.Minute); got != 2*time.Minute {
		t.Fatalf("parseDurationOrDefault fallback mismatch: got=%v want=%v", got, 2*time.Minute)
	}
}

func TestGetEnvOrDefault_TrimsWhitespace(t *testing.T) {
	key := "CFG_TEST_STR_" + strconv.FormatInt(time.Now().UnixNano(), 10)
	t.Setenv(key, "   value   ")
	if got := getEnvOrDefault(key, "fallback"); got != "value" {
		t.Fatalf("getEnvOrDefault trim mismatch: got=%q want=%q", got, "value")
	}
}

func testParseOrigins_DedupesAndTrims(t *testing.T) {
	origins := rapid.SliceOfN(rapid.StringMatching(`https://[a-z]{1,8}\.example\.com`), 1, 6).Draw(t, "origins")
	joined := strings.Join(origins, " , ") + ",," + origins[0] + "/"

	got := parseOrigins(joined)
	seen := map[string]bool{}
	for _, o := range got {
		if seen[o] {
			t.Fatalf("duplicate origin %q in %v", o, got)
		}
		seen[o] = true
		if strings.HasSuffix(o, "/") || strings.TrimSpace(o) != o || o == "" {
			t.Fatalf("untrimmed origin %q", o)
		}
	}
	for _, o := range origins {
		if !seen[o] {
			t.Fatalf("missing origin %q in %v", o, got)
		}
	}
}

func TestParseOrigins_DedupesAndTrims(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testParseOrigins_DedupesAndTrims)
}
