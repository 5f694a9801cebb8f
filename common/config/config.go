// Package config holds process-wide settings sourced from environment
// variables. Values are read once at boot; anything operators may change at
// runtime lives in the settings table instead.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var (
	// Port the gateway listens on.
	Port = EnvString("PORT", "8787")
	// DebugEnabled turns on verbose request/response logging.
	DebugEnabled = EnvBool("DEBUG", false)

	// SQLDSN selects the record store. Empty means a local sqlite file.
	SQLDSN = EnvString("SQL_DSN", "")
	// SQLitePath is used when SQL_DSN is empty.
	SQLitePath = EnvString("SQLITE_PATH", "codegate.db")
	// RedisConnString enables the shared redis cache when non-empty.
	RedisConnString = EnvString("REDIS_CONN_STRING", "")

	// ProxyAPIKey, when set, wins over the stored proxy key and tenant keys.
	ProxyAPIKey = EnvString("PROXY_API_KEY", "")

	// GuardrailKeyHex optionally pins the 32-byte guardrail key (hex encoded).
	GuardrailKeyHex = EnvString("GUARDRAIL_KEY", "")

	// RateLimitWindow is the sliding window used by the per-account limiter.
	RateLimitWindow = 60 * time.Second

	// CooldownBaseSeconds and CooldownMaxSeconds bound the exponential backoff
	// applied to failing accounts: min(base*2^(n-1), max).
	CooldownBaseSeconds = 15
	CooldownMaxSeconds  = 300

	// OAuthRefreshWindow refreshes tokens that expire within this duration.
	OAuthRefreshWindow = 5 * time.Minute

	// ClaudeCredentialsFile is the host credential file consulted when an
	// Anthropic OAuth account starts getting 401s.
	ClaudeCredentialsFile = EnvString("CLAUDE_CREDENTIALS_FILE", defaultClaudeCredentialsFile())

	// ModelCatalogProbeTimeout bounds upstream model-catalog probes.
	ModelCatalogProbeTimeout = 10 * time.Second

	// DefaultMaxTokens is applied when an OpenAI-format request carries neither
	// max_tokens nor max_completion_tokens.
	DefaultMaxTokens = 4096

	// DefaultModel is assumed when the client body omits a model.
	DefaultModel = EnvString("DEFAULT_MODEL", "claude-sonnet-4-20250514")

	// ReverseMapCapacity caps the guardrail reverse map (LRU evicted).
	ReverseMapCapacity = EnvInt("GUARDRAIL_REVERSE_MAP_CAP", 8192)

	// AnthropicVersion is the default Anthropic-Version header value.
	AnthropicVersion = "2023-06-01"
)

func defaultClaudeCredentialsFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".claude", ".credentials.json")
}

// EnvString returns the environment value for key or def when unset.
func EnvString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// EnvBool parses a boolean environment value, returning def on absence or
// parse failure.
func EnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// EnvInt parses an integer environment value, returning def on absence or
// parse failure.
func EnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
