// Package config holds operator-level configuration for a masquerade
// installation: where alias mappings are stored and how they are sealed,
// which AI backend detects free-form entities, which recognizers and
// exclusions apply, and how long idle scopes are retained.
//
// Values come from (highest precedence first) MASQUERADE_* environment
// variables, a .env file in the working directory, masquerade.config.yaml
// in ./ or ~/.masquerade, and the defaults below.
//
// The AI API key may also be given as TINFOIL_API_KEY or OPENAI_API_KEY
// for single-user setups. Keys are never logged.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dativo-io/masquerade/internal/cryptoutil"
)

// Viper keys. Each maps to an env var with the MASQUERADE_ prefix
// (e.g. "store_key" → MASQUERADE_STORE_KEY) and to a YAML field
// in masquerade.config.yaml (e.g. store_key: "...").
const (
	KeyDataDir           = "data_dir"
	KeyStoreBackend      = "store_backend"
	KeyStoreKey          = "store_key"
	KeyAliasFormat       = "alias_format"
	KeyPartialMentions   = "partial_mentions"
	KeyAIEnabled         = "ai_enabled"
	KeyAIProvider        = "ai_provider"
	KeyAIBaseURL         = "ai_base_url"
	KeyAIAPIKey          = "ai_api_key"
	KeyAIModel           = "ai_model"
	KeyAICodeModel       = "ai_code_model"
	KeyAIMultiModel      = "ai_multilingual_model"
	KeyAITimeout         = "ai_timeout"
	KeyAIMaxBytes        = "ai_max_bytes"
	KeyAIRPM             = "ai_rpm"
	KeyAICallerRPM       = "ai_caller_rpm"
	KeyBreakerThreshold  = "breaker_threshold"
	KeyBreakerCooldown   = "breaker_cooldown"
	KeyPatternFile       = "pattern_file"
	KeyMinScore          = "min_score"
	KeyExclusions        = "exclusions"
	KeyEnabledEntities   = "enabled_entities"
	KeyDisabledEntities  = "disabled_entities"
	KeyOverlapThreshold  = "overlap_threshold"
	KeyTieBreak          = "tiebreak"
	KeyTieBreakPolicy    = "tiebreak_policy"
	KeyOutputSuffix      = "output_suffix"
	KeyHighlightSuffix   = "highlight_suffix"
	KeyPageWorkers       = "page_workers"
	KeyMaxFileMB         = "max_file_mb"
	KeyScopeTTL          = "scope_ttl"
	KeyRetentionSchedule = "retention_schedule"
	KeyServerAddr        = "server_addr"
	KeyAPIKeys           = "api_keys"
	KeyTenantRPS         = "tenant_rps"
)

// Defaults that do NOT involve key material. The store key has no baked-in
// default: when unset a deterministic per-machine key is derived and a
// warning is logged.
const (
	DefaultStoreBackend      = "sqlite"
	DefaultAIProvider        = "tinfoil"
	DefaultTinfoilBaseURL    = "https://inference.tinfoil.sh/v1"
	DefaultOllamaBaseURL     = "http://localhost:11434"
	DefaultAIModel           = "deepseek-r1-70b"
	DefaultAICodeModel       = "qwen2-5-72b"
	DefaultAIMultiModel      = "llama3-3-70b"
	DefaultAITimeout         = 30 * time.Second
	DefaultAIMaxBytes        = 64 << 10
	DefaultAIRPM             = 60
	DefaultBreakerThreshold  = 5
	DefaultBreakerCooldown   = 60 * time.Second
	DefaultOverlapThreshold  = 0.5
	DefaultPageWorkers       = 4
	DefaultMaxFileMB         = 50
	DefaultScopeTTL          = 24 * time.Hour
	DefaultRetentionSchedule = "0 * * * *"
	DefaultServerAddr        = ":8080"
)

// ErrInvalidConfig wraps every validation failure from Load.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds resolved operator-level configuration for a masquerade process.
type Config struct {
	DataDir         string // Base directory for all state (~/.masquerade)
	StoreBackend    string // memory, sqlite or bolt
	StoreKey        string // Master key for sealing stored values (32 bytes or 64 hex)
	AliasFormat     string // Alias template; empty means [{TYPE}_{N}]
	PartialMentions bool   // Fold "Smith" into an existing "John Smith"

	AIEnabled           bool
	AIProvider          string // tinfoil, openai or ollama
	AIBaseURL           string
	AIAPIKey            string
	AIModel             string
	AICodeModel         string
	AIMultilingualModel string
	AITimeout           time.Duration
	AIMaxBytes          int
	AIRatePerMinute     int
	AICallerRatePerMin  int
	BreakerThreshold    int
	BreakerCooldown     time.Duration

	PatternFile      string
	MinScore         float64
	Exclusions       []string
	EnabledEntities  []string
	DisabledEntities []string
	OverlapThreshold float64
	TieBreak         map[string]string // entity type -> "pattern" | "ai"
	TieBreakPolicy   string            // Rego file; overrides TieBreak when set

	OutputSuffix    string
	HighlightSuffix string
	PageWorkers     int
	MaxFileMB       int

	ScopeTTL          time.Duration // Zero disables the retention janitor
	RetentionSchedule string

	ServerAddr string
	APIKeys    map[string]string // API key -> tenant
	TenantRPS  int               // per-tenant requests per second; 0 means no limit

	usingDefaultStoreKey bool
	apiKeySource         string
}

// UsingDefaultStoreKey returns true if the store key was derived (not set explicitly).
func (c *Config) UsingDefaultStoreKey() bool {
	return c.usingDefaultStoreKey
}

// APIKeySource names where the AI API key came from ("" when unset).
func (c *Config) APIKeySource() string {
	return c.apiKeySource
}

// AIAvailable reports whether AI detection is enabled and has what it needs
// to reach its provider.
func (c *Config) AIAvailable() bool {
	if !c.AIEnabled {
		return false
	}
	return c.AIProvider == "ollama" || c.AIAPIKey != ""
}

// StoreDBPath returns the alias store path for the configured backend.
func (c *Config) StoreDBPath() string {
	switch c.StoreBackend {
	case "bolt", "bbolt":
		return filepath.Join(c.DataDir, "aliases.bolt")
	default:
		return filepath.Join(c.DataDir, "aliases.db")
	}
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// WarnIfDefaultKeys logs a warning when the store key is not explicitly set.
// Suppressed when MASQUERADE_QUICKSTART=1 or true, and for the memory backend
// which never writes values to disk.
func (c *Config) WarnIfDefaultKeys() {
	if isQuickstart() || c.StoreBackend == "memory" {
		return
	}
	if c.usingDefaultStoreKey {
		log.Warn().Msg("Using generated default MASQUERADE_STORE_KEY; set via env var or config file for production")
	}
}

func isQuickstart() bool {
	v := os.Getenv("MASQUERADE_QUICKSTART")
	return v == "1" || v == "true" || v == "TRUE"
}

func init() {
	viper.SetEnvPrefix("MASQUERADE")
	viper.AutomaticEnv()
	setDefaults()
}

func setDefaults() {
	viper.SetDefault(KeyStoreBackend, DefaultStoreBackend)
	viper.SetDefault(KeyAIEnabled, true)
	viper.SetDefault(KeyAIProvider, DefaultAIProvider)
	viper.SetDefault(KeyAIModel, DefaultAIModel)
	viper.SetDefault(KeyAICodeModel, DefaultAICodeModel)
	viper.SetDefault(KeyAIMultiModel, DefaultAIMultiModel)
	viper.SetDefault(KeyAITimeout, DefaultAITimeout)
	viper.SetDefault(KeyAIMaxBytes, DefaultAIMaxBytes)
	viper.SetDefault(KeyAIRPM, DefaultAIRPM)
	viper.SetDefault(KeyBreakerThreshold, DefaultBreakerThreshold)
	viper.SetDefault(KeyBreakerCooldown, DefaultBreakerCooldown)
	viper.SetDefault(KeyOverlapThreshold, DefaultOverlapThreshold)
	viper.SetDefault(KeyOutputSuffix, "_redacted")
	viper.SetDefault(KeyHighlightSuffix, "_highlighted")
	viper.SetDefault(KeyPageWorkers, DefaultPageWorkers)
	viper.SetDefault(KeyMaxFileMB, DefaultMaxFileMB)
	viper.SetDefault(KeyScopeTTL, DefaultScopeTTL)
	viper.SetDefault(KeyRetentionSchedule, DefaultRetentionSchedule)
	viper.SetDefault(KeyServerAddr, DefaultServerAddr)
}

// LoadDotEnv loads a .env file from the working directory when present.
// Variables already set in the environment are not overridden.
func LoadDotEnv() {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("loaded .env")
	}
}

// Load reads configuration from Viper (which merges env vars, config
// file, and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:             resolveDataDir(),
		StoreBackend:        strings.ToLower(strings.TrimSpace(viper.GetString(KeyStoreBackend))),
		StoreKey:            viper.GetString(KeyStoreKey),
		AliasFormat:         viper.GetString(KeyAliasFormat),
		PartialMentions:     viper.GetBool(KeyPartialMentions),
		AIEnabled:           viper.GetBool(KeyAIEnabled),
		AIProvider:          strings.ToLower(strings.TrimSpace(viper.GetString(KeyAIProvider))),
		AIBaseURL:           viper.GetString(KeyAIBaseURL),
		AIModel:             viper.GetString(KeyAIModel),
		AICodeModel:         viper.GetString(KeyAICodeModel),
		AIMultilingualModel: viper.GetString(KeyAIMultiModel),
		AITimeout:           viper.GetDuration(KeyAITimeout),
		AIMaxBytes:          viper.GetInt(KeyAIMaxBytes),
		AIRatePerMinute:     viper.GetInt(KeyAIRPM),
		AICallerRatePerMin:  viper.GetInt(KeyAICallerRPM),
		BreakerThreshold:    viper.GetInt(KeyBreakerThreshold),
		BreakerCooldown:     viper.GetDuration(KeyBreakerCooldown),
		PatternFile:         viper.GetString(KeyPatternFile),
		MinScore:            viper.GetFloat64(KeyMinScore),
		Exclusions:          stringList(KeyExclusions),
		EnabledEntities:     stringList(KeyEnabledEntities),
		DisabledEntities:    stringList(KeyDisabledEntities),
		OverlapThreshold:    viper.GetFloat64(KeyOverlapThreshold),
		TieBreak:            stringMap(KeyTieBreak, "="),
		TieBreakPolicy:      viper.GetString(KeyTieBreakPolicy),
		OutputSuffix:        viper.GetString(KeyOutputSuffix),
		HighlightSuffix:     viper.GetString(KeyHighlightSuffix),
		PageWorkers:         viper.GetInt(KeyPageWorkers),
		MaxFileMB:           viper.GetInt(KeyMaxFileMB),
		ScopeTTL:            viper.GetDuration(KeyScopeTTL),
		RetentionSchedule:   viper.GetString(KeyRetentionSchedule),
		ServerAddr:          viper.GetString(KeyServerAddr),
		APIKeys:             stringMap(KeyAPIKeys, ":"),
		TenantRPS:           viper.GetInt(KeyTenantRPS),
	}

	cfg.AIAPIKey, cfg.apiKeySource = resolveAPIKey()
	if cfg.AIBaseURL == "" {
		cfg.AIBaseURL = defaultBaseURL(cfg.AIProvider)
	}

	if cfg.StoreKey == "" {
		cfg.StoreKey = deriveDefaultKey(cfg.DataDir, "alias-store-seal")
		cfg.usingDefaultStoreKey = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".masquerade"
	}
	return filepath.Join(home, ".masquerade")
}

func resolveAPIKey() (key, source string) {
	if k := viper.GetString(KeyAIAPIKey); k != "" {
		return k, "MASQUERADE_AI_API_KEY"
	}
	for _, env := range []string{"TINFOIL_API_KEY", "OPENAI_API_KEY"} {
		if k := os.Getenv(env); k != "" {
			return k, env
		}
	}
	return "", ""
}

func defaultBaseURL(provider string) string {
	switch provider {
	case "tinfoil":
		return DefaultTinfoilBaseURL
	case "ollama":
		return DefaultOllamaBaseURL
	default:
		return ""
	}
}

// stringList reads a list given either as a YAML sequence or as a
// comma-separated env var.
func stringList(key string) []string {
	var raw []string
	if s, ok := viper.Get(key).(string); ok {
		raw = strings.Split(s, ",")
	} else {
		raw = viper.GetStringSlice(key)
	}
	var out []string
	for _, v := range raw {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// stringMap reads a map given either as a YAML mapping or as
// comma-separated "k<sep>v" pairs in an env var.
func stringMap(key, sep string) map[string]string {
	if _, ok := viper.Get(key).(string); !ok {
		if m := viper.GetStringMapString(key); len(m) > 0 {
			return m
		}
	}
	out := make(map[string]string)
	for _, pair := range stringList(key) {
		k, v, ok := strings.Cut(pair, sep)
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

// deriveDefaultKey produces a deterministic 32-byte fallback key from the
// data directory path and a salt, hex encoded. It is NOT a secret; it exists
// so `masquerade redact` works out of the box while still sealing stored
// values with a per-machine-unique key.
func deriveDefaultKey(dataDir, salt string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("masquerade:%s:%s", dataDir, salt)))
	return hex.EncodeToString(h[:])
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case "memory", "sqlite", "bolt", "bbolt":
	default:
		return fmt.Errorf("store_backend must be memory, sqlite or bolt (got %q)", c.StoreBackend)
	}
	if err := validateStoreKey(c.StoreKey); err != nil {
		return err
	}
	switch c.AIProvider {
	case "tinfoil", "openai", "ollama":
	default:
		return fmt.Errorf("ai_provider must be tinfoil, openai or ollama (got %q)", c.AIProvider)
	}
	if c.AITimeout <= 0 {
		return fmt.Errorf("ai_timeout must be positive")
	}
	if c.OverlapThreshold <= 0 || c.OverlapThreshold > 1 {
		return fmt.Errorf("overlap_threshold must be in (0, 1] (got %v)", c.OverlapThreshold)
	}
	for typ, src := range c.TieBreak {
		if src != "pattern" && src != "ai" {
			return fmt.Errorf("tiebreak for %s must be pattern or ai (got %q)", typ, src)
		}
	}
	if c.PageWorkers <= 0 {
		return fmt.Errorf("page_workers must be positive")
	}
	if c.MaxFileMB <= 0 {
		return fmt.Errorf("max_file_mb must be positive")
	}
	if c.ScopeTTL < 0 {
		return fmt.Errorf("scope_ttl must not be negative")
	}
	if c.TenantRPS < 0 {
		return fmt.Errorf("tenant_rps must be >= 0")
	}
	for key, tenant := range c.APIKeys {
		if key == "" || tenant == "" {
			return fmt.Errorf("api_keys entries must be key:tenant")
		}
	}
	return nil
}

// validateStoreKey accepts either 32 raw bytes or 64 hex characters (decodes to 32 bytes).
func validateStoreKey(key string) error {
	if _, err := cryptoutil.DecodeKey(key); err != nil {
		return fmt.Errorf("store_key must be exactly 32 bytes or 64 hex characters (got %d); set MASQUERADE_STORE_KEY", len(key))
	}
	return nil
}
