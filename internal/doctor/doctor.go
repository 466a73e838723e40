// Package doctor provides preflight checks for masquerade configuration and
// runtime dependencies. Used by `masquerade doctor`.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dativo-io/masquerade/internal/alias"
	"github.com/dativo-io/masquerade/internal/classifier"
	"github.com/dativo-io/masquerade/internal/config"
	"github.com/dativo-io/masquerade/internal/detect"
	"github.com/dativo-io/masquerade/internal/entity"
)

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"` // pass, warn, fail
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Options controls which checks run.
type Options struct {
	SkipUpstream bool // Skip AI endpoint connectivity (for CI/offline)
}

// Run executes all doctor checks and returns a report.
func Run(ctx context.Context, opts Options) *Report {
	report := &Report{}

	cfg, err := config.Load()
	if err != nil {
		report.Checks = []CheckResult{{
			Name: "config_load", Category: "config", Status: "fail",
			Message: fmt.Sprintf("Cannot load config: %v", err),
			Fix:     "Check MASQUERADE_* variables and masquerade.config.yaml",
		}}
	} else {
		report.Checks = append(report.Checks, checkConfig(cfg)...)
		report.Checks = append(report.Checks, checkDetection(ctx, cfg)...)
		report.Checks = append(report.Checks, checkAI(ctx, cfg, opts)...)
	}
	report.tally()
	return report
}

func (r *Report) tally() {
	r.Summary = Summary{}
	for _, c := range r.Checks {
		switch c.Status {
		case "pass":
			r.Summary.Pass++
		case "warn":
			r.Summary.Warn++
		case "fail":
			r.Summary.Fail++
		}
	}
	r.Status = "pass"
	if r.Summary.Warn > 0 {
		r.Status = "warn"
	}
	if r.Summary.Fail > 0 {
		r.Status = "fail"
	}
}

func checkConfig(cfg *config.Config) []CheckResult {
	results := []CheckResult{checkDataDir(cfg), checkStoreKey(cfg)}
	if cfg.StoreBackend != "memory" {
		results = append(results, checkAliasStore(cfg))
	}
	return results
}

func checkDataDir(cfg *config.Config) CheckResult {
	if err := cfg.EnsureDataDir(); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s: %v", cfg.DataDir, err),
			Fix:     "Ensure directory exists and is writable",
		}
	}
	testFile := filepath.Join(cfg.DataDir, ".doctor-write-test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s not writable: %v", cfg.DataDir, err),
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{
		Name: "data_dir_writable", Category: "config", Status: "pass",
		Message: fmt.Sprintf("%s (writable)", cfg.DataDir),
	}
}

func checkStoreKey(cfg *config.Config) CheckResult {
	if cfg.UsingDefaultStoreKey() && cfg.StoreBackend != "memory" {
		return CheckResult{
			Name: "store_key", Category: "config", Status: "warn",
			Message: "Using generated default", Fix: "Set MASQUERADE_STORE_KEY for production",
		}
	}
	return CheckResult{Name: "store_key", Category: "config", Status: "pass", Message: "Configured"}
}

func checkAliasStore(cfg *config.Config) CheckResult {
	sealer, err := alias.NewSealer(cfg.StoreKey)
	if err != nil {
		return CheckResult{
			Name: "alias_store", Category: "config", Status: "fail",
			Message: err.Error(), Fix: "Set MASQUERADE_STORE_KEY to 32 bytes or 64 hex characters",
		}
	}
	store, err := alias.Open(cfg.StoreBackend, cfg.StoreDBPath(), sealer)
	if err != nil {
		return CheckResult{
			Name: "alias_store", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s: %v", cfg.StoreBackend, err),
		}
	}
	defer store.Close()
	scopes, err := store.Scopes(context.Background())
	if err != nil {
		return CheckResult{
			Name: "alias_store", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s: %v", cfg.StoreDBPath(), err),
			Fix:     "The store may have been written with a different MASQUERADE_STORE_KEY",
		}
	}
	return CheckResult{
		Name: "alias_store", Category: "config", Status: "pass",
		Message: fmt.Sprintf("%s %s (%d scopes)", cfg.StoreBackend, cfg.StoreDBPath(), len(scopes)),
	}
}

func checkDetection(ctx context.Context, cfg *config.Config) []CheckResult {
	var results []CheckResult

	m, err := classifier.NewMatcher(
		classifier.WithPatternFile(cfg.PatternFile),
		classifier.WithEnabledEntities(cfg.EnabledEntities),
		classifier.WithDisabledEntities(cfg.DisabledEntities),
	)
	if err != nil {
		results = append(results, CheckResult{
			Name: "recognizers", Category: "detection", Status: "fail",
			Message: err.Error(), Fix: "Fix the pattern file " + cfg.PatternFile,
		})
	} else {
		msg := fmt.Sprintf("%d recognizers", len(m.Recognizers()))
		if cfg.PatternFile != "" {
			msg += " (with " + cfg.PatternFile + ")"
		}
		results = append(results, CheckResult{Name: "recognizers", Category: "detection", Status: "pass", Message: msg})
	}

	if err := detect.NewValidator().SetExclusions(cfg.Exclusions); err != nil {
		results = append(results, CheckResult{
			Name: "exclusions", Category: "detection", Status: "fail",
			Message: err.Error(), Fix: "Fix the regular expression in exclusions",
		})
	} else {
		results = append(results, CheckResult{
			Name: "exclusions", Category: "detection", Status: "pass",
			Message: fmt.Sprintf("%d pattern(s)", len(cfg.Exclusions)),
		})
	}

	if cfg.TieBreakPolicy != "" {
		fallback := detect.TableTieBreaker{Overrides: make(map[entity.Type]entity.Source)}
		if _, err := detect.NewRegoTieBreaker(ctx, cfg.TieBreakPolicy, nil, fallback); err != nil {
			results = append(results, CheckResult{
				Name: "tiebreak_policy", Category: "detection", Status: "fail",
				Message: err.Error(), Fix: "The policy must define " + detect.RegoQuery,
			})
		} else {
			results = append(results, CheckResult{
				Name: "tiebreak_policy", Category: "detection", Status: "pass", Message: cfg.TieBreakPolicy,
			})
		}
	}
	return results
}

func checkAI(ctx context.Context, cfg *config.Config, opts Options) []CheckResult {
	if !cfg.AIEnabled {
		return []CheckResult{{
			Name: "ai_provider", Category: "ai", Status: "pass",
			Message: "disabled (pattern-only detection)",
		}}
	}
	if !cfg.AIAvailable() {
		return []CheckResult{{
			Name: "ai_provider", Category: "ai", Status: "warn",
			Message: fmt.Sprintf("%s has no API key; redaction runs pattern-only", cfg.AIProvider),
			Fix:     "Set MASQUERADE_AI_API_KEY (or TINFOIL_API_KEY / OPENAI_API_KEY)",
		}}
	}
	msg := cfg.AIProvider
	if src := cfg.APIKeySource(); src != "" {
		msg += " (key from " + src + ")"
	}
	results := []CheckResult{{Name: "ai_provider", Category: "ai", Status: "pass", Message: msg}}
	if !opts.SkipUpstream && cfg.AIBaseURL != "" {
		results = append(results, checkUpstream(ctx, cfg.AIProvider, cfg.AIBaseURL))
	}
	return results
}

func checkUpstream(ctx context.Context, name, baseURL string) CheckResult {
	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, baseURL, nil)
	if err != nil {
		return CheckResult{
			Name: "ai_upstream_" + name, Category: "ai", Status: "fail",
			Message: fmt.Sprintf("Invalid URL: %v", err),
		}
	}
	start := time.Now()
	resp, err := client.Do(req) //nolint:gosec // URL from operator config
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Name: "ai_upstream_" + name, Category: "ai", Status: "warn",
			Message: fmt.Sprintf("Connection failed: %v", err),
			Fix:     "Redaction still works but degrades to pattern-only; check ai_base_url",
		}
	}
	resp.Body.Close()

	status := "pass"
	if latency > 2*time.Second {
		status = "warn"
	}
	return CheckResult{
		Name: "ai_upstream_" + name, Category: "ai", Status: status,
		Message: fmt.Sprintf("%s (%dms)", baseURL, latency.Milliseconds()),
	}
}
