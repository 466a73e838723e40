package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dativo-io/masquerade/internal/alias"
	"github.com/dativo-io/masquerade/internal/classifier"
	"github.com/dativo-io/masquerade/internal/config"
	"github.com/dativo-io/masquerade/internal/detect"
	"github.com/dativo-io/masquerade/internal/entity"
	"github.com/dativo-io/masquerade/internal/extractor"
	"github.com/dativo-io/masquerade/internal/llm"
	"github.com/dativo-io/masquerade/internal/redact"
)

// stack is everything a command needs to redact, built from config.
type stack struct {
	cfg      *config.Config
	matcher  *classifier.Matcher
	registry *alias.Registry
	engine   *redact.Engine
	aiStatus string
}

func (s *stack) Close() error {
	return s.registry.Close()
}

// loadStack loads config and wires matcher, merger, registry, extractor and engine.
func loadStack(ctx context.Context) (*stack, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return buildStack(ctx, cfg)
}

func buildStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	matcher, err := classifier.NewMatcher(
		classifier.WithPatternFile(cfg.PatternFile),
		classifier.WithEnabledEntities(cfg.EnabledEntities),
		classifier.WithDisabledEntities(cfg.DisabledEntities),
		classifier.WithMinScore(cfg.MinScore),
	)
	if err != nil {
		return nil, fmt.Errorf("building pattern matcher: %w", err)
	}

	merger, err := buildMerger(ctx, cfg)
	if err != nil {
		return nil, err
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	opts := []redact.Option{
		redact.WithMerger(merger),
		redact.WithOutputSuffix(cfg.OutputSuffix),
		redact.WithHighlightSuffix(cfg.HighlightSuffix),
		redact.WithPageWorkers(cfg.PageWorkers),
		redact.WithMaxFileBytes(int64(cfg.MaxFileMB) << 20),
	}
	ext, status, err := buildExtractor(cfg)
	if err != nil {
		_ = registry.Close()
		return nil, err
	}
	if ext != nil {
		opts = append(opts, redact.WithExtractor(ext))
	}

	return &stack{
		cfg:      cfg,
		matcher:  matcher,
		registry: registry,
		engine:   redact.NewEngine(matcher, registry, opts...),
		aiStatus: status,
	}, nil
}

func buildMerger(ctx context.Context, cfg *config.Config) (*detect.Merger, error) {
	validator := detect.NewValidator()
	if err := validator.SetExclusions(cfg.Exclusions); err != nil {
		return nil, fmt.Errorf("compiling exclusions: %w", err)
	}

	table := detect.TableTieBreaker{Overrides: make(map[entity.Type]entity.Source, len(cfg.TieBreak))}
	overrides := make(map[string]interface{}, len(cfg.TieBreak))
	for typ, src := range cfg.TieBreak {
		t := entity.ParseType(typ)
		table.Overrides[t] = entity.Source(src)
		overrides[string(t)] = src
	}

	var tb detect.TieBreaker = table
	if cfg.TieBreakPolicy != "" {
		rtb, err := detect.NewRegoTieBreaker(ctx, cfg.TieBreakPolicy, map[string]interface{}{"overrides": overrides}, table)
		if err != nil {
			return nil, fmt.Errorf("loading tie-break policy: %w", err)
		}
		tb = rtb
	}

	return detect.NewMerger(
		detect.WithValidator(validator),
		detect.WithTieBreaker(tb),
		detect.WithOverlapThreshold(cfg.OverlapThreshold),
	), nil
}

func buildRegistry(cfg *config.Config) (*alias.Registry, error) {
	var sealer *alias.Sealer
	if cfg.StoreBackend != "memory" {
		if err := cfg.EnsureDataDir(); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		cfg.WarnIfDefaultKeys()
		s, err := alias.NewSealer(cfg.StoreKey)
		if err != nil {
			return nil, fmt.Errorf("store key: %w", err)
		}
		sealer = s
	}
	store, err := alias.Open(cfg.StoreBackend, cfg.StoreDBPath(), sealer)
	if err != nil {
		return nil, fmt.Errorf("opening alias store: %w", err)
	}
	registry, err := alias.NewRegistry(
		alias.WithStore(store),
		alias.WithTemplate(cfg.AliasFormat),
		alias.WithPartialMentions(cfg.PartialMentions),
	)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("creating alias registry: %w", err)
	}
	return registry, nil
}

// buildExtractor returns nil when AI detection is off or lacks credentials;
// redaction then runs pattern-only.
func buildExtractor(cfg *config.Config) (extractor.Extractor, string, error) {
	if !cfg.AIEnabled {
		return nil, "disabled", nil
	}
	if !cfg.AIAvailable() {
		log.Warn().Str("ai_provider", cfg.AIProvider).
			Msg("no AI API key configured; set MASQUERADE_AI_API_KEY for AI detection, running pattern-only")
		return nil, "no_api_key", nil
	}
	provider, err := llm.NewProvider(llm.ProviderConfig{
		Name:    cfg.AIProvider,
		BaseURL: cfg.AIBaseURL,
		APIKey:  cfg.AIAPIKey,
		Timeout: cfg.AITimeout,
	})
	if err != nil {
		return nil, "", fmt.Errorf("creating AI provider: %w", err)
	}
	ext := extractor.NewLLMExtractor(provider,
		extractor.Models{
			Default:      cfg.AIModel,
			Code:         cfg.AICodeModel,
			Multilingual: cfg.AIMultilingualModel,
		},
		extractor.WithTimeout(cfg.AITimeout),
		extractor.WithRateLimiter(extractor.NewRateLimiter(cfg.AIRatePerMinute, cfg.AICallerRatePerMin)),
		extractor.WithCircuitBreaker(extractor.NewCircuitBreaker(cfg.BreakerThreshold, 0, cfg.BreakerCooldown)),
		extractor.WithMaxBytes(cfg.AIMaxBytes),
	)
	log.Debug().Str("ai_provider", cfg.AIProvider).Str("ai_model", cfg.AIModel).Msg("ai_extractor_ready")
	return ext, "enabled", nil
}
