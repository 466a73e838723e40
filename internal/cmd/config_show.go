package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dativo-io/masquerade/internal/config"
)

var configJSON bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect masquerade configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show resolved configuration (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "config.show")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if configJSON {
			return writeEnvelope(cmd.OutOrStdout(), showConfig(cfg), nil)
		}
		return renderConfig(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	configShowCmd.Flags().BoolVar(&configJSON, "json", false, "print JSON")
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

// shownConfig is the YAML view of a Config; secrets are masked.
type shownConfig struct {
	DataDir         string `yaml:"data_dir"`
	StoreBackend    string `yaml:"store_backend"`
	StorePath       string `yaml:"store_path,omitempty"`
	StoreKey        string `yaml:"store_key"`
	AliasFormat     string `yaml:"alias_format"`
	PartialMentions bool   `yaml:"partial_mentions"`

	AI struct {
		Enabled          bool   `yaml:"enabled"`
		Available        bool   `yaml:"available"`
		Provider         string `yaml:"provider"`
		BaseURL          string `yaml:"base_url"`
		APIKey           string `yaml:"api_key"`
		APIKeySource     string `yaml:"api_key_source,omitempty"`
		Model            string `yaml:"model"`
		CodeModel        string `yaml:"code_model"`
		MultilingualMod  string `yaml:"multilingual_model"`
		Timeout          string `yaml:"timeout"`
		RatePerMinute    int    `yaml:"rpm"`
		BreakerThreshold int    `yaml:"breaker_threshold"`
	} `yaml:"ai"`

	Detection struct {
		PatternFile      string            `yaml:"pattern_file,omitempty"`
		Exclusions       []string          `yaml:"exclusions,omitempty"`
		EnabledEntities  []string          `yaml:"enabled_entities,omitempty"`
		DisabledEntities []string          `yaml:"disabled_entities,omitempty"`
		OverlapThreshold float64           `yaml:"overlap_threshold"`
		TieBreak         map[string]string `yaml:"tiebreak,omitempty"`
		TieBreakPolicy   string            `yaml:"tiebreak_policy,omitempty"`
	} `yaml:"detection"`

	Output struct {
		Suffix          string `yaml:"suffix"`
		HighlightSuffix string `yaml:"highlight_suffix"`
		PageWorkers     int    `yaml:"page_workers"`
		MaxFileMB       int    `yaml:"max_file_mb"`
	} `yaml:"output"`

	Retention struct {
		ScopeTTL string `yaml:"scope_ttl"`
		Schedule string `yaml:"schedule"`
	} `yaml:"retention"`

	Server struct {
		Addr      string   `yaml:"addr"`
		Tenants   []string `yaml:"tenants,omitempty"`
		TenantRPS int      `yaml:"tenant_rps"`
	} `yaml:"server"`
}

func renderConfig(w io.Writer, cfg *config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(showConfig(cfg)); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}

func showConfig(cfg *config.Config) shownConfig {
	var s shownConfig
	s.DataDir = cfg.DataDir
	s.StoreBackend = cfg.StoreBackend
	if cfg.StoreBackend != "memory" {
		s.StorePath = cfg.StoreDBPath()
	}
	s.StoreKey = maskSecret(cfg.StoreKey)
	if cfg.UsingDefaultStoreKey() {
		s.StoreKey = "(derived default)"
	}
	s.AliasFormat = cfg.AliasFormat
	if s.AliasFormat == "" {
		s.AliasFormat = "[{TYPE}_{N}]"
	}
	s.PartialMentions = cfg.PartialMentions

	s.AI.Enabled = cfg.AIEnabled
	s.AI.Available = cfg.AIAvailable()
	s.AI.Provider = cfg.AIProvider
	s.AI.BaseURL = cfg.AIBaseURL
	s.AI.APIKey = maskSecret(cfg.AIAPIKey)
	s.AI.APIKeySource = cfg.APIKeySource()
	s.AI.Model = cfg.AIModel
	s.AI.CodeModel = cfg.AICodeModel
	s.AI.MultilingualMod = cfg.AIMultilingualModel
	s.AI.Timeout = cfg.AITimeout.String()
	s.AI.RatePerMinute = cfg.AIRatePerMinute
	s.AI.BreakerThreshold = cfg.BreakerThreshold

	s.Detection.PatternFile = cfg.PatternFile
	s.Detection.Exclusions = cfg.Exclusions
	s.Detection.EnabledEntities = cfg.EnabledEntities
	s.Detection.DisabledEntities = cfg.DisabledEntities
	s.Detection.OverlapThreshold = cfg.OverlapThreshold
	s.Detection.TieBreak = cfg.TieBreak
	s.Detection.TieBreakPolicy = cfg.TieBreakPolicy

	s.Output.Suffix = cfg.OutputSuffix
	s.Output.HighlightSuffix = cfg.HighlightSuffix
	s.Output.PageWorkers = cfg.PageWorkers
	s.Output.MaxFileMB = cfg.MaxFileMB

	s.Retention.ScopeTTL = cfg.ScopeTTL.String()
	s.Retention.Schedule = cfg.RetentionSchedule

	s.Server.Addr = cfg.ServerAddr
	s.Server.TenantRPS = cfg.TenantRPS
	for _, tenant := range cfg.APIKeys {
		s.Server.Tenants = append(s.Server.Tenants, tenant)
	}
	sort.Strings(s.Server.Tenants)
	return s
}
