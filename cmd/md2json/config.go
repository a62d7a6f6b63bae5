// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/md2json/internal/api"
	"github.com/pdiddy/md2json/internal/chunk"
	"github.com/pdiddy/md2json/internal/ledger"
	"github.com/pdiddy/md2json/internal/oracle"
	"github.com/pdiddy/md2json/internal/secrets"
	"github.com/pdiddy/md2json/pkg/types"
)

func setDefaults() {
	viper.SetDefault("provider", string(types.ProviderOpenAI))
	viper.SetDefault("timeout", oracle.DefaultTimeout)
	viper.SetDefault("max_tokens", oracle.DefaultMaxTokens)
	viper.SetDefault("rate_limit_retries", 0)
	viper.SetDefault("budget", chunk.DefaultBudget)
	viper.SetDefault("workers", 1)
	viper.SetDefault("orphan_policy", string(types.OrphanAttach))
	viper.SetDefault("serve.addr", api.DefaultAddr)
	viper.SetDefault("serve.request_timeout", api.DefaultRequestTimeout)
	viper.SetDefault("serve.max_body_bytes", api.DefaultMaxBodyBytes)
}

// bindFlags binds the named flags of cmd to viper keys. Binding happens
// when a command runs so commands sharing a flag name do not clash.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for flag, key := range keys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			return fmt.Errorf("unknown flag %q", flag)
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding --%s: %w", flag, err)
		}
	}
	return nil
}

// oracleFlags registers the oracle selection flags on cmd.
func oracleFlags(cmd *cobra.Command) {
	cmd.Flags().String("provider", string(types.ProviderOpenAI), "oracle backend: openai (any OpenAI-compatible endpoint) or anthropic")
	cmd.Flags().String("model", "", "model identifier (default qwen2.5-72b-instruct, or the Claude default for anthropic)")
	cmd.Flags().String("base-url", "", "OpenAI-compatible endpoint (default DashScope compatible-mode)")
	cmd.Flags().Duration("timeout", oracle.DefaultTimeout, "timeout for one oracle call")
	cmd.Flags().Int("budget", chunk.DefaultBudget, "token budget of one batch")
	cmd.Flags().Bool("normalize", false, "apply NFKC normalization to the OCR text before splitting")
	cmd.Flags().String("orphans", string(types.OrphanAttach), "paragraphs before the first heading: attach or drop")
}

var oracleKeys = map[string]string{
	"provider":  "provider",
	"model":     "model",
	"base-url":  "base_url",
	"timeout":   "timeout",
	"budget":    "budget",
	"normalize": "normalize",
	"orphans":   "orphan_policy",
}

// conversionConfig assembles the typed configuration from viper. The API
// key comes from MD2JSON_API_KEY, the config file, or .secrets/.
func conversionConfig() (types.ConversionConfig, error) {
	cfg := types.ConversionConfig{
		OracleConfig: types.OracleConfig{
			Provider:         types.Provider(viper.GetString("provider")),
			Model:            viper.GetString("model"),
			APIKey:           viper.GetString("api_key"),
			BaseURL:          viper.GetString("base_url"),
			Timeout:          viper.GetDuration("timeout"),
			MaxTokens:        viper.GetInt("max_tokens"),
			RateLimitRetries: viper.GetInt("rate_limit_retries"),
		},
		ChunkConfig: types.ChunkConfig{
			Budget:    viper.GetInt("budget"),
			Normalize: viper.GetBool("normalize"),
		},
		InputDir:     viper.GetString("input_dir"),
		OutputDir:    viper.GetString("output_dir"),
		Workers:      viper.GetInt("workers"),
		OrphanPolicy: types.OrphanPolicy(viper.GetString("orphan_policy")),
		LedgerPath:   viper.GetString("ledger_path"),
	}
	if err := viper.UnmarshalKey("pricing", &cfg.Pricing); err != nil {
		return cfg, fmt.Errorf("reading pricing: %w", err)
	}

	switch cfg.OrphanPolicy {
	case types.OrphanAttach, types.OrphanDrop:
	default:
		return cfg, fmt.Errorf("invalid orphan policy %q (want attach or drop)", cfg.OrphanPolicy)
	}
	if cfg.Model == "" {
		cfg.Model = oracle.DefaultModel
		if cfg.Provider == types.ProviderAnthropic {
			cfg.Model = oracle.DefaultClaudeModel
		}
	}
	return cfg, nil
}

// newClassifier resolves the API key and builds the oracle client.
func newClassifier(cfg *types.ConversionConfig) (*oracle.Classifier, error) {
	if name := secrets.Apply(&cfg.OracleConfig, loadedSecrets); name != "" {
		logger.Debug("using API key from secrets", zap.String("secret", name))
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key for provider %s: set MD2JSON_API_KEY or add one of %v to .secrets/",
			cfg.Provider, secrets.KeyNames(cfg.OracleConfig))
	}
	o, err := oracle.New(cfg.OracleConfig, logger)
	if err != nil {
		return nil, err
	}
	return oracle.NewClassifier(o, logger), nil
}

// ledgerPath returns the configured ledger location, or the default under
// the input directory.
func ledgerPath(cfg types.ConversionConfig) string {
	if cfg.LedgerPath != "" {
		return cfg.LedgerPath
	}
	if cfg.InputDir != "" {
		return filepath.Join(cfg.InputDir, ledger.DefaultPath)
	}
	return ledger.DefaultPath
}
