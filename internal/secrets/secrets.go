// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
//
// Supported key files: openai-api-key, dashscope-api-key, anthropic-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/md2json/pkg/types"
)

// Key file names.
const (
	OpenAIKey    = "openai-api-key"
	DashScopeKey = "dashscope-api-key"
	AnthropicKey = "anthropic-api-key"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files are logged at warn level but do not abort.
func Load(dir string, logger *zap.Logger) (map[string]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("could not read secret", zap.String("name", name), zap.Error(err))
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// KeyNames returns the secret files that may hold the key for cfg, most
// specific first. DashScope endpoints prefer dashscope-api-key.
func KeyNames(cfg types.OracleConfig) []string {
	switch cfg.Provider {
	case types.ProviderAnthropic:
		return []string{AnthropicKey}
	default:
		if cfg.BaseURL == "" || strings.Contains(cfg.BaseURL, "dashscope") {
			return []string{DashScopeKey, OpenAIKey}
		}
		return []string{OpenAIKey, DashScopeKey}
	}
}

// Apply fills cfg.APIKey from secrets when it is not already set. It
// returns the name of the secret used, or "" when none applied.
func Apply(cfg *types.OracleConfig, secrets map[string]string) string {
	if cfg.APIKey != "" {
		return ""
	}
	for _, name := range KeyNames(*cfg) {
		if v := secrets[name]; v != "" {
			cfg.APIKey = v
			return name
		}
	}
	return ""
}
