package main

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mariozechner/coding-agent/session/pkg/session"
)

// fileConfig is the persisted set of defaults loaded from
// ~/.agentcore/config.yaml, the way nexus-edge loads its own YAML config
// file: the AGENTCORE_CONFIG env var overrides the default location,
// falling back to zero-value defaults if nothing is present. There is no
// --config flag. Command-line flags always win over the file.
type fileConfig struct {
	Provider      string `yaml:"provider"`
	Model         string `yaml:"model"`
	Tools         string `yaml:"tools"`
	ThinkingLevel string `yaml:"thinking_level"`
	Compaction    struct {
		Enabled          bool `yaml:"enabled"`
		ReserveTokens    int  `yaml:"reserve_tokens"`
		KeepRecentTokens int  `yaml:"keep_recent_tokens"`
	} `yaml:"compaction"`
}

func defaultConfigPath() (string, error) {
	if p := os.Getenv("AGENTCORE_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".agentcore", "config.yaml"), nil
}

// loadConfig reads the defaults file if present. A missing file is not an
// error; it just means every field stays at its zero value.
func loadConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// writeDefaultConfig creates a starter config file the first time the CLI
// is run against a fresh home directory, mirroring nexus-edge's
// writeConfig/normalizeConfig habit of always leaving a readable file
// behind rather than relying purely on in-memory defaults.
func writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	cfg := fileConfig{
		Provider:      "gemini",
		Tools:         "coding",
		ThinkingLevel: "off",
	}
	cfg.Compaction.Enabled = true
	cfg.Compaction.ReserveTokens = 16384
	cfg.Compaction.KeepRecentTokens = 20000

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// compactionSettings converts the file's compaction block to
// session.CompactionSettings, falling back to spec defaults for any field
// left at its zero value (i.e. the file never set a compaction block).
func (c fileConfig) compactionSettings() session.CompactionSettings {
	if c.Compaction.ReserveTokens == 0 && c.Compaction.KeepRecentTokens == 0 {
		return session.DefaultCompactionSettings()
	}
	return session.CompactionSettings{
		Enabled:          c.Compaction.Enabled,
		ReserveTokens:    c.Compaction.ReserveTokens,
		KeepRecentTokens: c.Compaction.KeepRecentTokens,
	}
}

// loadFileDefaults loads the on-disk config, writing a starter file first
// if none exists yet.
func loadFileDefaults() (fileConfig, error) {
	path, err := defaultConfigPath()
	if err != nil {
		return fileConfig{}, err
	}
	if err := writeDefaultConfig(path); err != nil {
		return fileConfig{}, err
	}
	return loadConfig(path)
}

// applyDefaults fills in any flag the user left at its flag-declared
// default with the file config's value, so a persisted config can change
// the CLI's baseline behavior (e.g. a different default provider) without
// the user having to pass flags every invocation. Flags explicitly set on
// the command line always win; this is approximated here by only
// overriding fields that are still at the zero/default the flags declared.
func applyDefaults(f *flags, cfg fileConfig) {
	if f.provider == "gemini" && cfg.Provider != "" {
		f.provider = cfg.Provider
	}
	if f.model == "" && cfg.Model != "" {
		f.model = cfg.Model
	}
	if f.tools == "coding" && cfg.Tools != "" {
		f.tools = cfg.Tools
	}
	if f.thinking == "off" && cfg.ThinkingLevel != "" {
		f.thinking = cfg.ThinkingLevel
	}
}
