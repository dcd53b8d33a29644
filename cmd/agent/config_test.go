package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileReturnsZeroValue(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Provider != "" {
		t.Errorf("expected empty provider, got %q", cfg.Provider)
	}
}

func TestWriteDefaultConfigThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	if err := writeDefaultConfig(path); err != nil {
		t.Fatalf("writeDefaultConfig: %v", err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Provider != "gemini" {
		t.Errorf("expected default provider gemini, got %q", cfg.Provider)
	}
	if cfg.Compaction.ReserveTokens != 16384 {
		t.Errorf("expected default reserve tokens 16384, got %d", cfg.Compaction.ReserveTokens)
	}
}

func TestWriteDefaultConfigDoesNotOverwriteExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("provider: custom\n"), 0o644); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	if err := writeDefaultConfig(path); err != nil {
		t.Fatalf("writeDefaultConfig: %v", err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Provider != "custom" {
		t.Errorf("expected existing config preserved, got provider %q", cfg.Provider)
	}
}

func TestApplyDefaultsOnlyOverridesFlagDefaults(t *testing.T) {
	f := &flags{provider: "gemini", model: "", tools: "coding", thinking: "off"}
	cfg := fileConfig{Provider: "anthropic", Model: "claude", Tools: "all", ThinkingLevel: "high"}
	applyDefaults(f, cfg)
	if f.provider != "anthropic" || f.model != "claude" || f.tools != "all" || f.thinking != "high" {
		t.Errorf("expected config values applied, got %+v", f)
	}
}

func TestApplyDefaultsDoesNotOverrideExplicitFlags(t *testing.T) {
	f := &flags{provider: "custom-provider", model: "custom-model", tools: "readonly", thinking: "low"}
	cfg := fileConfig{Provider: "anthropic", Model: "claude", Tools: "all", ThinkingLevel: "high"}
	applyDefaults(f, cfg)
	if f.provider != "custom-provider" || f.model != "custom-model" || f.tools != "readonly" || f.thinking != "low" {
		t.Errorf("expected explicit flags preserved, got %+v", f)
	}
}

func TestCompactionSettingsFallsBackToDefaults(t *testing.T) {
	cfg := fileConfig{}
	s := cfg.compactionSettings()
	if s.ReserveTokens != 16384 || s.KeepRecentTokens != 20000 {
		t.Errorf("expected spec defaults, got %+v", s)
	}
}

func TestCompactionSettingsUsesFileValues(t *testing.T) {
	cfg := fileConfig{}
	cfg.Compaction.Enabled = false
	cfg.Compaction.ReserveTokens = 1000
	cfg.Compaction.KeepRecentTokens = 2000
	s := cfg.compactionSettings()
	if s.Enabled || s.ReserveTokens != 1000 || s.KeepRecentTokens != 2000 {
		t.Errorf("expected file values, got %+v", s)
	}
}
