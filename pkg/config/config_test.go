package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestConfigReadsFileAPIKeys(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)
	clearKeyEnv(t)

	configDir := filepath.Join(home, ".flowroute")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	configPath := filepath.Join(configDir, "config.yaml")
	data := []byte("api_keys:\n  anthropic: file-ant\n  openai: file-openai\n  tavus: file-tavus\njwt_secret: file-secret\n")
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKey(KeyAnthropic) != "file-ant" || cfg.APIKey(KeyOpenAI) != "file-openai" || cfg.APIKey(KeyTavus) != "file-tavus" {
		t.Fatalf("expected file API keys, got %v", cfg.ConfiguredKeys())
	}
	if cfg.HasKey(KeyGoogle) {
		t.Fatalf("google key should not be configured")
	}
	if cfg.JWTSecret != "file-secret" {
		t.Fatalf("JWTSecret = %q, want file-secret", cfg.JWTSecret)
	}
}

func TestConfigEnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)
	clearKeyEnv(t)

	configDir := filepath.Join(home, ".flowroute")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	data := []byte("api_keys:\n  openai: file-openai\n")
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("OPENAI_API_KEY", "env-openai")
	t.Setenv("ELEVENLABS_API_KEY", "env-eleven")
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKey(KeyOpenAI) != "env-openai" || cfg.APIKey(KeyElevenLabs) != "env-eleven" {
		t.Fatalf("expected env API keys to be used, got %v", cfg.ConfiguredKeys())
	}
	if cfg.JWTSecret != "env-secret" {
		t.Fatalf("JWTSecret = %q, want env-secret", cfg.JWTSecret)
	}
}

func TestConfigDefaultsRoutingWhenFileMissing(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)
	clearKeyEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RoutingConfig == nil || cfg.RoutingConfig.DefaultBackend != "gpt" {
		t.Fatalf("expected default routing config, got %+v", cfg.RoutingConfig)
	}
	if len(cfg.ConfiguredKeys()) != 0 {
		t.Fatalf("expected no keys, got %v", cfg.ConfiguredKeys())
	}
}

func TestNilConfigAPIKey(t *testing.T) {
	var cfg *Config
	if cfg.APIKey(KeyOpenAI) != "" || cfg.HasKey(KeyOpenAI) {
		t.Fatalf("nil config should report no keys")
	}
}

func setHomeEnv(t *testing.T, home string) {
	t.Helper()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
}

func clearKeyEnv(t *testing.T) {
	t.Helper()
	for _, envVar := range envVars {
		t.Setenv(envVar, "")
	}
	t.Setenv("JWT_SECRET", "")
}
