package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Provider key names as used in ~/.flowroute/config.yaml.
const (
	KeyOpenAI       = "openai"
	KeyAnthropic    = "anthropic"
	KeyGoogle       = "google"
	KeyDeepSeek     = "deepseek"
	KeyMistral      = "mistral"
	KeyXAI          = "xai"
	KeyAssemblyAI   = "assemblyai"
	KeyElevenLabs   = "elevenlabs"
	KeyStability    = "stability"
	KeyGoogleVision = "google_vision"
	KeyTavus        = "tavus"
	KeyPeltarion    = "peltarion"
	KeyLumen        = "lumen"
)

// envVars maps provider key names to the environment variable that overrides them.
var envVars = map[string]string{
	KeyOpenAI:       "OPENAI_API_KEY",
	KeyAnthropic:    "ANTHROPIC_API_KEY",
	KeyGoogle:       "GOOGLE_API_KEY",
	KeyDeepSeek:     "DEEPSEEK_API_KEY",
	KeyMistral:      "MISTRAL_API_KEY",
	KeyXAI:          "XAI_API_KEY",
	KeyAssemblyAI:   "ASSEMBLYAI_API_KEY",
	KeyElevenLabs:   "ELEVENLABS_API_KEY",
	KeyStability:    "STABILITY_API_KEY",
	KeyGoogleVision: "GOOGLE_VISION_API_KEY",
	KeyTavus:        "TAVUS_API_KEY",
	KeyPeltarion:    "PELTARION_API_KEY",
	KeyLumen:        "LUMEN_API_KEY",
}

// Config holds the application configuration.
type Config struct {
	APIKeys       map[string]string
	JWTSecret     string
	RoutingConfig *RoutingConfig
	ConfigDir     string
}

// FileConfig represents the structure of ~/.flowroute/config.yaml
type FileConfig struct {
	APIKeys   map[string]string `yaml:"api_keys"`
	JWTSecret string            `yaml:"jwt_secret,omitempty"`
}

// Load reads configuration from config files and environment variables.
// Environment variables take precedence over file configuration.
func Load() (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	cfg := loadKeys(configDir)

	routingPath := filepath.Join(configDir, "routing.yaml")
	if _, err := os.Stat(routingPath); err == nil {
		routing, err := LoadRoutingConfig(routingPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load routing config: %w", err)
		}
		cfg.RoutingConfig = routing
	} else {
		cfg.RoutingConfig = DefaultRoutingConfig()
	}

	return cfg, nil
}

// LoadWithRoutingFile loads config with a specific routing file.
func LoadWithRoutingFile(routingPath string) (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	cfg := loadKeys(configDir)

	routing, err := LoadRoutingConfig(routingPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load routing config from %s: %w", routingPath, err)
	}
	cfg.RoutingConfig = routing

	return cfg, nil
}

// APIKey returns the configured key for a provider, or "".
func (c *Config) APIKey(name string) string {
	if c == nil || c.APIKeys == nil {
		return ""
	}
	return c.APIKeys[name]
}

// HasKey returns true if the API key for the given provider is configured.
func (c *Config) HasKey(name string) bool {
	return c.APIKey(name) != ""
}

// ConfiguredKeys returns the sorted names of providers with a key set.
func (c *Config) ConfiguredKeys() []string {
	var names []string
	for name, key := range c.APIKeys {
		if key != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// loadKeys builds a Config from config.yaml with env vars taking precedence.
func loadKeys(configDir string) *Config {
	fileConfig := loadFileConfig(filepath.Join(configDir, "config.yaml"))

	keys := make(map[string]string, len(envVars))
	for name, envVar := range envVars {
		if key := getEnvOrDefault(envVar, fileConfig.APIKeys[name]); key != "" {
			keys[name] = key
		}
	}

	return &Config{
		APIKeys:   keys,
		JWTSecret: getEnvOrDefault("JWT_SECRET", fileConfig.JWTSecret),
		ConfigDir: configDir,
	}
}

// loadFileConfig reads the config file, returning empty config if not found.
func loadFileConfig(path string) *FileConfig {
	cfg := &FileConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg // Return empty config if file doesn't exist
	}

	_ = yaml.Unmarshal(data, cfg) // Ignore parse errors, use defaults
	return cfg
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".flowroute")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return configDir, nil
}
