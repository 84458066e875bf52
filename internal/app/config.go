package app

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	BaseURL             string  `yaml:"base_url"`
	Model               string  `yaml:"model"`
	SummaryModel        string  `yaml:"summary_model"`
	ContextWindowTokens int     `yaml:"context_window_tokens"`
	CompactKeepRecent   int     `yaml:"compact_keep_recent"`
	MaxRounds           int     `yaml:"max_rounds"`
	MaxTokens           int     `yaml:"max_tokens"`
	Temperature         float64 `yaml:"temperature"`
	TopP                float64 `yaml:"top_p"`
	ToolTimeoutSeconds  int     `yaml:"tool_timeout_seconds"`
	SaveDebounceMs      int     `yaml:"save_debounce_ms"`
	Storage             string  `yaml:"storage"` // file|sqlite
	StorageRoot         string  `yaml:"storage_root"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:             "http://localhost:11434",
		Model:               "qwen2.5-coder:7b",
		SummaryModel:        "qwen2.5-coder:1.5b",
		ContextWindowTokens: 8192,
		CompactKeepRecent:   10,
		MaxRounds:           25,
		MaxTokens:           4096,
		Temperature:         0.2,
		TopP:                0.9,
		ToolTimeoutSeconds:  60,
		SaveDebounceMs:      2000,
		Storage:             "file",
	}
}

func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = DefaultConfigPath()
	}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return applyConfigDefaults(cfg), nil
}

func applyConfigDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.SummaryModel == "" {
		cfg.SummaryModel = cfg.Model
	}
	if cfg.ContextWindowTokens <= 0 {
		cfg.ContextWindowTokens = def.ContextWindowTokens
	}
	if cfg.CompactKeepRecent <= 0 {
		cfg.CompactKeepRecent = def.CompactKeepRecent
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = def.MaxRounds
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.TopP <= 0 {
		cfg.TopP = def.TopP
	}
	if cfg.ToolTimeoutSeconds <= 0 {
		cfg.ToolTimeoutSeconds = def.ToolTimeoutSeconds
	}
	if cfg.SaveDebounceMs <= 0 {
		cfg.SaveDebounceMs = def.SaveDebounceMs
	}
	if cfg.Storage != "sqlite" {
		cfg.Storage = "file"
	}
	return cfg
}

func SaveConfig(cfg Config, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if path == "" {
		return errors.New("no config path available")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func DefaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "hermit", "config.yml")
}
