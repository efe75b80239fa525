package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Assistant  AssistantConfig  `json:"assistant"`
	Classifier ClassifierConfig `json:"classifier"`
	Agents     AgentsConfig     `json:"agents"`
	Memory     MemoryConfig     `json:"memory"`
	mu         sync.RWMutex
}

type AssistantConfig struct {
	Workspace          string `json:"workspace" env:"SENTINEL_ASSISTANT_WORKSPACE"`
	WakeWord           string `json:"wake_word" env:"SENTINEL_ASSISTANT_WAKE_WORD"`
	UserID             string `json:"user_id" env:"SENTINEL_ASSISTANT_USER_ID"`
	MaxTurns           int    `json:"max_turns" env:"SENTINEL_ASSISTANT_MAX_TURNS"`
	CommandTimeoutSec  int    `json:"command_timeout_sec" env:"SENTINEL_ASSISTANT_COMMAND_TIMEOUT_SEC"`
	FollowUpTimeoutSec int    `json:"follow_up_timeout_sec" env:"SENTINEL_ASSISTANT_FOLLOW_UP_TIMEOUT_SEC"`
	MaxPhraseSec       int    `json:"max_phrase_sec" env:"SENTINEL_ASSISTANT_MAX_PHRASE_SEC"`
}

type ClassifierConfig struct {
	APIKey     string `json:"api_key" env:"SENTINEL_CLASSIFIER_API_KEY"`
	APIBase    string `json:"api_base" env:"SENTINEL_CLASSIFIER_API_BASE"`
	Model      string `json:"model" env:"SENTINEL_CLASSIFIER_MODEL"`
	TimeoutSec int    `json:"timeout_sec" env:"SENTINEL_CLASSIFIER_TIMEOUT_SEC"`
}

type AgentsConfig struct {
	Model              string  `json:"model" env:"SENTINEL_AGENTS_MODEL"`
	Temperature        float64 `json:"temperature" env:"SENTINEL_AGENTS_TEMPERATURE"`
	ExecTimeoutSec     int     `json:"exec_timeout_sec" env:"SENTINEL_AGENTS_EXEC_TIMEOUT_SEC"`
	ContextWindowMin   int     `json:"context_window_min" env:"SENTINEL_AGENTS_CONTEXT_WINDOW_MIN"`
	ContextMaxEntries  int     `json:"context_max_entries" env:"SENTINEL_AGENTS_CONTEXT_MAX_ENTRIES"`
	IncludeOtherAgents bool    `json:"include_other_agents" env:"SENTINEL_AGENTS_INCLUDE_OTHER_AGENTS"`
}

type MemoryConfig struct {
	DefaultTTLHours  int    `json:"default_ttl_hours" env:"SENTINEL_MEMORY_DEFAULT_TTL_HOURS"`
	FallbackCap      int    `json:"fallback_cap" env:"SENTINEL_MEMORY_FALLBACK_CAP"`
	SweepIntervalSec int    `json:"sweep_interval_sec" env:"SENTINEL_MEMORY_SWEEP_INTERVAL_SEC"`
	RetentionCron    string `json:"retention_cron" env:"SENTINEL_MEMORY_RETENTION_CRON"`
	RetentionHours   int    `json:"retention_hours" env:"SENTINEL_MEMORY_RETENTION_HOURS"`
}

func DefaultConfig() *Config {
	return &Config{
		Assistant: AssistantConfig{
			Workspace:          "~/.sentinel/workspace",
			WakeWord:           "sentinel",
			UserID:             "local-user",
			MaxTurns:           5,
			CommandTimeoutSec:  5,
			FollowUpTimeoutSec: 10,
			MaxPhraseSec:       10,
		},
		Classifier: ClassifierConfig{
			APIBase:    "https://api.openai.com/v1",
			Model:      "gpt-4o-mini",
			TimeoutSec: 30,
		},
		Agents: AgentsConfig{
			Model:              "gpt-4o",
			Temperature:        0,
			ExecTimeoutSec:     60,
			ContextWindowMin:   15,
			ContextMaxEntries:  5,
			IncludeOtherAgents: true,
		},
		Memory: MemoryConfig{
			DefaultTTLHours:  24,
			FallbackCap:      100,
			SweepIntervalSec: 60,
			RetentionCron:    "0 3 * * *",
			RetentionHours:   24,
		},
	}
}

// LoadConfig reads the JSON config at path, then overlays SENTINEL_* env vars.
// A missing file is not an error: defaults plus env apply.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if envErr := env.Parse(cfg); envErr != nil {
				return nil, envErr
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	// Config may hold API keys, keep it private.
	return os.WriteFile(path, data, 0600)
}

func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Assistant.Workspace)
}

func (c *Config) MemoryDBPath() string {
	return filepath.Join(c.WorkspacePath(), "state", "memory.db")
}

func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Assistant.WakeWord == "" {
		return fmt.Errorf("assistant.wake_word must not be empty")
	}
	if c.Assistant.MaxTurns <= 0 {
		return fmt.Errorf("assistant.max_turns must be positive")
	}
	if c.Assistant.CommandTimeoutSec <= 0 || c.Assistant.FollowUpTimeoutSec <= 0 {
		return fmt.Errorf("assistant capture timeouts must be positive")
	}
	if c.Memory.DefaultTTLHours <= 0 {
		return fmt.Errorf("memory.default_ttl_hours must be positive")
	}
	return nil
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if len(path) == 1 {
		return home
	}
	if path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}
