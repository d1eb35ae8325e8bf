package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
)

const DefaultRuntimeSettingsFile = "data/settings.json"

// RuntimeSettings is the admin-editable subset of configuration. Changes
// take effect without a restart and survive one through the settings file.
type RuntimeSettings struct {
	AIAPIURL       string `json:"ai_api_url"`
	AIAPIKey       string `json:"ai_api_key"`
	AIModel        string `json:"ai_model"`
	CronExpr       string `json:"cron_expr"`
	SourceLanguage string `json:"source_language"`
}

func RuntimeSettingsFilePath() string {
	return getEnvString("SETTINGS_FILE", DefaultRuntimeSettingsFile)
}

func (s RuntimeSettings) Validate() error {
	if strings.TrimSpace(s.AIAPIURL) == "" {
		return fmt.Errorf("ai_api_url is required")
	}
	if strings.TrimSpace(s.AIAPIKey) == "" {
		return fmt.Errorf("ai_api_key is required")
	}
	if strings.TrimSpace(s.AIModel) == "" {
		return fmt.Errorf("ai_model is required")
	}
	if strings.TrimSpace(s.CronExpr) == "" {
		return fmt.Errorf("cron_expr is required")
	}
	if _, err := cron.ParseStandard(s.CronExpr); err != nil {
		return fmt.Errorf("invalid cron_expr: %w", err)
	}
	if strings.TrimSpace(s.SourceLanguage) == "" {
		return fmt.Errorf("source_language is required")
	}
	if _, err := language.Parse(s.SourceLanguage); err != nil {
		return fmt.Errorf("invalid source_language: %w", err)
	}
	return nil
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		AIAPIURL:       c.AI.APIURL,
		AIAPIKey:       c.AI.APIKey,
		AIModel:        c.AI.Model,
		CronExpr:       c.Translate.CronExpr,
		SourceLanguage: c.Translate.SourceLanguage,
	}
}

func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if strings.TrimSpace(settings.AIAPIURL) != "" {
			c.AI.APIURL = settings.AIAPIURL
		}
		if strings.TrimSpace(settings.AIAPIKey) != "" {
			c.AI.APIKey = settings.AIAPIKey
		}
		if strings.TrimSpace(settings.AIModel) != "" {
			c.AI.Model = settings.AIModel
		}
		if strings.TrimSpace(settings.CronExpr) != "" {
			c.Translate.CronExpr = settings.CronExpr
		}
		if _, err := language.Parse(settings.SourceLanguage); err == nil {
			c.Translate.SourceLanguage = settings.SourceLanguage
		}
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// RuntimeSettingsStore serializes reads and updates of the runtime
// settings, persisting every accepted update to disk.
type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next, nil
}
