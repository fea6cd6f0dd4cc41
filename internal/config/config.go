// Package config loads the service settings from an optional YAML file with
// EPIVIGIL_* environment overrides layered on top.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults applied before the file and the environment are read.
const (
	DefaultListenAddr    = ":8080"
	DefaultModelName     = "gpt-4o-mini"
	DefaultAnalyticsURL  = "http://localhost:8001"
	DefaultNewsURL       = "https://api.tavily.com"
	DefaultDictionaryPath = "data/dictionary.yaml"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ModelConfig holds the chat-completions backend settings.
type ModelConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Name    string `yaml:"name"`
}

// AnalyticsConfig points at the metrics and query service.
type AnalyticsConfig struct {
	BaseURL string `yaml:"base_url"`
}

// NewsConfig holds the news search provider settings.
type NewsConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// DictionaryConfig locates the data dictionary catalogue.
type DictionaryConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig holds the checkpoint store settings. An empty address selects
// the in-memory store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LogConfig holds the structured logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// WorkflowConfig holds the executor tuning knobs. Zero values keep the
// engine defaults.
type WorkflowConfig struct {
	StepCeiling int `yaml:"step_ceiling"`
}

// SecurityConfig holds the guardrail and persistence hardening settings.
// EncryptionKey is hex-encoded; empty disables checkpoint encryption.
// MaskFields are regexes over state field names masked before persistence.
type SecurityConfig struct {
	MaxInputLen   int      `yaml:"max_input_len"`
	EncryptionKey string   `yaml:"encryption_key"`
	MaskFields    []string `yaml:"mask_fields"`
}

// Settings is the full service configuration.
type Settings struct {
	Server     ServerConfig     `yaml:"server"`
	Model      ModelConfig      `yaml:"model"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	News       NewsConfig       `yaml:"news"`
	Dictionary DictionaryConfig `yaml:"dictionary"`
	Redis      RedisConfig      `yaml:"redis"`
	Log        LogConfig        `yaml:"log"`
	Workflow   WorkflowConfig   `yaml:"workflow"`
	Security   SecurityConfig   `yaml:"security"`
}

// Default returns the settings before any file or environment input.
func Default() Settings {
	return Settings{
		Server:     ServerConfig{Addr: DefaultListenAddr},
		Model:      ModelConfig{Name: DefaultModelName},
		Analytics:  AnalyticsConfig{BaseURL: DefaultAnalyticsURL},
		News:       NewsConfig{BaseURL: DefaultNewsURL},
		Dictionary: DictionaryConfig{Path: DefaultDictionaryPath},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads settings from the given YAML file, then applies environment
// overrides. A missing file is not an error; an empty path skips the file
// entirely.
func Load(path string) (Settings, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &s); err != nil {
				return Settings{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	s.applyEnv()
	s.normalize()
	if err := s.validate(); err != nil {
		return Settings{}, fmt.Errorf("config: %w", err)
	}
	return s, nil
}

// applyEnv layers EPIVIGIL_* variables over the file values. The upstream
// provider variables are honored as fallbacks so existing deployments keep
// working without renaming their secrets.
func (s *Settings) applyEnv() {
	setString(&s.Server.Addr, "EPIVIGIL_LISTEN_ADDR")

	setString(&s.Model.APIKey, "EPIVIGIL_MODEL_API_KEY", "OPENAI_API_KEY")
	setString(&s.Model.BaseURL, "EPIVIGIL_MODEL_BASE_URL")
	setString(&s.Model.Name, "EPIVIGIL_MODEL_NAME")

	setString(&s.Analytics.BaseURL, "EPIVIGIL_ANALYTICS_URL")

	setString(&s.News.APIKey, "EPIVIGIL_NEWS_API_KEY", "TAVILY_API_KEY")
	setString(&s.News.BaseURL, "EPIVIGIL_NEWS_URL")

	setString(&s.Dictionary.Path, "EPIVIGIL_DICTIONARY_PATH")

	setString(&s.Redis.Addr, "EPIVIGIL_REDIS_ADDR")
	setString(&s.Redis.Password, "EPIVIGIL_REDIS_PASSWORD")
	setInt(&s.Redis.DB, "EPIVIGIL_REDIS_DB")

	setString(&s.Log.Level, "EPIVIGIL_LOG_LEVEL")
	setString(&s.Log.Format, "EPIVIGIL_LOG_FORMAT")

	setInt(&s.Workflow.StepCeiling, "EPIVIGIL_STEP_CEILING")

	setInt(&s.Security.MaxInputLen, "EPIVIGIL_MAX_INPUT_LEN")
	setString(&s.Security.EncryptionKey, "EPIVIGIL_ENCRYPTION_KEY")
}

func (s *Settings) normalize() {
	s.Server.Addr = strings.TrimSpace(s.Server.Addr)
	s.Model.Name = strings.TrimSpace(s.Model.Name)
	s.Analytics.BaseURL = strings.TrimRight(strings.TrimSpace(s.Analytics.BaseURL), "/")
	s.News.BaseURL = strings.TrimRight(strings.TrimSpace(s.News.BaseURL), "/")
	s.Log.Level = strings.ToLower(strings.TrimSpace(s.Log.Level))
	s.Log.Format = strings.ToLower(strings.TrimSpace(s.Log.Format))

	if s.Server.Addr == "" {
		s.Server.Addr = DefaultListenAddr
	}
	if s.Model.Name == "" {
		s.Model.Name = DefaultModelName
	}
}

func (s *Settings) validate() error {
	if s.Workflow.StepCeiling < 0 {
		return fmt.Errorf("workflow.step_ceiling must not be negative")
	}
	if s.Security.MaxInputLen < 0 {
		return fmt.Errorf("security.max_input_len must not be negative")
	}
	if _, err := s.EncryptionKey(); err != nil {
		return err
	}
	return nil
}

// EncryptionKey decodes the configured checkpoint encryption key. A nil
// result means encryption is disabled.
func (s Settings) EncryptionKey() ([]byte, error) {
	raw := strings.TrimSpace(s.Security.EncryptionKey)
	if raw == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("security.encryption_key must be hex encoded: %w", err)
	}
	if n := len(key); n != 16 && n != 24 && n != 32 {
		return nil, fmt.Errorf("security.encryption_key must decode to 16, 24 or 32 bytes, got %d", n)
	}
	return key, nil
}

func setString(dst *string, names ...string) {
	for _, name := range names {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
			return
		}
	}
}

func setInt(dst *int, name string) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}
