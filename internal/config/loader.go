package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"memoire/internal/domain"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "MEMOIRE_CONFIG"

// DefaultPath is used when neither a flag nor EnvConfigPath names a file.
const DefaultPath = "memoire.json"

// ErrInvalidConfig wraps every validation failure reported by Validate.
var ErrInvalidConfig = errors.New("config: invalid")

// marshalIndent and writeFile are used by WriteDefault and Save; tests may replace to force errors.
var (
	marshalIndent = json.MarshalIndent
	writeFile     = os.WriteFile
)

// ResolvePath picks the config file: the explicit flag value, then
// $MEMOIRE_CONFIG, then DefaultPath.
func ResolvePath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return DefaultPath
}

// Default returns the configuration written by WriteDefault: local oracle,
// French, in-memory store, no tool retries.
func Default() *domain.Config {
	return &domain.Config{
		Gateway: domain.GatewayConfig{Port: 8080},
		Agent: domain.AgentConfig{
			Provider:       "local",
			Language:       "fr",
			RequestTimeout: 60,
		},
		Store: domain.StoreConfig{Driver: "sqlite", URL: "file:memoire.db"},
		Retry: domain.RetryConfig{
			MaxRetries:     3,
			InitialBackoff: 500,
			MaxBackoff:     30000,
			Multiplier:     2,
		},
		Refine: domain.RefineConfig{HistoryLimit: 10},
		Infra:  domain.InfraConfig{LogFormat: "text", LogLevel: "info"},
	}
}

// WriteDefault writes Default() to path, as YAML when the extension is .yaml
// or .yml and as JSON otherwise. Parent directories are not created.
func WriteDefault(path string) error {
	data, err := encode(path, Default())
	if err != nil {
		return err
	}
	return writeFile(path, data, 0644)
}

// Load reads path (JSON, or YAML by extension), fills unset fields with
// defaults and validates the result.
func Load(path string) (*domain.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	var c domain.Config
	if isYAML(path) {
		err = yaml.Unmarshal(data, &c)
	} else {
		err = json.Unmarshal(data, &c)
	}
	if err != nil {
		return nil, fmt.Errorf("config parse: %w", err)
	}
	ApplyDefaults(&c)
	CleanPaths(&c)
	if err := Validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ApplyDefaults fills zero-valued fields that have a meaningful default.
func ApplyDefaults(cfg *domain.Config) {
	if cfg == nil {
		return
	}
	if cfg.Agent.Provider == "" {
		cfg.Agent.Provider = "local"
	}
	if cfg.Agent.Language == "" {
		cfg.Agent.Language = "fr"
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	if cfg.Refine.HistoryLimit <= 0 {
		cfg.Refine.HistoryLimit = 10
	}
	if cfg.Infra.LogFormat == "" {
		cfg.Infra.LogFormat = "text"
	}
	if cfg.Infra.LogLevel == "" {
		cfg.Infra.LogLevel = "info"
	}
}

// CleanPaths applies filepath.Clean to local SQLite file paths to prevent path traversal.
func CleanPaths(cfg *domain.Config) {
	if cfg == nil || cfg.Store.Driver != "sqlite" {
		return
	}
	url := cfg.Store.URL
	if url == "" || url == ":memory:" || strings.Contains(url, "?") {
		return
	}
	if rest, ok := strings.CutPrefix(url, "file:"); ok {
		cfg.Store.URL = "file:" + filepath.Clean(rest)
		return
	}
	cfg.Store.URL = filepath.Clean(url)
}

var (
	knownLanguages = map[string]bool{"fr": true, "en": true}
	knownDrivers   = map[string]bool{"memory": true, "sqlite": true, "libsql": true, "postgres": true}
)

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func Validate(cfg *domain.Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if !knownLanguages[cfg.Agent.Language] {
		return fmt.Errorf("%w: agent.language %q (use fr or en)", ErrInvalidConfig, cfg.Agent.Language)
	}
	if !knownDrivers[cfg.Store.Driver] {
		return fmt.Errorf("%w: store.driver %q", ErrInvalidConfig, cfg.Store.Driver)
	}
	if cfg.Store.Driver != "memory" && cfg.Store.URL == "" {
		return fmt.Errorf("%w: store.url is required for driver %s", ErrInvalidConfig, cfg.Store.Driver)
	}
	if cfg.Agent.RequestTimeout < 0 {
		return fmt.Errorf("%w: agent.requestTimeout must be >= 0", ErrInvalidConfig)
	}
	if cfg.ToolRetry.MaxRetries < 0 || cfg.Retry.MaxRetries < 0 {
		return fmt.Errorf("%w: maxRetries must be >= 0", ErrInvalidConfig)
	}
	for i, s := range cfg.Schedules {
		if strings.TrimSpace(s.Cron) == "" || strings.TrimSpace(s.Instruction) == "" {
			return fmt.Errorf("%w: schedules[%d] needs cron and instruction", ErrInvalidConfig, i)
		}
	}
	return nil
}

// Save writes cfg to path as JSON or YAML, by extension.
func Save(path string, cfg *domain.Config) error {
	if cfg == nil {
		return fmt.Errorf("config save: nil config")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("config save mkdir: %w", err)
	}
	data, err := encode(path, cfg)
	if err != nil {
		return fmt.Errorf("config save marshal: %w", err)
	}
	if err := writeFile(path, data, 0644); err != nil {
		return fmt.Errorf("config save write: %w", err)
	}
	return nil
}

func encode(path string, cfg *domain.Config) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(cfg)
	}
	return marshalIndent(cfg, "", "  ")
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
