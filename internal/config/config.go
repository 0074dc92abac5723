// Package config loads service configuration from an optional YAML file
// overridden by CODEIQ_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	LLM     LLMConfig     `koanf:"llm"`
	Jobs    JobsConfig    `koanf:"jobs"`
	Webhook WebhookConfig `koanf:"webhook"`
	Storage StorageConfig `koanf:"storage"`
	Output  OutputConfig  `koanf:"output"`
}

type ServerConfig struct {
	Port        int           `koanf:"port" validate:"gt=0,lte=65535"`
	SyncTimeout time.Duration `koanf:"sync_timeout" validate:"gt=0"`
}

type LLMConfig struct {
	APIKey  string `koanf:"api_key" validate:"required"`
	Model   string `koanf:"model"`
	BaseURL string `koanf:"base_url" validate:"omitempty,url"`
}

type JobsConfig struct {
	MaxConcurrent int           `koanf:"max_concurrent" validate:"gte=1"`
	Retention     time.Duration `koanf:"retention" validate:"gt=0"`
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"gt=0"`
}

type WebhookConfig struct {
	Secret string `koanf:"secret"`
}

type StorageConfig struct {
	SQLitePath string `koanf:"sqlite_path"`
}

type OutputConfig struct {
	Dir string `koanf:"dir"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads config.yaml when present, applies CODEIQ_ environment
// overrides (double underscore separates nesting levels, e.g.
// CODEIQ_SERVER__PORT), fills defaults, and validates the result.
func Load() (*Config, error) {
	return LoadFile("config.yaml")
}

// LoadFile is Load with an explicit file path, for tests.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("CODEIQ_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "CODEIQ_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	applyDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.LLM.APIKey = substituteEnvVars(cfg.LLM.APIKey)
	cfg.Webhook.Secret = substituteEnvVars(cfg.Webhook.Secret)

	if err := validator.New().Struct(&cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("config: invalid field %s (%s)", verrs[0].Namespace(), verrs[0].Tag())
		}
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":         8080,
		"server.sync_timeout": "120s",
		"llm.model":           "gemini-2.0-flash",
		"jobs.max_concurrent": 4,
		"jobs.retention":      "1h",
		"jobs.sweep_interval": "5m",
		"storage.sqlite_path": "codeiq.db",
		"output.dir":          "output",
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
