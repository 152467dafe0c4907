package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML file, overlays secrets from .env and the environment,
// then validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	// Missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Logging.Level, "PROTOCOL_LOG_LEVEL")
	setString(&c.Logging.File, "PROTOCOL_LOG_FILE")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Storage.Driver, "PROTOCOL_STORAGE_DRIVER")
	setString(&c.Storage.S3.Endpoint, "S3_ENDPOINT")
	setString(&c.Storage.S3.Region, "S3_REGION")
	setString(&c.Storage.S3.AccessKey, "S3_ACCESS_KEY")
	setString(&c.Storage.S3.SecretKey, "S3_SECRET_KEY")
	setString(&c.Queue.Driver, "PROTOCOL_QUEUE_DRIVER")
	setString(&c.Transcriber.APIKey, "SALUTE_SPEECH_API_KEY")
	setString(&c.Transcriber.ClientID, "SALUTE_SPEECH_CLIENT_ID")
	setString(&c.Transcriber.ClientSecret, "SALUTE_SPEECH_CLIENT_SECRET")
	setString(&c.Transcriber.Scope, "SALUTE_SPEECH_SCOPE")
	setString(&c.LLM.Provider, "PROTOCOL_LLM_PROVIDER")
	setString(&c.LLM.Model, "PROTOCOL_LLM_MODEL")

	if keys := os.Getenv("GEMINI_API_KEYS"); keys != "" && c.LLM.Provider != "openai" {
		c.LLM.APIKeys = splitList(keys)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.LLM.Provider == "openai" {
		c.LLM.APIKeys = []string{key}
	}
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
