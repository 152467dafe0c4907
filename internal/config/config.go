package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Database    DatabaseConfig    `yaml:"database"`
	Storage     StorageConfig     `yaml:"storage"`
	Queue       QueueConfig       `yaml:"queue"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	LLM         LLMConfig         `yaml:"llm"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Paths       PathsConfig       `yaml:"paths"`
	Performance PerformanceConfig `yaml:"performance"`
	Probe       ProbeConfig       `yaml:"probe"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	File  string `yaml:"file"`
}

type DatabaseConfig struct {
	URL     string `yaml:"url"`
	Migrate bool   `yaml:"migrate"`
}

type StorageConfig struct {
	Driver string   `yaml:"driver" validate:"oneof=s3 fs memory"`
	S3     S3Config `yaml:"s3"`
	FSRoot string   `yaml:"fs_root"`
}

type S3Config struct {
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

type QueueConfig struct {
	Driver       string        `yaml:"driver" validate:"oneof=postgres memory"`
	PollInterval time.Duration `yaml:"poll_interval"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	Lease        time.Duration `yaml:"lease"`
	MaxAttempts  int           `yaml:"max_attempts" validate:"gte=0"`
}

type TranscriberConfig struct {
	BaseURL         string        `yaml:"base_url" validate:"required,url"`
	AuthURL         string        `yaml:"auth_url" validate:"required,url"`
	APIKey          string        `yaml:"api_key"`
	ClientID        string        `yaml:"client_id"`
	ClientSecret    string        `yaml:"client_secret"`
	Scope           string        `yaml:"scope"`
	Model           string        `yaml:"model"`
	Language        string        `yaml:"language"`
	NoDiarization   bool          `yaml:"no_diarization"`
	ProfanityFilter bool          `yaml:"profanity_filter"`
	HintWords       []string      `yaml:"hint_words"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	PollTimeout     time.Duration `yaml:"poll_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxRetries      int           `yaml:"max_retries" validate:"gte=0"`
	InsecureTLS     bool          `yaml:"insecure_tls"`
}

type LLMConfig struct {
	Provider   string   `yaml:"provider" validate:"oneof=gemini openai ollama"`
	Model      string   `yaml:"model"`
	APIKeys    []string `yaml:"api_keys"`
	BaseURL    string   `yaml:"base_url"`
	PromptFile string   `yaml:"prompt_file"`
}

type PipelineConfig struct {
	TaskDeadline time.Duration `yaml:"task_deadline"`
}

type PathsConfig struct {
	Inbox       string        `yaml:"inbox"`
	Archived    string        `yaml:"archived"`
	SettleDelay time.Duration `yaml:"settle_delay"`
}

type PerformanceConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" validate:"gte=0"`
}

type ProbeConfig struct {
	FFprobePath string `yaml:"ffprobe_path"`
}

var validate = validator.New()

// Validate fills defaults and checks required values.
func (c *Config) Validate() error {
	c.applyDefaults()

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Transcriber.APIKey == "" && (c.Transcriber.ClientID == "" || c.Transcriber.ClientSecret == "") {
		return fmt.Errorf("transcriber.api_key or transcriber.client_id/client_secret is required")
	}
	if c.Queue.Driver == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("database.url is required for the postgres queue")
	}
	if c.Storage.Driver == "s3" && c.Storage.S3.Endpoint == "" {
		return fmt.Errorf("storage.s3.endpoint is required")
	}
	if c.LLM.Provider != "ollama" && len(c.LLM.APIKeys) == 0 {
		return fmt.Errorf("llm.api_keys is required for provider %s", c.LLM.Provider)
	}
	if c.Pipeline.TaskDeadline <= c.Transcriber.PollTimeout {
		return fmt.Errorf("pipeline.task_deadline (%s) must exceed transcriber.poll_timeout (%s)",
			c.Pipeline.TaskDeadline, c.Transcriber.PollTimeout)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "fs"
	}
	if c.Storage.FSRoot == "" {
		c.Storage.FSRoot = "data/objects"
	}
	if c.Storage.S3.Region == "" {
		c.Storage.S3.Region = "us-east-1"
	}
	if c.Queue.Driver == "" {
		c.Queue.Driver = "postgres"
	}
	if c.Queue.PollInterval == 0 {
		c.Queue.PollInterval = time.Second
	}
	if c.Queue.RetryDelay == 0 {
		c.Queue.RetryDelay = 30 * time.Second
	}
	if c.Queue.Lease == 0 {
		c.Queue.Lease = 45 * time.Minute
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = 5
	}
	if c.Transcriber.Scope == "" {
		c.Transcriber.Scope = "SALUTE_SPEECH_PERS"
	}
	if c.Transcriber.Model == "" {
		c.Transcriber.Model = "general"
	}
	if c.Transcriber.Language == "" {
		c.Transcriber.Language = "ru-RU"
	}
	if c.Transcriber.PollInterval == 0 {
		c.Transcriber.PollInterval = time.Second
	}
	if c.Transcriber.PollTimeout == 0 {
		c.Transcriber.PollTimeout = 20 * time.Minute
	}
	if c.Transcriber.RequestTimeout == 0 {
		c.Transcriber.RequestTimeout = time.Minute
	}
	if c.Transcriber.MaxRetries == 0 {
		c.Transcriber.MaxRetries = 3
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "gemini"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = defaultModel(c.LLM.Provider)
	}
	if c.Pipeline.TaskDeadline == 0 {
		c.Pipeline.TaskDeadline = 30 * time.Minute
	}
	if c.Paths.Inbox == "" {
		c.Paths.Inbox = "data/inbox"
	}
	if c.Paths.Archived == "" {
		c.Paths.Archived = "data/archived"
	}
	if c.Paths.SettleDelay == 0 {
		c.Paths.SettleDelay = 500 * time.Millisecond
	}
	if c.Performance.MaxConcurrent == 0 {
		c.Performance.MaxConcurrent = 2
	}
}

func defaultModel(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4o-mini"
	case "ollama":
		return "llama3.1"
	default:
		return "gemini-2.5-flash"
	}
}
