// Package config loads the server configuration from a YAML file plus
// environment variables. Secrets and connection strings live in the
// environment (a .env file is honored in development); tunables live in the
// YAML file. Every section validates itself so a bad deploy fails at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" parse naturally.
// Bare integers are taken as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: bad duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return err
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

// Std returns the wrapped standard duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration document.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Meeting   MeetingConfig   `yaml:"meeting"`
	Generate  GenerateConfig  `yaml:"generate"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Retry     RetryConfig     `yaml:"retry"`

	// From the environment, never from YAML.
	DatabaseURL   string `yaml:"-"`
	RedisURL      string `yaml:"-"`
	OpenAIKey     string `yaml:"-"`
	ElevenLabsKey string `yaml:"-"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	Mode string `yaml:"mode"` // production or development
}

func (c *ServerConfig) Validate() error {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	switch c.Mode {
	case "":
		c.Mode = "production"
	case "production", "development":
	default:
		return fmt.Errorf("server.mode: unknown mode %q", c.Mode)
	}
	return nil
}

// Production reports whether client-supplied tunables must be stripped.
func (c ServerConfig) Production() bool { return c.Mode == "production" }

type MeetingConfig struct {
	MaxTurns        int  `yaml:"max_turns"`
	SummaryMaxChars int  `yaml:"summary_max_chars"`
	AllowExtension  bool `yaml:"allow_extension"`
}

func (c *MeetingConfig) Validate() error {
	if c.MaxTurns <= 0 {
		c.MaxTurns = 20
	}
	if c.SummaryMaxChars <= 0 {
		c.SummaryMaxChars = 1200
	}
	return nil
}

type GenerateConfig struct {
	BaseURL string   `yaml:"base_url"`
	Model   string   `yaml:"model"`
	Timeout Duration `yaml:"timeout"`
}

func (c *GenerateConfig) Validate() error {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Timeout <= 0 {
		c.Timeout = Duration(60 * time.Second)
	}
	return nil
}

type SynthesisConfig struct {
	Concurrency int                `yaml:"concurrency"`
	ElevenLabs  ElevenLabsConfig   `yaml:"elevenlabs"`
	OpenAI      OpenAISpeechConfig `yaml:"openai"`
}

func (c *SynthesisConfig) Validate() error {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if err := c.ElevenLabs.Validate(); err != nil {
		return err
	}
	return c.OpenAI.Validate()
}

type ElevenLabsConfig struct {
	BaseURL string   `yaml:"base_url"`
	ModelID string   `yaml:"model_id"`
	Timeout Duration `yaml:"timeout"`
}

func (c *ElevenLabsConfig) Validate() error {
	if c.ModelID == "" {
		c.ModelID = "eleven_multilingual_v2"
	}
	if c.Timeout <= 0 {
		c.Timeout = Duration(120 * time.Second)
	}
	return nil
}

type OpenAISpeechConfig struct {
	BaseURL       string   `yaml:"base_url"`
	Model         string   `yaml:"model"`
	MaxChunkChars int      `yaml:"max_chunk_chars"`
	Timeout       Duration `yaml:"timeout"`
}

func (c *OpenAISpeechConfig) Validate() error {
	if c.Model == "" {
		c.Model = "gpt-4o-mini-tts"
	}
	if c.MaxChunkChars <= 0 {
		c.MaxChunkChars = 600
	}
	if c.Timeout <= 0 {
		c.Timeout = Duration(120 * time.Second)
	}
	return nil
}

type RetryConfig struct {
	MaxRetries int      `yaml:"max_retries"`
	Delay      Duration `yaml:"delay"`
}

func (c *RetryConfig) Validate() error {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.Delay <= 0 {
		c.Delay = Duration(time.Second)
	}
	return nil
}

// Load reads the YAML file at path, overlays environment variables, and
// validates the result. A missing file is fine: defaults plus environment
// carry a development setup.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to defaults
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg.DatabaseURL = os.Getenv("DB_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	cfg.ElevenLabsKey = os.Getenv("ELEVENLABS_API_KEY")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section and the required environment inputs.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Meeting.Validate(); err != nil {
		return err
	}
	if err := c.Generate.Validate(); err != nil {
		return err
	}
	if err := c.Synthesis.Validate(); err != nil {
		return err
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	if c.DatabaseURL == "" {
		return errors.New("config: DB_URL environment variable is not set")
	}
	if c.OpenAIKey == "" {
		return errors.New("config: OPENAI_API_KEY environment variable is not set")
	}
	return nil
}
