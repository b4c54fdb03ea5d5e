package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	FeatureEngine = "engine"
	FeatureCoach  = "coach"
	FeatureSpeech = "speech"
)

type EngineConfig struct {
	Path             string        `yaml:"path"`
	MoveTimeMS       int           `yaml:"movetime_ms"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	MaxProcs         int           `yaml:"max_procs"`
	Threads          int           `yaml:"threads"`
	HashMB           int           `yaml:"hash_mb"`
}

type CoachConfig struct {
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	APIVersion string `yaml:"api_version"`
	Deployment string `yaml:"deployment"`
	Style      string `yaml:"style"`
}

type SpeechConfig struct {
	APIKey   string `yaml:"api_key"`
	Region   string `yaml:"region"`
	Voice    string `yaml:"voice"`
	Endpoint string `yaml:"endpoint"`
}

type Config struct {
	HTTPAddr    string        `yaml:"http_addr"`
	RedisURL    string        `yaml:"redis_url"`
	DatabaseURL string        `yaml:"database_url"`
	SessionTTL  time.Duration `yaml:"session_ttl"`
	ClipTTL     time.Duration `yaml:"clip_ttl"`
	MessagesDir string        `yaml:"messages_dir"`

	// MoveTimeout bounds the work behind one played move; ExplainTimeout
	// bounds the coach call inside it.
	MoveTimeout    time.Duration `yaml:"move_timeout"`
	ExplainTimeout time.Duration `yaml:"explain_timeout"`

	Engine EngineConfig `yaml:"engine"`
	Coach  CoachConfig  `yaml:"coach"`
	Speech SpeechConfig `yaml:"speech"`
}

// FeatureError reports why an optional feature is disabled.
type FeatureError struct {
	Feature string
	Err     error
}

func (e *FeatureError) Error() string { return e.Feature + ": " + e.Err.Error() }
func (e *FeatureError) Unwrap() error { return e.Err }

var ErrMissingSecret = errors.New("missing secret")

func DefaultEnginePath() string {
	if runtime.GOOS == "windows" {
		return `C:\LCZero\lc0.exe`
	}
	return "/usr/local/bin/lc0"
}

func defaults() *Config {
	return &Config{
		HTTPAddr:       ":8080",
		SessionTTL:     24 * time.Hour,
		ClipTTL:        15 * time.Minute,
		MoveTimeout:    60 * time.Second,
		ExplainTimeout: 20 * time.Second,
		Engine: EngineConfig{
			Path:             DefaultEnginePath(),
			MoveTimeMS:       3000,
			HandshakeTimeout: 4 * time.Second,
		},
		Coach: CoachConfig{
			APIVersion: "2025-02-01-preview",
			Deployment: "gpt-4",
			Style:      "position",
		},
		Speech: SpeechConfig{Voice: "en-US-JennyNeural"},
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// CHESS_TUTOR_CONFIG, and then environment variables.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

func LoadFrom(getenv func(string) string) (*Config, error) {
	env := func(k string) string { return strings.TrimSpace(getenv(k)) }
	cfg := defaults()

	if path := env("CHESS_TUTOR_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	setString(&cfg.HTTPAddr, env("HTTP_ADDR"))
	setString(&cfg.RedisURL, env("REDIS_URL"))
	setString(&cfg.DatabaseURL, env("DATABASE_URL"))
	setDuration(&cfg.SessionTTL, env("SESSION_TTL"))
	setDuration(&cfg.ClipTTL, env("CLIP_TTL"))
	setString(&cfg.MessagesDir, env("MESSAGES_DIR"))
	setDuration(&cfg.MoveTimeout, env("MOVE_TIMEOUT"))
	setDuration(&cfg.ExplainTimeout, env("EXPLAIN_TIMEOUT"))

	setString(&cfg.Engine.Path, env("ENGINE_PATH"))
	setInt(&cfg.Engine.MoveTimeMS, env("ENGINE_MOVETIME_MS"))
	setDuration(&cfg.Engine.HandshakeTimeout, env("ENGINE_HANDSHAKE_TIMEOUT"))
	setInt(&cfg.Engine.MaxProcs, env("ENGINE_MAX_PROCS"))
	setInt(&cfg.Engine.Threads, env("ENGINE_THREADS"))
	setInt(&cfg.Engine.HashMB, env("ENGINE_HASH_MB"))

	setString(&cfg.Coach.APIKey, env("OPENAI_API_KEY"))
	setString(&cfg.Coach.Endpoint, env("AZURE_OPENAI_ENDPOINT"))
	setString(&cfg.Coach.APIVersion, env("AZURE_OPENAI_VERSION"))
	setString(&cfg.Coach.Deployment, env("AZURE_OPENAI_DEPLOYMENT"))
	setString(&cfg.Coach.Style, strings.ToLower(env("COACH_PROMPT_STYLE")))

	setString(&cfg.Speech.APIKey, env("AZURE_SPEECH_API_KEY"))
	setString(&cfg.Speech.Region, env("SPEECH_REGION"))
	setString(&cfg.Speech.Voice, env("SPEECH_VOICE"))
	setString(&cfg.Speech.Endpoint, env("SPEECH_ENDPOINT"))

	if cfg.Engine.MoveTimeMS <= 0 {
		return nil, fmt.Errorf("ENGINE_MOVETIME_MS must be positive")
	}
	if cfg.MoveTimeout <= 0 || cfg.ExplainTimeout <= 0 {
		return nil, fmt.Errorf("MOVE_TIMEOUT and EXPLAIN_TIMEOUT must be positive")
	}
	if cfg.ExplainTimeout > cfg.MoveTimeout {
		return nil, fmt.Errorf("EXPLAIN_TIMEOUT (%s) exceeds MOVE_TIMEOUT (%s)", cfg.ExplainTimeout, cfg.MoveTimeout)
	}
	if cfg.HTTPAddr == "" {
		return nil, fmt.Errorf("HTTP_ADDR is required")
	}
	return cfg, nil
}

// WriteTimeout is the HTTP write deadline: a played move always answers
// before it.
func (c *Config) WriteTimeout() time.Duration {
	return c.MoveTimeout + 30*time.Second
}

func (c *Config) MoveTime() time.Duration {
	return time.Duration(c.Engine.MoveTimeMS) * time.Millisecond
}

// Validate checks each optional feature independently. A missing secret or
// engine binary disables only that feature.
func (c *Config) Validate() []*FeatureError {
	var out []*FeatureError
	if err := c.validateEngine(); err != nil {
		out = append(out, &FeatureError{Feature: FeatureEngine, Err: err})
	}
	if missing := missing(map[string]string{
		"OPENAI_API_KEY":        c.Coach.APIKey,
		"AZURE_OPENAI_ENDPOINT": c.Coach.Endpoint,
	}); missing != "" {
		out = append(out, &FeatureError{Feature: FeatureCoach, Err: fmt.Errorf("%w: %s", ErrMissingSecret, missing)})
	}
	speech := map[string]string{"AZURE_SPEECH_API_KEY": c.Speech.APIKey}
	if c.Speech.Endpoint == "" {
		speech["SPEECH_REGION"] = c.Speech.Region
	}
	if missing := missing(speech); missing != "" {
		out = append(out, &FeatureError{Feature: FeatureSpeech, Err: fmt.Errorf("%w: %s", ErrMissingSecret, missing)})
	}
	return out
}

func (c *Config) validateEngine() error {
	if c.Engine.Path == "" {
		return errors.New("ENGINE_PATH is empty")
	}
	info, err := os.Stat(c.Engine.Path)
	if err != nil {
		return fmt.Errorf("engine executable not found at %s: %w", c.Engine.Path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("engine path %s is a directory", c.Engine.Path)
	}
	return nil
}

func missing(vals map[string]string) string {
	var names []string
	for _, k := range []string{"OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "AZURE_SPEECH_API_KEY", "SPEECH_REGION"} {
		if v, ok := vals[k]; ok && strings.TrimSpace(v) == "" {
			names = append(names, k)
		}
	}
	return strings.Join(names, ", ")
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v string) {
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = n
	}
}

// setDuration accepts Go durations ("90s") or plain seconds.
func setDuration(dst *time.Duration, v string) {
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = time.Duration(n) * time.Second
	}
}
