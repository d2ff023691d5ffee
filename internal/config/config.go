package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Enhance   EnhanceConfig   `yaml:"enhance"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

// EnhanceConfig controls the vision-enhancement pipeline. Loaded once and
// treated as immutable for a pipeline's lifetime; hot reload swaps the whole
// struct.
type EnhanceConfig struct {
	// Models that cannot see. Requests addressed to any of these ids go
	// through image-to-description rewriting; everything else passes through.
	NonVisionModelIDs []string `yaml:"non_vision_model_ids"`

	VisionModelID         string `yaml:"vision_model_id"`
	FallbackVisionModelID string `yaml:"fallback_vision_model_id"`

	ImageDescriptionPrompt string `yaml:"image_description_prompt"`
	// ImageContextTemplate must contain the {description} placeholder once.
	ImageContextTemplate string `yaml:"image_context_template"`
	// PlaceholderDescription is substituted when generation is exhausted.
	PlaceholderDescription string `yaml:"placeholder_description"`

	DebugMode     bool `yaml:"debug_mode"`
	StatusUpdates bool `yaml:"status_updates"`

	MaxRetryCount int           `yaml:"max_retry_count"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	VisionTimeout time.Duration `yaml:"vision_timeout"`

	MaxCacheSize int `yaml:"max_cache_size"`
	// MaxSessions bounds the session-state store; least recently active
	// sessions are evicted first.
	MaxSessions int `yaml:"max_sessions"`
	// SwitchHistoryLimit bounds a session's model switch history.
	SwitchHistoryLimit int `yaml:"switch_history_limit"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig caps outbound vision-model calls. Zero limit disables it.
type RateLimitConfig struct {
	Limit  int64         `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// NonVisionSet returns the non-vision model ids as a lookup set.
func (e EnhanceConfig) NonVisionSet() map[string]bool {
	set := make(map[string]bool, len(e.NonVisionModelIDs))
	for _, id := range e.NonVisionModelIDs {
		set[id] = true
	}
	return set
}

// DescriptionPlaceholder is the template slot replaced by the generated text.
const DescriptionPlaceholder = "{description}"

// Validate checks the enhance section once at startup. The pipeline assumes
// a validated config and does not re-check.
func (e EnhanceConfig) Validate() error {
	if e.MaxRetryCount < 0 {
		return fmt.Errorf("enhance.max_retry_count must be >= 0, got %d", e.MaxRetryCount)
	}
	if e.MaxCacheSize <= 0 {
		return fmt.Errorf("enhance.max_cache_size must be > 0, got %d", e.MaxCacheSize)
	}
	if e.MaxSessions <= 0 {
		return fmt.Errorf("enhance.max_sessions must be > 0, got %d", e.MaxSessions)
	}
	if len(e.NonVisionModelIDs) > 0 && e.VisionModelID == "" {
		return fmt.Errorf("enhance.vision_model_id is required when non_vision_model_ids is set")
	}
	if !strings.Contains(e.ImageContextTemplate, DescriptionPlaceholder) {
		return fmt.Errorf("enhance.image_context_template must contain %s", DescriptionPlaceholder)
	}
	if strings.Count(e.ImageContextTemplate, DescriptionPlaceholder) != 1 {
		return fmt.Errorf("enhance.image_context_template must contain %s exactly once", DescriptionPlaceholder)
	}
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			DB:        0,
			PoolSize:  50,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: 9090,
		},
		Enhance: EnhanceConfig{
			VisionModelID:         "deepseek.vision",
			FallbackVisionModelID: "google.gemini-2.0-flash",
			ImageDescriptionPrompt: "You are an expert image describer. Describe the image " +
				"thoroughly and accurately so that someone who cannot see it can understand " +
				"and use it. Transcribe any visible text. Describe people if present. Use the " +
				"language of the image content where applicable. Provide only the description, " +
				"with no extra commentary.",
			ImageContextTemplate: "The following is a description of an image attached to the " +
				"user's message. Treat it as an image you can see. Consider it only when it is " +
				"relevant to the user's prompt.\n\nImage description: {description}",
			PlaceholderDescription: "(image description unavailable: the image could not be processed)",
			StatusUpdates:          true,
			MaxRetryCount:          2,
			RetryBackoff:           500 * time.Millisecond,
			VisionTimeout:          60 * time.Second,
			MaxCacheSize:           500,
			MaxSessions:            1000,
			SwitchHistoryLimit:     20,
			RateLimit: RateLimitConfig{
				Limit:  0,
				Window: time.Minute,
			},
		},
	}
}
