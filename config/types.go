package config

import (
	"time"

	"github.com/knadh/koanf/v2"

	"github.com/vapeshed/cis-bricks/observability"
)

// Config represents the overall application configuration structure.
// The embedded koanf.Koanf instance allows for flexible access to keys
// that are not mapped onto the struct.
type Config struct {
	App           AppConfig            `koanf:"app" json:"app" yaml:"app"`
	Log           LogConfig            `koanf:"log" json:"log" yaml:"log"`
	Lightspeed    LightspeedConfig     `koanf:"lightspeed" json:"lightspeed" yaml:"lightspeed"`
	Sync          SyncConfig           `koanf:"sync" json:"sync" yaml:"sync"`
	Observability observability.Config `koanf:"observability" json:"observability" yaml:"observability"`

	// k holds the underlying Koanf instance for flexible access to custom configurations
	k *koanf.Koanf `json:"-" yaml:"-"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name    string `koanf:"name" json:"name" yaml:"name" validate:"required"`
	Version string `koanf:"version" json:"version" yaml:"version"`
	Env     string `koanf:"env" json:"env" yaml:"env" validate:"oneof=development staging production"`
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty"`
	// Payloads enables debug logging of request and response bodies
	Payloads bool `koanf:"payloads" json:"payloads" yaml:"payloads"`
	// SensitiveFields overrides the default masking denylist
	SensitiveFields []string `koanf:"sensitive_fields" json:"sensitive_fields" yaml:"sensitive_fields"`
}

// LightspeedConfig holds the upstream API connection settings.
type LightspeedConfig struct {
	BaseURL    string        `koanf:"base_url" json:"base_url" yaml:"base_url" validate:"required,url,startswith=http"`
	Token      string        `koanf:"token" json:"token" yaml:"token" validate:"required"`
	Timeout    time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout" validate:"gt=0"`
	MaxRetries int           `koanf:"max_retries" json:"max_retries" yaml:"max_retries" validate:"gte=0,lte=10"`
	Backoff    time.Duration `koanf:"backoff" json:"backoff" yaml:"backoff" validate:"gte=0"`
	UserAgent  string        `koanf:"user_agent" json:"user_agent" yaml:"user_agent"`
	PageSize   int           `koanf:"page_size" json:"page_size" yaml:"page_size" validate:"gte=1,lte=10000"`
	Rate       RateConfig    `koanf:"rate" json:"rate" yaml:"rate"`
}

// RateConfig holds client-side request pacing. A zero limit disables pacing.
type RateConfig struct {
	Limit float64 `koanf:"limit" json:"limit" yaml:"limit" validate:"gte=0"`
	Burst int     `koanf:"burst" json:"burst" yaml:"burst" validate:"gte=1"`
}

// SyncConfig holds settings for bulk fetches.
type SyncConfig struct {
	MaxConcurrent int      `koanf:"max_concurrent" json:"max_concurrent" yaml:"max_concurrent" validate:"gte=1,lte=50"`
	Resources     []string `koanf:"resources" json:"resources" yaml:"resources"`
}
