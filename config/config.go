package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix namespaces environment overrides, e.g. CIS_LIGHTSPEED_TOKEN.
const DefaultEnvPrefix = "CIS_"

// Options controls where LoadFrom reads configuration from.
type Options struct {
	// Files are optional YAML files loaded in order. Missing files are skipped.
	Files []string
	// YAML holds inline YAML documents loaded after Files.
	YAML [][]byte
	// EnvPrefix defaults to DefaultEnvPrefix.
	EnvPrefix string
	// Environ defaults to os.Environ.
	Environ func() []string
	// SkipEnvFile disables loading config.<app.env>.yaml next to the first file.
	SkipEnvFile bool
}

// Load loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. Legacy environment aliases
// 3. YAML configuration files
// 4. Default values (lowest priority)
func Load() (*Config, error) {
	return LoadFrom(Options{Files: []string{"config.yaml"}})
}

// LoadFrom loads configuration from the sources named in opts.
func LoadFrom(opts Options) (*Config, error) {
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = DefaultEnvPrefix
	}
	if opts.Environ == nil {
		opts.Environ = os.Environ
	}

	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	for _, path := range opts.Files {
		if err := loadOptionalFile(k, path); err != nil {
			return nil, err
		}
	}

	if env := k.String("app.env"); env != "" && !opts.SkipEnvFile && len(opts.Files) > 0 {
		if err := loadOptionalFile(k, envFileName(opts.Files[0], env)); err != nil {
			return nil, err
		}
	}

	for i, doc := range opts.YAML {
		if err := k.Load(rawbytes.Provider(doc), yaml.Parser()); err != nil {
			return nil, NewLoadError(fmt.Sprintf("inline yaml #%d", i+1), err)
		}
	}

	environ := opts.Environ()

	if aliases := legacyAliases(environ); len(aliases) > 0 {
		if err := k.Load(confmap.Provider(aliases, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load legacy environment: %w", err)
		}
	}

	if err := k.Load(envprovider.Provider(".", envprovider.Opt{
		Prefix:        opts.EnvPrefix,
		TransformFunc: envKeyMapper(k, opts.EnvPrefix),
		EnvironFunc:   func() []string { return environ },
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k
	cfg.Observability.ApplyDefaults()

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":    "lsctl",
		"app.version": "v1.0.0",
		"app.env":     EnvDevelopment,

		"log.level":            "info",
		"log.pretty":           false,
		"log.payloads":         false,
		"log.sensitive_fields": []string{},

		// base_url and token have no defaults; both are required.
		"lightspeed.base_url":    "",
		"lightspeed.token":       "",
		"lightspeed.timeout":     "30s",
		"lightspeed.max_retries": 3,
		"lightspeed.backoff":     "200ms",
		"lightspeed.user_agent":  "cis-bricks-httpclient/1.0",
		"lightspeed.page_size":   200,
		"lightspeed.rate.limit":  0.0,
		"lightspeed.rate.burst":  1,

		"sync.max_concurrent": 5,
		"sync.resources":      []string{},

		"observability.enabled":           false,
		"observability.service.name":      "lsctl",
		"observability.service.version":   "v1.0.0",
		"observability.environment":       EnvDevelopment,
		"observability.trace.endpoint":    "stdout",
		"observability.trace.protocol":    "http",
		"observability.trace.insecure":    false,
		"observability.trace.sample_rate": 1.0,
		"observability.metrics.endpoint":  "",
		"observability.metrics.protocol":  "",
		"observability.metrics.interval":  "60s",
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}

func loadOptionalFile(k *koanf.Koanf, path string) error {
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return NewLoadError(path, err)
	}
	return nil
}

// envFileName derives config.<env>.yaml from config.yaml.
func envFileName(base, env string) string {
	ext := ".yaml"
	if strings.HasSuffix(base, ".yml") {
		ext = ".yml"
	}
	return strings.TrimSuffix(base, ext) + "." + env + ext
}

// EnvVarName returns the environment variable that overrides a dotted key,
// e.g. lightspeed.base_url becomes CIS_LIGHTSPEED_BASE_URL.
func EnvVarName(prefix, key string) string {
	return prefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// envKeyMapper resolves prefixed variables against the keys already known to
// k. Underscores are ambiguous (base_url vs base.url), so unknown variables
// are ignored instead of guessed.
func envKeyMapper(k *koanf.Koanf, prefix string) func(string, string) (string, any) {
	known := make(map[string]string, len(k.Keys()))
	for _, key := range k.Keys() {
		known[EnvVarName(prefix, key)] = key
	}
	return func(name, value string) (string, any) {
		key, ok := known[name]
		if !ok {
			key, ok = known[prefix+name]
		}
		if !ok {
			return "", nil
		}
		return key, value
	}
}
