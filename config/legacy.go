package config

import (
	"strconv"
	"strings"
	"time"
)

// legacyAlias maps a config key onto the environment variables older
// deployments used for it, highest precedence first.
type legacyAlias struct {
	key     string
	names   []string
	seconds bool
}

var legacyAliasTable = []legacyAlias{
	{key: "lightspeed.base_url", names: []string{"VEND_API_BASE", "LIGHTSPEED_API_URL", "LS_BASE_URL"}},
	{key: "lightspeed.token", names: []string{"VEND_ACCESS_TOKEN", "VEND_API_TOKEN", "LIGHTSPEED_API_TOKEN", "LIGHTSPEED_TOKEN", "LS_TOKEN"}},
	{key: "lightspeed.timeout", names: []string{"VEND_TIMEOUT", "LIGHTSPEED_TIMEOUT", "LS_TIMEOUT"}, seconds: true},
	{key: "lightspeed.max_retries", names: []string{"LIGHTSPEED_MAX_RETRIES", "LS_RETRY_ATTEMPTS"}},
	{key: "lightspeed.backoff", names: []string{"LIGHTSPEED_RETRY_DELAY"}, seconds: true},
	{key: "lightspeed.page_size", names: []string{"SYNC_PAGE_SIZE"}},
	{key: "sync.max_concurrent", names: []string{"SYNC_MAX_CONCURRENT"}},
	{key: "log.level", names: []string{"LOG_LEVEL"}},
}

// LegacyEnvNames lists every legacy variable that is still honored.
func LegacyEnvNames() []string {
	var names []string
	for _, alias := range legacyAliasTable {
		names = append(names, alias.names...)
	}
	return names
}

// legacyAliases resolves legacy variables from environ into config keys.
// Blank values are treated as unset.
func legacyAliases(environ []string) map[string]any {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		vars[name] = strings.TrimSpace(value)
	}

	out := make(map[string]any)
	for _, alias := range legacyAliasTable {
		for _, name := range alias.names {
			value := vars[name]
			if value == "" {
				continue
			}
			if alias.seconds {
				value = secondsToDuration(value)
			}
			if alias.key == "log.level" {
				value = normalizeLevel(value)
			}
			out[alias.key] = value
			break
		}
	}
	return out
}

// secondsToDuration turns a bare number of seconds into a duration string.
// Values that already carry a unit pass through.
func secondsToDuration(value string) string {
	if _, err := time.ParseDuration(value); err == nil {
		return value
	}
	secs, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return value
	}
	return time.Duration(secs * float64(time.Second)).String()
}

func normalizeLevel(level string) string {
	level = strings.ToLower(level)
	if level == "warning" {
		return "warn"
	}
	return level
}
