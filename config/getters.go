package config

import "strings"

// Exists checks if a configuration key or section exists.
func (c *Config) Exists(key string) bool {
	if c == nil || c.k == nil {
		return false
	}
	return c.k.Exists(key)
}

// All returns all configuration as a flattened map.
func (c *Config) All() map[string]any {
	if c == nil || c.k == nil {
		return nil
	}
	return c.k.All()
}

// Section returns the flattened values at key: a single entry for a leaf, or
// every key nested under it for a section such as "lightspeed". Unknown keys
// yield nil.
func (c *Config) Section(key string) map[string]any {
	if !c.Exists(key) {
		return nil
	}
	prefix := key + "."
	out := make(map[string]any)
	for k, v := range c.k.All() {
		if k == key || strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out
}
